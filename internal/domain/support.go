package domain

import "time"

// ============================================================
// Customer Success: tabelas lidas pelo fetcher de tickets
// ============================================================

// SupportTicket is a row of support_tickets.
type SupportTicket struct {
	ID                 string     `json:"id"`
	Subject            string     `json:"subject"`
	Status             string     `json:"status"`
	Category           string     `json:"category"`
	Priority           string     `json:"priority"`
	SLABreached        bool       `json:"sla_breached"`
	SLADueAt           *time.Time `json:"sla_due_at"`
	SatisfactionRating *float64   `json:"satisfaction_rating"`
	CreatedAt          time.Time  `json:"created_at"`
}

// Touchpoint is a row of cs_touchpoints.
type Touchpoint struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	CustomerName string    `json:"customer_name"`
	CreatedAt    time.Time `json:"created_at"`
}

// Opportunity is a row of cs_opportunities.
type Opportunity struct {
	ID           string  `json:"id"`
	Stage        string  `json:"stage"`
	Value        float64 `json:"value"`
	CustomerName string  `json:"customer_name"`
}

// Visit is a row of cs_visits.
type Visit struct {
	ID           string     `json:"id"`
	Status       string     `json:"status"`
	CustomerName string     `json:"customer_name"`
	ScheduledAt  *time.Time `json:"scheduled_at"`
}

// ============================================================
// RH / comunicação interna: tabelas lidas pelo orquestrador
// ============================================================

// Employee is a row of employees.
type Employee struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Department string `json:"department"`
	Active     bool   `json:"active"`
}

// Complaint is a row of ouvidoria (internal complaints channel).
type Complaint struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

// Announcement is a row of announcements.
type Announcement struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	PublishedAt *time.Time `json:"published_at"`
}

// TimeBankEntry is a row of time_bank (saldo do banco de horas).
type TimeBankEntry struct {
	EmployeeID   string  `json:"employee_id"`
	EmployeeName string  `json:"employee_name"`
	BalanceHours float64 `json:"balance_hours"`
}
