package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/intranet-sector-agent-go/internal/domain"
)

var closedTicketStatuses = map[string]bool{
	"resolved":  true,
	"closed":    true,
	"resolvido": true,
	"fechado":   true,
}

// TicketStats aggregates support_tickets rows.
type TicketStats struct {
	Total       int
	Open        int
	ByStatus    map[string]int
	ByCategory  map[string]int
	ByPriority  map[string]int
	SLABreached int
	Rated       int
	AvgRating   float64
}

// ComputeTicketStats counts tickets. A ticket breaches SLA when flagged, or
// when its due date has passed while it is still open. The average rating
// only considers rated tickets.
func ComputeTicketStats(tickets []domain.SupportTicket, now time.Time) TicketStats {
	s := TicketStats{
		ByStatus:   map[string]int{},
		ByCategory: map[string]int{},
		ByPriority: map[string]int{},
	}
	var ratingSum float64
	for _, t := range tickets {
		s.Total++
		status := strings.ToLower(strings.TrimSpace(t.Status))
		closed := closedTicketStatuses[status]
		if !closed {
			s.Open++
		}
		s.ByStatus[orNone(status)]++
		s.ByCategory[orNone(t.Category)]++
		s.ByPriority[orNone(strings.ToLower(t.Priority))]++

		if t.SLABreached || (t.SLADueAt != nil && t.SLADueAt.Before(now) && !closed) {
			s.SLABreached++
		}
		if t.SatisfactionRating != nil {
			s.Rated++
			ratingSum += *t.SatisfactionRating
		}
	}
	if s.Rated > 0 {
		s.AvgRating = ratingSum / float64(s.Rated)
	}
	return s
}

func renderTickets(tickets []domain.SupportTicket, now time.Time) string {
	if len(tickets) == 0 {
		return "## 🎫 CHAMADOS DE SUPORTE\nNenhum chamado registrado."
	}
	s := ComputeTicketStats(tickets, now)

	var b strings.Builder
	b.WriteString("## 🎫 CHAMADOS DE SUPORTE\n")
	fmt.Fprintf(&b, "Total: %d | em aberto: %d | SLA estourado: %d\n", s.Total, s.Open, s.SLABreached)
	fmt.Fprintf(&b, "Por status: %s\n", formatCounts(s.ByStatus))
	fmt.Fprintf(&b, "Por categoria: %s\n", formatCounts(s.ByCategory))
	fmt.Fprintf(&b, "Por prioridade: %s", formatCounts(s.ByPriority))
	if s.Rated > 0 {
		fmt.Fprintf(&b, "\nSatisfação média: %.1f (%d avaliações)", s.AvgRating, s.Rated)
	}
	return b.String()
}

func renderTouchpoints(rows []domain.Touchpoint) string {
	if len(rows) == 0 {
		return ""
	}
	byType := map[string]int{}
	for _, r := range rows {
		byType[orNone(r.Type)]++
	}
	return fmt.Sprintf("## 🤝 TOUCHPOINTS CS\n%d registros | por tipo: %s", len(rows), formatCounts(byType))
}

func renderOpportunities(rows []domain.Opportunity) string {
	if len(rows) == 0 {
		return ""
	}
	byStage := map[string]int{}
	var pipeline float64
	for _, r := range rows {
		byStage[orNone(r.Stage)]++
		pipeline += r.Value
	}
	return fmt.Sprintf("## 💼 OPORTUNIDADES CS\n%d oportunidades | pipeline: %s | por etapa: %s",
		len(rows), formatBRL(pipeline), formatCounts(byStage))
}

func renderVisits(rows []domain.Visit) string {
	if len(rows) == 0 {
		return ""
	}
	byStatus := map[string]int{}
	for _, r := range rows {
		byStatus[orNone(r.Status)]++
	}
	return fmt.Sprintf("## 🚗 VISITAS CS\n%d visitas | por status: %s", len(rows), formatCounts(byStatus))
}

func renderEmployees(rows []domain.Employee) string {
	if len(rows) == 0 {
		return ""
	}
	active := 0
	byDept := map[string]int{}
	for _, r := range rows {
		if !r.Active {
			continue
		}
		active++
		byDept[orNone(r.Department)]++
	}
	return fmt.Sprintf("## 👥 COLABORADORES\n%d cadastrados, %d ativos | por departamento: %s",
		len(rows), active, formatCounts(byDept))
}

func renderComplaints(rows []domain.Complaint) string {
	if len(rows) == 0 {
		return ""
	}
	byStatus := map[string]int{}
	byCategory := map[string]int{}
	for _, r := range rows {
		byStatus[orNone(strings.ToLower(r.Status))]++
		byCategory[orNone(r.Category)]++
	}
	return fmt.Sprintf("## 📣 OUVIDORIA\n%d manifestações | por status: %s | por categoria: %s",
		len(rows), formatCounts(byStatus), formatCounts(byCategory))
}

func renderAnnouncements(rows []domain.Announcement) string {
	if len(rows) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## 📰 COMUNICADOS RECENTES")
	for _, r := range rows {
		b.WriteString("\n- ")
		b.WriteString(r.Title)
		if r.PublishedAt != nil {
			b.WriteString(" (" + r.PublishedAt.Format("02/01/2006") + ")")
		}
	}
	return b.String()
}

func renderTimeBank(rows []domain.TimeBankEntry) string {
	if len(rows) == 0 {
		return ""
	}
	var positive, negative int
	var total float64
	for _, r := range rows {
		switch {
		case r.BalanceHours > 0:
			positive++
		case r.BalanceHours < 0:
			negative++
		}
		total += r.BalanceHours
	}
	return fmt.Sprintf("## ⏱️ BANCO DE HORAS\n%d colaboradores | saldo positivo: %d | saldo negativo: %d | saldo total: %.1fh",
		len(rows), positive, negative, total)
}

func orNone(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "não informado"
	}
	return s
}
