package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/boddenberg/intranet-sector-agent-go/internal/domain"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var brl = message.NewPrinter(language.BrazilianPortuguese)

// formatBRL renders v as Brazilian reais, e.g. R$ 1.234,50.
func formatBRL(v float64) string {
	return brl.Sprintf("R$ %.2f", v)
}

// Budget states as returned by the ERP.
const (
	budgetOpen = 1
	budgetLost = 2
	budgetWon  = 3
)

// BudgetStats aggregates budgets ("oportunidades").
type BudgetStats struct {
	Total         int
	Open          int
	Lost          int
	Won           int
	Other         int
	ProposalTotal float64
}

// ComputeBudgetStats counts budgets by state and sums, per budget, the
// highest proposal price.
func ComputeBudgetStats(raw []json.RawMessage) BudgetStats {
	var s BudgetStats
	for _, b := range decodeObjects(raw) {
		s.Total++
		state, _ := b.num("state", "status", "budgetState")
		switch int(state) {
		case budgetOpen:
			s.Open++
		case budgetLost:
			s.Lost++
		case budgetWon:
			s.Won++
		default:
			s.Other++
		}

		var top float64
		for _, p := range b.list("proposals", "budgetProposals") {
			if price, ok := p.num("totalPrice", "price", "total", "value"); ok && price > top {
				top = price
			}
		}
		s.ProposalTotal += top
	}
	return s
}

// FinanceStats aggregates expenses or incomes.
type FinanceStats struct {
	Count    int
	Total    float64
	ByStatus map[string]int
}

// ComputeFinanceStats sums amounts and counts entries by status.
func ComputeFinanceStats(raw []json.RawMessage) FinanceStats {
	s := FinanceStats{ByStatus: map[string]int{}}
	for _, e := range decodeObjects(raw) {
		s.Count++
		if v, ok := e.num("amount", "value", "totalValue", "total"); ok {
			s.Total += v
		}
		status := strings.ToLower(e.str("status", "paymentStatus"))
		if status == "" {
			status = "sem status"
		}
		s.ByStatus[status]++
	}
	return s
}

// statusLabels translates the finance status vocabulary.
var statusLabels = map[string]string{
	"pending":  "pendentes",
	"paid":     "pagas",
	"received": "recebidas",
	"overdue":  "vencidas",
}

// SummarizeRecords reduces one endpoint page to a short text block.
func SummarizeRecords(endpoint domain.EndpointConfig, raw []json.RawMessage) string {
	recs := decodeObjects(raw)
	if len(recs) == 0 {
		return noRecords(endpoint.Name)
	}

	label := endpoint.Label
	switch endpoint.Name {
	case "customers":
		return summarizeCustomers(label, recs)
	case "suppliers":
		return summarizeSuppliers(label, recs)
	case "budgets":
		s := ComputeBudgetStats(raw)
		return fmt.Sprintf("%s: %d no período | ganhos: %d | perdidos: %d | em aberto: %d | valor total das propostas: %s",
			label, s.Total, s.Won, s.Lost, s.Open, formatBRL(s.ProposalTotal))
	case "jobs":
		return summarizeJobs(label, recs)
	case "expenses", "incomes":
		s := ComputeFinanceStats(raw)
		return fmt.Sprintf("%s: %d lançamentos | total: %s | %s",
			label, s.Count, formatBRL(s.Total), financeBreakdown(endpoint.Name, s.ByStatus))
	default:
		return fmt.Sprintf("%s: %d registros", label, len(recs))
	}
}

// SummarizeFailure renders a fetch failure for the context.
func SummarizeFailure(endpoint string, err error) string {
	return fmt.Sprintf("%s: ⚠️ %s", endpoint, failureReason(err))
}

func noRecords(endpoint string) string {
	return endpoint + ": Nenhum registro encontrado no período"
}

func failureReason(err error) string {
	var ext *domain.ErrExternalService
	if errors.As(err, &ext) && ext.Err != nil {
		return ext.Err.Error()
	}
	return err.Error()
}

func summarizeCustomers(label string, recs []record) string {
	active := 0
	names := make([]string, 0, 5)
	for _, c := range recs {
		if isActive(c) {
			active++
		}
		if len(names) < 5 {
			if n := c.str("name", "fantasyName", "companyName", "tradeName"); n != "" {
				names = append(names, n)
			}
		}
	}
	out := fmt.Sprintf("%s: %d registros, %d ativos", label, len(recs), active)
	if len(names) > 0 {
		out += ". Exemplos: " + strings.Join(names, ", ")
	}
	return out
}

func isActive(r record) bool {
	if b, ok := r.boolean("active", "isActive", "enabled"); ok {
		return b
	}
	switch strings.ToLower(r.str("status", "situation")) {
	case "active", "ativo", "ativa":
		return true
	}
	return false
}

func summarizeSuppliers(label string, recs []record) string {
	categories := map[string]bool{}
	names := make([]string, 0, 5)
	for _, s := range recs {
		if c := s.str("category", "categoryName", "type", "segment"); c != "" {
			categories[c] = true
		}
		if len(names) < 5 {
			if n := s.str("name", "fantasyName", "companyName", "tradeName"); n != "" {
				names = append(names, n)
			}
		}
	}
	cats := make([]string, 0, len(categories))
	for c := range categories {
		cats = append(cats, c)
	}
	sort.Strings(cats)

	out := fmt.Sprintf("%s: %d registros, %d categorias", label, len(recs), len(cats))
	if len(cats) > 0 {
		out += " (" + strings.Join(cats, ", ") + ")"
	}
	if len(names) > 0 {
		out += ". Exemplos: " + strings.Join(names, ", ")
	}
	return out
}

func summarizeJobs(label string, recs []record) string {
	byStatus := map[string]int{}
	var progressSum float64
	progressN := 0
	for _, j := range recs {
		status := j.str("productionStatus", "status", "stage", "step")
		if status == "" {
			status = "sem status"
		}
		byStatus[status]++
		if p, ok := j.num("progress", "progressPercentage", "percentComplete"); ok {
			progressSum += p
			progressN++
		}
	}
	out := fmt.Sprintf("%s: %d jobs | por status: %s", label, len(recs), formatCounts(byStatus))
	if progressN > 0 {
		out += fmt.Sprintf(" | progresso médio: %.0f%%", progressSum/float64(progressN))
	}
	return out
}

func financeBreakdown(endpoint string, byStatus map[string]int) string {
	order := []string{"pending", "paid", "overdue"}
	if endpoint == "incomes" {
		order = []string{"pending", "received", "overdue"}
	}
	parts := make([]string, 0, len(byStatus))
	seen := map[string]bool{}
	for _, st := range order {
		parts = append(parts, fmt.Sprintf("%s: %d", statusLabels[st], byStatus[st]))
		seen[st] = true
	}
	rest := map[string]int{}
	for st, n := range byStatus {
		if !seen[st] {
			rest[st] = n
		}
	}
	if len(rest) > 0 {
		parts = append(parts, formatCounts(rest))
	}
	return strings.Join(parts, ", ")
}

// formatCounts renders "a: 3, b: 1" sorted by count desc, then key.
func formatCounts(m map[string]int) string {
	if len(m) == 0 {
		return "nenhum"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %d", k, m[k])
	}
	return strings.Join(parts, ", ")
}
