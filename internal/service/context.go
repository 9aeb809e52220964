package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/intranet-sector-agent-go/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Section headers of the context bundle.
const (
	headerLiveERP  = "## 📊 DADOS EM TEMPO REAL (HOLDPRINT)"
	headerHistory  = "## 📚 HISTÓRICO SINCRONIZADO"
	headerKanban   = "## 📋 KANBAN DE PRODUÇÃO"
	livePageSize   = 20
	historyLimit   = 50
	historyPerType = 10
	historyExcerpt = 600
	supportLimit   = 100
)

// ============================================================
// Live ERP
// ============================================================

// LiveSummary fetches page 1 of every endpoint of the profile concurrently
// and renders one summary per endpoint, in endpoint-list order. A failing
// endpoint becomes a warning line and never affects the others.
func (a *SectorAgent) LiveSummary(ctx context.Context, profile domain.SectorProfile) string {
	if len(profile.Endpoints) == 0 {
		return ""
	}
	ctx, span := tracer.Start(ctx, "SectorAgent.LiveSummary")
	defer span.End()

	start := time.Now()
	defer func() { a.metrics.RecordRequestDuration("live_erp", time.Since(start)) }()

	window := domain.CurrentMonthWindow(a.now())
	lines := make([]string, len(profile.Endpoints))

	var g errgroup.Group
	for i, name := range profile.Endpoints {
		i, name := i, name
		g.Go(func() error {
			ep, ok := a.registry.Endpoint(name)
			if !ok {
				lines[i] = SummarizeFailure(name, fmt.Errorf("endpoint não configurado"))
				return nil
			}
			recs, err := a.erp.Fetch(ctx, ep, domain.FetchQuery{Page: 1, PageSize: livePageSize, Window: &window})
			if err != nil {
				a.metrics.IncrExternalError("holdprint/" + name)
				a.logger.Warn("holdprint fetch failed",
					zap.String("endpoint", name),
					zap.Error(err),
				)
				lines[i] = SummarizeFailure(name, err)
				return nil
			}
			lines[i] = SummarizeRecords(ep, recs)
			return nil
		})
	}
	_ = g.Wait()

	return headerLiveERP + "\n" + strings.Join(lines, "\n")
}

// ============================================================
// Historical documents
// ============================================================

// HistoryContext renders recent synchronized documents grouped by endpoint.
// Store failures and empty results yield "".
func (a *SectorAgent) HistoryContext(ctx context.Context, profile domain.SectorProfile) string {
	if a.docs == nil || len(profile.Endpoints) == 0 {
		return ""
	}
	ctx, span := tracer.Start(ctx, "SectorAgent.HistoryContext")
	defer span.End()

	docs, err := a.docs.RecentDocuments(ctx, profile.Endpoints, historyLimit)
	if err != nil {
		a.metrics.IncrExternalError("documents")
		a.logger.Warn("history fetch failed", zap.String("sector", profile.ID), zap.Error(err))
		return ""
	}
	return a.renderHistory(profile, docs)
}

func (a *SectorAgent) renderHistory(profile domain.SectorProfile, docs []domain.StoredDocument) string {
	if len(docs) == 0 {
		return ""
	}
	grouped := make(map[string][]domain.StoredDocument)
	for _, d := range docs {
		grouped[d.Metadata.Endpoint] = append(grouped[d.Metadata.Endpoint], d)
	}

	var b strings.Builder
	b.WriteString(headerHistory)
	for _, name := range profile.Endpoints {
		group := grouped[name]
		if len(group) == 0 {
			continue
		}
		label := name
		if ep, ok := a.registry.Endpoint(name); ok {
			label = ep.Label
		}
		fmt.Fprintf(&b, "\n### %s (%d documentos recentes)", label, len(group))
		for i, d := range group {
			if i == historyPerType {
				break
			}
			b.WriteString("\n- ")
			b.WriteString(truncate(strings.Join(strings.Fields(d.Content), " "), historyExcerpt))
		}
	}
	if b.Len() == len(headerHistory) {
		return ""
	}
	return b.String()
}

// ============================================================
// Customer Success tables
// ============================================================

// TicketsContext renders support tickets, touchpoints, opportunities and
// visits. Each table is its own block; a failing table drops only its block.
func (a *SectorAgent) TicketsContext(ctx context.Context, profile domain.SectorProfile) string {
	if a.support == nil || !profile.UsesTickets {
		return ""
	}
	ctx, span := tracer.Start(ctx, "SectorAgent.TicketsContext")
	defer span.End()

	blocks := make([]string, 4)
	var g errgroup.Group
	g.Go(func() error {
		rows, err := a.support.ListSupportTickets(ctx, supportLimit)
		if a.tableOK("support_tickets", err) {
			blocks[0] = renderTickets(rows, a.now())
		}
		return nil
	})
	g.Go(func() error {
		rows, err := a.support.ListTouchpoints(ctx, supportLimit)
		if a.tableOK("cs_touchpoints", err) {
			blocks[1] = renderTouchpoints(rows)
		}
		return nil
	})
	g.Go(func() error {
		rows, err := a.support.ListOpportunities(ctx, supportLimit)
		if a.tableOK("cs_opportunities", err) {
			blocks[2] = renderOpportunities(rows)
		}
		return nil
	})
	g.Go(func() error {
		rows, err := a.support.ListVisits(ctx, supportLimit)
		if a.tableOK("cs_visits", err) {
			blocks[3] = renderVisits(rows)
		}
		return nil
	})
	_ = g.Wait()

	return joinBlocks(blocks)
}

// InternalDBContext renders employees, ouvidoria, announcements and the
// time bank for the orchestrator.
func (a *SectorAgent) InternalDBContext(ctx context.Context, profile domain.SectorProfile) string {
	if a.support == nil || !profile.UsesInternalDB {
		return ""
	}
	ctx, span := tracer.Start(ctx, "SectorAgent.InternalDBContext")
	defer span.End()

	blocks := make([]string, 4)
	var g errgroup.Group
	g.Go(func() error {
		rows, err := a.support.ListEmployees(ctx, supportLimit*5)
		if a.tableOK("employees", err) {
			blocks[0] = renderEmployees(rows)
		}
		return nil
	})
	g.Go(func() error {
		rows, err := a.support.ListComplaints(ctx, supportLimit)
		if a.tableOK("ouvidoria", err) {
			blocks[1] = renderComplaints(rows)
		}
		return nil
	})
	g.Go(func() error {
		rows, err := a.support.ListAnnouncements(ctx, 10)
		if a.tableOK("announcements", err) {
			blocks[2] = renderAnnouncements(rows)
		}
		return nil
	})
	g.Go(func() error {
		rows, err := a.support.ListTimeBank(ctx, supportLimit*5)
		if a.tableOK("time_bank", err) {
			blocks[3] = renderTimeBank(rows)
		}
		return nil
	})
	_ = g.Wait()

	return joinBlocks(blocks)
}

func (a *SectorAgent) tableOK(table string, err error) bool {
	if err == nil {
		return true
	}
	a.metrics.IncrExternalError("supabase/" + table)
	a.logger.Warn("support table fetch failed", zap.String("table", table), zap.Error(err))
	return false
}

// ============================================================
// Kanban
// ============================================================

// KanbanContext returns the scraped board, or a visible placeholder when
// the page could not be read.
func (a *SectorAgent) KanbanContext(ctx context.Context, profile domain.SectorProfile) string {
	if !profile.UsesKanban {
		return ""
	}
	if a.kanban == nil {
		return kanbanPlaceholder("scraper não configurado")
	}
	ctx, span := tracer.Start(ctx, "SectorAgent.KanbanContext")
	defer span.End()

	text, err := a.kanban.Scrape(ctx)
	if err != nil {
		reason := err.Error()
		var unavailable *domain.ErrScrapeUnavailable
		if errors.As(err, &unavailable) {
			reason = unavailable.Reason
		}
		a.metrics.IncrExternalError("kanban")
		a.logger.Warn("kanban scrape unavailable", zap.String("reason", reason))
		return kanbanPlaceholder(reason)
	}
	return headerKanban + "\n" + text
}

func kanbanPlaceholder(reason string) string {
	return headerKanban + "\n⚠️ Kanban de produção indisponível no momento (" + reason + "). " +
		"Não conclua que não há atividade na produção: informe que o quadro não pôde ser consultado."
}

func joinBlocks(blocks []string) string {
	kept := blocks[:0:0]
	for _, b := range blocks {
		if b != "" {
			kept = append(kept, b)
		}
	}
	return strings.Join(kept, "\n\n")
}
