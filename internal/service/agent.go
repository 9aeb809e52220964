package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/intranet-sector-agent-go/internal/domain"
	"github.com/boddenberg/intranet-sector-agent-go/internal/infra/observability"
	"github.com/boddenberg/intranet-sector-agent-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("service/agent")

// ResyncTrigger starts a background resync for a sector without waiting.
type ResyncTrigger interface {
	Trigger(ctx context.Context, profile domain.SectorProfile)
}

// AgentDeps holds the collaborators of SectorAgent. Docs, Support, Kanban
// and Resync are optional.
type AgentDeps struct {
	Registry port.SectorRegistry
	ERP      port.RecordFetcher
	Docs     port.DocumentStore
	Support  port.SupportStore
	Kanban   port.KanbanScraper
	LLM      port.LLMGateway
	Resync   ResyncTrigger
	Metrics  *observability.Metrics
	Logger   *zap.Logger
	Now      func() time.Time
}

// SectorAgent builds the per-sector context and opens the LLM stream.
type SectorAgent struct {
	registry port.SectorRegistry
	erp      port.RecordFetcher
	docs     port.DocumentStore
	support  port.SupportStore
	kanban   port.KanbanScraper
	llm      port.LLMGateway
	resync   ResyncTrigger
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewSectorAgent creates the agent service with all dependencies injected.
func NewSectorAgent(d AgentDeps) *SectorAgent {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = observability.NewMetrics()
	}
	return &SectorAgent{
		registry: d.Registry,
		erp:      d.ERP,
		docs:     d.Docs,
		support:  d.Support,
		kanban:   d.Kanban,
		llm:      d.LLM,
		resync:   d.Resync,
		metrics:  d.Metrics,
		logger:   d.Logger,
		now:      d.Now,
	}
}

// Validate checks the conversation before any external call is made.
func (a *SectorAgent) Validate(req domain.AgentRequest) error {
	if len(req.Messages) == 0 {
		return &domain.ErrValidation{Field: "messages", Message: "at least one message is required"}
	}
	for i, m := range req.Messages {
		switch m.Role {
		case domain.RoleUser, domain.RoleAssistant, domain.RoleSystem:
		default:
			return &domain.ErrValidation{
				Field:   "messages",
				Message: fmt.Sprintf("message %d has invalid role %q", i, m.Role),
			}
		}
	}
	return nil
}

// BuildContext runs every fetcher of the profile concurrently and assembles
// the bundle in a fixed order: live ERP, history, tickets, internal DB,
// kanban. Fetchers never fail the bundle; they degrade to "" or a notice.
func (a *SectorAgent) BuildContext(ctx context.Context, profile domain.SectorProfile) *domain.ContextBundle {
	ctx, span := tracer.Start(ctx, "SectorAgent.BuildContext")
	defer span.End()
	span.SetAttributes(attribute.String("sector.id", profile.ID))

	var live, history, tickets, internal, kanban string

	var g errgroup.Group
	g.Go(func() error { live = a.LiveSummary(ctx, profile); return nil })
	g.Go(func() error { history = a.HistoryContext(ctx, profile); return nil })
	g.Go(func() error { tickets = a.TicketsContext(ctx, profile); return nil })
	g.Go(func() error { internal = a.InternalDBContext(ctx, profile); return nil })
	g.Go(func() error { kanban = a.KanbanContext(ctx, profile); return nil })
	_ = g.Wait()

	return domain.NewContextBundle(
		domain.ContextSection{Name: "live_erp", Text: live},
		domain.ContextSection{Name: "history", Text: history},
		domain.ContextSection{Name: "tickets", Text: tickets},
		domain.ContextSection{Name: "internal_db", Text: internal},
		domain.ContextSection{Name: "kanban", Text: kanban},
	)
}

// Prepared is the resolved profile and the final system prompt.
type Prepared struct {
	Profile domain.SectorProfile
	System  string
	Bundle  *domain.ContextBundle
}

// Prepare resolves the sector and builds the system prompt.
func (a *SectorAgent) Prepare(ctx context.Context, req domain.AgentRequest) (*Prepared, error) {
	if err := a.Validate(req); err != nil {
		return nil, err
	}
	profile := a.registry.Resolve(req.Sector)
	bundle := a.BuildContext(ctx, profile)
	return &Prepared{
		Profile: profile,
		System:  composeSystemPrompt(profile, bundle, a.now()),
		Bundle:  bundle,
	}, nil
}

const groundingRules = `REGRAS:
- Use apenas os números presentes nos dados abaixo. Nunca invente valores, quantidades ou nomes.
- Quando um dado estiver indisponível ou marcado com ⚠️, diga isso explicitamente.
- Responda em português do Brasil, de forma objetiva.`

func composeSystemPrompt(profile domain.SectorProfile, bundle *domain.ContextBundle, now time.Time) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(profile.SystemPrompt))
	b.WriteString("\n\n")
	b.WriteString(groundingRules)
	b.WriteString("\n\nData atual: ")
	b.WriteString(now.Format("02/01/2006"))
	if ctxText := bundle.String(); ctxText != "" {
		b.WriteString("\n\n")
		b.WriteString(ctxText)
	}
	return b.String()
}

// Stream prepares the context, fires the background resync and opens the
// provider stream. The caller owns the returned body.
func (a *SectorAgent) Stream(ctx context.Context, req domain.AgentRequest) (*domain.LLMStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "SectorAgent.Stream")
	defer span.End()

	start := time.Now()
	defer func() { a.metrics.RecordRequestDuration("sector_agent", time.Since(start)) }()

	if err := a.Validate(req); err != nil {
		a.metrics.IncrRequest(observability.StatusError)
		return nil, err
	}
	if err := a.llm.Check(req.Provider); err != nil {
		a.metrics.IncrRequest(observability.StatusError)
		a.logger.Error("llm provider unavailable", zap.String("provider", req.Provider), zap.Error(err))
		return nil, err
	}

	prep, err := a.Prepare(ctx, req)
	if err != nil {
		a.metrics.IncrRequest(observability.StatusError)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("sector.id", prep.Profile.ID),
		attribute.String("llm.provider", req.Provider),
		attribute.Int("context.sections", len(prep.Bundle.Sections())),
	)

	if a.resync != nil {
		a.resync.Trigger(ctx, prep.Profile)
	}

	stream, err := a.llm.Open(ctx, req.Provider, prep.System, req.Messages)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		status := observability.StatusError
		var rl *domain.ErrRateLimited
		if errors.As(err, &rl) {
			status = observability.StatusRateLimited
		}
		a.metrics.IncrRequest(status)
		a.logger.Error("llm stream failed",
			zap.String("sector", prep.Profile.ID),
			zap.String("provider", req.Provider),
			zap.Error(err),
		)
		return nil, err
	}

	a.metrics.IncrRequest(observability.StatusSuccess)
	a.logger.Info("sector agent stream opened",
		zap.String("sector", prep.Profile.ID),
		zap.String("provider", stream.Provider),
		zap.Int("system_chars", len(prep.System)),
		zap.Duration("prepare", time.Since(start)),
	)
	return stream, nil
}
