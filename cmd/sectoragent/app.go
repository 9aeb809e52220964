package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/boddenberg/intranet-sector-agent-go/internal/config"
	"github.com/boddenberg/intranet-sector-agent-go/internal/handler"
	"github.com/boddenberg/intranet-sector-agent-go/internal/infra/cache"
	"github.com/boddenberg/intranet-sector-agent-go/internal/infra/client"
	"github.com/boddenberg/intranet-sector-agent-go/internal/infra/events"
	"github.com/boddenberg/intranet-sector-agent-go/internal/infra/llm"
	"github.com/boddenberg/intranet-sector-agent-go/internal/infra/observability"
	"github.com/boddenberg/intranet-sector-agent-go/internal/infra/postgres"
	"github.com/boddenberg/intranet-sector-agent-go/internal/infra/resilience"
	"github.com/boddenberg/intranet-sector-agent-go/internal/infra/supabase"
	"github.com/boddenberg/intranet-sector-agent-go/internal/port"
	"github.com/boddenberg/intranet-sector-agent-go/internal/sector"
	"github.com/boddenberg/intranet-sector-agent-go/internal/service"

	"go.uber.org/zap"
)

// app is the fully wired process. Closers run in reverse order on shutdown.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *observability.Metrics
	registry *sector.Registry
	agent    *service.SectorAgent
	resyncer *service.Resyncer
	router   http.Handler
	closers  []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	// --- Metrics ---
	a.metrics = observability.NewMetrics()

	// --- Sectors ---
	registry, err := sector.Load()
	if err != nil {
		return nil, fmt.Errorf("load sectors: %w", err)
	}
	a.registry = registry

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrentResyncs,
	}

	// --- Clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	// The LLM relay must never be cut by a client-level timeout.
	streamClient := &http.Client{}

	holdprint := client.NewHoldprintClient(
		httpClient,
		cfg.HoldprintBaseURL,
		cfg.HoldprintAPIKey,
		resilience.NewBreakers("holdprint/", logger),
		resilienceCfg,
	)
	// Resync runs with unit tokens on its own breakers; its failures never
	// open the breakers of live fetches.
	resyncERP := client.NewHoldprintClient(
		httpClient,
		cfg.HoldprintBaseURL,
		cfg.HoldprintAPIKey,
		resilience.NewBreakers("holdprint-resync/", logger),
		resilienceCfg,
	)

	var checkers []port.HealthChecker

	// --- Stores ---
	var (
		docs    port.DocumentStore
		support port.SupportStore
	)
	var sb *supabase.Client
	if cfg.SupabaseURL != "" {
		sb = supabase.NewClient(
			httpClient,
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			resilience.NewCircuitBreaker("supabase", logger),
			resilienceCfg,
			logger,
		)
		support = sb
		checkers = append(checkers, sb)
	} else {
		logger.Warn("supabase not configured, tickets and internal tables unavailable")
	}

	switch cfg.DocStoreDriver {
	case config.DocStorePostgres:
		pg, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("document store: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		docs = pg
		checkers = append(checkers, pg)
		logger.Info("document store: postgres")
	default:
		if sb != nil {
			docs = sb
			logger.Info("document store: supabase")
		} else {
			logger.Warn("document store not configured, history and resync disabled")
		}
	}

	// --- Kanban cache ---
	var textCache port.TextCache
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(ctx, cfg.RedisURL, "sector-agent:", logger)
		if err != nil {
			logger.Warn("redis unavailable, using in-memory kanban cache", zap.Error(err))
		} else {
			a.closers = append(a.closers, func() { _ = rc.Close() })
			textCache = rc
			checkers = append(checkers, rc)
		}
	}
	if textCache == nil {
		mc := cache.NewMemory(cfg.KanbanCacheTTL)
		a.closers = append(a.closers, func() { _ = mc.Close() })
		textCache = mc
	}
	kanban := client.NewKanbanScraper(
		httpClient,
		cfg.KanbanURL,
		resilience.NewCircuitBreaker("kanban", logger),
		resilienceCfg,
		cache.WithMetrics(textCache, "kanban", a.metrics),
		cfg.KanbanCacheTTL,
	)

	// --- LLM ---
	gateway, err := llm.NewGateway(streamClient, llm.ProvidersFromConfig(cfg.LLM), cfg.LLM.DefaultProvider, a.metrics, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	// --- Events ---
	var publisher port.EventPublisher = events.Nop{}
	if cfg.NATSURL != "" {
		np, err := events.NewNATSPublisher(cfg.NATSURL, cfg.NATSToken, logger)
		if err != nil {
			logger.Warn("nats unavailable, resync events disabled", zap.Error(err))
		} else {
			a.closers = append(a.closers, np.Close)
			publisher = np
		}
	}

	// --- Services ---
	a.resyncer = service.NewResyncer(service.ResyncDeps{
		Registry:      registry,
		ERP:           resyncERP,
		Store:         docs,
		Publisher:     publisher,
		UnitTokens:    cfg.UnitTokens,
		Units:         config.SyncUnits,
		MaxConcurrent: cfg.MaxConcurrentResyncs,
		Metrics:       a.metrics,
		Logger:        logger.Named("resync"),
	})

	a.agent = service.NewSectorAgent(service.AgentDeps{
		Registry: registry,
		ERP:      holdprint,
		Docs:     docs,
		Support:  support,
		Kanban:   kanban,
		LLM:      gateway,
		Resync:   a.resyncer,
		Metrics:  a.metrics,
		Logger:   logger.Named("agent"),
	})

	// --- Router ---
	a.router = handler.NewRouter(handler.RouterDeps{
		Agent:    a.agent,
		Sectors:  registry,
		Health:   checkers,
		Metrics:  a.metrics,
		Logger:   logger,
		Fallback: registry.Default(),
	})

	return a, nil
}
