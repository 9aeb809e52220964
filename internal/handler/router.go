package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/intranet-sector-agent-go/internal/domain"
	"github.com/boddenberg/intranet-sector-agent-go/internal/infra/observability"
	"github.com/boddenberg/intranet-sector-agent-go/internal/port"
	"github.com/boddenberg/intranet-sector-agent-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

const healthCheckTimeout = 3 * time.Second

// RouterDeps groups what the HTTP layer needs.
type RouterDeps struct {
	Agent    *service.SectorAgent
	Sectors  port.SectorRegistry
	Health   []port.HealthChecker
	Metrics  *observability.Metrics
	Logger   *zap.Logger
	Fallback string
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(d.Logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(CORSMiddleware())
	r.Use(OptionsOK)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(d.Health, d.Logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(d.Metrics.Registry, promhttp.HandlerOpts{}))

	agent := sectorAgentHandler(d.Agent, d.Metrics, d.Logger)

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.With(LimitBody).Post("/sector-agent", agent)
		r.Get("/sectors", sectorsHandler(d.Sectors, d.Fallback))
		r.Get("/metrics/agent", agentMetricsHandler(d.Metrics))
	})

	// Path used by the intranet frontend when it talked to the edge function.
	r.With(LimitBody).Post("/functions/v1/sector-agent", agent)

	return r
}

// ============================================================
// Operational
// ============================================================

func healthzHandler(checkers []port.HealthChecker, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "sector-agent", Status: "healthy", LastChecked: now},
		}
		overallStatus := "healthy"

		for _, c := range checkers {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			start := time.Now()
			err := c.HealthCheck(ctx)
			cancel()

			sh := domain.ServiceHealth{
				Name:        c.Name(),
				Status:      "healthy",
				LatencyMs:   time.Since(start).Milliseconds(),
				LastChecked: now,
			}
			if err != nil {
				sh.Status = "degraded"
				sh.Error = err.Error()
				overallStatus = "degraded"
				logger.Warn("health check failed", zap.String("service", c.Name()), zap.Error(err))
			}
			services = append(services, sh)
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func agentMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetAgentSnapshot())
	}
}

func sectorsHandler(registry port.SectorRegistry, fallback string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, domain.SectorList{
			Default: fallback,
			Sectors: registry.Sectors(),
		})
	}
}
