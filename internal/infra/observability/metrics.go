package observability

import (
	"time"

	"github.com/boddenberg/intranet-sector-agent-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Request outcome labels.
const (
	StatusSuccess     = "success"
	StatusError       = "error"
	StatusRateLimited = "rate_limited"
)

// Metrics holds all Prometheus metrics for the sector agent.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	llmRelays       *prometheus.CounterVec
	resyncRecords   *prometheus.CounterVec
	requestsTotal   *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sector_agent_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sector_agent_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sector_agent_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sector_agent_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		llmRelays: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sector_agent_llm_relays_total",
				Help: "LLM streams opened, by provider and upstream status.",
			},
			[]string{"provider", "status"},
		),
		resyncRecords: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sector_agent_resync_records_total",
				Help: "ERP records upserted into the document store by the resync.",
			},
			[]string{"endpoint"},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sector_agent_requests_total",
				Help: "Total requests processed.",
			},
			[]string{"status"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrLLMRelay counts provider stream events: the upstream status on open
// and the relay outcome once the stream ends.
func (m *Metrics) IncrLLMRelay(provider, status string) {
	m.llmRelays.WithLabelValues(provider, status).Inc()
}

// AddResyncRecords counts records upserted for an endpoint.
func (m *Metrics) AddResyncRecords(endpoint string, n int) {
	m.resyncRecords.WithLabelValues(endpoint).Add(float64(n))
}

// IncrRequest increments the request counter with a status label.
func (m *Metrics) IncrRequest(status string) {
	m.requestsTotal.WithLabelValues(status).Inc()
}

// GetAgentSnapshot returns a snapshot of agent-related metrics suitable for the
// GET /v1/metrics/agent endpoint.
func (m *Metrics) GetAgentSnapshot() *domain.AgentMetrics {
	success := getCounterValue(m.requestsTotal, StatusSuccess)
	errorCount := getCounterValue(m.requestsTotal, StatusError)
	rateLimited := getCounterValue(m.requestsTotal, StatusRateLimited)
	totalRequests := success + errorCount + rateLimited

	cacheHits := getCounterValue(m.cacheHits, "kanban")
	cacheMisses := getCounterValue(m.cacheMisses, "kanban")

	errorRate := float64(0)
	cacheHitRate := float64(0)
	if totalRequests > 0 {
		errorRate = (errorCount + rateLimited) / totalRequests
	}
	if cacheHits+cacheMisses > 0 {
		cacheHitRate = cacheHits / (cacheHits + cacheMisses)
	}

	return &domain.AgentMetrics{
		TotalRequests:   int64(totalRequests),
		ErrorRate:       errorRate,
		RateLimited:     int64(rateLimited),
		ExternalErrors:  int64(sumCounterVec(m.externalErrors)),
		ResyncedRecords: int64(sumCounterVec(m.resyncRecords)),
		CacheHitRate:    cacheHitRate,
		Period:          "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}

// sumCounterVec adds up every child of a CounterVec.
func sumCounterVec(cv *prometheus.CounterVec) float64 {
	ch := make(chan prometheus.Metric)
	go func() {
		cv.Collect(ch)
		close(ch)
	}()

	var total float64
	for metric := range ch {
		m := &dto.Metric{}
		if err := metric.Write(m); err != nil {
			continue
		}
		if m.Counter != nil && m.Counter.Value != nil {
			total += *m.Counter.Value
		}
	}
	return total
}
