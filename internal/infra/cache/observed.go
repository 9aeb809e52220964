package cache

import (
	"context"
	"time"

	"github.com/boddenberg/intranet-sector-agent-go/internal/infra/observability"
	"github.com/boddenberg/intranet-sector-agent-go/internal/port"
)

// Observed counts hits and misses of a TextCache under one cache label.
type Observed struct {
	inner   port.TextCache
	name    string
	metrics *observability.Metrics
}

// WithMetrics wraps inner so every lookup is reported as name.
func WithMetrics(inner port.TextCache, name string, metrics *observability.Metrics) *Observed {
	return &Observed{inner: inner, name: name, metrics: metrics}
}

func (o *Observed) GetText(ctx context.Context, key string) (string, bool) {
	v, ok := o.inner.GetText(ctx, key)
	if ok {
		o.metrics.IncrCacheHit(o.name)
	} else {
		o.metrics.IncrCacheMiss(o.name)
	}
	return v, ok
}

func (o *Observed) SetText(ctx context.Context, key, value string, ttl time.Duration) {
	o.inner.SetText(ctx, key, value, ttl)
}
