// Package resilience provides fault-tolerance patterns:
// retry with exponential backoff, per-resource circuit breakers, and bulkhead.
package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Config holds resilience parameters.
// MaxRetries = 0 means attempt once.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int
}

// RetryWithBackoff executes fn with exponential backoff + jitter.
// It respects context cancellation.
func RetryWithBackoff(ctx context.Context, cfg Config, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !Retryable(lastErr) {
			return lastErr
		}

		if attempt < cfg.MaxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * cfg.InitialBackoff
			wait := backoff
			if half := int64(backoff / 2); half > 0 {
				wait += time.Duration(rand.Int63n(half))
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	return lastErr
}

// permanentError marks an error that must not be retried.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so RetryWithBackoff returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// rejectedError marks an upstream refusal of the caller's credentials.
// The resource itself is healthy, so it is neither retried nor counted by
// circuit breakers.
type rejectedError struct{ err error }

func (r *rejectedError) Error() string { return r.err.Error() }
func (r *rejectedError) Unwrap() error { return r.err }

// Rejected wraps err as a credential rejection.
func Rejected(err error) error {
	if err == nil {
		return nil
	}
	return &rejectedError{err: err}
}

// IsRejected reports whether err is (or wraps) a credential rejection.
func IsRejected(err error) bool {
	var r *rejectedError
	return errors.As(err, &r)
}

// Retryable reports whether err may be retried.
func Retryable(err error) bool {
	switch err.(type) {
	case *permanentError, *rejectedError:
		return false
	}
	return true
}

// NewCircuitBreaker creates a circuit breaker with sensible defaults.
// State transitions are logged when logger is not nil.
func NewCircuitBreaker(name string, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,                // half-open: allow 3 requests
		Interval:    30 * time.Second, // closed: reset counters every 30s
		Timeout:     10 * time.Second, // open -> half-open after 10s
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsRejected(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn("circuit breaker state change",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			}
		},
	})
}

// Breakers hands out one circuit breaker per resource name, created lazily,
// so an unstable endpoint trips without affecting its siblings.
type Breakers struct {
	prefix string
	logger *zap.Logger

	mu sync.Mutex
	m  map[string]*gobreaker.CircuitBreaker
}

// NewBreakers creates an empty breaker set; names are prefixed with prefix.
func NewBreakers(prefix string, logger *zap.Logger) *Breakers {
	return &Breakers{prefix: prefix, logger: logger, m: make(map[string]*gobreaker.CircuitBreaker)}
}

// For returns the breaker of the named resource.
func (b *Breakers) For(name string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	cb, ok := b.m[name]
	if !ok {
		cb = NewCircuitBreaker(b.prefix+name, b.logger)
		b.m[name] = cb
	}
	return cb
}

// Bulkhead limits concurrent access to a resource.
type Bulkhead struct {
	sem chan struct{}
}

// NewBulkhead creates a bulkhead with the given max concurrency.
func NewBulkhead(maxConcurrency int) *Bulkhead {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Bulkhead{sem: make(chan struct{}, maxConcurrency)}
}

// Acquire blocks until a slot is available or context is cancelled.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	select {
	case b.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot.
func (b *Bulkhead) Release() {
	<-b.sem
}

// InUse reports how many slots are taken.
func (b *Bulkhead) InUse() int {
	return len(b.sem)
}
