// Package ratelimit spaces out calls to external services with one token
// bucket per service. A burst of one turns each bucket into a minimum
// interval between the starts of consecutive calls; time spent inside a slow
// call counts toward the next interval.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/municipal-distances/internal/metrics"
)

// Limiter manages per-service courtesy intervals.
type Limiter struct {
	mu              sync.Mutex
	limiters        map[string]*rate.Limiter
	intervals       map[string]time.Duration
	defaultInterval time.Duration
}

// Config holds limiter configuration.
type Config struct {
	// Intervals maps a service name to the minimum spacing between its calls.
	Intervals map[string]time.Duration
	// DefaultInterval applies to services without an entry. Zero disables pacing.
	DefaultInterval time.Duration
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	intervals := make(map[string]time.Duration, len(cfg.Intervals))
	for service, d := range cfg.Intervals {
		intervals[service] = d
	}
	return &Limiter{
		limiters:        make(map[string]*rate.Limiter),
		intervals:       intervals,
		defaultInterval: cfg.DefaultInterval,
	}
}

// Wait blocks until service may be called again, respecting the context. The
// first call to a service never waits.
func (l *Limiter) Wait(ctx context.Context, service string) error {
	limiter := l.limiterFor(service)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait %s: %w", service, err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(service, waited)
	}
	return nil
}

// Interval reports the spacing applied to service.
func (l *Limiter) Interval(service string) time.Duration {
	if d, ok := l.intervals[service]; ok {
		return d
	}
	return l.defaultInterval
}

func (l *Limiter) limiterFor(service string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, exists := l.limiters[service]
	if !exists {
		limit := rate.Inf
		if d := l.Interval(service); d > 0 {
			limit = rate.Every(d)
		}
		limiter = rate.NewLimiter(limit, 1)
		l.limiters[service] = limiter
	}
	return limiter
}
