package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nextrole/conveyor/internal/model"
)

// SourceRateLimiter enforces a minimum delay between fetches against the
// same upstream board. Fetching is the adapter's own concern, so the limiter
// sits in front of the adapter rather than inside the pipeline.
type SourceRateLimiter struct {
	mu       sync.Mutex
	lastCall map[model.JobSource]time.Time
	delayFor func(model.JobSource) time.Duration
}

// NewSourceRateLimiter creates a limiter resolving each source's delay
// through delayFor, so per-source overrides stay in config.
func NewSourceRateLimiter(delayFor func(model.JobSource) time.Duration) *SourceRateLimiter {
	return &SourceRateLimiter{
		lastCall: make(map[model.JobSource]time.Time),
		delayFor: delayFor,
	}
}

// Wait blocks until enough time has passed since the last fetch against
// source. Returns an error if the context is cancelled while waiting.
func (r *SourceRateLimiter) Wait(ctx context.Context, source model.JobSource) error {
	r.mu.Lock()
	last, ok := r.lastCall[source]
	now := time.Now()

	if !ok {
		// First fetch for this source, no wait needed.
		r.lastCall[source] = now
		r.mu.Unlock()
		return nil
	}

	minDelay := r.delayFor(source)
	elapsed := now.Sub(last)
	if elapsed >= minDelay {
		r.lastCall[source] = now
		r.mu.Unlock()
		return nil
	}

	// Wait out the remainder.
	remaining := minDelay - elapsed
	r.mu.Unlock()

	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limiter wait for %s: %w", source, ctx.Err())
	case <-time.After(remaining):
	}

	r.mu.Lock()
	r.lastCall[source] = time.Now()
	r.mu.Unlock()

	return nil
}

// LimitedAdapter is a decorator that rate-limits the wrapped source adapter.
type LimitedAdapter struct {
	inner   model.SourceAdapter
	limiter *SourceRateLimiter
}

var _ model.SourceAdapter = (*LimitedAdapter)(nil)

// NewLimitedAdapter wraps an adapter with source-level rate limiting.
// Adapters hitting the same source should share the limiter instance.
func NewLimitedAdapter(inner model.SourceAdapter, limiter *SourceRateLimiter) *LimitedAdapter {
	return &LimitedAdapter{inner: inner, limiter: limiter}
}

func (a *LimitedAdapter) Source() model.JobSource {
	return a.inner.Source()
}

// Fetch waits for the rate limiter to allow a request, then delegates to the
// wrapped adapter.
func (a *LimitedAdapter) Fetch(ctx context.Context) ([]model.RawPosting, error) {
	if err := a.limiter.Wait(ctx, a.inner.Source()); err != nil {
		return nil, err
	}
	return a.inner.Fetch(ctx)
}
