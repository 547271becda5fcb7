package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextrole/conveyor/internal/model"
)

// Sweeper ages catalog records on a slow cadence. Rows past their posted
// application deadline expire; rows with no deadline that have not been
// re-sighted within the staleness window go stale, and stale rows unseen
// for a further grace period expire for good.
type Sweeper struct {
	store     model.CatalogStore
	staleness time.Duration
	grace     time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// Option adjusts sweeper behavior at construction.
type Option func(*Sweeper)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// NewSweeper creates a sweeper over the given store. staleness is how long a
// record may go unseen before it is marked STALE; grace is how much longer a
// STALE record survives before expiring.
func NewSweeper(
	store model.CatalogStore,
	staleness, grace time.Duration,
	logger *slog.Logger,
	opts ...Option,
) *Sweeper {
	s := &Sweeper{
		store:     store,
		staleness: staleness,
		grace:     grace,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SweepStats counts one sweep's transitions.
type SweepStats struct {
	Checked  int
	Expired  int
	Staled   int
	Failures int
}

// Sweep runs one pass over the catalog. A single record failing to
// transition does not stop the pass; failures are counted and logged. The
// returned error is non-nil only when a catalog listing fails or ctx is
// cancelled.
func (s *Sweeper) Sweep(ctx context.Context) (SweepStats, error) {
	var st SweepStats
	now := s.now()

	// Deadline expiry first: a row whose advertised deadline has passed is
	// closed regardless of how recently a source re-sighted it.
	live, err := s.store.ListScorable(ctx)
	if err != nil {
		return st, fmt.Errorf("sweeping: %w", err)
	}
	for _, job := range live {
		if ctx.Err() != nil {
			return st, ctx.Err()
		}
		st.Checked++
		if job.ExpiresAt == nil || !now.After(*job.ExpiresAt) {
			continue
		}
		if err := s.store.MarkExpired(ctx, job.ID); err != nil {
			st.Failures++
			s.logger.Error("expiring job failed", "job_id", job.ID, "error", err)
			continue
		}
		st.Expired++
		s.logger.Debug("job expired", "job_id", job.ID, "deadline", job.ExpiresAt)
	}

	// Staleness: rows without a deadline age out by sighting recency alone.
	unseen, err := s.store.ListUnseenSince(ctx, now.Add(-s.staleness))
	if err != nil {
		return st, fmt.Errorf("sweeping: %w", err)
	}
	expiry := now.Add(-s.staleness - s.grace)
	for _, job := range unseen {
		if ctx.Err() != nil {
			return st, ctx.Err()
		}
		st.Checked++
		if job.ExpiresAt != nil {
			continue // deadline rows expire above, never by staleness
		}
		switch job.State {
		case model.StateActive:
			if err := s.store.MarkStale(ctx, job.ID); err != nil {
				st.Failures++
				s.logger.Error("staling job failed", "job_id", job.ID, "error", err)
				continue
			}
			st.Staled++
			s.logger.Debug("job went stale", "job_id", job.ID, "last_checked", job.LastCheckedAt)
		case model.StateStale:
			if !job.LastCheckedAt.Before(expiry) {
				continue
			}
			if err := s.store.MarkExpired(ctx, job.ID); err != nil {
				st.Failures++
				s.logger.Error("expiring job failed", "job_id", job.ID, "error", err)
				continue
			}
			st.Expired++
			s.logger.Debug("stale job expired", "job_id", job.ID, "last_checked", job.LastCheckedAt)
		}
	}

	s.logger.Info("sweep complete",
		"checked", st.Checked,
		"expired", st.Expired,
		"staled", st.Staled,
		"failures", st.Failures,
	)
	return st, nil
}
