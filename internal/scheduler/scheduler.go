package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nextrole/conveyor/internal/ingest"
)

// Ingester runs one ingestion cycle over all sources.
type Ingester interface {
	RunCycle(ctx context.Context) (ingest.Stats, error)
}

// Sweeper runs one lifecycle pass over the catalog.
type Sweeper interface {
	Sweep(ctx context.Context) (ingest.SweepStats, error)
}

// Scheduler owns the daemon's two periodic loops: frequent ingest cycles
// and the slower lifecycle sweep. It wraps robfig/cron so overlapping runs
// of the same loop are skipped rather than stacked.
type Scheduler struct {
	cron        *cron.Cron
	pipeline    Ingester
	sweeper     Sweeper
	ingestEvery time.Duration
	sweepEvery  time.Duration
	logger      *slog.Logger
}

// New creates a scheduler running ingest cycles every ingestEvery and
// sweeps every sweepEvery.
func New(
	pipeline Ingester,
	sweeper Sweeper,
	ingestEvery, sweepEvery time.Duration,
	logger *slog.Logger,
) *Scheduler {
	cl := cronLogger{logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.SkipIfStillRunning(cl)),
		),
		pipeline:    pipeline,
		sweeper:     sweeper,
		ingestEvery: ingestEvery,
		sweepEvery:  sweepEvery,
		logger:      logger,
	}
}

// Start registers both loops and starts the cron. It also kicks off one
// immediate ingest-then-sweep run so a fresh daemon does useful work before
// the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc("@every "+s.ingestEvery.String(), func() {
		s.runIngest(ctx)
	}); err != nil {
		return fmt.Errorf("scheduling ingest: %w", err)
	}
	if _, err := s.cron.AddFunc("@every "+s.sweepEvery.String(), func() {
		s.runSweep(ctx)
	}); err != nil {
		return fmt.Errorf("scheduling sweep: %w", err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started",
		"ingest_every", s.ingestEvery.String(),
		"sweep_every", s.sweepEvery.String(),
	)

	go func() {
		s.runIngest(ctx)
		s.runSweep(ctx)
	}()
	return nil
}

// Stop halts scheduling and waits for in-flight runs started by the cron to
// finish. Cancel the context passed to Start first so long cycles bail out.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runIngest(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.pipeline.RunCycle(ctx); err != nil {
		s.logger.Error("ingest cycle aborted", "error", err)
	}
}

func (s *Scheduler) runSweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.sweeper.Sweep(ctx); err != nil {
		s.logger.Error("sweep aborted", "error", err)
	}
}

// cronLogger routes the cron's own chatter through slog: scheduling noise
// at debug, real problems at error.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, kv ...any) {
	c.l.Debug(msg, kv...)
}

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.l.Error(msg, append(kv, "error", err)...)
}
