package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextrole/conveyor/internal/dedup"
	"github.com/nextrole/conveyor/internal/model"
	"github.com/nextrole/conveyor/internal/normalize"
)

// SourceStats counts what one source contributed to a cycle.
type SourceStats struct {
	Fetched    int
	Rejected   int
	Created    int
	Resighted  int
	Duplicates int
	Failures   int
}

// Stats summarizes one ingestion cycle across all sources.
type Stats struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Sources   map[model.JobSource]SourceStats

	// SourceErrors holds the fetch error for each source whose batch could
	// not be retrieved at all. Sources that fetched but had individual
	// postings fail are counted in their SourceStats instead.
	SourceErrors map[model.JobSource]error
}

// Totals sums the per-source counters.
func (s Stats) Totals() SourceStats {
	var t SourceStats
	for _, src := range s.Sources {
		t.Fetched += src.Fetched
		t.Rejected += src.Rejected
		t.Created += src.Created
		t.Resighted += src.Resighted
		t.Duplicates += src.Duplicates
		t.Failures += src.Failures
	}
	return t
}

// Pipeline owns one full ingestion cycle: fetch a batch from every enabled
// source, normalize each posting, and resolve its identity through the
// dedup engine.
type Pipeline struct {
	adapters   []model.SourceAdapter
	normalizer *normalize.Normalizer
	engine     *dedup.Engine
	workers    int
	logger     *slog.Logger
}

// NewPipeline wires a pipeline. workers bounds how many sources fetch
// concurrently; values below 1 fall back to 1.
func NewPipeline(
	adapters []model.SourceAdapter,
	normalizer *normalize.Normalizer,
	engine *dedup.Engine,
	workers int,
	logger *slog.Logger,
) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		adapters:   adapters,
		normalizer: normalizer,
		engine:     engine,
		workers:    workers,
		logger:     logger,
	}
}

// RunCycle runs one ingestion cycle over all sources. A source failing to
// fetch does not stop the others, and a single bad posting does not stop
// its source's batch: fetch errors land in Stats.SourceErrors, per-posting
// problems in the counters. The returned error is non-nil only when ctx
// was cancelled mid-cycle.
func (p *Pipeline) RunCycle(ctx context.Context) (Stats, error) {
	stats := Stats{
		RunID:        uuid.NewString(),
		StartedAt:    time.Now(),
		Sources:      make(map[model.JobSource]SourceStats, len(p.adapters)),
		SourceErrors: make(map[model.JobSource]error),
	}
	logger := p.logger.With("run_id", stats.RunID)
	logger.Info("ingest cycle starting", "sources", len(p.adapters))

	type result struct {
		source model.JobSource
		stats  SourceStats
		err    error
	}

	results := make(chan result, len(p.adapters))
	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup
	for _, adapter := range p.adapters {
		wg.Add(1)
		go func(a model.SourceAdapter) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			st, err := p.runSource(ctx, a, logger)
			results <- result{source: a.Source(), stats: st, err: err}
		}(adapter)
	}
	wg.Wait()
	close(results)

	for r := range results {
		stats.Sources[r.source] = r.stats
		if r.err != nil {
			stats.SourceErrors[r.source] = r.err
		}
	}

	stats.Duration = time.Since(stats.StartedAt)
	t := stats.Totals()
	logger.Info("ingest cycle complete",
		"duration", stats.Duration.Round(time.Millisecond).String(),
		"fetched", t.Fetched,
		"created", t.Created,
		"resighted", t.Resighted,
		"duplicates", t.Duplicates,
		"rejected", t.Rejected,
		"failures", t.Failures,
		"source_errors", len(stats.SourceErrors),
	)
	return stats, ctx.Err()
}

// runSource fetches one source's batch and runs every posting through
// normalization and identity resolution.
func (p *Pipeline) runSource(ctx context.Context, adapter model.SourceAdapter, logger *slog.Logger) (SourceStats, error) {
	var st SourceStats
	source := adapter.Source()

	raws, err := adapter.Fetch(ctx)
	if err != nil {
		logger.Error("source fetch failed", "source", source, "error", err)
		return st, fmt.Errorf("fetching %s: %w", source, err)
	}
	st.Fetched = len(raws)

	for _, raw := range raws {
		if ctx.Err() != nil {
			return st, ctx.Err()
		}

		job, err := p.normalizer.Normalize(raw)
		if err != nil {
			// The normalizer already logged rejections with their reason.
			var verr *model.ValidationError
			if errors.As(err, &verr) {
				st.Rejected++
				continue
			}
			st.Failures++
			logger.Error("normalize failed",
				"source", source,
				"external_id", raw.ExternalID,
				"error", err,
			)
			continue
		}

		outcome, _, err := p.engine.Ingest(ctx, job)
		if err != nil {
			st.Failures++
			logger.Error("ingest failed",
				"source", source,
				"job_id", job.ID,
				"error", err,
			)
			continue
		}
		switch outcome {
		case dedup.OutcomeCreated:
			st.Created++
		case dedup.OutcomeResighted:
			st.Resighted++
		case dedup.OutcomeDuplicate:
			st.Duplicates++
		}
	}

	logger.Info("source ingested",
		"source", source,
		"fetched", st.Fetched,
		"created", st.Created,
		"resighted", st.Resighted,
		"duplicates", st.Duplicates,
		"rejected", st.Rejected,
		"failures", st.Failures,
	)
	return st, nil
}
