package score

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/nextrole/conveyor/internal/model"
)

// ServiceConfig carries the query-facing scoring knobs.
type ServiceConfig struct {
	Cutoff       float64       // results below this total are dropped
	RecommendMin float64       // results at or above are flagged recommended
	Timeout      time.Duration // on-demand scoring budget
}

// Service answers ranked job queries for the application layer. It reads
// the scorable slice of the catalog, scores it, and caches breakdowns so
// on-demand scoring has something to fall back on when it runs out of
// budget.
type Service struct {
	store  model.CatalogStore
	engine *Engine
	batch  *BatchScorer
	cache  model.ScoreCache
	cfg    ServiceConfig
	logger *slog.Logger
}

func NewService(
	store model.CatalogStore,
	engine *Engine,
	batch *BatchScorer,
	cache model.ScoreCache,
	cfg ServiceConfig,
	logger *slog.Logger,
) *Service {
	if cache == nil {
		cache = NopCache{}
	}
	return &Service{
		store:  store,
		engine: engine,
		batch:  batch,
		cache:  cache,
		cfg:    cfg,
		logger: logger,
	}
}

// GetScoredJobs ranks the scorable catalog for one user: total score
// descending, ties broken by most recent posting. Results under the cutoff
// are dropped; results at or above the recommendation floor are flagged.
func (s *Service) GetScoredJobs(ctx context.Context, userID string, criteria model.UserSearchCriteria, page model.Page) ([]model.ScoredJob, error) {
	jobs, err := s.store.ListScorable(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing scorable jobs: %w", err)
	}
	scored, err := s.batch.ScoreAll(ctx, jobs, criteria)
	if err != nil {
		return nil, err
	}

	kept := make([]model.ScoredJob, 0, len(scored))
	for _, sj := range scored {
		if sj.Breakdown.Total < s.cfg.Cutoff {
			continue
		}
		sj.Recommended = sj.Breakdown.Total >= s.cfg.RecommendMin
		kept = append(kept, sj)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Breakdown.Total != kept[j].Breakdown.Total {
			return kept[i].Breakdown.Total > kept[j].Breakdown.Total
		}
		return kept[i].Job.PostedAt.After(kept[j].Job.PostedAt)
	})

	for _, sj := range kept {
		s.cache.Set(ctx, userID, sj.Job.ID, sj.Breakdown)
	}
	s.logger.Debug("catalog scored",
		"user_id", userID,
		"scored", len(scored),
		"returned", len(kept),
	)
	return page.Clip(kept), nil
}

// ScoreJob scores one (user, job) pair within the on-demand budget. A
// duplicate id scores its canonical record. When the budget runs out, a
// cached breakdown is served marked partial; with no cached value the
// caller gets a ScoringTimeoutError.
func (s *Service) ScoreJob(ctx context.Context, userID, jobID string, criteria model.UserSearchCriteria) (model.ScoreBreakdown, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	type answer struct {
		breakdown model.ScoreBreakdown
		err       error
	}
	done := make(chan answer, 1)
	go func() {
		id, err := s.store.Resolve(ctx, jobID)
		if err != nil {
			done <- answer{err: fmt.Errorf("scoring %s: %w", jobID, err)}
			return
		}
		job, err := s.store.GetByID(ctx, id)
		if err != nil {
			done <- answer{err: fmt.Errorf("scoring %s: %w", jobID, err)}
			return
		}
		if !job.Scorable() {
			done <- answer{err: fmt.Errorf("scoring %s: record is %s", jobID, job.State)}
			return
		}
		done <- answer{breakdown: s.engine.Score(job, criteria)}
	}()

	select {
	case a := <-done:
		if a.err != nil {
			return model.ScoreBreakdown{}, a.err
		}
		s.cache.Set(ctx, userID, jobID, a.breakdown)
		return a.breakdown, nil
	case <-ctx.Done():
		if cached, ok := s.cache.Get(context.Background(), userID, jobID); ok {
			cached.Partial = true
			s.logger.Warn("scoring timed out, serving cached breakdown",
				"user_id", userID,
				"job_id", jobID,
			)
			return cached, nil
		}
		return model.ScoreBreakdown{}, &model.ScoringTimeoutError{JobID: jobID}
	}
}
