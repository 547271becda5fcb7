package score

import (
	"context"
	"fmt"
	"sync"

	"github.com/nextrole/conveyor/internal/model"
)

// BatchScorer scores catalog slices in bounded chunks. Cancellation is
// cooperative, checked between chunks, so a shutdown never waits on a full
// catalog pass.
type BatchScorer struct {
	engine    *Engine
	chunkSize int
	workers   int
}

func NewBatchScorer(engine *Engine, chunkSize, workers int) *BatchScorer {
	if chunkSize <= 0 {
		chunkSize = 100
	}
	if workers <= 0 {
		workers = 1
	}
	return &BatchScorer{engine: engine, chunkSize: chunkSize, workers: workers}
}

// ScoreAll scores every job against the criteria, all at one shared
// evaluation instant, and returns results in input order.
func (b *BatchScorer) ScoreAll(ctx context.Context, jobs []model.CanonicalJob, criteria model.UserSearchCriteria) ([]model.ScoredJob, error) {
	at := b.engine.now()
	scored := make([]model.ScoredJob, len(jobs))

	for start := 0; start < len(jobs); start += b.chunkSize {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("scoring batch at job %d of %d: %w", start, len(jobs), err)
		}
		end := start + b.chunkSize
		if end > len(jobs) {
			end = len(jobs)
		}

		var wg sync.WaitGroup
		sem := make(chan struct{}, b.workers)
		for i := start; i < end; i++ {
			wg.Add(1)
			sem <- struct{}{}
			go func(i int) {
				defer wg.Done()
				defer func() { <-sem }()
				scored[i] = model.ScoredJob{
					Job:       jobs[i],
					Breakdown: b.engine.ScoreAt(jobs[i], criteria, at),
				}
			}(i)
		}
		wg.Wait()
	}
	return scored, nil
}
