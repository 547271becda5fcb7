package dedup

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nextrole/conveyor/internal/model"
)

// Outcome classifies what Ingest did with one normalized posting.
type Outcome int

const (
	OutcomeCreated Outcome = iota
	OutcomeResighted
	OutcomeDuplicate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeResighted:
		return "resighted"
	case OutcomeDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

const lockStripes = 64

// Engine decides, for each normalized posting, whether it is a brand new
// role, a re-sighting of a known one, or a duplicate of an existing
// canonical row. In-process callers racing on the same content hash
// serialize on a striped mutex; across processes the store's unique hash
// index is the arbiter and Ingest retries once on a lost race.
type Engine struct {
	store     model.CatalogStore
	threshold float64
	window    time.Duration
	logger    *slog.Logger
	now       func() time.Time

	stripes [lockStripes]sync.Mutex
}

// Option adjusts engine behavior at construction.
type Option func(*Engine)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine writing through the given store. threshold is the
// fuzzy similarity at or above which a posting is marked a duplicate;
// window bounds the posting-date proximity component.
func New(
	store model.CatalogStore,
	threshold float64,
	window time.Duration,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		store:     store,
		threshold: threshold,
		window:    window,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) lockFor(hash string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(hash))
	return &e.stripes[h.Sum32()%lockStripes]
}

// Ingest runs one normalized posting through identity resolution and
// persists the result. It returns the id of the catalog row the posting
// ended up attached to: its own id when created or marked duplicate, the
// merged row's id on a re-sighting.
func (e *Engine) Ingest(ctx context.Context, job model.CanonicalJob) (Outcome, string, error) {
	if job.DedupHash == "" {
		job.DedupHash = Fingerprint(job)
	}

	mu := e.lockFor(job.DedupHash)
	mu.Lock()
	defer mu.Unlock()

	outcome, id, err := e.ingestLocked(ctx, job)
	if err == nil || !errors.Is(err, model.ErrHashConflict) {
		return outcome, id, err
	}

	// Another process claimed the hash between our lookup and insert. The
	// canonical row exists now, so one retry resolves to a merge.
	outcome, id, err = e.ingestLocked(ctx, job)
	if err != nil {
		return 0, "", &model.DuplicateRaceError{Hash: job.DedupHash, Err: err}
	}
	return outcome, id, nil
}

func (e *Engine) ingestLocked(ctx context.Context, job model.CanonicalJob) (Outcome, string, error) {
	// A source id seen before is always a re-sighting, whatever the row's
	// current state.
	existing, err := e.store.GetByID(ctx, job.ID)
	switch {
	case err == nil:
		return e.merge(ctx, existing, job)
	case !errors.Is(err, model.ErrNotFound):
		return 0, "", fmt.Errorf("ingesting %s: %w", job.ID, err)
	}

	// Identical content under a different source id folds into the row
	// that first claimed the hash. The first sighting keeps the id.
	holder, err := e.store.FindByHash(ctx, job.DedupHash)
	switch {
	case err == nil:
		return e.merge(ctx, holder, job)
	case !errors.Is(err, model.ErrNotFound):
		return 0, "", fmt.Errorf("ingesting %s: %w", job.ID, err)
	}

	parentID, score, err := e.closestCanonical(ctx, job)
	if err != nil {
		return 0, "", fmt.Errorf("ingesting %s: %w", job.ID, err)
	}
	if parentID != "" {
		return e.insertDuplicate(ctx, job, parentID, score)
	}
	return e.insertCanonical(ctx, job)
}

// closestCanonical scans live canonical rows at the posting's company for
// the best fuzzy match at or above the threshold. The company weight plus
// threshold guarantee a cross-company pair can never reach the threshold,
// so the narrowed scan misses nothing. EXPIRED rows are skipped: a near
// match to a closed role is a fresh opening, not a duplicate.
func (e *Engine) closestCanonical(ctx context.Context, job model.CanonicalJob) (string, float64, error) {
	candidates, err := e.store.ListByCompany(ctx, job.CompanyKey())
	if err != nil {
		return "", 0, err
	}

	bestID := ""
	bestScore := 0.0
	for _, cand := range candidates {
		if cand.State.Terminal() {
			continue
		}
		if score := Similarity(job, cand, e.window); score >= e.threshold && score > bestScore {
			bestID = cand.ID
			bestScore = score
		}
	}
	return bestID, bestScore, nil
}

// merge folds a fresh sighting into an existing row. Optional fields fill
// empty slots only, skills union, and a STALE row comes back to ACTIVE.
// The stored content hash is kept as is.
func (e *Engine) merge(ctx context.Context, target, sighting model.CanonicalJob) (Outcome, string, error) {
	fold(&target, sighting)
	if target.State == model.StateStale {
		target.State = model.StateActive
	}
	target.LastCheckedAt = e.now()
	target.CheckCount++

	if err := e.store.Upsert(ctx, target); err != nil {
		return 0, "", fmt.Errorf("merging %s into %s: %w", sighting.ID, target.ID, err)
	}
	e.logger.Debug("sighting merged",
		"job_id", sighting.ID,
		"into", target.ID,
		"check_count", target.CheckCount,
	)
	return OutcomeResighted, target.ID, nil
}

func (e *Engine) insertCanonical(ctx context.Context, job model.CanonicalJob) (Outcome, string, error) {
	now := e.now()
	job.FirstSeenAt = now
	job.LastCheckedAt = now
	job.CheckCount = 1

	if err := e.store.Upsert(ctx, job); err != nil {
		return 0, "", fmt.Errorf("inserting %s: %w", job.ID, err)
	}
	e.logger.Debug("job catalogued", "job_id", job.ID, "company", job.Company)
	return OutcomeCreated, job.ID, nil
}

func (e *Engine) insertDuplicate(ctx context.Context, job model.CanonicalJob, parentID string, score float64) (Outcome, string, error) {
	now := e.now()
	job.FirstSeenAt = now
	job.LastCheckedAt = now
	job.CheckCount = 1

	if err := e.store.Upsert(ctx, job); err != nil {
		return 0, "", fmt.Errorf("inserting duplicate %s: %w", job.ID, err)
	}
	if err := e.store.MarkDuplicate(ctx, job.ID, parentID); err != nil {
		return 0, "", fmt.Errorf("inserting duplicate %s: %w", job.ID, err)
	}
	e.logger.Info("duplicate detected",
		"job_id", job.ID,
		"parent_id", parentID,
		"similarity", score,
	)
	return OutcomeDuplicate, job.ID, nil
}

// ReconcileCollision merges two rows that were both admitted as canonical
// before being recognized as the same role, for example after the
// similarity threshold is lowered. The earlier first sighting keeps its
// id; the later row is demoted to a duplicate, its children are re-pointed
// at the survivor, and a redirect keeps old references resolving.
func (e *Engine) ReconcileCollision(ctx context.Context, idA, idB string) (string, error) {
	a, err := e.store.GetByID(ctx, idA)
	if err != nil {
		return "", fmt.Errorf("reconciling %s and %s: %w", idA, idB, err)
	}
	b, err := e.store.GetByID(ctx, idB)
	if err != nil {
		return "", fmt.Errorf("reconciling %s and %s: %w", idA, idB, err)
	}
	if a.IsDuplicate || b.IsDuplicate {
		return "", fmt.Errorf("reconciling %s and %s: both rows must be canonical", idA, idB)
	}

	winner, loser := a, b
	if loser.FirstSeenAt.Before(winner.FirstSeenAt) ||
		(loser.FirstSeenAt.Equal(winner.FirstSeenAt) && loser.ID < winner.ID) {
		winner, loser = loser, winner
	}

	fold(&winner, loser)
	winner.CheckCount += loser.CheckCount
	if loser.LastCheckedAt.After(winner.LastCheckedAt) {
		winner.LastCheckedAt = loser.LastCheckedAt
	}
	if err := e.store.Upsert(ctx, winner); err != nil {
		return "", fmt.Errorf("reconciling %s and %s: %w", idA, idB, err)
	}

	// Re-point the loser's children so every duplicate link stays one hop.
	all, err := e.store.ListAll(ctx)
	if err != nil {
		return "", fmt.Errorf("reconciling %s and %s: %w", idA, idB, err)
	}
	moved := 0
	for _, child := range all {
		if child.IsDuplicate && child.ParentJobID == loser.ID {
			child.ParentJobID = winner.ID
			if err := e.store.Upsert(ctx, child); err != nil {
				return "", fmt.Errorf("reconciling %s and %s: re-pointing %s: %w", idA, idB, child.ID, err)
			}
			moved++
		}
	}

	if err := e.store.MarkDuplicate(ctx, loser.ID, winner.ID); err != nil {
		return "", fmt.Errorf("reconciling %s and %s: %w", idA, idB, err)
	}
	if err := e.store.Redirect(ctx, loser.ID, winner.ID); err != nil {
		return "", fmt.Errorf("reconciling %s and %s: %w", idA, idB, err)
	}

	e.logger.Info("collision reconciled",
		"winner", winner.ID,
		"loser", loser.ID,
		"children_moved", moved,
	)
	return winner.ID, nil
}

// fold copies content from src into empty slots of dst and unions skills.
func fold(dst *model.CanonicalJob, src model.CanonicalJob) {
	if dst.Summary == "" {
		dst.Summary = src.Summary
	}
	if dst.Salary == nil {
		dst.Salary = src.Salary
	}
	if dst.JobType == model.JobTypeUnknown {
		dst.JobType = src.JobType
	}
	if dst.Remote == model.RemoteUnknown {
		dst.Remote = src.Remote
	}
	if dst.Experience == model.ExperienceUnknown {
		dst.Experience = src.Experience
	}
	if dst.ExpiresAt == nil {
		dst.ExpiresAt = src.ExpiresAt
	}
	dst.RequiredSkills = unionSkills(dst.RequiredSkills, src.RequiredSkills)
	dst.PreferredSkills = unionSkills(dst.PreferredSkills, src.PreferredSkills)
	if src.QualityScore > dst.QualityScore {
		dst.QualityScore = src.QualityScore
	}
	if src.UpdatedAt.After(dst.UpdatedAt) {
		dst.UpdatedAt = src.UpdatedAt
	}
}

// unionSkills appends entries of b not already in a, comparing
// case-insensitively and keeping a's order and casing.
func unionSkills(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]bool, len(a))
	for _, s := range a {
		seen[strings.ToLower(s)] = true
	}
	out := a
	for _, s := range b {
		if key := strings.ToLower(s); !seen[key] {
			seen[key] = true
			out = append(out, s)
		}
	}
	return out
}
