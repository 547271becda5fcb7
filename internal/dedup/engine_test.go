package dedup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextrole/conveyor/internal/catalog"
	"github.com/nextrole/conveyor/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var ingestNow = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func testEngine(store model.CatalogStore) (*Engine, *time.Time) {
	now := ingestNow
	e := New(store, 0.85, 72*time.Hour, discardLogger(),
		WithClock(func() time.Time { return now }))
	return e, &now
}

func acmePosting(id string, source model.JobSource, externalID, summary string, posted time.Time) model.CanonicalJob {
	return model.CanonicalJob{
		ID:              id,
		Source:          source,
		ExternalID:      externalID,
		Title:           "Senior Backend Engineer",
		NormalizedTitle: "backend engineer",
		Company:         "Acme Corp",
		Location:        model.Location{City: "Austin", State: "TX", Country: "US"},
		Remote:          model.RemoteYes,
		Summary:         summary,
		ApplyURL:        "https://example.com/apply",
		PostedAt:        posted,
		UpdatedAt:       posted,
		State:           model.StateActive,
	}
}

func TestIngest_NewJobBecomesCanonical(t *testing.T) {
	store := catalog.NewMemoryStore()
	e, _ := testEngine(store)
	ctx := context.Background()

	outcome, id, err := e.Ingest(ctx, acmePosting("REMOTEOK_1", model.SourceRemoteOK, "1",
		"Own the Go services powering search.", ingestNow.Add(-24*time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)
	assert.Equal(t, "REMOTEOK_1", id)

	got, err := store.GetByID(ctx, "REMOTEOK_1")
	require.NoError(t, err)
	assert.Equal(t, model.StateActive, got.State)
	assert.NotEmpty(t, got.DedupHash)
	assert.Equal(t, 1, got.CheckCount)
	assert.True(t, got.FirstSeenAt.Equal(ingestNow))
}

func TestIngest_ResightMergesInPlace(t *testing.T) {
	store := catalog.NewMemoryStore()
	e, clock := testEngine(store)
	ctx := context.Background()

	first := acmePosting("REMOTEOK_1", model.SourceRemoteOK, "1",
		"Own the Go services powering search.", ingestNow.Add(-24*time.Hour))
	_, _, err := e.Ingest(ctx, first)
	require.NoError(t, err)

	*clock = clock.Add(6 * time.Hour)
	second := first
	second.Salary = &model.SalaryRange{Min: 120000, Max: 160000, Currency: "USD"}
	second.RequiredSkills = []string{"go", "aws"}
	outcome, id, err := e.Ingest(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, OutcomeResighted, outcome)
	assert.Equal(t, "REMOTEOK_1", id)

	got, err := store.GetByID(ctx, "REMOTEOK_1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.CheckCount)
	require.NotNil(t, got.Salary)
	assert.Equal(t, 120000, got.Salary.Min)
	assert.Equal(t, []string{"go", "aws"}, got.RequiredSkills)
	assert.True(t, got.FirstSeenAt.Equal(ingestNow), "first sighting must not move")
	assert.True(t, got.LastCheckedAt.Equal(ingestNow.Add(6*time.Hour)))

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestIngest_IdenticalContentAcrossSourcesMerges(t *testing.T) {
	store := catalog.NewMemoryStore()
	e, _ := testEngine(store)
	ctx := context.Background()

	posted := ingestNow.Add(-24 * time.Hour)
	summary := "Own the Go services powering search."
	_, _, err := e.Ingest(ctx, acmePosting("REMOTEOK_1", model.SourceRemoteOK, "1", summary, posted))
	require.NoError(t, err)

	outcome, id, err := e.Ingest(ctx, acmePosting("THE_MUSE_88", model.SourceTheMuse, "88", summary, posted))
	require.NoError(t, err)
	assert.Equal(t, OutcomeResighted, outcome)
	assert.Equal(t, "REMOTEOK_1", id, "first sighting keeps the id")

	_, err = store.GetByID(ctx, "THE_MUSE_88")
	assert.ErrorIs(t, err, model.ErrNotFound, "identical content must not create a second row")

	got, err := store.GetByID(ctx, "REMOTEOK_1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.CheckCount)
}

func TestIngest_NearDuplicateMarksChild(t *testing.T) {
	store := catalog.NewMemoryStore()
	e, _ := testEngine(store)
	ctx := context.Background()

	posted := ingestNow.Add(-48 * time.Hour)
	_, _, err := e.Ingest(ctx, acmePosting("REMOTEOK_1", model.SourceRemoteOK, "1",
		"Own the Go services powering search.", posted))
	require.NoError(t, err)

	// same role re-listed a day later with the aggregator's own blurb
	outcome, id, err := e.Ingest(ctx, acmePosting("THE_MUSE_88", model.SourceTheMuse, "88",
		"Acme Corp hires a backend engineer for its Austin platform group.", posted.Add(24*time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Equal(t, "THE_MUSE_88", id)

	child, err := store.GetByID(ctx, "THE_MUSE_88")
	require.NoError(t, err)
	assert.True(t, child.IsDuplicate)
	assert.Equal(t, "REMOTEOK_1", child.ParentJobID)
	assert.Equal(t, model.StateDuplicate, child.State)

	parent, err := store.GetByID(ctx, "REMOTEOK_1")
	require.NoError(t, err)
	assert.False(t, parent.IsDuplicate)
	assert.Equal(t, model.StateActive, parent.State)

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2, "both sightings are retained")

	resolved, err := store.Resolve(ctx, "THE_MUSE_88")
	require.NoError(t, err)
	assert.Equal(t, "REMOTEOK_1", resolved)
}

func TestIngest_DifferentCompanyStaysCanonical(t *testing.T) {
	store := catalog.NewMemoryStore()
	e, _ := testEngine(store)
	ctx := context.Background()

	posted := ingestNow.Add(-24 * time.Hour)
	_, _, err := e.Ingest(ctx, acmePosting("REMOTEOK_1", model.SourceRemoteOK, "1",
		"Own the Go services powering search.", posted))
	require.NoError(t, err)

	other := acmePosting("THE_MUSE_88", model.SourceTheMuse, "88",
		"Run the Go services powering checkout.", posted)
	other.Company = "Globex"
	outcome, _, err := e.Ingest(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)

	got, err := store.GetByID(ctx, "THE_MUSE_88")
	require.NoError(t, err)
	assert.False(t, got.IsDuplicate)
}

func TestIngest_RevivesStaleJob(t *testing.T) {
	store := catalog.NewMemoryStore()
	e, _ := testEngine(store)
	ctx := context.Background()

	job := acmePosting("REMOTEOK_1", model.SourceRemoteOK, "1",
		"Own the Go services powering search.", ingestNow.Add(-10*24*time.Hour))
	_, _, err := e.Ingest(ctx, job)
	require.NoError(t, err)
	require.NoError(t, store.MarkStale(ctx, "REMOTEOK_1"))

	outcome, _, err := e.Ingest(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, OutcomeResighted, outcome)

	got, err := store.GetByID(ctx, "REMOTEOK_1")
	require.NoError(t, err)
	assert.Equal(t, model.StateActive, got.State)
}

func TestIngest_ExpiredJobStaysExpired(t *testing.T) {
	store := catalog.NewMemoryStore()
	e, _ := testEngine(store)
	ctx := context.Background()

	job := acmePosting("REMOTEOK_1", model.SourceRemoteOK, "1",
		"Own the Go services powering search.", ingestNow.Add(-30*24*time.Hour))
	_, _, err := e.Ingest(ctx, job)
	require.NoError(t, err)
	require.NoError(t, store.MarkStale(ctx, "REMOTEOK_1"))
	require.NoError(t, store.MarkExpired(ctx, "REMOTEOK_1"))

	outcome, _, err := e.Ingest(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, OutcomeResighted, outcome)

	got, err := store.GetByID(ctx, "REMOTEOK_1")
	require.NoError(t, err)
	assert.Equal(t, model.StateExpired, got.State, "expiry is terminal")
	assert.Equal(t, 2, got.CheckCount, "the sighting is still recorded")
}

// conflictStore fails the first insert of the chosen id with a hash
// conflict after seeding a competing row, imitating another process winning
// the insert race between lookup and write.
type conflictStore struct {
	model.CatalogStore
	loserID string
	winner  model.CanonicalJob
	fired   bool
}

func (c *conflictStore) Upsert(ctx context.Context, job model.CanonicalJob) error {
	if !c.fired && job.ID == c.loserID {
		c.fired = true
		if err := c.CatalogStore.Upsert(ctx, c.winner); err != nil {
			return err
		}
		return fmt.Errorf("upserting %s: %w", job.ID, model.ErrHashConflict)
	}
	return c.CatalogStore.Upsert(ctx, job)
}

func TestIngest_LostInsertRaceRetriesIntoMerge(t *testing.T) {
	posted := ingestNow.Add(-24 * time.Hour)
	summary := "Own the Go services powering search."
	sighting := acmePosting("THE_MUSE_88", model.SourceTheMuse, "88", summary, posted)

	winner := acmePosting("REMOTEOK_1", model.SourceRemoteOK, "1", summary, posted)
	winner.DedupHash = Fingerprint(winner)
	winner.FirstSeenAt = ingestNow
	winner.LastCheckedAt = ingestNow
	winner.CheckCount = 1

	store := &conflictStore{
		CatalogStore: catalog.NewMemoryStore(),
		loserID:      "THE_MUSE_88",
		winner:       winner,
	}
	e, _ := testEngine(store)

	outcome, id, err := e.Ingest(context.Background(), sighting)
	require.NoError(t, err)
	assert.Equal(t, OutcomeResighted, outcome)
	assert.Equal(t, "REMOTEOK_1", id)

	got, err := store.GetByID(context.Background(), "REMOTEOK_1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.CheckCount)
}

func TestIngest_ConcurrentSightingsKeepOneRow(t *testing.T) {
	store := catalog.NewMemoryStore()
	e, _ := testEngine(store)
	ctx := context.Background()

	posted := ingestNow.Add(-24 * time.Hour)
	summary := "Own the Go services powering search."
	postings := []model.CanonicalJob{
		acmePosting("REMOTEOK_1", model.SourceRemoteOK, "1", summary, posted),
		acmePosting("THE_MUSE_88", model.SourceTheMuse, "88", summary, posted),
	}

	var wg sync.WaitGroup
	errs := make([]error, len(postings))
	for i, p := range postings {
		wg.Add(1)
		go func(i int, p model.CanonicalJob) {
			defer wg.Done()
			_, _, errs[i] = e.Ingest(ctx, p)
		}(i, p)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 2, all[0].CheckCount)
}

func TestReconcileCollision(t *testing.T) {
	store := catalog.NewMemoryStore()
	e, _ := testEngine(store)
	ctx := context.Background()

	early := acmePosting("REMOTEOK_1", model.SourceRemoteOK, "1",
		"Own the Go services powering search.", ingestNow.Add(-72*time.Hour))
	early.DedupHash = "hash-early"
	early.FirstSeenAt = ingestNow.Add(-72 * time.Hour)
	early.LastCheckedAt = ingestNow.Add(-time.Hour)
	early.CheckCount = 3

	late := acmePosting("THE_MUSE_88", model.SourceTheMuse, "88",
		"Acme Corp hires a backend engineer in Austin.", ingestNow.Add(-48*time.Hour))
	late.DedupHash = "hash-late"
	late.FirstSeenAt = ingestNow.Add(-48 * time.Hour)
	late.LastCheckedAt = ingestNow
	late.CheckCount = 2
	late.Salary = &model.SalaryRange{Min: 120000, Max: 160000, Currency: "USD"}

	child := acmePosting("ADZUNA_7", model.SourceAdzuna, "7",
		"Backend engineer opening at Acme Corp.", ingestNow.Add(-47*time.Hour))
	child.DedupHash = "hash-child"

	for _, j := range []model.CanonicalJob{early, late, child} {
		require.NoError(t, store.Upsert(ctx, j))
	}
	require.NoError(t, store.MarkDuplicate(ctx, "ADZUNA_7", "THE_MUSE_88"))

	// argument order must not matter; the earlier first sighting wins
	winner, err := e.ReconcileCollision(ctx, "THE_MUSE_88", "REMOTEOK_1")
	require.NoError(t, err)
	assert.Equal(t, "REMOTEOK_1", winner)

	demoted, err := store.GetByID(ctx, "THE_MUSE_88")
	require.NoError(t, err)
	assert.True(t, demoted.IsDuplicate)
	assert.Equal(t, "REMOTEOK_1", demoted.ParentJobID)
	assert.Equal(t, model.StateDuplicate, demoted.State)

	moved, err := store.GetByID(ctx, "ADZUNA_7")
	require.NoError(t, err)
	assert.Equal(t, "REMOTEOK_1", moved.ParentJobID, "children are re-pointed one hop")

	kept, err := store.GetByID(ctx, "REMOTEOK_1")
	require.NoError(t, err)
	assert.Equal(t, 5, kept.CheckCount, "sighting counts are combined")
	require.NotNil(t, kept.Salary, "content folds into the survivor")
	assert.True(t, kept.LastCheckedAt.Equal(ingestNow))

	for _, id := range []string{"THE_MUSE_88", "ADZUNA_7"} {
		resolved, err := store.Resolve(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "REMOTEOK_1", resolved)
	}

	_, err = e.ReconcileCollision(ctx, "THE_MUSE_88", "REMOTEOK_1")
	assert.Error(t, err, "a demoted row cannot be reconciled again")
}
