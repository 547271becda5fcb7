package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextrole/conveyor/internal/catalog"
	"github.com/nextrole/conveyor/internal/dedup"
	"github.com/nextrole/conveyor/internal/model"
	"github.com/nextrole/conveyor/internal/normalize"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var cycleNow = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

type fakeAdapter struct {
	source model.JobSource
	raws   []model.RawPosting
	err    error
}

func (f *fakeAdapter) Source() model.JobSource { return f.source }

func (f *fakeAdapter) Fetch(ctx context.Context) ([]model.RawPosting, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.raws, nil
}

func rawPosting(t *testing.T, source model.JobSource, externalID string, fields map[string]any) model.RawPosting {
	t.Helper()
	payload, err := json.Marshal(fields)
	require.NoError(t, err)
	return model.RawPosting{
		Source:     source,
		ExternalID: externalID,
		Payload:    payload,
		FetchedAt:  cycleNow,
	}
}

func remoteOKFields(position, company string) map[string]any {
	return map[string]any{
		"position":    position,
		"company":     company,
		"location":    "Austin, TX",
		"description": "Own the Go services powering search.",
		"date":        cycleNow.Add(-24 * time.Hour).Format(time.RFC3339),
		"apply_url":   "https://example.com/apply",
	}
}

func testPipeline(store model.CatalogStore, adapters ...model.SourceAdapter) *Pipeline {
	logger := discardLogger()
	engine := dedup.New(store, 0.85, 72*time.Hour, logger,
		dedup.WithClock(func() time.Time { return cycleNow }))
	return NewPipeline(adapters, normalize.New(logger), engine, 2, logger)
}

func TestRunCycle_CataloguesFetchedPostings(t *testing.T) {
	missingCompany := remoteOKFields("Data Engineer", "")
	adapter := &fakeAdapter{
		source: model.SourceRemoteOK,
		raws: []model.RawPosting{
			rawPosting(t, model.SourceRemoteOK, "1", remoteOKFields("Senior Backend Engineer", "Acme Corp")),
			rawPosting(t, model.SourceRemoteOK, "2", remoteOKFields("Platform Engineer", "Globex")),
			rawPosting(t, model.SourceRemoteOK, "3", missingCompany),
		},
	}
	store := catalog.NewMemoryStore()
	p := testPipeline(store, adapter)

	stats, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, stats.RunID)
	assert.Empty(t, stats.SourceErrors)

	got := stats.Sources[model.SourceRemoteOK]
	assert.Equal(t, 3, got.Fetched)
	assert.Equal(t, 2, got.Created)
	assert.Equal(t, 1, got.Rejected)
	assert.Zero(t, got.Failures)

	job, err := store.GetByID(context.Background(), "REMOTEOK_1")
	require.NoError(t, err)
	assert.Equal(t, model.StateActive, job.State)
	assert.Equal(t, "Acme Corp", job.Company)
	assert.NotEmpty(t, job.DedupHash)
}

func TestRunCycle_SourceFailureDoesNotStopOthers(t *testing.T) {
	broken := &fakeAdapter{source: model.SourceRemoteOK, err: errors.New("upstream 503")}
	healthy := &fakeAdapter{
		source: model.SourceTheMuse,
		raws: []model.RawPosting{
			rawPosting(t, model.SourceTheMuse, "88", map[string]any{
				"name":             "Senior Backend Engineer",
				"company":          map[string]any{"name": "Acme Corp"},
				"locations":        []map[string]any{{"name": "Austin, TX"}},
				"publication_date": cycleNow.Add(-24 * time.Hour).Format(time.RFC3339),
				"contents":         "Own the Go services powering search.",
				"refs":             map[string]any{"landing_page": "https://example.com/muse/88"},
			}),
		},
	}
	store := catalog.NewMemoryStore()
	p := testPipeline(store, broken, healthy)

	stats, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	require.Contains(t, stats.SourceErrors, model.SourceRemoteOK)
	assert.NotContains(t, stats.SourceErrors, model.SourceTheMuse)

	assert.Equal(t, 1, stats.Totals().Created)
	_, err = store.GetByID(context.Background(), "THE_MUSE_88")
	assert.NoError(t, err)
}

func TestRunCycle_SecondCycleResights(t *testing.T) {
	adapter := &fakeAdapter{
		source: model.SourceRemoteOK,
		raws: []model.RawPosting{
			rawPosting(t, model.SourceRemoteOK, "1", remoteOKFields("Senior Backend Engineer", "Acme Corp")),
		},
	}
	store := catalog.NewMemoryStore()
	p := testPipeline(store, adapter)
	ctx := context.Background()

	first, err := p.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Totals().Created)

	second, err := p.RunCycle(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.Totals().Created)
	assert.Equal(t, 1, second.Totals().Resighted)
	assert.NotEqual(t, first.RunID, second.RunID)

	job, err := store.GetByID(ctx, "REMOTEOK_1")
	require.NoError(t, err)
	assert.Equal(t, 2, job.CheckCount)
}

func TestRunCycle_FoldsIdenticalContentAcrossSources(t *testing.T) {
	remoteok := &fakeAdapter{
		source: model.SourceRemoteOK,
		raws: []model.RawPosting{
			rawPosting(t, model.SourceRemoteOK, "1", remoteOKFields("Senior Backend Engineer", "Acme Corp")),
		},
	}
	muse := &fakeAdapter{
		source: model.SourceTheMuse,
		raws: []model.RawPosting{
			rawPosting(t, model.SourceTheMuse, "88", map[string]any{
				"name":             "Senior Backend Engineer",
				"company":          map[string]any{"name": "Acme Corp"},
				"locations":        []map[string]any{{"name": "Austin, TX"}},
				"publication_date": cycleNow.Add(-24 * time.Hour).Format(time.RFC3339),
				"contents":         "Own the Go services powering search.",
				"refs":             map[string]any{"landing_page": "https://example.com/muse/88"},
			}),
		},
	}
	store := catalog.NewMemoryStore()
	p := testPipeline(store, remoteok, muse)

	stats, err := p.RunCycle(context.Background())
	require.NoError(t, err)

	// Identical content lands in one row; which source wins the insert race
	// varies, so assert on totals and the surviving row only.
	totals := stats.Totals()
	assert.Equal(t, 2, totals.Fetched)
	assert.Equal(t, 1, totals.Created)
	assert.Equal(t, 1, totals.Resighted)

	all, err := store.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 2, all[0].CheckCount)
}

type upsertFailStore struct {
	model.CatalogStore
	failID string
}

func (u *upsertFailStore) Upsert(ctx context.Context, job model.CanonicalJob) error {
	if job.ID == u.failID {
		return errors.New("disk full")
	}
	return u.CatalogStore.Upsert(ctx, job)
}

func TestRunCycle_StoreFailureCountsAsFailure(t *testing.T) {
	adapter := &fakeAdapter{
		source: model.SourceRemoteOK,
		raws: []model.RawPosting{
			rawPosting(t, model.SourceRemoteOK, "1", remoteOKFields("Senior Backend Engineer", "Acme Corp")),
			rawPosting(t, model.SourceRemoteOK, "2", remoteOKFields("Platform Engineer", "Globex")),
		},
	}
	store := &upsertFailStore{CatalogStore: catalog.NewMemoryStore(), failID: "REMOTEOK_1"}
	p := testPipeline(store, adapter)

	stats, err := p.RunCycle(context.Background())
	require.NoError(t, err)

	got := stats.Sources[model.SourceRemoteOK]
	assert.Equal(t, 1, got.Failures)
	assert.Equal(t, 1, got.Created)
	assert.Empty(t, stats.SourceErrors, "a bad row is not a source outage")
}

func TestRunCycle_CancelledContextStopsEarly(t *testing.T) {
	adapter := &fakeAdapter{
		source: model.SourceRemoteOK,
		raws: []model.RawPosting{
			rawPosting(t, model.SourceRemoteOK, "1", remoteOKFields("Senior Backend Engineer", "Acme Corp")),
		},
	}
	store := catalog.NewMemoryStore()
	p := testPipeline(store, adapter)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := p.RunCycle(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, stats.Totals().Created)

	all, listErr := store.ListAll(context.Background())
	require.NoError(t, listErr)
	assert.Empty(t, all)
}
