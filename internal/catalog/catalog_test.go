package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nextrole/conveyor/internal/model"
)

// The same contract suite runs against every in-process backend; Postgres
// follows the identical query shapes but needs a live server.
func openStores(t *testing.T) map[string]model.CatalogStore {
	t.Helper()
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("opening sqlite store: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })
	return map[string]model.CatalogStore{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

var testNow = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func testJob(id, hash string) model.CanonicalJob {
	return model.CanonicalJob{
		ID:              id,
		Source:          model.SourceRemoteOK,
		ExternalID:      id,
		Title:           "Senior Backend Engineer",
		NormalizedTitle: "backend engineer",
		Company:         "Acme Corp",
		Location:        model.Location{City: "Austin", State: "TX", Country: "US"},
		Remote:          model.RemoteYes,
		JobType:         model.JobTypeFullTime,
		Experience:      model.ExperienceSenior,
		Salary:          &model.SalaryRange{Min: 120000, Max: 160000, Currency: "USD"},
		RequiredSkills:  []string{"go", "aws"},
		Summary:         "Build and run services",
		ApplyURL:        "https://example.com/apply",
		PostedAt:        testNow.Add(-24 * time.Hour),
		UpdatedAt:       testNow,
		State:           model.StateActive,
		DedupHash:       hash,
		QualityScore:    80,
		FirstSeenAt:     testNow,
		LastCheckedAt:   testNow,
		CheckCount:      1,
	}
}

func TestUpsertAndGetByID(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			want := testJob("REMOTEOK_1", "h1")
			if err := store.Upsert(ctx, want); err != nil {
				t.Fatalf("upsert: %v", err)
			}

			got, err := store.GetByID(ctx, "REMOTEOK_1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Title != want.Title || got.Company != want.Company {
				t.Errorf("title/company mismatch: %+v", got)
			}
			if got.Location != want.Location {
				t.Errorf("location mismatch: %+v", got.Location)
			}
			if got.Salary == nil || *got.Salary != *want.Salary {
				t.Errorf("salary mismatch: %+v", got.Salary)
			}
			if len(got.RequiredSkills) != 2 || got.RequiredSkills[0] != "go" {
				t.Errorf("skills mismatch: %v", got.RequiredSkills)
			}
			if got.State != model.StateActive || got.DedupHash != "h1" || got.CheckCount != 1 {
				t.Errorf("state/hash/count mismatch: %+v", got)
			}
			if !got.PostedAt.Equal(want.PostedAt) || !got.FirstSeenAt.Equal(want.FirstSeenAt) {
				t.Errorf("timestamps mismatch: %v / %v", got.PostedAt, got.FirstSeenAt)
			}
			if got.ExpiresAt != nil {
				t.Errorf("expected nil ExpiresAt, got %v", got.ExpiresAt)
			}
		})
	}
}

func TestGetByID_NotFound(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.GetByID(context.Background(), "REMOTEOK_nope")
			if !errors.Is(err, model.ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestFindByHash(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Upsert(ctx, testJob("REMOTEOK_1", "h1")); err != nil {
				t.Fatalf("upsert: %v", err)
			}

			got, err := store.FindByHash(ctx, "h1")
			if err != nil {
				t.Fatalf("find: %v", err)
			}
			if got.ID != "REMOTEOK_1" {
				t.Errorf("expected REMOTEOK_1, got %s", got.ID)
			}

			if _, err := store.FindByHash(ctx, "absent"); !errors.Is(err, model.ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestUpsert_HashConflict(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Upsert(ctx, testJob("REMOTEOK_1", "h1")); err != nil {
				t.Fatalf("upsert: %v", err)
			}

			intruder := testJob("THE_MUSE_88", "h1")
			intruder.Source = model.SourceTheMuse
			err := store.Upsert(ctx, intruder)
			if !errors.Is(err, model.ErrHashConflict) {
				t.Fatalf("expected ErrHashConflict, got %v", err)
			}

			if _, err := store.GetByID(ctx, "THE_MUSE_88"); !errors.Is(err, model.ErrNotFound) {
				t.Errorf("conflicting upsert must not persist, got %v", err)
			}
		})
	}
}

func TestUpsert_ReplacesSameID(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			job := testJob("REMOTEOK_1", "h1")
			if err := store.Upsert(ctx, job); err != nil {
				t.Fatalf("upsert: %v", err)
			}

			job.CheckCount = 2
			job.LastCheckedAt = testNow.Add(time.Hour)
			if err := store.Upsert(ctx, job); err != nil {
				t.Fatalf("second upsert: %v", err)
			}

			got, err := store.GetByID(ctx, "REMOTEOK_1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.CheckCount != 2 {
				t.Errorf("expected CheckCount 2, got %d", got.CheckCount)
			}

			all, err := store.ListAll(ctx)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(all) != 1 {
				t.Errorf("expected one row, got %d", len(all))
			}
		})
	}
}

func TestListByCompany(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := testJob("REMOTEOK_1", "h1")
			b := testJob("REMOTEOK_2", "h2")
			b.Company = "Globex"
			dup := testJob("THE_MUSE_88", "h3")
			dup.State = model.StateDuplicate
			dup.IsDuplicate = true
			dup.ParentJobID = "REMOTEOK_1"
			for _, j := range []model.CanonicalJob{a, b, dup} {
				if err := store.Upsert(ctx, j); err != nil {
					t.Fatalf("upsert %s: %v", j.ID, err)
				}
			}

			jobs, err := store.ListByCompany(ctx, "acme corp")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(jobs) != 1 || jobs[0].ID != "REMOTEOK_1" {
				t.Errorf("expected only the canonical Acme row, got %+v", jobs)
			}
		})
	}
}

func TestListScorable(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			active := testJob("REMOTEOK_1", "h1")
			stale := testJob("REMOTEOK_2", "h2")
			stale.State = model.StateStale
			expired := testJob("REMOTEOK_3", "h3")
			expired.State = model.StateExpired
			dup := testJob("REMOTEOK_4", "h4")
			dup.State = model.StateDuplicate
			dup.IsDuplicate = true
			dup.ParentJobID = "REMOTEOK_1"
			for _, j := range []model.CanonicalJob{active, stale, expired, dup} {
				if err := store.Upsert(ctx, j); err != nil {
					t.Fatalf("upsert %s: %v", j.ID, err)
				}
			}

			jobs, err := store.ListScorable(ctx)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			ids := map[string]bool{}
			for _, j := range jobs {
				ids[j.ID] = true
			}
			if len(jobs) != 2 || !ids["REMOTEOK_1"] || !ids["REMOTEOK_2"] {
				t.Errorf("expected ACTIVE and STALE rows, got %v", ids)
			}
		})
	}
}

func TestListUnseenSince(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			fresh := testJob("REMOTEOK_1", "h1")
			old := testJob("REMOTEOK_2", "h2")
			old.LastCheckedAt = testNow.Add(-10 * 24 * time.Hour)
			expired := testJob("REMOTEOK_3", "h3")
			expired.State = model.StateExpired
			expired.LastCheckedAt = testNow.Add(-30 * 24 * time.Hour)
			for _, j := range []model.CanonicalJob{fresh, old, expired} {
				if err := store.Upsert(ctx, j); err != nil {
					t.Fatalf("upsert %s: %v", j.ID, err)
				}
			}

			jobs, err := store.ListUnseenSince(ctx, testNow.Add(-7*24*time.Hour))
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(jobs) != 1 || jobs[0].ID != "REMOTEOK_2" {
				t.Errorf("expected only the unseen non-terminal row, got %+v", jobs)
			}
		})
	}
}

func TestMarkDuplicate(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			parent := testJob("REMOTEOK_1", "h1")
			child := testJob("THE_MUSE_88", "h2")
			for _, j := range []model.CanonicalJob{parent, child} {
				if err := store.Upsert(ctx, j); err != nil {
					t.Fatalf("upsert %s: %v", j.ID, err)
				}
			}

			if err := store.MarkDuplicate(ctx, "THE_MUSE_88", "REMOTEOK_1"); err != nil {
				t.Fatalf("mark duplicate: %v", err)
			}
			got, err := store.GetByID(ctx, "THE_MUSE_88")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if !got.IsDuplicate || got.ParentJobID != "REMOTEOK_1" || got.State != model.StateDuplicate {
				t.Errorf("child not demoted: %+v", got)
			}

			// repeating the same link is a no-op
			if err := store.MarkDuplicate(ctx, "THE_MUSE_88", "REMOTEOK_1"); err != nil {
				t.Errorf("idempotent mark failed: %v", err)
			}

			// linking under a duplicate would chain — must be rejected
			grandchild := testJob("ADZUNA_7", "h3")
			if err := store.Upsert(ctx, grandchild); err != nil {
				t.Fatalf("upsert: %v", err)
			}
			if err := store.MarkDuplicate(ctx, "ADZUNA_7", "THE_MUSE_88"); err == nil {
				t.Error("expected rejection when parent is itself a duplicate")
			}
		})
	}
}

func TestMarkExpiredAndStale(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			job := testJob("REMOTEOK_1", "h1")
			if err := store.Upsert(ctx, job); err != nil {
				t.Fatalf("upsert: %v", err)
			}

			if err := store.MarkStale(ctx, "REMOTEOK_1"); err != nil {
				t.Fatalf("mark stale: %v", err)
			}
			got, _ := store.GetByID(ctx, "REMOTEOK_1")
			if got.State != model.StateStale {
				t.Errorf("expected STALE, got %s", got.State)
			}

			if err := store.MarkExpired(ctx, "REMOTEOK_1"); err != nil {
				t.Fatalf("mark expired: %v", err)
			}
			got, _ = store.GetByID(ctx, "REMOTEOK_1")
			if got.State != model.StateExpired {
				t.Errorf("expected EXPIRED, got %s", got.State)
			}

			// repeat is a no-op, but EXPIRED → STALE is illegal
			if err := store.MarkExpired(ctx, "REMOTEOK_1"); err != nil {
				t.Errorf("idempotent expire failed: %v", err)
			}
			if err := store.MarkStale(ctx, "REMOTEOK_1"); err == nil {
				t.Error("expected rejection of EXPIRED → STALE")
			}
		})
	}
}

func TestRedirectAndResolve(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			winner := testJob("REMOTEOK_1", "h1")
			loser := testJob("THE_MUSE_88", "h2")
			for _, j := range []model.CanonicalJob{winner, loser} {
				if err := store.Upsert(ctx, j); err != nil {
					t.Fatalf("upsert %s: %v", j.ID, err)
				}
			}
			if err := store.MarkDuplicate(ctx, "THE_MUSE_88", "REMOTEOK_1"); err != nil {
				t.Fatalf("mark duplicate: %v", err)
			}
			if err := store.Redirect(ctx, "THE_MUSE_88", "REMOTEOK_1"); err != nil {
				t.Fatalf("redirect: %v", err)
			}

			// canonical resolves to itself
			id, err := store.Resolve(ctx, "REMOTEOK_1")
			if err != nil || id != "REMOTEOK_1" {
				t.Errorf("Resolve(winner) = %s, %v", id, err)
			}
			// demoted id resolves to the survivor
			id, err = store.Resolve(ctx, "THE_MUSE_88")
			if err != nil || id != "REMOTEOK_1" {
				t.Errorf("Resolve(loser) = %s, %v", id, err)
			}

			if _, err := store.Resolve(ctx, "REMOTEOK_missing"); !errors.Is(err, model.ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}
