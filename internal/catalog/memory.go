package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nextrole/conveyor/internal/model"
)

// maxResolveHops bounds redirect/duplicate-link walks. Links are re-pointed
// on demotion so chains stay short; the bound only guards corrupted data.
const maxResolveHops = 10

// MemoryStore is an in-process CatalogStore for tests and ephemeral runs.
// It enforces the same contracts as the durable backends: unique hash claim,
// one-hop duplicate links, legal state transitions.
type MemoryStore struct {
	mu        sync.RWMutex
	byID      map[string]model.CanonicalJob
	byHash    map[string]string // dedup hash → id
	redirects map[string]string // old id → new id
}

var _ model.CatalogStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory catalog.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:      make(map[string]model.CanonicalJob),
		byHash:    make(map[string]string),
		redirects: make(map[string]string),
	}
}

func (s *MemoryStore) Upsert(ctx context.Context, job model.CanonicalJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if holder, ok := s.byHash[job.DedupHash]; ok && holder != job.ID {
		return fmt.Errorf("upserting %s: %w", job.ID, model.ErrHashConflict)
	}
	if old, ok := s.byID[job.ID]; ok && old.DedupHash != job.DedupHash {
		delete(s.byHash, old.DedupHash)
	}
	s.byID[job.ID] = job
	if job.DedupHash != "" {
		s.byHash[job.DedupHash] = job.ID
	}
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (model.CanonicalJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.byID[id]
	if !ok {
		return model.CanonicalJob{}, fmt.Errorf("getting %s: %w", id, model.ErrNotFound)
	}
	return job, nil
}

func (s *MemoryStore) FindByHash(ctx context.Context, hash string) (model.CanonicalJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byHash[hash]
	if !ok {
		return model.CanonicalJob{}, fmt.Errorf("finding hash %s: %w", hash, model.ErrNotFound)
	}
	return s.byID[id], nil
}

func (s *MemoryStore) ListByCompany(ctx context.Context, companyKey string) ([]model.CanonicalJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var jobs []model.CanonicalJob
	for _, job := range s.byID {
		if !job.IsDuplicate && job.CompanyKey() == companyKey {
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

func (s *MemoryStore) ListScorable(ctx context.Context) ([]model.CanonicalJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var jobs []model.CanonicalJob
	for _, job := range s.byID {
		if job.Scorable() {
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

func (s *MemoryStore) ListUnseenSince(ctx context.Context, cutoff time.Time) ([]model.CanonicalJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var jobs []model.CanonicalJob
	for _, job := range s.byID {
		if !job.State.Terminal() && job.LastCheckedAt.Before(cutoff) {
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

func (s *MemoryStore) ListAll(ctx context.Context) ([]model.CanonicalJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]model.CanonicalJob, 0, len(s.byID))
	for _, job := range s.byID {
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (s *MemoryStore) MarkDuplicate(ctx context.Context, childID, parentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.byID[parentID]
	if !ok {
		return fmt.Errorf("marking %s duplicate: parent %s: %w", childID, parentID, model.ErrNotFound)
	}
	if parent.IsDuplicate {
		return fmt.Errorf("marking %s duplicate: parent %s is itself a duplicate", childID, parentID)
	}
	child, ok := s.byID[childID]
	if !ok {
		return fmt.Errorf("marking %s duplicate: %w", childID, model.ErrNotFound)
	}
	if child.IsDuplicate && child.ParentJobID == parentID {
		return nil
	}
	if !model.CanTransition(child.State, model.StateDuplicate) {
		return fmt.Errorf("marking %s duplicate: %s cannot transition to %s", childID, child.State, model.StateDuplicate)
	}
	child.State = model.StateDuplicate
	child.IsDuplicate = true
	child.ParentJobID = parentID
	s.byID[childID] = child
	return nil
}

func (s *MemoryStore) MarkExpired(ctx context.Context, id string) error {
	return s.transition(id, model.StateExpired)
}

func (s *MemoryStore) MarkStale(ctx context.Context, id string) error {
	return s.transition(id, model.StateStale)
}

func (s *MemoryStore) transition(id string, to model.JobState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("moving %s to %s: %w", id, to, model.ErrNotFound)
	}
	if job.State == to {
		return nil
	}
	if !model.CanTransition(job.State, to) {
		return fmt.Errorf("moving %s to %s: not allowed from %s", id, to, job.State)
	}
	job.State = to
	s.byID[id] = job
	return nil
}

func (s *MemoryStore) Redirect(ctx context.Context, oldID, newID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.redirects[oldID] = newID
	return nil
}

func (s *MemoryStore) Resolve(ctx context.Context, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cur := id
	for hop := 0; hop < maxResolveHops; hop++ {
		if next, ok := s.redirects[cur]; ok && next != cur {
			cur = next
			continue
		}
		job, ok := s.byID[cur]
		if !ok {
			return "", fmt.Errorf("resolving %s: %w", id, model.ErrNotFound)
		}
		if job.IsDuplicate && job.ParentJobID != "" && job.ParentJobID != cur {
			cur = job.ParentJobID
			continue
		}
		return cur, nil
	}
	return "", fmt.Errorf("resolving %s: link chain exceeds %d hops", id, maxResolveHops)
}

func (s *MemoryStore) Close() error {
	return nil
}
