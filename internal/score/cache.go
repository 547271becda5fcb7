package score

import (
	"context"
	"sync"
	"time"

	"github.com/nextrole/conveyor/internal/model"
)

// MemoryCache is a TTL score cache for single-process deployments. Expired
// entries are evicted lazily on lookup.
type MemoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu   sync.RWMutex
	data map[string]cacheEntry
}

type cacheEntry struct {
	breakdown model.ScoreBreakdown
	expiresAt time.Time
}

var _ model.ScoreCache = (*MemoryCache)(nil)

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:  ttl,
		now:  time.Now,
		data: make(map[string]cacheEntry),
	}
}

func cacheKey(userID, jobID string) string {
	return userID + "|" + jobID
}

func (c *MemoryCache) Get(ctx context.Context, userID, jobID string) (model.ScoreBreakdown, bool) {
	key := cacheKey(userID, jobID)
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return model.ScoreBreakdown{}, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.data, key)
		c.mu.Unlock()
		return model.ScoreBreakdown{}, false
	}
	return entry.breakdown, true
}

func (c *MemoryCache) Set(ctx context.Context, userID, jobID string, b model.ScoreBreakdown) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[cacheKey(userID, jobID)] = cacheEntry{
		breakdown: b,
		expiresAt: c.now().Add(c.ttl),
	}
}

// NopCache disables caching; every lookup misses.
type NopCache struct{}

var _ model.ScoreCache = NopCache{}

func (NopCache) Get(ctx context.Context, userID, jobID string) (model.ScoreBreakdown, bool) {
	return model.ScoreBreakdown{}, false
}

func (NopCache) Set(ctx context.Context, userID, jobID string, b model.ScoreBreakdown) {}
