package score

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nextrole/conveyor/internal/model"
)

// RedisCache shares score breakdowns across pipeline instances. Reads and
// writes are best-effort: a failing backend degrades to cache misses, the
// cache is never load-bearing.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ model.ScoreCache = (*RedisCache)(nil)

// NewRedisCache parses the redis URL and verifies connectivity.
func NewRedisCache(ctx context.Context, redisURL string, ttl time.Duration, logger *slog.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", redisURL, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisCache{client: client, ttl: ttl, logger: logger}, nil
}

func redisKey(userID, jobID string) string {
	return "score:" + userID + ":" + jobID
}

func (c *RedisCache) Get(ctx context.Context, userID, jobID string) (model.ScoreBreakdown, bool) {
	raw, err := c.client.Get(ctx, redisKey(userID, jobID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("score cache read failed", "user_id", userID, "job_id", jobID, "error", err)
		}
		return model.ScoreBreakdown{}, false
	}
	var b model.ScoreBreakdown
	if err := json.Unmarshal(raw, &b); err != nil {
		return model.ScoreBreakdown{}, false
	}
	return b, true
}

func (c *RedisCache) Set(ctx context.Context, userID, jobID string, b model.ScoreBreakdown) {
	raw, err := json.Marshal(b)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, redisKey(userID, jobID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("score cache write failed", "user_id", userID, "job_id", jobID, "error", err)
	}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
