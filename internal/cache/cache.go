// Package cache provides a Redis-backed job-status cache. The worker
// writes statuses as they change; the API's status endpoint reads through
// it to keep polling UIs off the database. Cache failures are non-fatal.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// JobStatusCache is the caching contract used by the API and worker.
// Entries are keyed by owner and job together, so a status served from the
// cache is already scoped to its owner. Implementations must be safe for
// concurrent use.
type JobStatusCache interface {
	SetJobStatus(ctx context.Context, ownerID, jobID uuid.UUID, status string, ttl time.Duration) error
	GetJobStatus(ctx context.Context, ownerID, jobID uuid.UUID) (string, bool, error)
	Ping(ctx context.Context) error
}

// RedisCache implements JobStatusCache using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) SetJobStatus(ctx context.Context, ownerID, jobID uuid.UUID, status string, ttl time.Duration) error {
	return c.client.Set(ctx, jobStatusKey(ownerID, jobID), status, ttl).Err()
}

func (c *RedisCache) GetJobStatus(ctx context.Context, ownerID, jobID uuid.UUID) (string, bool, error) {
	val, err := c.client.Get(ctx, jobStatusKey(ownerID, jobID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func jobStatusKey(ownerID, jobID uuid.UUID) string {
	return "job:status:" + ownerID.String() + ":" + jobID.String()
}

// Noop is used when no Redis URL is configured.
type Noop struct{}

func (Noop) SetJobStatus(context.Context, uuid.UUID, uuid.UUID, string, time.Duration) error {
	return nil
}
func (Noop) GetJobStatus(context.Context, uuid.UUID, uuid.UUID) (string, bool, error) {
	return "", false, nil
}
func (Noop) Ping(context.Context) error { return nil }

var (
	_ JobStatusCache = (*RedisCache)(nil)
	_ JobStatusCache = Noop{}
)
