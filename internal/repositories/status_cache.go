package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/trueloggs/timesync/internal/models"
)

const statusCacheKeyPrefix = "synccounts:"

// RedisStatusCache caches per-user record counts with a TTL. Writes through
// push and migrate invalidate the entry so the status endpoint never serves
// counts older than the last write plus the TTL.
type RedisStatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStatusCache(client *redis.Client, ttl time.Duration) *RedisStatusCache {
	return &RedisStatusCache{client: client, ttl: ttl}
}

func (c *RedisStatusCache) Get(ctx context.Context, userID uuid.UUID) (*models.EntityCounts, error) {
	data, err := c.client.Get(ctx, statusCacheKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get status counts: %w", err)
	}

	var counts models.EntityCounts
	if err := json.Unmarshal([]byte(data), &counts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status counts: %w", err)
	}
	return &counts, nil
}

func (c *RedisStatusCache) Set(ctx context.Context, userID uuid.UUID, counts models.EntityCounts) error {
	data, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("failed to marshal status counts: %w", err)
	}

	if err := c.client.Set(ctx, statusCacheKey(userID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set status counts: %w", err)
	}
	return nil
}

func (c *RedisStatusCache) Invalidate(ctx context.Context, userID uuid.UUID) error {
	if err := c.client.Del(ctx, statusCacheKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate status counts: %w", err)
	}
	return nil
}

func statusCacheKey(userID uuid.UUID) string {
	return statusCacheKeyPrefix + userID.String()
}
