// Package cache provides the Redis client and the availability cache.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"railbook/config"
)

// NewRedisClient creates a Redis client with connection pooling.
//
// Pool is sized for high concurrency (default PoolSize = 100).
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	// Verify connectivity.
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping failed: %w", err)
	}

	return client, nil
}

// HealthCheck pings the Redis client and returns nil if healthy.
func HealthCheck(ctx context.Context, client *redis.Client) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return client.Ping(pingCtx).Err()
}

// ─── Availability cache ─────────────────────────────────────

const (
	availKeyPrefix = "avail:"
	availCacheTTL  = 30 * time.Second // catalog reads tolerate 30s staleness
)

// AvailabilityCache is a cache-aside layer over remaining-seat counts.
//
// Strategy:
//  1. Query reads try Redis first (fast path, <1ms).
//  2. On miss the caller counts from the ledger and stores the result.
//  3. Every committed booking-affecting write invalidates its trains, so
//     a stale figure lives at most one TTL and never survives a booking.
//
// A nil *AvailabilityCache is valid and disables caching: every method is
// a no-op miss, so deployments without Redis skip straight to the ledger.
type AvailabilityCache struct {
	client *redis.Client
}

// NewAvailabilityCache wraps a Redis client. Pass the result around even
// when client construction failed; nil disables the fast path cleanly.
func NewAvailabilityCache(client *redis.Client) *AvailabilityCache {
	if client == nil {
		return nil
	}
	return &AvailabilityCache{client: client}
}

// Get returns the cached remaining-seat count for a train.
func (c *AvailabilityCache) Get(ctx context.Context, trainID string) (int, bool) {
	if c == nil {
		return 0, false
	}
	val, err := c.client.Get(ctx, availKeyPrefix+trainID).Result()
	if err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Set caches a remaining-seat count (fire-and-forget, errors ignored).
func (c *AvailabilityCache) Set(ctx context.Context, trainID string, available int) {
	if c == nil {
		return
	}
	_ = c.client.Set(ctx, availKeyPrefix+trainID, available, availCacheTTL).Err()
}

// Invalidate drops the cached counts for the given trains. Called after
// every committed Book/Refund/Change.
func (c *AvailabilityCache) Invalidate(ctx context.Context, trainIDs ...string) {
	if c == nil || len(trainIDs) == 0 {
		return
	}
	keys := make([]string, len(trainIDs))
	for i, id := range trainIDs {
		keys[i] = availKeyPrefix + id
	}
	_ = c.client.Del(ctx, keys...).Err()
}
