// Package cache serves the recent-events page cache from redis.
//
// Entries are serialized page snapshots keyed by owner and pagination
// filters; the lifecycle sweeper invalidates the whole namespace whenever a
// sweep mutates rows. The cache is best-effort and never authoritative.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// recentPrefix namespaces cached recent-event pages.
const recentPrefix = "recent_events:"

// RecentKey builds the cache key for one page of an owner's recent events.
func RecentKey(userID uuid.UUID, showTest bool, page, pageSize int) string {
	return fmt.Sprintf("%s%s:%t:%d:%d", recentPrefix, userID, showTest, page, pageSize)
}

type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Get returns the cached value for key, reporting whether it was present.
func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return value, true, nil
}

func (c *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// InvalidateRecent deletes every key in the recent-events namespace.
func (c *Redis) InvalidateRecent(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, recentPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis del %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	return nil
}
