package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const cacheVersionKey = "rbac:eff:version"

// Cache stores per-user role-derived permission unions in Redis.
// Role-level edits bump a namespace version instead of scanning keys, so a
// role change invalidates every user at once. Concurrent fills for the
// same user collapse through singleflight.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewCache constructs a cache. ttl bounds staleness if an invalidation is
// ever lost.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

// GetOrCompute returns the cached union for the user, computing and
// storing it on a miss.
func (c *Cache) GetOrCompute(ctx context.Context, userID int64, compute func(context.Context) ([]string, error)) ([]string, error) {
	key, err := c.userKey(ctx, userID)
	if err != nil {
		return nil, err
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var perms []string
		if jsonErr := json.Unmarshal(raw, &perms); jsonErr == nil {
			return perms, nil
		}
		// Unreadable entry: fall through and overwrite it.
	} else if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("rbac: cache get: %w", err)
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		perms, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(perms)
		if err != nil {
			return nil, fmt.Errorf("rbac: cache marshal: %w", err)
		}
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			return nil, fmt.Errorf("rbac: cache set: %w", err)
		}
		return perms, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// InvalidateUser drops the cached union for one user.
func (c *Cache) InvalidateUser(ctx context.Context, userID int64) error {
	key, err := c.userKey(ctx, userID)
	if err != nil {
		return err
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("rbac: cache del: %w", err)
	}
	return nil
}

// InvalidateAll bumps the namespace version; stale entries expire via TTL.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	if err := c.client.Incr(ctx, cacheVersionKey).Err(); err != nil {
		return fmt.Errorf("rbac: cache version bump: %w", err)
	}
	return nil
}

func (c *Cache) userKey(ctx context.Context, userID int64) (string, error) {
	version, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("rbac: cache version: %w", err)
	}
	return fmt.Sprintf("rbac:eff:v%d:user:%d", version, userID), nil
}
