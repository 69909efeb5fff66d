package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// StringCache is a prefixed string key/value cache with a fixed TTL.
type StringCache struct {
	rdb       goredis.UniversalClient
	prefix    string
	namespace string
	ttl       time.Duration
}

func NewStringCache(rdb goredis.UniversalClient, prefix, namespace string, ttl time.Duration) *StringCache {
	return &StringCache{rdb: rdb, prefix: prefix, namespace: namespace, ttl: ttl}
}

// Get reports ok=false on a miss.
func (c *StringCache) Get(ctx context.Context, id string) (string, bool, error) {
	if c == nil || c.rdb == nil {
		return "", false, nil
	}
	v, err := c.rdb.Get(ctx, key(c.prefix, c.namespace, id)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache get: %w", err)
	}
	return v, true, nil
}

func (c *StringCache) Set(ctx context.Context, id, value string) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	if err := c.rdb.Set(ctx, key(c.prefix, c.namespace, id), value, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (c *StringCache) Delete(ctx context.Context, id string) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, key(c.prefix, c.namespace, id)).Err()
}
