package tokens

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

const cachePrefix = "jwt:blacklist:"

// CachedDenylist answers hot lookups from Redis and keeps the durable store as
// the source of truth. Redis failures fall through to the store.
type CachedDenylist struct {
	next Denylist
	rc   *redis.Client
	ttl  time.Duration
}

// NewCachedDenylist wraps next with a Redis read-through cache. A nil client
// disables caching.
func NewCachedDenylist(next Denylist, rc *redis.Client, ttl time.Duration) *CachedDenylist {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedDenylist{next: next, rc: rc, ttl: ttl}
}

func cacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return cachePrefix + hex.EncodeToString(sum[:])
}

func (c *CachedDenylist) Add(ctx context.Context, token string) (bool, error) {
	inserted, err := c.next.Add(ctx, token)
	if err != nil {
		return false, err
	}
	c.remember(ctx, token)
	return inserted, nil
}

func (c *CachedDenylist) Contains(ctx context.Context, token string) (bool, error) {
	if c.rc != nil {
		n, err := c.rc.Exists(ctx, cacheKey(token)).Result()
		if err == nil && n > 0 {
			return true, nil
		}
	}
	found, err := c.next.Contains(ctx, token)
	if err != nil {
		return false, err
	}
	if found {
		c.remember(ctx, token)
	}
	return found, nil
}

func (c *CachedDenylist) remember(ctx context.Context, token string) {
	if c.rc == nil {
		return
	}
	_ = c.rc.Set(ctx, cacheKey(token), "1", c.ttl).Err()
}
