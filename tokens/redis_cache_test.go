package tokens

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingDenylist struct {
	*memDenylist
	lookups int
}

func (d *countingDenylist) Contains(ctx context.Context, token string) (bool, error) {
	d.lookups++
	return d.memDenylist.Contains(ctx, token)
}

func setupCache(t *testing.T) (*CachedDenylist, *countingDenylist, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	store := &countingDenylist{memDenylist: newMemDenylist()}
	return NewCachedDenylist(store, rc, time.Hour), store, mr
}

func TestCachedDenylistAddWritesThrough(t *testing.T) {
	c, store, mr := setupCache(t)
	ctx := context.Background()

	inserted, err := c.Add(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.True(t, mr.Exists(cacheKey("tok")))

	inserted, err = c.Add(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, inserted)

	found, err := c.Contains(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 0, store.lookups, "hit is served from redis")
}

func TestCachedDenylistMissFallsThrough(t *testing.T) {
	c, store, mr := setupCache(t)
	ctx := context.Background()

	_, err := store.memDenylist.Add(ctx, "old")
	require.NoError(t, err)

	found, err := c.Contains(ctx, "old")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, store.lookups)
	assert.True(t, mr.Exists(cacheKey("old")), "positive answers are cached")

	found, err = c.Contains(ctx, "fresh")
	require.NoError(t, err)
	assert.False(t, found)
	assert.False(t, mr.Exists(cacheKey("fresh")))
}

func TestCachedDenylistRedisDownUsesStore(t *testing.T) {
	c, store, mr := setupCache(t)
	ctx := context.Background()
	_, err := store.memDenylist.Add(ctx, "tok")
	require.NoError(t, err)

	mr.Close()
	found, err := c.Contains(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestCacheKeyHidesToken(t *testing.T) {
	k := cacheKey("secret.jwt.value")
	assert.NotContains(t, k, "secret")
	assert.Len(t, k, len(cachePrefix)+64)
}
