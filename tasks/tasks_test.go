package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/classifieds/models"
	"github.com/cppla/classifieds/utils"
)

func TestDailyAt(t *testing.T) {
	loc := time.UTC
	at := DailyAt(8)

	before := time.Date(2024, 3, 9, 7, 30, 0, 0, loc)
	assert.Equal(t, time.Date(2024, 3, 9, 8, 0, 0, 0, loc), at(before))

	exact := time.Date(2024, 3, 9, 8, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2024, 3, 10, 8, 0, 0, 0, loc), at(exact))

	after := time.Date(2024, 12, 31, 23, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2025, 1, 1, 8, 0, 0, 0, loc), at(after))
}

func TestRunnerRunsUntilCancelled(t *testing.T) {
	var runs atomic.Int32
	r := NewRunner(
		Job{Name: "tick", Schedule: Every(5 * time.Millisecond), Run: func(context.Context) error {
			runs.Add(1)
			return nil
		}},
		Job{Name: "broken", Schedule: Every(5 * time.Millisecond), Run: func(context.Context) error {
			panic("boom")
		}},
		Job{Name: "failing", Schedule: Every(5 * time.Millisecond), Run: func(context.Context) error {
			return errors.New("nope")
		}},
	)
	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		r.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
}

type fakeOrphans struct {
	items []models.OrphanedFile
	done  []uint
}

func (f *fakeOrphans) Batch(_ context.Context, limit int) ([]models.OrphanedFile, error) {
	if len(f.items) > limit {
		return f.items[:limit], nil
	}
	return f.items, nil
}

func (f *fakeOrphans) Done(_ context.Context, id uint) error {
	f.done = append(f.done, id)
	return nil
}

type fakeStore struct{ fail map[string]bool }

func (s fakeStore) Put(_ context.Context, key string, _ []byte, _ string) (string, error) {
	return "/static/" + key, nil
}

func (s fakeStore) Remove(_ context.Context, key string) error {
	if s.fail[key] {
		return errors.New("unreachable")
	}
	return nil
}

func TestCleanOrphansKeepsFailedKeys(t *testing.T) {
	orphans := &fakeOrphans{items: []models.OrphanedFile{
		{ID: 1, Key: "products/a.jpg"},
		{ID: 2, Key: "products/b.jpg"},
		{ID: 3, Key: "avatars/c.jpg"},
	}}
	n, err := CleanOrphans(context.Background(), orphans, fakeStore{fail: map[string]bool{"products/b.jpg": true}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []uint{1, 3}, orphans.done)
}

type countingSyncer struct {
	calls   int
	changed int64
}

func (c *countingSyncer) SyncFeatured(context.Context) (int64, error) {
	c.calls++
	return c.changed, nil
}

type expirer struct{ n int64 }

func (e expirer) ExpireVIP(context.Context, time.Time) (int64, error) { return e.n, nil }

func TestJobsDelegate(t *testing.T) {
	mr := miniredis.RunT(t)
	utils.SetRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	require.NoError(t, mr.Set(utils.CacheUserPrefix+"alice", "{}"))

	s := &countingSyncer{changed: 4}
	job := FeaturedSync(s)
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, s.calls)
	assert.Equal(t, "featured-sync", job.Name)

	require.NoError(t, VIPExpiry(expirer{n: 2}).Run(context.Background()))
	assert.False(t, mr.Exists(utils.CacheUserPrefix+"alice"))
}

func TestFeaturedSyncDropsCachedListings(t *testing.T) {
	mr := miniredis.RunT(t)
	utils.SetRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	require.NoError(t, mr.Set(utils.CacheListingPrefix+"l1", "{}"))

	require.NoError(t, FeaturedSync(&countingSyncer{}).Run(context.Background()))
	assert.True(t, mr.Exists(utils.CacheListingPrefix+"l1"))

	require.NoError(t, FeaturedSync(&countingSyncer{changed: 3}).Run(context.Background()))
	assert.False(t, mr.Exists(utils.CacheListingPrefix+"l1"))

	require.NoError(t, mr.Set(utils.CacheListingPrefix+"l2", "{}"))
	require.NoError(t, VIPExpiry(expirer{n: 1}).Run(context.Background()))
	assert.False(t, mr.Exists(utils.CacheListingPrefix+"l2"))
}
