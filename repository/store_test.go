package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/classifieds/models"
)

var seedTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func sqliteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every connection to :memory: is its own database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func seedOwners(t *testing.T, db *gorm.DB) {
	t.Helper()
	for _, u := range []models.User{
		{ID: "u-vip", Username: "vip", Email: "vip@example.com", IsVIP: true},
		{ID: "u-plain", Username: "plain", Email: "plain@example.com"},
		{ID: "u-staff", Username: "staff", Email: "staff@example.com", IsStaff: true},
	} {
		require.NoError(t, db.Create(&u).Error)
	}
}

// seedListings creates n listings with repeating prices and creation times so
// that every ordering mode has ties to break.
func seedListings(t *testing.T, db *gorm.DB, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		owner := "u-plain"
		if i%2 == 0 {
			owner = "u-vip"
		}
		l := models.Listing{
			ID:            fmt.Sprintf("l%02d", i),
			OwnerID:       owner,
			CategoryID:    uint(1 + i%2),
			SubcategoryID: uint(10 + i%3),
			Title:         fmt.Sprintf("item %02d", i),
			Slug:          fmt.Sprintf("item-%02d", i),
			Price:         float64(i%4) * 10,
			Featured:      i%5 == 0,
			CreatedAt:     seedTime.Add(time.Duration(i%7) * time.Hour),
		}
		require.NoError(t, db.Create(&l).Error)
	}
}

func listingIDs(ls []models.Listing) []string {
	out := make([]string, 0, len(ls))
	for _, l := range ls {
		out = append(out, l.ID)
	}
	return out
}

func assertSecondaryOrder(t *testing.T, order ListingOrder, prev, cur models.Listing) {
	t.Helper()
	switch order {
	case OrderNewest:
		assert.False(t, cur.CreatedAt.After(prev.CreatedAt), "newest %s after %s", cur.ID, prev.ID)
	case OrderOldest:
		assert.False(t, cur.CreatedAt.Before(prev.CreatedAt), "oldest %s before %s", cur.ID, prev.ID)
	case OrderCheapest:
		assert.GreaterOrEqual(t, cur.Price, prev.Price, "cheapest %s", cur.ID)
	case OrderExpensive:
		assert.LessOrEqual(t, cur.Price, prev.Price, "expensive %s", cur.ID)
	}
}

func TestSearchPagesConcatenateToFullResult(t *testing.T) {
	db := sqliteDB(t)
	seedListings(t, db, 23)
	repo := NewListingRepository(db)
	ctx := context.Background()

	for _, order := range []ListingOrder{OrderNone, OrderNewest, OrderOldest, OrderCheapest, OrderExpensive} {
		all, total, err := repo.Search(ctx, ListingFilter{}, order, Page{Limit: 100})
		require.NoError(t, err)
		require.EqualValues(t, 23, total, "order %q", order)
		require.Len(t, all, 23)

		var paged []string
		for offset := 0; offset < 30; offset += 5 {
			page, pageTotal, err := repo.Search(ctx, ListingFilter{}, order, Page{Offset: offset, Limit: 5})
			require.NoError(t, err)
			assert.EqualValues(t, 23, pageTotal, "order %q offset %d", order, offset)
			paged = append(paged, listingIDs(page)...)
		}
		assert.Equal(t, listingIDs(all), paged, "order %q", order)

		for i := 1; i < len(all); i++ {
			prev, cur := all[i-1], all[i]
			assert.False(t, cur.Featured && !prev.Featured, "order %q: featured %s after %s", order, cur.ID, prev.ID)
			if cur.Featured == prev.Featured {
				assertSecondaryOrder(t, order, prev, cur)
			}
		}
	}
}

func TestSearchFiltersComposeAndCountIgnoresPaging(t *testing.T) {
	db := sqliteDB(t)
	seedListings(t, db, 23)
	repo := NewListingRepository(db)
	ctx := context.Background()

	featured := true
	minPrice := 20.0
	cat := uint(1)
	from, to := seedTime.Add(2*time.Hour), seedTime.Add(3*time.Hour)

	cases := []struct {
		name   string
		filter ListingFilter
		want   int64
	}{
		{"none", ListingFilter{}, 23},
		{"featured", ListingFilter{Featured: &featured}, 5},
		{"min price", ListingFilter{MinPrice: &minPrice}, 11},
		{"featured and min price", ListingFilter{Featured: &featured, MinPrice: &minPrice}, 2},
		{"category", ListingFilter{CategoryID: &cat}, 12},
		{"title", ListingFilter{Title: "ITEM 1"}, 10},
		{"created range", ListingFilter{CreatedFrom: &from, CreatedTo: &to}, 6},
	}
	for _, tc := range cases {
		n, err := repo.Count(ctx, tc.filter)
		require.NoError(t, err)
		assert.Equal(t, tc.want, n, tc.name)

		page, total, err := repo.Search(ctx, tc.filter, OrderNewest, Page{Offset: 1, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, tc.want, total, tc.name)
		assert.LessOrEqual(t, len(page), 2, tc.name)
	}
}

func TestListingCreateEnforcesOwnerCap(t *testing.T) {
	db := sqliteDB(t)
	seedOwners(t, db)
	repo := NewListingRepository(db)
	ctx := context.Background()

	listing := func(slug string) models.Listing {
		return models.Listing{OwnerID: "u-plain", CategoryID: 1, SubcategoryID: 10, Title: slug, Slug: slug, Price: 5}
	}
	for _, slug := range []string{"first", "second"} {
		l, err := repo.Create(ctx, listing(slug), 2)
		require.NoError(t, err)
		assert.NotEmpty(t, l.ID)
	}

	_, err := repo.Create(ctx, listing("third"), 2)
	assert.ErrorIs(t, err, ErrLimitReached)
	n, err := repo.Count(ctx, ListingFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, err = repo.Create(ctx, listing("uncapped"), 0)
	assert.NoError(t, err)

	ghost := listing("ghost")
	ghost.OwnerID = "u-ghost"
	_, err = repo.Create(ctx, ghost, 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTokenDenylistAddClaimsOnce(t *testing.T) {
	dl := NewTokenDenylist(sqliteDB(t))
	ctx := context.Background()

	first, err := dl.Add(ctx, "refresh-token")
	require.NoError(t, err)
	second, err := dl.Add(ctx, "refresh-token")
	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, second)

	ok, err := dl.Contains(ctx, "refresh-token")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = dl.Contains(ctx, "other-token")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReportCloseOnlyOnce(t *testing.T) {
	db := sqliteDB(t)
	seedOwners(t, db)
	repo := NewReportRepository(db)
	ctx := context.Background()

	rep, err := repo.Create(ctx, models.BugReport{UserID: "u-plain", Title: "broken upload", Body: "it fails"})
	require.NoError(t, err)

	closed, err := repo.Close(ctx, rep.ID, "u-staff", seedTime)
	require.NoError(t, err)
	assert.True(t, closed.IsClosed)
	require.NotNil(t, closed.ClosedBy)
	assert.Equal(t, "u-staff", *closed.ClosedBy)
	assert.NotNil(t, closed.ClosedAt)

	_, err = repo.Close(ctx, rep.ID, "u-staff", seedTime.Add(time.Minute))
	assert.ErrorIs(t, err, ErrAlreadyClosed)

	_, err = repo.Close(ctx, rep.ID+100, "u-staff", seedTime)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSyncFeaturedFollowsOwnerVIP(t *testing.T) {
	db := sqliteDB(t)
	seedOwners(t, db)
	for _, l := range []models.Listing{
		{ID: "vip-plain", OwnerID: "u-vip", CategoryID: 1, SubcategoryID: 10, Title: "a", Slug: "a"},
		{ID: "plain-featured", OwnerID: "u-plain", CategoryID: 1, SubcategoryID: 10, Title: "b", Slug: "b", Featured: true},
		{ID: "vip-featured", OwnerID: "u-vip", CategoryID: 1, SubcategoryID: 10, Title: "c", Slug: "c", Featured: true},
	} {
		require.NoError(t, db.Create(&l).Error)
	}
	repo := NewListingRepository(db)
	ctx := context.Background()

	n, err := repo.SyncFeatured(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	for id, want := range map[string]bool{"vip-plain": true, "plain-featured": false, "vip-featured": true} {
		l, err := repo.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, l.Featured, id)
	}

	n, err = repo.SyncFeatured(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExpireVIPOnlyTouchesLapsedGrants(t *testing.T) {
	db := sqliteDB(t)
	past, future := seedTime.Add(-time.Hour), seedTime.Add(time.Hour)
	for _, u := range []models.User{
		{ID: "lapsed", Username: "lapsed", Email: "lapsed@example.com", IsVIP: true, VIPExpiresAt: &past},
		{ID: "current", Username: "current", Email: "current@example.com", IsVIP: true, VIPExpiresAt: &future},
		{ID: "lifetime", Username: "lifetime", Email: "lifetime@example.com", IsVIP: true},
	} {
		require.NoError(t, db.Create(&u).Error)
	}
	repo := NewUserRepository(db)
	ctx := context.Background()

	n, err := repo.ExpireVIP(ctx, seedTime)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	lapsed, err := repo.Get(ctx, "lapsed")
	require.NoError(t, err)
	assert.False(t, lapsed.IsVIP)
	assert.Nil(t, lapsed.VIPExpiresAt)

	for _, id := range []string{"current", "lifetime"} {
		u, err := repo.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, u.IsVIP, id)
	}
}
