package repository

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/cppla/classifieds/models"
)

func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "user:pass@tcp(127.0.0.1:3306)/market?parseTime=True",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)
	return db
}

func listingSQL(t *testing.T, f ListingFilter, o Ordering, p Page) (string, []interface{}) {
	t.Helper()
	tx := f.Apply(dryRunDB(t).Model(&models.Listing{}))
	if o != nil {
		for _, c := range o.Clauses() {
			tx = tx.Order(c)
		}
	}
	var out []models.Listing
	stmt := tx.Offset(p.Offset).Limit(p.Limit).Find(&out).Statement
	return stmt.SQL.String(), stmt.Vars
}

func TestListingOrderAlwaysFeaturedFirst(t *testing.T) {
	cases := map[ListingOrder]string{
		OrderNone:      "",
		OrderNewest:    "created_at DESC",
		OrderOldest:    "created_at ASC",
		OrderCheapest:  "price ASC",
		OrderExpensive: "price DESC",
	}
	for order, secondary := range cases {
		clauses := order.Clauses()
		require.NotEmpty(t, clauses)
		assert.Equal(t, "featured DESC", clauses[0], "order %q", order)
		assert.Equal(t, "id ASC", clauses[len(clauses)-1], "order %q", order)
		if secondary == "" {
			assert.Len(t, clauses, 2)
		} else {
			assert.Equal(t, secondary, clauses[1])
		}
	}
}

func TestParseListingOrder(t *testing.T) {
	o, ok := ParseListingOrder(" Cheapest ")
	assert.True(t, ok)
	assert.Equal(t, OrderCheapest, o)

	o, ok = ParseListingOrder("")
	assert.True(t, ok)
	assert.Equal(t, OrderNone, o)

	_, ok = ParseListingOrder("popular")
	assert.False(t, ok)
}

func TestListingFilterEmptyAddsNoConditions(t *testing.T) {
	sql, _ := listingSQL(t, ListingFilter{}, nil, Page{Limit: 20})
	assert.NotContains(t, sql, "WHERE")
}

func TestListingFilterComposesWithAnd(t *testing.T) {
	cat, sub := uint(3), uint(7)
	owner := "owner-1"
	featured := true
	min, max := 10.0, 99.5
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(48 * time.Hour)

	f := ListingFilter{
		Title:         "IPhone",
		CategoryID:    &cat,
		SubcategoryID: &sub,
		OwnerID:       &owner,
		CreatedFrom:   &from,
		CreatedTo:     &to,
		Featured:      &featured,
		MinPrice:      &min,
		MaxPrice:      &max,
	}
	sql, vars := listingSQL(t, f, OrderCheapest, Page{Offset: 40, Limit: 20})

	for _, frag := range []string{
		"LOWER(title) LIKE ?",
		"category_id = ?",
		"subcategory_id = ?",
		"owner_id = ?",
		"created_at >= ?",
		"created_at <= ?",
		"featured = ?",
		"price >= ?",
		"price <= ?",
	} {
		assert.Contains(t, sql, frag)
	}
	assert.Equal(t, 8, strings.Count(sql, " AND "))
	assert.Contains(t, sql, "ORDER BY featured DESC,price ASC,id ASC")
	assert.Contains(t, sql, "LIMIT")
	assert.Contains(t, sql, "OFFSET")
	assert.Contains(t, vars, "%iphone%")
	assert.Contains(t, vars, min)
	assert.Contains(t, vars, max)
}

func TestContainsPatternEscapesWildcards(t *testing.T) {
	assert.Equal(t, `%50\% off\_now%`, containsPattern("50% OFF_now"))
}

func TestReportOrderPutsVIPFirst(t *testing.T) {
	assert.Equal(t, []string{"is_vip DESC", "created_at DESC", "id DESC"}, reportOrder.Clauses())
}

func TestUserFilterVIPExpiry(t *testing.T) {
	now := time.Now()
	var out []models.User
	stmt := UserFilter{VIPExpiredAt: &now}.Apply(dryRunDB(t).Model(&models.User{})).Find(&out).Statement
	assert.Contains(t, stmt.SQL.String(), "vip_expires_at IS NOT NULL AND vip_expires_at < ?")
	assert.Equal(t, []interface{}{now}, stmt.Vars)
}

func TestListingUpdateColumnsOnlySetFields(t *testing.T) {
	price := 12.5
	title := "bike"
	cols := ListingUpdate{Price: &price, Title: &title}.columns()
	assert.Equal(t, map[string]interface{}{"price": 12.5, "title": "bike"}, cols)
	assert.Empty(t, ListingUpdate{}.columns())
}
