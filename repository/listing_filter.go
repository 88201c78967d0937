package repository

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// ListingOrder is the secondary sort applied after featured-first.
type ListingOrder string

const (
	OrderNone      ListingOrder = ""
	OrderNewest    ListingOrder = "newest"
	OrderOldest    ListingOrder = "oldest"
	OrderCheapest  ListingOrder = "cheapest"
	OrderExpensive ListingOrder = "expensive"
)

// ParseListingOrder accepts the public order_by values.
func ParseListingOrder(s string) (ListingOrder, bool) {
	switch o := ListingOrder(strings.ToLower(strings.TrimSpace(s))); o {
	case OrderNone, OrderNewest, OrderOldest, OrderCheapest, OrderExpensive:
		return o, true
	default:
		return OrderNone, false
	}
}

// Clauses puts featured listings first in every mode. The trailing id keeps
// pages stable when the secondary key ties.
func (o ListingOrder) Clauses() []string {
	clauses := []string{"featured DESC"}
	switch o {
	case OrderNewest:
		clauses = append(clauses, "created_at DESC")
	case OrderOldest:
		clauses = append(clauses, "created_at ASC")
	case OrderCheapest:
		clauses = append(clauses, "price ASC")
	case OrderExpensive:
		clauses = append(clauses, "price DESC")
	}
	return append(clauses, "id ASC")
}

// ListingFilter holds the optional listing predicates. Nil fields do not filter.
type ListingFilter struct {
	ID            *string
	Title         string
	CategoryID    *uint
	SubcategoryID *uint
	OwnerID       *string
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
	Featured      *bool
	MinPrice      *float64
	MaxPrice      *float64
}

func (f ListingFilter) Apply(db *gorm.DB) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if t := strings.TrimSpace(f.Title); t != "" {
		db = db.Where("LOWER(title) LIKE ?", containsPattern(t))
	}
	if f.CategoryID != nil {
		db = db.Where("category_id = ?", *f.CategoryID)
	}
	if f.SubcategoryID != nil {
		db = db.Where("subcategory_id = ?", *f.SubcategoryID)
	}
	if f.OwnerID != nil {
		db = db.Where("owner_id = ?", *f.OwnerID)
	}
	if f.CreatedFrom != nil {
		db = db.Where("created_at >= ?", *f.CreatedFrom)
	}
	if f.CreatedTo != nil {
		db = db.Where("created_at <= ?", *f.CreatedTo)
	}
	if f.Featured != nil {
		db = db.Where("featured = ?", *f.Featured)
	}
	if f.MinPrice != nil {
		db = db.Where("price >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		db = db.Where("price <= ?", *f.MaxPrice)
	}
	return db
}
