package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when a unique constraint rejects a write.
var ErrDuplicate = errors.New("duplicate record")

// Filter narrows a query. Every entity has its own filter type, so only
// attributes that exist on the entity can be filtered on.
type Filter interface {
	Apply(db *gorm.DB) *gorm.DB
}

// Ordering yields ORDER BY clauses, most significant first.
type Ordering interface {
	Clauses() []string
}

// Page is an offset/limit window.
type Page struct {
	Offset int
	Limit  int
}

// Query lists and counts rows of T matching a filter of type F.
type Query[T any, F Filter] struct {
	db *gorm.DB
}

// NewQuery binds a query to a database handle.
func NewQuery[T any, F Filter](db *gorm.DB) Query[T, F] {
	return Query[T, F]{db: db}
}

// Count returns the number of rows matching f.
func (q Query[T, F]) Count(ctx context.Context, f F) (int64, error) {
	var total int64
	err := f.Apply(q.db.WithContext(ctx).Model(new(T))).Count(&total).Error
	return total, err
}

// List returns one ordered page of rows matching f and the total match count.
// The count is taken before offset and limit are applied.
func (q Query[T, F]) List(ctx context.Context, f F, o Ordering, p Page) ([]T, int64, error) {
	base := f.Apply(q.db.WithContext(ctx).Model(new(T)))

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	items := make([]T, 0)
	if total == 0 || p.Limit <= 0 {
		return items, total, nil
	}

	tx := base.Session(&gorm.Session{})
	if o != nil {
		for _, c := range o.Clauses() {
			tx = tx.Order(c)
		}
	}
	if err := tx.Offset(p.Offset).Limit(p.Limit).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a LIKE pattern matching s anywhere, lowercased.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}

// notFound maps gorm's not-found error onto ErrNotFound.
func notFound(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}
