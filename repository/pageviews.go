package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/classifieds/models"
)

// PageViewRepository aggregates views per day and path.
type PageViewRepository struct {
	db *gorm.DB
}

func NewPageViewRepository(db *gorm.DB) *PageViewRepository {
	return &PageViewRepository{db: db}
}

// Record counts one view of path on the local day of at.
func (r *PageViewRepository) Record(ctx context.Context, path string, at time.Time) error {
	day := startOfDay(at)
	// Atomic upsert to avoid duplicate key errors under concurrency
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "date"}, {Name: "path"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("count + 1"), "updated_at": time.Now()}),
	}).Create(&models.PageView{Date: day, Path: path, Count: 1}).Error
}

// Total sums the views recorded on the day of at for paths starting with prefix.
func (r *PageViewRepository) Total(ctx context.Context, at time.Time, prefix string) (int64, error) {
	var total *int64
	err := r.db.WithContext(ctx).Model(&models.PageView{}).
		Select("SUM(count)").
		Where("date = ? AND path LIKE ?", startOfDay(at), likeEscaper.Replace(prefix)+"%").
		Scan(&total).Error
	if err != nil || total == nil {
		return 0, err
	}
	return *total, nil
}

// PathTotal sums the views of one path over all days.
func (r *PageViewRepository) PathTotal(ctx context.Context, path string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.PageView{}).
		Where("path = ?", path).
		Select("COALESCE(SUM(count),0)").
		Scan(&total).Error
	return total, err
}

func startOfDay(t time.Time) time.Time {
	t = t.In(time.Local)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
