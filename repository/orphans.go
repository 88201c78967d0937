package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/cppla/classifieds/models"
)

// OrphanRepository tracks storage objects waiting to be removed.
type OrphanRepository struct {
	db *gorm.DB
}

func NewOrphanRepository(db *gorm.DB) *OrphanRepository {
	return &OrphanRepository{db: db}
}

// Queue records keys for later removal.
func (r *OrphanRepository) Queue(ctx context.Context, keys ...string) error {
	return queueOrphans(r.db.WithContext(ctx), keys)
}

// Batch returns up to limit of the oldest queued files.
func (r *OrphanRepository) Batch(ctx context.Context, limit int) ([]models.OrphanedFile, error) {
	var items []models.OrphanedFile
	err := r.db.WithContext(ctx).Order("id ASC").Limit(limit).Find(&items).Error
	return items, err
}

// Done forgets a queued file.
func (r *OrphanRepository) Done(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.OrphanedFile{}, id).Error
}
