package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/classifieds/models"
)

// TokenDenylist is the durable record of revoked tokens.
type TokenDenylist struct {
	db *gorm.DB
}

func NewTokenDenylist(db *gorm.DB) *TokenDenylist {
	return &TokenDenylist{db: db}
}

// Add records token as revoked. inserted is false when the row already existed,
// which lets callers treat the insert as an atomic claim.
func (r *TokenDenylist) Add(ctx context.Context, token string) (inserted bool, err error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "token"}}, DoNothing: true}).
		Create(&models.BlacklistedToken{Token: token, BlacklistedOn: time.Now()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Contains reports whether token has been revoked.
func (r *TokenDenylist) Contains(ctx context.Context, token string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.BlacklistedToken{}).Where("token = ?", token).Limit(1).Count(&n).Error
	return n > 0, err
}
