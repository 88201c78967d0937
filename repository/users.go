package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/classifieds/models"
)

// UserUpdate describes a partial change to a user. Nil fields are left alone.
type UserUpdate struct {
	Email        *string
	FirstName    *string
	LastName     *string
	PasswordHash *string
	IsActivated  *bool
	Avatar       *string
	AvatarKey    *string
}

func (u UserUpdate) columns() map[string]interface{} {
	cols := map[string]interface{}{}
	if u.Email != nil {
		cols["email"] = *u.Email
	}
	if u.FirstName != nil {
		cols["first_name"] = *u.FirstName
	}
	if u.LastName != nil {
		cols["last_name"] = *u.LastName
	}
	if u.PasswordHash != nil {
		cols["password_hash"] = *u.PasswordHash
	}
	if u.IsActivated != nil {
		cols["is_activated"] = *u.IsActivated
	}
	if u.Avatar != nil {
		cols["avatar"] = *u.Avatar
	}
	if u.AvatarKey != nil {
		cols["avatar_key"] = *u.AvatarKey
	}
	return cols
}

// UserRepository persists accounts.
type UserRepository struct {
	db    *gorm.DB
	query Query[models.User, UserFilter]
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db, query: NewQuery[models.User, UserFilter](db)}
}

func (r *UserRepository) first(ctx context.Context, query string, args ...interface{}) (models.User, error) {
	var u models.User
	err := r.db.WithContext(ctx).Where(query, args...).First(&u).Error
	return u, notFound(err)
}

func (r *UserRepository) Get(ctx context.Context, id string) (models.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (models.User, error) {
	return r.first(ctx, "username = ?", username)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (models.User, error) {
	return r.first(ctx, "email = ?", email)
}

// GetByLogin matches either the username or the email.
func (r *UserRepository) GetByLogin(ctx context.Context, login string) (models.User, error) {
	return r.first(ctx, "username = ? OR email = ?", login, login)
}

func (r *UserRepository) GetByProvider(ctx context.Context, provider, providerID string) (models.User, error) {
	return r.first(ctx, "provider = ? AND provider_id = ?", provider, providerID)
}

// ExistsBy reports whether a user with column = value exists. Column must be a
// trusted identifier, never user input.
func (r *UserRepository) ExistsBy(ctx context.Context, column, value string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Where(clause.Eq{Column: clause.Column{Name: column}, Value: value}).Count(&n).Error
	return n > 0, err
}

func (r *UserRepository) Create(ctx context.Context, u models.User) (models.User, error) {
	if err := r.db.WithContext(ctx).Create(&u).Error; err != nil {
		return models.User{}, notFound(err)
	}
	return u, nil
}

func (r *UserRepository) Update(ctx context.Context, id string, upd UserUpdate) (models.User, error) {
	cols := upd.columns()
	if len(cols) > 0 {
		cols["updated_at"] = time.Now()
		res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(cols)
		if res.Error != nil {
			return models.User{}, notFound(res.Error)
		}
	}
	return r.Get(ctx, id)
}

// SetVIP grants or revokes VIP. Revoking clears both timestamps.
func (r *UserRepository) SetVIP(ctx context.Context, id string, vip bool, grantedAt, expiresAt *time.Time) (models.User, error) {
	cols := map[string]interface{}{
		"is_vip":         vip,
		"vip_granted_at": grantedAt,
		"vip_expires_at": expiresAt,
		"updated_at":     time.Now(),
	}
	if !vip {
		cols["vip_granted_at"] = nil
		cols["vip_expires_at"] = nil
	}
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return models.User{}, res.Error
	}
	if res.RowsAffected == 0 {
		return models.User{}, ErrNotFound
	}
	return r.Get(ctx, id)
}

// ExpireVIP drops VIP from every user whose expiry has passed.
func (r *UserRepository) ExpireVIP(ctx context.Context, now time.Time) (int64, error) {
	res := UserFilter{VIPExpiredAt: &now}.Apply(r.db.WithContext(ctx).Model(&models.User{})).
		Updates(map[string]interface{}{"is_vip": false, "vip_expires_at": nil, "updated_at": now})
	return res.RowsAffected, res.Error
}

func (r *UserRepository) Count(ctx context.Context, f UserFilter) (int64, error) {
	return r.query.Count(ctx, f)
}

// ByIDs loads users keyed by id.
func (r *UserRepository) ByIDs(ctx context.Context, ids []string) (map[string]models.User, error) {
	out := make(map[string]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []models.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// StaffEmails returns the addresses of all staff accounts.
func (r *UserRepository) StaffEmails(ctx context.Context) ([]string, error) {
	var emails []string
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("is_staff = ?", true).Pluck("email", &emails).Error
	return emails, err
}

// Delete removes a user and, through foreign key cascades, their listings,
// images, reports and comments. Storage keys of the removed images are queued
// for cleanup in the same transaction.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u models.User
		if err := tx.Where("id = ?", id).First(&u).Error; err != nil {
			return notFound(err)
		}
		var keys []string
		err := tx.Model(&models.ListingImage{}).
			Joins("JOIN listings ON listings.id = listing_images.listing_id").
			Where("listings.owner_id = ? AND listing_images.storage_key <> ''", id).
			Pluck("listing_images.storage_key", &keys).Error
		if err != nil {
			return err
		}
		if u.AvatarKey != "" {
			keys = append(keys, u.AvatarKey)
		}
		if err := queueOrphans(tx, keys); err != nil {
			return err
		}
		// Comments left on other users' reports have no cascading parent
		if err := tx.Where("user_id = ?", id).Delete(&models.BugReportComment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, "id = ?", id).Error
	})
}

func queueOrphans(tx *gorm.DB, keys []string) error {
	now := time.Now()
	rows := make([]models.OrphanedFile, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			rows = append(rows, models.OrphanedFile{Key: k, CreatedAt: now})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	return tx.Create(&rows).Error
}
