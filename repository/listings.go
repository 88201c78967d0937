package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/classifieds/models"
)

// ErrLimitReached is returned when the owner already has the maximum number of listings.
var ErrLimitReached = errors.New("listing limit reached")

// ListingUpdate describes a partial change to a listing. Nil fields are left alone.
type ListingUpdate struct {
	Title         *string
	Slug          *string
	Price         *float64
	Description   *string
	CategoryID    *uint
	SubcategoryID *uint
}

func (u ListingUpdate) columns() map[string]interface{} {
	cols := map[string]interface{}{}
	if u.Title != nil {
		cols["title"] = *u.Title
	}
	if u.Slug != nil {
		cols["slug"] = *u.Slug
	}
	if u.Price != nil {
		cols["price"] = *u.Price
	}
	if u.Description != nil {
		cols["description"] = *u.Description
	}
	if u.CategoryID != nil {
		cols["category_id"] = *u.CategoryID
	}
	if u.SubcategoryID != nil {
		cols["subcategory_id"] = *u.SubcategoryID
	}
	return cols
}

// ListingRepository persists listings and their images.
type ListingRepository struct {
	db    *gorm.DB
	query Query[models.Listing, ListingFilter]
}

func NewListingRepository(db *gorm.DB) *ListingRepository {
	return &ListingRepository{db: db, query: NewQuery[models.Listing, ListingFilter](db)}
}

// Search returns one page of bare listings and the total match count.
func (r *ListingRepository) Search(ctx context.Context, f ListingFilter, o ListingOrder, p Page) ([]models.Listing, int64, error) {
	return r.query.List(ctx, f, o, p)
}

func (r *ListingRepository) Count(ctx context.Context, f ListingFilter) (int64, error) {
	return r.query.Count(ctx, f)
}

func (r *ListingRepository) Get(ctx context.Context, id string) (models.Listing, error) {
	var l models.Listing
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&l).Error
	return l, notFound(err)
}

// Create stores l unless its owner already has limit listings. The owner row
// stays locked between the count and the insert. A non-positive limit disables the cap.
func (r *ListingRepository) Create(ctx context.Context, l models.Listing, limit int) (models.Listing, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if limit > 0 {
			var owner models.User
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Select("id").Where("id = ?", l.OwnerID).First(&owner).Error
			if err != nil {
				return err
			}
			var n int64
			if err := tx.Model(&models.Listing{}).Where("owner_id = ?", l.OwnerID).Count(&n).Error; err != nil {
				return err
			}
			if n >= int64(limit) {
				return ErrLimitReached
			}
		}
		return tx.Omit("Images").Create(&l).Error
	})
	if err != nil {
		return models.Listing{}, notFound(err)
	}
	return l, nil
}

func (r *ListingRepository) Update(ctx context.Context, id string, upd ListingUpdate) (models.Listing, error) {
	cols := upd.columns()
	if len(cols) > 0 {
		cols["updated_at"] = time.Now()
		res := r.db.WithContext(ctx).Model(&models.Listing{}).Where("id = ?", id).Updates(cols)
		if res.Error != nil {
			return models.Listing{}, notFound(res.Error)
		}
	}
	return r.Get(ctx, id)
}

// Delete removes a listing with its images and queues their storage keys.
func (r *ListingRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		keys, err := imageKeys(tx, id)
		if err != nil {
			return err
		}
		if err := queueOrphans(tx, keys); err != nil {
			return err
		}
		if err := tx.Where("listing_id = ?", id).Delete(&models.ListingImage{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Listing{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ReplaceImages swaps the whole image set of a listing in one transaction.
// The first new image becomes the cover.
func (r *ListingRepository) ReplaceImages(ctx context.Context, id string, images []models.ListingImage) ([]models.ListingImage, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		keys, err := imageKeys(tx, id)
		if err != nil {
			return err
		}
		if err := queueOrphans(tx, keys); err != nil {
			return err
		}
		if err := tx.Where("listing_id = ?", id).Delete(&models.ListingImage{}).Error; err != nil {
			return err
		}
		cover := models.DefaultListingImage
		if len(images) > 0 {
			for i := range images {
				images[i].ID = 0
				images[i].ListingID = id
				images[i].Position = i
			}
			if err := tx.Create(&images).Error; err != nil {
				return err
			}
			cover = images[0].Image
		}
		return tx.Model(&models.Listing{}).Where("id = ?", id).
			Updates(map[string]interface{}{"image": cover, "updated_at": time.Now()}).Error
	})
	if err != nil {
		return nil, err
	}
	return images, nil
}

// ImagesFor loads images of several listings at once, in position order.
func (r *ListingRepository) ImagesFor(ctx context.Context, ids []string) (map[string][]models.ListingImage, error) {
	out := make(map[string][]models.ListingImage, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.ListingImage
	err := r.db.WithContext(ctx).Where("listing_id IN ?", ids).Order("listing_id").Order("position ASC").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, img := range rows {
		out[img.ListingID] = append(out[img.ListingID], img)
	}
	return out, nil
}

// SyncFeatured copies each owner's VIP flag onto their listings.
func (r *ListingRepository) SyncFeatured(ctx context.Context) (int64, error) {
	var affected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, vip := range []bool{true, false} {
			owners := tx.Model(&models.User{}).Select("id").Where("is_vip = ?", vip)
			res := tx.Model(&models.Listing{}).
				Where("featured <> ? AND owner_id IN (?)", vip, owners).
				Update("featured", vip)
			if res.Error != nil {
				return res.Error
			}
			affected += res.RowsAffected
		}
		return nil
	})
	return affected, err
}

// AveragePrice returns the mean listing price, zero when there are none.
func (r *ListingRepository) AveragePrice(ctx context.Context) (float64, error) {
	var avg *float64
	err := r.db.WithContext(ctx).Model(&models.Listing{}).Select("AVG(price)").Scan(&avg).Error
	if err != nil || avg == nil {
		return 0, err
	}
	return *avg, nil
}

func imageKeys(tx *gorm.DB, listingID string) ([]string, error) {
	var keys []string
	err := tx.Model(&models.ListingImage{}).
		Where("listing_id = ? AND storage_key <> ''", listingID).
		Pluck("storage_key", &keys).Error
	return keys, err
}
