package tasks

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/classifieds/models"
	"github.com/cppla/classifieds/services"
	"github.com/cppla/classifieds/storage"
	"github.com/cppla/classifieds/utils"
)

const (
	featuredSyncInterval = 4 * time.Hour
	vipExpiryInterval    = 24 * time.Hour
	orphanInterval       = 5 * time.Minute
	orphanBatch          = 100
)

type FeaturedSyncer interface {
	SyncFeatured(ctx context.Context) (int64, error)
}

type VIPExpirer interface {
	ExpireVIP(ctx context.Context, now time.Time) (int64, error)
}

type DailyReporter interface {
	DailyReport(ctx context.Context) (services.DailyReport, error)
}

// OrphanSource hands out storage keys nothing references anymore.
type OrphanSource interface {
	Batch(ctx context.Context, limit int) ([]models.OrphanedFile, error)
	Done(ctx context.Context, id uint) error
}

// FeaturedSync copies the owner VIP flag onto listings every four hours.
func FeaturedSync(listings FeaturedSyncer) Job {
	return Job{
		Name:     "featured-sync",
		Schedule: Every(featuredSyncInterval),
		Run: func(ctx context.Context) error {
			n, err := listings.SyncFeatured(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				utils.InvalidateByPrefix(utils.CacheListingPrefix)
			}
			utils.Logger.Info("featured flags synced", zap.Int64("listings", n))
			return nil
		},
	}
}

// VIPExpiry drops VIP from users whose grant has run out.
func VIPExpiry(users VIPExpirer) Job {
	return Job{
		Name:     "vip-expiry",
		Schedule: Every(vipExpiryInterval),
		Run: func(ctx context.Context) error {
			n, err := users.ExpireVIP(ctx, time.Now())
			if err != nil {
				return err
			}
			if n > 0 {
				utils.InvalidateByPrefix(utils.CacheUserPrefix)
				utils.InvalidateByPrefix(utils.CacheListingPrefix)
			}
			utils.Logger.Info("expired vip grants", zap.Int64("users", n))
			return nil
		},
	}
}

// DailyReport builds and mails the staff report at the given hour.
func DailyReport(r DailyReporter, hour int) Job {
	return Job{
		Name:     "daily-report",
		Schedule: DailyAt(hour),
		Run: func(ctx context.Context) error {
			_, err := r.DailyReport(ctx)
			return err
		},
	}
}

// OrphanCleaner removes unreferenced image objects. A key whose removal
// fails stays queued for the next pass.
func OrphanCleaner(orphans OrphanSource, store storage.Store) Job {
	return Job{
		Name:     "orphan-cleaner",
		Schedule: Every(orphanInterval),
		Run: func(ctx context.Context) error {
			_, err := CleanOrphans(ctx, orphans, store)
			return err
		},
	}
}

// CleanOrphans runs one cleaning pass and reports how many objects were removed.
func CleanOrphans(ctx context.Context, orphans OrphanSource, store storage.Store) (int, error) {
	items, err := orphans.Batch(ctx, orphanBatch)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, it := range items {
		if err := store.Remove(ctx, it.Key); err != nil {
			utils.Logger.Warn("remove orphaned object", zap.String("key", it.Key), zap.Error(err))
			continue
		}
		if err := orphans.Done(ctx, it.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
