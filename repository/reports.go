package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/cppla/classifieds/models"
)

// ErrAlreadyClosed is returned when closing a report that is closed.
var ErrAlreadyClosed = errors.New("report already closed")

// ReportRepository persists bug reports and their comments.
type ReportRepository struct {
	db       *gorm.DB
	reports  Query[models.BugReport, ReportFilter]
	comments Query[models.BugReportComment, CommentFilter]
}

func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{
		db:       db,
		reports:  NewQuery[models.BugReport, ReportFilter](db),
		comments: NewQuery[models.BugReportComment, CommentFilter](db),
	}
}

func (r *ReportRepository) Create(ctx context.Context, rep models.BugReport) (models.BugReport, error) {
	rep.Comments = nil
	if err := r.db.WithContext(ctx).Create(&rep).Error; err != nil {
		return models.BugReport{}, err
	}
	return rep, nil
}

func (r *ReportRepository) Get(ctx context.Context, id uint) (models.BugReport, error) {
	var rep models.BugReport
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rep).Error
	return rep, notFound(err)
}

// List returns reports with VIP reporters first, newest first within each group.
func (r *ReportRepository) List(ctx context.Context, f ReportFilter, p Page) ([]models.BugReport, int64, error) {
	return r.reports.List(ctx, f, reportOrder, p)
}

// Close marks a report closed by closerID. The conditional update makes a
// concurrent second close observe ErrAlreadyClosed.
func (r *ReportRepository) Close(ctx context.Context, id uint, closerID string, at time.Time) (models.BugReport, error) {
	res := r.db.WithContext(ctx).Model(&models.BugReport{}).
		Where("id = ? AND is_closed = ?", id, false).
		Updates(map[string]interface{}{"is_closed": true, "closed_by": closerID, "closed_at": at})
	if res.Error != nil {
		return models.BugReport{}, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return models.BugReport{}, err
		}
		return models.BugReport{}, ErrAlreadyClosed
	}
	return r.Get(ctx, id)
}

func (r *ReportRepository) AddComment(ctx context.Context, c models.BugReportComment) (models.BugReportComment, error) {
	if err := r.db.WithContext(ctx).Create(&c).Error; err != nil {
		return models.BugReportComment{}, err
	}
	return c, nil
}

// Comments returns one page of a report's comments in posting order.
func (r *ReportRepository) Comments(ctx context.Context, reportID uint, p Page) ([]models.BugReportComment, int64, error) {
	return r.comments.List(ctx, CommentFilter{BugReportID: reportID}, commentOrder, p)
}
