package repository

import (
	"time"

	"gorm.io/gorm"
)

// UserFilter narrows user queries.
type UserFilter struct {
	IsActivated    *bool
	IsVIP          *bool
	JoinedFrom     *time.Time
	JoinedBefore   *time.Time
	VIPGrantedFrom *time.Time
	VIPGrantedTo   *time.Time
	VIPExpiredAt   *time.Time
}

func (f UserFilter) Apply(db *gorm.DB) *gorm.DB {
	if f.IsActivated != nil {
		db = db.Where("is_activated = ?", *f.IsActivated)
	}
	if f.IsVIP != nil {
		db = db.Where("is_vip = ?", *f.IsVIP)
	}
	if f.JoinedFrom != nil {
		db = db.Where("joined_at >= ?", *f.JoinedFrom)
	}
	if f.JoinedBefore != nil {
		db = db.Where("joined_at < ?", *f.JoinedBefore)
	}
	if f.VIPGrantedFrom != nil {
		db = db.Where("vip_granted_at >= ?", *f.VIPGrantedFrom)
	}
	if f.VIPGrantedTo != nil {
		db = db.Where("vip_granted_at < ?", *f.VIPGrantedTo)
	}
	if f.VIPExpiredAt != nil {
		db = db.Where("vip_expires_at IS NOT NULL AND vip_expires_at < ?", *f.VIPExpiredAt)
	}
	return db
}

// ReportFilter narrows bug report queries.
type ReportFilter struct {
	UserID   *string
	IsClosed *bool
}

func (f ReportFilter) Apply(db *gorm.DB) *gorm.DB {
	if f.UserID != nil {
		db = db.Where("user_id = ?", *f.UserID)
	}
	if f.IsClosed != nil {
		db = db.Where("is_closed = ?", *f.IsClosed)
	}
	return db
}

// CommentFilter selects the comments of one report.
type CommentFilter struct {
	BugReportID uint
}

func (f CommentFilter) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("bug_report_id = ?", f.BugReportID)
}

// fixedOrder is an Ordering with constant clauses.
type fixedOrder []string

func (o fixedOrder) Clauses() []string { return o }

var (
	// reportOrder lists VIP reports first, then the newest.
	reportOrder = fixedOrder{"is_vip DESC", "created_at DESC", "id DESC"}
	// commentOrder keeps a thread in posting order.
	commentOrder = fixedOrder{"created_at ASC", "id ASC"}
)
