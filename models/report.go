package models

import "time"

// BugReport is a problem filed by a user and triaged by staff.
type BugReport struct {
	ID        uint               `gorm:"primaryKey" json:"id"`
	UserID    string             `gorm:"size:36;index;not null" json:"user_id"`
	Title     string             `gorm:"size:64;not null" json:"title"`
	Body      string             `gorm:"type:text;not null" json:"body"`
	IsClosed  bool               `gorm:"not null;default:false;index" json:"is_closed"`
	IsVIP     bool               `gorm:"column:is_vip;not null;default:false" json:"is_vip"`
	ClosedBy  *string            `gorm:"size:36" json:"closed_by,omitempty"`
	ClosedAt  *time.Time         `json:"closed_at,omitempty"`
	CreatedAt time.Time          `gorm:"index" json:"created_at"`
	Comments  []BugReportComment `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}

// BugReportComment is appended to a report by staff or, depending on policy, the reporter.
type BugReportComment struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	BugReportID uint      `gorm:"index;not null" json:"bug_report_id"`
	UserID      string    `gorm:"size:36;index;not null" json:"user_id"`
	Body        string    `gorm:"type:text;not null" json:"body"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}
