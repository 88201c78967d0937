package models

import "time"

// BlacklistedToken marks a token string as revoked. Rows are never pruned.
type BlacklistedToken struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Token         string    `gorm:"size:768;not null;uniqueIndex" json:"-"`
	BlacklistedOn time.Time `gorm:"not null" json:"blacklisted_on"`
}
