package models

import "time"

// OrphanedFile is a storage object no longer referenced by any row, awaiting removal.
type OrphanedFile struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"column:storage_key;size:512;not null" json:"key"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
