package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const DefaultListingImage = "media/products/no_avatar.jpg"

// Listing is an item offered for sale.
type Listing struct {
	ID            string         `gorm:"primaryKey;size:36" json:"id"`
	OwnerID       string         `gorm:"size:36;index;not null" json:"owner_id"`
	CategoryID    uint           `gorm:"index;not null" json:"category_id"`
	SubcategoryID uint           `gorm:"index;not null" json:"subcategory_id"`
	Title         string         `gorm:"size:64;not null;index" json:"title"`
	Slug          string         `gorm:"size:128;not null;uniqueIndex" json:"slug"`
	Price         float64        `gorm:"type:decimal(10,2);not null;index" json:"price"`
	Description   string         `gorm:"size:512" json:"description"`
	Featured      bool           `gorm:"not null;default:false;index" json:"featured"`
	Image         string         `gorm:"size:512" json:"image"`
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Images        []ListingImage `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}

// BeforeCreate assigns the id and defaults.
func (l *Listing) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Image == "" {
		l.Image = DefaultListingImage
	}
	return nil
}

// ListingImage is one picture of a listing. Key addresses the object in storage.
type ListingImage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ListingID string    `gorm:"size:36;index;not null" json:"listing_id"`
	Image     string    `gorm:"size:1024;not null" json:"image"`
	Key       string    `gorm:"column:storage_key;size:512" json:"-"`
	Position  int       `gorm:"not null;default:0" json:"position"`
	CreatedAt time.Time `json:"created_at"`
}
