package models

// Category groups listings. Titles and slugs are unique and immutable.
type Category struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	Title         string        `gorm:"size:64;not null;uniqueIndex" json:"title"`
	Slug          string        `gorm:"size:128;not null;uniqueIndex" json:"slug"`
	Subcategories []Subcategory `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"subcategories,omitempty"`
}

// Subcategory belongs to exactly one category.
type Subcategory struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	CategoryID uint   `gorm:"index;not null" json:"category_id"`
	Title      string `gorm:"size:64;not null;uniqueIndex" json:"title"`
	Slug       string `gorm:"size:128;not null;uniqueIndex" json:"slug"`
}
