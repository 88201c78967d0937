package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/cppla/classifieds/models"
)

// CategoryRepository persists categories and subcategories. Both are immutable
// once created.
type CategoryRepository struct {
	db *gorm.DB
}

func NewCategoryRepository(db *gorm.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// Tree returns every category with its subcategories.
func (r *CategoryRepository) Tree(ctx context.Context) ([]models.Category, error) {
	var cats []models.Category
	err := r.db.WithContext(ctx).
		Preload("Subcategories", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Order("id ASC").Find(&cats).Error
	return cats, err
}

func (r *CategoryRepository) CategoryByTitle(ctx context.Context, title string) (models.Category, error) {
	var c models.Category
	err := r.db.WithContext(ctx).Where("title = ?", title).First(&c).Error
	return c, notFound(err)
}

func (r *CategoryRepository) CategoryBySlug(ctx context.Context, slug string) (models.Category, error) {
	var c models.Category
	err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&c).Error
	return c, notFound(err)
}

func (r *CategoryRepository) SubcategoryByTitle(ctx context.Context, title string) (models.Subcategory, error) {
	var s models.Subcategory
	err := r.db.WithContext(ctx).Where("title = ?", title).First(&s).Error
	return s, notFound(err)
}

func (r *CategoryRepository) Subcategories(ctx context.Context, categoryID uint) ([]models.Subcategory, error) {
	var subs []models.Subcategory
	err := r.db.WithContext(ctx).Where("category_id = ?", categoryID).Order("id ASC").Find(&subs).Error
	return subs, err
}

// TitleOrSlugTaken reports whether a category (or subcategory, when sub is set)
// already uses title or slug.
func (r *CategoryRepository) TitleOrSlugTaken(ctx context.Context, sub bool, title, slug string) (bool, error) {
	var model interface{} = &models.Category{}
	if sub {
		model = &models.Subcategory{}
	}
	var n int64
	err := r.db.WithContext(ctx).Model(model).Where("title = ? OR slug = ?", title, slug).Count(&n).Error
	return n > 0, err
}

func (r *CategoryRepository) CreateCategory(ctx context.Context, c models.Category) (models.Category, error) {
	c.Subcategories = nil
	if err := r.db.WithContext(ctx).Create(&c).Error; err != nil {
		return models.Category{}, notFound(err)
	}
	return c, nil
}

func (r *CategoryRepository) CreateSubcategory(ctx context.Context, s models.Subcategory) (models.Subcategory, error) {
	if err := r.db.WithContext(ctx).Create(&s).Error; err != nil {
		return models.Subcategory{}, notFound(err)
	}
	return s, nil
}

// Titles resolves category and subcategory ids to their titles in two queries.
func (r *CategoryRepository) Titles(ctx context.Context, categoryIDs, subcategoryIDs []uint) (map[uint]string, map[uint]string, error) {
	cats := make(map[uint]string, len(categoryIDs))
	subs := make(map[uint]string, len(subcategoryIDs))
	if len(categoryIDs) > 0 {
		var rows []models.Category
		if err := r.db.WithContext(ctx).Select("id", "title").Where("id IN ?", categoryIDs).Find(&rows).Error; err != nil {
			return nil, nil, err
		}
		for _, c := range rows {
			cats[c.ID] = c.Title
		}
	}
	if len(subcategoryIDs) > 0 {
		var rows []models.Subcategory
		if err := r.db.WithContext(ctx).Select("id", "title").Where("id IN ?", subcategoryIDs).Find(&rows).Error; err != nil {
			return nil, nil, err
		}
		for _, s := range rows {
			subs[s.ID] = s.Title
		}
	}
	return cats, subs, nil
}
