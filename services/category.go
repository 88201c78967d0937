package services

import (
	"context"
	"errors"
	"time"

	"github.com/cppla/classifieds/models"
	"github.com/cppla/classifieds/repository"
	"github.com/cppla/classifieds/utils"
)

const categoryCacheTTL = 6 * time.Hour

type CategoryService struct {
	categories CategoryStore
}

func NewCategoryService(categories CategoryStore) *CategoryService {
	return &CategoryService{categories: categories}
}

// Tree returns every category with its subcategories.
func (s *CategoryService) Tree(ctx context.Context) ([]models.Category, error) {
	var cached []models.Category
	if utils.CacheGetJSON(utils.CacheCategoriesKey, &cached) {
		return cached, nil
	}
	tree, err := s.categories.Tree(ctx)
	if err != nil {
		return nil, internal(err)
	}
	utils.CacheSetJSON(utils.CacheCategoriesKey, tree, categoryCacheTTL)
	return tree, nil
}

// Subcategories lists the children of the category with the given slug.
func (s *CategoryService) Subcategories(ctx context.Context, slug string) ([]models.Subcategory, error) {
	c, err := s.parent(ctx, slug)
	if err != nil {
		return nil, err
	}
	subs, err := s.categories.Subcategories(ctx, c.ID)
	if err != nil {
		return nil, internal(err)
	}
	return subs, nil
}

func (s *CategoryService) parent(ctx context.Context, slug string) (models.Category, error) {
	c, err := s.categories.CategoryBySlug(ctx, slug)
	if errors.Is(err, repository.ErrNotFound) {
		return models.Category{}, ErrCategoryMissing
	}
	if err != nil {
		return models.Category{}, internal(err)
	}
	return c, nil
}

func (s *CategoryService) cleanTitle(ctx context.Context, raw string, sub bool) (string, string, error) {
	title, slug := CleanCategoryTitle(raw)
	if title == "" {
		return "", "", ErrCategoryEmpty
	}
	if n := len(title); n > maxTitleLen {
		return "", "", errCategoryTooLong(n)
	}
	if n := len(slug); n > maxSlugLen {
		return "", "", errSlugTooLong(n)
	}
	taken, err := s.categories.TitleOrSlugTaken(ctx, sub, title, slug)
	if err != nil {
		return "", "", internal(err)
	}
	if taken {
		return "", "", ErrCategoryTaken
	}
	return title, slug, nil
}

// CreateCategory adds a top level category from a raw title.
func (s *CategoryService) CreateCategory(ctx context.Context, raw string) (models.Category, error) {
	title, slug, err := s.cleanTitle(ctx, raw, false)
	if err != nil {
		return models.Category{}, err
	}
	c, err := s.categories.CreateCategory(ctx, models.Category{Title: title, Slug: slug})
	if errors.Is(err, repository.ErrDuplicate) {
		return models.Category{}, ErrCategoryTaken
	}
	if err != nil {
		return models.Category{}, internal(err)
	}
	utils.CacheDelete(utils.CacheCategoriesKey)
	return c, nil
}

// CreateSubcategory adds a subcategory under the category with parentSlug.
func (s *CategoryService) CreateSubcategory(ctx context.Context, parentSlug, raw string) (models.Subcategory, error) {
	parent, err := s.parent(ctx, parentSlug)
	if err != nil {
		return models.Subcategory{}, err
	}
	title, slug, err := s.cleanTitle(ctx, raw, true)
	if err != nil {
		return models.Subcategory{}, err
	}
	sub, err := s.categories.CreateSubcategory(ctx, models.Subcategory{CategoryID: parent.ID, Title: title, Slug: slug})
	if errors.Is(err, repository.ErrDuplicate) {
		return models.Subcategory{}, ErrCategoryTaken
	}
	if err != nil {
		return models.Subcategory{}, internal(err)
	}
	utils.CacheDelete(utils.CacheCategoriesKey)
	return sub, nil
}
