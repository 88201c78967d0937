package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cppla/classifieds/config"
	"github.com/cppla/classifieds/models"
	"github.com/cppla/classifieds/repository"
	"github.com/cppla/classifieds/storage"
	"github.com/cppla/classifieds/utils"
)

const (
	listingCacheTTL = 10 * time.Minute

	DetailOK                  = "ok"
	DetailCategoryNotFound    = "Category not found"
	DetailSubcategoryNotFound = "Subcategory not found"
	DetailOwnerNotFound       = "Owner not found"
)

type ListingService struct {
	listings   ListingStore
	categories CategoryStore
	users      UserStore
	views      ViewCounter
	store      storage.Store
	orphans    OrphanQueue
	cfg        config.AppConfig
}

func NewListingService(listings ListingStore, categories CategoryStore, users UserStore, views ViewCounter, store storage.Store, orphans OrphanQueue, cfg config.AppConfig) *ListingService {
	return &ListingService{listings: listings, categories: categories, users: users, views: views, store: store, orphans: orphans, cfg: cfg}
}

// ListingPath is the detail path page views are recorded under.
func ListingPath(id string) string {
	return "/api/v1/listings/" + id
}

// SearchQuery is the listing search as requested by a client. Category,
// subcategory and owner are human readable names.
type SearchQuery struct {
	OrderBy     string
	ID          *string
	Title       string
	Category    string
	Subcategory string
	Owner       string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Featured    *bool
	MinPrice    *float64
	MaxPrice    *float64
	Offset      int
	Limit       int
}

// ListingView is a listing enriched for display.
type ListingView struct {
	models.Listing
	Category    string                `json:"category"`
	Subcategory string                `json:"subcategory"`
	Owner       *models.PublicUser    `json:"owner"`
	Images      []models.ListingImage `json:"images"`
}

type SearchResult struct {
	Items  []ListingView `json:"items"`
	Total  int64         `json:"total"`
	Offset int           `json:"offset"`
	Limit  int           `json:"limit"`
	Detail string        `json:"detail"`
}

func (s *ListingService) page(offset, limit int) (repository.Page, error) {
	return clampPage(offset, limit, orDefault(s.cfg.ListingsPageSize, 20), orDefault(s.cfg.ListingsMaxPageSize, 100))
}

// Search resolves names to keys, runs the filtered query and enriches the page.
// A name that does not resolve yields an empty page with an explanatory detail.
func (s *ListingService) Search(ctx context.Context, q SearchQuery) (SearchResult, error) {
	order, ok := repository.ParseListingOrder(q.OrderBy)
	if !ok {
		return SearchResult{}, ErrBadOrder
	}
	p, err := s.page(q.Offset, q.Limit)
	if err != nil {
		return SearchResult{}, err
	}
	res := SearchResult{Items: []ListingView{}, Offset: p.Offset, Limit: p.Limit}

	f := repository.ListingFilter{
		ID:          q.ID,
		Title:       strings.TrimSpace(q.Title),
		CreatedFrom: q.CreatedFrom,
		CreatedTo:   q.CreatedTo,
		Featured:    q.Featured,
		MinPrice:    q.MinPrice,
		MaxPrice:    q.MaxPrice,
	}
	if q.Category != "" {
		c, err := s.categoryByName(ctx, q.Category)
		if errors.Is(err, repository.ErrNotFound) {
			res.Detail = DetailCategoryNotFound
			return res, nil
		}
		if err != nil {
			return SearchResult{}, internal(err)
		}
		f.CategoryID = &c.ID
	}
	if q.Subcategory != "" {
		sc, err := s.subcategoryByName(ctx, q.Subcategory)
		if errors.Is(err, repository.ErrNotFound) {
			res.Detail = DetailSubcategoryNotFound
			return res, nil
		}
		if err != nil {
			return SearchResult{}, internal(err)
		}
		f.SubcategoryID = &sc.ID
	}
	if q.Owner != "" {
		u, err := s.users.GetByUsername(ctx, strings.TrimSpace(q.Owner))
		if errors.Is(err, repository.ErrNotFound) {
			res.Detail = DetailOwnerNotFound
			return res, nil
		}
		if err != nil {
			return SearchResult{}, internal(err)
		}
		f.OwnerID = &u.ID
	}

	return s.run(ctx, f, order, p, res)
}

// Mine lists the caller's own listings.
func (s *ListingService) Mine(ctx context.Context, owner models.User, orderBy string, offset, limit int) (SearchResult, error) {
	order, ok := repository.ParseListingOrder(orderBy)
	if !ok {
		return SearchResult{}, ErrBadOrder
	}
	p, err := s.page(offset, limit)
	if err != nil {
		return SearchResult{}, err
	}
	res := SearchResult{Items: []ListingView{}, Offset: p.Offset, Limit: p.Limit}
	return s.run(ctx, repository.ListingFilter{OwnerID: &owner.ID}, order, p, res)
}

func (s *ListingService) run(ctx context.Context, f repository.ListingFilter, o repository.ListingOrder, p repository.Page, res SearchResult) (SearchResult, error) {
	rows, total, err := s.listings.Search(ctx, f, o, p)
	if err != nil {
		return SearchResult{}, internal(err)
	}
	items, err := s.enrich(ctx, rows)
	if err != nil {
		return SearchResult{}, internal(err)
	}
	res.Items = items
	res.Total = total
	res.Detail = DetailOK
	return res, nil
}

func (s *ListingService) categoryByName(ctx context.Context, name string) (models.Category, error) {
	title, _ := CleanCategoryTitle(name)
	return s.categories.CategoryByTitle(ctx, title)
}

func (s *ListingService) subcategoryByName(ctx context.Context, name string) (models.Subcategory, error) {
	title, _ := CleanCategoryTitle(name)
	return s.categories.SubcategoryByTitle(ctx, title)
}

// enrich attaches titles, owners and images using one batched lookup per kind.
func (s *ListingService) enrich(ctx context.Context, rows []models.Listing) ([]ListingView, error) {
	if len(rows) == 0 {
		return []ListingView{}, nil
	}
	ids := make([]string, 0, len(rows))
	owners := make([]string, 0, len(rows))
	cats := make([]uint, 0, len(rows))
	subs := make([]uint, 0, len(rows))
	for _, l := range rows {
		ids = append(ids, l.ID)
		owners = append(owners, l.OwnerID)
		cats = append(cats, l.CategoryID)
		subs = append(subs, l.SubcategoryID)
	}
	catTitles, subTitles, err := s.categories.Titles(ctx, utils.Unique(cats), utils.Unique(subs))
	if err != nil {
		return nil, err
	}
	users, err := s.users.ByIDs(ctx, utils.Unique(owners))
	if err != nil {
		return nil, err
	}
	images, err := s.listings.ImagesFor(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]ListingView, 0, len(rows))
	for _, l := range rows {
		v := ListingView{
			Listing:     l,
			Category:    DetailCategoryNotFound,
			Subcategory: DetailSubcategoryNotFound,
			Images:      images[l.ID],
		}
		if t, ok := catTitles[l.CategoryID]; ok {
			v.Category = t
		}
		if t, ok := subTitles[l.SubcategoryID]; ok {
			v.Subcategory = t
		}
		if u, ok := users[l.OwnerID]; ok {
			pub := u.Public()
			v.Owner = &pub
		}
		if v.Images == nil {
			v.Images = []models.ListingImage{}
		}
		out = append(out, v)
	}
	return out, nil
}

// Get returns one enriched listing.
func (s *ListingService) Get(ctx context.Context, id string) (ListingView, error) {
	var cached ListingView
	if utils.CacheGetJSON(utils.CacheListingPrefix+id, &cached) {
		return cached, nil
	}
	l, err := s.load(ctx, id)
	if err != nil {
		return ListingView{}, err
	}
	views, err := s.enrich(ctx, []models.Listing{l})
	if err != nil {
		return ListingView{}, internal(err)
	}
	utils.CacheSetJSON(utils.CacheListingPrefix+id, views[0], listingCacheTTL)
	return views[0], nil
}

func (s *ListingService) load(ctx context.Context, id string) (models.Listing, error) {
	l, err := s.listings.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return models.Listing{}, ErrListingNotFound
	}
	if err != nil {
		return models.Listing{}, internal(err)
	}
	return l, nil
}

type ListingStats struct {
	PV int64 `json:"pv"`
}

// Stats returns the all-time page views of a listing.
func (s *ListingService) Stats(ctx context.Context, id string) (ListingStats, error) {
	if _, err := s.load(ctx, id); err != nil {
		return ListingStats{}, err
	}
	pv, err := s.views.PathTotal(ctx, ListingPath(id))
	if err != nil {
		return ListingStats{}, internal(err)
	}
	return ListingStats{PV: pv}, nil
}

type ListingInput struct {
	Title       string  `json:"title" binding:"required"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
	Category    string  `json:"category" binding:"required"`
	Subcategory string  `json:"subcategory" binding:"required"`
}

func cleanListingTitle(raw string) (string, error) {
	title := utils.SanitizeText(strings.TrimSpace(raw))
	if n := utf8.RuneCountInString(title); n == 0 || n > maxTitleLen {
		return "", ErrListingTitle
	}
	return title, nil
}

func cleanDescription(raw string) (string, error) {
	desc := utils.SanitizeRich(strings.TrimSpace(raw))
	if utf8.RuneCountInString(desc) > maxDescription {
		return "", ErrDescriptionLong
	}
	return desc, nil
}

// resolvePair finds both categories by name and checks they belong together.
func (s *ListingService) resolvePair(ctx context.Context, category, subcategory string) (models.Category, models.Subcategory, error) {
	c, err := s.categoryByName(ctx, category)
	if errors.Is(err, repository.ErrNotFound) {
		return models.Category{}, models.Subcategory{}, ErrNoSuchCategory
	}
	if err != nil {
		return models.Category{}, models.Subcategory{}, internal(err)
	}
	sc, err := s.subcategoryByName(ctx, subcategory)
	if errors.Is(err, repository.ErrNotFound) {
		return models.Category{}, models.Subcategory{}, ErrNoSuchSubcategory
	}
	if err != nil {
		return models.Category{}, models.Subcategory{}, internal(err)
	}
	if sc.CategoryID != c.ID {
		return models.Category{}, models.Subcategory{}, ErrCategoryMismatch
	}
	return c, sc, nil
}

// PostLimit is the number of listings the user may own.
func (s *ListingService) PostLimit(u models.User) int {
	if u.IsVIP {
		if s.cfg.VIPPostsLimit > 0 {
			return s.cfg.VIPPostsLimit
		}
		return 50
	}
	if s.cfg.PostsLimit > 0 {
		return s.cfg.PostsLimit
	}
	return 10
}

// Create validates and stores a new listing. Featured mirrors the owner's VIP status.
func (s *ListingService) Create(ctx context.Context, owner models.User, in ListingInput) (ListingView, error) {
	if in.Price < 0 {
		return ListingView{}, ErrNegativePrice
	}
	title, err := cleanListingTitle(in.Title)
	if err != nil {
		return ListingView{}, err
	}
	desc, err := cleanDescription(in.Description)
	if err != nil {
		return ListingView{}, err
	}
	c, sc, err := s.resolvePair(ctx, in.Category, in.Subcategory)
	if err != nil {
		return ListingView{}, err
	}
	limit := s.PostLimit(owner)
	l, err := s.listings.Create(ctx, models.Listing{
		OwnerID:       owner.ID,
		CategoryID:    c.ID,
		SubcategoryID: sc.ID,
		Title:         title,
		Slug:          ListingSlug(title),
		Price:         in.Price,
		Description:   desc,
		Featured:      owner.IsVIP,
	}, limit)
	if errors.Is(err, repository.ErrLimitReached) {
		return ListingView{}, ErrPostLimit(limit)
	}
	if err != nil {
		return ListingView{}, internal(err)
	}
	pub := owner.Public()
	return ListingView{Listing: l, Category: c.Title, Subcategory: sc.Title, Owner: &pub, Images: []models.ListingImage{}}, nil
}

// ListingPatch changes selected fields of a listing. Nil means unchanged.
type ListingPatch struct {
	Title       *string  `json:"title"`
	Price       *float64 `json:"price"`
	Description *string  `json:"description"`
	Category    *string  `json:"category"`
	Subcategory *string  `json:"subcategory"`
}

func canManage(actor models.User, l models.Listing) bool {
	return actor.IsStaff || actor.ID == l.OwnerID
}

// Update applies a patch for the owner or staff.
func (s *ListingService) Update(ctx context.Context, actor models.User, id string, in ListingPatch) (ListingView, error) {
	l, err := s.load(ctx, id)
	if err != nil {
		return ListingView{}, err
	}
	if !canManage(actor, l) {
		return ListingView{}, ErrNotOwner
	}

	var upd repository.ListingUpdate
	if in.Price != nil {
		if *in.Price < 0 {
			return ListingView{}, ErrNegativePrice
		}
		upd.Price = in.Price
	}
	if in.Title != nil {
		title, err := cleanListingTitle(*in.Title)
		if err != nil {
			return ListingView{}, err
		}
		if title != l.Title {
			slug := ListingSlug(title)
			upd.Title, upd.Slug = &title, &slug
		}
	}
	if in.Description != nil {
		desc, err := cleanDescription(*in.Description)
		if err != nil {
			return ListingView{}, err
		}
		upd.Description = &desc
	}
	if err := s.patchCategories(ctx, l, in, &upd); err != nil {
		return ListingView{}, err
	}

	l, err = s.listings.Update(ctx, id, upd)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ListingView{}, ErrListingNotFound
		}
		return ListingView{}, internal(err)
	}
	utils.CacheDelete(utils.CacheListingPrefix + id)
	views, err := s.enrich(ctx, []models.Listing{l})
	if err != nil {
		return ListingView{}, internal(err)
	}
	return views[0], nil
}

// patchCategories keeps the subcategory inside the category whichever side changes.
func (s *ListingService) patchCategories(ctx context.Context, l models.Listing, in ListingPatch, upd *repository.ListingUpdate) error {
	switch {
	case in.Category != nil && in.Subcategory != nil:
		c, sc, err := s.resolvePair(ctx, *in.Category, *in.Subcategory)
		if err != nil {
			return err
		}
		upd.CategoryID, upd.SubcategoryID = &c.ID, &sc.ID
	case in.Category != nil:
		c, err := s.categoryByName(ctx, *in.Category)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNoSuchCategory
		}
		if err != nil {
			return internal(err)
		}
		subs, err := s.categories.Subcategories(ctx, c.ID)
		if err != nil {
			return internal(err)
		}
		for _, sc := range subs {
			if sc.ID == l.SubcategoryID {
				upd.CategoryID = &c.ID
				return nil
			}
		}
		return ErrCategoryMismatch
	case in.Subcategory != nil:
		sc, err := s.subcategoryByName(ctx, *in.Subcategory)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNoSuchSubcategory
		}
		if err != nil {
			return internal(err)
		}
		if sc.CategoryID != l.CategoryID {
			return ErrCategoryMismatch
		}
		upd.SubcategoryID = &sc.ID
	}
	return nil
}

// Delete removes a listing for the owner or staff.
func (s *ListingService) Delete(ctx context.Context, actor models.User, id string) error {
	l, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !canManage(actor, l) {
		return ErrNotOwner
	}
	if err := s.listings.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrListingNotFound
		}
		return internal(err)
	}
	utils.CacheDelete(utils.CacheListingPrefix + id)
	return nil
}

func (s *ListingService) maxImages() int {
	if s.cfg.MaxImagesPerListing > 0 {
		return s.cfg.MaxImagesPerListing
	}
	return 10
}

// ReplaceImages swaps the whole picture set of the owner's listing. Every
// file is decoded before anything is uploaded.
func (s *ListingService) ReplaceImages(ctx context.Context, owner models.User, id string, files []io.Reader) ([]models.ListingImage, error) {
	l, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.OwnerID != owner.ID {
		return nil, ErrNotOwner
	}
	if len(files) == 0 || len(files) > s.maxImages() {
		return nil, ErrImageCount
	}

	processed := make([]storage.Processed, 0, len(files))
	for _, f := range files {
		img, err := storage.ProcessImage(f, storage.LimitsFrom(s.cfg))
		switch {
		case errors.Is(err, storage.ErrImageTooLarge):
			return nil, ErrImageTooLarge
		case errors.Is(err, storage.ErrUnsupportedImage):
			return nil, ErrImageType
		case err != nil:
			return nil, internal(err)
		}
		processed = append(processed, img)
	}

	images := make([]models.ListingImage, 0, len(processed))
	keys := make([]string, 0, len(processed))
	for _, img := range processed {
		key := storage.ListingImageKey(id, img.Ext)
		location, err := s.store.Put(ctx, key, img.Data, img.ContentType)
		if err != nil {
			s.queueOrphans(ctx, keys)
			return nil, internal(err)
		}
		keys = append(keys, key)
		images = append(images, models.ListingImage{Image: location, Key: key})
	}

	saved, err := s.listings.ReplaceImages(ctx, id, images)
	if err != nil {
		s.queueOrphans(ctx, keys)
		return nil, internal(err)
	}
	utils.CacheDelete(utils.CacheListingPrefix + id)
	return saved, nil
}

func (s *ListingService) queueOrphans(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.orphans.Queue(qctx, keys...); err != nil {
		utils.Sugar.Errorf("queue orphaned files keys=%v err=%v", keys, err)
	}
}
