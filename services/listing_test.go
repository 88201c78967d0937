package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cppla/classifieds/config"
	"github.com/cppla/classifieds/models"
	"github.com/cppla/classifieds/repository"
)

type listingFixture struct {
	listings   *mockListings
	categories *mockCategories
	users      *mockUsers
	views      *mockViews
	orphans    *recordingOrphans
	svc        *ListingService
}

func newListingFixture() listingFixture {
	f := listingFixture{
		listings:   new(mockListings),
		categories: new(mockCategories),
		users:      new(mockUsers),
		views:      new(mockViews),
		orphans:    &recordingOrphans{},
	}
	cfg := config.AppConfig{PostsLimit: 2, VIPPostsLimit: 5, ListingsPageSize: 20, ListingsMaxPageSize: 100}
	f.svc = NewListingService(f.listings, f.categories, f.users, f.views, nil, f.orphans, cfg)
	return f
}

var (
	electronics = models.Category{ID: 1, Title: "electronics", Slug: "electronics"}
	phones      = models.Subcategory{ID: 10, CategoryID: 1, Title: "phones", Slug: "phones"}
	furniture   = models.Category{ID: 2, Title: "furniture", Slug: "furniture"}
	chairs      = models.Subcategory{ID: 20, CategoryID: 2, Title: "chairs", Slug: "chairs"}
	seller      = models.User{ID: "u1", Username: "seller", IsActivated: true}
)

func TestCreateRejectsSubcategoryOfAnotherCategory(t *testing.T) {
	f := newListingFixture()
	f.categories.On("CategoryByTitle", "electronics").Return(electronics, nil)
	f.categories.On("SubcategoryByTitle", "chairs").Return(chairs, nil)

	_, err := f.svc.Create(context.Background(), seller, ListingInput{
		Title: "Phone", Price: 10, Category: "Electronics", Subcategory: "chairs",
	})

	assert.Equal(t, ErrCategoryMismatch, err)
	f.listings.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateValidationOrder(t *testing.T) {
	f := newListingFixture()
	_, err := f.svc.Create(context.Background(), seller, ListingInput{Title: "x", Price: -1, Category: "a", Subcategory: "b"})
	assert.Equal(t, ErrNegativePrice, err)

	f.categories.On("CategoryByTitle", "nowhere").Return(models.Category{}, repository.ErrNotFound)
	_, err = f.svc.Create(context.Background(), seller, ListingInput{Title: "x", Category: "nowhere", Subcategory: "b"})
	assert.Equal(t, ErrNoSuchCategory, err)

	f.categories.On("CategoryByTitle", "electronics").Return(electronics, nil)
	f.categories.On("SubcategoryByTitle", "tablets").Return(models.Subcategory{}, repository.ErrNotFound)
	_, err = f.svc.Create(context.Background(), seller, ListingInput{Title: "x", Category: "electronics", Subcategory: "tablets"})
	assert.Equal(t, ErrNoSuchSubcategory, err)
}

func TestCreateEnforcesTierLimit(t *testing.T) {
	f := newListingFixture()
	f.categories.On("CategoryByTitle", "electronics").Return(electronics, nil)
	f.categories.On("SubcategoryByTitle", "phones").Return(phones, nil)
	f.listings.On("Create", mock.Anything, 2).Return(models.Listing{}, repository.ErrLimitReached)

	_, err := f.svc.Create(context.Background(), seller, ListingInput{Title: "Phone", Category: "electronics", Subcategory: "phones"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "you can create up to 2 posts")

	vip := seller
	vip.IsVIP = true
	assert.Equal(t, 5, f.svc.PostLimit(vip))
}

func TestCreateCopiesVIPToFeatured(t *testing.T) {
	f := newListingFixture()
	owner := seller
	owner.IsVIP = true
	f.categories.On("CategoryByTitle", "electronics").Return(electronics, nil)
	f.categories.On("SubcategoryByTitle", "phones").Return(phones, nil)
	f.listings.On("Create", mock.MatchedBy(func(l models.Listing) bool {
		return l.Featured && l.OwnerID == "u1" && l.CategoryID == 1 && l.SubcategoryID == 10 && l.Title == "Phone"
	}), 5).Return(models.Listing{ID: "l1", Title: "Phone", Featured: true}, nil)

	view, err := f.svc.Create(context.Background(), owner, ListingInput{Title: " Phone ", Price: 99.5, Category: "electronics", Subcategory: "phones"})
	require.NoError(t, err)
	assert.Equal(t, "electronics", view.Category)
	assert.Equal(t, "phones", view.Subcategory)
	assert.Equal(t, "seller", view.Owner.Username)
	f.listings.AssertExpectations(t)
}

func TestSearchUnresolvedNamesReturnEmptyPage(t *testing.T) {
	f := newListingFixture()
	f.categories.On("CategoryByTitle", "boats").Return(models.Category{}, repository.ErrNotFound)
	f.categories.On("SubcategoryByTitle", "yachts").Return(models.Subcategory{}, repository.ErrNotFound)
	f.users.On("GetByUsername", "ghost").Return(models.User{}, repository.ErrNotFound)

	cases := []struct {
		q      SearchQuery
		detail string
	}{
		{SearchQuery{Category: "boats"}, DetailCategoryNotFound},
		{SearchQuery{Subcategory: "yachts"}, DetailSubcategoryNotFound},
		{SearchQuery{Owner: "ghost"}, DetailOwnerNotFound},
	}
	for _, tc := range cases {
		res, err := f.svc.Search(context.Background(), tc.q)
		require.NoError(t, err)
		assert.Equal(t, tc.detail, res.Detail)
		assert.Empty(t, res.Items)
		assert.Zero(t, res.Total)
	}
	f.listings.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything)
}

func TestSearchResolvesAndEnriches(t *testing.T) {
	f := newListingFixture()
	f.categories.On("CategoryByTitle", "electronics").Return(electronics, nil)
	f.users.On("GetByUsername", "seller").Return(seller, nil)

	rows := []models.Listing{
		{ID: "l1", OwnerID: "u1", CategoryID: 1, SubcategoryID: 10, Featured: true},
		{ID: "l2", OwnerID: "u1", CategoryID: 1, SubcategoryID: 99},
	}
	f.listings.On("Search", mock.MatchedBy(func(lf repository.ListingFilter) bool {
		return lf.CategoryID != nil && *lf.CategoryID == 1 && lf.OwnerID != nil && *lf.OwnerID == "u1"
	}), repository.OrderCheapest, repository.Page{Offset: 0, Limit: 100}).Return(rows, int64(7), nil)
	f.categories.On("Titles", []uint{1}, []uint{10, 99}).Return(map[uint]string{1: "electronics"}, map[uint]string{10: "phones"}, nil)
	f.users.On("ByIDs", []string{"u1"}).Return(map[string]models.User{"u1": seller}, nil)
	f.listings.On("ImagesFor", []string{"l1", "l2"}).Return(map[string][]models.ListingImage{
		"l1": {{ID: 1, ListingID: "l1", Image: "a.jpg"}},
	}, nil)

	res, err := f.svc.Search(context.Background(), SearchQuery{
		OrderBy: "cheapest", Category: "Electronics", Owner: "seller", Limit: 500,
	})
	require.NoError(t, err)
	assert.Equal(t, DetailOK, res.Detail)
	assert.Equal(t, int64(7), res.Total)
	assert.Equal(t, 100, res.Limit)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "phones", res.Items[0].Subcategory)
	assert.Equal(t, DetailSubcategoryNotFound, res.Items[1].Subcategory)
	assert.Len(t, res.Items[0].Images, 1)
	assert.NotNil(t, res.Items[1].Images)
	assert.Equal(t, "seller", res.Items[1].Owner.Username)
}

func TestSearchRejectsBadInput(t *testing.T) {
	f := newListingFixture()
	_, err := f.svc.Search(context.Background(), SearchQuery{OrderBy: "random"})
	assert.Equal(t, ErrBadOrder, err)
	_, err = f.svc.Search(context.Background(), SearchQuery{Offset: -1})
	assert.Equal(t, ErrBadPage, err)
	_, err = f.svc.Search(context.Background(), SearchQuery{Limit: -5})
	assert.Equal(t, ErrBadPage, err)
}

func TestUpdateRequiresOwnerOrStaff(t *testing.T) {
	f := newListingFixture()
	f.listings.On("Get", "l1").Return(models.Listing{ID: "l1", OwnerID: "someone-else"}, nil)
	title := "New"
	_, err := f.svc.Update(context.Background(), seller, "l1", ListingPatch{Title: &title})
	assert.Equal(t, ErrNotOwner, err)

	f.listings.On("Get", "missing").Return(models.Listing{}, repository.ErrNotFound)
	_, err = f.svc.Update(context.Background(), seller, "missing", ListingPatch{})
	assert.Equal(t, ErrListingNotFound, err)
}

func TestUpdateCategoryKeepsSubcategoryConsistent(t *testing.T) {
	f := newListingFixture()
	staff := models.User{ID: "s1", IsStaff: true}
	f.listings.On("Get", "l1").Return(models.Listing{ID: "l1", OwnerID: "u1", CategoryID: 1, SubcategoryID: 10}, nil)
	f.categories.On("CategoryByTitle", "furniture").Return(furniture, nil)
	f.categories.On("Subcategories", uint(2)).Return([]models.Subcategory{chairs}, nil)

	cat := "furniture"
	_, err := f.svc.Update(context.Background(), staff, "l1", ListingPatch{Category: &cat})
	assert.Equal(t, ErrCategoryMismatch, err)
	f.listings.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestReplaceImagesValidatesCount(t *testing.T) {
	f := newListingFixture()
	f.listings.On("Get", "l1").Return(models.Listing{ID: "l1", OwnerID: "u1"}, nil)
	_, err := f.svc.ReplaceImages(context.Background(), seller, "l1", nil)
	assert.Equal(t, ErrImageCount, err)

	_, err = f.svc.ReplaceImages(context.Background(), models.User{ID: "staff", IsStaff: true}, "l1", nil)
	assert.Equal(t, ErrNotOwner, err)
}
