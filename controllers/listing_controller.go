package controllers

import (
	"io"
	"mime/multipart"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/classifieds/services"
	"github.com/cppla/classifieds/utils"
)

// ListingController manages listings and their images.
type ListingController struct {
	listings ListingAPI
}

// NewListingController creates a new ListingController instance.
func NewListingController(listings ListingAPI) *ListingController {
	return &ListingController{listings: listings}
}

func searchQuery(ctx *gin.Context) (services.SearchQuery, error) {
	q := services.SearchQuery{
		OrderBy:     ctx.Query("order_by"),
		Title:       ctx.Query("title"),
		Category:    strings.TrimSpace(ctx.Query("category")),
		Subcategory: strings.TrimSpace(ctx.Query("subcategory")),
		Owner:       strings.TrimSpace(ctx.Query("owner")),
	}
	if id := strings.TrimSpace(ctx.Query("id")); id != "" {
		q.ID = &id
	}
	var err error
	if q.CreatedFrom, err = timeQuery(ctx, "created_from", false); err != nil {
		return q, err
	}
	if q.CreatedTo, err = timeQuery(ctx, "created_to", true); err != nil {
		return q, err
	}
	if q.Featured, err = boolQuery(ctx, "featured"); err != nil {
		return q, err
	}
	if q.MinPrice, err = floatQuery(ctx, "min_price"); err != nil {
		return q, err
	}
	if q.MaxPrice, err = floatQuery(ctx, "max_price"); err != nil {
		return q, err
	}
	if q.Offset, q.Limit, err = pageParams(ctx); err != nil {
		return q, err
	}
	return q, nil
}

// List runs the filtered listing search.
func (l *ListingController) List(ctx *gin.Context) {
	q, err := searchQuery(ctx)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	res, err := l.listings.Search(ctx.Request.Context(), q)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, res)
}

// Mine lists the caller's own listings.
func (l *ListingController) Mine(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	offset, limit, err := pageParams(ctx)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	res, err := l.listings.Mine(ctx.Request.Context(), user, ctx.Query("order_by"), offset, limit)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, res)
}

// Get returns one listing with its images.
func (l *ListingController) Get(ctx *gin.Context) {
	view, err := l.listings.Get(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, view)
}

func (l *ListingController) Create(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	var req services.ListingInput
	if !bindJSON(ctx, &req) {
		return
	}
	view, err := l.listings.Create(ctx.Request.Context(), user, req)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Created(ctx, view)
}

func (l *ListingController) Update(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	var req services.ListingPatch
	if !bindJSON(ctx, &req) {
		return
	}
	view, err := l.listings.Update(ctx.Request.Context(), user, ctx.Param("id"), req)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, view)
}

func (l *ListingController) Delete(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	if err := l.listings.Delete(ctx.Request.Context(), user, ctx.Param("id")); err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"message": "listing deleted"})
}

// ReplaceImages swaps all pictures with the multipart files under "images".
func (l *ListingController) ReplaceImages(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	form, err := ctx.MultipartForm()
	if err != nil {
		utils.Fail(ctx, errNoFile)
		return
	}
	headers := form.File["images"]
	files := make([]io.Reader, 0, len(headers))
	opened := make([]multipart.File, 0, len(headers))
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			utils.Fail(ctx, errNoFile)
			return
		}
		opened = append(opened, f)
		files = append(files, f)
	}

	images, err := l.listings.ReplaceImages(ctx.Request.Context(), user, ctx.Param("id"), files)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"images": images})
}
