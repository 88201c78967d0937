package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/classifieds/utils"
)

type CategoryController struct {
	categories CategoryAPI
}

func NewCategoryController(categories CategoryAPI) *CategoryController {
	return &CategoryController{categories: categories}
}

type categoryRequest struct {
	Title string `json:"title" binding:"required"`
}

// Tree lists every category with its subcategories.
func (c *CategoryController) Tree(ctx *gin.Context) {
	tree, err := c.categories.Tree(ctx.Request.Context())
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"items": tree})
}

func (c *CategoryController) Subcategories(ctx *gin.Context) {
	subs, err := c.categories.Subcategories(ctx.Request.Context(), ctx.Param("slug"))
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"items": subs})
}

func (c *CategoryController) CreateCategory(ctx *gin.Context) {
	var req categoryRequest
	if !bindJSON(ctx, &req) {
		return
	}
	cat, err := c.categories.CreateCategory(ctx.Request.Context(), req.Title)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Created(ctx, cat)
}

func (c *CategoryController) CreateSubcategory(ctx *gin.Context) {
	var req categoryRequest
	if !bindJSON(ctx, &req) {
		return
	}
	sub, err := c.categories.CreateSubcategory(ctx.Request.Context(), ctx.Param("slug"), req.Title)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Created(ctx, sub)
}
