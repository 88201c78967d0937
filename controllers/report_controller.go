package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/classifieds/services"
	"github.com/cppla/classifieds/utils"
)

// ReportController handles bug reports and their comment threads.
type ReportController struct {
	reports ReportAPI
}

func NewReportController(reports ReportAPI) *ReportController {
	return &ReportController{reports: reports}
}

func (r *ReportController) Create(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	var req services.ReportInput
	if !bindJSON(ctx, &req) {
		return
	}
	rep, err := r.reports.Create(ctx.Request.Context(), user, req)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Created(ctx, rep)
}

// ListOpen is the staff triage queue.
func (r *ReportController) ListOpen(ctx *gin.Context) {
	offset, limit, err := pageParams(ctx)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	page, err := r.reports.ListOpen(ctx.Request.Context(), offset, limit)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, page)
}

func (r *ReportController) Get(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := uintParam(ctx, "id")
	if !ok {
		return
	}
	rep, err := r.reports.Get(ctx.Request.Context(), user, id)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, rep)
}

func (r *ReportController) Close(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := uintParam(ctx, "id")
	if !ok {
		return
	}
	rep, err := r.reports.Close(ctx.Request.Context(), user, id)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, rep)
}

func (r *ReportController) AddComment(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := uintParam(ctx, "id")
	if !ok {
		return
	}
	var req struct {
		Body string `json:"body" binding:"required"`
	}
	if !bindJSON(ctx, &req) {
		return
	}
	c, err := r.reports.AddComment(ctx.Request.Context(), user, id, req.Body)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Created(ctx, c)
}

func (r *ReportController) Comments(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := uintParam(ctx, "id")
	if !ok {
		return
	}
	offset, limit, err := pageParams(ctx)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	page, err := r.reports.Comments(ctx.Request.Context(), user, id, offset, limit)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, page)
}
