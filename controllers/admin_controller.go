package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/classifieds/utils"
)

// AdminController exposes the staff tools.
type AdminController struct {
	admin AdminAPI
}

func NewAdminController(admin AdminAPI) *AdminController {
	return &AdminController{admin: admin}
}

// DailyReport builds, stores and mails today's report and returns its numbers.
func (a *AdminController) DailyReport(ctx *gin.Context) {
	rep, err := a.admin.DailyReport(ctx.Request.Context())
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, rep)
}

func (a *AdminController) GrantVIP(ctx *gin.Context) {
	var req struct {
		Days int `json:"days" binding:"required"`
	}
	if !bindJSON(ctx, &req) {
		return
	}
	user, err := a.admin.GrantVIP(ctx.Request.Context(), ctx.Param("id"), req.Days)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"user": user})
}

func (a *AdminController) RevokeVIP(ctx *gin.Context) {
	user, err := a.admin.RevokeVIP(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"user": user})
}
