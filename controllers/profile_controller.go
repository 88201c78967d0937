package controllers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/classifieds/services"
	"github.com/cppla/classifieds/utils"
)

// ProfileController serves the caller's profile and public user pages.
type ProfileController struct {
	profiles ProfileAPI
}

func NewProfileController(profiles ProfileAPI) *ProfileController {
	return &ProfileController{profiles: profiles}
}

// Me returns the authenticated user's own account.
func (p *ProfileController) Me(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	utils.Success(ctx, gin.H{"user": user})
}

// UpdateMe edits names and email of the caller.
func (p *ProfileController) UpdateMe(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	var req services.ProfileUpdate
	if !bindJSON(ctx, &req) {
		return
	}
	updated, err := p.profiles.Update(ctx.Request.Context(), user, req)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"user": updated})
}

// UploadAvatar replaces the avatar from the multipart field "avatar".
func (p *ProfileController) UploadAvatar(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	fh, err := ctx.FormFile("avatar")
	if err != nil {
		utils.Fail(ctx, errNoFile)
		return
	}
	f, err := fh.Open()
	if err != nil {
		utils.Fail(ctx, errNoFile)
		return
	}
	defer f.Close()

	updated, err := p.profiles.Avatar(ctx.Request.Context(), user, f)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"user": updated})
}

// PublicProfile returns public user info by username.
func (p *ProfileController) PublicProfile(ctx *gin.Context) {
	username := strings.TrimSpace(ctx.Param("username"))
	profile, err := p.profiles.PublicProfile(ctx.Request.Context(), username)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"user": profile})
}
