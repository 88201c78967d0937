package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/classifieds/middleware"
	"github.com/cppla/classifieds/services"
	"github.com/cppla/classifieds/utils"
)

// AuthController handles registration, login and the token flows.
type AuthController struct {
	auth  AuthAPI
	oauth OAuthAPI
}

// NewAuthController creates a new AuthController instance.
func NewAuthController(auth AuthAPI, oauth OAuthAPI) *AuthController {
	return &AuthController{auth: auth, oauth: oauth}
}

// Signup registers an inactive account and mails the verification link.
func (a *AuthController) Signup(ctx *gin.Context) {
	var req services.SignupInput
	if !bindJSON(ctx, &req) {
		return
	}
	req.IP = ctx.ClientIP()

	user, err := a.auth.Signup(ctx.Request.Context(), req)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Created(ctx, gin.H{"user": user})
}

// Verify activates the account behind a verification link.
func (a *AuthController) Verify(ctx *gin.Context) {
	token := ctx.Query("token")
	if token == "" {
		utils.Fail(ctx, errMissingToken)
		return
	}
	user, err := a.auth.Verify(ctx.Request.Context(), token)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"user": user})
}

func (a *AuthController) ResendVerification(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	if err := a.auth.ResendVerification(ctx.Request.Context(), user); err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"message": "verification email sent"})
}

// Login exchanges a username or email and password for a token pair.
// Both JSON and form bodies are accepted.
func (a *AuthController) Login(ctx *gin.Context) {
	var req struct {
		Username string `json:"username" form:"username" binding:"required"`
		Password string `json:"password" form:"password" binding:"required"`
	}
	if err := ctx.ShouldBind(&req); err != nil {
		utils.Fail(ctx, errBadPayload)
		return
	}
	pair, err := a.auth.Login(ctx.Request.Context(), req.Username, req.Password)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, pair)
}

// Refresh rotates the refresh token.
func (a *AuthController) Refresh(ctx *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if !bindJSON(ctx, &req) {
		return
	}
	pair, err := a.auth.Refresh(ctx.Request.Context(), req.RefreshToken)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, pair)
}

// Logout revokes the access token and the optional refresh token in the body.
func (a *AuthController) Logout(ctx *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if ctx.Request.ContentLength > 0 && !bindJSON(ctx, &req) {
		return
	}
	id, _ := middleware.CurrentIdentity(ctx)
	if err := a.auth.Logout(ctx.Request.Context(), id, middleware.AccessToken(ctx), req.RefreshToken); err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"message": "logged out"})
}

func (a *AuthController) ChangePassword(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	var req services.PasswordChange
	if !bindJSON(ctx, &req) {
		return
	}
	pair, err := a.auth.ChangePassword(ctx.Request.Context(), user, req)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, pair)
}

// ForgotPassword always answers 200 so accounts cannot be enumerated.
func (a *AuthController) ForgotPassword(ctx *gin.Context) {
	var req struct {
		Login string `json:"login" binding:"required"`
	}
	if !bindJSON(ctx, &req) {
		return
	}
	if err := a.auth.ForgotPassword(ctx.Request.Context(), req.Login); err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"message": "if the account exists, a reset link has been sent"})
}

func (a *AuthController) ResetPassword(ctx *gin.Context) {
	token := ctx.Query("token")
	if token == "" {
		utils.Fail(ctx, errMissingToken)
		return
	}
	var req services.PasswordReset
	if !bindJSON(ctx, &req) {
		return
	}
	pair, err := a.auth.ResetPassword(ctx.Request.Context(), token, req)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, pair)
}

// DeleteAccount removes the caller and everything they own.
func (a *AuthController) DeleteAccount(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	if err := a.auth.DeleteAccount(ctx.Request.Context(), user, middleware.AccessToken(ctx)); err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"message": "account deleted"})
}

// Captcha issues a new captcha challenge.
func (a *AuthController) Captcha(ctx *gin.Context) {
	c, err := a.auth.Captcha()
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, c)
}

// OAuthRedirect generates a provider-specific authorization URL.
func (a *AuthController) OAuthRedirect(ctx *gin.Context) {
	url, state, err := a.oauth.AuthURL(ctx.Param("provider"))
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"authorization_url": url, "state": state})
}

// OAuthCallback exchanges the authorization code and signs the user in.
func (a *AuthController) OAuthCallback(ctx *gin.Context) {
	code := ctx.Query("code")
	state := ctx.Query("state")
	if code == "" || state == "" {
		utils.Fail(ctx, services.ErrOAuthState)
		return
	}
	pair, err := a.oauth.Callback(ctx.Request.Context(), ctx.Param("provider"), code, state)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, pair)
}
