package controllers

import (
	"context"
	"io"

	"github.com/cppla/classifieds/models"
	"github.com/cppla/classifieds/services"
	"github.com/cppla/classifieds/tokens"
)

// AuthAPI is implemented by services.AuthService.
type AuthAPI interface {
	Signup(ctx context.Context, in services.SignupInput) (models.User, error)
	Verify(ctx context.Context, token string) (models.User, error)
	ResendVerification(ctx context.Context, u models.User) error
	Login(ctx context.Context, login, password string) (tokens.Pair, error)
	Refresh(ctx context.Context, refresh string) (tokens.Pair, error)
	Logout(ctx context.Context, id tokens.Identity, access, refresh string) error
	ChangePassword(ctx context.Context, u models.User, in services.PasswordChange) (tokens.Pair, error)
	ForgotPassword(ctx context.Context, login string) error
	ResetPassword(ctx context.Context, token string, in services.PasswordReset) (tokens.Pair, error)
	DeleteAccount(ctx context.Context, u models.User, access string) error
	Captcha() (services.CaptchaChallenge, error)
}

// OAuthAPI is implemented by services.OAuthService.
type OAuthAPI interface {
	AuthURL(provider string) (string, string, error)
	Callback(ctx context.Context, provider, code, state string) (tokens.Pair, error)
}

type ProfileAPI interface {
	Update(ctx context.Context, u models.User, in services.ProfileUpdate) (models.User, error)
	Avatar(ctx context.Context, u models.User, r io.Reader) (models.User, error)
	PublicProfile(ctx context.Context, username string) (models.PublicUser, error)
}

type ListingAPI interface {
	Search(ctx context.Context, q services.SearchQuery) (services.SearchResult, error)
	Mine(ctx context.Context, owner models.User, orderBy string, offset, limit int) (services.SearchResult, error)
	Get(ctx context.Context, id string) (services.ListingView, error)
	Create(ctx context.Context, owner models.User, in services.ListingInput) (services.ListingView, error)
	Update(ctx context.Context, actor models.User, id string, in services.ListingPatch) (services.ListingView, error)
	Delete(ctx context.Context, actor models.User, id string) error
	ReplaceImages(ctx context.Context, owner models.User, id string, files []io.Reader) ([]models.ListingImage, error)
}

type CategoryAPI interface {
	Tree(ctx context.Context) ([]models.Category, error)
	Subcategories(ctx context.Context, slug string) ([]models.Subcategory, error)
	CreateCategory(ctx context.Context, raw string) (models.Category, error)
	CreateSubcategory(ctx context.Context, parentSlug, raw string) (models.Subcategory, error)
}

type ReportAPI interface {
	Create(ctx context.Context, u models.User, in services.ReportInput) (services.ReportView, error)
	ListOpen(ctx context.Context, offset, limit int) (services.ReportPage, error)
	Get(ctx context.Context, actor models.User, id uint) (services.ReportView, error)
	Close(ctx context.Context, staff models.User, id uint) (models.BugReport, error)
	AddComment(ctx context.Context, actor models.User, id uint, body string) (services.CommentView, error)
	Comments(ctx context.Context, actor models.User, id uint, offset, limit int) (services.CommentPage, error)
}

type AdminAPI interface {
	DailyReport(ctx context.Context) (services.DailyReport, error)
	GrantVIP(ctx context.Context, userID string, days int) (models.User, error)
	RevokeVIP(ctx context.Context, userID string) (models.User, error)
}

// SiteStats is implemented by services.AdminService.
type SiteStats interface {
	Stats(ctx context.Context) services.Stats
}

// ListingStats is implemented by services.ListingService.
type ListingStats interface {
	Stats(ctx context.Context, id string) (services.ListingStats, error)
}
