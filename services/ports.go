// Package services holds the business rules behind the HTTP handlers.
//
// Each service depends on small store interfaces satisfied by the gorm
// repositories, so handlers and tests can swap in fakes.
package services

import (
	"context"
	"time"

	"github.com/cppla/classifieds/models"
	"github.com/cppla/classifieds/repository"
	"github.com/cppla/classifieds/tokens"
	"github.com/cppla/classifieds/utils"
)

type UserStore interface {
	Get(ctx context.Context, id string) (models.User, error)
	GetByUsername(ctx context.Context, username string) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	GetByLogin(ctx context.Context, login string) (models.User, error)
	GetByProvider(ctx context.Context, provider, providerID string) (models.User, error)
	ExistsBy(ctx context.Context, column, value string) (bool, error)
	Create(ctx context.Context, u models.User) (models.User, error)
	Update(ctx context.Context, id string, upd repository.UserUpdate) (models.User, error)
	SetVIP(ctx context.Context, id string, vip bool, grantedAt, expiresAt *time.Time) (models.User, error)
	Count(ctx context.Context, f repository.UserFilter) (int64, error)
	ByIDs(ctx context.Context, ids []string) (map[string]models.User, error)
	StaffEmails(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, id string) error
}

type ListingStore interface {
	Search(ctx context.Context, f repository.ListingFilter, o repository.ListingOrder, p repository.Page) ([]models.Listing, int64, error)
	Count(ctx context.Context, f repository.ListingFilter) (int64, error)
	Get(ctx context.Context, id string) (models.Listing, error)
	Create(ctx context.Context, l models.Listing, limit int) (models.Listing, error)
	Update(ctx context.Context, id string, upd repository.ListingUpdate) (models.Listing, error)
	Delete(ctx context.Context, id string) error
	ReplaceImages(ctx context.Context, id string, images []models.ListingImage) ([]models.ListingImage, error)
	ImagesFor(ctx context.Context, ids []string) (map[string][]models.ListingImage, error)
	AveragePrice(ctx context.Context) (float64, error)
}

type CategoryStore interface {
	Tree(ctx context.Context) ([]models.Category, error)
	CategoryByTitle(ctx context.Context, title string) (models.Category, error)
	CategoryBySlug(ctx context.Context, slug string) (models.Category, error)
	SubcategoryByTitle(ctx context.Context, title string) (models.Subcategory, error)
	Subcategories(ctx context.Context, categoryID uint) ([]models.Subcategory, error)
	TitleOrSlugTaken(ctx context.Context, sub bool, title, slug string) (bool, error)
	CreateCategory(ctx context.Context, c models.Category) (models.Category, error)
	CreateSubcategory(ctx context.Context, s models.Subcategory) (models.Subcategory, error)
	Titles(ctx context.Context, categoryIDs, subcategoryIDs []uint) (map[uint]string, map[uint]string, error)
}

type ReportStore interface {
	Create(ctx context.Context, rep models.BugReport) (models.BugReport, error)
	Get(ctx context.Context, id uint) (models.BugReport, error)
	List(ctx context.Context, f repository.ReportFilter, p repository.Page) ([]models.BugReport, int64, error)
	Close(ctx context.Context, id uint, closerID string, at time.Time) (models.BugReport, error)
	AddComment(ctx context.Context, c models.BugReportComment) (models.BugReportComment, error)
	Comments(ctx context.Context, reportID uint, p repository.Page) ([]models.BugReportComment, int64, error)
}

// OrphanQueue records storage keys that no row references anymore.
type OrphanQueue interface {
	Queue(ctx context.Context, keys ...string) error
}

// ViewCounter reads the page view totals.
type ViewCounter interface {
	Total(ctx context.Context, at time.Time, prefix string) (int64, error)
	PathTotal(ctx context.Context, path string) (int64, error)
}

// TokenIssuer is the subset of tokens.Manager the services need.
type TokenIssuer interface {
	Issue(id tokens.Identity) (tokens.Pair, error)
	IssueReset(id tokens.Identity) (string, error)
	IssueVerify(id tokens.Identity) (string, error)
	Verify(token string, class tokens.Class) (tokens.Claims, error)
	Revoke(ctx context.Context, token string) error
	Refresh(ctx context.Context, refresh string) (tokens.Pair, tokens.Claims, error)
	ConsumeReset(ctx context.Context, token string) (tokens.Claims, error)
	ConsumeVerify(ctx context.Context, token string) (tokens.Claims, error)
}

// Mailer hands mail to the delivery queue.
type Mailer interface {
	Dispatch(ctx context.Context, m utils.Mail) error
}

// Guard bundles the anti-abuse checks on the signup and mail paths.
type Guard interface {
	VerifyCaptcha(id, answer string) bool
	SignupCooldownTry(ip string) bool
	SignupDailyAllowed(ip string) bool
	SignupDailyIncrement(ip string)
	EmailCooldownTry(kind, account string) bool
}

type redisGuard struct{}

// RedisGuard backs Guard with the Redis throttles and captcha store.
func RedisGuard() Guard { return redisGuard{} }

func (redisGuard) VerifyCaptcha(id, answer string) bool { return utils.VerifyCaptcha(id, answer) }
func (redisGuard) SignupCooldownTry(ip string) bool { return utils.SignupCooldownTry(ip) }
func (redisGuard) SignupDailyAllowed(ip string) bool { return utils.SignupDailyAllowed(ip) }
func (redisGuard) SignupDailyIncrement(ip string) { utils.SignupDailyIncrement(ip) }
func (redisGuard) EmailCooldownTry(kind, acc string) bool { return utils.EmailCooldownTry(kind, acc) }

func identityOf(u models.User) tokens.Identity {
	return tokens.Identity{UserID: u.ID, Username: u.Username, IsActivated: u.IsActivated, IsStaff: u.IsStaff}
}
