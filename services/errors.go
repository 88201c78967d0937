package services

import (
	"fmt"

	"github.com/cppla/classifieds/apperr"
)

var (
	// auth
	ErrPasswordNumeric   = apperr.Validation(40010, "Password can't be totally numerical")
	ErrPasswordShort     = apperr.Validation(40011, "Your password is too short")
	ErrPasswordLong      = apperr.Validation(40019, "Your password is too long")
	ErrPasswordMismatch  = apperr.Validation(40012, "Two passwords didn't match")
	ErrInvalidEmail      = apperr.Validation(40013, "Invalid email format")
	ErrInvalidUsername   = apperr.Validation(40014, "Username must be 3-32 characters of letters, digits, '_', '.' or '-'")
	ErrOldPassword       = apperr.Validation(40015, "Old password is incorrect.")
	ErrCaptcha           = apperr.Validation(40016, "invalid captcha")
	ErrAlreadyActivated  = apperr.Validation(40017, "User is already activated")
	ErrBadCredentials    = apperr.Unauthorized(40110, "Incorrect username or password")
	ErrTokenInvalid      = apperr.Unauthorized(40111, "Token is invalid or expired")
	ErrTokenBlacklisted  = apperr.Unauthorized(40112, "Token is blacklisted")
	ErrVerifyFailed      = apperr.Unauthorized(40113, "User not found or already activated")
	ErrRefreshRevoked    = apperr.Validation(40018, "Token is blacklisted")
	ErrRefreshInvalid    = apperr.Forbidden(40310, "Token is invalid or expired")
	ErrSignupCooldown    = apperr.TooManyRequests(42910, "too many signup attempts, try again later")
	ErrSignupDailyLimit  = apperr.TooManyRequests(42911, "daily signup limit reached for this address")
	ErrMailCooldown      = apperr.TooManyRequests(42912, "please wait before requesting another email")
	ErrOAuthProvider     = apperr.Validation(40020, "unsupported or unconfigured oauth provider")
	ErrOAuthState        = apperr.Validation(40021, "invalid or expired state")
	ErrOAuthExchange     = apperr.Validation(40022, "failed to exchange code")
	ErrUserNotFound      = apperr.NotFound(40401, "User not found")
	ErrInvalidAvatar     = apperr.Validation(40030, "avatar must be a jpg or png image")
	ErrImageTooLarge     = apperr.Validation(40031, "image is too large")
	ErrCategoryMissing   = apperr.NotFound(40402, "This category doesn't exist.")
	ErrCategoryTaken     = apperr.Validation(40040, "A category with this title already exists.")
	ErrCategoryEmpty     = apperr.Validation(40041, "title must contain letters")
	ErrNegativePrice     = apperr.Validation(40050, "price can't be negative")
	ErrNoSuchCategory    = apperr.Validation(40051, "Category does not exist.")
	ErrNoSuchSubcategory = apperr.Validation(40052, "Subcategory does not exist.")
	ErrCategoryMismatch  = apperr.Validation(40053, "Subcategory is not in the specified category.")
	ErrListingTitle      = apperr.Validation(40054, "title must be 1-64 characters")
	ErrDescriptionLong   = apperr.Validation(40055, "description must be at most 512 characters")
	ErrImageCount        = apperr.Validation(40056, "between 1 and 10 images are required")
	ErrImageType         = apperr.Validation(40057, "only jpg and png images are allowed")
	ErrBadOrder          = apperr.Validation(40058, "order_by must be one of newest, oldest, cheapest, expensive")
	ErrBadPage           = apperr.Validation(40059, "offset must be >= 0 and limit > 0")
	ErrListingNotFound   = apperr.NotFound(40403, "Post not found")
	ErrNotOwner          = apperr.Forbidden(40320, "You are not the owner of this post")
	ErrReportNotFound    = apperr.NotFound(40404, "Report not found")
	ErrReportForbidden   = apperr.Forbidden(40330, "You don't have access to this report")
	ErrReportClosed      = apperr.Conflict(40930, "Report is already closed")
	ErrReportTitle       = apperr.Validation(40061, "title must be 1-64 characters")
	ErrReportBody        = apperr.Validation(40062, "body can't be empty")
	ErrCommentForbidden  = apperr.Forbidden(40331, "You are not allowed to comment on this report")
	ErrVIPDays           = apperr.Validation(40070, "days must be between 1 and 3650")
)

// ErrPostLimit reports the listing cap of the caller's tier.
func ErrPostLimit(limit int) *apperr.Error {
	return apperr.Validation(40060, fmt.Sprintf("Post limit exceeded, you can create up to %d posts", limit))
}

func errCategoryTooLong(n int) *apperr.Error {
	return apperr.Validation(40042, fmt.Sprintf("A category name is too long, max:64, yours is:%d", n))
}

func errSlugTooLong(n int) *apperr.Error {
	return apperr.Validation(40043, fmt.Sprintf("A category slug is too long, max:128, yours is:%d", n))
}

// internal wraps unexpected store failures.
func internal(err error) error {
	if err == nil {
		return nil
	}
	return apperr.Internal(50001, err)
}
