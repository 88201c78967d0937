package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/classifieds/apperr"
	"github.com/cppla/classifieds/models"
	"github.com/cppla/classifieds/repository"
	"github.com/cppla/classifieds/tokens"
	"github.com/cppla/classifieds/utils"
)

const (
	// ContextIdentityKey stores the tokens.Identity of the caller.
	ContextIdentityKey = "identity"
	// ContextTokenKey stores the raw bearer token.
	ContextTokenKey = "access_token"
	// ContextUserKey caches the freshly loaded models.User.
	ContextUserKey = "current_user"
)

var (
	errHeaderMissing = apperr.Unauthorized(40101, "authorization header missing")
	errHeaderFormat  = apperr.Unauthorized(40102, "invalid authorization header format")
	errEmptyBearer   = apperr.Unauthorized(40103, "empty bearer token")
	errRevoked       = apperr.Unauthorized(40104, "Token is blacklisted")
	errInvalid       = apperr.Unauthorized(40105, "Token is invalid or expired")
	errUserGone      = apperr.Unauthorized(40106, "user not found")
	errInactive      = apperr.Forbidden(40301, "Inactive user")
	errNotStaff      = apperr.Forbidden(40302, "The user doesn't have enough privileges")
)

// TokenVerifier checks access tokens.
type TokenVerifier interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
	Verify(token string, class tokens.Class) (tokens.Claims, error)
}

// UserLookup loads the current state of an account.
type UserLookup interface {
	Get(ctx context.Context, id string) (models.User, error)
}

// AuthRequired ensures the request carries a valid, unrevoked access token.
func AuthRequired(tv TokenVerifier) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token, err := bearer(ctx.GetHeader("Authorization"))
		if err != nil {
			utils.Fail(ctx, err)
			ctx.Abort()
			return
		}

		revoked, err := tv.IsRevoked(ctx.Request.Context(), token)
		if err != nil {
			utils.Fail(ctx, apperr.Internal(50001, err))
			ctx.Abort()
			return
		}
		if revoked {
			utils.Fail(ctx, errRevoked)
			ctx.Abort()
			return
		}

		claims, err := tv.Verify(token, tokens.ClassAccess)
		if err != nil {
			utils.Fail(ctx, errInvalid)
			ctx.Abort()
			return
		}

		ctx.Set(ContextIdentityKey, claims.Identity())
		ctx.Set(ContextTokenKey, token)
		ctx.Next()
	}
}

func bearer(header string) (string, error) {
	if header == "" {
		return "", errHeaderMissing
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errHeaderFormat
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errEmptyBearer
	}
	return token, nil
}

// LoadUser attaches the current account without checking its flags.
func LoadUser(users UserLookup) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if _, ok := loadUser(ctx, users); !ok {
			return
		}
		ctx.Next()
	}
}

// RequireActivated rejects accounts that have not confirmed their email.
// Flags are read from the database, not from the token.
func RequireActivated(users UserLookup) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		u, ok := loadUser(ctx, users)
		if !ok {
			return
		}
		if !u.IsActivated {
			utils.Fail(ctx, errInactive)
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

// RequireStaff rejects non-staff accounts.
func RequireStaff(users UserLookup) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		u, ok := loadUser(ctx, users)
		if !ok {
			return
		}
		if !u.IsStaff {
			utils.Fail(ctx, errNotStaff)
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

func loadUser(ctx *gin.Context, users UserLookup) (models.User, bool) {
	if v, ok := ctx.Get(ContextUserKey); ok {
		if u, ok := v.(models.User); ok {
			return u, true
		}
	}
	id, ok := CurrentIdentity(ctx)
	if !ok {
		utils.Fail(ctx, errHeaderMissing)
		ctx.Abort()
		return models.User{}, false
	}
	u, err := users.Get(ctx.Request.Context(), id.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			utils.Fail(ctx, errUserGone)
		} else {
			utils.Fail(ctx, apperr.Internal(50002, err))
		}
		ctx.Abort()
		return models.User{}, false
	}
	ctx.Set(ContextUserKey, u)
	return u, true
}

// CurrentIdentity returns the identity set by AuthRequired.
func CurrentIdentity(ctx *gin.Context) (tokens.Identity, bool) {
	v, ok := ctx.Get(ContextIdentityKey)
	if !ok {
		return tokens.Identity{}, false
	}
	id, ok := v.(tokens.Identity)
	return id, ok
}

// CurrentUser returns the user loaded by RequireActivated or RequireStaff.
func CurrentUser(ctx *gin.Context) (models.User, bool) {
	v, ok := ctx.Get(ContextUserKey)
	if !ok {
		return models.User{}, false
	}
	u, ok := v.(models.User)
	return u, ok
}

// AccessToken returns the raw bearer token of an authenticated request.
func AccessToken(ctx *gin.Context) string {
	return ctx.GetString(ContextTokenKey)
}
