// Package tokens issues, verifies and revokes the JWTs used by the API.
//
// Access and refresh tokens are signed with different secrets. One-time
// tokens (password reset, email verification) ride on the access secret with
// their own typ claim and are revoked on first use.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/cppla/classifieds/config"
)

var (
	// ErrInvalidToken covers bad signatures, expiry, missing claims and a typ mismatch.
	ErrInvalidToken = errors.New("token is invalid or expired")
	// ErrTokenRevoked is returned for tokens present in the denylist.
	ErrTokenRevoked = errors.New("token is blacklisted")
)

// Class tells which secret and typ claim a token carries.
type Class string

const (
	ClassAccess  Class = "access"
	ClassRefresh Class = "refresh"
	ClassReset   Class = "reset"
	ClassVerify  Class = "verify"
)

// Identity is what a token says about its bearer.
type Identity struct {
	UserID      string
	Username    string
	IsActivated bool
	IsStaff     bool
}

// Claims is the JWT payload.
type Claims struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	IsActivated bool   `json:"is_activated"`
	IsStaff     bool   `json:"is_staff"`
	Type        Class  `json:"typ"`
	jwt.RegisteredClaims
}

func (c Claims) Identity() Identity {
	return Identity{UserID: c.UserID, Username: c.Username, IsActivated: c.IsActivated, IsStaff: c.IsStaff}
}

// Pair is an access/refresh token pair.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// Denylist stores revoked tokens. Add reports whether this call created the entry.
type Denylist interface {
	Add(ctx context.Context, token string) (bool, error)
	Contains(ctx context.Context, token string) (bool, error)
}

// Config holds secrets and lifetimes.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	ResetTTL      time.Duration
	VerifyTTL     time.Duration
	// Now is the clock; time.Now when nil.
	Now func() time.Time
}

// ConfigFrom maps application settings onto a token Config.
func ConfigFrom(c config.AppConfig) Config {
	return Config{
		AccessSecret:  []byte(c.AccessTokenSecret),
		RefreshSecret: []byte(c.RefreshTokenSecret),
		AccessTTL:     time.Duration(c.AccessTokenTTLMinutes) * time.Minute,
		RefreshTTL:    time.Duration(c.RefreshTokenTTLDays) * 24 * time.Hour,
		ResetTTL:      time.Duration(c.ResetTokenTTLMinutes) * time.Minute,
		VerifyTTL:     time.Duration(c.VerifyTokenTTLHours) * time.Hour,
	}
}

// Manager implements the token lifecycle.
type Manager struct {
	cfg      Config
	denylist Denylist
}

// NewManager validates cfg. Both secrets are required and must differ.
func NewManager(cfg Config, denylist Denylist) (*Manager, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("tokens: access and refresh secrets are required")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("tokens: access and refresh secrets must differ")
	}
	if denylist == nil {
		return nil, errors.New("tokens: denylist is required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 30 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = 10 * time.Minute
	}
	if cfg.VerifyTTL <= 0 {
		cfg.VerifyTTL = 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{cfg: cfg, denylist: denylist}, nil
}

func (m *Manager) secret(class Class) []byte {
	if class == ClassRefresh {
		return m.cfg.RefreshSecret
	}
	return m.cfg.AccessSecret
}

func (m *Manager) ttl(class Class) time.Duration {
	switch class {
	case ClassRefresh:
		return m.cfg.RefreshTTL
	case ClassReset:
		return m.cfg.ResetTTL
	case ClassVerify:
		return m.cfg.VerifyTTL
	default:
		return m.cfg.AccessTTL
	}
}

func (m *Manager) sign(id Identity, class Class) (string, error) {
	now := m.cfg.Now()
	claims := Claims{
		UserID:      id.UserID,
		Username:    id.Username,
		IsActivated: id.IsActivated,
		IsStaff:     id.IsStaff,
		Type:        class,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl(class))),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret(class))
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", class, err)
	}
	return signed, nil
}

// Issue mints a fresh access/refresh pair for id.
func (m *Manager) Issue(id Identity) (Pair, error) {
	access, err := m.sign(id, ClassAccess)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := m.sign(id, ClassRefresh)
	if err != nil {
		return Pair{}, err
	}
	return Pair{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"}, nil
}

// IssueReset mints a one-time password reset token.
func (m *Manager) IssueReset(id Identity) (string, error) {
	return m.sign(id, ClassReset)
}

// IssueVerify mints a one-time email verification token.
func (m *Manager) IssueVerify(id Identity) (string, error) {
	return m.sign(id, ClassVerify)
}

// Verify checks signature, expiry and typ against class. It does not consult
// the denylist.
func (m *Manager) Verify(token string, class Class) (Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret(class), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.cfg.Now),
	)
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.Type != class || claims.UserID == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// IsRevoked reports whether token is in the denylist. Storage errors are
// returned, never treated as "not revoked".
func (m *Manager) IsRevoked(ctx context.Context, token string) (bool, error) {
	return m.denylist.Contains(ctx, token)
}

// Revoke adds token to the denylist. Revoking twice is harmless.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	_, err := m.denylist.Add(ctx, token)
	return err
}

// Claim verifies a single-use token and revokes it. Only the caller whose
// insert creates the denylist row succeeds; a replay gets ErrTokenRevoked.
func (m *Manager) Claim(ctx context.Context, token string, class Class) (Claims, error) {
	revoked, err := m.IsRevoked(ctx, token)
	if err != nil {
		return Claims{}, err
	}
	if revoked {
		return Claims{}, ErrTokenRevoked
	}
	claims, err := m.Verify(token, class)
	if err != nil {
		return Claims{}, err
	}
	inserted, err := m.denylist.Add(ctx, token)
	if err != nil {
		return Claims{}, err
	}
	if !inserted {
		return Claims{}, ErrTokenRevoked
	}
	return claims, nil
}

// Refresh rotates a refresh token: the old one is revoked and a new pair is
// issued for the identity it carried.
func (m *Manager) Refresh(ctx context.Context, refresh string) (Pair, Claims, error) {
	claims, err := m.Claim(ctx, refresh, ClassRefresh)
	if err != nil {
		return Pair{}, Claims{}, err
	}
	pair, err := m.Issue(claims.Identity())
	if err != nil {
		return Pair{}, Claims{}, err
	}
	return pair, claims, nil
}

// ConsumeReset claims a password reset token.
func (m *Manager) ConsumeReset(ctx context.Context, token string) (Claims, error) {
	return m.Claim(ctx, token, ClassReset)
}

// ConsumeVerify claims an email verification token.
func (m *Manager) ConsumeVerify(ctx context.Context, token string) (Claims, error) {
	return m.Claim(ctx, token, ClassVerify)
}
