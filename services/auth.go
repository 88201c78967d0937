package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/cppla/classifieds/apperr"
	"github.com/cppla/classifieds/config"
	"github.com/cppla/classifieds/models"
	"github.com/cppla/classifieds/repository"
	"github.com/cppla/classifieds/tokens"
	"github.com/cppla/classifieds/utils"
)

// AuthService covers registration, login and the token flows built on top of them.
type AuthService struct {
	users  UserStore
	tokens TokenIssuer
	mail   Mailer
	guard  Guard
	cfg    config.AppConfig
}

func NewAuthService(users UserStore, tm TokenIssuer, mail Mailer, guard Guard, cfg config.AppConfig) *AuthService {
	return &AuthService{users: users, tokens: tm, mail: mail, guard: guard, cfg: cfg}
}

type SignupInput struct {
	Username      string `json:"username" binding:"required"`
	Email         string `json:"email" binding:"required"`
	Password      string `json:"password" binding:"required"`
	Confirm       string `json:"password_confirm"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	CaptchaID     string `json:"captcha_id"`
	CaptchaAnswer string `json:"captcha_answer"`
	IP            string `json:"-"`
}

// Signup creates an inactive account and mails a verification link.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := ValidateUsername(in.Username); err != nil {
		return models.User{}, err
	}
	if err := ValidatePassword(in.Password); err != nil {
		return models.User{}, err
	}
	if in.Password != in.Confirm {
		return models.User{}, ErrPasswordMismatch
	}
	if err := ValidateEmail(in.Email); err != nil {
		return models.User{}, err
	}
	if s.cfg.RegisterCaptchaEnabled && !s.guard.VerifyCaptcha(strings.TrimSpace(in.CaptchaID), strings.TrimSpace(in.CaptchaAnswer)) {
		return models.User{}, ErrCaptcha
	}
	if !s.guard.SignupCooldownTry(in.IP) {
		return models.User{}, ErrSignupCooldown
	}
	if !s.guard.SignupDailyAllowed(in.IP) {
		return models.User{}, ErrSignupDailyLimit
	}

	if field, err := s.takenField(ctx, in.Email, in.Username); err != nil {
		return models.User{}, internal(err)
	} else if field != "" {
		return models.User{}, errInUse(field)
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return models.User{}, internal(err)
	}
	user, err := s.users.Create(ctx, models.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    utils.SanitizeText(strings.TrimSpace(in.FirstName)),
		LastName:     utils.SanitizeText(strings.TrimSpace(in.LastName)),
	})
	if errors.Is(err, repository.ErrDuplicate) {
		// A concurrent signup took the name or address after the check above.
		if field, _ := s.takenField(ctx, in.Email, in.Username); field != "" {
			return models.User{}, errInUse(field)
		}
		return models.User{}, errInUse("username or email")
	}
	if err != nil {
		return models.User{}, internal(err)
	}
	s.guard.SignupDailyIncrement(in.IP)
	s.SendVerification(ctx, user)
	return user, nil
}

// takenField names the first unique column already holding the value, or "".
func (s *AuthService) takenField(ctx context.Context, email, username string) (string, error) {
	for _, f := range []struct{ column, value string }{{"email", email}, {"username", username}} {
		taken, err := s.users.ExistsBy(ctx, f.column, f.value)
		if err != nil {
			return "", err
		}
		if taken {
			return f.column, nil
		}
	}
	return "", nil
}

func errInUse(field string) *apperr.Error {
	return apperr.Conflict(40901, fmt.Sprintf("This %s is already in use.", field))
}

// SendVerification mails a one-time activation link. Failures are logged, not returned.
func (s *AuthService) SendVerification(ctx context.Context, u models.User) {
	token, err := s.tokens.IssueVerify(identityOf(u))
	if err != nil {
		utils.Logger.Error("issue verify token", zap.String("user_id", u.ID), zap.Error(err))
		return
	}
	link := s.link("/api/v1/auth/verify", token)
	s.dispatch(ctx, utils.Mail{
		To:      []string{u.Email},
		Subject: "Verify Your Email Address",
		Body:    fmt.Sprintf("Hi %s,\n\nconfirm your email address by opening the link below:\n%s\n", u.Username, link),
	})
}

func (s *AuthService) link(path, token string) string {
	return strings.TrimRight(s.cfg.PublicBaseURL, "/") + path + "?token=" + url.QueryEscape(token)
}

func (s *AuthService) dispatch(ctx context.Context, m utils.Mail) {
	if err := s.mail.Dispatch(ctx, m); err != nil {
		utils.Logger.Warn("mail dispatch failed", zap.Strings("to", m.To), zap.String("subject", m.Subject), zap.Error(err))
	}
}

// Verify consumes a verification token and activates its account.
func (s *AuthService) Verify(ctx context.Context, token string) (models.User, error) {
	claims, err := s.tokens.ConsumeVerify(ctx, strings.TrimSpace(token))
	if err != nil {
		return models.User{}, tokenError(err)
	}
	u, err := s.users.Get(ctx, claims.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return models.User{}, ErrVerifyFailed
	}
	if err != nil {
		return models.User{}, internal(err)
	}
	if u.IsActivated {
		return models.User{}, ErrVerifyFailed
	}
	activated := true
	u, err = s.users.Update(ctx, u.ID, repository.UserUpdate{IsActivated: &activated})
	if err != nil {
		return models.User{}, internal(err)
	}
	return u, nil
}

// ResendVerification mails a fresh link to a not yet activated account.
func (s *AuthService) ResendVerification(ctx context.Context, u models.User) error {
	if u.IsActivated {
		return ErrAlreadyActivated
	}
	if !s.guard.EmailCooldownTry("verify", u.ID) {
		return ErrMailCooldown
	}
	s.SendVerification(ctx, u)
	return nil
}

// Login accepts a username or an email together with the password.
func (s *AuthService) Login(ctx context.Context, login, password string) (tokens.Pair, error) {
	u, err := s.users.GetByLogin(ctx, strings.TrimSpace(login))
	if errors.Is(err, repository.ErrNotFound) {
		return tokens.Pair{}, ErrBadCredentials
	}
	if err != nil {
		return tokens.Pair{}, internal(err)
	}
	if !utils.CheckPassword(u.PasswordHash, password) {
		return tokens.Pair{}, ErrBadCredentials
	}
	return s.issue(u)
}

func (s *AuthService) issue(u models.User) (tokens.Pair, error) {
	pair, err := s.tokens.Issue(identityOf(u))
	if err != nil {
		return tokens.Pair{}, internal(err)
	}
	return pair, nil
}

// Refresh rotates a refresh token. Reuse of a rotated token is rejected.
func (s *AuthService) Refresh(ctx context.Context, refresh string) (tokens.Pair, error) {
	pair, _, err := s.tokens.Refresh(ctx, strings.TrimSpace(refresh))
	switch {
	case err == nil:
		return pair, nil
	case errors.Is(err, tokens.ErrTokenRevoked):
		return tokens.Pair{}, ErrRefreshRevoked
	case errors.Is(err, tokens.ErrInvalidToken):
		return tokens.Pair{}, ErrRefreshInvalid
	default:
		return tokens.Pair{}, internal(err)
	}
}

// Logout revokes the access token and, when it belongs to the same user, the refresh token.
func (s *AuthService) Logout(ctx context.Context, id tokens.Identity, access, refresh string) error {
	if err := s.tokens.Revoke(ctx, access); err != nil {
		return internal(err)
	}
	refresh = strings.TrimSpace(refresh)
	if refresh == "" {
		return nil
	}
	claims, err := s.tokens.Verify(refresh, tokens.ClassRefresh)
	if err != nil || claims.UserID != id.UserID {
		return nil
	}
	return internal(s.tokens.Revoke(ctx, refresh))
}

type PasswordChange struct {
	OldPassword  string `json:"old_password" binding:"required"`
	NewPassword1 string `json:"new_password1" binding:"required"`
	NewPassword2 string `json:"new_password2" binding:"required"`
}

// ChangePassword replaces the password of a signed in user and returns a new pair.
func (s *AuthService) ChangePassword(ctx context.Context, u models.User, in PasswordChange) (tokens.Pair, error) {
	if !utils.CheckPassword(u.PasswordHash, in.OldPassword) {
		return tokens.Pair{}, ErrOldPassword
	}
	if err := s.setPassword(ctx, u.ID, in.NewPassword1, in.NewPassword2); err != nil {
		return tokens.Pair{}, err
	}
	return s.issue(u)
}

func checkNewPassword(p1, p2 string) error {
	if err := ValidatePassword(p1); err != nil {
		return err
	}
	if p1 != p2 {
		return ErrPasswordMismatch
	}
	return nil
}

func (s *AuthService) setPassword(ctx context.Context, userID, p1, p2 string) error {
	if err := checkNewPassword(p1, p2); err != nil {
		return err
	}
	hash, err := utils.HashPassword(p1)
	if err != nil {
		return internal(err)
	}
	if _, err := s.users.Update(ctx, userID, repository.UserUpdate{PasswordHash: &hash}); err != nil {
		return internal(err)
	}
	return nil
}

// ForgotPassword mails a reset link when the account exists. Unknown logins
// and throttled requests succeed silently.
func (s *AuthService) ForgotPassword(ctx context.Context, login string) error {
	u, err := s.users.GetByLogin(ctx, strings.TrimSpace(login))
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return internal(err)
	}
	if !s.guard.EmailCooldownTry("reset", u.ID) {
		return nil
	}
	token, err := s.tokens.IssueReset(identityOf(u))
	if err != nil {
		return internal(err)
	}
	s.dispatch(ctx, utils.Mail{
		To:      []string{u.Email},
		Subject: "Reset Your Password",
		Body: fmt.Sprintf("Hi %s,\n\nuse the link below to choose a new password. It expires in %d minutes.\n%s\n",
			u.Username, s.cfg.ResetTokenTTLMinutes, s.link("/api/v1/auth/password-reset", token)),
	})
	return nil
}

type PasswordReset struct {
	NewPassword1 string `json:"new_password1" binding:"required"`
	NewPassword2 string `json:"new_password2" binding:"required"`
}

// ResetPassword consumes a reset token, sets the new password and signs the user in.
// The passwords are checked first so a typo does not burn the token.
func (s *AuthService) ResetPassword(ctx context.Context, token string, in PasswordReset) (tokens.Pair, error) {
	if err := checkNewPassword(in.NewPassword1, in.NewPassword2); err != nil {
		return tokens.Pair{}, err
	}
	claims, err := s.tokens.ConsumeReset(ctx, strings.TrimSpace(token))
	if err != nil {
		return tokens.Pair{}, tokenError(err)
	}
	u, err := s.users.Get(ctx, claims.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return tokens.Pair{}, ErrUserNotFound
	}
	if err != nil {
		return tokens.Pair{}, internal(err)
	}
	if err := s.setPassword(ctx, u.ID, in.NewPassword1, in.NewPassword2); err != nil {
		return tokens.Pair{}, err
	}
	return s.issue(u)
}

// DeleteAccount removes the user with everything they own and revokes the presented token.
func (s *AuthService) DeleteAccount(ctx context.Context, u models.User, access string) error {
	if err := s.users.Delete(ctx, u.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return internal(err)
	}
	if err := s.tokens.Revoke(ctx, access); err != nil {
		utils.Logger.Warn("revoke token after account delete", zap.String("user_id", u.ID), zap.Error(err))
	}
	utils.InvalidateByPrefix(utils.CacheListingPrefix)
	return nil
}

func tokenError(err error) error {
	switch {
	case errors.Is(err, tokens.ErrTokenRevoked):
		return ErrTokenBlacklisted
	case errors.Is(err, tokens.ErrInvalidToken):
		return ErrTokenInvalid
	default:
		return internal(err)
	}
}

// CaptchaChallenge is a fresh captcha for the signup form.
type CaptchaChallenge struct {
	ID    string `json:"id"`
	Image string `json:"image"`
}

func (s *AuthService) Captcha() (CaptchaChallenge, error) {
	id, b64, err := utils.GenerateCaptcha()
	if err != nil {
		return CaptchaChallenge{}, internal(err)
	}
	return CaptchaChallenge{ID: id, Image: b64}, nil
}
