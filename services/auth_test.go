package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cppla/classifieds/apperr"
	"github.com/cppla/classifieds/config"
	"github.com/cppla/classifieds/models"
	"github.com/cppla/classifieds/repository"
	"github.com/cppla/classifieds/tokens"
	"github.com/cppla/classifieds/utils"
)

type authFixture struct {
	users  *mockUsers
	tokens *mockTokens
	mail   *mockMailer
	guard  *openGuard
	svc    *AuthService
}

func newAuthFixture() authFixture {
	f := authFixture{users: new(mockUsers), tokens: new(mockTokens), mail: new(mockMailer), guard: &openGuard{captcha: true}}
	f.svc = NewAuthService(f.users, f.tokens, f.mail, f.guard, config.AppConfig{PublicBaseURL: "https://market.example/", ResetTokenTTLMinutes: 10})
	return f
}

func validSignup() SignupInput {
	return SignupInput{Username: "alice", Email: "alice@example.com", Password: "correct-horse", Confirm: "correct-horse", IP: "10.0.0.1"}
}

func TestSignupRejectsNumericPassword(t *testing.T) {
	f := newAuthFixture()
	in := validSignup()
	in.Password, in.Confirm = "12345678", "12345678"

	_, err := f.svc.Signup(context.Background(), in)
	assert.Equal(t, ErrPasswordNumeric, err)
	f.users.AssertNotCalled(t, "Create", mock.Anything)
}

func TestSignupRejectsMismatchAndBadEmail(t *testing.T) {
	f := newAuthFixture()
	in := validSignup()
	in.Confirm = "something-else"
	_, err := f.svc.Signup(context.Background(), in)
	assert.Equal(t, ErrPasswordMismatch, err)

	in = validSignup()
	in.Email = "not-an-email"
	_, err = f.svc.Signup(context.Background(), in)
	assert.Equal(t, ErrInvalidEmail, err)
}

func TestSignupDuplicateEmail(t *testing.T) {
	f := newAuthFixture()
	f.users.On("ExistsBy", "email", "alice@example.com").Return(true, nil)

	_, err := f.svc.Signup(context.Background(), validSignup())
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindConflict, ae.Kind)
	assert.Equal(t, "This email is already in use.", ae.Message)
}

func TestSignupConcurrentDuplicateNamesTheField(t *testing.T) {
	f := newAuthFixture()
	f.users.On("ExistsBy", "email", "alice@example.com").Return(false, nil).Once()
	f.users.On("ExistsBy", "email", "alice@example.com").Return(true, nil).Once()
	f.users.On("ExistsBy", "username", "alice").Return(false, nil).Once()
	f.users.On("Create", mock.Anything).Return(models.User{}, repository.ErrDuplicate)

	_, err := f.svc.Signup(context.Background(), validSignup())
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindConflict, ae.Kind)
	assert.Equal(t, "This email is already in use.", ae.Message)
	assert.Zero(t, f.guard.signups)
}

func TestSignupDuplicateWithoutVisibleRow(t *testing.T) {
	f := newAuthFixture()
	f.users.On("ExistsBy", mock.Anything, mock.Anything).Return(false, nil)
	f.users.On("Create", mock.Anything).Return(models.User{}, repository.ErrDuplicate)

	_, err := f.svc.Signup(context.Background(), validSignup())
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "This username or email is already in use.", ae.Message)
}

func TestSignupCreatesInactiveUserAndMailsLink(t *testing.T) {
	f := newAuthFixture()
	f.users.On("ExistsBy", mock.Anything, mock.Anything).Return(false, nil)
	f.users.On("Create", mock.MatchedBy(func(u models.User) bool {
		return u.Username == "alice" && !u.IsActivated && utils.CheckPassword(u.PasswordHash, "correct-horse")
	})).Return(models.User{ID: "u1", Username: "alice", Email: "alice@example.com"}, nil)
	f.tokens.On("IssueVerify", tokens.Identity{UserID: "u1", Username: "alice"}).Return("tok en", nil)
	f.mail.On("Dispatch", mock.MatchedBy(func(m utils.Mail) bool {
		return m.To[0] == "alice@example.com" && strings.Contains(m.Body, "https://market.example/api/v1/auth/verify?token=tok+en")
	})).Return(nil)

	u, err := f.svc.Signup(context.Background(), validSignup())
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, 1, f.guard.signups)
	f.mail.AssertExpectations(t)
}

func TestSignupCaptcha(t *testing.T) {
	f := newAuthFixture()
	f.svc.cfg.RegisterCaptchaEnabled = true
	f.guard.captcha = false

	_, err := f.svc.Signup(context.Background(), validSignup())
	assert.Equal(t, ErrCaptcha, err)
}

func TestLoginBadCredentials(t *testing.T) {
	f := newAuthFixture()
	hash, err := utils.HashPassword("correct-horse")
	require.NoError(t, err)
	f.users.On("GetByLogin", "alice").Return(models.User{ID: "u1", Username: "alice", PasswordHash: hash}, nil)
	f.users.On("GetByLogin", "nobody").Return(models.User{}, repository.ErrNotFound)

	_, err = f.svc.Login(context.Background(), "alice", "wrong-horse")
	assert.Equal(t, ErrBadCredentials, err)
	_, err = f.svc.Login(context.Background(), "nobody", "correct-horse")
	assert.Equal(t, ErrBadCredentials, err)

	f.tokens.On("Issue", tokens.Identity{UserID: "u1", Username: "alice"}).Return(tokens.Pair{AccessToken: "a", RefreshToken: "r"}, nil)
	pair, err := f.svc.Login(context.Background(), " alice ", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "a", pair.AccessToken)
}

func TestRefreshErrorMapping(t *testing.T) {
	f := newAuthFixture()
	f.tokens.On("Refresh", "used").Return(tokens.Pair{}, tokens.Claims{}, tokens.ErrTokenRevoked)
	f.tokens.On("Refresh", "garbage").Return(tokens.Pair{}, tokens.Claims{}, tokens.ErrInvalidToken)
	f.tokens.On("Refresh", "good").Return(tokens.Pair{AccessToken: "a2"}, tokens.Claims{UserID: "u1"}, nil)

	_, err := f.svc.Refresh(context.Background(), "used")
	assert.Equal(t, ErrRefreshRevoked, err)
	_, err = f.svc.Refresh(context.Background(), "garbage")
	assert.Equal(t, ErrRefreshInvalid, err)
	pair, err := f.svc.Refresh(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "a2", pair.AccessToken)
}

func TestLogoutSkipsForeignRefresh(t *testing.T) {
	f := newAuthFixture()
	f.tokens.On("Revoke", "access").Return(nil)
	f.tokens.On("Verify", "theirs", tokens.ClassRefresh).Return(tokens.Claims{UserID: "u2"}, nil)

	require.NoError(t, f.svc.Logout(context.Background(), tokens.Identity{UserID: "u1"}, "access", "theirs"))
	f.tokens.AssertNotCalled(t, "Revoke", "theirs")

	f.tokens.On("Verify", "mine", tokens.ClassRefresh).Return(tokens.Claims{UserID: "u1"}, nil)
	f.tokens.On("Revoke", "mine").Return(nil)
	require.NoError(t, f.svc.Logout(context.Background(), tokens.Identity{UserID: "u1"}, "access", "mine"))
	f.tokens.AssertCalled(t, "Revoke", "mine")
}

func TestForgotPasswordUnknownLoginIsSilent(t *testing.T) {
	f := newAuthFixture()
	f.users.On("GetByLogin", "ghost@example.com").Return(models.User{}, repository.ErrNotFound)

	assert.NoError(t, f.svc.ForgotPassword(context.Background(), "ghost@example.com"))
	f.mail.AssertNotCalled(t, "Dispatch", mock.Anything)
	f.tokens.AssertNotCalled(t, "IssueReset", mock.Anything)
}

func TestForgotPasswordMailsResetLink(t *testing.T) {
	f := newAuthFixture()
	f.users.On("GetByLogin", "alice").Return(models.User{ID: "u1", Username: "alice", Email: "alice@example.com"}, nil)
	f.tokens.On("IssueReset", mock.Anything).Return("reset-token", nil)
	f.mail.On("Dispatch", mock.MatchedBy(func(m utils.Mail) bool {
		return strings.Contains(m.Body, "/api/v1/auth/password-reset?token=reset-token") && strings.Contains(m.Body, "10 minutes")
	})).Return(nil)

	require.NoError(t, f.svc.ForgotPassword(context.Background(), "alice"))
	f.mail.AssertExpectations(t)
}

func TestResetPasswordChecksInputBeforeConsuming(t *testing.T) {
	f := newAuthFixture()
	_, err := f.svc.ResetPassword(context.Background(), "tok", PasswordReset{NewPassword1: "correct-horse", NewPassword2: "other-horse"})
	assert.Equal(t, ErrPasswordMismatch, err)
	f.tokens.AssertNotCalled(t, "ConsumeReset", mock.Anything)

	f.tokens.On("ConsumeReset", "spent").Return(tokens.Claims{}, tokens.ErrTokenRevoked)
	_, err = f.svc.ResetPassword(context.Background(), "spent", PasswordReset{NewPassword1: "correct-horse", NewPassword2: "correct-horse"})
	assert.Equal(t, ErrTokenBlacklisted, err)
}

func TestVerifyActivatesOnce(t *testing.T) {
	f := newAuthFixture()
	f.tokens.On("ConsumeVerify", "v1").Return(tokens.Claims{UserID: "u1"}, nil)
	f.users.On("Get", "u1").Return(models.User{ID: "u1"}, nil).Once()
	f.users.On("Update", "u1", mock.MatchedBy(func(upd repository.UserUpdate) bool {
		return upd.IsActivated != nil && *upd.IsActivated
	})).Return(models.User{ID: "u1", IsActivated: true}, nil)

	u, err := f.svc.Verify(context.Background(), "v1")
	require.NoError(t, err)
	assert.True(t, u.IsActivated)

	f.tokens.On("ConsumeVerify", "v2").Return(tokens.Claims{UserID: "u1"}, nil)
	f.users.On("Get", "u1").Return(models.User{ID: "u1", IsActivated: true}, nil)
	_, err = f.svc.Verify(context.Background(), "v2")
	assert.Equal(t, ErrVerifyFailed, err)

	f.tokens.On("ConsumeVerify", "bad").Return(tokens.Claims{}, tokens.ErrInvalidToken)
	_, err = f.svc.Verify(context.Background(), "bad")
	assert.Equal(t, ErrTokenInvalid, err)
}
