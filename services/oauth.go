package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"github.com/cppla/classifieds/config"
	"github.com/cppla/classifieds/models"
	"github.com/cppla/classifieds/repository"
	"github.com/cppla/classifieds/tokens"
	"github.com/cppla/classifieds/utils"
)

const oauthStateTTL = 10 * time.Minute

// OAuthService signs users in through GitHub or Google.
type OAuthService struct {
	users  UserStore
	tokens TokenIssuer
	cfg    config.AppConfig
	client *http.Client
}

func NewOAuthService(users UserStore, tm TokenIssuer, cfg config.AppConfig) *OAuthService {
	return &OAuthService{users: users, tokens: tm, cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}}
}

type oauthUser struct {
	ID        string
	Username  string
	FirstName string
	LastName  string
	Email     string
	AvatarURL string
}

// AuthURL returns the provider consent URL and the state bound to it.
func (s *OAuthService) AuthURL(provider string) (string, string, error) {
	oc, err := s.oauthConfig(provider)
	if err != nil {
		return "", "", err
	}
	state := uuid.NewString()
	utils.SaveState(state, oauthStateTTL)
	return oc.AuthCodeURL(state, oauth2.AccessTypeOffline), state, nil
}

// Callback exchanges the code, finds or creates the account and issues a token pair.
func (s *OAuthService) Callback(ctx context.Context, provider, code, state string) (tokens.Pair, error) {
	if code == "" || state == "" || !utils.ConsumeState(state) {
		return tokens.Pair{}, ErrOAuthState
	}
	oc, err := s.oauthConfig(provider)
	if err != nil {
		return tokens.Pair{}, err
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)
	tok, err := oc.Exchange(ctx, code)
	if err != nil {
		return tokens.Pair{}, ErrOAuthExchange.Wrap(err)
	}
	info, err := s.fetchUser(ctx, provider, oc.Client(ctx, tok))
	if err != nil {
		return tokens.Pair{}, internal(err)
	}
	u, err := s.findOrCreate(ctx, strings.ToLower(provider), info)
	if err != nil {
		return tokens.Pair{}, internal(err)
	}
	pair, err := s.tokens.Issue(identityOf(u))
	if err != nil {
		return tokens.Pair{}, internal(err)
	}
	return pair, nil
}

func (s *OAuthService) oauthConfig(provider string) (*oauth2.Config, error) {
	base := strings.TrimRight(s.cfg.OAuthRedirectBase, "/")
	switch strings.ToLower(provider) {
	case "github":
		if s.cfg.GitHubClientID == "" || s.cfg.GitHubClientSecret == "" {
			return nil, ErrOAuthProvider
		}
		return &oauth2.Config{
			ClientID:     s.cfg.GitHubClientID,
			ClientSecret: s.cfg.GitHubClientSecret,
			RedirectURL:  base + "/api/v1/auth/oauth/github/callback",
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		}, nil
	case "google":
		if s.cfg.GoogleClientID == "" || s.cfg.GoogleClientSecret == "" {
			return nil, ErrOAuthProvider
		}
		return &oauth2.Config{
			ClientID:     s.cfg.GoogleClientID,
			ClientSecret: s.cfg.GoogleClientSecret,
			RedirectURL:  base + "/api/v1/auth/oauth/google/callback",
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     google.Endpoint,
		}, nil
	default:
		return nil, ErrOAuthProvider
	}
}

func (s *OAuthService) fetchUser(ctx context.Context, provider string, client *http.Client) (oauthUser, error) {
	switch strings.ToLower(provider) {
	case "github":
		return fetchGitHubUser(ctx, client)
	case "google":
		return fetchGoogleUser(ctx, client)
	default:
		return oauthUser{}, ErrOAuthProvider
	}
}

// findOrCreate matches on provider and provider id. New accounts are activated.
func (s *OAuthService) findOrCreate(ctx context.Context, provider string, info oauthUser) (models.User, error) {
	u, err := s.users.GetByProvider(ctx, provider, info.ID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return models.User{}, err
	}

	email := strings.TrimSpace(info.Email)
	if email == "" || ValidateEmail(email) != nil {
		email = fmt.Sprintf("%s_%s@users.noreply.invalid", provider, info.ID)
	} else if taken, err := s.users.ExistsBy(ctx, "email", email); err != nil {
		return models.User{}, err
	} else if taken {
		email = fmt.Sprintf("%s_%s@users.noreply.invalid", provider, info.ID)
	}
	username, err := s.ensureUniqueUsername(ctx, info.Username, provider, info.ID)
	if err != nil {
		return models.User{}, err
	}
	return s.users.Create(ctx, models.User{
		Username:    username,
		Email:       email,
		FirstName:   truncateBytes(info.FirstName, maxTitleLen),
		LastName:    truncateBytes(info.LastName, maxTitleLen),
		Provider:    provider,
		ProviderID:  info.ID,
		IsActivated: true,
		Avatar:      info.AvatarURL,
	})
}

func fetchGitHubUser(ctx context.Context, client *http.Client) (oauthUser, error) {
	var payload struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := getJSON(ctx, client, "https://api.github.com/user", &payload); err != nil {
		return oauthUser{}, fmt.Errorf("github user info: %w", err)
	}

	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	email := ""
	if err := getJSON(ctx, client, "https://api.github.com/user/emails", &emails); err == nil {
		for _, e := range emails {
			if e.Primary && e.Verified {
				email = e.Email
				break
			}
		}
	}

	first, last, _ := strings.Cut(strings.TrimSpace(payload.Name), " ")
	return oauthUser{
		ID:        fmt.Sprintf("%d", payload.ID),
		Username:  payload.Login,
		FirstName: first,
		LastName:  strings.TrimSpace(last),
		Email:     email,
		AvatarURL: payload.AvatarURL,
	}, nil
}

func fetchGoogleUser(ctx context.Context, client *http.Client) (oauthUser, error) {
	var payload struct {
		ID         string `json:"id"`
		Email      string `json:"email"`
		Verified   bool   `json:"verified_email"`
		GivenName  string `json:"given_name"`
		FamilyName string `json:"family_name"`
		Picture    string `json:"picture"`
	}
	if err := getJSON(ctx, client, "https://www.googleapis.com/oauth2/v2/userinfo", &payload); err != nil {
		return oauthUser{}, fmt.Errorf("google user info: %w", err)
	}
	email := ""
	if payload.Verified {
		email = payload.Email
	}
	local, _, _ := strings.Cut(payload.Email, "@")
	return oauthUser{
		ID:        payload.ID,
		Username:  local,
		FirstName: payload.GivenName,
		LastName:  payload.FamilyName,
		Email:     email,
		AvatarURL: payload.Picture,
	}, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request failed: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// sanitizeUsername keeps the characters a local username may contain.
func sanitizeUsername(input string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(input)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "_.-")
}

func (s *OAuthService) ensureUniqueUsername(ctx context.Context, base, provider, id string) (string, error) {
	base = sanitizeUsername(base)
	if len(base) < 3 {
		base = sanitizeUsername(provider + "_" + id)
	}
	if len(base) > 26 {
		base = base[:26]
	}
	candidate := base
	for suffix := 1; ; suffix++ {
		taken, err := s.users.ExistsBy(ctx, "username", candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s_%d", base, suffix)
	}
}
