package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/classifieds/config"
	"github.com/cppla/classifieds/models"
	"github.com/cppla/classifieds/repository"
	"github.com/cppla/classifieds/storage"
	"github.com/cppla/classifieds/utils"
)

// VerificationSender mails activation links.
type VerificationSender interface {
	SendVerification(ctx context.Context, u models.User)
}

type ProfileService struct {
	users   UserStore
	store   storage.Store
	orphans OrphanQueue
	verify  VerificationSender
	cfg     config.AppConfig
}

func NewProfileService(users UserStore, store storage.Store, orphans OrphanQueue, verify VerificationSender, cfg config.AppConfig) *ProfileService {
	return &ProfileService{users: users, store: store, orphans: orphans, verify: verify, cfg: cfg}
}

// ProfileUpdate carries the editable fields. Nil means unchanged.
type ProfileUpdate struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Email     *string `json:"email"`
}

// Update edits the profile. A new email address resets activation and
// triggers a fresh verification mail.
func (s *ProfileService) Update(ctx context.Context, u models.User, in ProfileUpdate) (models.User, error) {
	var upd repository.UserUpdate
	if in.FirstName != nil {
		v := truncateBytes(utils.SanitizeText(strings.TrimSpace(*in.FirstName)), maxTitleLen)
		upd.FirstName = &v
	}
	if in.LastName != nil {
		v := truncateBytes(utils.SanitizeText(strings.TrimSpace(*in.LastName)), maxTitleLen)
		upd.LastName = &v
	}
	emailChanged := false
	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		if !strings.EqualFold(email, u.Email) {
			if err := ValidateEmail(email); err != nil {
				return models.User{}, err
			}
			taken, err := s.users.ExistsBy(ctx, "email", email)
			if err != nil {
				return models.User{}, internal(err)
			}
			if taken {
				return models.User{}, errInUse("email")
			}
			inactive := false
			upd.Email = &email
			upd.IsActivated = &inactive
			emailChanged = true
		}
	}

	updated, err := s.users.Update(ctx, u.ID, upd)
	if errors.Is(err, repository.ErrDuplicate) {
		return models.User{}, errInUse("email")
	}
	if err != nil {
		return models.User{}, internal(err)
	}
	utils.CacheDelete(utils.CacheUserPrefix + u.Username)
	if emailChanged && s.verify != nil {
		s.verify.SendVerification(ctx, updated)
	}
	return updated, nil
}

// Avatar stores a resized picture and points the profile at it.
func (s *ProfileService) Avatar(ctx context.Context, u models.User, r io.Reader) (models.User, error) {
	img, err := storage.ProcessImage(r, storage.LimitsFrom(s.cfg))
	switch {
	case errors.Is(err, storage.ErrImageTooLarge):
		return models.User{}, ErrImageTooLarge
	case errors.Is(err, storage.ErrUnsupportedImage):
		return models.User{}, ErrInvalidAvatar
	case err != nil:
		return models.User{}, internal(err)
	}

	key := storage.AvatarKey(u.ID, img.Ext)
	location, err := s.store.Put(ctx, key, img.Data, img.ContentType)
	if err != nil {
		return models.User{}, internal(err)
	}
	updated, err := s.users.Update(ctx, u.ID, repository.UserUpdate{Avatar: &location, AvatarKey: &key})
	if err != nil {
		s.queueOrphans(ctx, key)
		return models.User{}, internal(err)
	}
	s.queueOrphans(ctx, u.AvatarKey)
	utils.CacheDelete(utils.CacheUserPrefix + u.Username)
	return updated, nil
}

func (s *ProfileService) queueOrphans(ctx context.Context, keys ...string) {
	keys = nonEmpty(keys)
	if len(keys) == 0 {
		return
	}
	// Detached so a cancelled request still records the keys
	qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.orphans.Queue(qctx, keys...); err != nil {
		utils.Logger.Error("queue orphaned files", zap.Strings("keys", keys), zap.Error(err))
	}
}

func nonEmpty(ss []string) []string {
	out := ss[:0:0]
	for _, v := range ss {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// PublicProfile returns what other users may see about an account.
func (s *ProfileService) PublicProfile(ctx context.Context, username string) (models.PublicUser, error) {
	username = strings.TrimSpace(username)
	var cached models.PublicUser
	if utils.CacheGetJSON(utils.CacheUserPrefix+username, &cached) {
		return cached, nil
	}
	u, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return models.PublicUser{}, ErrUserNotFound
	}
	if err != nil {
		return models.PublicUser{}, internal(err)
	}
	pub := u.Public()
	utils.CacheSetJSON(utils.CacheUserPrefix+username, pub, time.Hour)
	return pub, nil
}
