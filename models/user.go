package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const DefaultAvatar = "media/avatars/no_avatar.jpg"

// User is a marketplace account. Passwords are stored as bcrypt hashes only.
type User struct {
	ID           string      `gorm:"primaryKey;size:36" json:"id"`
	Username     string      `gorm:"size:32;not null;uniqueIndex" json:"username"`
	Email        string      `gorm:"size:64;not null;uniqueIndex" json:"email"`
	PasswordHash string      `gorm:"size:255" json:"-"`
	FirstName    string      `gorm:"size:64" json:"first_name"`
	LastName     string      `gorm:"size:64" json:"last_name"`
	Provider     string      `gorm:"size:32" json:"-"`
	ProviderID   string      `gorm:"size:255;index" json:"-"`
	JoinedAt     time.Time   `gorm:"index;not null" json:"joined_at"`
	IsActivated  bool        `gorm:"not null;default:false" json:"is_activated"`
	IsVIP        bool        `gorm:"column:is_vip;not null;default:false;index" json:"is_vip"`
	VIPGrantedAt *time.Time  `gorm:"column:vip_granted_at" json:"vip_granted_at,omitempty"`
	VIPExpiresAt *time.Time  `gorm:"column:vip_expires_at;index" json:"vip_expires_at,omitempty"`
	IsStaff      bool        `gorm:"not null;default:false" json:"is_staff"`
	Avatar       string      `gorm:"size:512" json:"avatar"`
	AvatarKey    string      `gorm:"size:512" json:"-"`
	UpdatedAt    time.Time   `json:"updated_at"`
	Listings     []Listing   `gorm:"foreignKey:OwnerID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Reports      []BugReport `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}

// BeforeCreate assigns the id and defaults.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.JoinedAt.IsZero() {
		u.JoinedAt = time.Now()
	}
	if u.Avatar == "" {
		u.Avatar = DefaultAvatar
	}
	u.UpdatedAt = time.Now()
	return nil
}

// BeforeUpdate ensures the UpdatedAt timestamp is refreshed.
func (u *User) BeforeUpdate(tx *gorm.DB) error {
	u.UpdatedAt = time.Now()
	return nil
}

// PublicUser is the profile shape exposed to other users.
type PublicUser struct {
	Username  string    `json:"username"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	JoinedAt  time.Time `json:"joined_at"`
	IsVIP     bool      `json:"is_vip"`
	Avatar    string    `json:"avatar"`
}

// Public strips private fields.
func (u User) Public() PublicUser {
	return PublicUser{
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		JoinedAt:  u.JoinedAt,
		IsVIP:     u.IsVIP,
		Avatar:    u.Avatar,
	}
}
