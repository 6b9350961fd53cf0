package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is an account. Password is nil for accounts that only sign in
// through an OAuth provider.
type User struct {
	ID                  uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Email               string         `gorm:"not null;size:255;uniqueIndex" json:"email"`
	EmailConfirmed      bool           `gorm:"not null" json:"email_confirmed"`
	Password            *string        `gorm:"size:255" json:"-"`
	IsActive            bool           `gorm:"not null" json:"is_active"`
	IsLocked            bool           `gorm:"not null" json:"is_locked"`
	FailedLoginAttempts int            `gorm:"not null" json:"-"`
	LastLoginAt         *time.Time     `json:"last_login_at,omitempty"`
	PasswordChangedAt   *time.Time     `json:"password_changed_at,omitempty"`
	Profile             *UserProfile   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"profile,omitempty"`
	Logins              []UserLogin    `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

func (u *User) HasPassword() bool {
	return u.Password != nil && *u.Password != ""
}

// UserProfile is one-to-one with User; the user id is its primary key.
type UserProfile struct {
	UserID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	DisplayName string    `gorm:"size:100" json:"display_name"`
	Picture     string    `gorm:"size:500" json:"picture"`
	Gender      string    `gorm:"size:20" json:"gender"`
	Location    string    `gorm:"size:100" json:"location"`
	Website     string    `gorm:"size:255" json:"website"`
	Bio         string    `gorm:"type:text" json:"bio"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UserLogin links a user to an external provider identity.
type UserLogin struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Name      string    `gorm:"size:50;not null;uniqueIndex:idx_user_logins_name_key" json:"name"`
	Key       string    `gorm:"size:255;not null;uniqueIndex:idx_user_logins_name_key" json:"key"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (l *UserLogin) BeforeCreate(_ *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
