package dto

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/models"
	"github.com/google/uuid"
)

type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email,max=255"`
	Password    string `json:"password" validate:"required,min=8,max=128"`
	DisplayName string `json:"display_name" validate:"max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest is optional; the refresh cookie wins when both are sent.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=128"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=128"`
}

type VerifyEmailRequest struct {
	Token string `json:"token" validate:"required"`
}

type AuthResponse struct {
	User             UserResponse `json:"user"`
	AccessToken      string       `json:"access_token"`
	RefreshToken     string       `json:"refresh_token"`
	AccessExpiresAt  time.Time    `json:"access_expires_at"`
	RefreshExpiresAt time.Time    `json:"refresh_expires_at"`
	SessionID        string       `json:"session_id,omitempty"`
}

type TokenResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type UserResponse struct {
	ID             uuid.UUID           `json:"id"`
	Email          string              `json:"email"`
	EmailConfirmed bool                `json:"email_confirmed"`
	IsActive       bool                `json:"is_active"`
	IsLocked       bool                `json:"is_locked"`
	HasPassword    bool                `json:"has_password"`
	LastLoginAt    *time.Time          `json:"last_login_at,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	Profile        *models.UserProfile `json:"profile,omitempty"`
}

func NewUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:             u.ID,
		Email:          u.Email,
		EmailConfirmed: u.EmailConfirmed,
		IsActive:       u.IsActive,
		IsLocked:       u.IsLocked,
		HasPassword:    u.HasPassword(),
		LastLoginAt:    u.LastLoginAt,
		CreatedAt:      u.CreatedAt,
		Profile:        u.Profile,
	}
}

type MeResponse struct {
	User        UserResponse `json:"user"`
	Roles       []string     `json:"roles"`
	Permissions []string     `json:"permissions"`
	Refreshed   bool         `json:"token_refreshed"`
}

type SessionResponse struct {
	UserID    uuid.UUID  `json:"user_id"`
	Email     string     `json:"email,omitempty"`
	Method    string     `json:"method"`
	SessionID string     `json:"session_id,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	DB        string            `json:"db"`
	Redis     string            `json:"redis"`
	Modules   []string          `json:"modules"`
	Failed    map[string]string `json:"failed_modules,omitempty"`
}
