package models

import (
	"time"

	"github.com/google/uuid"
)

// RevokedToken is a blacklisted JWT id, kept until the token's own expiry.
type RevokedToken struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	JTI       string    `gorm:"size:64;not null;uniqueIndex" json:"jti"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	RevokedAt time.Time `gorm:"not null" json:"revoked_at"`
}
