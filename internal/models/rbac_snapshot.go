package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// RBACSnapshot records one RBAC import: the document applied and what it did.
type RBACSnapshot struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ActorID   *uuid.UUID     `gorm:"type:uuid;index" json:"actor_id,omitempty"`
	Overwrite bool           `gorm:"not null" json:"overwrite"`
	Document  datatypes.JSON `gorm:"type:jsonb" json:"document"`
	Result    datatypes.JSON `gorm:"type:jsonb" json:"result"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}
