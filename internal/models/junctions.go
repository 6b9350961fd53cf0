package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// The link rows below each carry their own id and a unique index on the
// parent pair so an assignment can exist only once. Deleting either parent
// removes the link.

type UserRole struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_user_roles_pair" json:"user_id"`
	RoleID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_user_roles_pair;index" json:"role_id"`
	User      User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Role      Role      `gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (l *UserRole) BeforeCreate(_ *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

type RolePermission struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RoleID       uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_role_permissions_pair" json:"role_id"`
	PermissionID uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_role_permissions_pair;index" json:"permission_id"`
	Role         Role       `gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE" json:"-"`
	Permission   Permission `gorm:"foreignKey:PermissionID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (l *RolePermission) BeforeCreate(_ *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

type UserGroup struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_user_groups_pair" json:"user_id"`
	GroupID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_user_groups_pair;index" json:"group_id"`
	User      User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Group     Group     `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (l *UserGroup) BeforeCreate(_ *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

type GroupRole struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	GroupID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_group_roles_pair" json:"group_id"`
	RoleID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_group_roles_pair;index" json:"role_id"`
	Group     Group     `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE" json:"-"`
	Role      Role      `gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (l *GroupRole) BeforeCreate(_ *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
