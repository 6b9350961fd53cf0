// Package repository provides the data access layer for users and RBAC.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// ListOptions narrows and orders a list query. SortField and Filters keys
// must already be whitelisted by the caller.
type ListOptions struct {
	Offset    int
	Limit     int
	SortField string
	SortDesc  bool
	Filters   map[string]string
}

type UserRepository interface {
	Create(ctx context.Context, user *models.User, profile *models.UserProfile) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByLogin(ctx context.Context, provider, key string) (*models.User, error)
	AddLogin(ctx context.Context, login *models.UserLogin) error
	Update(ctx context.Context, user *models.User) error
	UpdateProfile(ctx context.Context, profile *models.UserProfile) error
	List(ctx context.Context, opts ListOptions) ([]models.User, int64, error)
}

type RBACRepository interface {
	CreateRole(ctx context.Context, role *models.Role) error
	UpdateRole(ctx context.Context, role *models.Role) error
	DeleteRole(ctx context.Context, id uuid.UUID) error
	FindRoleByID(ctx context.Context, id uuid.UUID) (*models.Role, error)
	FindRoleByName(ctx context.Context, name string) (*models.Role, error)
	ListRoles(ctx context.Context) ([]models.Role, error)

	CreatePermission(ctx context.Context, perm *models.Permission) error
	UpdatePermission(ctx context.Context, perm *models.Permission) error
	DeletePermission(ctx context.Context, id uuid.UUID) error
	FindPermissionByID(ctx context.Context, id uuid.UUID) (*models.Permission, error)
	FindPermissionByName(ctx context.Context, name string) (*models.Permission, error)
	FindPermissionByResourceAction(ctx context.Context, resource, action string) (*models.Permission, error)
	ListPermissions(ctx context.Context) ([]models.Permission, error)

	CreateGroup(ctx context.Context, group *models.Group) error
	UpdateGroup(ctx context.Context, group *models.Group) error
	DeleteGroup(ctx context.Context, id uuid.UUID) error
	FindGroupByID(ctx context.Context, id uuid.UUID) (*models.Group, error)
	FindGroupByName(ctx context.Context, name string) (*models.Group, error)
	ListGroups(ctx context.Context) ([]models.Group, error)

	AddUserRole(ctx context.Context, userID, roleID uuid.UUID) error
	RemoveUserRole(ctx context.Context, userID, roleID uuid.UUID) error
	AddUserGroup(ctx context.Context, userID, groupID uuid.UUID) error
	RemoveUserGroup(ctx context.Context, userID, groupID uuid.UUID) error
	AddRolePermission(ctx context.Context, roleID, permID uuid.UUID) error
	RemoveRolePermission(ctx context.Context, roleID, permID uuid.UUID) error
	SetRolePermissions(ctx context.Context, roleID uuid.UUID, permIDs []uuid.UUID) error
	AddGroupRole(ctx context.Context, groupID, roleID uuid.UUID) error
	RemoveGroupRole(ctx context.Context, groupID, roleID uuid.UUID) error
	SetGroupRoles(ctx context.Context, groupID uuid.UUID, roleIDs []uuid.UUID) error

	// Resolution queries only return active roles, groups and permissions.
	RolesForUser(ctx context.Context, userID uuid.UUID) ([]models.Role, error)
	GroupsForUser(ctx context.Context, userID uuid.UUID) ([]models.Group, error)
	RolesForGroups(ctx context.Context, groupIDs []uuid.UUID) ([]models.Role, error)
	PermissionsForRoles(ctx context.Context, roleIDs []uuid.UUID) ([]models.Permission, error)

	// Link listings include inactive entities; export needs the whole graph.
	RolePermissionIDs(ctx context.Context, roleID uuid.UUID) ([]uuid.UUID, error)
	GroupRoleIDs(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error)

	SaveSnapshot(ctx context.Context, snap *models.RBACSnapshot) error
}

// translate maps gorm errors onto the repository sentinels, keeping the
// original in the chain. A foreign key violation means a parent row is
// missing and reads as not found.
func translate(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, gorm.ErrForeignKeyViolated):
		return fmt.Errorf("%s: %w: %w", msg, ErrNotFound, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w: %w", msg, ErrDuplicate, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
