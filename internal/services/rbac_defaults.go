package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/repository"
)

type DefaultPermission struct {
	Resource    string
	Action      string
	Description string
}

func (d DefaultPermission) Name() string { return d.Resource + ":" + d.Action }

var DefaultPermissions = []DefaultPermission{
	{"users", "read", "List and view users"},
	{"users", "write", "Update users"},
	{"users", "delete", "Delete users"},
	{"roles", "read", "View roles"},
	{"roles", "write", "Create and update roles"},
	{"roles", "delete", "Delete roles"},
	{"permissions", "read", "View permissions"},
	{"permissions", "write", "Create and update permissions"},
	{"permissions", "delete", "Delete permissions"},
	{"groups", "read", "View groups"},
	{"groups", "write", "Create and update groups"},
	{"groups", "delete", "Delete groups"},
	{"rbac", "import", "Import RBAC configuration"},
	{"rbac", "export", "Export RBAC configuration"},
	{"profile", "read", "View own profile"},
	{"profile", "write", "Update own profile"},
}

var userRolePermissions = []string{"profile:read", "profile:write"}

// CreateDefaultPermissions creates every missing default permission and
// returns how many were created.
func (s *RBACService) CreateDefaultPermissions(ctx context.Context) (int, error) {
	created := 0
	for _, d := range DefaultPermissions {
		_, err := s.CreatePermission(ctx, PermissionInput{
			Name:        d.Name(),
			Resource:    d.Resource,
			Action:      d.Action,
			Description: d.Description,
		})
		switch {
		case err == nil:
			created++
		case errors.Is(err, ErrAlreadyExists):
		default:
			return created, err
		}
	}
	return created, nil
}

// SeedDefaults makes sure the system roles, the administrators group and the
// default permissions exist and are linked. Existing links are kept.
func (s *RBACService) SeedDefaults(ctx context.Context) error {
	created, err := s.CreateDefaultPermissions(ctx)
	if err != nil {
		return err
	}

	admin, err := s.ensureRole(ctx, RoleAdmin, "Full access")
	if err != nil {
		return err
	}
	user, err := s.ensureRole(ctx, RoleUser, "Default role for registered users")
	if err != nil {
		return err
	}

	for _, d := range DefaultPermissions {
		perm, err := s.repo.FindPermissionByName(ctx, d.Name())
		if err != nil {
			return mapRepoErr(err, "permission "+d.Name())
		}
		if err := s.repo.AddRolePermission(ctx, admin.ID, perm.ID); err != nil {
			return err
		}
	}
	for _, name := range userRolePermissions {
		perm, err := s.repo.FindPermissionByName(ctx, name)
		if err != nil {
			return mapRepoErr(err, "permission "+name)
		}
		if err := s.repo.AddRolePermission(ctx, user.ID, perm.ID); err != nil {
			return err
		}
	}

	group, err := s.repo.FindGroupByName(ctx, GroupAdministrators)
	if errors.Is(err, repository.ErrNotFound) {
		group, err = s.CreateGroup(ctx, GroupInput{Name: GroupAdministrators, Description: "System administrators"})
	}
	if err != nil {
		return err
	}
	if err := s.repo.AddGroupRole(ctx, group.ID, admin.ID); err != nil {
		return err
	}

	slog.Info("rbac defaults seeded", "permissions_created", created)
	return nil
}

func (s *RBACService) ensureRole(ctx context.Context, name, description string) (*models.Role, error) {
	role, err := s.repo.FindRoleByName(ctx, name)
	if errors.Is(err, repository.ErrNotFound) {
		return s.CreateRole(ctx, RoleInput{Name: name, Description: description})
	}
	return role, err
}
