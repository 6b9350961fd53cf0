package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/repository"
	"github.com/google/uuid"
)

var (
	ErrAlreadyExists = errors.New("already exists")
	ErrProtected     = errors.New("protected system entity")
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
)

const (
	RoleAdmin           = "admin"
	RoleUser            = "user"
	GroupAdministrators = "administrators"
)

var (
	ProtectedRoles  = []string{RoleAdmin, RoleUser}
	ProtectedGroups = []string{GroupAdministrators}
)

type RoleInput struct {
	Name        string
	Description string
	IsActive    *bool
}

type PermissionInput struct {
	Name        string
	Resource    string
	Action      string
	Description string
	IsActive    *bool
}

type GroupInput struct {
	Name        string
	Description string
	IsActive    *bool
}

// RBACService resolves effective permissions and manages the role graph.
type RBACService struct {
	repo repository.RBACRepository
}

func NewRBACService(repo repository.RBACRepository) *RBACService {
	return &RBACService{repo: repo}
}

// mapRepoErr turns repository sentinels into service sentinels.
func mapRepoErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case errors.Is(err, repository.ErrDuplicate):
		return fmt.Errorf("%s: %w", what, ErrAlreadyExists)
	}
	return err
}

func activeOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// =============================================================================
// Resolution
// =============================================================================

// GetUserRoles returns the user's effective roles: direct assignments plus
// roles carried by the user's groups.
func (s *RBACService) GetUserRoles(ctx context.Context, userID uuid.UUID) ([]models.Role, error) {
	direct, err := s.repo.RolesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	groups, err := s.repo.GroupsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	roles := direct
	if len(groups) > 0 {
		ids := make([]uuid.UUID, len(groups))
		for i, g := range groups {
			ids[i] = g.ID
		}
		viaGroups, err := s.repo.RolesForGroups(ctx, ids)
		if err != nil {
			return nil, err
		}
		roles = append(roles, viaGroups...)
	}

	seen := make(map[uuid.UUID]bool, len(roles))
	out := make([]models.Role, 0, len(roles))
	for _, r := range roles {
		if !seen[r.ID] {
			seen[r.ID] = true
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *RBACService) GetUserGroups(ctx context.Context, userID uuid.UUID) ([]models.Group, error) {
	return s.repo.GroupsForUser(ctx, userID)
}

// GetUserPermissions is the union of the permissions of every effective
// role. There is no deny.
func (s *RBACService) GetUserPermissions(ctx context.Context, userID uuid.UUID) ([]models.Permission, error) {
	roles, err := s.GetUserRoles(ctx, userID)
	if err != nil || len(roles) == 0 {
		return nil, err
	}
	ids := make([]uuid.UUID, len(roles))
	for i, r := range roles {
		ids[i] = r.ID
	}
	perms, err := s.repo.PermissionsForRoles(ctx, ids)
	if err != nil {
		return nil, err
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].Name < perms[j].Name })
	return perms, nil
}

func (s *RBACService) GetUserPermissionNames(ctx context.Context, userID uuid.UUID) ([]string, error) {
	perms, err := s.GetUserPermissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = p.Name
	}
	return names, nil
}

func (s *RBACService) GetUserRoleNames(ctx context.Context, userID uuid.UUID) ([]string, error) {
	roles, err := s.GetUserRoles(ctx, userID)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.Name
	}
	return names, nil
}

func (s *RBACService) UserHasPermission(ctx context.Context, userID uuid.UUID, name string) (bool, error) {
	names, err := s.GetUserPermissionNames(ctx, userID)
	if err != nil {
		return false, err
	}
	return slices.Contains(names, name), nil
}

func (s *RBACService) UserHasRole(ctx context.Context, userID uuid.UUID, name string) (bool, error) {
	names, err := s.GetUserRoleNames(ctx, userID)
	if err != nil {
		return false, err
	}
	return slices.Contains(names, name), nil
}

func (s *RBACService) IsUserInGroup(ctx context.Context, userID uuid.UUID, name string) (bool, error) {
	groups, err := s.repo.GroupsForUser(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, g := range groups {
		if g.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// =============================================================================
// Roles
// =============================================================================

func (s *RBACService) CreateRole(ctx context.Context, in RoleInput) (*models.Role, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("role name is required: %w", ErrInvalidInput)
	}
	if _, err := s.repo.FindRoleByName(ctx, name); err == nil {
		return nil, fmt.Errorf("role %q %w", name, ErrAlreadyExists)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	role := &models.Role{Name: name, Description: in.Description, IsActive: activeOr(in.IsActive, true)}
	if err := s.repo.CreateRole(ctx, role); err != nil {
		return nil, mapRepoErr(err, "role "+name)
	}
	return role, nil
}

func (s *RBACService) UpdateRole(ctx context.Context, id uuid.UUID, in RoleInput) (*models.Role, error) {
	role, err := s.repo.FindRoleByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, "role")
	}
	name := strings.TrimSpace(in.Name)
	if name != "" && name != role.Name {
		if slices.Contains(ProtectedRoles, role.Name) {
			return nil, fmt.Errorf("role %q cannot be renamed: %w", role.Name, ErrProtected)
		}
		role.Name = name
	}
	if in.Description != "" {
		role.Description = in.Description
	}
	role.IsActive = activeOr(in.IsActive, role.IsActive)

	if err := s.repo.UpdateRole(ctx, role); err != nil {
		return nil, mapRepoErr(err, "role "+role.Name)
	}
	return role, nil
}

func (s *RBACService) DeleteRole(ctx context.Context, id uuid.UUID) error {
	role, err := s.repo.FindRoleByID(ctx, id)
	if err != nil {
		return mapRepoErr(err, "role")
	}
	if slices.Contains(ProtectedRoles, role.Name) {
		return fmt.Errorf("role %q: %w", role.Name, ErrProtected)
	}
	return mapRepoErr(s.repo.DeleteRole(ctx, id), "role")
}

func (s *RBACService) GetRole(ctx context.Context, id uuid.UUID) (*models.Role, error) {
	role, err := s.repo.FindRoleByID(ctx, id)
	return role, mapRepoErr(err, "role")
}

func (s *RBACService) ListRoles(ctx context.Context) ([]models.Role, error) {
	return s.repo.ListRoles(ctx)
}

// RolePermissions lists every permission linked to the role, active or not.
func (s *RBACService) RolePermissions(ctx context.Context, roleID uuid.UUID) ([]models.Permission, error) {
	if _, err := s.repo.FindRoleByID(ctx, roleID); err != nil {
		return nil, mapRepoErr(err, "role")
	}
	ids, err := s.repo.RolePermissionIDs(ctx, roleID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Permission, 0, len(ids))
	for _, id := range ids {
		p, err := s.repo.FindPermissionByID(ctx, id)
		if err != nil {
			return nil, mapRepoErr(err, "permission")
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// =============================================================================
// Permissions
// =============================================================================

func (s *RBACService) CreatePermission(ctx context.Context, in PermissionInput) (*models.Permission, error) {
	resource := strings.TrimSpace(in.Resource)
	action := strings.TrimSpace(in.Action)
	if resource == "" || action == "" {
		return nil, fmt.Errorf("permission resource and action are required: %w", ErrInvalidInput)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = resource + ":" + action
	}

	if _, err := s.repo.FindPermissionByName(ctx, name); err == nil {
		return nil, fmt.Errorf("permission %q %w", name, ErrAlreadyExists)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if _, err := s.repo.FindPermissionByResourceAction(ctx, resource, action); err == nil {
		return nil, fmt.Errorf("permission %s:%s %w", resource, action, ErrAlreadyExists)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	perm := &models.Permission{
		Name:        name,
		Resource:    resource,
		Action:      action,
		Description: in.Description,
		IsActive:    activeOr(in.IsActive, true),
	}
	if err := s.repo.CreatePermission(ctx, perm); err != nil {
		return nil, mapRepoErr(err, "permission "+name)
	}
	return perm, nil
}

func (s *RBACService) UpdatePermission(ctx context.Context, id uuid.UUID, in PermissionInput) (*models.Permission, error) {
	perm, err := s.repo.FindPermissionByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, "permission")
	}
	if v := strings.TrimSpace(in.Name); v != "" {
		perm.Name = v
	}
	if v := strings.TrimSpace(in.Resource); v != "" {
		perm.Resource = v
	}
	if v := strings.TrimSpace(in.Action); v != "" {
		perm.Action = v
	}
	if in.Description != "" {
		perm.Description = in.Description
	}
	perm.IsActive = activeOr(in.IsActive, perm.IsActive)

	if err := s.repo.UpdatePermission(ctx, perm); err != nil {
		return nil, mapRepoErr(err, "permission "+perm.Name)
	}
	return perm, nil
}

func (s *RBACService) DeletePermission(ctx context.Context, id uuid.UUID) error {
	return mapRepoErr(s.repo.DeletePermission(ctx, id), "permission")
}

func (s *RBACService) GetPermission(ctx context.Context, id uuid.UUID) (*models.Permission, error) {
	perm, err := s.repo.FindPermissionByID(ctx, id)
	return perm, mapRepoErr(err, "permission")
}

func (s *RBACService) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// =============================================================================
// Groups
// =============================================================================

func (s *RBACService) CreateGroup(ctx context.Context, in GroupInput) (*models.Group, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("group name is required: %w", ErrInvalidInput)
	}
	if _, err := s.repo.FindGroupByName(ctx, name); err == nil {
		return nil, fmt.Errorf("group %q %w", name, ErrAlreadyExists)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	group := &models.Group{Name: name, Description: in.Description, IsActive: activeOr(in.IsActive, true)}
	if err := s.repo.CreateGroup(ctx, group); err != nil {
		return nil, mapRepoErr(err, "group "+name)
	}
	return group, nil
}

func (s *RBACService) UpdateGroup(ctx context.Context, id uuid.UUID, in GroupInput) (*models.Group, error) {
	group, err := s.repo.FindGroupByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, "group")
	}
	name := strings.TrimSpace(in.Name)
	if name != "" && name != group.Name {
		if slices.Contains(ProtectedGroups, group.Name) {
			return nil, fmt.Errorf("group %q cannot be renamed: %w", group.Name, ErrProtected)
		}
		group.Name = name
	}
	if in.Description != "" {
		group.Description = in.Description
	}
	group.IsActive = activeOr(in.IsActive, group.IsActive)

	if err := s.repo.UpdateGroup(ctx, group); err != nil {
		return nil, mapRepoErr(err, "group "+group.Name)
	}
	return group, nil
}

func (s *RBACService) DeleteGroup(ctx context.Context, id uuid.UUID) error {
	group, err := s.repo.FindGroupByID(ctx, id)
	if err != nil {
		return mapRepoErr(err, "group")
	}
	if slices.Contains(ProtectedGroups, group.Name) {
		return fmt.Errorf("group %q: %w", group.Name, ErrProtected)
	}
	return mapRepoErr(s.repo.DeleteGroup(ctx, id), "group")
}

func (s *RBACService) GetGroup(ctx context.Context, id uuid.UUID) (*models.Group, error) {
	group, err := s.repo.FindGroupByID(ctx, id)
	return group, mapRepoErr(err, "group")
}

func (s *RBACService) ListGroups(ctx context.Context) ([]models.Group, error) {
	return s.repo.ListGroups(ctx)
}

// =============================================================================
// Assignments (all idempotent)
// =============================================================================

func (s *RBACService) AssignRoleToUser(ctx context.Context, userID, roleID uuid.UUID) error {
	return mapRepoErr(s.repo.AddUserRole(ctx, userID, roleID), "user role")
}

func (s *RBACService) RemoveRoleFromUser(ctx context.Context, userID, roleID uuid.UUID) error {
	return mapRepoErr(s.repo.RemoveUserRole(ctx, userID, roleID), "user role")
}

// AssignRoleByName links a role to a user by the role's name.
func (s *RBACService) AssignRoleByName(ctx context.Context, userID uuid.UUID, name string) error {
	role, err := s.repo.FindRoleByName(ctx, name)
	if err != nil {
		return mapRepoErr(err, "role "+name)
	}
	return s.AssignRoleToUser(ctx, userID, role.ID)
}

func (s *RBACService) AddUserToGroup(ctx context.Context, userID, groupID uuid.UUID) error {
	return mapRepoErr(s.repo.AddUserGroup(ctx, userID, groupID), "user group")
}

func (s *RBACService) RemoveUserFromGroup(ctx context.Context, userID, groupID uuid.UUID) error {
	return mapRepoErr(s.repo.RemoveUserGroup(ctx, userID, groupID), "user group")
}

func (s *RBACService) AssignRoleToGroup(ctx context.Context, groupID, roleID uuid.UUID) error {
	return mapRepoErr(s.repo.AddGroupRole(ctx, groupID, roleID), "group role")
}

func (s *RBACService) RemoveRoleFromGroup(ctx context.Context, groupID, roleID uuid.UUID) error {
	return mapRepoErr(s.repo.RemoveGroupRole(ctx, groupID, roleID), "group role")
}

func (s *RBACService) AddPermissionToRole(ctx context.Context, roleID, permID uuid.UUID) error {
	return mapRepoErr(s.repo.AddRolePermission(ctx, roleID, permID), "role permission")
}

func (s *RBACService) RemovePermissionFromRole(ctx context.Context, roleID, permID uuid.UUID) error {
	return mapRepoErr(s.repo.RemoveRolePermission(ctx, roleID, permID), "role permission")
}

// SetRolePermissions replaces the role's permission set.
func (s *RBACService) SetRolePermissions(ctx context.Context, roleID uuid.UUID, permIDs []uuid.UUID) error {
	return mapRepoErr(s.repo.SetRolePermissions(ctx, roleID, permIDs), "role permissions")
}
