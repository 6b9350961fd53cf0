package rbacadmin

import (
	"context"

	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/httpx"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handler struct {
	rbac *services.RBACService
}

func NewHandler(rbac *services.RBACService) *Handler {
	return &Handler{rbac: rbac}
}

// linkFn is any RBAC call taking two ids, e.g. AssignRoleToUser.
type linkFn func(ctx context.Context, a, b uuid.UUID) error

func (h *Handler) link(c *fiber.Ctx, aParam, bParam string, fn linkFn, message string) error {
	a, err := httpx.ParamUUID(c, aParam)
	if err != nil {
		return err
	}
	b, err := httpx.ParamUUID(c, bParam)
	if err != nil {
		return err
	}
	if err := fn(c.UserContext(), a, b); err != nil {
		return services.ToAppError(err)
	}
	return httpx.Message(c, message)
}

// =============================================================================
// Roles
// =============================================================================

func (h *Handler) ListRoles(c *fiber.Ctx) error {
	roles, err := h.rbac.ListRoles(c.UserContext())
	if err != nil {
		return err
	}
	return httpx.OK(c, roles)
}

func (h *Handler) CreateRole(c *fiber.Ctx) error {
	var req dto.RoleRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	role, err := h.rbac.CreateRole(c.UserContext(), services.RoleInput{
		Name: req.Name, Description: req.Description, IsActive: req.IsActive,
	})
	if err != nil {
		return services.ToAppError(err)
	}
	return httpx.Created(c, role)
}

func (h *Handler) GetRole(c *fiber.Ctx) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	role, err := h.rbac.GetRole(c.UserContext(), id)
	if err != nil {
		return services.ToAppError(err)
	}
	return httpx.OK(c, role)
}

func (h *Handler) UpdateRole(c *fiber.Ctx) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var req dto.RoleUpdateRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	role, err := h.rbac.UpdateRole(c.UserContext(), id, services.RoleInput{
		Name: req.Name, Description: req.Description, IsActive: req.IsActive,
	})
	if err != nil {
		return services.ToAppError(err)
	}
	return httpx.OK(c, role)
}

func (h *Handler) DeleteRole(c *fiber.Ctx) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	if err := h.rbac.DeleteRole(c.UserContext(), id); err != nil {
		return services.ToAppError(err)
	}
	return httpx.Message(c, "Role deleted")
}

func (h *Handler) RolePermissions(c *fiber.Ctx) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	perms, err := h.rbac.RolePermissions(c.UserContext(), id)
	if err != nil {
		return services.ToAppError(err)
	}
	return httpx.OK(c, perms)
}

func (h *Handler) SetRolePermissions(c *fiber.Ctx) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var req dto.SetPermissionsRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	if err := h.rbac.SetRolePermissions(c.UserContext(), id, req.PermissionIDs); err != nil {
		return services.ToAppError(err)
	}
	return h.RolePermissions(c)
}

func (h *Handler) AddRolePermission(c *fiber.Ctx) error {
	return h.link(c, "id", "permissionId", h.rbac.AddPermissionToRole, "Permission added to role")
}

func (h *Handler) RemoveRolePermission(c *fiber.Ctx) error {
	return h.link(c, "id", "permissionId", h.rbac.RemovePermissionFromRole, "Permission removed from role")
}

// =============================================================================
// Permissions
// =============================================================================

func (h *Handler) ListPermissions(c *fiber.Ctx) error {
	perms, err := h.rbac.ListPermissions(c.UserContext())
	if err != nil {
		return err
	}
	return httpx.OK(c, perms)
}

func (h *Handler) CreatePermission(c *fiber.Ctx) error {
	var req dto.PermissionRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	perm, err := h.rbac.CreatePermission(c.UserContext(), services.PermissionInput{
		Name: req.Name, Resource: req.Resource, Action: req.Action,
		Description: req.Description, IsActive: req.IsActive,
	})
	if err != nil {
		return services.ToAppError(err)
	}
	return httpx.Created(c, perm)
}

func (h *Handler) GetPermission(c *fiber.Ctx) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	perm, err := h.rbac.GetPermission(c.UserContext(), id)
	if err != nil {
		return services.ToAppError(err)
	}
	return httpx.OK(c, perm)
}

func (h *Handler) UpdatePermission(c *fiber.Ctx) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var req dto.PermissionUpdateRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	perm, err := h.rbac.UpdatePermission(c.UserContext(), id, services.PermissionInput{
		Name: req.Name, Resource: req.Resource, Action: req.Action,
		Description: req.Description, IsActive: req.IsActive,
	})
	if err != nil {
		return services.ToAppError(err)
	}
	return httpx.OK(c, perm)
}

func (h *Handler) DeletePermission(c *fiber.Ctx) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	if err := h.rbac.DeletePermission(c.UserContext(), id); err != nil {
		return services.ToAppError(err)
	}
	return httpx.Message(c, "Permission deleted")
}

// =============================================================================
// Groups
// =============================================================================

func (h *Handler) ListGroups(c *fiber.Ctx) error {
	groups, err := h.rbac.ListGroups(c.UserContext())
	if err != nil {
		return err
	}
	return httpx.OK(c, groups)
}

func (h *Handler) CreateGroup(c *fiber.Ctx) error {
	var req dto.GroupRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	group, err := h.rbac.CreateGroup(c.UserContext(), services.GroupInput{
		Name: req.Name, Description: req.Description, IsActive: req.IsActive,
	})
	if err != nil {
		return services.ToAppError(err)
	}
	return httpx.Created(c, group)
}

func (h *Handler) GetGroup(c *fiber.Ctx) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	group, err := h.rbac.GetGroup(c.UserContext(), id)
	if err != nil {
		return services.ToAppError(err)
	}
	return httpx.OK(c, group)
}

func (h *Handler) UpdateGroup(c *fiber.Ctx) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var req dto.GroupUpdateRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	group, err := h.rbac.UpdateGroup(c.UserContext(), id, services.GroupInput{
		Name: req.Name, Description: req.Description, IsActive: req.IsActive,
	})
	if err != nil {
		return services.ToAppError(err)
	}
	return httpx.OK(c, group)
}

func (h *Handler) DeleteGroup(c *fiber.Ctx) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	if err := h.rbac.DeleteGroup(c.UserContext(), id); err != nil {
		return services.ToAppError(err)
	}
	return httpx.Message(c, "Group deleted")
}

func (h *Handler) AddGroupRole(c *fiber.Ctx) error {
	return h.link(c, "id", "roleId", h.rbac.AssignRoleToGroup, "Role added to group")
}

func (h *Handler) RemoveGroupRole(c *fiber.Ctx) error {
	return h.link(c, "id", "roleId", h.rbac.RemoveRoleFromGroup, "Role removed from group")
}

// AddGroupUser and RemoveGroupUser take the group first in the path but the
// service takes the user first.
func (h *Handler) AddGroupUser(c *fiber.Ctx) error {
	return h.link(c, "userId", "id", h.rbac.AddUserToGroup, "User added to group")
}

func (h *Handler) RemoveGroupUser(c *fiber.Ctx) error {
	return h.link(c, "userId", "id", h.rbac.RemoveUserFromGroup, "User removed from group")
}

// =============================================================================
// Users
// =============================================================================

func (h *Handler) UserAccess(c *fiber.Ctx) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	roles, err := h.rbac.GetUserRoleNames(ctx, id)
	if err != nil {
		return err
	}
	groups, err := h.rbac.GetUserGroups(ctx, id)
	if err != nil {
		return err
	}
	perms, err := h.rbac.GetUserPermissionNames(ctx, id)
	if err != nil {
		return err
	}
	return httpx.OK(c, dto.UserAccessResponse{
		UserID:      id,
		Roles:       roles,
		Groups:      groupNames(groups),
		Permissions: perms,
	})
}

func groupNames(groups []models.Group) []string {
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.Name)
	}
	return out
}

func (h *Handler) AssignUserRole(c *fiber.Ctx) error {
	return h.link(c, "id", "roleId", h.rbac.AssignRoleToUser, "Role assigned")
}

func (h *Handler) RemoveUserRole(c *fiber.Ctx) error {
	return h.link(c, "id", "roleId", h.rbac.RemoveRoleFromUser, "Role removed")
}

// =============================================================================
// Import / export
// =============================================================================

// Export returns the bare document so it can be fed back to Import.
func (h *Handler) Export(c *fiber.Ctx) error {
	doc, err := h.rbac.Export(c.UserContext())
	if err != nil {
		return err
	}
	if c.QueryBool("download") {
		c.Attachment("rbac-export.json")
	}
	return c.JSON(doc)
}

// Import applies the posted document; ?overwrite=true replaces existing
// entries instead of skipping them.
func (h *Handler) Import(c *fiber.Ctx) error {
	var doc services.RBACDocument
	if err := httpx.Bind(c, &doc); err != nil {
		return err
	}
	var actor *uuid.UUID
	if id, err := middleware.GetUserID(c); err == nil {
		actor = &id
	}
	res, err := h.rbac.Import(c.UserContext(), &doc, c.QueryBool("overwrite"), actor)
	if err != nil {
		return services.ToAppError(err)
	}
	return httpx.OK(c, res)
}
