// Package rbacadmin mounts the role, permission and group administration
// API under /api/rbac.
package rbacadmin

import (
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/modules"
	"github.com/gofiber/fiber/v2"
)

type Module struct{}

func New() *Module {
	return &Module{}
}

func (m *Module) ID() string { return "rbacadmin" }

// Models is empty; the RBAC tables belong to the core schema.
func (m *Module) Models() []interface{} { return nil }

func (m *Module) RegisterRoutes(router fiber.Router, deps modules.Deps) error {
	h := NewHandler(deps.RBAC)
	can := func(names ...string) fiber.Handler {
		return middleware.RequirePermission(deps.RBAC, names...)
	}

	g := router.Group("/rbac", deps.Auth.RequireAuth())

	g.Get("/roles", can("roles:read"), h.ListRoles)
	g.Post("/roles", can("roles:write"), h.CreateRole)
	g.Get("/roles/:id", can("roles:read"), h.GetRole)
	g.Put("/roles/:id", can("roles:write"), h.UpdateRole)
	g.Delete("/roles/:id", can("roles:delete"), h.DeleteRole)
	g.Get("/roles/:id/permissions", can("roles:read"), h.RolePermissions)
	g.Put("/roles/:id/permissions", can("roles:write"), h.SetRolePermissions)
	g.Post("/roles/:id/permissions/:permissionId", can("roles:write"), h.AddRolePermission)
	g.Delete("/roles/:id/permissions/:permissionId", can("roles:write"), h.RemoveRolePermission)

	g.Get("/permissions", can("permissions:read"), h.ListPermissions)
	g.Post("/permissions", can("permissions:write"), h.CreatePermission)
	g.Get("/permissions/:id", can("permissions:read"), h.GetPermission)
	g.Put("/permissions/:id", can("permissions:write"), h.UpdatePermission)
	g.Delete("/permissions/:id", can("permissions:delete"), h.DeletePermission)

	g.Get("/groups", can("groups:read"), h.ListGroups)
	g.Post("/groups", can("groups:write"), h.CreateGroup)
	g.Get("/groups/:id", can("groups:read"), h.GetGroup)
	g.Put("/groups/:id", can("groups:write"), h.UpdateGroup)
	g.Delete("/groups/:id", can("groups:delete"), h.DeleteGroup)
	g.Post("/groups/:id/roles/:roleId", can("groups:write"), h.AddGroupRole)
	g.Delete("/groups/:id/roles/:roleId", can("groups:write"), h.RemoveGroupRole)
	g.Post("/groups/:id/users/:userId", can("groups:write"), h.AddGroupUser)
	g.Delete("/groups/:id/users/:userId", can("groups:write"), h.RemoveGroupUser)

	g.Get("/users/:id/access", can("users:read"), h.UserAccess)
	g.Post("/users/:id/roles/:roleId", can("users:write"), h.AssignUserRole)
	g.Delete("/users/:id/roles/:roleId", can("users:write"), h.RemoveUserRole)

	g.Get("/export", can("rbac:export"), h.Export)
	g.Post("/import", can("rbac:import"), h.Import)
	return nil
}
