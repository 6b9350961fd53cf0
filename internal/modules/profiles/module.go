// Package profiles serves the signed-in user's profile and the user
// directory under /api/users.
package profiles

import (
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/modules"
	"github.com/gofiber/fiber/v2"
)

type Module struct{}

func New() *Module {
	return &Module{}
}

func (m *Module) ID() string { return "profiles" }

func (m *Module) Models() []interface{} { return nil }

func (m *Module) RegisterRoutes(router fiber.Router, deps modules.Deps) error {
	svc := NewProfileService(deps.Users)
	h := NewHandler(svc)

	g := router.Group("/users", deps.Auth.RefreshToken(), deps.Auth.RequireAuth())
	g.Get("/me", middleware.RequirePermission(deps.RBAC, "profile:read"), h.GetOwn)
	g.Put("/me/profile", middleware.RequirePermission(deps.RBAC, "profile:write"), h.UpdateOwn)
	g.Get("/", middleware.RequirePermission(deps.RBAC, "users:read"), h.List)
	g.Get("/:id", middleware.RequirePermission(deps.RBAC, "users:read"), h.Get)
	return nil
}
