package middleware

import (
	"context"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/apperr"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// AccessChecker is the part of the RBAC service the guards need.
type AccessChecker interface {
	GetUserPermissionNames(ctx context.Context, userID uuid.UUID) ([]string, error)
	GetUserRoleNames(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// RequirePermission passes only when the user holds every listed permission.
// It must run after an auth middleware.
func RequirePermission(rbac AccessChecker, names ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := GetIdentity(c)
		if !ok || id.UserID == uuid.Nil {
			return deny(apperr.AuthRequired(""))
		}
		held, err := rbac.GetUserPermissionNames(c.UserContext(), id.UserID)
		if err != nil {
			slog.Error("permission lookup failed", "user_id", id.UserID, "error", err)
			return apperr.Internal(err)
		}
		for _, n := range names {
			if !contains(held, n) {
				return deny(apperr.Forbidden("").WithMeta("required", names))
			}
		}
		return c.Next()
	}
}

// RequireRole passes when the user holds any of the listed roles.
func RequireRole(rbac AccessChecker, names ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := GetIdentity(c)
		if !ok || id.UserID == uuid.Nil {
			return deny(apperr.AuthRequired(""))
		}
		held, err := rbac.GetUserRoleNames(c.UserContext(), id.UserID)
		if err != nil {
			slog.Error("role lookup failed", "user_id", id.UserID, "error", err)
			return apperr.Internal(err)
		}
		for _, n := range names {
			if contains(held, n) {
				return c.Next()
			}
		}
		return deny(apperr.Forbidden("").WithMeta("required_roles", names))
	}
}

func contains(list []string, val string) bool {
	for _, item := range list {
		if item == val {
			return true
		}
	}
	return false
}
