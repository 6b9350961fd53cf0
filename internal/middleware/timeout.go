package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/metrics"
	"github.com/gofiber/fiber/v2"
)

// Timeout puts a deadline on the request context. When it passes and the
// handler has not written a body, the request fails with 408.
func Timeout(d time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if d <= 0 {
			return c.Next()
		}
		ctx, cancel := context.WithTimeout(c.UserContext(), d)
		defer cancel()
		c.SetUserContext(ctx)

		err := c.Next()
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return err
		}
		if errors.Is(err, context.DeadlineExceeded) || len(c.Response().Body()) == 0 {
			metrics.Denied(string(apperr.CodeRequestTimeout))
			return apperr.RequestTimeout()
		}
		return err
	}
}
