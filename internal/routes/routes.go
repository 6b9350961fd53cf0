package routes

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// Limits are requests per minute per IP; zero disables a limiter.
type Limits struct {
	API  int
	Auth int
}

var DefaultLimits = Limits{API: 60, Auth: 10}

func perMinute(max int) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:               max,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
		LimitReached: func(c *fiber.Ctx) error {
			metrics.Denied(string(apperr.CodeRateLimited))
			return apperr.RateLimited(time.Minute)
		},
	})
}

// API returns the /api group that the core routes and the modules share.
func API(app *fiber.App, limits Limits) fiber.Router {
	app.Get("/metrics", metrics.Handler())

	api := app.Group("/api")
	if limits.API > 0 {
		api.Use(perMinute(limits.API))
	}
	return api
}

// Setup mounts the health check and the auth endpoints on api.
func Setup(
	api fiber.Router,
	auth *middleware.Auth,
	limits Limits,
	authHandler *handlers.AuthHandler,
	healthHandler *handlers.HealthHandler,
) {
	api.Get("/health", healthHandler.Check)

	g := api.Group("/auth")

	// Credential endpoints get the stricter limiter
	strict := []fiber.Handler{}
	if limits.Auth > 0 {
		strict = append(strict, perMinute(limits.Auth))
	}
	limited := func(h fiber.Handler) []fiber.Handler {
		return append(append([]fiber.Handler{}, strict...), h)
	}

	g.Post("/register", limited(authHandler.Register)...)
	g.Post("/login", limited(authHandler.Login)...)
	g.Post("/refresh", limited(authHandler.Refresh)...)
	g.Post("/password/forgot", limited(authHandler.ForgotPassword)...)
	g.Post("/password/reset", limited(authHandler.ResetPassword)...)

	g.Post("/logout", auth.OptionalAuth(), authHandler.Logout)
	g.Get("/me", auth.RefreshToken(), auth.RequireAuth(), authHandler.Me)
	g.Get("/session", auth.RequireAnyAuth(), authHandler.Session)
	g.Post("/password/change", auth.RequireAuth(), authHandler.ChangePassword)
	g.Post("/email/verify", authHandler.VerifyEmail)
	g.Post("/email/resend", auth.RequireAuth(), authHandler.ResendVerification)

	g.Get("/oauth/:provider", authHandler.OAuthStart)
	g.Get("/oauth/:provider/callback", authHandler.OAuthCallback)
}
