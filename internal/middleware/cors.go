package middleware

import (
	"strings"

	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/config"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// CORS enables credentials unless the origin list contains a wildcard.
func CORS(cfg *config.Config) fiber.Handler {
	origins := strings.TrimSpace(cfg.CORSOrigins)
	if origins == "" {
		origins = "*"
	}
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Authorization, Accept, " + HeaderSessionID,
		AllowMethods:     "GET, POST, PUT, DELETE, PATCH, OPTIONS",
		ExposeHeaders:    HeaderTokenRefreshed + ", " + fiber.HeaderRetryAfter,
		AllowCredentials: !strings.Contains(origins, "*"),
	})
}
