package handlers

import (
	"context"
	"time"

	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/database"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/modules"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const healthPingTimeout = 2 * time.Second

type HealthHandler struct {
	db     *gorm.DB
	redis  *redis.Client
	report modules.Report
}

// NewHealthHandler reports on db, the optional redis client and the modules
// mounted at start-up.
func NewHealthHandler(db *gorm.DB, rdb *redis.Client, report modules.Report) *HealthHandler {
	return &HealthHandler{db: db, redis: rdb, report: report}
}

// Check answers 503 when the database is unreachable. Redis is optional and
// only reported.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	status := fiber.StatusOK
	resp := dto.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		DB:        "ok",
		Redis:     "disabled",
		Modules:   h.report.Mounted,
		Failed:    h.report.Failed,
	}
	if resp.Modules == nil {
		resp.Modules = []string{}
	}

	if err := database.Ping(h.db); err != nil {
		resp.DB = "unhealthy: " + err.Error()
		resp.Status = "degraded"
		status = fiber.StatusServiceUnavailable
	}

	if h.redis != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), healthPingTimeout)
		defer cancel()
		resp.Redis = "ok"
		if err := h.redis.Ping(ctx).Err(); err != nil {
			resp.Redis = "unhealthy: " + err.Error()
		}
	}

	return c.Status(status).JSON(resp)
}
