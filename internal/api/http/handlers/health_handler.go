package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-chat/internal/persistence"
)

// HealthHandler exposes liveness and readiness probes.
type HealthHandler struct {
	pg    *persistence.Postgres
	redis *persistence.Redis
}

// NewHealthHandler constructs handler.
func NewHealthHandler(pg *persistence.Postgres, redis *persistence.Redis) *HealthHandler {
	return &HealthHandler{pg: pg, redis: redis}
}

// Live GET /health/live.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Ready GET /health/ready. Postgres is required; Redis only degrades the
// warm cache, so its state is reported but never fails readiness.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx := c.UserContext()

	if h.pg == nil || h.pg.Pool == nil {
		return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
	}
	if err := h.pg.Pool.Ping(ctx); err != nil {
		return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{
			"status":   "unavailable",
			"postgres": err.Error(),
		})
	}

	cacheState := "ok"
	if err := h.redis.Ping(ctx); err != nil {
		cacheState = "disabled"
	}
	return c.JSON(fiber.Map{"status": "ok", "cache": cacheState})
}
