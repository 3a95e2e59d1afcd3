package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/topcity/ticket-service/internal/persistence"
)

const readinessTimeout = 2 * time.Second

// HealthHandler answers liveness and readiness checks.
type HealthHandler struct {
	serviceName   string
	version       string
	postgres      *persistence.Postgres
	redis         *persistence.Redis
	redisRequired bool
}

// NewHealthHandler returns a new handler instance. redisRequired marks
// Redis as a hard dependency, as it is when notifications go to a stream.
func NewHealthHandler(serviceName, version string, postgres *persistence.Postgres, redis *persistence.Redis, redisRequired bool) *HealthHandler {
	return &HealthHandler{
		serviceName:   serviceName,
		version:       version,
		postgres:      postgres,
		redis:         redis,
		redisRequired: redisRequired,
	}
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready reports whether door scans can be served. The ticket store is
// required; the Redis event cache only degrades latency when missing.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
	defer cancel()

	depStatus := fiber.Map{}
	ready := true

	switch {
	case !h.postgres.Enabled():
		depStatus["ticket_store"] = "memory"
	case h.postgres.Ping(ctx) != nil:
		depStatus["ticket_store"] = "unreachable"
		ready = false
	default:
		depStatus["ticket_store"] = "postgres"
	}

	switch {
	case !h.redis.Enabled():
		depStatus["event_cache"] = "disabled"
	case h.redis.Ping(ctx) != nil:
		depStatus["event_cache"] = "degraded"
		if h.redisRequired {
			ready = false
		}
	default:
		depStatus["event_cache"] = "ok"
	}

	if ready {
		return c.JSON(fiber.Map{
			"status":       "ready",
			"dependencies": depStatus,
		})
	}

	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "DEPENDENCY_UNAVAILABLE",
			"message": "one or more dependencies unavailable",
			"details": depStatus,
		},
	})
}
