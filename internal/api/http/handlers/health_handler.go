package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/vendorhub/ticket-sync/internal/hub"
	"github.com/vendorhub/ticket-sync/internal/observability"
	"github.com/vendorhub/ticket-sync/internal/persistence"
)

// HealthHandler responds to liveness and readiness probes.
type HealthHandler struct {
	serviceName string
	version     string
	postgres    *persistence.Postgres
	redis       *persistence.Redis
	hub         *hub.Hub
	metrics     *observability.Metrics
}

// HealthDeps bundles what the probes inspect. Nil stores are reported as not configured.
type HealthDeps struct {
	ServiceName string
	Version     string
	Postgres    *persistence.Postgres
	Redis       *persistence.Redis
	Hub         *hub.Hub
	Metrics     *observability.Metrics
}

// NewHealthHandler returns a new handler instance.
func NewHealthHandler(deps HealthDeps) *HealthHandler {
	return &HealthHandler{
		serviceName: deps.ServiceName,
		version:     deps.Version,
		postgres:    deps.Postgres,
		redis:       deps.Redis,
		hub:         deps.Hub,
		metrics:     deps.Metrics,
	}
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"status":  "alive",
			"service": h.serviceName,
			"version": h.version,
		},
	})
}

// Ready reports service readiness by checking dependencies.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	depStatus := fiber.Map{}
	ready := true

	if h.postgres.PoolHandle() == nil {
		depStatus["postgres"] = "not configured"
	} else if err := h.postgres.Ping(ctx); err != nil {
		depStatus["postgres"] = err.Error()
		ready = false
	} else {
		depStatus["postgres"] = "ok"
	}

	if h.redis == nil {
		depStatus["redis"] = "not configured"
	} else if err := h.redis.Ping(ctx); err != nil {
		depStatus["redis"] = err.Error()
		ready = false
	} else {
		depStatus["redis"] = "ok"
	}

	if ready {
		return c.JSON(fiber.Map{
			"success": true,
			"data": fiber.Map{
				"status":       "ready",
				"dependencies": depStatus,
			},
		})
	}

	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"success": false,
		"message": "one or more dependencies unavailable",
		"data":    fiber.Map{"dependencies": depStatus},
	})
}

// Metrics reports request counters and realtime gauges.
func (h *HealthHandler) Metrics(c *fiber.Ctx) error {
	data := fiber.Map{"metrics": h.metrics.Snapshot()}
	if h.hub != nil {
		data["realtimeClients"] = h.hub.Clients()
	}
	return c.JSON(fiber.Map{"success": true, "data": data})
}
