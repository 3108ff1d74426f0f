package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vendorhub/ticket-sync/internal/api/http/handlers"
	"github.com/vendorhub/ticket-sync/internal/auth"
	"github.com/vendorhub/ticket-sync/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	api := app.Group("/api", cfg.AuthMiddleware.Handle,
		auth.RequireRole(domain.SenderVendor, domain.SenderCustomer, domain.SenderAdmin))

	tickets := api.Group("/tickets")
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/messages", cfg.Tickets.AddMessage)
	tickets.Patch("/:id/status", auth.RequireRole(domain.SenderAdmin), cfg.Tickets.UpdateStatus)
}
