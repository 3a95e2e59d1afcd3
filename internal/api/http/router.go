package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/topcity/ticket-service/internal/api/http/handlers"
	"github.com/topcity/ticket-service/internal/auth"
	"github.com/topcity/ticket-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Verify         *handlers.VerifyHandler
	Webhooks       *handlers.WebhookHandler
	Tickets        *handlers.TicketsHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	if cfg.Health != nil {
		app.Get("/health/live", cfg.Health.Live)
		app.Get("/health/ready", cfg.Health.Ready)
	}
	app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))

	verify := app.Group("/verify")
	verify.Get("/:code", cfg.Verify.Check)
	verify.Post("/:code", cfg.AuthMiddleware.Handle, auth.RequireStaff(), cfg.Verify.Redeem)
	verify.Get("/:code/history", cfg.AuthMiddleware.Handle, auth.RequireStaff(), cfg.Verify.History)

	app.Post("/webhooks/payments", cfg.Webhooks.Payments)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/:code/qr", cfg.Tickets.QRCode)
	tickets.Post("/:id/cancel", auth.RequireStaff(), cfg.Tickets.CancelTicket)
}
