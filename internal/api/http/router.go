package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-chat/internal/api/http/handlers"
	"github.com/spec-kit/ticket-chat/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Messages       *handlers.MessagesHandler
	WS             *handlers.WSHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)

	app.Get("/ws", cfg.WS.Upgrade, cfg.WS.Serve())

	api := app.Group("/api", cfg.AuthMiddleware.Handle)
	api.Post("/tickets", cfg.Tickets.Create)
	api.Get("/tickets", cfg.Tickets.List)
	api.Post("/tickets/bulk-delete", auth.RequireOperator(), cfg.Tickets.BulkDelete)
	api.Get("/tickets/:id", cfg.Tickets.Get)
	api.Patch("/tickets/:id/status", cfg.Tickets.UpdateStatus)
	api.Post("/tickets/:id/assign", auth.RequireOperator(), cfg.Tickets.Assign)
	api.Delete("/tickets/:id", auth.RequireOperator(), cfg.Tickets.Delete)
	api.Get("/tickets/:id/messages", cfg.Messages.History)
	api.Post("/tickets/:id/messages", cfg.Messages.Send)
}
