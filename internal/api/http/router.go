package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-tracker/internal/api/http/handlers"
	"github.com/spec-kit/ticket-tracker/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Tickets        *handlers.TicketsHandler
	AuthMiddleware *auth.Middleware
}

// RegisterRoutes wires HTTP routes. List and Get on tickets are
// intentionally unauthenticated and unscoped while writes require a
// bearer token; this asymmetry is part of the public contract.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Users.Register)
	authGroup.Post("/login", cfg.Users.Login)

	tickets := app.Group("/api/tickets")
	tickets.Get("/", cfg.Tickets.List)
	tickets.Post("/", cfg.AuthMiddleware.Handle, cfg.Tickets.Create)
	tickets.Get("/:id", cfg.Tickets.Get)
	tickets.Put("/:id", cfg.AuthMiddleware.Handle, cfg.Tickets.Update)
	tickets.Delete("/:id", cfg.AuthMiddleware.Handle, cfg.Tickets.Delete)
}
