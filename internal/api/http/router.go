package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/superpool/dispute-service/internal/api/http/handlers"
	"github.com/superpool/dispute-service/internal/auth"
	"github.com/superpool/dispute-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Agents         *handlers.AgentsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)

	staff := auth.RequireStaffRole()
	tickets.Patch("/:id", staff, cfg.Tickets.UpdateTicket)
	tickets.Post("/:id/assign", staff, cfg.Tickets.AssignTicket)
	tickets.Post("/:id/resolve", staff, cfg.Tickets.ResolveTicket)
	tickets.Post("/:id/close", auth.RequireStaffRole(domain.StaffRoleSupport, domain.StaffRoleAdmin), cfg.Tickets.CloseTicket)
	tickets.Post("/:id/escalate", staff, cfg.Tickets.EscalateTicket)

	agents := app.Group("/agents", cfg.AuthMiddleware.Handle, staff)
	agents.Get("/", cfg.Agents.ListAgents)
	agents.Put("/:id", auth.RequireStaffRole(domain.StaffRoleAdmin), cfg.Agents.UpsertAgent)
	agents.Post("/:id/availability", cfg.Agents.SetAvailability)
}
