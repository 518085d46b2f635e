package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/intake-desk/internal/api/http/handlers"
	"github.com/spec-kit/intake-desk/internal/auth"
	"github.com/spec-kit/intake-desk/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Webhook        *handlers.WebhookHandler
	Queue          *handlers.QueueHandler
	Tickets        *handlers.TicketsHandler
	Conversations  *handlers.ConversationsHandler
	Staff          *handlers.StaffHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	app.Get("/api/webhook", cfg.Webhook.Verify)
	app.Post("/api/webhook", cfg.Webhook.Receive)

	app.Post("/auth/staff/login", cfg.Staff.Login)

	api := app.Group("/api", cfg.AuthMiddleware.Handle, auth.RequireStaffRole())
	admin := auth.RequireStaffRole(domain.StaffRoleAdmin)

	queue := api.Group("/queue")
	queue.Get("/", cfg.Queue.List)
	queue.Get("/next", cfg.Queue.Next)
	queue.Get("/stats", cfg.Queue.Stats)
	queue.Post("/:identity/assign", cfg.Queue.Assign)
	queue.Post("/:identity/restart", cfg.Queue.Restart)

	tickets := api.Group("/tickets")
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/summary", cfg.Tickets.Summary)
	tickets.Get("/:ref", cfg.Tickets.GetTicket)
	tickets.Patch("/:ref", cfg.Tickets.UpdateTicket)
	tickets.Post("/:ref/assign", cfg.Tickets.AssignTicket)
	tickets.Post("/:ref/notes", cfg.Tickets.AddNote)
	tickets.Post("/:ref/close", cfg.Tickets.CloseTicket)
	tickets.Post("/:ref/release", cfg.Tickets.ReleaseLock)
	tickets.Get("/:ref/lock", cfg.Tickets.InspectLock)

	conversations := api.Group("/conversations")
	conversations.Get("/", cfg.Conversations.List)
	conversations.Get("/:identity", cfg.Conversations.Get)
	conversations.Patch("/:identity/status", cfg.Conversations.SetStatus)
	conversations.Post("/:identity/messages", cfg.Conversations.Reply)

	staff := api.Group("/staff")
	staff.Get("/me", cfg.Staff.Me)
	staff.Post("/me/password", cfg.Staff.ChangePassword)
	staff.Post("/", admin, cfg.Staff.CreateStaff)
	staff.Get("/", admin, cfg.Staff.ListStaff)
	staff.Get("/:id", admin, cfg.Staff.GetStaff)
	staff.Patch("/:id", admin, cfg.Staff.UpdateStaff)
}
