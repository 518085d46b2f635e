package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/intake-desk/internal/api/dto"
	"github.com/spec-kit/intake-desk/internal/auth"
	"github.com/spec-kit/intake-desk/internal/domain"
	"github.com/spec-kit/intake-desk/internal/service"
)

// TicketsHandler serves the agent ticket endpoints.
type TicketsHandler struct {
	tickets     *service.TicketService
	locks       *service.LockService
	assignments *service.AssignmentService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets *service.TicketService, locks *service.LockService, assignments *service.AssignmentService) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, locks: locks, assignments: assignments}
}

// ListTickets GET /api/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	actor, err := auth.StaffFromContext(c)
	if err != nil {
		return err
	}
	filter := parseTicketFilter(c, actor)
	tickets, total, err := h.tickets.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data": dto.NewTicketResponses(tickets),
		"meta": fiber.Map{"total": total, "limit": filter.Limit, "offset": filter.Offset},
	})
}

// GetTicket GET /api/tickets/:ref. The ref is an id or a TKT number.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.tickets.Get(c.UserContext(), c.Params("ref"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// UpdateTicket PATCH /api/tickets/:ref.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	actor, err := auth.StaffFromContext(c)
	if err != nil {
		return err
	}
	var req dto.TicketPatchRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ticket, err := h.tickets.UpdateFields(c.UserContext(), actor, c.Params("ref"), service.TicketUpdateInput{
		Status:          req.Status,
		Priority:        req.Priority,
		Description:     req.Description,
		AssignedAgentID: req.AssignedAgentID,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// AssignTicket POST /api/tickets/:ref/assign claims the ticket for the caller.
func (h *TicketsHandler) AssignTicket(c *fiber.Ctx) error {
	actor, err := auth.StaffFromContext(c)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.Get(c.UserContext(), c.Params("ref"))
	if err != nil {
		return err
	}
	ticket, err = h.assignments.AssignTicket(c.UserContext(), actor, ticket.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// AddNote POST /api/tickets/:ref/notes.
func (h *TicketsHandler) AddNote(c *fiber.Ctx) error {
	actor, err := auth.StaffFromContext(c)
	if err != nil {
		return err
	}
	var req dto.NoteRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ticket, err := h.tickets.AddNote(c.UserContext(), actor, c.Params("ref"), req.Text)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// CloseTicket POST /api/tickets/:ref/close.
func (h *TicketsHandler) CloseTicket(c *fiber.Ctx) error {
	actor, err := auth.StaffFromContext(c)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.Close(c.UserContext(), actor, c.Params("ref"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// ReleaseLock POST /api/tickets/:ref/release.
func (h *TicketsHandler) ReleaseLock(c *fiber.Ctx) error {
	actor, err := auth.StaffFromContext(c)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.Get(c.UserContext(), c.Params("ref"))
	if err != nil {
		return err
	}
	ticket, err = h.locks.Release(c.UserContext(), actor, ticket.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// InspectLock GET /api/tickets/:ref/lock.
func (h *TicketsHandler) InspectLock(c *fiber.Ctx) error {
	actor, err := auth.StaffFromContext(c)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.Get(c.UserContext(), c.Params("ref"))
	if err != nil {
		return err
	}
	inspection, err := h.locks.Inspect(c.UserContext(), actor, ticket.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": inspection})
}

// Summary GET /api/tickets/summary.
func (h *TicketsHandler) Summary(c *fiber.Ctx) error {
	actor, err := auth.StaffFromContext(c)
	if err != nil {
		return err
	}
	stats, err := h.tickets.Summary(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TicketSummaryResponse{
		ByStatus:                 stats.ByStatus,
		OpenByPriority:           stats.OpenByPriority,
		OpenForMe:                stats.OpenForAgent,
		AverageResolutionMinutes: stats.AverageResolutionMinutes,
	}})
}

func parseTicketFilter(c *fiber.Ctx, actor *domain.StaffMember) service.TicketListFilter {
	var filter service.TicketListFilter
	for _, s := range splitQuery(c, "status") {
		filter.Statuses = append(filter.Statuses, domain.TicketStatus(s))
	}
	for _, p := range splitQuery(c, "priority") {
		filter.Priorities = append(filter.Priorities, domain.TicketPriority(p))
	}
	filter.AssignedAgentID = optionalQuery(c, "assigned_to")
	if filter.AssignedAgentID != nil && *filter.AssignedAgentID == "me" {
		filter.AssignedAgentID = &actor.ID
	}
	filter.Identity = optionalQuery(c, "identity")
	filter.SearchTerm = optionalQuery(c, "q")
	filter.Limit, filter.Offset = parsePage(c)
	return filter
}
