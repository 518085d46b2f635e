package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/intake-desk/internal/api/dto"
	"github.com/spec-kit/intake-desk/internal/auth"
	"github.com/spec-kit/intake-desk/internal/service"
)

// QueueHandler exposes the waiting line to agents.
type QueueHandler struct {
	queue       *service.QueueService
	assignments *service.AssignmentService
	now         func() time.Time
}

// NewQueueHandler constructs handler.
func NewQueueHandler(queue *service.QueueService, assignments *service.AssignmentService, now func() time.Time) *QueueHandler {
	if now == nil {
		now = time.Now
	}
	return &QueueHandler{queue: queue, assignments: assignments, now: now}
}

// List GET /api/queue.
func (h *QueueHandler) List(c *fiber.Ctx) error {
	limit, offset := parsePage(c)
	entries, err := h.queue.ListWaiting(c.UserContext(), limit, offset)
	if err != nil {
		return err
	}
	now := h.now()
	items := make([]dto.QueueEntryResponse, 0, len(entries))
	for i := range entries {
		items = append(items, queueEntryResponse(&entries[i], now))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Next GET /api/queue/next.
func (h *QueueHandler) Next(c *fiber.Ctx) error {
	entry, err := h.queue.Next(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": queueEntryResponse(entry, h.now())})
}

// Stats GET /api/queue/stats.
func (h *QueueHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.queue.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"queued":               stats.Queued,
		"assigned":             stats.Assigned,
		"awaiting_name":        stats.AwaitingName,
		"awaiting_plate":       stats.AwaitingPlate,
		"awaiting_id":          stats.AwaitingID,
		"total":                stats.Total,
		"average_wait_minutes": stats.AverageWaitMinutes,
	}})
}

// Assign POST /api/queue/:identity/assign takes the requester's open ticket.
func (h *QueueHandler) Assign(c *fiber.Ctx) error {
	actor, err := auth.StaffFromContext(c)
	if err != nil {
		return err
	}
	ticket, err := h.assignments.AssignFromQueue(c.UserContext(), actor, c.Params("identity"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// Restart POST /api/queue/:identity/restart.
func (h *QueueHandler) Restart(c *fiber.Ctx) error {
	actor, err := auth.StaffFromContext(c)
	if err != nil {
		return err
	}
	conv, err := h.queue.Restart(c.UserContext(), actor, c.Params("identity"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewConversationResponse(conv)})
}

func queueEntryResponse(entry *service.QueueEntry, now time.Time) dto.QueueEntryResponse {
	resp := dto.QueueEntryResponse{
		Position:     entry.Position,
		Conversation: dto.NewConversationResponse(entry.Conversation),
	}
	if entry.Ticket != nil {
		ticket := dto.NewTicketResponse(entry.Ticket)
		resp.Ticket = &ticket
	}
	if queuedAt := entry.Conversation.QueuedAt; queuedAt != nil && now.After(*queuedAt) {
		resp.WaitMinutes = int(now.Sub(*queuedAt).Minutes())
	}
	return resp
}
