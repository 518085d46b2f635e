package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/intake-desk/internal/api/dto"
	"github.com/spec-kit/intake-desk/internal/auth"
	"github.com/spec-kit/intake-desk/internal/domain"
	"github.com/spec-kit/intake-desk/internal/service"
)

// ConversationsHandler serves the agent inbox.
type ConversationsHandler struct {
	conversations *service.ConversationService
}

// NewConversationsHandler constructs handler.
func NewConversationsHandler(conversations *service.ConversationService) *ConversationsHandler {
	return &ConversationsHandler{conversations: conversations}
}

// List GET /api/conversations.
func (h *ConversationsHandler) List(c *fiber.Ctx) error {
	var filter service.ConversationListFilter
	for _, s := range splitQuery(c, "status") {
		filter.Statuses = append(filter.Statuses, domain.ConversationStatus(s))
	}
	for _, s := range splitQuery(c, "step") {
		filter.Steps = append(filter.Steps, domain.IntakeStep(s))
	}
	filter.Limit, filter.Offset = parsePage(c)
	convs, err := h.conversations.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.ConversationResponse, 0, len(convs))
	for i := range convs {
		items = append(items, dto.NewConversationResponse(&convs[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /api/conversations/:identity returns the message log and marks it read.
func (h *ConversationsHandler) Get(c *fiber.Ctx) error {
	conv, err := h.conversations.Read(c.UserContext(), c.Params("identity"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewConversationDetail(conv)})
}

// SetStatus PATCH /api/conversations/:identity/status.
func (h *ConversationsHandler) SetStatus(c *fiber.Ctx) error {
	actor, err := auth.StaffFromContext(c)
	if err != nil {
		return err
	}
	var req dto.ConversationStatusRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	conv, err := h.conversations.SetStatus(c.UserContext(), actor, c.Params("identity"), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewConversationResponse(conv)})
}

// Reply POST /api/conversations/:identity/messages.
func (h *ConversationsHandler) Reply(c *fiber.Ctx) error {
	actor, err := auth.StaffFromContext(c)
	if err != nil {
		return err
	}
	var req dto.ReplyRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	conv, err := h.conversations.Reply(c.UserContext(), actor, c.Params("identity"), req.Text)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewConversationDetail(conv)})
}
