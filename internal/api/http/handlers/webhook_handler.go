package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/intake-desk/internal/service"
	"github.com/spec-kit/intake-desk/internal/whatsapp"
)

// WebhookHandler receives WhatsApp Cloud API deliveries.
type WebhookHandler struct {
	inbound     *service.InboundService
	verifyToken string
	logger      *zap.Logger
}

// NewWebhookHandler constructs handler.
func NewWebhookHandler(inbound *service.InboundService, verifyToken string, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{inbound: inbound, verifyToken: verifyToken, logger: logger}
}

// Verify handles GET /api/webhook subscription checks.
func (h *WebhookHandler) Verify(c *fiber.Ctx) error {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	if mode != "subscribe" || h.verifyToken == "" || token != h.verifyToken {
		h.logger.Warn("webhook verification refused", zap.String("mode", mode))
		return c.SendStatus(fiber.StatusForbidden)
	}
	return c.Status(fiber.StatusOK).SendString(c.Query("hub.challenge"))
}

// Receive handles POST /api/webhook. The channel retries anything that is not a 200,
// so failures are logged and acknowledged.
func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	var payload whatsapp.WebhookPayload
	if err := c.BodyParser(&payload); err != nil {
		h.logger.Warn("webhook payload rejected", zap.Error(err))
		return c.SendStatus(fiber.StatusOK)
	}

	ctx := c.UserContext()
	for _, ev := range payload.Events() {
		if ev.Identity == "" || ev.ExternalMessageID == "" {
			h.logger.Warn("webhook message without sender or id skipped")
			continue
		}
		outcome, err := h.inbound.Handle(ctx, ev)
		if err != nil {
			h.logger.Error("inbound message failed",
				zap.String("identity", ev.Identity),
				zap.String("message_id", ev.ExternalMessageID),
				zap.Error(err))
			continue
		}
		h.logger.Debug("inbound message handled",
			zap.String("identity", ev.Identity),
			zap.String("outcome", string(outcome)))
	}
	for _, st := range payload.StatusUpdates() {
		if err := h.inbound.HandleStatus(ctx, st.RecipientID, st.MessageID, st.Status); err != nil {
			h.logger.Warn("delivery status not applied",
				zap.String("message_id", st.MessageID),
				zap.Error(err))
		}
	}
	return c.SendStatus(fiber.StatusOK)
}
