package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/intake-desk/internal/events"
)

// Notification is one requester message waiting to be sent.
type Notification struct {
	Identity string
	Text     string
}

// NotificationService turns domain events into requester messages.
type NotificationService struct {
	dispatcher events.Dispatcher
	messenger  *Messenger
	logger     *zap.Logger
	jobs       chan Notification
}

// NewNotificationService creates the service. With a positive buffer, messages are
// queued for a worker; otherwise they are sent inline.
func NewNotificationService(dispatcher events.Dispatcher, messenger *Messenger, logger *zap.Logger, buffer int) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &NotificationService{
		dispatcher: dispatcher,
		messenger:  messenger,
		logger:     logger,
	}
	if buffer > 0 {
		n.jobs = make(chan Notification, buffer)
	}
	return n
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.handleTicketAssigned)
	n.dispatcher.Subscribe(events.EventTicketClosed, n.handleTicketClosed)
}

// Jobs exposes the queue drained by workers. Nil when sending inline.
func (n *NotificationService) Jobs() <-chan Notification {
	return n.jobs
}

// Deliver sends one queued notification.
func (n *NotificationService) Deliver(ctx context.Context, job Notification) {
	n.messenger.SendAndLog(ctx, job.Identity, job.Text)
}

func (n *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketAssignedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	n.enqueue(ctx, Notification{Identity: event.Identity, Text: promptAgentTookTicket(payload.Number, payload.AgentName)})
	return nil
}

func (n *NotificationService) handleTicketClosed(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketClosedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	n.enqueue(ctx, Notification{Identity: event.Identity, Text: promptTicketClosed(payload.Number)})
	return nil
}

func (n *NotificationService) enqueue(ctx context.Context, job Notification) {
	if n.jobs == nil {
		n.Deliver(ctx, job)
		return
	}
	select {
	case n.jobs <- job:
	default:
		n.logger.Warn("notification queue full, sending inline", zap.String("identity", job.Identity))
		n.Deliver(ctx, job)
	}
}
