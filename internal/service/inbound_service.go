package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/intake-desk/internal/dedup"
	"github.com/spec-kit/intake-desk/internal/domain"
	"github.com/spec-kit/intake-desk/internal/events"
	"github.com/spec-kit/intake-desk/internal/observability"
)

// InboundOutcome tells what the gate did with an event.
type InboundOutcome string

const (
	OutcomeProcessed    InboundOutcome = "processed"
	OutcomeDuplicate    InboundOutcome = "duplicate"
	OutcomeEditRejected InboundOutcome = "edit_rejected"
)

// InboundService filters replays and edits before the intake dialogue runs.
type InboundService struct {
	guard         dedup.Guard
	intake        *IntakeService
	tickets       *TicketService
	conversations *ConversationService
	store         *ConversationStore
	messenger     *Messenger
	reader        ReadMarker
	dispatcher    events.Dispatcher
	metrics       *observability.Metrics
	logger        *zap.Logger
	now           Clock
}

// InboundDependencies bundles collaborators for the gate.
type InboundDependencies struct {
	Guard         dedup.Guard
	Intake        *IntakeService
	Tickets       *TicketService
	Conversations *ConversationService
	Store         *ConversationStore
	Messenger     *Messenger
	Reader        ReadMarker
	Dispatcher    events.Dispatcher
	Metrics       *observability.Metrics
	Logger        *zap.Logger
	Clock         Clock
}

// NewInboundService constructs the gate.
func NewInboundService(deps InboundDependencies) *InboundService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InboundService{
		guard:         deps.Guard,
		intake:        deps.Intake,
		tickets:       deps.Tickets,
		conversations: deps.Conversations,
		store:         deps.Store,
		messenger:     deps.Messenger,
		reader:        deps.Reader,
		dispatcher:    deps.Dispatcher,
		metrics:       deps.Metrics,
		logger:        logger,
		now:           clockOrDefault(deps.Clock),
	}
}

// Handle processes one inbound event at most once.
func (s *InboundService) Handle(ctx context.Context, ev domain.InboundEvent) (InboundOutcome, error) {
	logger := s.logger.With(zap.String("identity", ev.Identity), zap.String("message_id", ev.ExternalMessageID))

	if ev.ExternalMessageID != "" {
		claimed, err := s.guard.Claim(ctx, ev.ExternalMessageID)
		if err != nil {
			return "", err
		}
		if !claimed {
			s.metrics.Inc(observability.CounterInboundDuplicate)
			logger.Info("duplicate inbound message dropped")
			return OutcomeDuplicate, nil
		}
	}

	if s.isEdit(ctx, ev) {
		s.rejectEdit(ctx, ev, logger)
		return OutcomeEditRejected, nil
	}

	result, err := s.intake.Advance(ctx, ev)
	if err != nil {
		if ev.ExternalMessageID != "" {
			if relErr := s.guard.Release(ctx, ev.ExternalMessageID); relErr != nil {
				logger.Warn("release inbound claim failed", zap.Error(relErr))
			}
		}
		logger.Error("inbound processing failed", zap.Error(err))
		return "", err
	}
	if result.Duplicate {
		s.metrics.Inc(observability.CounterInboundDuplicate)
		logger.Info("inbound message already logged, dropped")
		return OutcomeDuplicate, nil
	}

	s.metrics.Inc(observability.CounterInboundProcessed)
	logger.Info("inbound processed",
		zap.String("kind", string(ev.Kind)),
		zap.String("step", string(result.Conversation.Step)))

	if result.Prompt != "" {
		s.messenger.Deliver(ctx, ev.Identity, result.Prompt)
	}
	s.markRead(ctx, ev, logger)
	return OutcomeProcessed, nil
}

// HandleStatus applies a delivery receipt to the conversation log.
func (s *InboundService) HandleStatus(ctx context.Context, identity, messageID string, status domain.DeliveryStatus) error {
	return s.conversations.ApplyDeliveryStatus(ctx, identity, messageID, status)
}

// isEdit reports whether the event references a message already known to the desk.
func (s *InboundService) isEdit(ctx context.Context, ev domain.InboundEvent) bool {
	ref := ev.ReferencedMessageID
	if ref == "" {
		return false
	}
	if seen, err := s.guard.Seen(ctx, ref); err == nil && seen {
		return true
	}
	conv, err := s.store.Get(ctx, ev.Identity)
	if err != nil {
		return false
	}
	return conv.HasMessage(ref)
}

func (s *InboundService) rejectEdit(ctx context.Context, ev domain.InboundEvent, logger *zap.Logger) {
	s.metrics.Inc(observability.CounterInboundEdit)
	logger.Info("edit attempt rejected", zap.String("referenced_message_id", ev.ReferencedMessageID))

	ticketID := ""
	ticket, err := s.tickets.OpenForIdentity(ctx, ev.Identity)
	if err != nil {
		logger.Warn("lookup open ticket for edit failed", zap.Error(err))
	}
	if ticket != nil {
		ticketID = ticket.ID
		if _, err := s.tickets.AddSystemNote(ctx, ticket.ID, editAttemptNote(ev.Text)); err != nil {
			logger.Warn("record edit attempt failed", zap.Error(err))
		}
	}

	publish(ctx, s.dispatcher, s.logger, events.New(events.EventInboundRejected, ev.Identity, ticketID, nil, s.now(),
		events.InboundRejectedPayload{
			ExternalMessageID:   ev.ExternalMessageID,
			ReferencedMessageID: ev.ReferencedMessageID,
			Reason:              "edit",
		}))

	if _, err := s.store.Get(ctx, ev.Identity); err != nil {
		s.messenger.Deliver(ctx, ev.Identity, promptEditRejected())
		return
	}
	s.messenger.SendAndLog(ctx, ev.Identity, promptEditRejected())
}

func (s *InboundService) markRead(ctx context.Context, ev domain.InboundEvent, logger *zap.Logger) {
	if s.reader == nil || ev.ExternalMessageID == "" {
		return
	}
	if err := s.reader.MarkRead(ctx, ev.ExternalMessageID); err != nil {
		logger.Debug("mark read failed", zap.Error(err))
	}
}
