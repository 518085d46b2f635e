package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/intake-desk/internal/domain"
	"github.com/spec-kit/intake-desk/internal/events"
	"github.com/spec-kit/intake-desk/internal/repository"
	apperrors "github.com/spec-kit/intake-desk/pkg/util/errorutil"
)

// Effect is the side effect produced by one intake step.
type Effect int

const (
	EffectNone Effect = iota
	EffectCreateTicket
)

// IntakeResult is the outcome of advancing a conversation with one inbound event.
type IntakeResult struct {
	// Prompt is the reply to send, empty when nothing is sent.
	Prompt       string
	Effect       Effect
	Ticket       *domain.Ticket
	Conversation *domain.Conversation
	// Superseded is an open ticket from an earlier cycle, closed when this cycle admits.
	Superseded *domain.Ticket
	// Duplicate is set when the message id is already in the conversation log.
	Duplicate bool
}

// IntakeService runs the requester dialogue.
type IntakeService struct {
	store      *ConversationStore
	tickets    *TicketService
	queue      *QueueService
	staff      repository.StaffRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        Clock
}

// IntakeDependencies bundles collaborators for the intake service.
type IntakeDependencies struct {
	Store      *ConversationStore
	Tickets    *TicketService
	Queue      *QueueService
	StaffRepo  repository.StaffRepository
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Clock      Clock
}

// NewIntakeService constructs the service.
func NewIntakeService(deps IntakeDependencies) *IntakeService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntakeService{
		store:      deps.Store,
		tickets:    deps.Tickets,
		queue:      deps.Queue,
		staff:      deps.StaffRepo,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		now:        clockOrDefault(deps.Clock),
	}
}

// Advance applies one inbound event to the requester's conversation. The reply
// is logged as queued together with the state change; delivery is up to the caller.
func (s *IntakeService) Advance(ctx context.Context, ev domain.InboundEvent) (*IntakeResult, error) {
	unlock := s.store.Lock(ev.Identity)
	defer unlock()

	now := s.now()
	conv, err := s.store.Repo().Get(ctx, ev.Identity)
	if errors.Is(err, repository.ErrNotFound) {
		return s.start(ctx, ev, now)
	}
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if conv.HasMessage(ev.ExternalMessageID) {
		return &IntakeResult{Conversation: conv, Duplicate: true}, nil
	}

	conv.AppendMessage(ev.LogEntry(now))
	conv.UpdatedAt = now

	switch conv.Status {
	case domain.ConversationBlocked:
		s.logger.Info("inbound from blocked conversation", zap.String("identity", conv.Identity))
		if err := s.save(ctx, conv); err != nil {
			return nil, err
		}
		return &IntakeResult{Conversation: conv}, nil
	case domain.ConversationArchived:
		conv.Status = domain.ConversationActive
	}

	ticket, err := s.tickets.OpenForIdentity(ctx, conv.Identity)
	if err != nil {
		return nil, err
	}

	result := &IntakeResult{Conversation: conv, Ticket: ticket}
	if ticket != nil && !conv.Step.InQueue() && ticket.CreatedAt.Before(conv.CycleStartedAt) {
		result.Ticket, result.Superseded = nil, ticket
		ticket = nil
	}
	switch {
	case conv.Step == domain.StepStart || (conv.Step.InQueue() && ticket == nil):
		conv.BeginCycle(now)
		result.Prompt = promptWelcome()
	case ev.Kind.IsMedia():
		result.Prompt, err = s.handleMedia(ctx, ev, ticket, result)
	default:
		err = s.step(ctx, conv, ev, result, now)
	}
	if err != nil {
		return nil, err
	}

	if result.Prompt != "" {
		conv.QueueOutbound(result.Prompt, now)
	}
	if err := s.save(ctx, conv); err != nil {
		return nil, err
	}

	if result.Effect == EffectCreateTicket && conv.QueuePosition != nil {
		publish(ctx, s.dispatcher, s.logger, events.New(events.EventConversationQueued, conv.Identity, result.Ticket.ID, nil, now,
			events.ConversationQueuedPayload{Position: *conv.QueuePosition}))
	}
	return result, nil
}

func (s *IntakeService) start(ctx context.Context, ev domain.InboundEvent, now time.Time) (*IntakeResult, error) {
	conv := domain.NewConversation(ev.Identity, now)
	conv.BeginCycle(now)
	conv.AppendMessage(ev.LogEntry(now))
	prompt := promptWelcome()
	conv.QueueOutbound(prompt, now)
	if err := s.store.Repo().Create(ctx, conv); err != nil {
		return nil, mapRepoError(err, "conversation", ev.Identity)
	}
	s.logger.Info("conversation started", zap.String("identity", conv.Identity))
	return &IntakeResult{Prompt: prompt, Conversation: conv}, nil
}

func (s *IntakeService) handleMedia(ctx context.Context, ev domain.InboundEvent, ticket *domain.Ticket, result *IntakeResult) (string, error) {
	if ticket == nil {
		return promptMediaPending(ev.Kind, ev.Caption), nil
	}
	if ev.MediaRef != "" {
		updated, err := s.tickets.Attach(ctx, ticket.ID, domain.TicketAttachment{
			Kind:      ev.Kind,
			MediaRef:  ev.MediaRef,
			Caption:   ev.Caption,
			CreatedAt: s.now(),
		})
		if err != nil {
			return "", err
		}
		if _, err := s.tickets.AddSystemNote(ctx, ticket.ID, mediaNote(ev.Kind, ev.Caption, ev.MediaRef)); err != nil {
			return "", err
		}
		result.Ticket = updated
	}
	return promptMediaSaved(ev.Kind, ev.Caption, ticket), nil
}

// step handles a text answer for the current dialogue step.
func (s *IntakeService) step(ctx context.Context, conv *domain.Conversation, ev domain.InboundEvent, result *IntakeResult, now time.Time) error {
	switch conv.Step {
	case domain.StepAwaitingName:
		name, rejection := domain.NormalizeDisplayName(ev.Text)
		if rejection != "" {
			result.Prompt = promptNameRejected(rejection)
			return nil
		}
		conv.DisplayName = name
		conv.Step = domain.StepAwaitingPlate
		result.Prompt = promptPlate(name)

	case domain.StepAwaitingPlate:
		plate, rejection := domain.NormalizePlate(ev.Text)
		if rejection != "" {
			result.Prompt = promptPlateRejected()
			return nil
		}
		conv.Plate = plate
		conv.Step = domain.StepAwaitingID
		result.Prompt = promptNationalID(plate)

	case domain.StepAwaitingID:
		nationalID, rejection := domain.NormalizeNationalID(ev.Text)
		if rejection != "" {
			result.Prompt = promptNationalIDRejected()
			return nil
		}
		conv.NationalID = nationalID
		return s.admit(ctx, conv, result, now)

	case domain.StepQueued:
		position, err := s.queue.Position(ctx, conv)
		if err != nil {
			return err
		}
		conv.QueuePosition = &position
		result.Prompt = promptStillQueued(result.Ticket, position)

	case domain.StepAssigned:
		agentID := conv.AssignedAgentID
		if agentID == nil && result.Ticket != nil {
			agentID = result.Ticket.AssignedAgentID
		}
		result.Prompt = promptAssigned(result.Ticket, staffName(ctx, s.staff, agentID))

	default:
		s.logger.Error("conversation in unknown step", zap.String("identity", conv.Identity), zap.String("step", string(conv.Step)))
		return apperrors.NewIntegrityViolation(fmt.Sprintf("unknown intake step %q", conv.Step), nil)
	}
	return nil
}

// admit queues the requester and creates the ticket for the cycle. A ticket
// created during this cycle by a failed earlier attempt is reused; one left
// open by an earlier cycle is closed first.
func (s *IntakeService) admit(ctx context.Context, conv *domain.Conversation, result *IntakeResult, now time.Time) error {
	seq, err := s.store.Repo().NextQueueSeq(ctx)
	if err != nil {
		return apperrors.MapError(err)
	}
	queuedAt := now
	conv.QueuedAt = &queuedAt
	conv.QueueSeq = seq
	conv.Step = domain.StepQueued

	ticket := result.Ticket
	if ticket == nil {
		if stale := result.Superseded; stale != nil {
			if _, err := s.tickets.Supersede(ctx, stale.ID); err != nil {
				return err
			}
		}
		var attachments []domain.TicketAttachment
		for _, entry := range conv.MediaSinceCycle() {
			attachments = append(attachments, domain.TicketAttachment{
				Kind:      entry.Kind,
				MediaRef:  entry.MediaRef,
				Caption:   entry.Caption,
				CreatedAt: entry.Timestamp,
			})
		}
		ticket, err = s.tickets.Create(ctx, TicketCreateInput{
			Identity:    conv.Identity,
			DisplayName: conv.DisplayName,
			Plate:       conv.Plate,
			NationalID:  conv.NationalID,
			Description: ticketDescription(conv),
			Attachments: attachments,
		})
		if err != nil {
			return err
		}
		result.Effect = EffectCreateTicket
	} else {
		s.logger.Info("reusing open ticket for admission",
			zap.String("identity", conv.Identity),
			zap.String("ticket_number", ticket.Number))
	}
	result.Ticket = ticket

	position, err := s.queue.Position(ctx, conv)
	if err != nil {
		return err
	}
	conv.QueuePosition = &position
	result.Prompt = promptQueued(conv, ticket, position)
	return nil
}

func (s *IntakeService) save(ctx context.Context, conv *domain.Conversation) error {
	if !conv.CheckQueueInvariant() {
		return apperrors.NewIntegrityViolation("admission timestamp does not match step", nil)
	}
	if err := s.store.Repo().Save(ctx, conv); err != nil {
		return mapRepoError(err, "conversation", conv.Identity)
	}
	return nil
}
