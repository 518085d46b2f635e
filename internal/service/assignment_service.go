package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/intake-desk/internal/domain"
	"github.com/spec-kit/intake-desk/internal/events"
	"github.com/spec-kit/intake-desk/internal/repository"
	apperrors "github.com/spec-kit/intake-desk/pkg/util/errorutil"
)

// AssignmentService claims tickets for agents and moves the requester's
// conversation out of the queue.
type AssignmentService struct {
	locks      *LockService
	store      *ConversationStore
	tickets    repository.TicketRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        Clock
}

// AssignmentDependencies bundles collaborators.
type AssignmentDependencies struct {
	Locks      *LockService
	Store      *ConversationStore
	TicketRepo repository.TicketRepository
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Clock      Clock
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{
		locks:      deps.Locks,
		store:      deps.Store,
		tickets:    deps.TicketRepo,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		now:        clockOrDefault(deps.Clock),
	}
}

// AssignTicket acquires the lock for actor and marks the conversation ASSIGNED.
// A failing conversation update is logged and never rolls back the lock.
func (s *AssignmentService) AssignTicket(ctx context.Context, actor *domain.StaffMember, ticketID string) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	ticket, err := s.locks.TryAcquire(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}

	alreadyAssigned := false
	_, err = s.store.Update(ctx, ticket.Identity, func(conv *domain.Conversation) error {
		if conv.Step == domain.StepAssigned && conv.AssignedAgentID != nil && *conv.AssignedAgentID == actor.ID {
			alreadyAssigned = true
			return errSkipSave
		}
		now := s.now()
		if conv.QueuedAt == nil {
			queuedAt := now
			conv.QueuedAt = &queuedAt
		}
		agentID := actor.ID
		conv.AssignedAgentID = &agentID
		conv.Step = domain.StepAssigned
		conv.QueuePosition = nil
		conv.UpdatedAt = now
		return nil
	})
	if err != nil {
		s.logger.Error("assign conversation failed",
			zap.String("identity", ticket.Identity),
			zap.String("ticket_number", ticket.Number),
			zap.Error(err))
	}

	if !alreadyAssigned {
		s.logger.Info("ticket assigned",
			zap.String("ticket_number", ticket.Number),
			zap.String("agent_id", actor.ID))
		publish(ctx, s.dispatcher, s.logger, events.New(events.EventTicketAssigned, ticket.Identity, ticket.ID, strPtr(actor.ID), s.now(),
			events.TicketAssignedPayload{Number: ticket.Number, AgentID: actor.ID, AgentName: actor.Name}))
	}
	return ticket, nil
}

// AssignFromQueue assigns the open ticket of a waiting requester.
func (s *AssignmentService) AssignFromQueue(ctx context.Context, actor *domain.StaffMember, identity string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetOpenForIdentity(ctx, identity)
	if err != nil {
		return nil, mapRepoError(err, "open ticket", identity)
	}
	return s.AssignTicket(ctx, actor, ticket.ID)
}
