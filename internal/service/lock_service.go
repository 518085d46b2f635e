package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/intake-desk/internal/domain"
	"github.com/spec-kit/intake-desk/internal/events"
	"github.com/spec-kit/intake-desk/internal/observability"
	"github.com/spec-kit/intake-desk/internal/repository"
	apperrors "github.com/spec-kit/intake-desk/pkg/util/errorutil"
)

// LockService grants exclusive, expiring claims on tickets.
type LockService struct {
	tickets    repository.TicketRepository
	staff      repository.StaffRepository
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	ttl        time.Duration
	now        Clock
}

// LockDependencies bundles collaborators for the lock service.
type LockDependencies struct {
	TicketRepo repository.TicketRepository
	StaffRepo  repository.StaffRepository
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	TTL        time.Duration
	Clock      Clock
}

// LockInspection describes a claim as seen by one agent.
type LockInspection struct {
	Locked              bool   `json:"locked"`
	LockedByCurrentUser bool   `json:"locked_by_current_user"`
	State               string `json:"state"`
	HolderID            string `json:"holder_id,omitempty"`
	HolderName          string `json:"holder_name,omitempty"`
	RemainingSeconds    int    `json:"remaining_seconds"`
}

// NewLockService constructs the service.
func NewLockService(deps LockDependencies) *LockService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := deps.TTL
	if ttl <= 0 {
		ttl = domain.DefaultLockTTL
	}
	return &LockService{
		tickets:    deps.TicketRepo,
		staff:      deps.StaffRepo,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		ttl:        ttl,
		now:        clockOrDefault(deps.Clock),
	}
}

// TTL returns the claim lifetime.
func (s *LockService) TTL() time.Duration {
	return s.ttl
}

// TryAcquire claims the ticket for actor with one conditional write.
func (s *LockService) TryAcquire(ctx context.Context, actor *domain.StaffMember, ticketID string) (*domain.Ticket, error) {
	now := s.now()
	ticket, acquired, err := s.tickets.AcquireLock(ctx, ticketID, actor.ID, now, s.ttl)
	if err != nil {
		return nil, mapRepoError(err, "ticket", ticketID)
	}
	if acquired {
		s.logger.Info("ticket lock acquired",
			zap.String("ticket_number", ticket.Number),
			zap.String("agent_id", actor.ID))
		return ticket, nil
	}
	if ticket.IsClosed() {
		return nil, apperrors.NewAlreadyClosed(ticket.Number)
	}

	s.metrics.Inc(observability.CounterLockConflicts)
	holderID := ""
	if ticket.LockedBy != nil {
		holderID = *ticket.LockedBy
	}
	remaining := ticket.LockRemaining(now, s.ttl)
	s.logger.Info("ticket lock conflict",
		zap.String("ticket_number", ticket.Number),
		zap.String("agent_id", actor.ID),
		zap.String("holder_id", holderID),
		zap.Duration("remaining", remaining))
	return nil, apperrors.NewTicketLocked(holderID, staffName(ctx, s.staff, ticket.LockedBy), int(remaining.Seconds()))
}

// Release drops the claim. Only the holder or an administrator may release it.
func (s *LockService) Release(ctx context.Context, actor *domain.StaffMember, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.Get(ctx, ticketID)
	if err != nil {
		return nil, mapRepoError(err, "ticket", ticketID)
	}
	if ticket.LockedBy == nil {
		return ticket, nil
	}
	holderID := *ticket.LockedBy
	if holderID != actor.ID && !actor.IsAdmin() {
		return nil, apperrors.NewForbidden("only the lock holder or an administrator can release the lock")
	}

	now := s.now()
	released, ok, err := s.tickets.ReleaseLock(ctx, ticket.ID, holderID, now)
	if err != nil {
		return nil, mapRepoError(err, "ticket", ticketID)
	}
	if !ok {
		return nil, apperrors.NewConflict("lock changed hands during release", map[string]any{"ticket_id": ticket.ID})
	}
	publish(ctx, s.dispatcher, s.logger, events.New(events.EventTicketLockReleased, released.Identity, released.ID, strPtr(actor.ID), now,
		map[string]any{"number": released.Number, "holder_id": holderID}))
	return released, nil
}

// Inspect reports the claim status of a ticket for actor.
func (s *LockService) Inspect(ctx context.Context, actor *domain.StaffMember, ticketID string) (LockInspection, error) {
	ticket, err := s.tickets.Get(ctx, ticketID)
	if err != nil {
		return LockInspection{}, mapRepoError(err, "ticket", ticketID)
	}
	return s.inspect(ctx, actor, ticket), nil
}

func (s *LockService) inspect(ctx context.Context, actor *domain.StaffMember, ticket *domain.Ticket) LockInspection {
	now := s.now()
	state := ticket.LockStateFor(actor.ID, now, s.ttl)
	out := LockInspection{
		Locked:              ticket.LockedBy != nil,
		LockedByCurrentUser: state == domain.LockHeldBySelf,
		State:               state.String(),
		RemainingSeconds:    int(ticket.LockRemaining(now, s.ttl).Seconds()),
	}
	if ticket.LockedBy != nil {
		out.HolderID = *ticket.LockedBy
		out.HolderName = staffName(ctx, s.staff, ticket.LockedBy)
	}
	return out
}
