package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/intake-desk/internal/domain"
	"github.com/spec-kit/intake-desk/internal/repository"
	apperrors "github.com/spec-kit/intake-desk/pkg/util/errorutil"
)

// QueueService answers ordering questions over admitted conversations.
type QueueService struct {
	store   *ConversationStore
	tickets repository.TicketRepository
	logger  *zap.Logger
	now     Clock
}

// QueueDependencies bundles collaborators for the queue service.
type QueueDependencies struct {
	Store      *ConversationStore
	TicketRepo repository.TicketRepository
	Logger     *zap.Logger
	Clock      Clock
}

// QueueEntry is one waiting requester.
type QueueEntry struct {
	Conversation *domain.Conversation
	Ticket       *domain.Ticket
	Position     int
}

// QueueStats is the operator dashboard summary.
type QueueStats struct {
	Queued             int `json:"queued"`
	Assigned           int `json:"assigned"`
	AwaitingName       int `json:"awaiting_name"`
	AwaitingPlate      int `json:"awaiting_plate"`
	AwaitingID         int `json:"awaiting_id"`
	Total              int `json:"total"`
	AverageWaitMinutes int `json:"average_wait_minutes"`
}

// NewQueueService constructs the service.
func NewQueueService(deps QueueDependencies) *QueueService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueService{
		store:   deps.Store,
		tickets: deps.TicketRepo,
		logger:  logger,
		now:     clockOrDefault(deps.Clock),
	}
}

// Position counts the requesters admitted before conv, plus one.
func (s *QueueService) Position(ctx context.Context, conv *domain.Conversation) (int, error) {
	if conv.QueuedAt == nil {
		if conv.Step == domain.StepQueued {
			s.logger.Error("queued conversation without admission timestamp", zap.String("identity", conv.Identity))
			return 0, apperrors.NewIntegrityViolation("queued conversation has no admission timestamp", nil)
		}
		return 0, nil
	}
	ahead, err := s.store.Repo().CountAheadOf(ctx, *conv.QueuedAt, conv.QueueSeq)
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	return ahead + 1, nil
}

// AverageWaitMinutes is the mean wait of assigned requesters, 0 when none.
func (s *QueueService) AverageWaitMinutes(ctx context.Context) (int, error) {
	mean, n, err := s.store.Repo().MeanWait(ctx, s.now())
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	if n == 0 {
		return 0, nil
	}
	return minutesOf(mean), nil
}

// ListWaiting returns QUEUED requesters in admission order.
func (s *QueueService) ListWaiting(ctx context.Context, limit, offset int) ([]QueueEntry, error) {
	convs, err := s.store.Repo().List(ctx, repository.ConversationFilter{
		Steps:      []domain.IntakeStep{domain.StepQueued},
		QueueOrder: true,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	entries := make([]QueueEntry, 0, len(convs))
	for i := range convs {
		conv := convs[i]
		entry := QueueEntry{Conversation: &conv, Position: offset + i + 1}
		ticket, err := s.tickets.GetOpenForIdentity(ctx, conv.Identity)
		switch {
		case err == nil:
			entry.Ticket = ticket
		case !errors.Is(err, repository.ErrNotFound):
			return nil, apperrors.MapError(err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Next returns the requester at the head of the queue.
func (s *QueueService) Next(ctx context.Context) (*QueueEntry, error) {
	entries, err := s.ListWaiting(ctx, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, apperrors.NewNotFound("queued conversation", nil)
	}
	return &entries[0], nil
}

// Stats summarises conversations per step.
func (s *QueueService) Stats(ctx context.Context) (QueueStats, error) {
	counts, err := s.store.Repo().CountByStep(ctx)
	if err != nil {
		return QueueStats{}, apperrors.MapError(err)
	}
	avg, err := s.AverageWaitMinutes(ctx)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{
		Queued:             counts[domain.StepQueued],
		Assigned:           counts[domain.StepAssigned],
		AwaitingName:       counts[domain.StepAwaitingName],
		AwaitingPlate:      counts[domain.StepAwaitingPlate],
		AwaitingID:         counts[domain.StepAwaitingID],
		AverageWaitMinutes: avg,
	}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}

// Restart sends a conversation back to START with cleared fields and queue data.
func (s *QueueService) Restart(ctx context.Context, actor *domain.StaffMember, identity string) (*domain.Conversation, error) {
	conv, err := s.store.Update(ctx, identity, func(conv *domain.Conversation) error {
		conv.Reset()
		conv.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("conversation restarted", zap.String("identity", identity), zap.String("actor_id", actor.ID))
	return conv, nil
}
