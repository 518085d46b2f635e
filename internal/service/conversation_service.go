package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/intake-desk/internal/domain"
	"github.com/spec-kit/intake-desk/internal/repository"
	apperrors "github.com/spec-kit/intake-desk/pkg/util/errorutil"
)

// ConversationService serves the agent inbox.
type ConversationService struct {
	store     *ConversationStore
	messenger *Messenger
	logger    *zap.Logger
	now       Clock
}

// ConversationListFilter narrows the inbox.
type ConversationListFilter struct {
	Statuses []domain.ConversationStatus
	Steps    []domain.IntakeStep
	Limit    int
	Offset   int
}

// NewConversationService constructs the service.
func NewConversationService(store *ConversationStore, messenger *Messenger, logger *zap.Logger, clock Clock) *ConversationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationService{store: store, messenger: messenger, logger: logger, now: clockOrDefault(clock)}
}

// List returns conversations, active ones by default, most recent activity first.
func (s *ConversationService) List(ctx context.Context, filter ConversationListFilter) ([]domain.Conversation, error) {
	statuses := filter.Statuses
	if len(statuses) == 0 {
		statuses = []domain.ConversationStatus{domain.ConversationActive}
	}
	for _, status := range statuses {
		if !status.Valid() {
			return nil, apperrors.NewValidationError("invalid conversation status", map[string]any{"status": status})
		}
	}
	for _, step := range filter.Steps {
		if !step.Valid() {
			return nil, apperrors.NewValidationError("invalid intake step", map[string]any{"step": step})
		}
	}
	convs, err := s.store.Repo().List(ctx, repository.ConversationFilter{
		Statuses: statuses,
		Steps:    filter.Steps,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return convs, nil
}

// Read returns the conversation with its log and resets the unread counter.
func (s *ConversationService) Read(ctx context.Context, identity string) (*domain.Conversation, error) {
	return s.store.Update(ctx, identity, func(conv *domain.Conversation) error {
		if conv.UnreadCount == 0 {
			return errSkipSave
		}
		conv.MarkRead()
		return nil
	})
}

// SetStatus archives, blocks or reactivates a conversation.
func (s *ConversationService) SetStatus(ctx context.Context, actor *domain.StaffMember, identity string, status domain.ConversationStatus) (*domain.Conversation, error) {
	if !status.Valid() {
		return nil, apperrors.NewValidationError("invalid conversation status", map[string]any{"status": status})
	}
	conv, err := s.store.Update(ctx, identity, func(conv *domain.Conversation) error {
		if conv.Status == status {
			return errSkipSave
		}
		conv.Status = status
		conv.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("conversation status changed",
		zap.String("identity", identity),
		zap.String("status", string(status)),
		zap.String("actor_id", actor.ID))
	return conv, nil
}

// Reply sends a free-text agent message to the requester.
func (s *ConversationService) Reply(ctx context.Context, actor *domain.StaffMember, identity, text string) (*domain.Conversation, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewValidationError("message text cannot be empty", nil)
	}
	conv, err := s.store.Get(ctx, identity)
	if err != nil {
		return nil, err
	}
	if conv.Status == domain.ConversationBlocked {
		return nil, apperrors.NewConflict("conversation is blocked", map[string]any{"identity": identity})
	}
	s.messenger.SendAndLog(ctx, identity, text)
	s.logger.Info("agent reply sent", zap.String("identity", identity), zap.String("actor_id", actor.ID))
	return s.store.Get(ctx, identity)
}

// ApplyDeliveryStatus records a channel receipt on the matching outbound entry.
func (s *ConversationService) ApplyDeliveryStatus(ctx context.Context, identity, messageID string, status domain.DeliveryStatus) error {
	_, err := s.store.Update(ctx, identity, func(conv *domain.Conversation) error {
		if !conv.SetDeliveryStatus(messageID, status) {
			return errSkipSave
		}
		return nil
	})
	if apperrors.HasCode(err, apperrors.CodeNotFound) {
		return nil
	}
	return err
}
