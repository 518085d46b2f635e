// Package memory provides in-process repository implementations used when no
// database is configured and by service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/intake-desk/internal/domain"
	"github.com/spec-kit/intake-desk/internal/repository"
)

// Conversations is a mutex guarded ConversationRepository.
type Conversations struct {
	mu       sync.RWMutex
	items    map[string]*domain.Conversation
	queueSeq int64
}

// NewConversations builds an empty store.
func NewConversations() *Conversations {
	return &Conversations{items: make(map[string]*domain.Conversation)}
}

var _ repository.ConversationRepository = (*Conversations)(nil)

func (s *Conversations) Get(_ context.Context, identity string) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.items[identity]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return conv.Clone(), nil
}

func (s *Conversations) Create(_ context.Context, conv *domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[conv.Identity]; ok {
		return repository.ErrDuplicate
	}
	conv.Version = 1
	s.items[conv.Identity] = conv.Clone()
	return nil
}

func (s *Conversations) Save(_ context.Context, conv *domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.items[conv.Identity]
	if !ok {
		return repository.ErrNotFound
	}
	if current.Version != conv.Version {
		return repository.ErrStaleWrite
	}
	conv.Version++
	s.items[conv.Identity] = conv.Clone()
	return nil
}

func (s *Conversations) CountAheadOf(_ context.Context, queuedAt time.Time, queueSeq int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, conv := range s.items {
		if !conv.Step.InQueue() || conv.QueuedAt == nil {
			continue
		}
		if conv.QueuedAt.Before(queuedAt) || (conv.QueuedAt.Equal(queuedAt) && conv.QueueSeq < queueSeq) {
			count++
		}
	}
	return count, nil
}

func (s *Conversations) CountByStep(_ context.Context) (map[domain.IntakeStep]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[domain.IntakeStep]int)
	for _, conv := range s.items {
		counts[conv.Step]++
	}
	return counts, nil
}

func (s *Conversations) MeanWait(_ context.Context, now time.Time) (time.Duration, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total time.Duration
	count := 0
	for _, conv := range s.items {
		if conv.Step != domain.StepAssigned || conv.QueuedAt == nil {
			continue
		}
		total += now.Sub(*conv.QueuedAt)
		count++
	}
	if count == 0 {
		return 0, 0, nil
	}
	return total / time.Duration(count), count, nil
}

func (s *Conversations) NextQueueSeq(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queueSeq++
	return s.queueSeq, nil
}

func (s *Conversations) List(_ context.Context, filter repository.ConversationFilter) ([]domain.Conversation, error) {
	s.mu.RLock()
	var result []domain.Conversation
	for _, conv := range s.items {
		if len(filter.Steps) > 0 && !containsStep(filter.Steps, conv.Step) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, conv.Status) {
			continue
		}
		result = append(result, *conv.Clone())
	}
	s.mu.RUnlock()

	if filter.QueueOrder {
		sort.SliceStable(result, func(i, j int) bool {
			a, b := result[i], result[j]
			if a.QueuedAt == nil || b.QueuedAt == nil {
				return a.QueuedAt != nil
			}
			if !a.QueuedAt.Equal(*b.QueuedAt) {
				return a.QueuedAt.Before(*b.QueuedAt)
			}
			return a.QueueSeq < b.QueueSeq
		})
	} else {
		sort.SliceStable(result, func(i, j int) bool {
			return lastActivity(result[i]).After(lastActivity(result[j]))
		})
	}
	return paginate(result, filter.Limit, filter.Offset, 50), nil
}

func lastActivity(conv domain.Conversation) time.Time {
	if conv.LastMessageAt != nil {
		return *conv.LastMessageAt
	}
	return conv.UpdatedAt
}

func containsStep(steps []domain.IntakeStep, step domain.IntakeStep) bool {
	for _, s := range steps {
		if s == step {
			return true
		}
	}
	return false
}

func containsStatus(statuses []domain.ConversationStatus, status domain.ConversationStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func paginate[T any](items []T, limit, offset, fallback int) []T {
	if limit <= 0 {
		limit = fallback
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
