package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/intake-desk/internal/domain"
	"github.com/spec-kit/intake-desk/internal/events"
	"github.com/spec-kit/intake-desk/internal/repository"
	apperrors "github.com/spec-kit/intake-desk/pkg/util/errorutil"
)

// Notifier delivers a text to a requester and returns the channel message id.
type Notifier interface {
	Send(ctx context.Context, identity, text string) (string, error)
}

// ReadMarker flags inbound channel messages as read.
type ReadMarker interface {
	MarkRead(ctx context.Context, messageID string) error
}

// Clock returns the current time; tests swap it for a fixed one.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

func clockOrDefault(c Clock) Clock {
	if c == nil {
		return systemClock
	}
	return c
}

// keyedMutex serializes work per key without a global lock.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free and returns its unlock func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// errSkipSave tells ConversationStore.Update that nothing changed.
var errSkipSave = errors.New("skip save")

const maxSaveAttempts = 3

// ConversationStore serializes conversation writes per identity. Across
// instances writes stay safe through the optimistic version check.
type ConversationStore struct {
	repo  repository.ConversationRepository
	locks *keyedMutex
}

// NewConversationStore wraps a repository.
func NewConversationStore(repo repository.ConversationRepository) *ConversationStore {
	return &ConversationStore{repo: repo, locks: newKeyedMutex()}
}

// Lock serializes work on identity.
func (s *ConversationStore) Lock(identity string) func() {
	return s.locks.Lock(identity)
}

// Update applies fn to the stored conversation and saves it, retrying on stale writes.
func (s *ConversationStore) Update(ctx context.Context, identity string, fn func(*domain.Conversation) error) (*domain.Conversation, error) {
	unlock := s.Lock(identity)
	defer unlock()
	return s.updateLocked(ctx, identity, fn)
}

func (s *ConversationStore) updateLocked(ctx context.Context, identity string, fn func(*domain.Conversation) error) (*domain.Conversation, error) {
	for attempt := 1; ; attempt++ {
		conv, err := s.repo.Get(ctx, identity)
		if err != nil {
			return nil, mapRepoError(err, "conversation", identity)
		}
		if err := fn(conv); err != nil {
			if errors.Is(err, errSkipSave) {
				return conv, nil
			}
			return nil, err
		}
		err = s.repo.Save(ctx, conv)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, repository.ErrStaleWrite) || attempt >= maxSaveAttempts {
			return nil, mapRepoError(err, "conversation", identity)
		}
	}
}

// Get reads a conversation.
func (s *ConversationStore) Get(ctx context.Context, identity string) (*domain.Conversation, error) {
	conv, err := s.repo.Get(ctx, identity)
	if err != nil {
		return nil, mapRepoError(err, "conversation", identity)
	}
	return conv, nil
}

// Repo exposes the underlying repository for read-only queries.
func (s *ConversationStore) Repo() repository.ConversationRepository {
	return s.repo
}

// mapRepoError converts repository sentinels into domain errors.
func mapRepoError(err error, resource, key string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound(resource, map[string]any{"key": key})
	case errors.Is(err, repository.ErrStaleWrite):
		return apperrors.NewConflict(fmt.Sprintf("%s was modified concurrently", resource), map[string]any{"key": key})
	case errors.Is(err, repository.ErrDuplicate):
		return apperrors.NewConflict(fmt.Sprintf("%s already exists", resource), map[string]any{"key": key})
	}
	return apperrors.MapError(err)
}

func publish(ctx context.Context, dispatcher events.Dispatcher, logger *zap.Logger, event events.Event) {
	if dispatcher == nil {
		return
	}
	if err := dispatcher.Publish(ctx, event); err != nil {
		logger.Warn("publish event failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func stringPreview(body string, max int) string {
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	return string(runes[:max]) + "..."
}

func strPtr(s string) *string {
	return &s
}
