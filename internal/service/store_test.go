package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/intake-desk/internal/domain"
	"github.com/spec-kit/intake-desk/internal/repository/memory"
)

func TestConversationStoreRetriesStaleWrite(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewConversations()
	require.NoError(t, repo.Create(ctx, domain.NewConversation("+1", baseTime)))
	store := NewConversationStore(repo)

	attempts := 0
	conv, err := store.Update(ctx, "+1", func(c *domain.Conversation) error {
		attempts++
		if attempts == 1 {
			other, err := repo.Get(ctx, "+1")
			require.NoError(t, err)
			other.UnreadCount = 5
			require.NoError(t, repo.Save(ctx, other))
		}
		c.DisplayName = "Ana"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 5, conv.UnreadCount)
	assert.Equal(t, "Ana", conv.DisplayName)
}

func TestConversationStoreSkipLeavesVersion(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewConversations()
	require.NoError(t, repo.Create(ctx, domain.NewConversation("+1", baseTime)))
	store := NewConversationStore(repo)

	_, err := store.Update(ctx, "+1", func(*domain.Conversation) error { return errSkipSave })
	require.NoError(t, err)

	stored, err := repo.Get(ctx, "+1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
}

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	locks := newKeyedMutex()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("+1")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Empty(t, locks.locks)
}
