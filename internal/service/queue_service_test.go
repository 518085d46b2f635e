package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/intake-desk/internal/domain"
	apperrors "github.com/spec-kit/intake-desk/pkg/util/errorutil"
)

func TestQueuePositionsFollowAdmissionOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	identities := []string{"+101", "+102", "+103", "+104"}
	for _, identity := range identities {
		h.completeIntake(t, identity)
		h.clock.Advance(time.Minute)
	}

	entries, err := h.queue.ListWaiting(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, len(identities))
	for i, entry := range entries {
		assert.Equal(t, identities[i], entry.Conversation.Identity)
		assert.Equal(t, i+1, entry.Position)
		require.NotNil(t, entry.Ticket)
		assert.Equal(t, fmt.Sprintf("TKT-202603-%05d", i+1), entry.Ticket.Number)

		position, err := h.queue.Position(ctx, entry.Conversation)
		require.NoError(t, err)
		assert.Equal(t, i+1, position)
	}

	next, err := h.queue.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "+101", next.Conversation.Identity)
}

func TestQueuePositionCountsAssignedRequesters(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	agent := h.addStaff(t, "alice", domain.StaffRoleAgent)

	h.completeIntake(t, "+101")
	h.clock.Advance(time.Minute)
	h.completeIntake(t, "+102")

	_, err := h.assignments.AssignFromQueue(ctx, agent, "+101")
	require.NoError(t, err)

	h.send(t, h.text("+102", "how long?"))
	assert.Contains(t, h.notifier.Last().Text, "Current position: *2*")

	entries, err := h.queue.ListWaiting(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Position)
}

func TestQueueStatsAndAverageWait(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	agent := h.addStaff(t, "alice", domain.StaffRoleAgent)

	avg, err := h.queue.AverageWaitMinutes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, avg)

	h.completeIntake(t, "+101")
	h.completeIntake(t, "+102")
	h.send(t, h.text("+103", "hello"))

	h.clock.Advance(10 * time.Minute)
	_, err = h.assignments.AssignFromQueue(ctx, agent, "+101")
	require.NoError(t, err)

	stats, err := h.queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Queued)
	assert.Equal(t, 1, stats.Assigned)
	assert.Equal(t, 1, stats.AwaitingName)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 10, stats.AverageWaitMinutes)
}

func TestQueuedConversationWithoutAdmissionIsIntegrityError(t *testing.T) {
	h := newHarness(t)
	conv := domain.NewConversation("+800", baseTime)
	conv.Step = domain.StepQueued

	_, err := h.queue.Position(context.Background(), conv)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeIntegrity))
}

func TestRestartClearsConversation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := h.addStaff(t, "root", domain.StaffRoleAdmin)
	h.completeIntake(t, "+101")

	conv, err := h.queue.Restart(ctx, admin, "+101")
	require.NoError(t, err)
	assert.Equal(t, domain.StepStart, conv.Step)
	assert.Nil(t, conv.QueuedAt)
	assert.Empty(t, conv.Plate)

	_, err = h.queue.Next(ctx)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	_, err = h.queue.Restart(ctx, admin, "+missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}
