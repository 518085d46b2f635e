package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/intake-desk/internal/domain"
	apperrors "github.com/spec-kit/intake-desk/pkg/util/errorutil"
)

func TestAssignFromQueueMovesConversation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	agent := h.addStaff(t, "alice", domain.StaffRoleAgent)
	h.completeIntake(t, "+100")

	ticket, err := h.assignments.AssignFromQueue(ctx, agent, "+100")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusAssigned, ticket.Status)
	require.NotNil(t, ticket.LockedBy)
	assert.Equal(t, agent.ID, *ticket.LockedBy)
	assert.True(t, ticket.AssignedTo(agent.ID))

	conv := h.conversation(t, "+100")
	assert.Equal(t, domain.StepAssigned, conv.Step)
	require.NotNil(t, conv.AssignedAgentID)
	assert.Equal(t, agent.ID, *conv.AssignedAgentID)
	assert.Nil(t, conv.QueuePosition)
	assert.NotNil(t, conv.QueuedAt)
	assert.Contains(t, h.notifier.Last().Text, "*alice* has taken your ticket")

	sent := len(h.notifier.Sent())
	_, err = h.assignments.AssignTicket(ctx, agent, ticket.ID)
	require.NoError(t, err)
	assert.Len(t, h.notifier.Sent(), sent)

	h.send(t, h.text("+100", "any news?"))
	assert.Contains(t, h.notifier.Last().Text, "Agent: *alice*")
}

func TestLockConflictAndExpiry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	agentA := h.addStaff(t, "agent-a", domain.StaffRoleAgent)
	agentB := h.addStaff(t, "agent-b", domain.StaffRoleAgent)
	ticket := h.completeIntake(t, "+100")

	_, err := h.assignments.AssignTicket(ctx, agentA, ticket.ID)
	require.NoError(t, err)

	h.clock.Advance(5 * time.Minute)
	_, err = h.assignments.AssignTicket(ctx, agentB, ticket.ID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeTicketLocked))
	domainErr := apperrors.ToDomainError(err)
	assert.Equal(t, agentA.ID, domainErr.Details["locked_by"])
	assert.Equal(t, "agent-a", domainErr.Details["locked_by_name"])
	assert.Equal(t, 600, domainErr.Details["remaining_seconds"])

	inspection, err := h.locks.Inspect(ctx, agentB, ticket.ID)
	require.NoError(t, err)
	assert.True(t, inspection.Locked)
	assert.False(t, inspection.LockedByCurrentUser)
	assert.Equal(t, "locked-by-other-active", inspection.State)

	h.clock.Advance(11 * time.Minute)
	inspection, err = h.locks.Inspect(ctx, agentB, ticket.ID)
	require.NoError(t, err)
	assert.True(t, inspection.Locked)
	assert.Equal(t, 0, inspection.RemainingSeconds)
	assert.Equal(t, "locked-by-other-expired", inspection.State)

	taken, err := h.assignments.AssignTicket(ctx, agentB, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, agentB.ID, *taken.LockedBy)
	assert.True(t, taken.AssignedTo(agentB.ID))
	assert.Equal(t, agentB.ID, *h.conversation(t, "+100").AssignedAgentID)
}

func TestConcurrentAcquireHasSingleWinner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.completeIntake(t, "+100")

	const n = 10
	agents := make([]*domain.StaffMember, n)
	for i := range agents {
		agents[i] = h.addStaff(t, fmt.Sprintf("agent-%d", i), domain.StaffRoleAgent)
	}

	var wins, conflicts int32
	var wg sync.WaitGroup
	for _, agent := range agents {
		wg.Add(1)
		go func(agent *domain.StaffMember) {
			defer wg.Done()
			_, err := h.locks.TryAcquire(ctx, agent, ticket.ID)
			switch {
			case err == nil:
				atomic.AddInt32(&wins, 1)
			case apperrors.HasCode(err, apperrors.CodeTicketLocked):
				atomic.AddInt32(&conflicts, 1)
			}
		}(agent)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	assert.Equal(t, int32(n-1), conflicts)
}

func TestReleaseRequiresHolderOrAdmin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	holder := h.addStaff(t, "holder", domain.StaffRoleAgent)
	other := h.addStaff(t, "other", domain.StaffRoleAgent)
	admin := h.addStaff(t, "root", domain.StaffRoleAdmin)
	ticket := h.completeIntake(t, "+100")

	_, err := h.locks.TryAcquire(ctx, holder, ticket.ID)
	require.NoError(t, err)

	_, err = h.locks.Release(ctx, other, ticket.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	released, err := h.locks.Release(ctx, admin, ticket.ID)
	require.NoError(t, err)
	assert.Nil(t, released.LockedBy)
	assert.True(t, released.AssignedTo(holder.ID))
}

func TestCloseStampsTimingOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	agent := h.addStaff(t, "alice", domain.StaffRoleAgent)
	stranger := h.addStaff(t, "bob", domain.StaffRoleAgent)
	admin := h.addStaff(t, "root", domain.StaffRoleAdmin)
	ticket := h.completeIntake(t, "+100")

	_, err := h.assignments.AssignTicket(ctx, agent, ticket.ID)
	require.NoError(t, err)

	_, err = h.tickets.Close(ctx, stranger, ticket.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	h.clock.Advance(47*time.Minute + 31*time.Second)
	closed, err := h.tickets.Close(ctx, agent, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, closed.Status)
	require.NotNil(t, closed.ResolutionMinutes)
	assert.Equal(t, 48, *closed.ResolutionMinutes)
	assert.Nil(t, closed.LockedBy)
	assert.Equal(t, agent.ID, *closed.ClosedBy)
	closedAt := *closed.ClosedAt

	h.clock.Advance(time.Hour)
	_, err = h.tickets.Close(ctx, agent, ticket.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeClosed))

	status := domain.TicketStatusClosed
	again, err := h.tickets.UpdateFields(ctx, admin, ticket.ID, TicketUpdateInput{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, 48, *again.ResolutionMinutes)
	assert.True(t, again.ClosedAt.Equal(closedAt))

	_, err = h.locks.TryAcquire(ctx, agent, ticket.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeClosed))
}

func TestUpdateFieldsRules(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	agent := h.addStaff(t, "alice", domain.StaffRoleAgent)
	other := h.addStaff(t, "bob", domain.StaffRoleAgent)
	admin := h.addStaff(t, "root", domain.StaffRoleAdmin)
	ticket := h.completeIntake(t, "+100")

	_, err := h.assignments.AssignTicket(ctx, agent, ticket.ID)
	require.NoError(t, err)

	pending := domain.TicketStatusPending
	_, err = h.tickets.UpdateFields(ctx, agent, ticket.ID, TicketUpdateInput{Status: &pending})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	high := domain.TicketPriorityHigh
	updated, err := h.tickets.UpdateFields(ctx, agent, ticket.ID, TicketUpdateInput{Priority: &high})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityHigh, updated.Priority)

	_, err = h.tickets.UpdateFields(ctx, agent, ticket.ID, TicketUpdateInput{AssignedAgentID: &other.ID})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	reassigned, err := h.tickets.UpdateFields(ctx, admin, ticket.ID, TicketUpdateInput{AssignedAgentID: &other.ID})
	require.NoError(t, err)
	assert.True(t, reassigned.AssignedTo(other.ID))
	assert.Nil(t, reassigned.LockedBy)

	closedStatus := domain.TicketStatusClosed
	_, err = h.tickets.UpdateFields(ctx, agent, ticket.ID, TicketUpdateInput{Status: &closedStatus})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	closed, err := h.tickets.UpdateFields(ctx, other, ticket.ID, TicketUpdateInput{Status: &closedStatus})
	require.NoError(t, err)
	assert.True(t, closed.IsClosed())

	_, err = h.tickets.UpdateFields(ctx, admin, ticket.ID, TicketUpdateInput{Priority: &high})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeClosed))
}

func TestAddNoteRejectsEmptyText(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	agent := h.addStaff(t, "alice", domain.StaffRoleAgent)
	ticket := h.completeIntake(t, "+100")

	_, err := h.tickets.AddNote(ctx, agent, ticket.ID, "   ")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	noted, err := h.tickets.AddNote(ctx, agent, ticket.Number, "called the requester")
	require.NoError(t, err)
	require.Len(t, noted.Notes, 1)
	assert.Equal(t, agent.ID, *noted.Notes[0].AuthorID)
}

func TestSummaryCountsOpenTickets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	agent := h.addStaff(t, "alice", domain.StaffRoleAgent)
	first := h.completeIntake(t, "+100")
	h.completeIntake(t, "+101")

	_, err := h.assignments.AssignTicket(ctx, agent, first.ID)
	require.NoError(t, err)

	stats, err := h.tickets.Summary(ctx, agent)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ByStatus[domain.TicketStatusPending])
	assert.Equal(t, 1, stats.ByStatus[domain.TicketStatusAssigned])
	assert.Equal(t, 2, stats.OpenByPriority[domain.TicketPriorityMedium])
	assert.Equal(t, 1, stats.OpenForAgent)
}
