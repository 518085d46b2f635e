package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLockStateFor(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	ticket := &Ticket{Status: TicketStatusPending}

	assert.Equal(t, LockUnlocked, ticket.LockStateFor("b", now, DefaultLockTTL))

	ticket.ApplyLock("a", now)
	assert.Equal(t, TicketStatusAssigned, ticket.Status)
	assert.Equal(t, "a", *ticket.AssignedAgentID)
	assert.Equal(t, LockHeldBySelf, ticket.LockStateFor("a", now.Add(time.Hour), DefaultLockTTL))
	assert.Equal(t, LockHeldByOtherActive, ticket.LockStateFor("b", now.Add(14*time.Minute), DefaultLockTTL))
	assert.Equal(t, LockHeldByOtherExpired, ticket.LockStateFor("b", now.Add(15*time.Minute), DefaultLockTTL))
	assert.False(t, LockHeldByOtherActive.Acquirable())
	assert.True(t, LockHeldByOtherExpired.Acquirable())
}

func TestLockRemainingNeverNegative(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	ticket := &Ticket{Status: TicketStatusPending}
	assert.Zero(t, ticket.LockRemaining(now, DefaultLockTTL))

	ticket.ApplyLock("a", now)
	assert.Equal(t, 5*time.Minute, ticket.LockRemaining(now.Add(10*time.Minute), DefaultLockTTL))
	assert.Zero(t, ticket.LockRemaining(now.Add(time.Hour), DefaultLockTTL))

	ticket.ClearLock(now)
	assert.Nil(t, ticket.LockedBy)
	assert.Equal(t, "a", *ticket.AssignedAgentID)
}
