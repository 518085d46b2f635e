package domain

import "time"

// DefaultLockTTL is how long a claim on a ticket stays exclusive.
const DefaultLockTTL = 15 * time.Minute

// LockState is the claim status of a ticket as seen by one agent.
type LockState int

const (
	LockUnlocked LockState = iota
	LockHeldBySelf
	LockHeldByOtherActive
	LockHeldByOtherExpired
)

func (s LockState) String() string {
	switch s {
	case LockUnlocked:
		return "unlocked"
	case LockHeldBySelf:
		return "locked-by-self"
	case LockHeldByOtherActive:
		return "locked-by-other-active"
	case LockHeldByOtherExpired:
		return "locked-by-other-expired"
	}
	return "unknown"
}

// Acquirable reports whether an agent in this state may take the lock.
func (s LockState) Acquirable() bool {
	return s != LockHeldByOtherActive
}

// LockStateFor derives the claim status of t for agentID at now.
func (t *Ticket) LockStateFor(agentID string, now time.Time, ttl time.Duration) LockState {
	if t.LockedBy == nil {
		return LockUnlocked
	}
	if *t.LockedBy == agentID {
		return LockHeldBySelf
	}
	if t.LockedAt == nil || now.Sub(*t.LockedAt) >= ttl {
		return LockHeldByOtherExpired
	}
	return LockHeldByOtherActive
}

// LockRemaining returns the time left on the current claim, never negative.
func (t *Ticket) LockRemaining(now time.Time, ttl time.Duration) time.Duration {
	if t.LockedBy == nil || t.LockedAt == nil {
		return 0
	}
	remaining := ttl - now.Sub(*t.LockedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ApplyLock grants the claim to agentID and advances a PENDING ticket.
func (t *Ticket) ApplyLock(agentID string, now time.Time) {
	holder := agentID
	t.LockedBy = &holder
	lockedAt := now
	t.LockedAt = &lockedAt
	assignee := agentID
	t.AssignedAgentID = &assignee
	if t.Status == TicketStatusPending {
		t.Status = TicketStatusAssigned
	}
	t.UpdatedAt = now
}

// ClearLock drops the claim and keeps the assignment.
func (t *Ticket) ClearLock(now time.Time) {
	t.LockedBy = nil
	t.LockedAt = nil
	t.UpdatedAt = now
}
