package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTicketNumber(t *testing.T) {
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "TKT-202603-00042", FormatTicketNumber(at, 42))
	assert.Equal(t, "TKT-202603-123456", FormatTicketNumber(at, 123456))
}

func TestStatusMovesForwardOnly(t *testing.T) {
	assert.True(t, TicketStatusPending.CanMoveTo(TicketStatusAssigned))
	assert.True(t, TicketStatusPending.CanMoveTo(TicketStatusClosed))
	assert.True(t, TicketStatusAssigned.CanMoveTo(TicketStatusAssigned))
	assert.False(t, TicketStatusAssigned.CanMoveTo(TicketStatusPending))
	assert.False(t, TicketStatusClosed.CanMoveTo(TicketStatusAssigned))
	assert.False(t, TicketStatus("REOPENED").CanMoveTo(TicketStatusClosed))
}

func TestMarkClosedStampsTimingOnce(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	agent := "agent-a"
	ticket := &Ticket{Status: TicketStatusAssigned, CreatedAt: created, LockedBy: &agent}

	first := created.Add(47*time.Minute + 31*time.Second)
	ticket.MarkClosed(first)
	require.NotNil(t, ticket.ResolutionMinutes)
	assert.Equal(t, 48, *ticket.ResolutionMinutes)
	assert.Equal(t, first, *ticket.ClosedAt)
	assert.Nil(t, ticket.LockedBy)

	ticket.MarkClosed(first.Add(3 * time.Hour))
	assert.Equal(t, 48, *ticket.ResolutionMinutes)
	assert.Equal(t, first, *ticket.ClosedAt)
	assert.Equal(t, first, *ticket.FinalizedAt)
}

func TestTicketCloneIsDeep(t *testing.T) {
	agent := "agent-a"
	ticket := &Ticket{AssignedAgentID: &agent, Notes: []TicketNote{{Text: "one"}}}
	cp := ticket.Clone()
	*cp.AssignedAgentID = "agent-b"
	cp.Notes[0].Text = "changed"
	assert.Equal(t, "agent-a", *ticket.AssignedAgentID)
	assert.Equal(t, "one", ticket.Notes[0].Text)
}
