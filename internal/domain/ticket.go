package domain

import (
	"fmt"
	"math"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusPending  TicketStatus = "PENDING"
	TicketStatusAssigned TicketStatus = "ASSIGNED"
	TicketStatusClosed   TicketStatus = "CLOSED"
)

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusPending, TicketStatusAssigned, TicketStatusClosed:
		return true
	}
	return false
}

func (s TicketStatus) rank() int {
	switch s {
	case TicketStatusPending:
		return 0
	case TicketStatusAssigned:
		return 1
	case TicketStatusClosed:
		return 2
	}
	return -1
}

// CanMoveTo reports whether the lifecycle allows going from s to next.
// Staying in the same state is allowed; going back never is.
func (s TicketStatus) CanMoveTo(next TicketStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	return next.rank() >= s.rank()
}

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	}
	return false
}

// TicketNote is an append-only remark on a ticket. AuthorID is nil for system notes.
type TicketNote struct {
	Text      string    `json:"text"`
	AuthorID  *string   `json:"author_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TicketAttachment references media sent by the requester.
type TicketAttachment struct {
	Kind      MessageKind `json:"kind"`
	MediaRef  string      `json:"media_ref"`
	Caption   string      `json:"caption,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// Ticket is the aggregate for one support cycle of a requester.
type Ticket struct {
	ID                string
	Number            string
	Identity          string
	DisplayName       string
	Plate             string
	NationalID        string
	Description       string
	RequesterSeq      int
	Status            TicketStatus
	Priority          TicketPriority
	AssignedAgentID   *string
	LockedBy          *string
	LockedAt          *time.Time
	Notes             []TicketNote
	Attachments       []TicketAttachment
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ClosedAt          *time.Time
	FinalizedAt       *time.Time
	ResolutionMinutes *int
	ClosedBy          *string
	Version           int64
}

// FormatTicketNumber renders TKT-YYYYMM-NNNNN.
func FormatTicketNumber(createdAt time.Time, seq int64) string {
	return fmt.Sprintf("TKT-%s-%05d", YearMonth(createdAt), seq)
}

// YearMonth returns the YYYYMM key of t.
func YearMonth(t time.Time) string {
	return t.Format("200601")
}

// ResolutionMinutes rounds the elapsed time between two instants to whole minutes.
func ResolutionMinutes(createdAt, closedAt time.Time) int {
	return int(math.Round(closedAt.Sub(createdAt).Minutes()))
}

// MarkClosed moves the ticket to CLOSED. Timing fields are stamped only on the first close.
func (t *Ticket) MarkClosed(now time.Time) {
	t.Status = TicketStatusClosed
	t.LockedBy = nil
	t.LockedAt = nil
	if t.ResolutionMinutes != nil {
		return
	}
	closedAt := now
	t.ClosedAt = &closedAt
	finalizedAt := now
	t.FinalizedAt = &finalizedAt
	minutes := ResolutionMinutes(t.CreatedAt, now)
	t.ResolutionMinutes = &minutes
}

// IsClosed reports whether the ticket reached its terminal state.
func (t *Ticket) IsClosed() bool {
	return t.Status == TicketStatusClosed
}

// AssignedTo reports whether agentID is the assigned agent.
func (t *Ticket) AssignedTo(agentID string) bool {
	return t.AssignedAgentID != nil && *t.AssignedAgentID == agentID
}

// Clone returns a deep copy.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	cp := *t
	cp.AssignedAgentID = cloneString(t.AssignedAgentID)
	cp.LockedBy = cloneString(t.LockedBy)
	cp.ClosedBy = cloneString(t.ClosedBy)
	cp.LockedAt = cloneTime(t.LockedAt)
	cp.ClosedAt = cloneTime(t.ClosedAt)
	cp.FinalizedAt = cloneTime(t.FinalizedAt)
	if t.ResolutionMinutes != nil {
		m := *t.ResolutionMinutes
		cp.ResolutionMinutes = &m
	}
	cp.Notes = append([]TicketNote(nil), t.Notes...)
	cp.Attachments = append([]TicketAttachment(nil), t.Attachments...)
	return &cp
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
