package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/intake-desk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventConversationQueued EventType = "conversation_queued"
	EventTicketCreated      EventType = "ticket_created"
	EventTicketAssigned     EventType = "ticket_assigned"
	EventTicketClosed       EventType = "ticket_closed"
	EventTicketNoteAdded    EventType = "ticket_note_added"
	EventTicketLockReleased EventType = "ticket_lock_released"
	EventInboundRejected    EventType = "inbound_rejected"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Identity  string    `json:"identity"`
	TicketID  string    `json:"ticket_id,omitempty"`
	ActorID   *string   `json:"actor_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// New stamps a fresh event id.
func New(eventType EventType, identity, ticketID string, actorID *string, at time.Time, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Identity:  identity,
		TicketID:  ticketID,
		ActorID:   actorID,
		Timestamp: at,
		Payload:   payload,
	}
}

// ConversationQueuedPayload payload.
type ConversationQueuedPayload struct {
	Position int `json:"position"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Number       string                `json:"number"`
	RequesterSeq int                   `json:"requester_seq"`
	Priority     domain.TicketPriority `json:"priority"`
	Attachments  int                   `json:"attachments"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	Number    string `json:"number"`
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	Number            string `json:"number"`
	ResolutionMinutes int    `json:"resolution_minutes"`
}

// TicketNoteAddedPayload payload.
type TicketNoteAddedPayload struct {
	Number      string `json:"number"`
	BodyPreview string `json:"body_preview"`
}

// InboundRejectedPayload payload.
type InboundRejectedPayload struct {
	ExternalMessageID   string `json:"external_message_id"`
	ReferencedMessageID string `json:"referenced_message_id,omitempty"`
	Reason              string `json:"reason"`
}
