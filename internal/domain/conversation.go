package domain

import "time"

// IntakeStep enumerates the dialogue steps of a conversation.
type IntakeStep string

const (
	StepStart         IntakeStep = "START"
	StepAwaitingName  IntakeStep = "AWAITING_NAME"
	StepAwaitingPlate IntakeStep = "AWAITING_PLATE"
	StepAwaitingID    IntakeStep = "AWAITING_ID"
	StepQueued        IntakeStep = "QUEUED"
	StepAssigned      IntakeStep = "ASSIGNED"
)

// QueueSteps are the steps that hold a place in the queue.
var QueueSteps = []IntakeStep{StepQueued, StepAssigned}

// Valid reports whether s is a known step.
func (s IntakeStep) Valid() bool {
	switch s {
	case StepStart, StepAwaitingName, StepAwaitingPlate, StepAwaitingID, StepQueued, StepAssigned:
		return true
	}
	return false
}

// InQueue reports whether the step carries a queue admission timestamp.
func (s IntakeStep) InQueue() bool {
	return s == StepQueued || s == StepAssigned
}

// ConversationStatus is the lifecycle flag, independent from the dialogue step.
type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "active"
	ConversationArchived ConversationStatus = "archived"
	ConversationBlocked  ConversationStatus = "blocked"
)

// Valid reports whether s is a known status.
func (s ConversationStatus) Valid() bool {
	switch s {
	case ConversationActive, ConversationArchived, ConversationBlocked:
		return true
	}
	return false
}

// MessageDirection tells inbound and outbound log entries apart.
type MessageDirection string

const (
	DirectionInbound  MessageDirection = "inbound"
	DirectionOutbound MessageDirection = "outbound"
)

// DeliveryStatus mirrors the channel delivery receipts.
type DeliveryStatus string

const (
	DeliveryQueued    DeliveryStatus = "queued"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryRead      DeliveryStatus = "read"
	DeliveryFailed    DeliveryStatus = "failed"
)

// MessageLogRetention caps the number of entries kept in a conversation log.
const MessageLogRetention = 100

// LogEntry is one message in the bounded conversation log.
type LogEntry struct {
	ExternalID string           `json:"external_id,omitempty"`
	Direction  MessageDirection `json:"direction"`
	Kind       MessageKind      `json:"kind"`
	Body       string           `json:"body"`
	MediaRef   string           `json:"media_ref,omitempty"`
	Caption    string           `json:"caption,omitempty"`
	Status     DeliveryStatus   `json:"status"`
	Timestamp  time.Time        `json:"timestamp"`
}

// Conversation is the per-requester dialogue aggregate keyed by identity.
type Conversation struct {
	Identity        string
	Step            IntakeStep
	DisplayName     string
	Plate           string
	NationalID      string
	QueuedAt        *time.Time
	QueueSeq        int64
	QueuePosition   *int
	Status          ConversationStatus
	AssignedAgentID *string
	Messages        []LogEntry
	LastMessage     string
	LastMessageAt   *time.Time
	UnreadCount     int
	CycleStartedAt  time.Time
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewConversation builds a conversation for a first-time identity.
func NewConversation(identity string, now time.Time) *Conversation {
	return &Conversation{
		Identity:       identity,
		Step:           StepStart,
		Status:         ConversationActive,
		CycleStartedAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// AppendMessage adds an entry to the log, evicting the oldest entries past the retention cap.
func (c *Conversation) AppendMessage(entry LogEntry) {
	c.Messages = append(c.Messages, entry)
	if over := len(c.Messages) - MessageLogRetention; over > 0 {
		c.Messages = append([]LogEntry(nil), c.Messages[over:]...)
	}
	c.LastMessage = entry.Body
	ts := entry.Timestamp
	c.LastMessageAt = &ts
	if entry.Direction == DirectionInbound {
		c.UnreadCount++
	}
}

// SetDeliveryStatus updates the log entry carrying the given channel id.
func (c *Conversation) SetDeliveryStatus(externalID string, status DeliveryStatus) bool {
	for i := range c.Messages {
		if c.Messages[i].ExternalID == externalID {
			c.Messages[i].Status = status
			return true
		}
	}
	return false
}

// QueueOutbound logs a reply that has not been handed to the channel yet.
func (c *Conversation) QueueOutbound(body string, now time.Time) {
	entry := LogEntry{
		Direction: DirectionOutbound,
		Kind:      KindText,
		Body:      body,
		Status:    DeliveryQueued,
		Timestamp: now,
	}
	c.Messages = append(c.Messages, entry)
	if over := len(c.Messages) - MessageLogRetention; over > 0 {
		c.Messages = append([]LogEntry(nil), c.Messages[over:]...)
	}
	c.LastMessage = body
	ts := now
	c.LastMessageAt = &ts
}

// SettleOutbound records the channel outcome of the most recent queued reply with body.
// An empty externalID marks the reply as failed.
func (c *Conversation) SettleOutbound(body, externalID string) bool {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		entry := &c.Messages[i]
		if entry.Direction != DirectionOutbound || entry.Status != DeliveryQueued || entry.Body != body {
			continue
		}
		if externalID == "" {
			entry.Status = DeliveryFailed
			return true
		}
		entry.ExternalID = externalID
		entry.Status = DeliverySent
		return true
	}
	return false
}

// HasMessage reports whether the log holds an entry with the channel id.
func (c *Conversation) HasMessage(externalID string) bool {
	if externalID == "" {
		return false
	}
	for _, entry := range c.Messages {
		if entry.ExternalID == externalID {
			return true
		}
	}
	return false
}

// MarkRead resets the unread counter after an agent opened the log.
func (c *Conversation) MarkRead() {
	c.UnreadCount = 0
}

// MediaSinceCycle returns the inbound media entries logged in the current support cycle.
func (c *Conversation) MediaSinceCycle() []LogEntry {
	var media []LogEntry
	for _, entry := range c.Messages {
		if entry.Direction != DirectionInbound || !entry.Kind.IsMedia() || entry.MediaRef == "" {
			continue
		}
		if entry.Timestamp.Before(c.CycleStartedAt) {
			continue
		}
		media = append(media, entry)
	}
	return media
}

// BeginCycle starts a new support cycle at AWAITING_NAME with cleared fields.
func (c *Conversation) BeginCycle(now time.Time) {
	c.clearIntake()
	c.Step = StepAwaitingName
	c.CycleStartedAt = now
}

// Reset returns the conversation to START, as an operator restart does.
func (c *Conversation) Reset() {
	c.clearIntake()
	c.Step = StepStart
}

func (c *Conversation) clearIntake() {
	c.DisplayName = ""
	c.Plate = ""
	c.NationalID = ""
	c.QueuedAt = nil
	c.QueueSeq = 0
	c.QueuePosition = nil
	c.AssignedAgentID = nil
}

// CheckQueueInvariant verifies the admission timestamp matches the step.
func (c *Conversation) CheckQueueInvariant() bool {
	return c.Step.InQueue() == (c.QueuedAt != nil)
}

// Clone returns a deep copy.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	cp := *c
	if c.QueuedAt != nil {
		t := *c.QueuedAt
		cp.QueuedAt = &t
	}
	if c.QueuePosition != nil {
		p := *c.QueuePosition
		cp.QueuePosition = &p
	}
	if c.AssignedAgentID != nil {
		a := *c.AssignedAgentID
		cp.AssignedAgentID = &a
	}
	if c.LastMessageAt != nil {
		t := *c.LastMessageAt
		cp.LastMessageAt = &t
	}
	cp.Messages = append([]LogEntry(nil), c.Messages...)
	return &cp
}
