package dto

import (
	"time"

	"github.com/spec-kit/intake-desk/internal/domain"
)

// ConversationStatusRequest archives, blocks or reactivates a conversation.
type ConversationStatusRequest struct {
	Status domain.ConversationStatus `json:"status" validate:"required,conversation_status"`
}

// ReplyRequest is a free-text message from an agent to the requester.
type ReplyRequest struct {
	Text string `json:"text" validate:"required,not_blank,max=4096"`
}

// ConversationResponse is the inbox view of a conversation.
type ConversationResponse struct {
	Identity        string                    `json:"identity"`
	Step            domain.IntakeStep         `json:"step"`
	Status          domain.ConversationStatus `json:"status"`
	DisplayName     string                    `json:"display_name"`
	Plate           string                    `json:"plate"`
	NationalID      string                    `json:"national_id"`
	QueuedAt        *time.Time                `json:"queued_at"`
	QueuePosition   *int                      `json:"queue_position"`
	AssignedAgentID *string                   `json:"assigned_agent_id"`
	LastMessage     string                    `json:"last_message"`
	LastMessageAt   *time.Time                `json:"last_message_at"`
	UnreadCount     int                       `json:"unread_count"`
	UpdatedAt       time.Time                 `json:"updated_at"`
	Messages        []domain.LogEntry         `json:"messages,omitempty"`
}

// NewConversationResponse maps a conversation without its message log.
func NewConversationResponse(c *domain.Conversation) ConversationResponse {
	return ConversationResponse{
		Identity:        c.Identity,
		Step:            c.Step,
		Status:          c.Status,
		DisplayName:     c.DisplayName,
		Plate:           c.Plate,
		NationalID:      c.NationalID,
		QueuedAt:        c.QueuedAt,
		QueuePosition:   c.QueuePosition,
		AssignedAgentID: c.AssignedAgentID,
		LastMessage:     c.LastMessage,
		LastMessageAt:   c.LastMessageAt,
		UnreadCount:     c.UnreadCount,
		UpdatedAt:       c.UpdatedAt,
	}
}

// NewConversationDetail maps a conversation including its message log.
func NewConversationDetail(c *domain.Conversation) ConversationResponse {
	resp := NewConversationResponse(c)
	resp.Messages = c.Messages
	if resp.Messages == nil {
		resp.Messages = []domain.LogEntry{}
	}
	return resp
}

// QueueEntryResponse is one waiting requester.
type QueueEntryResponse struct {
	Position     int                  `json:"position"`
	Conversation ConversationResponse `json:"conversation"`
	Ticket       *TicketResponse      `json:"ticket,omitempty"`
	WaitMinutes  int                  `json:"wait_minutes"`
}
