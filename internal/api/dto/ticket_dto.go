package dto

import (
	"time"

	"github.com/spec-kit/intake-desk/internal/domain"
)

// TicketPatchRequest lists the fields an agent may change. Omitted fields are left unchanged.
type TicketPatchRequest struct {
	Status          *domain.TicketStatus   `json:"status" validate:"omitempty,ticket_status"`
	Priority        *domain.TicketPriority `json:"priority" validate:"omitempty,ticket_priority"`
	Description     *string                `json:"description" validate:"omitempty,max=2000"`
	AssignedAgentID *string                `json:"assigned_agent_id" validate:"omitempty,uuid"`
}

// NoteRequest payload.
type NoteRequest struct {
	Text string `json:"text" validate:"required,not_blank,max=2000"`
}

// TicketResponse is the staff view of a ticket.
type TicketResponse struct {
	ID                string                    `json:"id"`
	Number            string                    `json:"number"`
	Identity          string                    `json:"identity"`
	DisplayName       string                    `json:"display_name"`
	Plate             string                    `json:"plate"`
	NationalID        string                    `json:"national_id"`
	Description       string                    `json:"description"`
	RequesterSeq      int                       `json:"requester_seq"`
	Status            domain.TicketStatus       `json:"status"`
	Priority          domain.TicketPriority     `json:"priority"`
	AssignedAgentID   *string                   `json:"assigned_agent_id"`
	LockedBy          *string                   `json:"locked_by"`
	LockedAt          *time.Time                `json:"locked_at"`
	Notes             []domain.TicketNote       `json:"notes"`
	Attachments       []domain.TicketAttachment `json:"attachments"`
	CreatedAt         time.Time                 `json:"created_at"`
	UpdatedAt         time.Time                 `json:"updated_at"`
	ClosedAt          *time.Time                `json:"closed_at,omitempty"`
	FinalizedAt       *time.Time                `json:"finalized_at,omitempty"`
	ResolutionMinutes *int                      `json:"resolution_minutes,omitempty"`
	ClosedBy          *string                   `json:"closed_by,omitempty"`
}

// NewTicketResponse maps a ticket.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	notes := t.Notes
	if notes == nil {
		notes = []domain.TicketNote{}
	}
	attachments := t.Attachments
	if attachments == nil {
		attachments = []domain.TicketAttachment{}
	}
	return TicketResponse{
		ID:                t.ID,
		Number:            t.Number,
		Identity:          t.Identity,
		DisplayName:       t.DisplayName,
		Plate:             t.Plate,
		NationalID:        t.NationalID,
		Description:       t.Description,
		RequesterSeq:      t.RequesterSeq,
		Status:            t.Status,
		Priority:          t.Priority,
		AssignedAgentID:   t.AssignedAgentID,
		LockedBy:          t.LockedBy,
		LockedAt:          t.LockedAt,
		Notes:             notes,
		Attachments:       attachments,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
		ClosedAt:          t.ClosedAt,
		FinalizedAt:       t.FinalizedAt,
		ResolutionMinutes: t.ResolutionMinutes,
		ClosedBy:          t.ClosedBy,
	}
}

// NewTicketResponses maps a slice of tickets.
func NewTicketResponses(tickets []domain.Ticket) []TicketResponse {
	out := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		out = append(out, NewTicketResponse(&tickets[i]))
	}
	return out
}

// TicketSummaryResponse carries dashboard counters.
type TicketSummaryResponse struct {
	ByStatus                 map[domain.TicketStatus]int   `json:"by_status"`
	OpenByPriority           map[domain.TicketPriority]int `json:"open_by_priority"`
	OpenForMe                int                           `json:"open_for_me"`
	AverageResolutionMinutes float64                       `json:"average_resolution_minutes"`
}
