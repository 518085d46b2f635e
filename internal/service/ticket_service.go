package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/intake-desk/internal/domain"
	"github.com/spec-kit/intake-desk/internal/events"
	"github.com/spec-kit/intake-desk/internal/observability"
	"github.com/spec-kit/intake-desk/internal/repository"
	apperrors "github.com/spec-kit/intake-desk/pkg/util/errorutil"
)

const ticketNumberPrefix = "TKT-"

// TicketService coordinates ticket lifecycle workflows.
type TicketService struct {
	tickets    repository.TicketRepository
	sequences  repository.SequenceRepository
	staff      repository.StaffRepository
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        Clock
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo   repository.TicketRepository
	SequenceRepo repository.SequenceRepository
	StaffRepo    repository.StaffRepository
	Dispatcher   events.Dispatcher
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	Clock        Clock
}

// TicketCreateInput carries the intake answers of one support cycle.
type TicketCreateInput struct {
	Identity    string
	DisplayName string
	Plate       string
	NationalID  string
	Description string
	Attachments []domain.TicketAttachment
}

// TicketUpdateInput lists the fields an agent may patch. Nil means unchanged.
type TicketUpdateInput struct {
	Status          *domain.TicketStatus
	Priority        *domain.TicketPriority
	Description     *string
	AssignedAgentID *string
}

// TicketListFilter describes staff listing filters.
type TicketListFilter struct {
	Identity        *string
	AssignedAgentID *string
	Statuses        []domain.TicketStatus
	Priorities      []domain.TicketPriority
	SearchTerm      *string
	Limit           int
	Offset          int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		sequences:  deps.SequenceRepo,
		staff:      deps.StaffRepo,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        clockOrDefault(deps.Clock),
	}
}

// Create reserves the next monthly sequence and stores a PENDING ticket.
func (s *TicketService) Create(ctx context.Context, input TicketCreateInput) (*domain.Ticket, error) {
	now := s.now()
	seq, err := s.sequences.NextTicketSequence(ctx, domain.YearMonth(now))
	if err != nil {
		return nil, apperrors.MapError(fmt.Errorf("reserve ticket sequence: %w", err))
	}

	ticket := &domain.Ticket{
		Number:      domain.FormatTicketNumber(now, seq),
		Identity:    input.Identity,
		DisplayName: input.DisplayName,
		Plate:       input.Plate,
		NationalID:  input.NationalID,
		Description: input.Description,
		Status:      domain.TicketStatusPending,
		Priority:    domain.TicketPriorityMedium,
		Attachments: input.Attachments,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewIntegrityViolation("ticket number or requester sequence collision", err)
		}
		return nil, apperrors.MapError(err)
	}

	s.metrics.Inc(observability.CounterTicketsCreated)
	s.logger.Info("ticket created",
		zap.String("ticket_number", ticket.Number),
		zap.String("identity", ticket.Identity),
		zap.Int("requester_seq", ticket.RequesterSeq))
	publish(ctx, s.dispatcher, s.logger, events.New(events.EventTicketCreated, ticket.Identity, ticket.ID, nil, now,
		events.TicketCreatedPayload{
			Number:       ticket.Number,
			RequesterSeq: ticket.RequesterSeq,
			Priority:     ticket.Priority,
			Attachments:  len(ticket.Attachments),
		}))
	return ticket, nil
}

// Get resolves a ticket by id or by its TKT number.
func (s *TicketService) Get(ctx context.Context, ref string) (*domain.Ticket, error) {
	var (
		ticket *domain.Ticket
		err    error
	)
	if strings.HasPrefix(ref, ticketNumberPrefix) {
		ticket, err = s.tickets.GetByNumber(ctx, ref)
	} else {
		ticket, err = s.tickets.Get(ctx, ref)
	}
	if err != nil {
		return nil, mapRepoError(err, "ticket", ref)
	}
	return ticket, nil
}

// OpenForIdentity returns the live ticket of a requester or nil.
func (s *TicketService) OpenForIdentity(ctx context.Context, identity string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetOpenForIdentity(ctx, identity)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// List returns a page of tickets and the total match count.
func (s *TicketService) List(ctx context.Context, filter TicketListFilter) ([]domain.Ticket, int, error) {
	for _, status := range filter.Statuses {
		if !status.Valid() {
			return nil, 0, apperrors.NewValidationError("invalid status filter", map[string]any{"status": status})
		}
	}
	for _, priority := range filter.Priorities {
		if !priority.Valid() {
			return nil, 0, apperrors.NewValidationError("invalid priority filter", map[string]any{"priority": priority})
		}
	}
	tickets, total, err := s.tickets.List(ctx, repository.TicketFilter{
		Identity:        filter.Identity,
		AssignedAgentID: filter.AssignedAgentID,
		Statuses:        filter.Statuses,
		Priorities:      filter.Priorities,
		SearchTerm:      filter.SearchTerm,
		Limit:           filter.Limit,
		Offset:          filter.Offset,
	})
	if err != nil {
		return nil, 0, apperrors.MapError(err)
	}
	return tickets, total, nil
}

// UpdateFields patches status, priority, description or assignee.
func (s *TicketService) UpdateFields(ctx context.Context, actor *domain.StaffMember, ref string, input TicketUpdateInput) (*domain.Ticket, error) {
	ticket, err := s.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	now := s.now()
	wasClosed := ticket.IsClosed()

	if wasClosed && (input.Priority != nil || input.AssignedAgentID != nil) {
		return nil, apperrors.NewAlreadyClosed(ticket.Number)
	}

	if input.Priority != nil {
		if !input.Priority.Valid() {
			return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": *input.Priority})
		}
		ticket.Priority = *input.Priority
	}

	if input.Description != nil {
		description := strings.TrimSpace(*input.Description)
		if description == "" {
			return nil, apperrors.NewValidationError("description cannot be empty", nil)
		}
		ticket.Description = description
	}

	if input.AssignedAgentID != nil && !ticket.AssignedTo(*input.AssignedAgentID) {
		if !actor.IsAdmin() {
			return nil, apperrors.NewForbidden("only administrators can reassign tickets")
		}
		agent, err := s.activeStaff(ctx, *input.AssignedAgentID)
		if err != nil {
			return nil, err
		}
		assignee := agent.ID
		ticket.AssignedAgentID = &assignee
		if ticket.LockedBy != nil && *ticket.LockedBy != agent.ID {
			ticket.ClearLock(now)
		}
		if ticket.Status == domain.TicketStatusPending {
			ticket.Status = domain.TicketStatusAssigned
		}
	}

	closing := false
	if input.Status != nil {
		next := *input.Status
		if !next.Valid() {
			return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": next})
		}
		if !ticket.Status.CanMoveTo(next) {
			return nil, apperrors.NewValidationError("ticket status cannot move backwards",
				map[string]any{"from": ticket.Status, "to": next})
		}
		if next == domain.TicketStatusClosed {
			if !canClose(actor, ticket) {
				return nil, apperrors.NewForbidden("only an administrator or the assigned agent can close the ticket")
			}
			closing = !wasClosed
			ticket.MarkClosed(now)
			if closing {
				closedBy := actor.ID
				ticket.ClosedBy = &closedBy
			}
		} else {
			ticket.Status = next
		}
	}

	ticket.UpdatedAt = now
	if err := s.tickets.Save(ctx, ticket); err != nil {
		return nil, mapRepoError(err, "ticket", ref)
	}
	if closing {
		s.afterClose(ctx, actor, ticket)
	}
	return ticket, nil
}

// Close moves the ticket to CLOSED, stamps timing once and drops any lock.
func (s *TicketService) Close(ctx context.Context, actor *domain.StaffMember, ref string) (*domain.Ticket, error) {
	ticket, err := s.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if ticket.IsClosed() {
		return nil, apperrors.NewAlreadyClosed(ticket.Number)
	}
	if !canClose(actor, ticket) {
		return nil, apperrors.NewForbidden("only an administrator or the assigned agent can close the ticket")
	}

	now := s.now()
	ticket.MarkClosed(now)
	closedBy := actor.ID
	ticket.ClosedBy = &closedBy
	ticket.UpdatedAt = now
	if err := s.tickets.Save(ctx, ticket); err != nil {
		return nil, mapRepoError(err, "ticket", ref)
	}
	s.afterClose(ctx, actor, ticket)
	return ticket, nil
}

// Supersede closes an open ticket left behind by an earlier intake cycle. No
// closing notice is published since the requester is starting a new ticket.
func (s *TicketService) Supersede(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.AddSystemNote(ctx, ticketID, "Closed automatically: the requester started a new intake cycle.")
	if err != nil {
		return nil, err
	}
	if ticket.IsClosed() {
		return ticket, nil
	}
	now := s.now()
	ticket.MarkClosed(now)
	ticket.UpdatedAt = now
	if err := s.tickets.Save(ctx, ticket); err != nil {
		return nil, mapRepoError(err, "ticket", ticketID)
	}
	s.metrics.Inc(observability.CounterTicketsClosed)
	s.logger.Info("ticket superseded by new cycle",
		zap.String("ticket_number", ticket.Number),
		zap.String("identity", ticket.Identity))
	return ticket, nil
}

// AddNote appends an agent note.
func (s *TicketService) AddNote(ctx context.Context, actor *domain.StaffMember, ref, text string) (*domain.Ticket, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewValidationError("note text cannot be empty", nil)
	}
	ticket, err := s.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	author := actor.ID
	updated, err := s.tickets.AppendNote(ctx, ticket.ID, domain.TicketNote{Text: text, AuthorID: &author, CreatedAt: s.now()})
	if err != nil {
		return nil, mapRepoError(err, "ticket", ref)
	}
	publish(ctx, s.dispatcher, s.logger, events.New(events.EventTicketNoteAdded, updated.Identity, updated.ID, &author, s.now(),
		events.TicketNoteAddedPayload{Number: updated.Number, BodyPreview: stringPreview(text, 120)}))
	return updated, nil
}

// AddSystemNote appends a note without an author.
func (s *TicketService) AddSystemNote(ctx context.Context, ticketID, text string) (*domain.Ticket, error) {
	updated, err := s.tickets.AppendNote(ctx, ticketID, domain.TicketNote{Text: text, CreatedAt: s.now()})
	if err != nil {
		return nil, mapRepoError(err, "ticket", ticketID)
	}
	return updated, nil
}

// Attach stores requester media on the ticket.
func (s *TicketService) Attach(ctx context.Context, ticketID string, attachment domain.TicketAttachment) (*domain.Ticket, error) {
	updated, err := s.tickets.AppendAttachment(ctx, ticketID, attachment)
	if err != nil {
		return nil, mapRepoError(err, "ticket", ticketID)
	}
	return updated, nil
}

// Summary aggregates dashboard counters for the caller.
func (s *TicketService) Summary(ctx context.Context, actor *domain.StaffMember) (repository.TicketStats, error) {
	stats, err := s.tickets.Stats(ctx, actor.ID)
	if err != nil {
		return repository.TicketStats{}, apperrors.MapError(err)
	}
	return stats, nil
}

func (s *TicketService) afterClose(ctx context.Context, actor *domain.StaffMember, ticket *domain.Ticket) {
	minutes := 0
	if ticket.ResolutionMinutes != nil {
		minutes = *ticket.ResolutionMinutes
	}
	s.metrics.Inc(observability.CounterTicketsClosed)
	s.logger.Info("ticket closed",
		zap.String("ticket_number", ticket.Number),
		zap.String("closed_by", actor.ID),
		zap.Int("resolution_minutes", minutes))
	publish(ctx, s.dispatcher, s.logger, events.New(events.EventTicketClosed, ticket.Identity, ticket.ID, strPtr(actor.ID), s.now(),
		events.TicketClosedPayload{Number: ticket.Number, ResolutionMinutes: minutes}))
}

func (s *TicketService) activeStaff(ctx context.Context, id string) (*domain.StaffMember, error) {
	member, err := s.staff.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "staff member", id)
	}
	if !member.Active {
		return nil, apperrors.NewValidationError("staff member is inactive", map[string]any{"staff_id": id})
	}
	return member, nil
}

func canClose(actor *domain.StaffMember, ticket *domain.Ticket) bool {
	if actor == nil {
		return false
	}
	if actor.IsAdmin() || ticket.AssignedTo(actor.ID) {
		return true
	}
	return ticket.LockedBy != nil && *ticket.LockedBy == actor.ID
}

// staffName resolves a display name, empty when unknown.
func staffName(ctx context.Context, staff repository.StaffRepository, id *string) string {
	if staff == nil || id == nil {
		return ""
	}
	member, err := staff.GetByID(ctx, *id)
	if err != nil {
		return ""
	}
	return member.Name
}

func minutesOf(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d.Round(time.Minute) / time.Minute)
}
