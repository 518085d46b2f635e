package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/intake-desk/internal/domain"
)

// TicketFilter captures agent search parameters.
type TicketFilter struct {
	Identity        *string
	AssignedAgentID *string
	Statuses        []domain.TicketStatus
	Priorities      []domain.TicketPriority
	SearchTerm      *string
	Limit           int
	Offset          int
}

// TicketStats aggregates dashboard counters.
type TicketStats struct {
	ByStatus                 map[domain.TicketStatus]int
	OpenByPriority           map[domain.TicketPriority]int
	OpenForAgent             int
	AverageResolutionMinutes float64
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	// Create stores a new ticket and assigns its per-requester sequence.
	Create(ctx context.Context, ticket *domain.Ticket) error
	// Save writes mutable fields if Version still matches and bumps Version.
	Save(ctx context.Context, ticket *domain.Ticket) error
	Get(ctx context.Context, id string) (*domain.Ticket, error)
	GetByNumber(ctx context.Context, number string) (*domain.Ticket, error)
	// GetOpenForIdentity returns the most recent non-CLOSED ticket of identity.
	GetOpenForIdentity(ctx context.Context, identity string) (*domain.Ticket, error)
	CountForIdentity(ctx context.Context, identity string) (int, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, int, error)
	// AcquireLock is a single conditional write. When the claim is refused the current
	// ticket is returned with acquired=false.
	AcquireLock(ctx context.Context, id, agentID string, now time.Time, ttl time.Duration) (*domain.Ticket, bool, error)
	// ReleaseLock clears the claim only while holderID still holds it.
	ReleaseLock(ctx context.Context, id, holderID string, now time.Time) (*domain.Ticket, bool, error)
	AppendNote(ctx context.Context, id string, note domain.TicketNote) (*domain.Ticket, error)
	AppendAttachment(ctx context.Context, id string, attachment domain.TicketAttachment) (*domain.Ticket, error)
	Stats(ctx context.Context, agentID string) (TicketStats, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, number, identity, display_name, plate, national_id, description, requester_seq,
               status, priority, assigned_agent_id, locked_by, locked_at, notes, attachments,
               created_at, updated_at, closed_at, finalized_at, resolution_minutes, closed_by, version`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	notes, err := json.Marshal(nonNilNotes(ticket.Notes))
	if err != nil {
		return fmt.Errorf("encode notes: %w", err)
	}
	attachments, err := json.Marshal(nonNilAttachments(ticket.Attachments))
	if err != nil {
		return fmt.Errorf("encode attachments: %w", err)
	}
	const query = `
        INSERT INTO tickets (id, number, identity, display_name, plate, national_id, description, requester_seq,
            status, priority, assigned_agent_id, notes, attachments, created_at, updated_at, version)
        VALUES ($1,$2,$3,$4,$5,$6,$7,
            (SELECT COUNT(*) + 1 FROM tickets WHERE identity=$3),
            $8,$9,$10,$11,$12,$13,$14,1)
        RETURNING requester_seq, version`
	err = r.pool.QueryRow(ctx, query,
		ticket.ID,
		ticket.Number,
		ticket.Identity,
		ticket.DisplayName,
		ticket.Plate,
		ticket.NationalID,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.AssignedAgentID,
		notes,
		attachments,
		ticket.CreatedAt,
		ticket.UpdatedAt,
	).Scan(&ticket.RequesterSeq, &ticket.Version)
	return mapPgError(err)
}

func (r *ticketRepository) Save(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets
        SET description=$1, status=$2, priority=$3, assigned_agent_id=$4, locked_by=$5, locked_at=$6,
            updated_at=$7, closed_at=$8, finalized_at=$9, resolution_minutes=$10, closed_by=$11, version=version+1
        WHERE id=$12 AND version=$13
        RETURNING version`
	var version int64
	err := r.pool.QueryRow(ctx, query,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.AssignedAgentID,
		ticket.LockedBy,
		ticket.LockedAt,
		ticket.UpdatedAt,
		ticket.ClosedAt,
		ticket.FinalizedAt,
		ticket.ResolutionMinutes,
		ticket.ClosedBy,
		ticket.ID,
		ticket.Version,
	).Scan(&version)
	if err == nil {
		ticket.Version = version
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return mapPgError(err)
	}
	if _, err := r.Get(ctx, ticket.ID); err != nil {
		return err
	}
	return ErrStaleWrite
}

func (r *ticketRepository) Get(ctx context.Context, id string) (*domain.Ticket, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id)
}

func (r *ticketRepository) GetByNumber(ctx context.Context, number string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE number=$1`, number)
}

func (r *ticketRepository) GetOpenForIdentity(ctx context.Context, identity string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets
        WHERE identity=$1 AND status <> 'CLOSED'
        ORDER BY created_at DESC LIMIT 1`
	return r.fetchSingle(ctx, query, identity)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, mapPgError(err)
	}
	return ticket, nil
}

func (r *ticketRepository) CountForIdentity(ctx context.Context, identity string) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tickets WHERE identity=$1`, identity).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, int, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Identity != nil {
		args = append(args, *filter.Identity)
		clauses = append(clauses, fmt.Sprintf("identity=$%d", len(args)))
	}
	if filter.AssignedAgentID != nil {
		args = append(args, *filter.AssignedAgentID)
		clauses = append(clauses, fmt.Sprintf("assigned_agent_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf(
			"(LOWER(number) LIKE %s OR LOWER(display_name) LIKE %s OR LOWER(plate) LIKE %s OR identity LIKE %s)",
			placeholder, placeholder, placeholder, placeholder))
	}

	where := strings.Join(clauses, " AND ")
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tickets WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := normalizeLimit(filter.Limit, filter.Offset, 20)
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, where, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *ticket)
	}
	return result, total, rows.Err()
}

func (r *ticketRepository) AcquireLock(ctx context.Context, id, agentID string, now time.Time, ttl time.Duration) (*domain.Ticket, bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, false, ErrNotFound
	}
	query := `
        UPDATE tickets
        SET locked_by=$2, locked_at=$3, assigned_agent_id=$2,
            status = CASE WHEN status='PENDING' THEN 'ASSIGNED' ELSE status END,
            updated_at=$3, version=version+1
        WHERE id=$1 AND status <> 'CLOSED'
          AND (locked_by IS NULL OR locked_by=$2 OR locked_at IS NULL OR locked_at <= $4)
        RETURNING ` + ticketColumns
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id, agentID, now, now.Add(-ttl)))
	if err == nil {
		return ticket, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, mapPgError(err)
	}
	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

func (r *ticketRepository) ReleaseLock(ctx context.Context, id, holderID string, now time.Time) (*domain.Ticket, bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, false, ErrNotFound
	}
	query := `
        UPDATE tickets SET locked_by=NULL, locked_at=NULL, updated_at=$3, version=version+1
        WHERE id=$1 AND locked_by=$2
        RETURNING ` + ticketColumns
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id, holderID, now))
	if err == nil {
		return ticket, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, mapPgError(err)
	}
	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

func (r *ticketRepository) AppendNote(ctx context.Context, id string, note domain.TicketNote) (*domain.Ticket, error) {
	payload, err := json.Marshal([]domain.TicketNote{note})
	if err != nil {
		return nil, fmt.Errorf("encode note: %w", err)
	}
	return r.appendJSON(ctx, "notes", id, payload, note.CreatedAt)
}

func (r *ticketRepository) AppendAttachment(ctx context.Context, id string, attachment domain.TicketAttachment) (*domain.Ticket, error) {
	payload, err := json.Marshal([]domain.TicketAttachment{attachment})
	if err != nil {
		return nil, fmt.Errorf("encode attachment: %w", err)
	}
	return r.appendJSON(ctx, "attachments", id, payload, attachment.CreatedAt)
}

// appendJSON concatenates payload onto a JSONB array column without touching version.
func (r *ticketRepository) appendJSON(ctx context.Context, column, id string, payload []byte, now time.Time) (*domain.Ticket, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	query := fmt.Sprintf(`
        UPDATE tickets SET %[1]s = %[1]s || $2::jsonb, updated_at=$3
        WHERE id=$1
        RETURNING %[2]s`, column, ticketColumns)
	return r.fetchSingle(ctx, query, id, payload, now)
}

func (r *ticketRepository) Stats(ctx context.Context, agentID string) (TicketStats, error) {
	stats := TicketStats{
		ByStatus:       make(map[domain.TicketStatus]int),
		OpenByPriority: make(map[domain.TicketPriority]int),
	}

	batch := &pgx.Batch{}
	batch.Queue(`SELECT status, COUNT(*) FROM tickets GROUP BY status`)
	batch.Queue(`SELECT priority, COUNT(*) FROM tickets WHERE status <> 'CLOSED' GROUP BY priority`)
	batch.Queue(`SELECT COALESCE(AVG(resolution_minutes), 0)::float8 FROM tickets WHERE resolution_minutes IS NOT NULL`)
	withAgent := agentID != ""
	if withAgent {
		batch.Queue(`SELECT COUNT(*) FROM tickets WHERE status <> 'CLOSED' AND assigned_agent_id=$1`, agentID)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	rows, err := results.Query()
	if err != nil {
		return stats, err
	}
	for rows.Next() {
		var status domain.TicketStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return stats, err
		}
		stats.ByStatus[status] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return stats, err
	}

	rows, err = results.Query()
	if err != nil {
		return stats, err
	}
	for rows.Next() {
		var priority domain.TicketPriority
		var count int
		if err := rows.Scan(&priority, &count); err != nil {
			rows.Close()
			return stats, err
		}
		stats.OpenByPriority[priority] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return stats, err
	}

	if err := results.QueryRow().Scan(&stats.AverageResolutionMinutes); err != nil {
		return stats, err
	}
	if withAgent {
		if err := results.QueryRow().Scan(&stats.OpenForAgent); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	var notes, attachments []byte
	if err := row.Scan(
		&ticket.ID,
		&ticket.Number,
		&ticket.Identity,
		&ticket.DisplayName,
		&ticket.Plate,
		&ticket.NationalID,
		&ticket.Description,
		&ticket.RequesterSeq,
		&ticket.Status,
		&ticket.Priority,
		&ticket.AssignedAgentID,
		&ticket.LockedBy,
		&ticket.LockedAt,
		&notes,
		&attachments,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
		&ticket.FinalizedAt,
		&ticket.ResolutionMinutes,
		&ticket.ClosedBy,
		&ticket.Version,
	); err != nil {
		return nil, err
	}
	if len(notes) > 0 {
		if err := json.Unmarshal(notes, &ticket.Notes); err != nil {
			return nil, fmt.Errorf("decode notes: %w", err)
		}
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &ticket.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments: %w", err)
		}
	}
	return &ticket, nil
}

func nonNilNotes(notes []domain.TicketNote) []domain.TicketNote {
	if notes == nil {
		return []domain.TicketNote{}
	}
	return notes
}

func nonNilAttachments(attachments []domain.TicketAttachment) []domain.TicketAttachment {
	if attachments == nil {
		return []domain.TicketAttachment{}
	}
	return attachments
}
