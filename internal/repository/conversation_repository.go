package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/intake-desk/internal/domain"
)

// ConversationFilter captures conversation listing parameters.
type ConversationFilter struct {
	Steps    []domain.IntakeStep
	Statuses []domain.ConversationStatus
	// QueueOrder sorts by admission order instead of recent activity.
	QueueOrder bool
	Limit      int
	Offset     int
}

// ConversationRepository persists per-identity dialogue state.
type ConversationRepository interface {
	Get(ctx context.Context, identity string) (*domain.Conversation, error)
	Create(ctx context.Context, conv *domain.Conversation) error
	// Save writes conv if its Version still matches the stored one and bumps Version.
	Save(ctx context.Context, conv *domain.Conversation) error
	// CountAheadOf counts QUEUED or ASSIGNED conversations admitted before (queuedAt, queueSeq).
	CountAheadOf(ctx context.Context, queuedAt time.Time, queueSeq int64) (int, error)
	CountByStep(ctx context.Context) (map[domain.IntakeStep]int, error)
	// MeanWait averages now minus admission over ASSIGNED conversations.
	MeanWait(ctx context.Context, now time.Time) (time.Duration, int, error)
	NextQueueSeq(ctx context.Context) (int64, error)
	List(ctx context.Context, filter ConversationFilter) ([]domain.Conversation, error)
}

type conversationRepository struct {
	pool *pgxpool.Pool
}

// NewConversationRepository instantiates the Postgres repository.
func NewConversationRepository(pool *pgxpool.Pool) ConversationRepository {
	return &conversationRepository{pool: pool}
}

const conversationColumns = `identity, step, display_name, plate, national_id, queued_at, queue_seq, queue_position,
               status, assigned_agent_id, messages, last_message, last_message_at, unread_count,
               cycle_started_at, version, created_at, updated_at`

func (r *conversationRepository) Get(ctx context.Context, identity string) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE identity=$1`
	conv, err := scanConversation(r.pool.QueryRow(ctx, query, identity))
	if err != nil {
		return nil, mapPgError(err)
	}
	return conv, nil
}

func (r *conversationRepository) Create(ctx context.Context, conv *domain.Conversation) error {
	messages, err := json.Marshal(nonNilMessages(conv.Messages))
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	const query = `
        INSERT INTO conversations (identity, step, display_name, plate, national_id, queued_at, queue_seq, queue_position,
            status, assigned_agent_id, messages, last_message, last_message_at, unread_count,
            cycle_started_at, version, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,1,$16,$17)`
	_, err = r.pool.Exec(ctx, query,
		conv.Identity,
		conv.Step,
		conv.DisplayName,
		conv.Plate,
		conv.NationalID,
		conv.QueuedAt,
		conv.QueueSeq,
		conv.QueuePosition,
		conv.Status,
		conv.AssignedAgentID,
		messages,
		conv.LastMessage,
		conv.LastMessageAt,
		conv.UnreadCount,
		conv.CycleStartedAt,
		conv.CreatedAt,
		conv.UpdatedAt,
	)
	if err != nil {
		return mapPgError(err)
	}
	conv.Version = 1
	return nil
}

func (r *conversationRepository) Save(ctx context.Context, conv *domain.Conversation) error {
	messages, err := json.Marshal(nonNilMessages(conv.Messages))
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	const query = `
        UPDATE conversations
        SET step=$1, display_name=$2, plate=$3, national_id=$4, queued_at=$5, queue_seq=$6, queue_position=$7,
            status=$8, assigned_agent_id=$9, messages=$10, last_message=$11, last_message_at=$12,
            unread_count=$13, cycle_started_at=$14, updated_at=$15, version=version+1
        WHERE identity=$16 AND version=$17
        RETURNING version`
	var version int64
	err = r.pool.QueryRow(ctx, query,
		conv.Step,
		conv.DisplayName,
		conv.Plate,
		conv.NationalID,
		conv.QueuedAt,
		conv.QueueSeq,
		conv.QueuePosition,
		conv.Status,
		conv.AssignedAgentID,
		messages,
		conv.LastMessage,
		conv.LastMessageAt,
		conv.UnreadCount,
		conv.CycleStartedAt,
		conv.UpdatedAt,
		conv.Identity,
		conv.Version,
	).Scan(&version)
	if err == nil {
		conv.Version = version
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return mapPgError(err)
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM conversations WHERE identity=$1)`, conv.Identity).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStaleWrite
}

func (r *conversationRepository) CountAheadOf(ctx context.Context, queuedAt time.Time, queueSeq int64) (int, error) {
	const query = `
        SELECT COUNT(*) FROM conversations
        WHERE step IN ('QUEUED','ASSIGNED') AND queued_at IS NOT NULL
          AND (queued_at < $1 OR (queued_at = $1 AND queue_seq < $2))`
	var count int
	if err := r.pool.QueryRow(ctx, query, queuedAt, queueSeq).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *conversationRepository) CountByStep(ctx context.Context) (map[domain.IntakeStep]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT step, COUNT(*) FROM conversations GROUP BY step`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.IntakeStep]int)
	for rows.Next() {
		var step domain.IntakeStep
		var count int
		if err := rows.Scan(&step, &count); err != nil {
			return nil, err
		}
		counts[step] = count
	}
	return counts, rows.Err()
}

func (r *conversationRepository) MeanWait(ctx context.Context, now time.Time) (time.Duration, int, error) {
	const query = `
        SELECT COALESCE(AVG(EXTRACT(EPOCH FROM ($1::timestamptz - queued_at))), 0)::float8, COUNT(*)
        FROM conversations WHERE step='ASSIGNED' AND queued_at IS NOT NULL`
	var seconds float64
	var count int
	if err := r.pool.QueryRow(ctx, query, now).Scan(&seconds, &count); err != nil {
		return 0, 0, err
	}
	return time.Duration(seconds * float64(time.Second)), count, nil
}

func (r *conversationRepository) NextQueueSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := r.pool.QueryRow(ctx, `SELECT nextval('conversation_queue_seq')`).Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}

func (r *conversationRepository) List(ctx context.Context, filter ConversationFilter) ([]domain.Conversation, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if len(filter.Steps) > 0 {
		placeholders := make([]string, len(filter.Steps))
		for i, step := range filter.Steps {
			args = append(args, step)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("step IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}

	order := "COALESCE(last_message_at, updated_at) DESC"
	if filter.QueueOrder {
		order = "queued_at ASC NULLS LAST, queue_seq ASC"
	}
	limit, offset := normalizeLimit(filter.Limit, filter.Offset, 50)

	query := fmt.Sprintf(`SELECT %s FROM conversations WHERE %s ORDER BY %s LIMIT %d OFFSET %d`,
		conversationColumns, strings.Join(clauses, " AND "), order, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *conv)
	}
	return result, rows.Err()
}

func scanConversation(row pgx.Row) (*domain.Conversation, error) {
	var conv domain.Conversation
	var messages []byte
	if err := row.Scan(
		&conv.Identity,
		&conv.Step,
		&conv.DisplayName,
		&conv.Plate,
		&conv.NationalID,
		&conv.QueuedAt,
		&conv.QueueSeq,
		&conv.QueuePosition,
		&conv.Status,
		&conv.AssignedAgentID,
		&messages,
		&conv.LastMessage,
		&conv.LastMessageAt,
		&conv.UnreadCount,
		&conv.CycleStartedAt,
		&conv.Version,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(messages) > 0 {
		if err := json.Unmarshal(messages, &conv.Messages); err != nil {
			return nil, fmt.Errorf("decode messages: %w", err)
		}
	}
	return &conv, nil
}

func nonNilMessages(entries []domain.LogEntry) []domain.LogEntry {
	if entries == nil {
		return []domain.LogEntry{}
	}
	return entries
}
