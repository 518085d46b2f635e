package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SequenceRepository reserves ticket numbers.
type SequenceRepository interface {
	// NextTicketSequence atomically reserves the next value of the yearMonth counter.
	NextTicketSequence(ctx context.Context, yearMonth string) (int64, error)
}

type sequenceRepository struct {
	pool *pgxpool.Pool
}

// NewSequenceRepository instantiates the repository.
func NewSequenceRepository(pool *pgxpool.Pool) SequenceRepository {
	return &sequenceRepository{pool: pool}
}

func (r *sequenceRepository) NextTicketSequence(ctx context.Context, yearMonth string) (int64, error) {
	const query = `
        INSERT INTO ticket_sequences (year_month, value) VALUES ($1, 1)
        ON CONFLICT (year_month) DO UPDATE SET value = ticket_sequences.value + 1
        RETURNING value`
	var value int64
	if err := r.pool.QueryRow(ctx, query, yearMonth).Scan(&value); err != nil {
		return 0, err
	}
	return value, nil
}
