package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrStaleWrite is returned when an optimistic write lost against a concurrent one.
	ErrStaleWrite = errors.New("stale write")
	// ErrDuplicate is returned when a unique key already exists.
	ErrDuplicate = errors.New("duplicate record")
)

const uniqueViolation = "23505"

// mapPgError translates driver errors into repository errors.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return err
}

func normalizeLimit(limit, offset, fallback int) (int, int) {
	if limit <= 0 {
		limit = fallback
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
