package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/intake-desk/internal/domain"
)

// StaffRepository handles persistence for desk agents and administrators.
type StaffRepository interface {
	Create(ctx context.Context, staff *domain.StaffMember) error
	Update(ctx context.Context, staff *domain.StaffMember) error
	GetByID(ctx context.Context, id string) (*domain.StaffMember, error)
	GetByEmail(ctx context.Context, email string) (*domain.StaffMember, error)
	List(ctx context.Context, filter StaffFilter) ([]domain.StaffMember, error)
	Count(ctx context.Context) (int, error)
}

// StaffFilter defines query params for staff listing.
type StaffFilter struct {
	Role   *domain.StaffRole
	Active *bool
	Limit  int
	Offset int
}

type staffRepository struct {
	pool *pgxpool.Pool
}

// NewStaffRepository instantiates the repository.
func NewStaffRepository(pool *pgxpool.Pool) StaffRepository {
	return &staffRepository{pool: pool}
}

const staffColumns = `id, name, email, password_hash, role, active_flag, created_at, updated_at`

func (r *staffRepository) Create(ctx context.Context, staff *domain.StaffMember) error {
	if staff.ID == "" {
		staff.ID = uuid.NewString()
	}
	const query = `
        INSERT INTO staff_members (id, name, email, password_hash, role, active_flag)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		staff.ID,
		staff.Name,
		strings.ToLower(staff.Email),
		staff.PasswordHash,
		staff.Role,
		staff.Active,
	).Scan(&staff.CreatedAt, &staff.UpdatedAt)
	return mapPgError(err)
}

func (r *staffRepository) Update(ctx context.Context, staff *domain.StaffMember) error {
	const query = `
        UPDATE staff_members
        SET name=$1, email=$2, password_hash=$3, role=$4, active_flag=$5, updated_at=NOW()
        WHERE id=$6`

	cmd, err := r.pool.Exec(ctx, query,
		staff.Name,
		strings.ToLower(staff.Email),
		staff.PasswordHash,
		staff.Role,
		staff.Active,
		staff.ID,
	)
	if err != nil {
		return mapPgError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *staffRepository) GetByID(ctx context.Context, id string) (*domain.StaffMember, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	return r.fetchSingle(ctx, `SELECT `+staffColumns+` FROM staff_members WHERE id=$1`, id)
}

func (r *staffRepository) GetByEmail(ctx context.Context, email string) (*domain.StaffMember, error) {
	return r.fetchSingle(ctx, `SELECT `+staffColumns+` FROM staff_members WHERE email=$1`, strings.ToLower(email))
}

func (r *staffRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.StaffMember, error) {
	var staff domain.StaffMember
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&staff.ID,
		&staff.Name,
		&staff.Email,
		&staff.PasswordHash,
		&staff.Role,
		&staff.Active,
		&staff.CreatedAt,
		&staff.UpdatedAt,
	); err != nil {
		return nil, mapPgError(err)
	}
	return &staff, nil
}

func (r *staffRepository) List(ctx context.Context, filter StaffFilter) ([]domain.StaffMember, error) {
	query := `SELECT ` + staffColumns + ` FROM staff_members`
	args := []any{}
	clauses := []string{}

	if filter.Role != nil {
		args = append(args, *filter.Role)
		clauses = append(clauses, fmt.Sprintf("role=$%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		clauses = append(clauses, fmt.Sprintf("active_flag=$%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	limit, offset := normalizeLimit(filter.Limit, filter.Offset, 50)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d OFFSET %d", limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.StaffMember
	for rows.Next() {
		var staff domain.StaffMember
		if err := rows.Scan(
			&staff.ID,
			&staff.Name,
			&staff.Email,
			&staff.PasswordHash,
			&staff.Role,
			&staff.Active,
			&staff.CreatedAt,
			&staff.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, staff)
	}
	return result, rows.Err()
}

func (r *staffRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM staff_members`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
