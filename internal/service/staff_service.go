package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/intake-desk/internal/auth"
	"github.com/spec-kit/intake-desk/internal/config"
	"github.com/spec-kit/intake-desk/internal/domain"
	"github.com/spec-kit/intake-desk/internal/repository"
	apperrors "github.com/spec-kit/intake-desk/pkg/util/errorutil"
)

// StaffService manages desk agents and administrators.
type StaffService struct {
	staff      repository.StaffRepository
	bcryptCost int
	logger     *zap.Logger
}

// StaffListFilters define listing parameters.
type StaffListFilters struct {
	Role   *domain.StaffRole
	Active *bool
	Limit  int
	Offset int
}

// StaffUpdateInput lists patchable staff fields. Nil means unchanged.
type StaffUpdateInput struct {
	Name   *string
	Role   *domain.StaffRole
	Active *bool
}

// NewStaffService constructs the service.
func NewStaffService(cfg config.Config, staff repository.StaffRepository, logger *zap.Logger) *StaffService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StaffService{
		staff:      staff,
		bcryptCost: cfg.Auth.BcryptCost,
		logger:     logger,
	}
}

func requireAdmin(actor *domain.StaffMember) error {
	if !actor.IsAdmin() {
		return apperrors.NewForbidden("admin role required")
	}
	return nil
}

// CreateStaffMember adds a new staff account.
func (s *StaffService) CreateStaffMember(ctx context.Context, actor *domain.StaffMember, name, email, password string, role domain.StaffRole) (*domain.StaffMember, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.create(ctx, name, email, password, role)
}

// EnsureAdmin creates the bootstrap administrator when no account uses its email.
func (s *StaffService) EnsureAdmin(ctx context.Context, name, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil
	}
	_, err := s.staff.GetByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return apperrors.MapError(err)
	}
	if name == "" {
		name = "Administrator"
	}
	admin, err := s.create(ctx, name, email, password, domain.StaffRoleAdmin)
	if err != nil {
		return err
	}
	s.logger.Info("bootstrap admin created", zap.String("staff_id", admin.ID), zap.String("email", admin.Email))
	return nil
}

func (s *StaffService) create(ctx context.Context, name, email, password string, role domain.StaffRole) (*domain.StaffMember, error) {
	if !role.Valid() {
		return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": role})
	}
	hash, err := auth.HashPassword(password, s.bcryptCost)
	if errors.Is(err, auth.ErrWeakPassword) {
		return nil, apperrors.NewValidationError(err.Error(), map[string]any{"password": "min"})
	}
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	staff := &domain.StaffMember{
		Name:         strings.TrimSpace(name),
		Email:        strings.TrimSpace(email),
		PasswordHash: hash,
		Role:         role,
		Active:       true,
	}
	if err := s.staff.Create(ctx, staff); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("staff email already exists", map[string]any{"email": staff.Email})
		}
		return nil, apperrors.MapError(err)
	}
	return staff, nil
}

// ListStaffMembers lists staff with filters.
func (s *StaffService) ListStaffMembers(ctx context.Context, actor *domain.StaffMember, filters StaffListFilters) ([]domain.StaffMember, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	members, err := s.staff.List(ctx, repository.StaffFilter{
		Role:   filters.Role,
		Active: filters.Active,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return members, nil
}

// GetStaffMemberByID fetches staff.
func (s *StaffService) GetStaffMemberByID(ctx context.Context, actor *domain.StaffMember, id string) (*domain.StaffMember, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	member, err := s.staff.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "staff member", id)
	}
	return member, nil
}

// UpdateStaffMember updates name, role or active flag.
func (s *StaffService) UpdateStaffMember(ctx context.Context, actor *domain.StaffMember, id string, input StaffUpdateInput) (*domain.StaffMember, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	member, err := s.staff.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "staff member", id)
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperrors.NewValidationError("name cannot be empty", nil)
		}
		member.Name = name
	}
	if input.Role != nil {
		if !input.Role.Valid() {
			return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": *input.Role})
		}
		member.Role = *input.Role
	}
	if input.Active != nil {
		if member.ID == actor.ID && !*input.Active {
			return nil, apperrors.NewConflict("administrators cannot deactivate themselves", nil)
		}
		member.Active = *input.Active
	}
	if err := s.staff.Update(ctx, member); err != nil {
		return nil, mapRepoError(err, "staff member", id)
	}
	return member, nil
}
