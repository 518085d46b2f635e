package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/spec-kit/intake-desk/internal/auth"
	"github.com/spec-kit/intake-desk/internal/config"
	"github.com/spec-kit/intake-desk/internal/domain"
	"github.com/spec-kit/intake-desk/internal/repository"
	apperrors "github.com/spec-kit/intake-desk/pkg/util/errorutil"
)

// AuthService coordinates staff login.
type AuthService struct {
	staff      repository.StaffRepository
	tokenMgr   *auth.TokenManager
	bcryptCost int
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, staff repository.StaffRepository, tokens *auth.TokenManager) *AuthService {
	return &AuthService{
		staff:      staff,
		tokenMgr:   tokens,
		bcryptCost: cfg.Auth.BcryptCost,
	}
}

// LoginStaff authenticates staff and returns a role-bearing token.
func (s *AuthService) LoginStaff(ctx context.Context, email, password string) (*domain.StaffMember, string, time.Time, error) {
	staff, err := s.staff.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, "", time.Time{}, apperrors.MapError(err)
	}
	if err := auth.ComparePassword(staff.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}
	if !staff.Active {
		return nil, "", time.Time{}, apperrors.NewForbidden("staff account is inactive")
	}
	if auth.NeedsRehash(staff.PasswordHash, s.bcryptCost) {
		// A failed upgrade keeps the old hash, which still verifies.
		if hash, err := auth.HashPassword(password, s.bcryptCost); err == nil {
			staff.PasswordHash = hash
			_ = s.staff.Update(ctx, staff)
		}
	}
	token, exp, err := s.tokenMgr.GenerateToken(staff.ID, staff.Role)
	if err != nil {
		return nil, "", time.Time{}, apperrors.NewInternalError(err)
	}
	return staff, token, exp, nil
}

// ChangePassword verifies the current password before storing a new hash.
func (s *AuthService) ChangePassword(ctx context.Context, actor *domain.StaffMember, currentPassword, newPassword string) error {
	if actor == nil {
		return apperrors.NewUnauthorized("staff required")
	}
	if err := auth.ComparePassword(actor.PasswordHash, currentPassword); err != nil {
		return apperrors.NewUnauthorized("current password is incorrect")
	}
	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if errors.Is(err, auth.ErrWeakPassword) {
		return apperrors.NewValidationError(err.Error(), map[string]any{"new_password": "min"})
	}
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	actor.PasswordHash = hash
	if err := s.staff.Update(ctx, actor); err != nil {
		return mapRepoError(err, "staff member", actor.ID)
	}
	return nil
}
