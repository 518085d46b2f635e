package dto

import (
	"time"

	"github.com/spec-kit/intake-desk/internal/domain"
)

// StaffLoginRequest payload.
type StaffLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// PasswordChangeRequest payload for authenticated password changes.
type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

// StaffCreateRequest payload for admins creating desk accounts.
type StaffCreateRequest struct {
	Name     string           `json:"name" validate:"required,not_blank,max=120"`
	Email    string           `json:"email" validate:"required,email"`
	Password string           `json:"password" validate:"required,min=8"`
	Role     domain.StaffRole `json:"role" validate:"omitempty,staff_role"`
}

// StaffUpdateRequest patches a desk account. Omitted fields are left unchanged.
type StaffUpdateRequest struct {
	Name   *string           `json:"name" validate:"omitempty,not_blank,max=120"`
	Role   *domain.StaffRole `json:"role" validate:"omitempty,staff_role"`
	Active *bool             `json:"active"`
}

// AuthResponse carries a bearer token.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StaffResponse represents a desk account without its credentials.
type StaffResponse struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Email     string           `json:"email"`
	Role      domain.StaffRole `json:"role"`
	Active    bool             `json:"active"`
	CreatedAt time.Time        `json:"created_at"`
}

// NewStaffResponse maps a staff member.
func NewStaffResponse(staff *domain.StaffMember) StaffResponse {
	return StaffResponse{
		ID:        staff.ID,
		Name:      staff.Name,
		Email:     staff.Email,
		Role:      staff.Role,
		Active:    staff.Active,
		CreatedAt: staff.CreatedAt,
	}
}
