package domain

import "time"

// StaffRole enumerates desk operator roles.
type StaffRole string

const (
	StaffRoleAgent StaffRole = "AGENT"
	StaffRoleAdmin StaffRole = "ADMIN"
)

// Valid reports whether r is a known role.
func (r StaffRole) Valid() bool {
	return r == StaffRoleAgent || r == StaffRoleAdmin
}

// StaffMember models a desk agent or administrator.
type StaffMember struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         StaffRole
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsAdmin reports whether the member holds the administrator role.
func (s *StaffMember) IsAdmin() bool {
	return s != nil && s.Role == StaffRoleAdmin
}
