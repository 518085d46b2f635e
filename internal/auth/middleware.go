package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/intake-desk/internal/domain"
	"github.com/spec-kit/intake-desk/internal/repository"
	apperrors "github.com/spec-kit/intake-desk/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated desk operator.
type Principal struct {
	Staff *domain.StaffMember
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	tokens *TokenManager
	staff  repository.StaffRepository
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, staff repository.StaffRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, staff: staff}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(strings.TrimSpace(parts[1]))
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	staff, err := m.staff.GetByID(c.UserContext(), claims.StaffID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewUnauthorized("staff not found")
		}
		return apperrors.MapError(err)
	}
	if !staff.Active {
		return apperrors.NewUnauthorized("staff inactive")
	}

	c.Locals(principalKey, &Principal{Staff: staff})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok && principal.Staff != nil
}

// StaffFromContext returns the authenticated staff member or an unauthorized error.
func StaffFromContext(c *fiber.Ctx) (*domain.StaffMember, error) {
	principal, ok := PrincipalFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	return principal.Staff, nil
}
