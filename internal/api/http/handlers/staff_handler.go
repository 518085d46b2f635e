package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/intake-desk/internal/api/dto"
	"github.com/spec-kit/intake-desk/internal/auth"
	"github.com/spec-kit/intake-desk/internal/domain"
	"github.com/spec-kit/intake-desk/internal/service"
)

// StaffHandler exposes staff login and account administration.
type StaffHandler struct {
	authService  *service.AuthService
	staffService *service.StaffService
}

// NewStaffHandler constructs handler.
func NewStaffHandler(authService *service.AuthService, staffService *service.StaffService) *StaffHandler {
	return &StaffHandler{authService: authService, staffService: staffService}
}

// Login handles POST /auth/staff/login.
func (h *StaffHandler) Login(c *fiber.Ctx) error {
	var req dto.StaffLoginRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	staff, token, exp, err := h.authService.LoginStaff(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"staff": dto.NewStaffResponse(staff),
			"auth":  dto.AuthResponse{Token: token, ExpiresAt: exp},
		},
	})
}

// Me handles GET /api/staff/me.
func (h *StaffHandler) Me(c *fiber.Ctx) error {
	actor, err := auth.StaffFromContext(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewStaffResponse(actor)})
}

// ChangePassword handles POST /api/staff/me/password.
func (h *StaffHandler) ChangePassword(c *fiber.Ctx) error {
	actor, err := auth.StaffFromContext(c)
	if err != nil {
		return err
	}
	var req dto.PasswordChangeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.authService.ChangePassword(c.UserContext(), actor, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"status": "password_changed"}})
}

// CreateStaff handles POST /api/staff.
func (h *StaffHandler) CreateStaff(c *fiber.Ctx) error {
	actor, err := auth.StaffFromContext(c)
	if err != nil {
		return err
	}
	var req dto.StaffCreateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	role := req.Role
	if role == "" {
		role = domain.StaffRoleAgent
	}
	staff, err := h.staffService.CreateStaffMember(c.UserContext(), actor, req.Name, req.Email, req.Password, role)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewStaffResponse(staff)})
}

// ListStaff handles GET /api/staff.
func (h *StaffHandler) ListStaff(c *fiber.Ctx) error {
	actor, err := auth.StaffFromContext(c)
	if err != nil {
		return err
	}
	var filters service.StaffListFilters
	if role := c.Query("role"); role != "" {
		r := domain.StaffRole(role)
		filters.Role = &r
	}
	filters.Active = parseBoolQuery(c, "active")
	filters.Limit, filters.Offset = parsePage(c)
	list, err := h.staffService.ListStaffMembers(c.UserContext(), actor, filters)
	if err != nil {
		return err
	}
	resp := make([]dto.StaffResponse, 0, len(list))
	for i := range list {
		resp = append(resp, dto.NewStaffResponse(&list[i]))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// GetStaff handles GET /api/staff/:id.
func (h *StaffHandler) GetStaff(c *fiber.Ctx) error {
	actor, err := auth.StaffFromContext(c)
	if err != nil {
		return err
	}
	staff, err := h.staffService.GetStaffMemberByID(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewStaffResponse(staff)})
}

// UpdateStaff handles PATCH /api/staff/:id.
func (h *StaffHandler) UpdateStaff(c *fiber.Ctx) error {
	actor, err := auth.StaffFromContext(c)
	if err != nil {
		return err
	}
	var req dto.StaffUpdateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	updated, err := h.staffService.UpdateStaffMember(c.UserContext(), actor, c.Params("id"), service.StaffUpdateInput{
		Name:   req.Name,
		Role:   req.Role,
		Active: req.Active,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewStaffResponse(updated)})
}
