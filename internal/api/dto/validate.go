package dto

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/spec-kit/intake-desk/internal/domain"
	apperrors "github.com/spec-kit/intake-desk/pkg/util/errorutil"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("not_blank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("ticket_status", func(fl validator.FieldLevel) bool {
		return domain.TicketStatus(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("ticket_priority", func(fl validator.FieldLevel) bool {
		return domain.TicketPriority(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("staff_role", func(fl validator.FieldLevel) bool {
		return domain.StaffRole(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("conversation_status", func(fl validator.FieldLevel) bool {
		return domain.ConversationStatus(fl.Field().String()).Valid()
	})
	return v
}

// Validate checks struct tags on a request and reports failures as a validation error
// whose details map each offending field to the rule it broke.
func Validate(input any) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	details := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = fe.Tag()
	}
	return apperrors.NewValidationError("invalid payload", details)
}
