package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes shared by services and the HTTP layer.
const (
	CodeValidation   = "VALIDATION_FAILED"
	CodeNotFound     = "NOT_FOUND"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeConflict     = "CONFLICT"
	CodeTicketLocked = "TICKET_LOCKED"
	CodeClosed       = "ALREADY_CLOSED"
	CodeIntegrity    = "INTEGRITY_VIOLATION"
	CodeInternal     = "INTERNAL_ERROR"
	CodeRateLimited  = "RATE_LIMITED"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

// NewTicketLocked reports a claim held by another active agent.
func NewTicketLocked(holderID, holderName string, remainingSeconds int) error {
	name := holderName
	if name == "" {
		name = holderID
	}
	return NewDomainError(CodeTicketLocked,
		fmt.Sprintf("ticket is being handled by %s", name),
		http.StatusLocked,
		map[string]any{
			"locked_by":         holderID,
			"locked_by_name":    holderName,
			"remaining_seconds": remainingSeconds,
		})
}

// NewAlreadyClosed rejects lock, assignment or closing on a CLOSED ticket.
func NewAlreadyClosed(ticketNumber string) error {
	return NewDomainError(CodeClosed, "ticket is already closed", http.StatusConflict,
		map[string]any{"ticket_number": ticketNumber})
}

// NewIntegrityViolation signals broken stored invariants.
func NewIntegrityViolation(message string, err error) error {
	return &DomainError{
		Code:       CodeIntegrity,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewRateLimited rejects a caller that exceeded its request budget.
func NewRateLimited() error {
	return NewDomainError(CodeRateLimited, "too many requests", http.StatusTooManyRequests, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err carries a DomainError with the given code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		return false
	}
	return domainErr.Code == code
}

// MapError is ToDomainError returning a plain error, nil-safe.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}
