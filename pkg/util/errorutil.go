package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"

	"github.com/superpool/dispute-service/internal/domain"
)

// Error codes returned in API error envelopes.
const (
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeInvalidTransition   = "INVALID_TRANSITION"
	CodeNoAgentAvailable    = "NO_AGENT_AVAILABLE"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	CodeNotFound            = "NOT_FOUND"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeInternal            = "INTERNAL_ERROR"
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
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
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

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts lifecycle and storage errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}

	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		details := make(map[string]any, len(validation.Fields))
		for field, reason := range validation.Fields {
			details[field] = reason
		}
		return &DomainError{Code: CodeValidationFailed, Message: "validation failed", HTTPStatus: http.StatusBadRequest, Details: details, Err: err}
	}

	var transition *domain.TransitionError
	if errors.As(err, &transition) {
		return &DomainError{
			Code:       CodeInvalidTransition,
			Message:    fmt.Sprintf("cannot %s ticket in status %s", transition.Op, transition.From),
			HTTPStatus: http.StatusConflict,
			Details:    map[string]any{"operation": transition.Op, "status": string(transition.From)},
			Err:        err,
		}
	}

	switch {
	case errors.Is(err, domain.ErrValidation):
		return &DomainError{Code: CodeValidationFailed, Message: "validation failed", HTTPStatus: http.StatusBadRequest, Err: err}
	case errors.Is(err, domain.ErrInvalidTransition):
		return &DomainError{Code: CodeInvalidTransition, Message: "status transition not allowed", HTTPStatus: http.StatusConflict, Err: err}
	case errors.Is(err, domain.ErrNoAgentAvailable):
		return &DomainError{Code: CodeNoAgentAvailable, Message: "no agent is available to take the ticket", HTTPStatus: http.StatusConflict, Err: err}
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return &DomainError{Code: CodeConcurrencyConflict, Message: "ticket was modified concurrently, retry", HTTPStatus: http.StatusConflict, Err: err}
	case errors.Is(err, domain.ErrForbidden):
		return &DomainError{Code: CodeForbidden, Message: "access denied", HTTPStatus: http.StatusForbidden, Err: err}
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, pgx.ErrNoRows):
		return &DomainError{Code: CodeNotFound, Message: "resource not found", HTTPStatus: http.StatusNotFound, Details: map[string]any{}, Err: err}
	}

	if de, ok := NewInternalError(err).(*DomainError); ok {
		return de
	}
	return &DomainError{Code: CodeInternal, Message: "internal server error", HTTPStatus: http.StatusInternalServerError, Err: err}
}

// MapError is ToDomainError typed as error.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}
