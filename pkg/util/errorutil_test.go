package util

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superpool/dispute-service/internal/domain"
)

func TestToDomainError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"validation", &domain.ValidationError{Fields: map[string]string{"priority": "required"}}, CodeValidationFailed, http.StatusBadRequest},
		{"transition", &domain.TransitionError{Op: "close", From: domain.TicketStatusOpen}, CodeInvalidTransition, http.StatusConflict},
		{"wrapped transition", fmt.Errorf("ticket t1: %w", domain.ErrInvalidTransition), CodeInvalidTransition, http.StatusConflict},
		{"no agent", domain.ErrNoAgentAvailable, CodeNoAgentAvailable, http.StatusConflict},
		{"conflict", fmt.Errorf("stale: %w", domain.ErrConcurrencyConflict), CodeConcurrencyConflict, http.StatusConflict},
		{"not found", fmt.Errorf("ticket x: %w", domain.ErrNotFound), CodeNotFound, http.StatusNotFound},
		{"forbidden", fmt.Errorf("ticket t1: %w", domain.ErrForbidden), CodeForbidden, http.StatusForbidden},
		{"no rows", pgx.ErrNoRows, CodeNotFound, http.StatusNotFound},
		{"unknown", errors.New("boom"), CodeInternal, http.StatusInternalServerError},
		{"already mapped", NewForbidden("nope"), CodeForbidden, http.StatusForbidden},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			de := ToDomainError(tc.err)
			require.NotNil(t, de)
			assert.Equal(t, tc.code, de.Code)
			assert.Equal(t, tc.status, de.HTTPStatus)
		})
	}
	assert.Nil(t, ToDomainError(nil))
	assert.NoError(t, MapError(nil))
}

func TestToDomainErrorCarriesDetails(t *testing.T) {
	de := ToDomainError(&domain.ValidationError{Fields: map[string]string{"description": "required"}})
	assert.Equal(t, "required", de.Details["description"])
	assert.True(t, errors.Is(de, domain.ErrValidation))

	de = ToDomainError(&domain.TransitionError{Op: "resolve", From: domain.TicketStatusClosed})
	assert.Equal(t, "CLOSED", de.Details["status"])
	assert.Equal(t, "resolve", de.Details["operation"])
}
