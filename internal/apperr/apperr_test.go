package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaxonomyStatuses(t *testing.T) {
	tests := []struct {
		name   string
		err    *Error
		status int
		code   Code
	}{
		{"validation", Validation(nil), http.StatusUnprocessableEntity, CodeValidation},
		{"token required", TokenRequired(), http.StatusUnauthorized, CodeTokenRequired},
		{"token expired", TokenExpired(), http.StatusUnauthorized, CodeTokenExpired},
		{"token invalid", TokenInvalid(), http.StatusUnauthorized, CodeTokenInvalid},
		{"auth required", AuthRequired(""), http.StatusUnauthorized, CodeAuthRequired},
		{"invalid session", InvalidSession(), http.StatusUnauthorized, CodeInvalidSession},
		{"forbidden", Forbidden(""), http.StatusForbidden, CodeForbidden},
		{"not found", NotFound("Role", ""), http.StatusNotFound, CodeNotFound},
		{"method", MethodNotAllowed(), http.StatusMethodNotAllowed, CodeMethodNotAllowed},
		{"timeout", RequestTimeout(), http.StatusRequestTimeout, CodeRequestTimeout},
		{"conflict", Conflict("dup"), http.StatusConflict, CodeConflict},
		{"rate", RateLimited(time.Minute), http.StatusTooManyRequests, CodeRateLimited},
		{"internal", Internal(errors.New("boom")), http.StatusInternalServerError, CodeInternal},
		{"unavailable", Unavailable(""), http.StatusServiceUnavailable, CodeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.Status)
			assert.Equal(t, tt.code, tt.err.Code)
		})
	}
}

func TestNotFoundQualified(t *testing.T) {
	err := NotFound("Role", "42")
	assert.Equal(t, "Role with id 42 not found", err.Message)
	assert.Equal(t, "42", err.Meta["id"])
}

func TestAsThroughWrapping(t *testing.T) {
	base := Conflict("Email already registered")
	wrapped := fmt.Errorf("register: %w", base)

	got, ok := As(wrapped)
	require.True(t, ok)
	assert.Same(t, base, got)
	assert.True(t, IsCode(wrapped, CodeConflict))
	assert.False(t, IsCode(errors.New("plain"), CodeConflict))
}

func TestInternalKeepsCause(t *testing.T) {
	cause := errors.New("db down")
	err := Internal(cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Internal server error", err.Message)
}

func TestCodeForStatus(t *testing.T) {
	assert.Equal(t, CodeNotFound, CodeForStatus(http.StatusNotFound))
	assert.Equal(t, CodeInternal, CodeForStatus(http.StatusBadGateway))
	assert.Equal(t, CodeBadRequest, CodeForStatus(http.StatusTeapot))
	assert.Equal(t, "Not Found", FromStatus(http.StatusNotFound, "").Message)
}
