// Package apperr maps failures onto the HTTP error taxonomy used by every
// handler and middleware: a status, a stable code and a client-safe message.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Code is a stable error code for programmatic handling by clients.
type Code string

const (
	CodeBadRequest         Code = "BAD_REQUEST"
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeTokenRequired      Code = "TOKEN_REQUIRED"
	CodeTokenExpired       Code = "TOKEN_EXPIRED"
	CodeTokenInvalid       Code = "TOKEN_INVALID"
	CodeAuthRequired       Code = "AUTH_REQUIRED"
	CodeInvalidSession     Code = "INVALID_SESSION"
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeForbidden          Code = "FORBIDDEN"
	CodeNotFound           Code = "NOT_FOUND"
	CodeMethodNotAllowed   Code = "METHOD_NOT_ALLOWED"
	CodeRequestTimeout     Code = "REQUEST_TIMEOUT"
	CodeConflict           Code = "CONFLICT"
	CodeRateLimited        Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal           Code = "INTERNAL_ERROR"
	CodeUnavailable        Code = "SERVICE_UNAVAILABLE"
)

// FieldError is one entry of a validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is a classified failure carrying everything needed to render the
// standard error envelope.
type Error struct {
	Status     int
	Code       Code
	Message    string
	Fields     []FieldError
	RetryAfter time.Duration
	Err        error
	Meta       map[string]any
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// WithMeta attaches metadata rendered alongside the envelope.
func (e *Error) WithMeta(k string, v any) *Error {
	if e.Meta == nil {
		e.Meta = map[string]any{}
	}
	e.Meta[k] = v
	return e
}

// Wrap keeps err in the chain without exposing it to the client.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

func New(status int, code Code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

func BadRequest(message string) *Error {
	return New(http.StatusBadRequest, CodeBadRequest, message)
}

func Validation(fields []FieldError) *Error {
	return &Error{
		Status:  http.StatusUnprocessableEntity,
		Code:    CodeValidation,
		Message: "Validation failed",
		Fields:  fields,
	}
}

func TokenRequired() *Error {
	return New(http.StatusUnauthorized, CodeTokenRequired, "Authentication token required")
}

func TokenExpired() *Error {
	return New(http.StatusUnauthorized, CodeTokenExpired, "Token has expired")
}

func TokenInvalid() *Error {
	return New(http.StatusUnauthorized, CodeTokenInvalid, "Invalid token")
}

func AuthRequired(message string) *Error {
	if message == "" {
		message = "Authentication required"
	}
	return New(http.StatusUnauthorized, CodeAuthRequired, message)
}

func InvalidSession() *Error {
	return New(http.StatusUnauthorized, CodeInvalidSession, "Invalid or expired session")
}

// InvalidCredentials never says which of email or password was wrong.
func InvalidCredentials() *Error {
	return New(http.StatusUnauthorized, CodeInvalidCredentials, "Invalid email or password")
}

func Forbidden(message string) *Error {
	if message == "" {
		message = "Insufficient permissions"
	}
	return New(http.StatusForbidden, CodeForbidden, message)
}

// NotFound builds "<resource> not found", qualified by id when given.
func NotFound(resource, id string) *Error {
	if resource == "" {
		resource = "Resource"
	}
	msg := resource + " not found"
	if id != "" {
		msg = fmt.Sprintf("%s with id %s not found", resource, id)
	}
	e := New(http.StatusNotFound, CodeNotFound, msg)
	if id != "" {
		e.WithMeta("resource", resource).WithMeta("id", id)
	}
	return e
}

func MethodNotAllowed() *Error {
	return New(http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Method not allowed")
}

func RequestTimeout() *Error {
	return New(http.StatusRequestTimeout, CodeRequestTimeout, "Request timeout")
}

func Conflict(message string) *Error {
	return New(http.StatusConflict, CodeConflict, message)
}

func RateLimited(retryAfter time.Duration) *Error {
	return &Error{
		Status:     http.StatusTooManyRequests,
		Code:       CodeRateLimited,
		Message:    "Too many requests, please try again later",
		RetryAfter: retryAfter,
	}
}

func Internal(err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: CodeInternal, Message: "Internal server error", Err: err}
}

func Unavailable(message string) *Error {
	if message == "" {
		message = "Service temporarily unavailable"
	}
	return New(http.StatusServiceUnavailable, CodeUnavailable, message)
}

// FromStatus builds an Error for a bare HTTP status, e.g. one raised by the router.
func FromStatus(status int, message string) *Error {
	if message == "" {
		message = http.StatusText(status)
	}
	return New(status, CodeForStatus(status), message)
}

// CodeForStatus picks the taxonomy code matching an HTTP status.
func CodeForStatus(status int) Code {
	switch status {
	case http.StatusBadRequest:
		return CodeBadRequest
	case http.StatusUnauthorized:
		return CodeAuthRequired
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusMethodNotAllowed:
		return CodeMethodNotAllowed
	case http.StatusRequestTimeout:
		return CodeRequestTimeout
	case http.StatusConflict:
		return CodeConflict
	case http.StatusUnprocessableEntity:
		return CodeValidation
	case http.StatusTooManyRequests:
		return CodeRateLimited
	case http.StatusServiceUnavailable:
		return CodeUnavailable
	}
	if status >= 500 {
		return CodeInternal
	}
	return CodeBadRequest
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	ae, ok := As(err)
	return ok && ae.Code == code
}
