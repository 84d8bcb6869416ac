package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error codes
const (
	// Auth errors
	CodeUnauthorized = "UNAUTHORIZED"
	CodeInvalidToken = "INVALID_TOKEN"

	// Validation errors
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeBadRequest       = "BAD_REQUEST"
	CodeInvalidInput     = "INVALID_INPUT"

	// Resource errors
	CodeNotFound = "NOT_FOUND"
	CodeConflict = "CONFLICT"

	// Availability
	CodeRateLimited        = "RATE_LIMITED"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"

	// Backends
	CodeDatabaseError = "DATABASE_ERROR"

	// Internal errors
	CodeInternalError = "INTERNAL_ERROR"
	CodeConfigError   = "CONFIG_ERROR"
)

// AppError is an error with a stable code and the HTTP status it maps to.
// CLI commands only use the code and message.
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithError attaches the underlying cause.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

func (e *AppError) HTTPStatus() int { return e.Status }

func New(code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, Status: status}
}

func Unauthorized(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return New(CodeUnauthorized, message, http.StatusUnauthorized)
}

func InvalidToken(message string) *AppError {
	return New(CodeInvalidToken, message, http.StatusUnauthorized)
}

func BadRequest(message string) *AppError {
	return New(CodeBadRequest, message, http.StatusBadRequest)
}

func ValidationFailed(message string) *AppError {
	return New(CodeValidationFailed, message, http.StatusBadRequest)
}

func InvalidInput(field, reason string) *AppError {
	return New(CodeInvalidInput, fmt.Sprintf("invalid input for '%s': %s", field, reason), http.StatusBadRequest).
		WithDetail("field", field)
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, resource+" not found", http.StatusNotFound)
}

// RateLimited carries the wait in seconds for Retry-After.
func RateLimited(retryAfter time.Duration) *AppError {
	secs := int(retryAfter.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return New(CodeRateLimited, "rate limit exceeded", http.StatusTooManyRequests).
		WithDetail("retry_after", secs)
}

// ServiceUnavailable reports an optional backend that is not configured.
func ServiceUnavailable(feature string) *AppError {
	return New(CodeServiceUnavailable, feature+" is not configured", http.StatusServiceUnavailable).
		WithDetail("feature", feature)
}

func DatabaseError(operation string, err error) *AppError {
	return New(CodeDatabaseError, "database error: "+operation, http.StatusInternalServerError).WithError(err)
}

func Internal(message string) *AppError {
	if message == "" {
		message = "internal server error"
	}
	return New(CodeInternalError, message, http.StatusInternalServerError)
}

// ConfigError aborts a command before any work starts.
func ConfigError(message string) *AppError {
	return New(CodeConfigError, message, http.StatusInternalServerError)
}

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func IsCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// AsAppError unwraps err to an AppError, treating anything else as internal.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("").WithError(err)
}

func GetHTTPStatus(err error) int {
	return AsAppError(err).Status
}
