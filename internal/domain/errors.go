package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the API and the worker. Admission errors are
// returned synchronously; execution errors only surface through job state.
var (
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("forbidden")
	ErrConflict             = errors.New("conflict")
	ErrRetryableUnavailable = errors.New("temporarily unavailable")
	ErrUnprocessableContent = errors.New("unprocessable content")
	ErrSchemaViolation      = errors.New("response violates schema")
	ErrInfrastructure       = errors.New("infrastructure failure")
	ErrValidation           = errors.New("validation failed")
	ErrUnauthorized         = errors.New("unauthorized")
)

// Error attaches a caller-facing message to one of the sentinel kinds.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches the sentinel kind, so errors.Is(err, ErrConflict) works through Error.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound returns an ErrNotFound with message.
func NotFound(format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

// Forbidden returns an ErrForbidden with message.
func Forbidden(format string, args ...any) error {
	return &Error{Kind: ErrForbidden, Message: fmt.Sprintf(format, args...)}
}

// Conflict returns an ErrConflict with message.
func Conflict(format string, args ...any) error {
	return &Error{Kind: ErrConflict, Message: fmt.Sprintf(format, args...)}
}

// Unprocessable returns an ErrUnprocessableContent with message.
func Unprocessable(format string, args ...any) error {
	return &Error{Kind: ErrUnprocessableContent, Message: fmt.Sprintf(format, args...)}
}

// Unavailable returns an ErrRetryableUnavailable wrapping cause.
func Unavailable(cause error, format string, args ...any) error {
	return &Error{Kind: ErrRetryableUnavailable, Message: fmt.Sprintf(format, args...), Err: cause}
}

// SchemaViolation returns an ErrSchemaViolation wrapping cause.
func SchemaViolation(cause error, format string, args ...any) error {
	return &Error{Kind: ErrSchemaViolation, Message: fmt.Sprintf(format, args...), Err: cause}
}

// Infrastructure returns an ErrInfrastructure wrapping cause.
func Infrastructure(cause error, format string, args ...any) error {
	return &Error{Kind: ErrInfrastructure, Message: fmt.Sprintf(format, args...), Err: cause}
}

// MessageOf returns the caller-facing message of err, or fallback.
func MessageOf(err error, fallback string) string {
	var de *Error
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return fallback
}

// RetryableError wraps transient errors the queue runtime may retry.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err carries a RetryableError.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
