package errx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
	// PostgresErrorMessage describes Postgres related failures.
	PostgresErrorMessage = "postgres operation failed"
)

// Error kinds. Every AppError carries exactly one of these so callers can
// branch with errors.Is without inspecting messages.
var (
	ErrActionValidation   = errors.New("action validation failed")
	ErrActionLookup       = errors.New("action not found")
	ErrActionExecution    = errors.New("action execution failed")
	ErrResponseContract   = errors.New("response contract violated")
	ErrResponseParse      = errors.New("response is not well-formed")
	ErrKnowledgeRetrieval = errors.New("knowledge retrieval failed")
	ErrModelInvocation    = errors.New("model invocation failed")
	ErrTimeout            = errors.New("operation timed out")
	ErrSessionNotFound    = errors.New("session not found")
	ErrStore              = errors.New("store operation failed")
)

// AppError wraps an underlying error with a kind, an HTTP status and a safe message.
type AppError struct {
	Kind    error
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the error kind or matches the underlying error.
func (e *AppError) Is(target error) bool {
	if e.Kind != nil && target == e.Kind {
		return true
	}
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return errors.As(e.Err, target)
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// WithKind creates an AppError of the given kind. Status and message are
// derived from the kind.
func WithKind(kind error, err error) *AppError {
	status, message := describe(kind)
	return &AppError{
		Kind:    kind,
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// FieldError names the first field that failed validation.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}

// Field wraps a FieldError into an AppError of the given kind.
func Field(kind error, field, reason string) *AppError {
	return WithKind(kind, &FieldError{Field: field, Reason: reason})
}

// FieldOf returns the offending field name carried by err, if any.
func FieldOf(err error) (string, bool) {
	var fe *FieldError
	if errors.As(err, &fe) {
		return fe.Field, true
	}
	return "", false
}

// FromContext classifies err raised while calling an external service.
// Deadline expiry becomes ErrTimeout; everything else keeps the given kind.
func FromContext(kind error, err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Kind != nil {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return WithKind(ErrTimeout, fmt.Errorf("%w: %w", kind, err))
	}
	return WithKind(kind, err)
}

// KindOf returns the kind of err, or nil when err is not an AppError.
func KindOf(err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return nil
}

func describe(kind error) (int, string) {
	switch kind {
	case ErrActionValidation:
		return http.StatusUnprocessableEntity, "invalid action parameters"
	case ErrActionLookup:
		return http.StatusNotFound, "unknown action"
	case ErrActionExecution:
		return http.StatusInternalServerError, "action failed"
	case ErrResponseContract:
		return http.StatusBadGateway, "model response violated the response contract"
	case ErrResponseParse:
		return http.StatusBadGateway, "model response is not valid structured data"
	case ErrKnowledgeRetrieval:
		return http.StatusServiceUnavailable, "knowledge retrieval unavailable"
	case ErrModelInvocation:
		return http.StatusServiceUnavailable, "inference service unavailable"
	case ErrTimeout:
		return http.StatusGatewayTimeout, "upstream service timed out"
	case ErrSessionNotFound:
		return http.StatusNotFound, "session not found"
	case ErrStore:
		return http.StatusBadGateway, "store operation failed"
	default:
		return http.StatusInternalServerError, SystemErrorMessage
	}
}
