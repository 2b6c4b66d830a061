package utils

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies dispatch failures so the boundary layer can choose a response.
type ErrorKind string

const (
	KindNotFound         ErrorKind = "NOT_FOUND"
	KindForbidden        ErrorKind = "FORBIDDEN"
	KindInvalidState     ErrorKind = "INVALID_STATE"
	KindAlreadyActive    ErrorKind = "ALREADY_ACTIVE"
	KindValidationFailed ErrorKind = "VALIDATION_FAILED"
	KindUnavailable      ErrorKind = "UNAVAILABLE"
)

// DispatchError represents a recoverable, typed outcome of an engine operation
type DispatchError struct {
	Kind    ErrorKind         `json:"kind"`
	Message string            `json:"message"`
	Details []ValidationError `json:"details,omitempty"`
	Cause   error             `json:"-"` // Original error, not exposed in JSON
}

func (e *DispatchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error
func (e *DispatchError) Unwrap() error {
	return e.Cause
}

// StatusCode maps the kind to an HTTP status
func (e *DispatchError) StatusCode() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidState, KindAlreadyActive:
		return http.StatusConflict
	case KindValidationFailed:
		return http.StatusBadRequest
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func NewNotFoundError(resource string) error {
	return &DispatchError{Kind: KindNotFound, Message: fmt.Sprintf("%s not found", resource)}
}

func NewForbiddenError(message string) error {
	return &DispatchError{Kind: KindForbidden, Message: message}
}

func NewInvalidStateError(message string) error {
	return &DispatchError{Kind: KindInvalidState, Message: message}
}

func NewAlreadyActiveError() error {
	return &DispatchError{Kind: KindAlreadyActive, Message: "You already have an active SOS alert"}
}

func NewValidationError(message string, details []ValidationError) error {
	return &DispatchError{Kind: KindValidationFailed, Message: message, Details: details}
}

// NewUnavailableError wraps a store or directory I/O failure
func NewUnavailableError(operation string, cause error) error {
	return &DispatchError{
		Kind:    KindUnavailable,
		Message: fmt.Sprintf("%s failed", operation),
		Cause:   cause,
	}
}

// AsDispatchError extracts a DispatchError anywhere in the chain
func AsDispatchError(err error) (*DispatchError, bool) {
	var de *DispatchError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

func IsKind(err error, kind ErrorKind) bool {
	de, ok := AsDispatchError(err)
	return ok && de.Kind == kind
}
