// Package apperr provides the typed error taxonomy shared by the lead protection core
// and its HTTP surface. Services return these errors; the HTTP layer maps each Kind
// onto exactly one status code.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind represents the category of error.
type Kind int

const (
	// KindUnknown is the default error kind when none is specified.
	KindUnknown Kind = iota
	// KindNotFound indicates a resource was not found.
	KindNotFound
	// KindValidation indicates invalid input data.
	KindValidation
	// KindConflict indicates a stale version write (optimistic concurrency).
	KindConflict
	// KindForbidden indicates the access guard denied the request.
	KindForbidden
	// KindUnauthorized indicates authentication is required or failed.
	KindUnauthorized
	// KindBadRequest indicates a malformed request.
	KindBadRequest
	// KindInvalidTransition indicates a state machine or stage violation.
	KindInvalidTransition
	// KindAuditWrite indicates the audit append failed and the write was rolled back.
	KindAuditWrite
	// KindTransient indicates a retry budget was exhausted.
	KindTransient
	// KindInternal indicates an unexpected internal error.
	KindInternal
)

var kindNames = map[Kind]string{
	KindUnknown:           "unknown",
	KindNotFound:          "not_found",
	KindValidation:        "validation",
	KindConflict:          "concurrency_conflict",
	KindForbidden:         "access_denied",
	KindUnauthorized:      "unauthorized",
	KindBadRequest:        "bad_request",
	KindInvalidTransition: "invalid_transition",
	KindAuditWrite:        "audit_write_failure",
	KindTransient:         "transient_failure",
	KindInternal:          "internal",
}

// String returns the stable machine-readable name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

// Error carries a Kind for HTTP mapping. Message is safe to show to callers;
// Err is the internal cause and is never serialised.
type Error struct {
	Kind    Kind
	Message string
	Err     error
	Details interface{}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code for this error kind.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation, KindBadRequest:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindForbidden:
		return http.StatusForbidden
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindInvalidTransition:
		return http.StatusUnprocessableEntity
	case KindTransient:
		return http.StatusServiceUnavailable
	case KindAuditWrite, KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// New creates a new domain error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a new domain error wrapping an existing error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithDetails returns the error with additional details.
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// NotFound creates a not found error.
func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

// Validation creates a validation error.
func Validation(message string) *Error {
	return New(KindValidation, message)
}

// Conflict creates a concurrency conflict error.
func Conflict(message string) *Error {
	return New(KindConflict, message)
}

// Forbidden creates an access denied error.
func Forbidden(message string) *Error {
	return New(KindForbidden, message)
}

// InvalidTransition creates a state machine violation error.
func InvalidTransition(message string) *Error {
	return New(KindInvalidTransition, message)
}

// AuditWrite wraps a failed audit append.
func AuditWrite(err error) *Error {
	return Wrap(KindAuditWrite, "audit append failed, write rejected", err)
}

// Transient wraps the last error seen before a retry budget ran out.
func Transient(message string, err error) *Error {
	return Wrap(KindTransient, message, err)
}

// GetKind extracts the error kind from anywhere in the error chain.
// Returns KindUnknown if no *Error is found.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is checks if err carries an *Error with the given kind.
func Is(err error, kind Kind) bool {
	return GetKind(err) == kind
}
