package models

import (
	"errors"
	"fmt"
)

// ErrorKind is the structured failure taxonomy surfaced at the API boundary.
type ErrorKind string

const (
	KindNotFound               ErrorKind = "NOT_FOUND"
	KindInvalidInput           ErrorKind = "INVALID_INPUT"
	KindUnauthorized           ErrorKind = "UNAUTHORIZED"
	KindForbidden              ErrorKind = "FORBIDDEN"
	KindInvalidStateTransition ErrorKind = "INVALID_STATE_TRANSITION"
	KindProofRequired          ErrorKind = "PROOF_REQUIRED"
	KindConflict               ErrorKind = "CONFLICT"
	KindDependencyUnavailable  ErrorKind = "DEPENDENCY_UNAVAILABLE"
	KindRateLimited            ErrorKind = "RATE_LIMITED"
	KindInternal               ErrorKind = "INTERNAL"
)

// AppError is a kind-tagged error. User-triggered errors surface with their
// kind at the API boundary; internal details never leak to the caller.
type AppError struct {
	Kind    ErrorKind
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// E builds an AppError with the given kind and message.
func E(kind ErrorKind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

// Ef builds an AppError with a formatted message.
func Ef(kind ErrorKind, format string, args ...interface{}) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches an underlying cause to an AppError.
func Wrap(kind ErrorKind, message string, err error) *AppError {
	return &AppError{Kind: kind, Message: message, Err: err}
}

// WithDetails attaches structured details for the caller.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// KindOf extracts the error kind, defaulting to INTERNAL for unexpected errors.
func KindOf(err error) ErrorKind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// ErrTransitionConflict is the sentinel for an optimistic-concurrency loss on a
// complaint row. Callers retry up to the configured limit.
var ErrTransitionConflict = E(KindConflict, "complaint was modified concurrently, retry")

// InvalidTransition builds the structured refusal for an illegal transition,
// carrying from-state, to-state, and complaint id.
func InvalidTransition(complaintID int64, from, to ComplaintState) *AppError {
	return Ef(KindInvalidStateTransition, "transition %s -> %s is not allowed", from, to).
		WithDetails(map[string]interface{}{
			"complaint_id": complaintID,
			"from_state":   string(from),
			"to_state":     string(to),
		})
}
