// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")
	ErrAlreadyDecided  = errors.New("already decided")
	ErrDuplicate       = errors.New("duplicate request")

	// Consistency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrInconsistency          = errors.New("propagation inconsistency")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "learner", "progression"
	Op      string // Operation that failed, e.g., "Request", "Review"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Learner domain errors
var (
	ErrLearnerNotFound      = NewDomainError("learner", "Find", ErrNotFound, "learner profile not found")
	ErrLearnerAlreadyExists = NewDomainError("learner", "Enroll", ErrAlreadyExists, "learner already enrolled")
	ErrInvalidLearnerID     = NewDomainError("learner", "Validate", ErrInvalidID, "invalid learner ID")
	ErrProfileConflict      = NewDomainError("learner", "Save", ErrConcurrentModification, "profile changed since it was loaded")
)

// Progression domain errors
var (
	ErrUnknownRole           = NewDomainError("progression", "Lookup", ErrInvalidInput, "role is not in the catalog")
	ErrTransitionNotFound    = NewDomainError("progression", "Find", ErrNotFound, "transition record not found")
	ErrDuplicateRequest      = NewDomainError("progression", "Request", ErrDuplicate, "a pending transition already exists for this learner")
	ErrTransitionDecided     = NewDomainError("progression", "Review", ErrAlreadyDecided, "transition has already been decided")
	ErrInvalidDecision       = NewDomainError("progression", "Review", ErrInvalidInput, "unknown review decision")
	ErrRolePropagationFailed = NewDomainError("progression", "Propagate", ErrInconsistency, "role update was not applied to all records")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicate checks if the error is a duplicate-request conflict.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// IsAlreadyDecided checks if the error is a terminal-record re-review.
func IsAlreadyDecided(err error) bool {
	return errors.Is(err, ErrAlreadyDecided)
}

// IsConcurrentModification checks if the error is an optimistic-write conflict.
func IsConcurrentModification(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsInconsistency checks if the error is a partial propagation.
// These must be reconciled manually, never retried blindly.
func IsInconsistency(err error) bool {
	return errors.Is(err, ErrInconsistency)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
