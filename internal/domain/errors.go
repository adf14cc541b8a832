package domain

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by quest, task and verification operations.
// Callers classify failures with errors.Is; the transport layer maps each
// kind to a status code.
var (
	// ErrBadRequest indicates missing or malformed caller input.
	ErrBadRequest = errors.New("bad request")

	// ErrNotFound indicates the referenced quest or task does not exist for
	// the caller. A resource owned by someone else is reported the same way.
	ErrNotFound = errors.New("not found")

	// ErrVerificationRejected indicates the classifier did not accept the
	// submitted proof. It is a legitimate negative outcome, not a fault.
	ErrVerificationRejected = errors.New("verification rejected")

	// ErrClassifierUnavailable indicates the vision classifier failed,
	// timed out or returned no content.
	ErrClassifierUnavailable = errors.New("classifier unavailable")

	// ErrQuotaExhausted indicates the caller has no retry chances left for
	// the current quarter.
	ErrQuotaExhausted = errors.New("no retry chances left")

	// ErrPersistence indicates the underlying store failed.
	ErrPersistence = errors.New("persistence failure")

	// ErrTaskNotEligible indicates the task is not in a state that accepts
	// proof (it must be completed, and unverified for a first attempt).
	ErrTaskNotEligible = errors.New("task not eligible for verification")

	// ErrConflict indicates the write would break a uniqueness rule, such as
	// a second main quest in the same quarter.
	ErrConflict = errors.New("conflict")
)

// RejectionError carries the raw classifier analysis for a rejected proof
// so it can be shown back to the user.
type RejectionError struct {
	// Analysis is the verbatim classifier output.
	Analysis string
}

// Error implements the error interface for RejectionError.
func (e *RejectionError) Error() string {
	return "proof was not accepted as evidence of completion"
}

// Unwrap returns ErrVerificationRejected.
func (e *RejectionError) Unwrap() error { return ErrVerificationRejected }

// NewRejectionError creates a RejectionError holding the given analysis.
func NewRejectionError(analysis string) *RejectionError {
	return &RejectionError{Analysis: analysis}
}

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures and always unwraps to
// ErrBadRequest.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// Unwrap returns ErrBadRequest.
func (e *ValidationError) Unwrap() error { return ErrBadRequest }

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}

// BadRequest is shorthand for a single-message ValidationError.
func BadRequest(entity, msg string) *ValidationError {
	return &ValidationError{Entity: entity, Errors: []string{msg}}
}
