// README: Error taxonomy shared by all modules (validation, not found, conflict, collaborator).
package types

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks malformed or rule-violating input. Never retried.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a missing cost, offer, settings version or route.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a lost optimistic-concurrency race.
	ErrConflict = errors.New("concurrent modification")
	// ErrCollaborator marks a failed or timed-out external dependency.
	ErrCollaborator = errors.New("collaborator error")
)

// ValidationError carries every problem found while validating one input.
type ValidationError struct {
	Problems []string
}

func NewValidationError(problems ...string) *ValidationError {
	return &ValidationError{Problems: problems}
}

func (e *ValidationError) Add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

func (e *ValidationError) HasProblems() bool {
	return e != nil && len(e.Problems) > 0
}

// OrNil returns nil when nothing was recorded, so callers can `return v.OrNil()`.
func (e *ValidationError) OrNil() error {
	if !e.HasProblems() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a single-problem error that matches ErrValidation.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %w", ErrValidation, NewValidationError(fmt.Sprintf(format, args...)))
}

// CollaboratorError wraps a failure from an external dependency (location, toll API, AI).
type CollaboratorError struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s collaborator: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorError) Unwrap() []error { return []error{ErrCollaborator, e.Err} }

func NewCollaboratorError(name string, err error) error {
	return &CollaboratorError{Collaborator: name, Err: err}
}
