package engine

import (
	"errors"
	"fmt"

	"asylum/internal/descriptor"
	"asylum/internal/domain"
	"asylum/internal/repo"
)

var (
	// ErrExisted reports a uniqueness or exclusivity conflict.
	ErrExisted = errors.New("already exists")
	// ErrAlreadyAssigned is the assignment flavour of ErrExisted.
	ErrAlreadyAssigned = fmt.Errorf("task already assigned: %w", ErrExisted)
	// ErrMutationNotAllowed reports a mutation rejected by current state.
	ErrMutationNotAllowed = errors.New("mutation not allowed")
)

// ConflictError carries the entity that blocked the write.
type ConflictError struct {
	Field    string
	Existing any
	err      error
}

func (e *ConflictError) Error() string {
	if e.Field == "" {
		return e.err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Field, e.err.Error())
}

func (e *ConflictError) Unwrap() error { return e.err }

// NewConflictError reports an EXISTED conflict on field, blocked by existing.
func NewConflictError(field string, existing any) *ConflictError {
	return &ConflictError{Field: field, Existing: existing, err: ErrExisted}
}

func conflict(field string, existing any) error {
	return NewConflictError(field, existing)
}

func alreadyAssigned(existing domain.Task) error {
	return &ConflictError{Field: "assigneeUid", Existing: existing, err: ErrAlreadyAssigned}
}

type NotAllowedError struct {
	Reason string
}

func (e *NotAllowedError) Error() string { return fmt.Sprintf("%s: %s", ErrMutationNotAllowed, e.Reason) }

func (e *NotAllowedError) Unwrap() error { return ErrMutationNotAllowed }

func notAllowed(reason string) error {
	return &NotAllowedError{Reason: reason}
}

// StorageError wraps an unexpected store failure with the operation that hit it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("%s: storage: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

// classify leaves taxonomy errors untouched and wraps everything else as a
// storage failure. Unique violations raced past the in-tx checks become conflicts.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ve *domain.ValidationError
	var se *StorageError
	switch {
	case errors.Is(err, repo.ErrNotFound),
		errors.Is(err, ErrExisted),
		errors.Is(err, ErrMutationNotAllowed),
		errors.As(err, &ve),
		errors.As(err, &se):
		return err
	case errors.Is(err, descriptor.ErrCorrupt):
		return &StorageError{Op: op, Err: err}
	case repo.IsUniqueViolation(err):
		return conflict("", nil)
	default:
		return &StorageError{Op: op, Err: err}
	}
}
