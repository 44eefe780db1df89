// Package api shapes core results into the uniform response envelope.
package api

import (
	"errors"

	"asylum/internal/domain"
	"asylum/internal/engine"
	"asylum/internal/repo"
)

type Indicator string

const (
	Success            Indicator = "SUCCESS"
	NotFound           Indicator = "NOT_FOUND"
	Existed            Indicator = "EXISTED"
	MutationNotAllowed Indicator = "MUTATION_NOT_ALLOWED"
	Error              Indicator = "ERROR"
)

// Envelope is returned by every operation. Payload is always a list: one
// entity for single-entity operations, the page for lists, the conflicting
// entity on EXISTED when one is known, and empty on other failures.
type Envelope[T any] struct {
	Success   bool      `json:"success"`
	Indicator Indicator `json:"indicator" enum:"SUCCESS,NOT_FOUND,EXISTED,MUTATION_NOT_ALLOWED,ERROR"`
	Message   string    `json:"message,omitempty"`
	Payload   []T       `json:"payload"`
}

// IndicatorFor maps an error from the core taxonomy to its indicator.
func IndicatorFor(err error) Indicator {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, repo.ErrNotFound):
		return NotFound
	case errors.Is(err, engine.ErrExisted):
		return Existed
	case errors.Is(err, engine.ErrMutationNotAllowed):
		return MutationNotAllowed
	default:
		return Error
	}
}

// Respond wraps a single-entity core result.
func Respond[T any](payload T, err error) Envelope[T] {
	if err == nil {
		return Envelope[T]{Success: true, Indicator: Success, Payload: []T{payload}}
	}
	return failure[T](err)
}

// RespondList wraps a list result; a nil list is reported as empty.
func RespondList[T any](items []T, err error) Envelope[T] {
	if err != nil {
		return failure[T](err)
	}
	if items == nil {
		items = []T{}
	}
	return Envelope[T]{Success: true, Indicator: Success, Payload: items}
}

// failure reports storage failures without their internal detail.
func failure[T any](err error) Envelope[T] {
	env := Envelope[T]{Indicator: IndicatorFor(err), Message: err.Error(), Payload: []T{}}
	var ce *engine.ConflictError
	if errors.As(err, &ce) {
		if existing, ok := ce.Existing.(T); ok {
			env.Payload = []T{existing}
		}
	}
	var se *engine.StorageError
	if errors.As(err, &se) {
		env.Message = se.Op + ": storage failure"
	}
	return env
}

// IsValidation reports whether err was raised by input validation.
func IsValidation(err error) bool {
	var ve *domain.ValidationError
	return errors.As(err, &ve)
}
