// Package shared holds the error taxonomy every bounded context reports with.
// Callers match kinds with errors.Is against the sentinels below and pull
// details out with errors.As.
package shared

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrState             = errors.New("illegal state")
	ErrNotFound          = errors.New("not found")
	// ErrConflict reports a lost optimistic-concurrency race. Callers may retry.
	ErrConflict = errors.New("concurrent modification")
)

// ValidationError reports malformed or inactive input.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InsufficientStockError is returned when a reservation is denied. Available
// carries the quantity that could have been reserved at the time of the check.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// StateError reports an illegal transition. Invariant is set when the error
// signals a logic bug (a broken precondition) rather than a caller mistake.
type StateError struct {
	Entity    string
	ID        string
	Current   string
	Message   string
	Invariant bool
}

func (e *StateError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s: illegal transition from %s", e.Entity, e.ID, e.Current)
}

func (e *StateError) Unwrap() error { return ErrState }

// NotFoundError reports an unknown order, payment, product or reservation.
type NotFoundError struct {
	Entity string
	ID     string
}

func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Entity + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// IsInvariantViolation reports whether err carries a StateError raised by a
// broken precondition.
func IsInvariantViolation(err error) bool {
	var se *StateError
	return errors.As(err, &se) && se.Invariant
}
