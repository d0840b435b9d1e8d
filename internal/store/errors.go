package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested document does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when a create would overwrite an existing document.
	ErrDuplicate = errors.New("entity already exists")

	// ErrConditionFailed is returned when the preconditions of a conditional
	// write do not hold, including the target document not existing inside Commit.
	ErrConditionFailed = errors.New("condition failed")

	// ErrInvalidEntity is returned when a document cannot be encoded or decoded.
	// Check the wrapped error for specific details.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrInvalidQuery is returned for unsupported filter operators or values.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrTransactionFailed is returned when an atomic commit fails for a
	// reason other than a failed condition.
	ErrTransactionFailed = errors.New("transaction failed")
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConditionFailed checks if the error reports a failed precondition.
func IsConditionFailed(err error) bool {
	return errors.Is(err, ErrConditionFailed)
}

// StoreError is a custom error type for store-specific errors with additional context.
type StoreError struct {
	Entity    string // The collection (e.g., "vendors", "tasks")
	Operation string // The operation that failed (e.g., "get", "commit")
	Message   string // Error message
	Err       error  // Original error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf(
			"%s operation on %s failed: %s: %v",
			e.Operation,
			e.Entity,
			e.Message,
			e.Err,
		)
	}
	return fmt.Sprintf("%s operation on %s failed: %s", e.Operation, e.Entity, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError with the given entity, operation, message, and wrapped error.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{
		Entity:    entity,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
