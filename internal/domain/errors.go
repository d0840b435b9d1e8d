package domain

import (
	"errors"
	"fmt"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when input to an operation fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTransition is returned when an event is not legal for the
	// vendor's current status. The vendor status is left unchanged.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNotFound is returned when a referenced vendor or task does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a concurrent writer changed a record
	// between read and conditional write.
	ErrConflict = errors.New("concurrent modification")

	// ErrVendorNotFound indicates that the referenced vendor does not exist.
	ErrVendorNotFound = fmt.Errorf("%w: vendor", ErrNotFound)

	// ErrTaskNotFound indicates that the referenced task does not exist.
	ErrTaskNotFound = fmt.Errorf("%w: task", ErrNotFound)
)

// Validation errors for domain entities.
var (
	ErrEmptyVendorID       = fmt.Errorf("%w: vendor ID cannot be empty", ErrValidation)
	ErrEmptyCompanyName    = fmt.Errorf("%w: company name cannot be empty", ErrValidation)
	ErrInvalidVendorStatus = fmt.Errorf("%w: invalid vendor status", ErrValidation)
	ErrInvalidTaskType     = fmt.Errorf("%w: unrecognized task type", ErrValidation)
	ErrInvalidTaskStatus   = fmt.Errorf("%w: invalid task status", ErrValidation)
	ErrInvalidActivityType = fmt.Errorf("%w: invalid activity type", ErrValidation)
	ErrInvalidDocumentType = fmt.Errorf("%w: invalid document type", ErrValidation)
)
