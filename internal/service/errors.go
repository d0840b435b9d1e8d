package service

import "fmt"

// VendorServiceError wraps an infrastructure failure with the operation that
// hit it. Domain sentinels (not found, invalid transition, conflict) are
// returned unwrapped so callers can match them with errors.Is.
type VendorServiceError struct {
	Operation string
	Message   string
	Err       error
}

// Error implements the error interface for VendorServiceError.
func (e *VendorServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("vendor service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("vendor service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *VendorServiceError) Unwrap() error {
	return e.Err
}

// NewVendorServiceError creates a new VendorServiceError.
func NewVendorServiceError(operation, message string, err error) *VendorServiceError {
	return &VendorServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
