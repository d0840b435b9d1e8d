// Package service implements the operator use cases on vendors: seeding,
// approval and rejection, reset, document and message submission, and task
// cleanup.
//
// Services receive the document store, task queue, and activity logger
// through constructor injection and never depend on a specific storage
// engine. Each mutating operation renders its changes as store writes and
// commits them as one atomic unit, so a status change never lands without
// its activity entry or follow-up tasks.
//
// Error handling:
//   - domain sentinels (ErrVendorNotFound, ErrInvalidTransition, ErrConflict,
//     ErrValidation) are returned as-is or wrapped with %w
//   - infrastructure failures are wrapped in *VendorServiceError
//   - the API layer maps both to HTTP status codes
package service
