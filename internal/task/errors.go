package task

import "errors"

// Dispatch errors recorded on tasks.
var (
	// ErrNoHandler is returned when no handler is registered for a task.
	ErrNoHandler = errors.New("no handler registered")

	// ErrHandlerTimeout is returned when a handler exceeds its deadline.
	ErrHandlerTimeout = errors.New("handler timeout")

	// ErrHandlerPanic is returned when a handler panics.
	ErrHandlerPanic = errors.New("handler panicked")

	// ErrRetriesExhausted wraps the last failure of a task that ran out of retries.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrAlreadyRunning is returned by Start on a running dispatcher or reaper.
	ErrAlreadyRunning = errors.New("already running")
)

// ErrClaimExpired is recorded on tasks whose claim was released by the reaper.
var ErrClaimExpired = errors.New("claim expired")
