// Package lifecycle implements the vendor state machine.
//
// Transition is a pure, deterministic function of (current status, event).
// It performs no I/O; callers persist the returned status and enqueue the
// returned follow-up tasks.
package lifecycle
