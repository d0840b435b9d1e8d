package task

import (
	"github.com/phrazzld/vendorflow/internal/capability"
	"github.com/phrazzld/vendorflow/internal/domain"
	"github.com/phrazzld/vendorflow/internal/domain/lifecycle"
)

// OutcomeKind classifies the result of running a handler.
type OutcomeKind int

// Outcome kinds
const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRetryable
	OutcomePermanent
)

// String returns the outcome label used in logs and metrics.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomePermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Signal is a post-commit notification requested by a handler.
type Signal struct {
	Type    string
	Payload any
}

// Effects are the state changes a successful handler asks the dispatcher
// to commit. All of them are applied atomically with the task completion.
type Effects struct {
	// Event is fed to the vendor state machine when non-empty.
	Event lifecycle.Event
	// Activities are appended to the vendor's log.
	Activities []domain.Activity
	// FollowUps are enqueued as new tasks.
	FollowUps []lifecycle.FollowUp
	// Signals are emitted after the commit succeeds.
	Signals []Signal
}

// Outcome is the value a handler returns. Failures are values, never panics.
type Outcome struct {
	Kind    OutcomeKind
	Effects Effects
	Err     error
}

// Success reports completed work with its effects.
func Success(e Effects) Outcome {
	return Outcome{Kind: OutcomeSuccess, Effects: e}
}

// Retryable reports a failure that may succeed on a later attempt.
func Retryable(err error) Outcome {
	return Outcome{Kind: OutcomeRetryable, Err: err}
}

// Permanent reports a failure that will never succeed.
func Permanent(err error) Outcome {
	return Outcome{Kind: OutcomePermanent, Err: err}
}

// FromCapabilityError classifies a capability failure.
func FromCapabilityError(err error) Outcome {
	if capability.IsPermanent(err) {
		return Permanent(err)
	}
	return Retryable(err)
}
