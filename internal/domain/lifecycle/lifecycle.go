package lifecycle

import (
	"fmt"

	"github.com/phrazzld/vendorflow/internal/domain"
)

// Event is an input to the vendor state machine
type Event string

// Recognized events
const (
	EventApprove            Event = "APPROVE"
	EventReject             Event = "REJECT"
	EventOutreachSent       Event = "OUTREACH_SENT"
	EventVendorReplied      Event = "VENDOR_REPLIED"
	EventNegotiationStarted Event = "NEGOTIATION_STARTED"
	EventContractSigned     Event = "CONTRACT_SIGNED"
)

// Events lists every recognized event in declaration order.
var Events = []Event{
	EventApprove,
	EventReject,
	EventOutreachSent,
	EventVendorReplied,
	EventNegotiationStarted,
	EventContractSigned,
}

// IsValid reports whether e is a recognized event.
func (e Event) IsValid() bool {
	for _, known := range Events {
		if e == known {
			return true
		}
	}
	return false
}

// FollowUp is a task the caller must enqueue after persisting a transition.
type FollowUp struct {
	Type     domain.TaskType
	Metadata map[string]any
}

// Result is the outcome of a legal transition.
type Result struct {
	Next      domain.VendorStatus
	FollowUps []FollowUp
}

// InvalidTransitionError reports an event that is illegal for the current status.
type InvalidTransitionError struct {
	From  domain.VendorStatus
	Event Event
}

// Error implements the error interface.
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: event %s not allowed from status %s",
		domain.ErrInvalidTransition, e.Event, e.From)
}

// Unwrap allows errors.Is(err, domain.ErrInvalidTransition).
func (e *InvalidTransitionError) Unwrap() error {
	return domain.ErrInvalidTransition
}

type edge struct {
	from  domain.VendorStatus
	event Event
}

type target struct {
	next      domain.VendorStatus
	followUps func() []FollowUp
}

// table holds every legal transition except the REJECT override, which is
// accepted from any non-terminal status.
var table = map[edge]target{
	{domain.VendorStatusPendingReview, EventApprove}: {
		next:      domain.VendorStatusApproved,
		followUps: outreachFollowUp,
	},
	{domain.VendorStatusApproved, EventOutreachSent}:      {next: domain.VendorStatusContacted},
	{domain.VendorStatusContacted, EventVendorReplied}:    {next: domain.VendorStatusNegotiating},
	{domain.VendorStatusNegotiating, EventContractSigned}: {next: domain.VendorStatusContracted},
}

func outreachFollowUp() []FollowUp {
	return []FollowUp{{
		Type:     domain.TaskTypeGenerate,
		Metadata: map[string]any{domain.MetaSubtype: "outreach"},
	}}
}

// Transition maps the current status and an event to the next status and the
// follow-up tasks it requires. Illegal combinations return an
// *InvalidTransitionError; unknown statuses or events return a validation error.
func Transition(current domain.VendorStatus, event Event) (Result, error) {
	if !current.IsValid() {
		return Result{}, fmt.Errorf("%w: %q", domain.ErrInvalidVendorStatus, current)
	}
	if !event.IsValid() {
		return Result{}, fmt.Errorf("%w: unrecognized event %q", domain.ErrValidation, event)
	}

	if current.IsTerminal() {
		return Result{}, &InvalidTransitionError{From: current, Event: event}
	}

	if event == EventReject {
		return Result{Next: domain.VendorStatusRejected}, nil
	}

	t, ok := table[edge{current, event}]
	if !ok {
		return Result{}, &InvalidTransitionError{From: current, Event: event}
	}

	res := Result{Next: t.next}
	if t.followUps != nil {
		res.FollowUps = t.followUps()
	}
	return res, nil
}

// CanApply reports whether event is legal from current.
func CanApply(current domain.VendorStatus, event Event) bool {
	_, err := Transition(current, event)
	return err == nil
}
