package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types published by the engine.
const (
	// TypeActivityAppended carries one committed activity entry.
	TypeActivityAppended = "activity.appended"
	// TypeReviewRequested asks a human to review a failed document verification.
	TypeReviewRequested = "review.requested"
)

// VendorEvent is a notification about something that was committed for a
// vendor. Events are published only after the corresponding writes succeed.
type VendorEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type is one of the Type* constants
	Type string `json:"type"`

	// VendorID identifies the vendor the event concerns
	VendorID string `json:"vendorId"`

	// Payload contains the type-specific data serialized as JSON
	Payload json.RawMessage `json:"payload"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"createdAt"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *VendorEvent) UnmarshalPayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// NewVendorEvent creates a VendorEvent with the specified type and payload.
func NewVendorEvent(eventType, vendorID string, payload any) (*VendorEvent, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &VendorEvent{
		ID:        uuid.New(),
		Type:      eventType,
		VendorID:  vendorID,
		Payload:   payloadBytes,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	HandleEvent(ctx context.Context, event *VendorEvent) error
}

// EventEmitter defines an interface for components that can emit events.
// This allows publishers to stay unaware of the sinks consuming them.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *VendorEvent) error
}

// HandlerFunc adapts a function to the EventHandler interface.
type HandlerFunc func(ctx context.Context, event *VendorEvent) error

// HandleEvent calls f.
func (f HandlerFunc) HandleEvent(ctx context.Context, event *VendorEvent) error {
	return f(ctx, event)
}

// Discard is an emitter that drops every event.
var Discard EventEmitter = discard{}

type discard struct{}

func (discard) EmitEvent(context.Context, *VendorEvent) error { return nil }
