package events

import (
	"context"
	"log/slog"
	"sync"
)

// InMemoryEventEmitter dispatches events synchronously to handlers
// registered in process.
type InMemoryEventEmitter struct {
	handlers []registration
	mu       sync.RWMutex
	logger   *slog.Logger
}

type registration struct {
	types   map[string]bool
	handler EventHandler
}

// NewInMemoryEventEmitter creates a new instance of InMemoryEventEmitter.
func NewInMemoryEventEmitter(logger *slog.Logger) *InMemoryEventEmitter {
	return &InMemoryEventEmitter{
		logger: logger.With("component", "event_emitter"),
	}
}

// RegisterHandler adds a handler for the given event types, or for every
// event when no types are listed.
func (e *InMemoryEventEmitter) RegisterHandler(handler EventHandler, types ...string) {
	r := registration{handler: handler}
	if len(types) > 0 {
		r.types = make(map[string]bool, len(types))
		for _, t := range types {
			r.types[t] = true
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, r)
	e.logger.Debug("registered event handler", "handler_count", len(e.handlers), "types", types)
}

// EmitEvent publishes the event to all matching handlers.
// Every handler sees the event even if an earlier one fails; the first
// error encountered is returned.
func (e *InMemoryEventEmitter) EmitEvent(ctx context.Context, event *VendorEvent) error {
	e.mu.RLock()
	handlers := make([]registration, len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.RUnlock()

	var firstErr error
	delivered := 0
	for i, r := range handlers {
		if r.types != nil && !r.types[event.Type] {
			continue
		}
		delivered++
		if err := r.handler.HandleEvent(ctx, event); err != nil {
			e.logger.Error("handler failed to process event",
				"error", err,
				"handler_index", i,
				"event_id", event.ID,
				"event_type", event.Type,
				"vendor_id", event.VendorID)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	e.logger.Debug("emitted event",
		"event_id", event.ID,
		"event_type", event.Type,
		"handler_count", delivered)

	return firstErr
}
