package task

import (
	"context"
	"sync"

	"github.com/phrazzld/vendorflow/internal/domain"
)

// Input is what a handler sees: the claimed task and a snapshot of its vendor.
type Input struct {
	Vendor domain.Vendor
	Task   domain.Task
}

// Handler executes one kind of task. Implementations should honor ctx
// cancellation and must not write to the store themselves; their state
// changes are returned as Effects. The dispatcher stops waiting at the
// handler deadline whether or not ctx is honored.
// Version: 1.0
type Handler interface {
	Handle(ctx context.Context, in Input) Outcome
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, in Input) Outcome

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, in Input) Outcome {
	return f(ctx, in)
}

type route struct {
	taskType domain.TaskType
	subtype  string
}

// Registry routes tasks to handlers by type and optional metadata subtype.
type Registry struct {
	mu       sync.RWMutex
	handlers map[route]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[route]Handler)}
}

// Register binds h to a task type. A non-empty subtype binds it only to
// tasks whose metadata.subtype matches.
func (r *Registry) Register(taskType domain.TaskType, subtype string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[route{taskType, subtype}] = h
}

// Lookup returns the handler for t, preferring an exact subtype match over
// the type's default handler.
func (r *Registry) Lookup(t domain.Task) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if sub := t.Subtype(); sub != "" {
		if h, ok := r.handlers[route{t.Type, sub}]; ok {
			return h, true
		}
	}
	h, ok := r.handlers[route{t.Type, ""}]
	return h, ok
}
