package task

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/vendorflow/internal/activity"
	"github.com/phrazzld/vendorflow/internal/domain"
	"github.com/phrazzld/vendorflow/internal/events"
	"github.com/phrazzld/vendorflow/internal/mocks"
	"github.com/phrazzld/vendorflow/internal/platform/logger"
	"github.com/phrazzld/vendorflow/internal/platform/memory"
	"github.com/phrazzld/vendorflow/internal/store"
	"github.com/phrazzld/vendorflow/internal/vendor"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []*events.VendorEvent
}

func (r *recordingEmitter) EmitEvent(_ context.Context, e *events.VendorEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingEmitter) ofType(eventType string) []*events.VendorEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*events.VendorEvent
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	t          *testing.T
	ctx        context.Context
	clock      *fakeClock
	store      *memory.Store
	queue      *Queue
	activities *activity.Logger
	registry   *Registry
	emitter    *recordingEmitter
	ai         *mocks.MockAI
	notifier   *mocks.MockNotifier
	logs       *logger.TestLogBuffer
	dispatcher *Dispatcher
}

func newHarness(t *testing.T, mutate ...func(*DispatcherConfig)) *harness {
	t.Helper()
	buf, log := logger.NewTestLogger(t)
	clock := newFakeClock()
	s := memory.New()
	emitter := &recordingEmitter{}

	h := &harness{
		t:        t,
		ctx:      context.Background(),
		clock:    clock,
		store:    s,
		emitter:  emitter,
		ai:       &mocks.MockAI{},
		notifier: &mocks.MockNotifier{},
		logs:     buf,
	}
	h.queue = NewQueue(s, log, WithQueueClock(clock.Now))
	h.activities = activity.NewLogger(s, emitter, log, activity.WithClock(clock.Now))
	h.registry = NewRegistry()
	h.registry.Register(domain.TaskTypeGenerate, "", NewGenerateHandler(h.ai))
	h.registry.Register(domain.TaskTypeSend, "", NewSendHandler(h.notifier))
	h.registry.Register(domain.TaskTypeVerify, "", NewVerifyHandler(h.ai, true))
	h.registry.Register(domain.TaskTypeChat, "", NewChatHandler(h.ai))

	cfg := DefaultDispatcherConfig()
	cfg.WorkerID = "test-worker"
	cfg.HandlerTimeout = time.Second
	for _, m := range mutate {
		m(&cfg)
	}
	h.dispatcher = NewDispatcher(s, h.queue, h.activities, h.registry, cfg, log,
		WithClock(clock.Now), WithEmitter(emitter))
	return h
}

func (h *harness) seedVendor(id string, status domain.VendorStatus) domain.Vendor {
	h.t.Helper()
	v, err := domain.NewVendor(id, "Acme Plumbing", h.clock.Now())
	require.NoError(h.t, err)
	v.Status = status
	v.Specialty = "Plumbing"
	v.ContactEmail = "owner@acme.example"
	require.NoError(h.t, vendor.NewRepository(h.store).Create(h.ctx, *v))
	return *v
}

func (h *harness) enqueue(vendorID string, taskType domain.TaskType, meta map[string]any) string {
	h.t.Helper()
	id, err := h.queue.Enqueue(h.ctx, vendorID, taskType, meta, nil)
	require.NoError(h.t, err)
	return id
}

func (h *harness) task(id string) domain.Task {
	h.t.Helper()
	got, err := h.queue.Get(h.ctx, id)
	require.NoError(h.t, err)
	return got
}

func (h *harness) vendor(id string) domain.Vendor {
	h.t.Helper()
	got, err := vendor.NewRepository(h.store).Get(h.ctx, id)
	require.NoError(h.t, err)
	return got
}

func (h *harness) activitiesOf(vendorID string) []domain.Activity {
	h.t.Helper()
	got, err := h.activities.List(h.ctx, vendorID)
	require.NoError(h.t, err)
	return got
}

func (h *harness) tasksOf(vendorID string) []domain.Task {
	h.t.Helper()
	got, err := h.queue.List(h.ctx, vendorID)
	require.NoError(h.t, err)
	return got
}

func (h *harness) runCycle() CycleStats {
	h.t.Helper()
	stats, err := h.dispatcher.RunCycle(h.ctx)
	require.NoError(h.t, err)
	return stats
}

func countType(acts []domain.Activity, typ domain.ActivityType) int {
	n := 0
	for _, a := range acts {
		if a.Type == typ {
			n++
		}
	}
	return n
}

var _ store.DocumentStore = (*memory.Store)(nil)
