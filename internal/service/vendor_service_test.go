package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/vendorflow/internal/activity"
	"github.com/phrazzld/vendorflow/internal/domain"
	"github.com/phrazzld/vendorflow/internal/domain/lifecycle"
	"github.com/phrazzld/vendorflow/internal/events"
	"github.com/phrazzld/vendorflow/internal/platform/logger"
	"github.com/phrazzld/vendorflow/internal/platform/memory"
	"github.com/phrazzld/vendorflow/internal/store"
	"github.com/phrazzld/vendorflow/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	ctx        context.Context
	store      *memory.Store
	queue      *task.Queue
	activities *activity.Logger
	published  *publishedEvents
	svc        VendorService
}

type publishedEvents struct {
	mu     sync.Mutex
	events []*events.VendorEvent
}

func (p *publishedEvents) HandleEvent(_ context.Context, e *events.VendorEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *publishedEvents) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func newFixture(t *testing.T, s store.DocumentStore) *fixture {
	t.Helper()
	_, log := logger.NewTestLogger(t)
	clock := func() time.Time { return testNow }

	mem := memory.New()
	if s == nil {
		s = mem
	}
	published := &publishedEvents{}
	emitter := events.NewInMemoryEventEmitter(log)
	emitter.RegisterHandler(published, events.TypeActivityAppended)

	queue := task.NewQueue(s, log, task.WithQueueClock(clock))
	acts := activity.NewLogger(s, emitter, log, activity.WithClock(clock))
	svc, err := NewVendorService(s, queue, acts, log, WithClock(clock))
	require.NoError(t, err)

	return &fixture{
		ctx:        context.Background(),
		store:      mem,
		queue:      queue,
		activities: acts,
		published:  published,
		svc:        svc,
	}
}

func (f *fixture) seed(t *testing.T, id string) domain.Vendor {
	t.Helper()
	v, err := f.svc.SeedVendor(f.ctx, map[string]any{
		"id":           id,
		"companyName":  "Acme Plumbing",
		"specialty":    "Plumbing",
		"contactEmail": "owner@acme.example",
	})
	require.NoError(t, err)
	return v
}

func tasksOfType(tasks []domain.Task, typ domain.TaskType) []domain.Task {
	var out []domain.Task
	for _, tk := range tasks {
		if tk.Type == typ {
			out = append(out, tk)
		}
	}
	return out
}

func TestNewVendorServiceRequiresDependencies(t *testing.T) {
	_, log := logger.NewTestLogger(t)
	s := memory.New()
	q := task.NewQueue(s, log)
	a := activity.NewLogger(s, nil, log)

	_, err := NewVendorService(nil, q, a, log)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = NewVendorService(s, nil, a, log)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = NewVendorService(s, q, nil, log)
	assert.ErrorIs(t, err, domain.ErrValidation)

	svc, err := NewVendorService(s, q, a, nil)
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestSeedVendor(t *testing.T) {
	t.Run("normalizes legacy field names", func(t *testing.T) {
		f := newFixture(t, nil)
		v, err := f.svc.SeedVendor(f.ctx, map[string]any{
			"id":    "V1",
			"name":  "Acme Plumbing",
			"email": "owner@acme.example",
			"phone": "555-123-4567",
			"score": 87,
		})
		require.NoError(t, err)

		got, err := f.svc.GetVendor(f.ctx, "V1")
		require.NoError(t, err)
		assert.Equal(t, v.ID, got.ID)
		assert.Equal(t, domain.VendorStatusPendingReview, got.Status)
		assert.Equal(t, "Acme Plumbing", got.CompanyName)
		assert.Equal(t, "owner@acme.example", got.ContactEmail)
		assert.Equal(t, "555-123-4567", got.ContactPhone)
		assert.InDelta(t, 87.0, got.FitScore, 0.001)
	})

	t.Run("generates missing id", func(t *testing.T) {
		f := newFixture(t, nil)
		v, err := f.svc.SeedVendor(f.ctx, map[string]any{"company": "Bolt Electric"})
		require.NoError(t, err)
		assert.NotEmpty(t, v.ID)
		assert.Equal(t, "Bolt Electric", v.CompanyName)
	})

	tests := []struct {
		name   string
		fields map[string]any
	}{
		{"missing company name", map[string]any{"id": "V1"}},
		{"malformed email", map[string]any{"id": "V1", "name": "Acme", "email": "not-an-email"}},
		{"score out of range", map[string]any{"id": "V1", "name": "Acme", "score": 140}},
		{"wrong value type", map[string]any{"id": "V1", "name": "Acme", "score": "high"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			_, err := f.svc.SeedVendor(f.ctx, tt.fields)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.Zero(t, f.store.Len(store.CollectionVendors))
		})
	}

	t.Run("duplicate id", func(t *testing.T) {
		f := newFixture(t, nil)
		f.seed(t, "V1")
		_, err := f.svc.SeedVendor(f.ctx, map[string]any{"id": "V1", "name": "Other"})
		assert.ErrorIs(t, err, domain.ErrConflict)
	})
}

func TestApproveEnqueuesExactlyOneGenerateTask(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "V1")

	v, err := f.svc.Approve(f.ctx, "V1")
	require.NoError(t, err)
	assert.Equal(t, domain.VendorStatusApproved, v.Status)

	stored, err := f.svc.GetVendor(f.ctx, "V1")
	require.NoError(t, err)
	assert.Equal(t, domain.VendorStatusApproved, stored.Status)
	assert.True(t, stored.StatusUpdatedAt.Equal(testNow))

	tasks, err := f.svc.ListTasks(f.ctx, "V1")
	require.NoError(t, err)
	gen := tasksOfType(tasks, domain.TaskTypeGenerate)
	require.Len(t, gen, 1)
	assert.Equal(t, domain.TaskStatusPending, gen[0].Status)
	assert.Equal(t, "outreach", gen[0].Subtype())

	acts, err := f.svc.ListActivities(f.ctx, "V1")
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, domain.ActivityStatusChange, acts[0].Type)
	assert.Equal(t, "APPROVED", acts[0].Metadata["to"])
	assert.Equal(t, 1, f.published.count())

	_, err = f.svc.Approve(f.ctx, "V1")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	tasks, err = f.svc.ListTasks(f.ctx, "V1")
	require.NoError(t, err)
	assert.Len(t, tasksOfType(tasks, domain.TaskTypeGenerate), 1)
}

func TestRejectAndApplyEvent(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "V1")

	_, err := f.svc.ApplyEvent(f.ctx, "V1", lifecycle.EventVendorReplied)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.svc.ApplyEvent(f.ctx, "V1", lifecycle.Event("SHRUG"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	v, err := f.svc.Reject(f.ctx, "V1")
	require.NoError(t, err)
	assert.Equal(t, domain.VendorStatusRejected, v.Status)

	_, err = f.svc.Reject(f.ctx, "V1")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	tasks, err := f.svc.ListTasks(f.ctx, "V1")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestOperationsOnMissingVendor(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.GetVendor(f.ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrVendorNotFound)
	_, err = f.svc.Approve(f.ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrVendorNotFound)
	_, err = f.svc.ResetVendor(f.ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrVendorNotFound)
	_, _, err = f.svc.SubmitDocument(f.ctx, "ghost", domain.DocumentW9)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.SubmitMessage(f.ctx, "ghost", "hello")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResetVendorClearsActivities(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "V2")
	_, err := f.svc.Approve(f.ctx, "V2")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := f.activities.Append(f.ctx, domain.Activity{
			VendorID:    "V2",
			Type:        domain.ActivityNote,
			Description: "call notes",
		})
		require.NoError(t, err)
	}
	f.seed(t, "V3")
	_, err = f.activities.Append(f.ctx, domain.Activity{VendorID: "V3", Type: domain.ActivityNote})
	require.NoError(t, err)

	v, err := f.svc.ResetVendor(f.ctx, "V2")
	require.NoError(t, err)
	assert.Equal(t, domain.VendorStatusPendingReview, v.Status)

	stored, err := f.svc.GetVendor(f.ctx, "V2")
	require.NoError(t, err)
	assert.Equal(t, domain.VendorStatusPendingReview, stored.Status)

	acts, err := f.svc.ListActivities(f.ctx, "V2")
	require.NoError(t, err)
	assert.Empty(t, acts)

	others, err := f.svc.ListActivities(f.ctx, "V3")
	require.NoError(t, err)
	assert.Len(t, others, 1, "other vendors keep their log")

	_, err = f.svc.Approve(f.ctx, "V2")
	assert.NoError(t, err, "a reset vendor can be approved again")
}

func TestReapproveAfterResetKeepsOneGenerateTask(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "V1")

	activeGenerate := func() []domain.Task {
		tasks, err := f.svc.ListTasks(f.ctx, "V1")
		require.NoError(t, err)
		var out []domain.Task
		for _, tk := range tasks {
			if tk.Type == domain.TaskTypeGenerate && !tk.Status.IsTerminal() {
				out = append(out, tk)
			}
		}
		return out
	}

	_, err := f.svc.Approve(f.ctx, "V1")
	require.NoError(t, err)
	_, err = f.svc.ResetVendor(f.ctx, "V1")
	require.NoError(t, err)
	v, err := f.svc.Approve(f.ctx, "V1")
	require.NoError(t, err)
	assert.Equal(t, domain.VendorStatusApproved, v.Status)

	active := activeGenerate()
	require.Len(t, active, 1, "pending outreach is reused")

	require.NoError(t, f.queue.MarkCompleted(f.ctx, active[0].ID))
	_, err = f.svc.ResetVendor(f.ctx, "V1")
	require.NoError(t, err)
	_, err = f.svc.Approve(f.ctx, "V1")
	require.NoError(t, err)

	again := activeGenerate()
	require.Len(t, again, 1, "finished outreach does not block a new one")
	assert.NotEqual(t, active[0].ID, again[0].ID)
}

func TestSubmitDocumentSuppressesPendingDuplicates(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "V1")

	id, ok, err := f.svc.SubmitDocument(f.ctx, "V1", domain.DocumentCOI)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, id)

	_, ok, err = f.svc.SubmitDocument(f.ctx, "V1", domain.DocumentCOI)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = f.svc.SubmitDocument(f.ctx, "V1", domain.DocumentW9)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, f.queue.MarkCompleted(f.ctx, id))
	_, ok, err = f.svc.SubmitDocument(f.ctx, "V1", domain.DocumentCOI)
	require.NoError(t, err)
	assert.True(t, ok, "a finished verification does not block resubmission")

	_, _, err = f.svc.SubmitDocument(f.ctx, "V1", domain.DocumentType("PASSPORT"))
	assert.ErrorIs(t, err, domain.ErrInvalidDocumentType)

	tasks, err := f.svc.ListTasks(f.ctx, "V1")
	require.NoError(t, err)
	verify := tasksOfType(tasks, domain.TaskTypeVerify)
	require.Len(t, verify, 3)
	coi := 0
	for _, tk := range verify {
		if tk.MetaString(domain.MetaDocumentType) == "COI" {
			coi++
		}
	}
	assert.Equal(t, 2, coi)
}

func TestSubmitMessage(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "V1")

	_, err := f.svc.SubmitMessage(f.ctx, "V1", "   ")
	assert.ErrorIs(t, err, domain.ErrValidation)

	id, err := f.svc.SubmitMessage(f.ctx, "V1", "  Can we start next week?  ")
	require.NoError(t, err)
	got, err := f.queue.Get(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskTypeChat, got.Type)
	assert.Equal(t, "Can we start next week?", got.MetaString(domain.MetaMessage))
}

func TestPurgeTasksKeepsActiveWork(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "V1")

	done, err := f.svc.SubmitMessage(f.ctx, "V1", "one")
	require.NoError(t, err)
	failed, err := f.svc.SubmitMessage(f.ctx, "V1", "two")
	require.NoError(t, err)
	_, err = f.svc.SubmitMessage(f.ctx, "V1", "three")
	require.NoError(t, err)
	require.NoError(t, f.queue.MarkCompleted(f.ctx, done))
	require.NoError(t, f.queue.MarkFailed(f.ctx, failed, "boom"))

	n, err := f.svc.PurgeTasks(f.ctx, "V1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	tasks, err := f.svc.ListTasks(f.ctx, "V1")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, domain.TaskStatusPending, tasks[0].Status)
}

// racingStore changes the vendor between the service's read and its commit.
type racingStore struct {
	*memory.Store
	once sync.Once
}

func (r *racingStore) Commit(ctx context.Context, writes ...store.Write) error {
	var err error
	r.once.Do(func() {
		err = r.Store.Update(ctx, store.CollectionVendors, "V1", store.Fields{
			store.FieldStatusUpdatedAt: store.FormatTime(testNow.Add(time.Minute)),
		})
	})
	if err != nil {
		return err
	}
	return r.Store.Commit(ctx, writes...)
}

func TestApproveDetectsConcurrentChange(t *testing.T) {
	mem := memory.New()
	seeder := newFixture(t, mem)
	seeder.seed(t, "V1")

	racing := &racingStore{Store: mem}
	f := newFixture(t, racing)

	_, err := f.svc.Approve(f.ctx, "V1")
	assert.ErrorIs(t, err, domain.ErrConflict)

	v, err := f.svc.GetVendor(f.ctx, "V1")
	require.NoError(t, err)
	assert.Equal(t, domain.VendorStatusPendingReview, v.Status)
	tasks, err := f.svc.ListTasks(f.ctx, "V1")
	require.NoError(t, err)
	assert.Empty(t, tasks, "no follow-up lands without the transition")
	assert.Zero(t, f.published.count())
}
