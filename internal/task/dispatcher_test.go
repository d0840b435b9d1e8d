package task

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phrazzld/vendorflow/internal/capability"
	"github.com/phrazzld/vendorflow/internal/domain"
	"github.com/phrazzld/vendorflow/internal/domain/lifecycle"
	"github.com/phrazzld/vendorflow/internal/events"
	"github.com/phrazzld/vendorflow/internal/platform/logger"
	"github.com/phrazzld/vendorflow/internal/store"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.seedVendor("V1", domain.VendorStatusApproved)
	genID := h.enqueue("V1", domain.TaskTypeGenerate, map[string]any{domain.MetaSubtype: "outreach"})

	stats := h.runCycle()

	assert.Equal(t, 1, stats.Completed)
	gen := h.task(genID)
	assert.Equal(t, domain.TaskStatusCompleted, gen.Status)
	acts := h.activitiesOf("V1")
	require.Len(t, acts, 1)
	assert.Equal(t, domain.ActivityOutreachQueued, acts[0].Type)
	assert.Equal(t, genID, acts[0].TaskID())

	var send domain.Task
	for _, tk := range h.tasksOf("V1") {
		if tk.Type == domain.TaskTypeSend {
			send = tk
		}
	}
	require.NotEmpty(t, send.ID, "send follow-up enqueued")
	assert.Equal(t, domain.TaskStatusPending, send.Status)
	assert.Equal(t, "owner@acme.example", send.MetaString(domain.MetaRecipient))

	stats = h.runCycle()

	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, domain.TaskStatusCompleted, h.task(send.ID).Status)
	assert.Equal(t, domain.VendorStatusContacted, h.vendor("V1").Status)
	acts = h.activitiesOf("V1")
	assert.Equal(t, 1, countType(acts, domain.ActivityStatusChange))
	assert.Equal(t, 1, countType(acts, domain.ActivityOutreachSent))
	assert.Len(t, h.emitter.ofType(events.TypeActivityAppended), 3)
}

func TestDuplicateGenerateTasksSendOutreachOnce(t *testing.T) {
	h := newHarness(t)
	h.seedVendor("V1", domain.VendorStatusApproved)
	h.enqueue("V1", domain.TaskTypeGenerate, map[string]any{domain.MetaSubtype: "outreach"})
	h.enqueue("V1", domain.TaskTypeGenerate, map[string]any{domain.MetaSubtype: "outreach"})

	for i := 0; i < 6; i++ {
		h.runCycle()
	}

	assert.Equal(t, 1, h.notifier.SentCount())
	assert.Equal(t, domain.VendorStatusContacted, h.vendor("V1").Status)

	var sends int
	for _, tk := range h.tasksOf("V1") {
		assert.True(t, tk.Status.IsTerminal(), "task %s left %s", tk.ID, tk.Status)
		if tk.Type == domain.TaskTypeSend {
			sends++
		}
	}
	assert.Equal(t, 1, sends)
	assert.Equal(t, 1, countType(h.activitiesOf("V1"), domain.ActivityOutreachSent))
}

func TestAlwaysRetryableHandlerFailsAfterMaxRetries(t *testing.T) {
	h := newHarness(t)
	var attempts int
	h.registry.Register(domain.TaskTypeChat, "", HandlerFunc(func(context.Context, Input) Outcome {
		attempts++
		return Retryable(capability.ErrTransient)
	}))
	h.seedVendor("V1", domain.VendorStatusContacted)
	id := h.enqueue("V1", domain.TaskTypeChat, map[string]any{domain.MetaMessage: "hi"})

	var schedule []time.Time
	for i := 0; i < 10; i++ {
		h.runCycle()
		got := h.task(id)
		if got.Status.IsTerminal() {
			break
		}
		require.Equal(t, domain.TaskStatusRetry, got.Status)
		schedule = append(schedule, got.ScheduledAt)
		h.clock.Set(got.ScheduledAt)
	}

	final := h.task(id)
	assert.Equal(t, domain.TaskStatusFailed, final.Status)
	assert.Equal(t, 3, final.RetryCount)
	assert.Equal(t, 4, attempts)
	assert.Contains(t, final.Error, ErrRetriesExhausted.Error())
	require.Len(t, schedule, 3)
	for i := 1; i < len(schedule); i++ {
		assert.True(t, schedule[i].After(schedule[i-1]), "scheduledAt strictly increasing")
	}
}

func TestMissingVendorFailsWithoutRetry(t *testing.T) {
	h := newHarness(t)
	var calls int
	h.registry.Register(domain.TaskTypeChat, "", HandlerFunc(func(context.Context, Input) Outcome {
		calls++
		return Success(Effects{})
	}))
	id := h.enqueue("ghost", domain.TaskTypeChat, nil)

	stats := h.runCycle()

	assert.Equal(t, 1, stats.Failed)
	got := h.task(id)
	assert.Equal(t, domain.TaskStatusFailed, got.Status)
	assert.Equal(t, 0, got.RetryCount)
	assert.Contains(t, got.Error, "vendor")
	assert.Zero(t, calls)
}

func TestRejectedDocumentCompletesWithNote(t *testing.T) {
	h := newHarness(t)
	h.ai.VerifyDocumentFn = func(_ context.Context, d domain.DocumentType, name, specialty string) (capability.VerificationResult, error) {
		assert.Equal(t, domain.DocumentCOI, d)
		assert.Equal(t, "Acme Plumbing", name)
		assert.Equal(t, "Plumbing", specialty)
		return capability.VerificationResult{Valid: false, Reasoning: "coverage below minimum"}, nil
	}
	h.seedVendor("V1", domain.VendorStatusNegotiating)
	id := h.enqueue("V1", domain.TaskTypeVerify, map[string]any{domain.MetaDocumentType: "COI"})

	h.runCycle()

	assert.Equal(t, domain.TaskStatusCompleted, h.task(id).Status)
	acts := h.activitiesOf("V1")
	require.Len(t, acts, 1)
	assert.Equal(t, domain.ActivityNote, acts[0].Type)
	assert.Equal(t, domain.VendorStatusNegotiating, h.vendor("V1").Status)

	reviews := h.emitter.ofType(events.TypeReviewRequested)
	require.Len(t, reviews, 1)
	var req ReviewRequest
	require.NoError(t, reviews[0].UnmarshalPayload(&req))
	assert.Equal(t, id, req.TaskID)
	assert.Equal(t, "coverage below minimum", req.Reasoning)
}

func TestIllegalEventIsRecordedAndTaskCompletes(t *testing.T) {
	h := newHarness(t)
	h.seedVendor("V1", domain.VendorStatusPendingReview)
	id := h.enqueue("V1", domain.TaskTypeSend, map[string]any{
		domain.MetaChannel:   "email",
		domain.MetaRecipient: "owner@acme.example",
		domain.MetaBody:      "hello",
	})

	h.runCycle()

	assert.Equal(t, domain.TaskStatusCompleted, h.task(id).Status)
	assert.Equal(t, domain.VendorStatusPendingReview, h.vendor("V1").Status)
	acts := h.activitiesOf("V1")
	assert.Equal(t, 0, countType(acts, domain.ActivityStatusChange))
	assert.Equal(t, 1, countType(acts, domain.ActivityNote))
	assert.Equal(t, 1, countType(acts, domain.ActivityOutreachSent))
}

func TestReplayedTaskCompletesWithoutRerun(t *testing.T) {
	h := newHarness(t)
	var calls int
	h.registry.Register(domain.TaskTypeChat, "", HandlerFunc(func(context.Context, Input) Outcome {
		calls++
		return Success(Effects{})
	}))
	h.seedVendor("V1", domain.VendorStatusContacted)
	id := h.enqueue("V1", domain.TaskTypeChat, nil)
	_, err := h.activities.Append(h.ctx, domain.Activity{
		VendorID: "V1",
		Type:     domain.ActivityNote,
		Metadata: map[string]any{domain.MetaTaskID: id},
	})
	require.NoError(t, err)

	stats := h.runCycle()

	assert.Equal(t, 1, stats.Replayed)
	assert.Zero(t, calls)
	assert.Equal(t, domain.TaskStatusCompleted, h.task(id).Status)
	assert.Len(t, h.activitiesOf("V1"), 1)
}

func TestHandlerTimeoutIsRetryable(t *testing.T) {
	h := newHarness(t, func(c *DispatcherConfig) { c.HandlerTimeout = 20 * time.Millisecond })
	h.registry.Register(domain.TaskTypeChat, "", HandlerFunc(func(ctx context.Context, _ Input) Outcome {
		<-ctx.Done()
		return Permanent(ctx.Err())
	}))
	h.seedVendor("V1", domain.VendorStatusContacted)
	id := h.enqueue("V1", domain.TaskTypeChat, nil)

	h.runCycle()

	got := h.task(id)
	assert.Equal(t, domain.TaskStatusRetry, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.Contains(t, got.Error, ErrHandlerTimeout.Error())
}

func TestHandlerIgnoringContextIsAbandonedAtDeadline(t *testing.T) {
	h := newHarness(t, func(c *DispatcherConfig) { c.HandlerTimeout = 20 * time.Millisecond })
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	h.registry.Register(domain.TaskTypeChat, "", HandlerFunc(func(context.Context, Input) Outcome {
		<-release
		return Success(Effects{})
	}))
	h.seedVendor("V1", domain.VendorStatusContacted)
	id := h.enqueue("V1", domain.TaskTypeChat, nil)

	start := time.Now()
	h.runCycle()

	assert.Less(t, time.Since(start), 2*time.Second)
	got := h.task(id)
	assert.Equal(t, domain.TaskStatusRetry, got.Status)
	assert.Contains(t, got.Error, ErrHandlerTimeout.Error())
}

func TestPermanentFailureSkipsRetry(t *testing.T) {
	h := newHarness(t)
	before := testutil.ToFloat64(tasksProcessedCounter.WithLabelValues("CHAT", "permanent"))
	h.seedVendor("V1", domain.VendorStatusContacted)
	id := h.enqueue("V1", domain.TaskTypeChat, map[string]any{domain.MetaMessage: ""})

	stats := h.runCycle()

	assert.Equal(t, 1, stats.Failed)
	got := h.task(id)
	assert.Equal(t, domain.TaskStatusFailed, got.Status)
	assert.Equal(t, 0, got.RetryCount)
	assert.Equal(t, before+1, testutil.ToFloat64(tasksProcessedCounter.WithLabelValues("CHAT", "permanent")))
}

func TestHandlerPanicFailsTask(t *testing.T) {
	h := newHarness(t)
	h.registry.Register(domain.TaskTypeChat, "", HandlerFunc(func(context.Context, Input) Outcome {
		panic("nil map")
	}))
	h.seedVendor("V1", domain.VendorStatusContacted)
	id := h.enqueue("V1", domain.TaskTypeChat, nil)

	h.runCycle()

	got := h.task(id)
	assert.Equal(t, domain.TaskStatusFailed, got.Status)
	assert.Contains(t, got.Error, ErrHandlerPanic.Error())
}

func TestUnroutedTaskFails(t *testing.T) {
	h := newHarness(t)
	_, log := logger.NewTestLogger(t)
	h.dispatcher = NewDispatcher(h.store, h.queue, h.activities, NewRegistry(), DefaultDispatcherConfig(), log,
		WithClock(h.clock.Now))
	h.seedVendor("V1", domain.VendorStatusContacted)
	id := h.enqueue("V1", domain.TaskTypeChat, nil)

	h.runCycle()

	got := h.task(id)
	assert.Equal(t, domain.TaskStatusFailed, got.Status)
	assert.Contains(t, got.Error, ErrNoHandler.Error())
}

func TestLeasedVendorIsSkipped(t *testing.T) {
	h := newHarness(t)
	locker := NewLocalLocker()
	_, log := logger.NewTestLogger(t)
	h.dispatcher = NewDispatcher(h.store, h.queue, h.activities, h.registry, DefaultDispatcherConfig(), log,
		WithClock(h.clock.Now), WithLocker(locker))
	h.seedVendor("V1", domain.VendorStatusContacted)
	id := h.enqueue("V1", domain.TaskTypeChat, map[string]any{domain.MetaMessage: "hi"})

	ok, err := locker.TryLock(h.ctx, "V1", "someone-else", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	stats := h.runCycle()
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, domain.TaskStatusPending, h.task(id).Status)

	require.NoError(t, locker.Unlock(h.ctx, "V1", "someone-else"))
	stats = h.runCycle()
	assert.Equal(t, 1, stats.Completed)
}

func TestConcurrentVendorChangeIsRetried(t *testing.T) {
	h := newHarness(t)
	h.seedVendor("V1", domain.VendorStatusApproved)
	h.notifier.SendFn = func(ctx context.Context, _ capability.Channel, _ string, _ capability.Content) (string, error) {
		err := h.store.Update(ctx, store.CollectionVendors, "V1", store.Fields{
			store.FieldStatusUpdatedAt: store.FormatTime(h.clock.Now().Add(time.Second)),
		})
		return "delivery-1", err
	}
	id := h.enqueue("V1", domain.TaskTypeSend, map[string]any{
		domain.MetaChannel:   "email",
		domain.MetaRecipient: "owner@acme.example",
		domain.MetaBody:      "hello",
	})

	stats := h.runCycle()

	assert.Equal(t, 1, stats.Retried)
	got := h.task(id)
	assert.Equal(t, domain.TaskStatusRetry, got.Status)
	assert.Contains(t, got.Error, domain.ErrConflict.Error())
	assert.Equal(t, domain.VendorStatusApproved, h.vendor("V1").Status)
	assert.Empty(t, h.activitiesOf("V1"), "no partial effects are committed")
}

func TestRunCycleReturnsInfrastructureErrors(t *testing.T) {
	h := newHarness(t)
	h.dispatcher.locker = failingLocker{}
	h.seedVendor("V1", domain.VendorStatusContacted)
	h.enqueue("V1", domain.TaskTypeChat, nil)

	stats, err := h.dispatcher.RunCycle(h.ctx)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "lease unavailable")
	assert.Equal(t, 1, stats.Skipped)
}

type failingLocker struct{}

func (failingLocker) TryLock(context.Context, string, string, time.Duration) (bool, error) {
	return false, errors.New("lease unavailable")
}

func (failingLocker) Unlock(context.Context, string, string) error { return nil }

func TestStartProcessesUntilStopped(t *testing.T) {
	h := newHarness(t, func(c *DispatcherConfig) { c.PollInterval = 5 * time.Millisecond })
	var calls atomic.Int32
	h.registry.Register(domain.TaskTypeChat, "", HandlerFunc(func(context.Context, Input) Outcome {
		calls.Add(1)
		return Success(Effects{Event: lifecycle.EventVendorReplied})
	}))
	h.seedVendor("V1", domain.VendorStatusContacted)
	id := h.enqueue("V1", domain.TaskTypeChat, nil)

	require.NoError(t, h.dispatcher.Start(h.ctx))
	assert.ErrorIs(t, h.dispatcher.Start(h.ctx), ErrAlreadyRunning)

	assert.Eventually(t, func() bool {
		got, err := h.queue.Get(h.ctx, id)
		return err == nil && got.Status == domain.TaskStatusCompleted
	}, 2*time.Second, 5*time.Millisecond)
	h.dispatcher.Stop()
	h.dispatcher.Stop()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, domain.VendorStatusNegotiating, h.vendor("V1").Status)
}
