package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/phrazzld/vendorflow/internal/activity"
	"github.com/phrazzld/vendorflow/internal/config"
	"github.com/phrazzld/vendorflow/internal/domain"
	"github.com/phrazzld/vendorflow/internal/events"
	"github.com/phrazzld/vendorflow/internal/redact"
	"github.com/phrazzld/vendorflow/internal/store"
	"github.com/phrazzld/vendorflow/internal/vendor"
	"golang.org/x/sync/errgroup"
)

// maxCycleBackoff caps the wait between cycles while the store is failing.
const maxCycleBackoff = 5 * time.Minute

// DispatcherConfig holds the dispatcher's runtime settings.
type DispatcherConfig struct {
	// WorkerID identifies this process in claims and leases
	WorkerID string

	// WorkerCount bounds concurrently executing tasks per cycle
	WorkerCount int

	// BatchSize bounds the tasks fetched per cycle
	BatchSize int

	// PollInterval is the pause between cycles
	PollInterval time.Duration

	// HandlerTimeout bounds each handler invocation
	HandlerTimeout time.Duration

	// LeaseTTL bounds how long a vendor lease is held
	LeaseTTL time.Duration

	// Retry decides when failed tasks run again
	Retry RetryPolicy
}

// NewDispatcherConfig maps loaded settings onto a DispatcherConfig.
func NewDispatcherConfig(cfg config.DispatcherConfig) DispatcherConfig {
	return DispatcherConfig{
		WorkerID:       cfg.WorkerID,
		WorkerCount:    cfg.WorkerCount,
		BatchSize:      cfg.BatchSize,
		PollInterval:   cfg.PollInterval,
		HandlerTimeout: cfg.HandlerTimeout,
		LeaseTTL:       cfg.LeaseTTL,
		Retry:          RetryPolicy{MaxRetries: cfg.MaxRetries, Base: cfg.BackoffBase},
	}
}

// DefaultDispatcherConfig returns a DispatcherConfig with reasonable defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		WorkerID:       "worker",
		WorkerCount:    4,
		BatchSize:      25,
		PollInterval:   2 * time.Second,
		HandlerTimeout: 30 * time.Second,
		LeaseTTL:       2 * time.Minute,
		Retry:          DefaultRetryPolicy(),
	}
}

// CycleStats summarizes one dispatch cycle.
type CycleStats struct {
	Fetched   int
	Skipped   int
	Completed int
	Retried   int
	Failed    int
	Replayed  int
}

type result int

const (
	resultSkipped result = iota
	resultCompleted
	resultReplayed
	resultRetried
	resultFailed
)

// Dispatcher polls the queue, claims due tasks, runs their handlers, and
// commits each outcome together with its vendor and activity changes.
type Dispatcher struct {
	store      store.DocumentStore
	queue      *Queue
	vendors    *vendor.Repository
	activities *activity.Logger
	registry   *Registry
	locker     VendorLocker
	emitter    events.EventEmitter
	cfg        DispatcherConfig
	logger     *slog.Logger
	now        func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithClock overrides the dispatcher's time source.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

// WithLocker replaces the in-process vendor locker.
func WithLocker(l VendorLocker) DispatcherOption {
	return func(d *Dispatcher) { d.locker = l }
}

// WithEmitter sets the emitter for handler signals.
func WithEmitter(e events.EventEmitter) DispatcherOption {
	return func(d *Dispatcher) { d.emitter = e }
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(
	s store.DocumentStore,
	queue *Queue,
	activities *activity.Logger,
	registry *Registry,
	cfg DispatcherConfig,
	logger *slog.Logger,
	opts ...DispatcherOption,
) *Dispatcher {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = cfg.WorkerCount
	}
	d := &Dispatcher{
		store:      s,
		queue:      queue,
		vendors:    vendor.NewRepository(s),
		activities: activities,
		registry:   registry,
		locker:     NewLocalLocker(),
		emitter:    events.Discard,
		cfg:        cfg,
		logger:     logger.With("component", "dispatcher", "worker_id", cfg.WorkerID),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RunCycle processes one batch of due tasks. Task-level failures are
// recorded on the tasks; only infrastructure errors are returned, joined.
func (d *Dispatcher) RunCycle(ctx context.Context) (CycleStats, error) {
	var stats CycleStats

	due, err := d.queue.FetchDue(ctx, d.now(), d.cfg.BatchSize)
	if err != nil {
		recordCycle(d.now(), err)
		return stats, err
	}
	stats.Fetched = len(due)

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(d.cfg.WorkerCount)

	for _, t := range due {
		g.Go(func() error {
			res, err := d.process(ctx, t)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("task %s: %w", t.ID, err))
			}
			switch res {
			case resultSkipped:
				stats.Skipped++
			case resultCompleted:
				stats.Completed++
			case resultReplayed:
				stats.Replayed++
			case resultRetried:
				stats.Retried++
			case resultFailed:
				stats.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	err = errors.Join(errs...)
	recordCycle(d.now(), err)
	return stats, err
}

// process leases the vendor, claims the task, and executes it.
func (d *Dispatcher) process(ctx context.Context, t domain.Task) (result, error) {
	owner := d.cfg.WorkerID + "/" + t.ID
	locked, err := d.locker.TryLock(ctx, t.VendorID, owner, d.cfg.LeaseTTL)
	if err != nil {
		return resultSkipped, fmt.Errorf("lease vendor %s: %w", t.VendorID, err)
	}
	if !locked {
		claimConflictCounter.Inc()
		return resultSkipped, nil
	}
	defer func() {
		if err := d.locker.Unlock(context.WithoutCancel(ctx), t.VendorID, owner); err != nil {
			d.logger.Warn("failed to release vendor lease", "vendor_id", t.VendorID, "error", err)
		}
	}()

	now := d.now()
	claimed, err := d.queue.Claim(ctx, t.ID, d.cfg.WorkerID, now)
	if errors.Is(err, domain.ErrTaskNotFound) {
		return resultSkipped, nil
	}
	if err != nil {
		return resultSkipped, err
	}
	if !claimed {
		claimConflictCounter.Inc()
		return resultSkipped, nil
	}
	t.Status = domain.TaskStatusClaimed
	t.ClaimedBy = d.cfg.WorkerID
	t.ClaimedAt = now

	return d.execute(ctx, t)
}

// execute runs a claimed task to one persisted outcome.
func (d *Dispatcher) execute(ctx context.Context, t domain.Task) (result, error) {
	log := d.logger.With("task_id", t.ID, "task_type", t.Type, "vendor_id", t.VendorID)

	// Writes after this point must land even if the cycle is being shut down.
	wctx := context.WithoutCancel(ctx)

	v, err := d.vendors.Get(ctx, t.VendorID)
	if errors.Is(err, domain.ErrVendorNotFound) {
		log.Warn("vendor missing, failing task")
		return d.fail(wctx, t, err)
	}
	if err != nil {
		return d.retryOrFail(wctx, t, err)
	}

	replayed, err := d.activities.HasTaskEntry(ctx, v.ID, t.ID)
	if err != nil {
		return d.retryOrFail(wctx, t, err)
	}
	if replayed {
		log.Info("task effects already committed, completing without re-running")
		if err := d.queue.MarkCompleted(wctx, t.ID); err != nil {
			return resultSkipped, err
		}
		recordOutcome(t.Type, "replayed")
		return resultReplayed, nil
	}

	out := d.invoke(ctx, t, v)
	log.Debug("handler returned", "outcome", out.Kind.String(), "error", out.Err)

	switch out.Kind {
	case OutcomeSuccess:
		return d.commitSuccess(wctx, t, v, out.Effects, log)
	case OutcomePermanent:
		return d.fail(wctx, t, out.Err)
	default:
		return d.retryOrFail(wctx, t, out.Err)
	}
}

// invoke calls the task's handler under the handler timeout. The worker
// waits at most HandlerTimeout: a handler still running at its deadline is
// abandoned and its eventual outcome discarded. Panics become failures.
func (d *Dispatcher) invoke(ctx context.Context, t domain.Task, v domain.Vendor) Outcome {
	h, ok := d.registry.Lookup(t)
	if !ok {
		return Permanent(fmt.Errorf("%w: %s", ErrNoHandler, t.Type))
	}

	hctx, cancel := context.WithTimeout(ctx, d.cfg.HandlerTimeout)
	defer cancel()

	start := time.Now()
	defer func() { observeHandler(t.Type, time.Since(start)) }()

	done := make(chan Outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Permanent(fmt.Errorf("%w: %v", ErrHandlerPanic, r))
			}
		}()
		done <- h.Handle(hctx, Input{Vendor: v, Task: t})
	}()

	timedOut := Retryable(fmt.Errorf("%w after %s", ErrHandlerTimeout, d.cfg.HandlerTimeout))
	select {
	case out := <-done:
		if out.Kind != OutcomeSuccess && errors.Is(hctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return timedOut
		}
		return out
	case <-hctx.Done():
		if ctx.Err() != nil {
			return Retryable(fmt.Errorf("handler interrupted: %w", ctx.Err()))
		}
		return timedOut
	}
}

// commitSuccess applies the handler's effects, the resulting transition,
// and the task completion as one commit.
func (d *Dispatcher) commitSuccess(
	ctx context.Context,
	t domain.Task,
	v domain.Vendor,
	effects Effects,
	log *slog.Logger,
) (result, error) {
	now := d.now().UTC()
	var (
		writes    []store.Write
		entries   []domain.Activity
		followUps = effects.FollowUps
	)

	pending := make([]domain.Activity, 0, len(effects.Activities)+1)
	if effects.Event != "" {
		plan, err := vendor.BuildTransition(v, effects.Event, now, t.ID)
		if err != nil {
			log.Warn("handler requested an illegal event", "event", effects.Event, "error", err)
			pending = append(pending, domain.Activity{
				Type:        domain.ActivityNote,
				Description: fmt.Sprintf("Event %s not applied: %v", effects.Event, err),
				Metadata: map[string]any{
					"event":  string(effects.Event),
					"status": string(v.Status),
				},
			})
		} else {
			writes = append(writes, plan.VendorWrite)
			pending = append(pending, plan.Activity)
			followUps = append(followUps, plan.Result.FollowUps...)
		}
	}
	pending = append(pending, effects.Activities...)

	for _, a := range pending {
		a.VendorID = v.ID
		a.CreatedAt = now
		a.Metadata = withTaskID(a.Metadata, t.ID)
		w, entry, err := d.activities.EntryWrite(a)
		if err != nil {
			return d.fail(ctx, t, err)
		}
		writes = append(writes, w)
		entries = append(entries, entry)
	}

	fuWrites, followUps, err := d.queue.FollowUpWrites(ctx, v.ID, followUps, t.ID)
	if errors.Is(err, domain.ErrValidation) {
		return d.fail(ctx, t, err)
	}
	if err != nil {
		return d.retryOrFail(ctx, t, err)
	}
	writes = append(writes, fuWrites...)

	writes = append(writes, d.queue.CompleteWrite(t))

	err = d.store.Commit(ctx, writes...)
	if errors.Is(err, store.ErrConditionFailed) {
		return d.resolveConflict(ctx, t, log)
	}
	if err != nil {
		return resultSkipped, fmt.Errorf("commit task effects: %w", err)
	}

	log.Info("task completed", "activities", len(entries), "follow_ups", len(followUps))
	recordOutcome(t.Type, OutcomeSuccess.String())

	d.activities.Publish(ctx, entries...)
	d.emitSignals(ctx, v.ID, effects.Signals)
	return resultCompleted, nil
}

// resolveConflict handles a failed success commit. A lost claim means
// another worker owns the task now; otherwise the vendor changed
// concurrently and the task is retried.
func (d *Dispatcher) resolveConflict(ctx context.Context, t domain.Task, log *slog.Logger) (result, error) {
	cur, err := d.queue.Get(ctx, t.ID)
	if errors.Is(err, domain.ErrTaskNotFound) {
		return resultSkipped, nil
	}
	if err != nil {
		return resultSkipped, err
	}
	if cur.Status != domain.TaskStatusClaimed || cur.ClaimedBy != t.ClaimedBy {
		log.Warn("claim lost before commit", "status", cur.Status, "claimed_by", cur.ClaimedBy)
		return resultSkipped, nil
	}
	return d.retryOrFail(ctx, cur, fmt.Errorf("%w: vendor %s", domain.ErrConflict, t.VendorID))
}

func (d *Dispatcher) retryOrFail(ctx context.Context, t domain.Task, cause error) (result, error) {
	next, ok := d.cfg.Retry.Next(t.RetryCount, d.now())
	if !ok {
		return d.fail(ctx, t, fmt.Errorf("%w: %w", ErrRetriesExhausted, cause))
	}
	if err := d.queue.MarkRetry(ctx, t.ID, redact.Error(cause), next); err != nil {
		return resultSkipped, err
	}
	d.logger.Info("task scheduled for retry",
		"task_id", t.ID,
		"task_type", t.Type,
		"vendor_id", t.VendorID,
		"retry_count", t.RetryCount+1,
		"scheduled_at", next,
		"error", redact.Error(cause))
	recordOutcome(t.Type, OutcomeRetryable.String())
	return resultRetried, nil
}

func (d *Dispatcher) fail(ctx context.Context, t domain.Task, cause error) (result, error) {
	if err := d.queue.MarkFailed(ctx, t.ID, redact.Error(cause)); err != nil {
		return resultSkipped, err
	}
	d.logger.Error("task failed",
		"task_id", t.ID,
		"task_type", t.Type,
		"vendor_id", t.VendorID,
		"error", redact.Error(cause))
	recordOutcome(t.Type, OutcomePermanent.String())
	return resultFailed, nil
}

func (d *Dispatcher) emitSignals(ctx context.Context, vendorID string, signals []Signal) {
	for _, s := range signals {
		event, err := events.NewVendorEvent(s.Type, vendorID, s.Payload)
		if err != nil {
			d.logger.Error("failed to encode signal", "type", s.Type, "error", err)
			continue
		}
		if err := d.emitter.EmitEvent(ctx, event); err != nil {
			d.logger.Warn("signal not delivered", "type", s.Type, "vendor_id", vendorID, "error", err)
		}
	}
}

func withTaskID(meta map[string]any, taskID string) map[string]any {
	out := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out[domain.MetaTaskID] = taskID
	return out
}

// Start runs cycles every PollInterval until Stop is called or ctx ends.
// Consecutive failing cycles back off exponentially up to maxCycleBackoff.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})

	go d.loop(ctx, d.done)
	d.logger.Info("dispatcher started",
		"worker_count", d.cfg.WorkerCount,
		"batch_size", d.cfg.BatchSize,
		"poll_interval", d.cfg.PollInterval)
	return nil
}

// Stop cancels the loop and waits for the in-flight cycle to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	d.logger.Info("dispatcher stopped")
}

func (d *Dispatcher) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.cfg.PollInterval
	b.MaxInterval = maxCycleBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		stats, err := d.RunCycle(ctx)
		wait := d.cfg.PollInterval
		if err != nil && ctx.Err() == nil {
			wait = b.NextBackOff()
			d.logger.Error("dispatch cycle failed", "error", redact.Error(err), "next_cycle_in", wait)
		} else {
			b.Reset()
			if stats.Fetched > 0 {
				d.logger.Debug("dispatch cycle finished",
					"fetched", stats.Fetched,
					"completed", stats.Completed,
					"retried", stats.Retried,
					"failed", stats.Failed,
					"skipped", stats.Skipped,
					"replayed", stats.Replayed)
			}
		}
		timer.Reset(wait)
	}
}
