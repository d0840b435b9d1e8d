package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// reapBatch bounds the claims inspected per sweep.
const reapBatch = 100

// Reaper returns claims abandoned by crashed workers to the queue. A claim
// older than the stuck age counts as a failed attempt: it becomes RETRY
// under the retry policy, or FAILED once retries are exhausted.
type Reaper struct {
	queue    *Queue
	retry    RetryPolicy
	stuckAge time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// NewReaper creates a Reaper.
func NewReaper(q *Queue, retry RetryPolicy, stuckAge time.Duration, logger *slog.Logger) *Reaper {
	return &Reaper{
		queue:    q,
		retry:    retry,
		stuckAge: stuckAge,
		logger:   logger.With("component", "reaper"),
		now:      time.Now,
	}
}

// Sweep releases every claim older than the stuck age and returns how
// many were released.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	now := r.now()
	stuck, err := r.queue.Claimed(ctx, now.Add(-r.stuckAge), reapBatch)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, t := range stuck {
		next, retry := r.retry.Next(t.RetryCount, now)
		ok, err := r.queue.Release(ctx, t, ErrClaimExpired.Error(), next, retry)
		if err != nil {
			return released, err
		}
		if !ok {
			continue
		}
		released++
		reapedCounter.Inc()
		r.logger.Warn("released stuck claim",
			"task_id", t.ID,
			"task_type", t.Type,
			"vendor_id", t.VendorID,
			"claimed_by", t.ClaimedBy,
			"claimed_at", t.ClaimedAt,
			"retry", retry)
	}
	return released, nil
}

// Start schedules Sweep with a cron expression such as "@every 1m".
func (r *Reaper) Start(ctx context.Context, schedule string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return ErrAlreadyRunning
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, func() {
		if n, err := r.Sweep(ctx); err != nil {
			r.logger.Error("reaper sweep failed", "error", err)
		} else if n > 0 {
			r.logger.Info("reaper sweep finished", "released", n)
		}
	}); err != nil {
		return fmt.Errorf("invalid reaper schedule %q: %w", schedule, err)
	}
	c.Start()
	r.cron = c
	r.logger.Info("reaper started", "schedule", schedule, "stuck_age", r.stuckAge)
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (r *Reaper) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}
