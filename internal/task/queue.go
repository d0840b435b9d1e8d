package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/vendorflow/internal/domain"
	"github.com/phrazzld/vendorflow/internal/domain/lifecycle"
	"github.com/phrazzld/vendorflow/internal/store"
)

var activeStatuses = []string{
	string(domain.TaskStatusPending),
	string(domain.TaskStatusClaimed),
	string(domain.TaskStatusRetry),
}

var dueStatuses = []string{
	string(domain.TaskStatusPending),
	string(domain.TaskStatusRetry),
}

// maxBatch bounds writes per commit so every engine can apply them in one
// transaction.
const maxBatch = 100

// Queue persists tasks and moves them through their status lifecycle using
// conditional writes.
type Queue struct {
	store  store.DocumentStore
	logger *slog.Logger
	now    func() time.Time
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithQueueClock overrides the time source for created and updated stamps.
func WithQueueClock(now func() time.Time) QueueOption {
	return func(q *Queue) { q.now = now }
}

// NewQueue creates a Queue over s.
func NewQueue(s store.DocumentStore, logger *slog.Logger, opts ...QueueOption) *Queue {
	q := &Queue{
		store:  s,
		logger: logger.With("component", "task_queue"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// EnqueueWrite builds a new PENDING task as a create write; the caller
// commits it, usually together with related writes. A nil scheduledAt
// means due immediately.
func (q *Queue) EnqueueWrite(
	vendorID string,
	taskType domain.TaskType,
	metadata map[string]any,
	scheduledAt *time.Time,
) (store.Write, domain.Task, error) {
	if vendorID == "" {
		return store.Write{}, domain.Task{}, domain.ErrEmptyVendorID
	}
	if !taskType.IsValid() {
		return store.Write{}, domain.Task{}, fmt.Errorf("%w: %q", domain.ErrInvalidTaskType, taskType)
	}

	now := q.now().UTC()
	due := now
	if scheduledAt != nil {
		due = scheduledAt.UTC()
	}
	meta := make(map[string]any, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}

	t := domain.Task{
		ID:          store.NewID(),
		VendorID:    vendorID,
		Type:        taskType,
		Status:      domain.TaskStatusPending,
		ScheduledAt: due,
		CreatedAt:   now,
		UpdatedAt:   now,
		Metadata:    meta,
	}
	return store.Create(store.CollectionTasks, t.ID, store.TaskFields(t)), t, nil
}

// Enqueue stores a new PENDING task and returns its id. Duplicate
// suppression is the caller's concern; see HasActive.
func (q *Queue) Enqueue(
	ctx context.Context,
	vendorID string,
	taskType domain.TaskType,
	metadata map[string]any,
	scheduledAt *time.Time,
) (string, error) {
	w, t, err := q.EnqueueWrite(vendorID, taskType, metadata, scheduledAt)
	if err != nil {
		return "", err
	}
	if err := q.store.Commit(ctx, w); err != nil {
		return "", fmt.Errorf("enqueue %s task for vendor %s: %w", taskType, vendorID, err)
	}
	q.logger.Debug("task enqueued",
		"task_id", t.ID,
		"task_type", t.Type,
		"vendor_id", vendorID,
		"scheduled_at", t.ScheduledAt)
	return t.ID, nil
}

// Get loads a task. Returns domain.ErrTaskNotFound if it does not exist.
func (q *Queue) Get(ctx context.Context, id string) (domain.Task, error) {
	doc, err := q.store.Get(ctx, store.CollectionTasks, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Task{}, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("load task %s: %w", id, err)
	}
	return store.DecodeTask(doc)
}

// HasActive reports whether the vendor has a non-terminal task of the given
// type whose metadata contains every key/value in match.
func (q *Queue) HasActive(
	ctx context.Context,
	vendorID string,
	taskType domain.TaskType,
	match map[string]any,
) (bool, error) {
	filters := []store.Filter{
		store.Where(store.FieldVendorID, store.OpEqual, vendorID),
		store.Where(store.FieldType, store.OpEqual, string(taskType)),
		store.Where(store.FieldStatus, store.OpIn, activeStatuses),
	}
	for k, v := range match {
		filters = append(filters, store.Where(store.FieldMetadata+"."+k, store.OpEqual, v))
	}
	docs, err := q.store.Query(ctx, store.CollectionTasks, store.Query{Filters: filters, Limit: 1})
	if err != nil {
		return false, fmt.Errorf("check active %s tasks for vendor %s: %w", taskType, vendorID, err)
	}
	return len(docs) > 0, nil
}

// FollowUpWrites renders create writes for followUps, skipping any whose
// type and subtype already has a non-terminal task for the vendor, either
// stored or earlier in the same batch. The task named by except is ignored,
// normally the claimed task being completed. It returns the follow-ups that
// were kept.
func (q *Queue) FollowUpWrites(
	ctx context.Context,
	vendorID string,
	followUps []lifecycle.FollowUp,
	except string,
) ([]store.Write, []lifecycle.FollowUp, error) {
	var (
		writes []store.Write
		kept   []lifecycle.FollowUp
		seen   = make(map[string]bool, len(followUps))
	)
	for _, fu := range followUps {
		subtype, _ := fu.Metadata[domain.MetaSubtype].(string)
		key := string(fu.Type) + "/" + subtype
		if seen[key] {
			continue
		}
		seen[key] = true

		active, err := q.activeExcept(ctx, vendorID, fu.Type, subtype, except)
		if err != nil {
			return nil, nil, err
		}
		if active {
			q.logger.Info("follow-up suppressed; task already active",
				"vendor_id", vendorID, "task_type", fu.Type, "subtype", subtype)
			continue
		}

		w, _, err := q.EnqueueWrite(vendorID, fu.Type, fu.Metadata, nil)
		if err != nil {
			return nil, nil, err
		}
		writes = append(writes, w)
		kept = append(kept, fu)
	}
	return writes, kept, nil
}

func (q *Queue) activeExcept(
	ctx context.Context,
	vendorID string,
	taskType domain.TaskType,
	subtype string,
	except string,
) (bool, error) {
	filters := []store.Filter{
		store.Where(store.FieldVendorID, store.OpEqual, vendorID),
		store.Where(store.FieldType, store.OpEqual, string(taskType)),
		store.Where(store.FieldStatus, store.OpIn, activeStatuses),
	}
	if subtype != "" {
		filters = append(filters, store.Where(store.FieldMetadata+"."+domain.MetaSubtype, store.OpEqual, subtype))
	}
	docs, err := q.store.Query(ctx, store.CollectionTasks, store.Query{Filters: filters, Limit: 2})
	if err != nil {
		return false, fmt.Errorf("check active %s tasks for vendor %s: %w", taskType, vendorID, err)
	}
	for _, doc := range docs {
		if doc.ID != except {
			return true, nil
		}
	}
	return false, nil
}

// FetchDue returns up to limit PENDING or RETRY tasks scheduled at or
// before now, earliest first.
func (q *Queue) FetchDue(ctx context.Context, now time.Time, limit int) ([]domain.Task, error) {
	docs, err := q.store.Query(ctx, store.CollectionTasks, store.Query{
		Filters: []store.Filter{
			store.Where(store.FieldStatus, store.OpIn, dueStatuses),
			store.Where(store.FieldScheduledAt, store.OpLessEqual, store.FormatTime(now)),
		},
		OrderBy: store.FieldScheduledAt,
		Limit:   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch due tasks: %w", err)
	}
	return decodeTasks(docs)
}

// Claim moves a PENDING or RETRY task to CLAIMED for workerID. Exactly one
// of any number of concurrent claimers gets true.
// Returns domain.ErrTaskNotFound if the task does not exist.
func (q *Queue) Claim(ctx context.Context, id, workerID string, now time.Time) (bool, error) {
	stamp := store.FormatTime(now)
	ok, err := q.store.UpdateIf(ctx, store.CollectionTasks, id,
		[]store.Filter{store.Where(store.FieldStatus, store.OpIn, dueStatuses)},
		store.Fields{
			store.FieldStatus:    string(domain.TaskStatusClaimed),
			store.FieldClaimedBy: workerID,
			store.FieldClaimedAt: stamp,
			store.FieldUpdatedAt: stamp,
		})
	if errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
	}
	if err != nil {
		return false, fmt.Errorf("claim task %s: %w", id, err)
	}
	return ok, nil
}

// CompleteWrite renders the completion of a claimed task as a write guarded
// by the claim, for inclusion in the atomic success commit.
func (q *Queue) CompleteWrite(t domain.Task) store.Write {
	return store.Update(store.CollectionTasks, t.ID, completedFields(q.now()), claimGuard(t)...)
}

// MarkCompleted finishes a task. Already terminal tasks are left unchanged.
// Returns domain.ErrTaskNotFound if the task does not exist.
func (q *Queue) MarkCompleted(ctx context.Context, id string) error {
	return q.markTerminal(ctx, id, completedFields(q.now()))
}

// MarkFailed fails a task for good with the given reason. Already terminal
// tasks are left unchanged.
func (q *Queue) MarkFailed(ctx context.Context, id, reason string) error {
	stamp := store.FormatTime(q.now())
	return q.markTerminal(ctx, id, store.Fields{
		store.FieldStatus:      string(domain.TaskStatusFailed),
		store.FieldError:       reason,
		store.FieldUpdatedAt:   stamp,
		store.FieldCompletedAt: stamp,
	})
}

// MarkRetry schedules another attempt at next and increments retryCount.
// Already terminal tasks are left unchanged.
func (q *Queue) MarkRetry(ctx context.Context, id, reason string, next time.Time) error {
	t, err := q.Get(ctx, id)
	if err != nil {
		return err
	}
	if t.Status.IsTerminal() {
		return nil
	}

	ok, err := q.store.UpdateIf(ctx, store.CollectionTasks, id,
		[]store.Filter{
			store.Where(store.FieldStatus, store.OpEqual, string(t.Status)),
			store.Where(store.FieldRetryCount, store.OpEqual, t.RetryCount),
		},
		store.Fields{
			store.FieldStatus:      string(domain.TaskStatusRetry),
			store.FieldError:       reason,
			store.FieldRetryCount:  t.RetryCount + 1,
			store.FieldScheduledAt: store.FormatTime(next),
			store.FieldUpdatedAt:   store.FormatTime(q.now()),
			store.FieldClaimedBy:   store.DeleteField,
			store.FieldClaimedAt:   store.DeleteField,
		})
	if err != nil {
		return fmt.Errorf("mark task %s retry: %w", id, err)
	}
	if ok {
		return nil
	}

	current, err := q.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Status.IsTerminal() {
		return nil
	}
	return fmt.Errorf("%w: task %s changed while scheduling retry", domain.ErrConflict, id)
}

func (q *Queue) markTerminal(ctx context.Context, id string, fields store.Fields) error {
	ok, err := q.store.UpdateIf(ctx, store.CollectionTasks, id,
		[]store.Filter{store.Where(store.FieldStatus, store.OpIn, activeStatuses)},
		fields)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("finish task %s: %w", id, err)
	}
	if !ok {
		q.logger.Debug("task already terminal", "task_id", id)
	}
	return nil
}

// List returns a vendor's tasks, oldest first.
func (q *Queue) List(ctx context.Context, vendorID string) ([]domain.Task, error) {
	docs, err := q.store.Query(ctx, store.CollectionTasks, store.Query{
		Filters: []store.Filter{store.Where(store.FieldVendorID, store.OpEqual, vendorID)},
		OrderBy: store.FieldCreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("list tasks for vendor %s: %w", vendorID, err)
	}
	return decodeTasks(docs)
}

// Claimed returns CLAIMED tasks whose claim was taken at or before cutoff.
func (q *Queue) Claimed(ctx context.Context, cutoff time.Time, limit int) ([]domain.Task, error) {
	docs, err := q.store.Query(ctx, store.CollectionTasks, store.Query{
		Filters: []store.Filter{
			store.Where(store.FieldStatus, store.OpEqual, string(domain.TaskStatusClaimed)),
			store.Where(store.FieldClaimedAt, store.OpLessEqual, store.FormatTime(cutoff)),
		},
		OrderBy: store.FieldClaimedAt,
		Limit:   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list stuck claims: %w", err)
	}
	return decodeTasks(docs)
}

// Release returns an expired claim to the queue, either as RETRY at next or
// as FAILED when retry is false. It reports false when the claim changed
// since t was read.
func (q *Queue) Release(ctx context.Context, t domain.Task, reason string, next time.Time, retry bool) (bool, error) {
	stamp := store.FormatTime(q.now())
	fields := store.Fields{
		store.FieldError:      reason,
		store.FieldRetryCount: t.RetryCount + 1,
		store.FieldUpdatedAt:  stamp,
		store.FieldClaimedBy:  store.DeleteField,
		store.FieldClaimedAt:  store.DeleteField,
	}
	if retry {
		fields[store.FieldStatus] = string(domain.TaskStatusRetry)
		fields[store.FieldScheduledAt] = store.FormatTime(next)
	} else {
		fields[store.FieldStatus] = string(domain.TaskStatusFailed)
		fields[store.FieldCompletedAt] = stamp
	}

	conds := append(claimGuard(t), store.Where(store.FieldClaimedAt, store.OpEqual, store.FormatTime(t.ClaimedAt)))
	ok, err := q.store.UpdateIf(ctx, store.CollectionTasks, t.ID, conds, fields)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("release task %s: %w", t.ID, err)
	}
	return ok, nil
}

// DeleteTerminal removes a vendor's COMPLETED and FAILED tasks and returns
// how many were deleted.
func (q *Queue) DeleteTerminal(ctx context.Context, vendorID string) (int, error) {
	docs, err := q.store.Query(ctx, store.CollectionTasks, store.Query{
		Filters: []store.Filter{
			store.Where(store.FieldVendorID, store.OpEqual, vendorID),
			store.Where(store.FieldStatus, store.OpIn, []string{
				string(domain.TaskStatusCompleted),
				string(domain.TaskStatusFailed),
			}),
		},
	})
	if err != nil {
		return 0, fmt.Errorf("list terminal tasks for vendor %s: %w", vendorID, err)
	}

	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
	}
	for start := 0; start < len(ids); start += maxBatch {
		end := min(start+maxBatch, len(ids))
		if err := q.store.BatchDelete(ctx, store.CollectionTasks, ids[start:end]); err != nil {
			return start, fmt.Errorf("delete terminal tasks for vendor %s: %w", vendorID, err)
		}
	}
	return len(ids), nil
}

func completedFields(now time.Time) store.Fields {
	stamp := store.FormatTime(now)
	return store.Fields{
		store.FieldStatus:      string(domain.TaskStatusCompleted),
		store.FieldError:       store.DeleteField,
		store.FieldUpdatedAt:   stamp,
		store.FieldCompletedAt: stamp,
	}
}

func claimGuard(t domain.Task) []store.Filter {
	conds := []store.Filter{store.Where(store.FieldStatus, store.OpEqual, string(domain.TaskStatusClaimed))}
	if t.ClaimedBy != "" {
		conds = append(conds, store.Where(store.FieldClaimedBy, store.OpEqual, t.ClaimedBy))
	}
	return conds
}

func decodeTasks(docs []store.Document) ([]domain.Task, error) {
	out := make([]domain.Task, 0, len(docs))
	for _, doc := range docs {
		t, err := store.DecodeTask(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
