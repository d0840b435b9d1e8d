package activity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/vendorflow/internal/domain"
	"github.com/phrazzld/vendorflow/internal/events"
	"github.com/phrazzld/vendorflow/internal/store"
)

// Record is the published form of an activity entry.
type Record struct {
	ID          string         `json:"id"`
	VendorID    string         `json:"vendorId"`
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   string         `json:"createdAt"`
}

// NewRecord converts a to its published form.
func NewRecord(a domain.Activity) Record {
	return Record{
		ID:          a.ID,
		VendorID:    a.VendorID,
		Type:        string(a.Type),
		Description: a.Description,
		Metadata:    a.Metadata,
		CreatedAt:   store.FormatTime(a.CreatedAt),
	}
}

// Logger appends and reads vendor activity entries.
type Logger struct {
	store   store.DocumentStore
	emitter events.EventEmitter
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Logger.
type Option func(*Logger)

// WithClock overrides the time source used to stamp entries.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// NewLogger creates a Logger. A nil emitter disables publishing.
func NewLogger(s store.DocumentStore, emitter events.EventEmitter, logger *slog.Logger, opts ...Option) *Logger {
	if emitter == nil {
		emitter = events.Discard
	}
	l := &Logger{
		store:   s,
		emitter: emitter,
		logger:  logger.With("component", "activity_logger"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// EntryWrite validates a, assigns its id and timestamp when missing, and
// returns the create write for inclusion in a commit along with the
// completed entry.
func (l *Logger) EntryWrite(a domain.Activity) (store.Write, domain.Activity, error) {
	if err := a.Validate(); err != nil {
		return store.Write{}, domain.Activity{}, err
	}
	if a.ID == "" {
		a.ID = store.NewID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = l.now().UTC()
	}
	if a.Metadata == nil {
		a.Metadata = map[string]any{}
	}
	return store.Create(store.CollectionActivities, a.ID, store.ActivityFields(a)), a, nil
}

// Append writes a single entry and publishes it.
func (l *Logger) Append(ctx context.Context, a domain.Activity) (domain.Activity, error) {
	w, entry, err := l.EntryWrite(a)
	if err != nil {
		return domain.Activity{}, err
	}
	if err := l.store.Commit(ctx, w); err != nil {
		return domain.Activity{}, fmt.Errorf("append activity for vendor %s: %w", a.VendorID, err)
	}
	l.Publish(ctx, entry)
	return entry, nil
}

// Publish emits one activity.appended event per entry. Call it only after
// the commit containing the entries succeeded. Emit failures are logged.
func (l *Logger) Publish(ctx context.Context, entries ...domain.Activity) {
	for _, a := range entries {
		event, err := events.NewVendorEvent(events.TypeActivityAppended, a.VendorID, NewRecord(a))
		if err != nil {
			l.logger.Error("failed to encode activity event", "error", err, "activity_id", a.ID)
			continue
		}
		if err := l.emitter.EmitEvent(ctx, event); err != nil {
			l.logger.Warn("activity event not delivered",
				"error", err,
				"activity_id", a.ID,
				"vendor_id", a.VendorID)
		}
	}
}

// List returns a vendor's entries oldest first.
func (l *Logger) List(ctx context.Context, vendorID string) ([]domain.Activity, error) {
	docs, err := l.store.Query(ctx, store.CollectionActivities, store.Query{
		Filters: []store.Filter{store.Where(store.FieldVendorID, store.OpEqual, vendorID)},
		OrderBy: store.FieldCreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("list activities for vendor %s: %w", vendorID, err)
	}
	out := make([]domain.Activity, len(docs))
	for i, doc := range docs {
		out[i] = store.DecodeActivity(doc)
	}
	return out, nil
}

// HasTaskEntry reports whether an entry produced by taskID exists for the vendor.
func (l *Logger) HasTaskEntry(ctx context.Context, vendorID, taskID string) (bool, error) {
	docs, err := l.store.Query(ctx, store.CollectionActivities, store.Query{
		Filters: []store.Filter{
			store.Where(store.FieldVendorID, store.OpEqual, vendorID),
			store.Where(store.FieldMetadata+"."+domain.MetaTaskID, store.OpEqual, taskID),
		},
		Limit: 1,
	})
	if err != nil {
		return false, fmt.Errorf("check task entry %s: %w", taskID, err)
	}
	return len(docs) > 0, nil
}

// DeleteAllWrites returns delete writes for every entry of the vendor.
func (l *Logger) DeleteAllWrites(ctx context.Context, vendorID string) ([]store.Write, error) {
	docs, err := l.store.Query(ctx, store.CollectionActivities, store.Query{
		Filters: []store.Filter{store.Where(store.FieldVendorID, store.OpEqual, vendorID)},
	})
	if err != nil {
		return nil, fmt.Errorf("list activities for vendor %s: %w", vendorID, err)
	}
	writes := make([]store.Write, len(docs))
	for i, doc := range docs {
		writes[i] = store.Delete(store.CollectionActivities, doc.ID)
	}
	return writes, nil
}
