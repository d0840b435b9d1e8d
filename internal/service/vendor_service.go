package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/vendorflow/internal/activity"
	"github.com/phrazzld/vendorflow/internal/domain"
	"github.com/phrazzld/vendorflow/internal/domain/lifecycle"
	"github.com/phrazzld/vendorflow/internal/platform/logger"
	"github.com/phrazzld/vendorflow/internal/store"
	"github.com/phrazzld/vendorflow/internal/task"
	"github.com/phrazzld/vendorflow/internal/vendor"
)

// SubtypeDocument routes operator-submitted documents to verification.
const SubtypeDocument = "document"

// SeedRequest is a new vendor record after legacy field names have been
// normalized.
type SeedRequest struct {
	ID                string  `json:"id"`
	CompanyName       string  `json:"companyName"       validate:"required"`
	Specialty         string  `json:"specialty"`
	Location          string  `json:"location"`
	ContactEmail      string  `json:"contactEmail"      validate:"omitempty,email"`
	ContactPhone      string  `json:"contactPhone"      validate:"omitempty,min=7,max=32"`
	FitScore          float64 `json:"fitScore"          validate:"gte=0,lte=100"`
	Reasoning         string  `json:"reasoning"`
	HasActiveContract bool    `json:"hasActiveContract"`
}

// VendorService exposes the operator actions on vendors. Every mutation is
// committed as one atomic unit together with its activity entries and
// follow-up tasks.
// Version: 1.0
type VendorService interface {
	// SeedVendor creates a PENDING_REVIEW vendor from a raw record, which may
	// use legacy field names. A missing id is generated.
	SeedVendor(ctx context.Context, fields map[string]any) (domain.Vendor, error)

	// GetVendor returns the vendor's current state.
	GetVendor(ctx context.Context, vendorID string) (domain.Vendor, error)

	// Approve moves a vendor under review to APPROVED and enqueues outreach generation.
	Approve(ctx context.Context, vendorID string) (domain.Vendor, error)

	// Reject moves any non-terminal vendor to REJECTED.
	Reject(ctx context.Context, vendorID string) (domain.Vendor, error)

	// ApplyEvent applies any lifecycle event on the operator's behalf.
	ApplyEvent(ctx context.Context, vendorID string, event lifecycle.Event) (domain.Vendor, error)

	// ResetVendor returns the vendor to PENDING_REVIEW and deletes its activity log.
	ResetVendor(ctx context.Context, vendorID string) (domain.Vendor, error)

	// SubmitDocument enqueues verification of a document. It reports false,
	// without enqueuing, when a verification of the same document type is
	// already pending for the vendor.
	SubmitDocument(ctx context.Context, vendorID string, docType domain.DocumentType) (string, bool, error)

	// SubmitMessage enqueues one conversation turn for an inbound vendor message.
	SubmitMessage(ctx context.Context, vendorID, message string) (string, error)

	// PurgeTasks deletes the vendor's COMPLETED and FAILED tasks.
	PurgeTasks(ctx context.Context, vendorID string) (int, error)

	// ListActivities returns the vendor's activity log, oldest first.
	ListActivities(ctx context.Context, vendorID string) ([]domain.Activity, error)

	// ListTasks returns the vendor's tasks, oldest first.
	ListTasks(ctx context.Context, vendorID string) ([]domain.Task, error)
}

// vendorServiceImpl implements the VendorService interface
type vendorServiceImpl struct {
	store      store.DocumentStore
	vendors    *vendor.Repository
	queue      *task.Queue
	activities *activity.Logger
	validate   *validator.Validate
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a VendorService.
type Option func(*vendorServiceImpl)

// WithClock overrides the service's time source.
func WithClock(now func() time.Time) Option {
	return func(s *vendorServiceImpl) { s.now = now }
}

// NewVendorService creates a new VendorService
// It returns an error if any of the required dependencies are nil.
func NewVendorService(
	s store.DocumentStore,
	queue *task.Queue,
	activities *activity.Logger,
	logger *slog.Logger,
	opts ...Option,
) (VendorService, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: store cannot be nil", domain.ErrValidation)
	}
	if queue == nil {
		return nil, fmt.Errorf("%w: queue cannot be nil", domain.ErrValidation)
	}
	if activities == nil {
		return nil, fmt.Errorf("%w: activity logger cannot be nil", domain.ErrValidation)
	}
	if logger == nil {
		logger = slog.Default()
	}

	svc := &vendorServiceImpl{
		store:      s,
		vendors:    vendor.NewRepository(s),
		queue:      queue,
		activities: activities,
		validate:   validator.New(),
		logger:     logger.With(slog.String("component", "vendor_service")),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// SeedVendor implements VendorService.SeedVendor
func (s *vendorServiceImpl) SeedVendor(ctx context.Context, fields map[string]any) (domain.Vendor, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	raw, err := json.Marshal(vendor.Normalize(fields))
	if err != nil {
		return domain.Vendor{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	var req SeedRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return domain.Vendor{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if err := s.validate.Struct(req); err != nil {
		return domain.Vendor{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if req.ID == "" {
		req.ID = store.NewID()
	}

	v, err := domain.NewVendor(req.ID, strings.TrimSpace(req.CompanyName), s.now())
	if err != nil {
		return domain.Vendor{}, err
	}
	v.Specialty = req.Specialty
	v.Location = req.Location
	v.ContactEmail = req.ContactEmail
	v.ContactPhone = req.ContactPhone
	v.FitScore = req.FitScore
	v.Reasoning = req.Reasoning
	v.HasActiveContract = req.HasActiveContract

	if err := s.vendors.Create(ctx, *v); err != nil {
		return domain.Vendor{}, NewVendorServiceError("seed", "failed to create vendor", err)
	}

	log.Info("vendor seeded", slog.String("vendor_id", v.ID))
	return *v, nil
}

// GetVendor implements VendorService.GetVendor
func (s *vendorServiceImpl) GetVendor(ctx context.Context, vendorID string) (domain.Vendor, error) {
	return s.vendors.Get(ctx, vendorID)
}

// Approve implements VendorService.Approve
func (s *vendorServiceImpl) Approve(ctx context.Context, vendorID string) (domain.Vendor, error) {
	return s.ApplyEvent(ctx, vendorID, lifecycle.EventApprove)
}

// Reject implements VendorService.Reject
func (s *vendorServiceImpl) Reject(ctx context.Context, vendorID string) (domain.Vendor, error) {
	return s.ApplyEvent(ctx, vendorID, lifecycle.EventReject)
}

// ApplyEvent implements VendorService.ApplyEvent
// The status change, its activity entry, and any follow-up tasks are
// committed together, guarded by the status that was read.
func (s *vendorServiceImpl) ApplyEvent(
	ctx context.Context,
	vendorID string,
	event lifecycle.Event,
) (domain.Vendor, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(
		slog.String("vendor_id", vendorID),
		slog.String("event", string(event)))

	v, err := s.vendors.Get(ctx, vendorID)
	if err != nil {
		return domain.Vendor{}, err
	}

	plan, err := vendor.BuildTransition(v, event, s.now(), "")
	if err != nil {
		log.Debug("event rejected", slog.String("status", string(v.Status)), slog.Any("error", err))
		return domain.Vendor{}, err
	}

	actWrite, entry, err := s.activities.EntryWrite(plan.Activity)
	if err != nil {
		return domain.Vendor{}, err
	}
	writes := []store.Write{plan.VendorWrite, actWrite}
	fuWrites, followUps, err := s.queue.FollowUpWrites(ctx, v.ID, plan.Result.FollowUps, "")
	if err != nil {
		return domain.Vendor{}, NewVendorServiceError("apply event", "failed to check active tasks", err)
	}
	writes = append(writes, fuWrites...)

	if err := s.store.Commit(ctx, writes...); err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			return domain.Vendor{}, fmt.Errorf("%w: vendor %s changed during %s", domain.ErrConflict, vendorID, event)
		}
		return domain.Vendor{}, NewVendorServiceError("apply event", "failed to commit transition", err)
	}

	log.Info("vendor status changed",
		slog.String("from", string(v.Status)),
		slog.String("to", string(plan.Vendor.Status)),
		slog.Int("follow_ups", len(followUps)))
	s.activities.Publish(ctx, entry)
	return plan.Vendor, nil
}

// ResetVendor implements VendorService.ResetVendor
func (s *vendorServiceImpl) ResetVendor(ctx context.Context, vendorID string) (domain.Vendor, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	v, err := s.vendors.Get(ctx, vendorID)
	if err != nil {
		return domain.Vendor{}, err
	}

	deletes, err := s.activities.DeleteAllWrites(ctx, vendorID)
	if err != nil {
		return domain.Vendor{}, NewVendorServiceError("reset", "failed to list activities", err)
	}

	now := s.now().UTC()
	writes := append([]store.Write{
		store.Update(store.CollectionVendors, vendorID, store.Fields{
			store.FieldStatus:          string(domain.VendorStatusPendingReview),
			store.FieldStatusUpdatedAt: store.FormatTime(now),
		}),
	}, deletes...)

	if err := s.store.Commit(ctx, writes...); err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			return domain.Vendor{}, fmt.Errorf("%w: vendor %s changed during reset", domain.ErrConflict, vendorID)
		}
		return domain.Vendor{}, NewVendorServiceError("reset", "failed to commit reset", err)
	}

	log.Info("vendor reset",
		slog.String("vendor_id", vendorID),
		slog.String("previous_status", string(v.Status)),
		slog.Int("activities_deleted", len(deletes)))

	v.Status = domain.VendorStatusPendingReview
	v.StatusUpdatedAt = now
	return v, nil
}

// SubmitDocument implements VendorService.SubmitDocument
func (s *vendorServiceImpl) SubmitDocument(
	ctx context.Context,
	vendorID string,
	docType domain.DocumentType,
) (string, bool, error) {
	if !docType.IsValid() {
		return "", false, fmt.Errorf("%w: %q", domain.ErrInvalidDocumentType, docType)
	}
	if _, err := s.vendors.Get(ctx, vendorID); err != nil {
		return "", false, err
	}

	pending, err := s.queue.HasActive(ctx, vendorID, domain.TaskTypeVerify,
		map[string]any{domain.MetaDocumentType: string(docType)})
	if err != nil {
		return "", false, NewVendorServiceError("submit document", "failed to check pending verifications", err)
	}
	if pending {
		logger.FromContextOrDefault(ctx, s.logger).Info("verification already pending",
			slog.String("vendor_id", vendorID),
			slog.String("doc_type", string(docType)))
		return "", false, nil
	}

	id, err := s.queue.Enqueue(ctx, vendorID, domain.TaskTypeVerify, map[string]any{
		domain.MetaSubtype:      SubtypeDocument,
		domain.MetaDocumentType: string(docType),
	}, nil)
	if err != nil {
		return "", false, NewVendorServiceError("submit document", "failed to enqueue verification", err)
	}
	return id, true, nil
}

// SubmitMessage implements VendorService.SubmitMessage
func (s *vendorServiceImpl) SubmitMessage(ctx context.Context, vendorID, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", fmt.Errorf("%w: message cannot be empty", domain.ErrValidation)
	}
	if _, err := s.vendors.Get(ctx, vendorID); err != nil {
		return "", err
	}

	id, err := s.queue.Enqueue(ctx, vendorID, domain.TaskTypeChat,
		map[string]any{domain.MetaMessage: message}, nil)
	if err != nil {
		return "", NewVendorServiceError("submit message", "failed to enqueue conversation turn", err)
	}
	return id, nil
}

// PurgeTasks implements VendorService.PurgeTasks
func (s *vendorServiceImpl) PurgeTasks(ctx context.Context, vendorID string) (int, error) {
	n, err := s.queue.DeleteTerminal(ctx, vendorID)
	if err != nil {
		return n, NewVendorServiceError("purge tasks", "failed to delete finished tasks", err)
	}
	logger.FromContextOrDefault(ctx, s.logger).Info("finished tasks purged",
		slog.String("vendor_id", vendorID),
		slog.Int("deleted", n))
	return n, nil
}

// ListActivities implements VendorService.ListActivities
func (s *vendorServiceImpl) ListActivities(ctx context.Context, vendorID string) ([]domain.Activity, error) {
	return s.activities.List(ctx, vendorID)
}

// ListTasks implements VendorService.ListTasks
func (s *vendorServiceImpl) ListTasks(ctx context.Context, vendorID string) ([]domain.Task, error) {
	return s.queue.List(ctx, vendorID)
}
