package api

import (
	"context"

	"github.com/phrazzld/vendorflow/internal/domain"
	"github.com/phrazzld/vendorflow/internal/domain/lifecycle"
	"github.com/phrazzld/vendorflow/internal/service"
)

// mockVendorService implements service.VendorService with overridable functions.
type mockVendorService struct {
	SeedVendorFn     func(ctx context.Context, fields map[string]any) (domain.Vendor, error)
	GetVendorFn      func(ctx context.Context, id string) (domain.Vendor, error)
	ApplyEventFn     func(ctx context.Context, id string, e lifecycle.Event) (domain.Vendor, error)
	ResetVendorFn    func(ctx context.Context, id string) (domain.Vendor, error)
	SubmitDocumentFn func(ctx context.Context, id string, d domain.DocumentType) (string, bool, error)
	SubmitMessageFn  func(ctx context.Context, id, msg string) (string, error)
	PurgeTasksFn     func(ctx context.Context, id string) (int, error)
	ListActivitiesFn func(ctx context.Context, id string) ([]domain.Activity, error)
	ListTasksFn      func(ctx context.Context, id string) ([]domain.Task, error)
}

var _ service.VendorService = (*mockVendorService)(nil)

func (m *mockVendorService) SeedVendor(ctx context.Context, fields map[string]any) (domain.Vendor, error) {
	return m.SeedVendorFn(ctx, fields)
}

func (m *mockVendorService) GetVendor(ctx context.Context, id string) (domain.Vendor, error) {
	return m.GetVendorFn(ctx, id)
}

func (m *mockVendorService) Approve(ctx context.Context, id string) (domain.Vendor, error) {
	return m.ApplyEvent(ctx, id, lifecycle.EventApprove)
}

func (m *mockVendorService) Reject(ctx context.Context, id string) (domain.Vendor, error) {
	return m.ApplyEvent(ctx, id, lifecycle.EventReject)
}

func (m *mockVendorService) ApplyEvent(ctx context.Context, id string, e lifecycle.Event) (domain.Vendor, error) {
	return m.ApplyEventFn(ctx, id, e)
}

func (m *mockVendorService) ResetVendor(ctx context.Context, id string) (domain.Vendor, error) {
	return m.ResetVendorFn(ctx, id)
}

func (m *mockVendorService) SubmitDocument(
	ctx context.Context,
	id string,
	d domain.DocumentType,
) (string, bool, error) {
	return m.SubmitDocumentFn(ctx, id, d)
}

func (m *mockVendorService) SubmitMessage(ctx context.Context, id, msg string) (string, error) {
	return m.SubmitMessageFn(ctx, id, msg)
}

func (m *mockVendorService) PurgeTasks(ctx context.Context, id string) (int, error) {
	return m.PurgeTasksFn(ctx, id)
}

func (m *mockVendorService) ListActivities(ctx context.Context, id string) ([]domain.Activity, error) {
	return m.ListActivitiesFn(ctx, id)
}

func (m *mockVendorService) ListTasks(ctx context.Context, id string) ([]domain.Task, error) {
	return m.ListTasksFn(ctx, id)
}
