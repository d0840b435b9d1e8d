package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/vendorflow/internal/activity"
	"github.com/phrazzld/vendorflow/internal/api/shared"
	"github.com/phrazzld/vendorflow/internal/domain"
	"github.com/phrazzld/vendorflow/internal/domain/lifecycle"
	"github.com/phrazzld/vendorflow/internal/events"
	"github.com/phrazzld/vendorflow/internal/platform/logger"
	"github.com/phrazzld/vendorflow/internal/platform/memory"
	"github.com/phrazzld/vendorflow/internal/service"
	"github.com/phrazzld/vendorflow/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(svc service.VendorService) http.Handler {
	r := chi.NewRouter()
	r.Route("/api", NewVendorHandler(svc).Routes)
	return r
}

func newMemoryRouter(t *testing.T) http.Handler {
	t.Helper()
	_, log := logger.NewTestLogger(t)
	clock := func() time.Time { return time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC) }

	s := memory.New()
	queue := task.NewQueue(s, log, task.WithQueueClock(clock))
	acts := activity.NewLogger(s, events.NewInMemoryEventEmitter(log), log, activity.WithClock(clock))
	svc, err := service.NewVendorService(s, queue, acts, log, service.WithClock(clock))
	require.NoError(t, err)
	return newTestRouter(svc)
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestVendorHandler_OperatorFlow(t *testing.T) {
	t.Parallel()
	h := newMemoryRouter(t)

	rec := do(t, h, http.MethodPost, "/api/vendors", map[string]any{
		"id":    "V1",
		"name":  "Acme Plumbing",
		"email": "ops@acme.example",
		"score": 82,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	seeded := decodeBody[VendorResponse](t, rec)
	assert.Equal(t, "Acme Plumbing", seeded.CompanyName)
	assert.Equal(t, string(domain.VendorStatusPendingReview), seeded.Status)
	assert.Equal(t, 82.0, seeded.FitScore)

	rec = do(t, h, http.MethodPost, "/api/vendors/V1/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, string(domain.VendorStatusApproved), decodeBody[VendorResponse](t, rec).Status)

	rec = do(t, h, http.MethodPost, "/api/vendors/V1/approve", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/vendors/V1/tasks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tasks := decodeBody[[]TaskResponse](t, rec)
	require.Len(t, tasks, 1)
	assert.Equal(t, string(domain.TaskTypeGenerate), tasks[0].Type)
	assert.Equal(t, string(domain.TaskStatusPending), tasks[0].Status)

	rec = do(t, h, http.MethodGet, "/api/vendors/V1/activities", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	acts := decodeBody[[]ActivityResponse](t, rec)
	require.Len(t, acts, 1)
	assert.Equal(t, string(domain.ActivityStatusChange), acts[0].Type)

	rec = do(t, h, http.MethodPost, "/api/vendors/V1/documents", DocumentRequest{DocType: "COI"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	first := decodeBody[EnqueuedResponse](t, rec)
	assert.True(t, first.Enqueued)
	assert.NotEmpty(t, first.TaskID)

	rec = do(t, h, http.MethodPost, "/api/vendors/V1/documents", DocumentRequest{DocType: "COI"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[EnqueuedResponse](t, rec).Enqueued)

	rec = do(t, h, http.MethodPost, "/api/vendors/V1/messages", MessageRequest{Message: "What are your rates?"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/vendors/V1/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(domain.VendorStatusPendingReview), decodeBody[VendorResponse](t, rec).Status)

	rec = do(t, h, http.MethodGet, "/api/vendors/V1/activities", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[[]ActivityResponse](t, rec))

	rec = do(t, h, http.MethodDelete, "/api/vendors/V1/tasks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decodeBody[PurgeResponse](t, rec).Deleted)
}

func TestVendorHandler_RequestValidation(t *testing.T) {
	t.Parallel()
	h := newMemoryRouter(t)
	rec := do(t, h, http.MethodPost, "/api/vendors", map[string]any{"id": "V1", "companyName": "Acme"})
	require.Equal(t, http.StatusCreated, rec.Code)

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
		wantError  string
	}{
		{"seed without name", http.MethodPost, "/api/vendors", map[string]any{"id": "V2"},
			http.StatusBadRequest, "Invalid CompanyName: required field"},
		{"seed with bad email", http.MethodPost, "/api/vendors",
			map[string]any{"companyName": "Beta", "contactEmail": "nope"},
			http.StatusBadRequest, "Invalid ContactEmail: invalid email format"},
		{"seed duplicate", http.MethodPost, "/api/vendors", map[string]any{"id": "V1", "companyName": "Acme"},
			http.StatusConflict, ""},
		{"seed malformed json", http.MethodPost, "/api/vendors", "{not json",
			http.StatusBadRequest, "Invalid request format"},
		{"seed empty body", http.MethodPost, "/api/vendors", nil,
			http.StatusBadRequest, "Request body is required"},
		{"unknown vendor", http.MethodGet, "/api/vendors/V404", nil,
			http.StatusNotFound, "Vendor not found"},
		{"unknown event", http.MethodPost, "/api/vendors/V1/events", EventRequest{Event: "TELEPORT"},
			http.StatusBadRequest, "Validation error"},
		{"missing event", http.MethodPost, "/api/vendors/V1/events", map[string]any{},
			http.StatusBadRequest, "Invalid Event: required field"},
		{"illegal event", http.MethodPost, "/api/vendors/V1/events", EventRequest{Event: "CONTRACT_SIGNED"},
			http.StatusConflict, "Event not allowed in the vendor's current status"},
		{"bad document type", http.MethodPost, "/api/vendors/V1/documents", DocumentRequest{DocType: "PASSPORT"},
			http.StatusBadRequest, "Invalid DocType: invalid value"},
		{"blank message", http.MethodPost, "/api/vendors/V1/messages", MessageRequest{Message: "   "},
			http.StatusBadRequest, "Validation error"},
		{"message for unknown vendor", http.MethodPost, "/api/vendors/V404/messages",
			MessageRequest{Message: "hello"}, http.StatusNotFound, "Vendor not found"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.wantStatus, rec.Code, rec.Body.String())
			if tc.wantError != "" {
				assert.Equal(t, tc.wantError, decodeBody[shared.ErrorResponse](t, rec).Error)
			}
		})
	}
}

func TestVendorHandler_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"conflict", fmt.Errorf("apply: %w", domain.ErrConflict), http.StatusConflict,
			"Vendor was modified concurrently or already exists"},
		{"transition", &lifecycle.InvalidTransitionError{
			From: domain.VendorStatusRejected, Event: lifecycle.EventApprove,
		}, http.StatusConflict, "Event not allowed in the vendor's current status"},
		{"infrastructure", errors.New("dial tcp 10.0.0.5:5432: password=hunter22 refused"),
			http.StatusInternalServerError, "An unexpected error occurred"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockVendorService{
				ApplyEventFn: func(context.Context, string, lifecycle.Event) (domain.Vendor, error) {
					return domain.Vendor{}, tc.err
				},
			}
			rec := do(t, newTestRouter(svc), http.MethodPost, "/api/vendors/V1/approve", nil)
			assert.Equal(t, tc.wantStatus, rec.Code)
			body := decodeBody[shared.ErrorResponse](t, rec)
			assert.Equal(t, tc.wantError, body.Error)
			assert.NotContains(t, rec.Body.String(), "hunter22")
		})
	}
}

func TestVendorHandler_PassesRequestToService(t *testing.T) {
	t.Parallel()

	var gotEvent lifecycle.Event
	var gotMessage string
	svc := &mockVendorService{
		ApplyEventFn: func(_ context.Context, id string, e lifecycle.Event) (domain.Vendor, error) {
			gotEvent = e
			return domain.Vendor{ID: id, Status: domain.VendorStatusContacted}, nil
		},
		SubmitMessageFn: func(_ context.Context, _ string, msg string) (string, error) {
			gotMessage = msg
			return "T9", nil
		},
	}
	h := newTestRouter(svc)

	rec := do(t, h, http.MethodPost, "/api/vendors/V7/events", EventRequest{Event: "OUTREACH_SENT"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, lifecycle.EventOutreachSent, gotEvent)
	assert.Equal(t, "V7", decodeBody[VendorResponse](t, rec).ID)

	rec = do(t, h, http.MethodPost, "/api/vendors/V7/messages", MessageRequest{Message: "Can you start Monday?"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "Can you start Monday?", gotMessage)
	assert.Equal(t, "T9", decodeBody[EnqueuedResponse](t, rec).TaskID)
}

func TestDecodeJSON_RejectsOversizedBody(t *testing.T) {
	t.Parallel()
	h := newMemoryRouter(t)

	huge := `{"companyName":"` + strings.Repeat("a", shared.MaxBodyBytes) + `"}`
	rec := do(t, h, http.MethodPost, "/api/vendors", huge)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
