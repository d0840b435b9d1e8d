package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/vendorflow/internal/api/shared"
	"github.com/phrazzld/vendorflow/internal/domain"
	"github.com/phrazzld/vendorflow/internal/domain/lifecycle"
	"github.com/phrazzld/vendorflow/internal/platform/logger"
	"github.com/phrazzld/vendorflow/internal/service"
)

// VendorHandler serves the operator vendor endpoints.
type VendorHandler struct {
	vendors service.VendorService
}

// NewVendorHandler creates a new VendorHandler
func NewVendorHandler(vendors service.VendorService) *VendorHandler {
	return &VendorHandler{vendors: vendors}
}

// Routes mounts the vendor endpoints on r.
func (h *VendorHandler) Routes(r chi.Router) {
	r.Post("/vendors", h.SeedVendor)
	r.Route("/vendors/{id}", func(r chi.Router) {
		r.Get("/", h.GetVendor)
		r.Post("/approve", h.Approve)
		r.Post("/reject", h.Reject)
		r.Post("/reset", h.Reset)
		r.Post("/events", h.ApplyEvent)
		r.Post("/documents", h.SubmitDocument)
		r.Post("/messages", h.SubmitMessage)
		r.Get("/activities", h.ListActivities)
		r.Get("/tasks", h.ListTasks)
		r.Delete("/tasks", h.PurgeTasks)
	})
}

// SeedVendor handles POST /api/vendors. The body is a raw vendor record and
// may use legacy field names.
func (h *VendorHandler) SeedVendor(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := shared.DecodeJSON(w, r, &fields); err != nil {
		respondDecodeError(w, r, err)
		return
	}

	v, err := h.vendors.SeedVendor(r.Context(), fields)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	logger.FromContext(r.Context()).Info("vendor seeded via API", slog.String("vendor_id", v.ID))
	shared.RespondWithJSON(w, r, http.StatusCreated, vendorToResponse(v))
}

// GetVendor handles GET /api/vendors/{id}
func (h *VendorHandler) GetVendor(w http.ResponseWriter, r *http.Request) {
	id, _, ok := pathVendorID(w, r)
	if !ok {
		return
	}
	v, err := h.vendors.GetVendor(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, vendorToResponse(v))
}

// Approve handles POST /api/vendors/{id}/approve
func (h *VendorHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.applyEvent(w, r, lifecycle.EventApprove)
}

// Reject handles POST /api/vendors/{id}/reject
func (h *VendorHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.applyEvent(w, r, lifecycle.EventReject)
}

// ApplyEvent handles POST /api/vendors/{id}/events
func (h *VendorHandler) ApplyEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	h.applyEvent(w, r, lifecycle.Event(req.Event))
}

func (h *VendorHandler) applyEvent(w http.ResponseWriter, r *http.Request, event lifecycle.Event) {
	id, log, ok := pathVendorID(w, r)
	if !ok {
		return
	}
	v, err := h.vendors.ApplyEvent(r.Context(), id, event)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	log.Info("operator applied event",
		slog.String("event", string(event)),
		slog.String("status", string(v.Status)))
	shared.RespondWithJSON(w, r, http.StatusOK, vendorToResponse(v))
}

// Reset handles POST /api/vendors/{id}/reset
func (h *VendorHandler) Reset(w http.ResponseWriter, r *http.Request) {
	id, log, ok := pathVendorID(w, r)
	if !ok {
		return
	}
	v, err := h.vendors.ResetVendor(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	log.Info("operator reset vendor")
	shared.RespondWithJSON(w, r, http.StatusOK, vendorToResponse(v))
}

// SubmitDocument handles POST /api/vendors/{id}/documents. It answers 202
// when a verification was enqueued and 200 when one is already pending.
func (h *VendorHandler) SubmitDocument(w http.ResponseWriter, r *http.Request) {
	id, _, ok := pathVendorID(w, r)
	if !ok {
		return
	}
	var req DocumentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	taskID, enqueued, err := h.vendors.SubmitDocument(r.Context(), id, domain.DocumentType(req.DocType))
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	status := http.StatusAccepted
	if !enqueued {
		status = http.StatusOK
	}
	shared.RespondWithJSON(w, r, status, EnqueuedResponse{TaskID: taskID, Enqueued: enqueued})
}

// SubmitMessage handles POST /api/vendors/{id}/messages
func (h *VendorHandler) SubmitMessage(w http.ResponseWriter, r *http.Request) {
	id, _, ok := pathVendorID(w, r)
	if !ok {
		return
	}
	var req MessageRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	taskID, err := h.vendors.SubmitMessage(r.Context(), id, req.Message)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusAccepted, EnqueuedResponse{TaskID: taskID, Enqueued: true})
}

// ListActivities handles GET /api/vendors/{id}/activities
func (h *VendorHandler) ListActivities(w http.ResponseWriter, r *http.Request) {
	id, _, ok := pathVendorID(w, r)
	if !ok {
		return
	}
	entries, err := h.vendors.ListActivities(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, activitiesToResponse(entries))
}

// ListTasks handles GET /api/vendors/{id}/tasks
func (h *VendorHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	id, _, ok := pathVendorID(w, r)
	if !ok {
		return
	}
	tasks, err := h.vendors.ListTasks(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, tasksToResponse(tasks))
}

// PurgeTasks handles DELETE /api/vendors/{id}/tasks, removing finished tasks.
func (h *VendorHandler) PurgeTasks(w http.ResponseWriter, r *http.Request) {
	id, log, ok := pathVendorID(w, r)
	if !ok {
		return
	}
	n, err := h.vendors.PurgeTasks(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	log.Info("operator purged tasks", slog.Int("deleted", n))
	shared.RespondWithJSON(w, r, http.StatusOK, PurgeResponse{Deleted: n})
}
