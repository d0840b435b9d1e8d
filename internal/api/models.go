package api

import (
	"time"

	"github.com/phrazzld/vendorflow/internal/domain"
)

// VendorResponse is the JSON view of a vendor.
type VendorResponse struct {
	ID                string    `json:"id"`
	Status            string    `json:"status"`
	CompanyName       string    `json:"companyName"`
	Specialty         string    `json:"specialty,omitempty"`
	Location          string    `json:"location,omitempty"`
	ContactEmail      string    `json:"contactEmail,omitempty"`
	ContactPhone      string    `json:"contactPhone,omitempty"`
	FitScore          float64   `json:"fitScore"`
	Reasoning         string    `json:"reasoning,omitempty"`
	HasActiveContract bool      `json:"hasActiveContract"`
	StatusUpdatedAt   time.Time `json:"statusUpdatedAt"`
	CreatedAt         time.Time `json:"createdAt"`
}

// ActivityResponse is the JSON view of an activity log entry.
type ActivityResponse struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// TaskResponse is the JSON view of a task.
type TaskResponse struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Status      string         `json:"status"`
	ScheduledAt time.Time      `json:"scheduledAt"`
	RetryCount  int            `json:"retryCount"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// EventRequest is the body of POST /vendors/{id}/events.
type EventRequest struct {
	Event string `json:"event" validate:"required"`
}

// DocumentRequest is the body of POST /vendors/{id}/documents.
type DocumentRequest struct {
	DocType string `json:"docType" validate:"required,oneof=COI W9"`
}

// MessageRequest is the body of POST /vendors/{id}/messages.
type MessageRequest struct {
	Message string `json:"message" validate:"required,max=4000"`
}

// EnqueuedResponse reports a task created on the caller's behalf.
type EnqueuedResponse struct {
	TaskID   string `json:"taskId,omitempty"`
	Enqueued bool   `json:"enqueued"`
}

// PurgeResponse reports how many tasks were deleted.
type PurgeResponse struct {
	Deleted int `json:"deleted"`
}

func vendorToResponse(v domain.Vendor) VendorResponse {
	return VendorResponse{
		ID:                v.ID,
		Status:            string(v.Status),
		CompanyName:       v.CompanyName,
		Specialty:         v.Specialty,
		Location:          v.Location,
		ContactEmail:      v.ContactEmail,
		ContactPhone:      v.ContactPhone,
		FitScore:          v.FitScore,
		Reasoning:         v.Reasoning,
		HasActiveContract: v.HasActiveContract,
		StatusUpdatedAt:   v.StatusUpdatedAt,
		CreatedAt:         v.CreatedAt,
	}
}

func activitiesToResponse(entries []domain.Activity) []ActivityResponse {
	out := make([]ActivityResponse, 0, len(entries))
	for _, a := range entries {
		out = append(out, ActivityResponse{
			ID:          a.ID,
			Type:        string(a.Type),
			Description: a.Description,
			Metadata:    a.Metadata,
			CreatedAt:   a.CreatedAt,
		})
	}
	return out
}

func tasksToResponse(tasks []domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, TaskResponse{
			ID:          t.ID,
			Type:        string(t.Type),
			Status:      string(t.Status),
			ScheduledAt: t.ScheduledAt,
			RetryCount:  t.RetryCount,
			Error:       t.Error,
			Metadata:    t.Metadata,
			CreatedAt:   t.CreatedAt,
			UpdatedAt:   t.UpdatedAt,
		})
	}
	return out
}
