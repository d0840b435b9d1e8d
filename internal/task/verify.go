package task

import (
	"context"
	"fmt"

	"github.com/phrazzld/vendorflow/internal/capability"
	"github.com/phrazzld/vendorflow/internal/domain"
	"github.com/phrazzld/vendorflow/internal/events"
)

// ReviewRequest is the payload of a review.requested signal.
type ReviewRequest struct {
	TaskID       string `json:"taskId"`
	DocumentType string `json:"docType"`
	Reasoning    string `json:"reasoning"`
}

// VerifyHandler checks a submitted compliance document.
type VerifyHandler struct {
	ai            capability.AI
	requireReview bool
}

// NewVerifyHandler creates a VerifyHandler. When requireReview is true a
// rejected document raises a review.requested signal.
func NewVerifyHandler(ai capability.AI, requireReview bool) *VerifyHandler {
	return &VerifyHandler{ai: ai, requireReview: requireReview}
}

// Handle implements Handler. A rejected document is still a success: the
// verification ran and its verdict is recorded.
func (h *VerifyHandler) Handle(ctx context.Context, in Input) Outcome {
	docType := domain.DocumentType(in.Task.MetaString(domain.MetaDocumentType))
	if !docType.IsValid() {
		return Permanent(fmt.Errorf("%w: %q", domain.ErrInvalidDocumentType, docType))
	}

	res, err := h.ai.VerifyDocument(ctx, docType, in.Vendor.CompanyName, in.Vendor.Specialty)
	if err != nil {
		return FromCapabilityError(fmt.Errorf("verify %s: %w", docType, err))
	}

	meta := map[string]any{
		domain.MetaDocumentType: string(docType),
		"valid":                 res.Valid,
		"reasoning":             res.Reasoning,
	}
	if len(res.Extracted) > 0 {
		meta["extracted"] = res.Extracted
	}

	if res.Valid {
		return Success(Effects{Activities: []domain.Activity{{
			Type:        domain.ActivityNote,
			Description: fmt.Sprintf("%s verified", docType),
			Metadata:    meta,
		}}})
	}

	effects := Effects{Activities: []domain.Activity{{
		Type:        domain.ActivityNote,
		Description: fmt.Sprintf("%s verification failed: %s", docType, res.Reasoning),
		Metadata:    meta,
	}}}
	if h.requireReview {
		effects.Signals = append(effects.Signals, Signal{
			Type: events.TypeReviewRequested,
			Payload: ReviewRequest{
				TaskID:       in.Task.ID,
				DocumentType: string(docType),
				Reasoning:    res.Reasoning,
			},
		})
	}
	return Success(effects)
}
