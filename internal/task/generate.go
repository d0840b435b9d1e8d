package task

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/phrazzld/vendorflow/internal/capability"
	"github.com/phrazzld/vendorflow/internal/domain"
	"github.com/phrazzld/vendorflow/internal/domain/lifecycle"
)

// ErrNoContactChannel is returned when a vendor has neither email nor phone.
var ErrNoContactChannel = fmt.Errorf("%w: vendor has no contact channel", capability.ErrInvalidRecipient)

// ErrVendorNotApproved is returned when outreach is generated for a vendor
// that is no longer awaiting first contact.
var ErrVendorNotApproved = errors.New("vendor is not approved for outreach")

// GenerateHandler drafts an outreach message and queues its delivery.
type GenerateHandler struct {
	ai capability.AI
}

// NewGenerateHandler creates a GenerateHandler.
func NewGenerateHandler(ai capability.AI) *GenerateHandler {
	return &GenerateHandler{ai: ai}
}

// Handle implements Handler.
func (h *GenerateHandler) Handle(ctx context.Context, in Input) Outcome {
	v := in.Vendor
	if v.Status != domain.VendorStatusApproved {
		return Permanent(fmt.Errorf("%w: status %s", ErrVendorNotApproved, v.Status))
	}

	channel, recipient, err := contactChannel(v)
	if err != nil {
		return Permanent(err)
	}

	body, err := h.ai.GenerateMessage(ctx, v.Profile())
	if err != nil {
		return FromCapabilityError(fmt.Errorf("generate outreach: %w", err))
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return Permanent(fmt.Errorf("generate outreach: %w: empty message", capability.ErrInvalidResponse))
	}

	subject := fmt.Sprintf("Partnership opportunity for %s", v.CompanyName)
	return Success(Effects{
		Activities: []domain.Activity{{
			Type:        domain.ActivityOutreachQueued,
			Description: fmt.Sprintf("Outreach message drafted for %s", channel),
			Metadata: map[string]any{
				domain.MetaChannel: string(channel),
				domain.MetaSubject: subject,
			},
		}},
		FollowUps: []lifecycle.FollowUp{{
			Type: domain.TaskTypeSend,
			Metadata: map[string]any{
				domain.MetaChannel:   string(channel),
				domain.MetaRecipient: recipient,
				domain.MetaSubject:   subject,
				domain.MetaBody:      body,
			},
		}},
	})
}

func contactChannel(v domain.Vendor) (capability.Channel, string, error) {
	if email := strings.TrimSpace(v.ContactEmail); email != "" {
		return capability.ChannelEmail, email, nil
	}
	if phone := strings.TrimSpace(v.ContactPhone); phone != "" {
		return capability.ChannelSMS, phone, nil
	}
	return "", "", ErrNoContactChannel
}
