package task

import (
	"context"
	"fmt"

	"github.com/phrazzld/vendorflow/internal/capability"
	"github.com/phrazzld/vendorflow/internal/domain"
	"github.com/phrazzld/vendorflow/internal/domain/lifecycle"
)

// SendHandler delivers a drafted message and advances the vendor to CONTACTED.
type SendHandler struct {
	notifier capability.Notifier
}

// NewSendHandler creates a SendHandler.
func NewSendHandler(n capability.Notifier) *SendHandler {
	return &SendHandler{notifier: n}
}

// Handle implements Handler.
func (h *SendHandler) Handle(ctx context.Context, in Input) Outcome {
	t := in.Task
	channel := capability.Channel(t.MetaString(domain.MetaChannel))
	recipient := t.MetaString(domain.MetaRecipient)
	body := t.MetaString(domain.MetaBody)

	switch {
	case channel != capability.ChannelEmail && channel != capability.ChannelSMS:
		return Permanent(fmt.Errorf("%w: %q", capability.ErrUnsupported, channel))
	case recipient == "":
		return Permanent(fmt.Errorf("%w: empty recipient", capability.ErrInvalidRecipient))
	case body == "":
		return Permanent(fmt.Errorf("%w: send task has no body", domain.ErrValidation))
	}

	deliveryID, err := h.notifier.Send(ctx, channel, recipient, capability.Content{
		Subject: t.MetaString(domain.MetaSubject),
		Body:    body,
	})
	if err != nil {
		return FromCapabilityError(fmt.Errorf("send outreach: %w", err))
	}

	return Success(Effects{
		Event: lifecycle.EventOutreachSent,
		Activities: []domain.Activity{{
			Type:        domain.ActivityOutreachSent,
			Description: fmt.Sprintf("Outreach sent by %s", channel),
			Metadata: map[string]any{
				domain.MetaChannel: string(channel),
				"deliveryId":       deliveryID,
			},
		}},
	})
}
