package task

import (
	"context"
	"fmt"
	"strings"

	"github.com/phrazzld/vendorflow/internal/capability"
	"github.com/phrazzld/vendorflow/internal/domain"
	"github.com/phrazzld/vendorflow/internal/domain/lifecycle"
)

// conversationEvents maps conversation statuses to lifecycle events.
var conversationEvents = map[string]lifecycle.Event{
	capability.ConversationReadyToProceed: lifecycle.EventVendorReplied,
	capability.ConversationContractSigned: lifecycle.EventContractSigned,
}

// ChatHandler advances the onboarding conversation by one turn.
type ChatHandler struct {
	ai capability.AI
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(ai capability.AI) *ChatHandler {
	return &ChatHandler{ai: ai}
}

// Handle implements Handler.
func (h *ChatHandler) Handle(ctx context.Context, in Input) Outcome {
	message := strings.TrimSpace(in.Task.MetaString(domain.MetaMessage))
	if message == "" {
		return Permanent(fmt.Errorf("%w: chat task has no message", domain.ErrValidation))
	}

	res, err := h.ai.AdvanceConversation(ctx, in.Vendor.ID, message)
	if err != nil {
		return FromCapabilityError(fmt.Errorf("advance conversation: %w", err))
	}
	if strings.TrimSpace(res.Reply) == "" {
		return Permanent(fmt.Errorf("advance conversation: %w: empty reply", capability.ErrInvalidResponse))
	}

	return Success(Effects{
		Event: conversationEvents[res.Status],
		Activities: []domain.Activity{{
			Type:        domain.ActivityNote,
			Description: "Conversation turn",
			Metadata: map[string]any{
				domain.MetaMessage: message,
				"reply":            res.Reply,
				"status":           res.Status,
			},
		}},
	})
}
