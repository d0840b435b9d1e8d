// Package capability defines the external collaborators task handlers call:
// a generative model and a notification channel.
package capability

import (
	"context"
	"errors"
	"fmt"

	"github.com/phrazzld/vendorflow/internal/domain"
)

// Error classes. Adapters wrap their failures in one of these so handlers
// can decide between retrying and giving up.
var (
	// ErrPermanent marks failures that will not succeed on retry.
	ErrPermanent = errors.New("permanent capability failure")

	// ErrTransient marks failures that may succeed on retry.
	ErrTransient = errors.New("transient capability failure")
)

// Specific permanent failures.
var (
	ErrContentBlocked   = fmt.Errorf("%w: content blocked", ErrPermanent)
	ErrInvalidResponse  = fmt.Errorf("%w: invalid model response", ErrPermanent)
	ErrInvalidRecipient = fmt.Errorf("%w: invalid recipient", ErrPermanent)
	ErrUnsupported      = fmt.Errorf("%w: unsupported channel", ErrPermanent)
)

// IsPermanent reports whether err should not be retried.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

// Channel is a notification transport.
type Channel string

// Supported channels.
const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Content is an outbound message.
type Content struct {
	Subject string
	Body    string
}

// VerificationResult is the model's judgement of a compliance document.
type VerificationResult struct {
	Valid     bool           `json:"valid"`
	Reasoning string         `json:"reasoning"`
	Extracted map[string]any `json:"extracted,omitempty"`
}

// Conversation statuses returned by AdvanceConversation.
const (
	ConversationOngoing        = "ONGOING"
	ConversationReadyToProceed = "READY_TO_PROCEED"
	ConversationContractSigned = "CONTRACT_SIGNED"
)

// ConversationResult is one assistant turn in an onboarding conversation.
type ConversationResult struct {
	Reply  string `json:"reply"`
	Status string `json:"status"`
}

// AI is the generative model capability.
// Version: 1.0
type AI interface {
	// GenerateMessage drafts an outreach message for the vendor.
	GenerateMessage(ctx context.Context, profile domain.VendorProfile) (string, error)

	// VerifyDocument judges whether a submitted document is acceptable.
	VerifyDocument(ctx context.Context, docType domain.DocumentType, vendorName, specialty string) (VerificationResult, error)

	// AdvanceConversation produces the next assistant turn for the vendor.
	AdvanceConversation(ctx context.Context, vendorID, message string) (ConversationResult, error)
}

// Notifier delivers outbound messages.
// Version: 1.0
type Notifier interface {
	// Send delivers content and returns the transport's delivery id.
	Send(ctx context.Context, channel Channel, recipient string, content Content) (string, error)
}
