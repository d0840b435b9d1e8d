package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/vendorflow/internal/capability"
	"github.com/phrazzld/vendorflow/internal/domain"
)

// MockAI implements capability.AI for testing
type MockAI struct {
	GenerateMessageFn     func(ctx context.Context, p domain.VendorProfile) (string, error)
	VerifyDocumentFn      func(ctx context.Context, d domain.DocumentType, name, specialty string) (capability.VerificationResult, error)
	AdvanceConversationFn func(ctx context.Context, vendorID, message string) (capability.ConversationResult, error)

	mu    sync.Mutex
	calls map[string]int
}

var _ capability.AI = (*MockAI)(nil)

func (m *MockAI) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[method]++
}

// Calls returns how many times method was invoked.
func (m *MockAI) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// GenerateMessage returns "Hello <company>" unless GenerateMessageFn is set.
func (m *MockAI) GenerateMessage(ctx context.Context, p domain.VendorProfile) (string, error) {
	m.record("GenerateMessage")
	if m.GenerateMessageFn != nil {
		return m.GenerateMessageFn(ctx, p)
	}
	return "Hello " + p.CompanyName, nil
}

// VerifyDocument accepts every document unless VerifyDocumentFn is set.
func (m *MockAI) VerifyDocument(
	ctx context.Context,
	d domain.DocumentType,
	name, specialty string,
) (capability.VerificationResult, error) {
	m.record("VerifyDocument")
	if m.VerifyDocumentFn != nil {
		return m.VerifyDocumentFn(ctx, d, name, specialty)
	}
	return capability.VerificationResult{Valid: true}, nil
}

// AdvanceConversation replies "ok" with an ONGOING status unless
// AdvanceConversationFn is set.
func (m *MockAI) AdvanceConversation(
	ctx context.Context,
	vendorID, message string,
) (capability.ConversationResult, error) {
	m.record("AdvanceConversation")
	if m.AdvanceConversationFn != nil {
		return m.AdvanceConversationFn(ctx, vendorID, message)
	}
	return capability.ConversationResult{Reply: "ok", Status: capability.ConversationOngoing}, nil
}
