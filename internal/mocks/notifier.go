package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/vendorflow/internal/capability"
)

// MockNotifier implements capability.Notifier for testing and records every
// delivered content in Sent.
type MockNotifier struct {
	mu     sync.Mutex
	Sent   []capability.Content
	SendFn func(ctx context.Context, ch capability.Channel, to string, c capability.Content) (string, error)
}

var _ capability.Notifier = (*MockNotifier)(nil)

// Send records c and returns "delivery-1" unless SendFn is set.
func (m *MockNotifier) Send(ctx context.Context, ch capability.Channel, to string, c capability.Content) (string, error) {
	m.mu.Lock()
	m.Sent = append(m.Sent, c)
	m.mu.Unlock()
	if m.SendFn != nil {
		return m.SendFn(ctx, ch, to, c)
	}
	return "delivery-1", nil
}

// SentCount returns how many messages were sent.
func (m *MockNotifier) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}
