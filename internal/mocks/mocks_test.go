package mocks

import (
	"context"
	"errors"
	"testing"

	"github.com/phrazzld/vendorflow/internal/capability"
	"github.com/phrazzld/vendorflow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockAIDefaultsAndCounts(t *testing.T) {
	t.Parallel()
	ai := &MockAI{}
	ctx := context.Background()

	msg, err := ai.GenerateMessage(ctx, domain.VendorProfile{CompanyName: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, "Hello Acme", msg)

	res, err := ai.VerifyDocument(ctx, domain.DocumentCOI, "Acme", "plumbing")
	require.NoError(t, err)
	assert.True(t, res.Valid)

	turn, err := ai.AdvanceConversation(ctx, "V1", "hi")
	require.NoError(t, err)
	assert.Equal(t, capability.ConversationOngoing, turn.Status)

	assert.Equal(t, 1, ai.Calls("GenerateMessage"))
	assert.Equal(t, 1, ai.Calls("VerifyDocument"))
	assert.Equal(t, 0, ai.Calls("Unknown"))
}

func TestMockNotifierRecordsAndDelegates(t *testing.T) {
	t.Parallel()
	boom := errors.New("smtp down")
	n := &MockNotifier{SendFn: func(context.Context, capability.Channel, string, capability.Content) (string, error) {
		return "", boom
	}}

	_, err := n.Send(context.Background(), capability.ChannelEmail, "a@b.example", capability.Content{Subject: "Hi"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, n.SentCount())
	assert.Equal(t, "Hi", n.Sent[0].Subject)
}
