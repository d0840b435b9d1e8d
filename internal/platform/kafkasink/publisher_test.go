package kafkasink

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/phrazzld/vendorflow/internal/events"
	"github.com/phrazzld/vendorflow/internal/platform/logger"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (m *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msgs...)
	return nil
}

func (m *mockWriter) Close() error {
	m.closed = true
	return nil
}

func TestPublisherWritesKeyedMessage(t *testing.T) {
	_, log := logger.NewTestLogger(t)
	w := &mockWriter{}
	p := NewPublisher(w, "vendor-activity", log)
	before := testutil.ToFloat64(publishedCounter.WithLabelValues(events.TypeActivityAppended, "ok"))

	event, err := events.NewVendorEvent(events.TypeActivityAppended, "V1", map[string]string{"type": "NOTE"})
	require.NoError(t, err)
	require.NoError(t, p.HandleEvent(context.Background(), event))

	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	assert.Equal(t, "V1", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, headerEventType, msg.Headers[0].Key)
	assert.Equal(t, events.TypeActivityAppended, string(msg.Headers[0].Value))

	var decoded events.VendorEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, "V1", decoded.VendorID)
	assert.Equal(t, before+1, testutil.ToFloat64(publishedCounter.WithLabelValues(events.TypeActivityAppended, "ok")))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublisherReportsWriteFailure(t *testing.T) {
	_, log := logger.NewTestLogger(t)
	w := &mockWriter{err: errors.New("leader not available")}
	p := NewPublisher(w, "vendor-activity", log)

	event, err := events.NewVendorEvent(events.TypeReviewRequested, "V1", nil)
	require.NoError(t, err)

	err = p.HandleEvent(context.Background(), event)
	assert.ErrorContains(t, err, "leader not available")
}

func TestNewWriterTargetsTopic(t *testing.T) {
	w := NewWriter([]string{"localhost:9092"}, "vendor-activity")
	assert.Equal(t, "vendor-activity", w.Topic)
	assert.Equal(t, kafka.RequireAll, w.RequiredAcks)
}
