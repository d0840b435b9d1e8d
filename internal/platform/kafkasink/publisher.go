// Package kafkasink mirrors vendor events onto a Kafka topic.
package kafkasink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/vendorflow/internal/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
)

const headerEventType = "event-type"

var publishedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "vendorflow",
	Subsystem: "kafka",
	Name:      "events_published_total",
	Help:      "Vendor events written to Kafka, by event type and result.",
}, []string{"type", "result"})

func init() {
	prometheus.MustRegister(publishedCounter)
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher is an events.EventHandler that writes each event as a JSON
// message keyed by vendor id, so one vendor's events stay ordered within a
// partition.
type Publisher struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

var _ events.EventHandler = (*Publisher)(nil)

// NewWriter builds a synchronous, fully acknowledged writer for topic.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		BatchTimeout: 10 * time.Millisecond,
		Async:        false,
	}
}

// NewPublisher creates a Publisher over writer.
func NewPublisher(writer messageWriter, topic string, logger *slog.Logger) *Publisher {
	return &Publisher{
		writer: writer,
		topic:  topic,
		logger: logger.With("component", "kafka_publisher", "topic", topic),
	}
}

// HandleEvent implements events.EventHandler.
func (p *Publisher) HandleEvent(ctx context.Context, event *events.VendorEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		publishedCounter.WithLabelValues(event.Type, "error").Inc()
		return fmt.Errorf("encode event %s: %w", event.ID, err)
	}

	msg := kafka.Message{
		Key:   []byte(event.VendorID),
		Value: value,
		Time:  event.CreatedAt,
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(event.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		publishedCounter.WithLabelValues(event.Type, "error").Inc()
		return fmt.Errorf("publish event %s to %s: %w", event.ID, p.topic, err)
	}

	publishedCounter.WithLabelValues(event.Type, "ok").Inc()
	p.logger.DebugContext(ctx, "event published",
		"event_id", event.ID,
		"event_type", event.Type,
		"vendor_id", event.VendorID)
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
