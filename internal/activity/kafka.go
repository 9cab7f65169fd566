package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kgo "github.com/segmentio/kafka-go"

	"github.com/juliancabezast/rentfinder-cleveland-sub003/pkg/leasing"
)

// KafkaLogger publishes audit events to a Kafka topic so observability
// tooling can tail the decision stream without polling the database. Keyed by
// organization so one tenant's events stay ordered within a partition.
type KafkaLogger struct {
	writer *kgo.Writer
}

// NewKafkaLogger creates a Kafka-backed activity logger.
func NewKafkaLogger(brokers []string, topic string) *KafkaLogger {
	w := &kgo.Writer{
		Addr:                   kgo.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kgo.LeastBytes{},
		RequiredAcks:           kgo.RequireOne,
		WriteTimeout:           5 * time.Second,
		AllowAutoTopicCreation: true,
	}
	return &KafkaLogger{writer: w}
}

// Append publishes one event. Errors are returned for the caller to absorb;
// a slow or down broker must never fail the task being audited.
func (l *KafkaLogger) Append(ctx context.Context, event leasing.AuditEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	err = l.writer.WriteMessages(ctx, kgo.Message{
		Key:   []byte(event.OrganizationID),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to publish audit event: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (l *KafkaLogger) Close() error {
	return l.writer.Close()
}
