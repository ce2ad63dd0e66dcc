package events

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/config"
)

// MessageWriter is the subset of kafka.Writer used by the forwarder.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaForwarder republishes domain events to a Kafka topic for downstream
// mail and notification transports.
type KafkaForwarder struct {
	writer MessageWriter
	logger *zap.Logger
}

// NewKafkaForwarder returns nil when no brokers are configured.
func NewKafkaForwarder(cfg config.KafkaConfig, logger *zap.Logger) *KafkaForwarder {
	if len(cfg.Brokers) == 0 {
		return nil
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		Compression:  kafka.Gzip,
		RequiredAcks: kafka.RequireAll,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warn("kafka delivery failed", zap.Int("messages", len(messages)), zap.Error(err))
			}
		},
	}
	return NewKafkaForwarderWithWriter(writer, logger)
}

// NewKafkaForwarderWithWriter wires a custom writer.
func NewKafkaForwarderWithWriter(writer MessageWriter, logger *zap.Logger) *KafkaForwarder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaForwarder{writer: writer, logger: logger}
}

// Register subscribes the forwarder to every event type.
func (f *KafkaForwarder) Register(d Dispatcher) {
	if f == nil || d == nil {
		return
	}
	for _, t := range AllEventTypes {
		d.Subscribe(t, f.Handle)
	}
}

// Handle encodes and writes one event, keyed by ticket so a ticket's events stay ordered.
func (f *KafkaForwarder) Handle(ctx context.Context, event Event) error {
	msg, err := encodeEvent(event)
	if err != nil {
		return err
	}
	return f.writer.WriteMessages(ctx, msg)
}

// Close flushes and closes the writer.
func (f *KafkaForwarder) Close() error {
	if f == nil {
		return nil
	}
	return f.writer.Close()
}

func encodeEvent(event Event) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(event.CompanyID + ":" + event.TicketID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "company_id", Value: []byte(event.CompanyID)},
		},
	}, nil
}
