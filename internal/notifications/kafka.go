package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/hanko-field/quickorder/internal/domain"
	"github.com/hanko-field/quickorder/internal/platform/config"
	"github.com/hanko-field/quickorder/internal/platform/observability"
	"github.com/hanko-field/quickorder/internal/services"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter builds a writer for the order topic that logs through zap.
func NewKafkaWriter(cfg config.KafkaConfig, logger *zap.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: false,
		BatchTimeout:           10 * time.Millisecond,
		Logger:                 observability.NewPrintfAdapter(logger.Named("kafka")),
		ErrorLogger:            observability.NewErrorPrintfAdapter(logger.Named("kafka")),
	}
}

// KafkaSender writes order confirmations to Kafka keyed by order id.
type KafkaSender struct {
	writer messageWriter
	now    func() time.Time
}

var _ services.NotificationSender = (*KafkaSender)(nil)

// NewKafkaSender constructs a Kafka backed sender.
func NewKafkaSender(writer messageWriter) (*KafkaSender, error) {
	if writer == nil {
		return nil, errors.New("kafka sender: writer is required")
	}
	return &KafkaSender{writer: writer, now: time.Now}, nil
}

// Send writes the order event.
func (s *KafkaSender) Send(ctx context.Context, order domain.Order) error {
	event := NewOrderPlacedEvent(order, s.now())
	data, err := event.marshal()
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(order.ID),
		Value: data,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-id", Value: []byte(event.EventID)},
			{Key: "event-type", Value: []byte(event.Type)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write order event: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (s *KafkaSender) Close() error {
	return s.writer.Close()
}
