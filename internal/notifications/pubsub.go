package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/hanko-field/quickorder/internal/domain"
	"github.com/hanko-field/quickorder/internal/services"
)

// PubSubSender publishes order confirmations to a Pub/Sub topic.
type PubSubSender struct {
	topic *pubsub.Topic
	now   func() time.Time
}

var _ services.NotificationSender = (*PubSubSender)(nil)

// NewPubSubSender constructs a Pub/Sub backed sender.
func NewPubSubSender(topic *pubsub.Topic) (*PubSubSender, error) {
	if topic == nil {
		return nil, errors.New("pubsub sender: topic is required")
	}
	return &PubSubSender{topic: topic, now: time.Now}, nil
}

// Send publishes the order event and waits for the server acknowledgement.
func (s *PubSubSender) Send(ctx context.Context, order domain.Order) error {
	event := NewOrderPlacedEvent(order, s.now())
	data, err := event.marshal()
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventId", event.EventID)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "orderId", order.ID)
	setAttr(attrs, "incrementId", order.IncrementID)

	result := s.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

// Close flushes pending publishes.
func (s *PubSubSender) Close() error {
	s.topic.Stop()
	return nil
}

func setAttr(attrs map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
