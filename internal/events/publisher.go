package events

import (
	"context"
	"encoding/json"
	"fmt"
)

// Publisher is the message broker surface used by AMQPSink
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte, contentType string) error
}

// AMQPSink publishes events to a topic exchange
type AMQPSink struct {
	publisher Publisher
	prefix    string
}

// NewAMQPSink creates a sink publishing under the routing key prefix
func NewAMQPSink(publisher Publisher, prefix string) *AMQPSink {
	return &AMQPSink{publisher: publisher, prefix: prefix}
}

// RoutingKey returns "{prefix}.{chat_id}.{type}"
func (s *AMQPSink) RoutingKey(event Event) string {
	return fmt.Sprintf("%s.%d.%s", s.prefix, event.ChatID, event.Type)
}

// Deliver implements Sink
func (s *AMQPSink) Deliver(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := s.publisher.Publish(ctx, s.RoutingKey(event), body, "application/json"); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}
	return nil
}
