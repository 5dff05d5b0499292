package observability

import (
	"context"
	"time"
)

// Publisher is satisfied by the rabbitmq publisher.
type Publisher interface {
	PublishJSON(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error
}

var defaultPublisher Publisher

func SetPublisher(publisher Publisher) {
	defaultPublisher = publisher
}

func PublishEvent(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	if defaultPublisher == nil {
		return nil
	}

	err := defaultPublisher.PublishJSON(ctx, routingKey, message, headers)
	if err != nil {
		IncAMQPPublishError()
	}
	return err
}

// PublishDomainEvent wraps payload in an EventEnvelope and publishes it under
// the event name as routing key.
func PublishDomainEvent(ctx context.Context, name string, payload interface{}, requestID string) error {
	envelope := EventEnvelope{
		EventType:  "chat_event",
		EventName:  name,
		OccurredAt: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:    payload,
	}
	return PublishEvent(ctx, name, envelope, BuildHeaders(requestID, TraceIDFromContext(ctx)))
}
