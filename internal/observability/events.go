package observability

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

const (
	EventMessageSent    = "chat.message.sent"
	EventMessagesRead   = "chat.messages.read"
	EventMessageDeleted = "chat.message.deleted"
	EventChatCreated    = "chat.created"
	EventChatDeleted    = "chat.deleted"
)

type EventEnvelope struct {
	EventType  string      `json:"event_type"`
	EventName  string      `json:"event_name"`
	OccurredAt string      `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

// TraceIDFromContext returns the active span's trace id, or "" when untraced.
func TraceIDFromContext(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
