package telemetry

import (
	"context"
	"time"

	"github.com/nufaill/fluffyCare-sub004/internal/logger"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// AuditEmitter publishes audit records for destructive chat operations.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	now         func() time.Time
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	ActorID       *string      `json:"actor_id,omitempty"`
	ActorRole     string       `json:"actor_role,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level     string `json:"level"`
	Text      string `json:"text"`
	ChatID    string `json:"chat_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// AuditEntry is what callers hand to Emit.
type AuditEntry struct {
	Level     string
	Text      string
	RequestID string
	ActorID   string
	ActorRole string
	ChatID    string
	MessageID string
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		now:         time.Now,
	}
}

func (e *AuditEmitter) Emit(ctx context.Context, entry AuditEntry) {
	if e == nil || e.publisher == nil {
		return
	}

	logger.Info("audit emit: level=%s request_id=%s actor=%s/%s chat=%s text=%q", entry.Level, entry.RequestID, entry.ActorRole, entry.ActorID, entry.ChatID, entry.Text)

	var actorID *string
	if entry.ActorID != "" {
		id := entry.ActorID
		actorID = &id
	}
	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     entry.RequestID,
		ActorID:       actorID,
		ActorRole:     entry.ActorRole,
		Payload: AuditPayload{
			Level:     entry.Level,
			Text:      entry.Text,
			ChatID:    entry.ChatID,
			MessageID: entry.MessageID,
		},
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		logger.Error("audit publish failed: %v", err)
	}
}
