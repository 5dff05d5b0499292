package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/nufaill/fluffyCare-sub004/internal/models"
	"github.com/nufaill/fluffyCare-sub004/internal/observability"
)

const wsRoutingKey = "ws_events.chats"

func newConnID() string {
	return uuid.NewString()
}

func encodeEvent(event string, data interface{}) ([]byte, error) {
	return json.Marshal(models.OutboundEvent{Event: event, Data: data})
}

// publishLifecycle emits a connection lifecycle event to the broker and metrics.
func publishLifecycle(ctx context.Context, name string, info ConnInfo, reason string) {
	observability.IncWSEvent("chat", name)
	duration := int64(0)
	if name != "ws_connect" {
		duration = time.Since(info.ConnectedAt).Milliseconds()
	}
	_ = observability.PublishEvent(ctx, wsRoutingKey, observability.EventEnvelope{
		EventType:  "ws_events",
		EventName:  name,
		OccurredAt: time.Now().UTC().Format(time.RFC3339Nano),
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"kind":        "chat",
				"event":       name,
				"conn_id":     info.ConnID,
				"duration_ms": duration,
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"party_id": info.PartyID,
				"role":     info.Role,
				"ip":       info.IP,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
