package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nufaill/fluffyCare-sub004/internal/middleware"
	"github.com/nufaill/fluffyCare-sub004/internal/telemetry"
)

const requestIDKey = "request_id"

// requestID returns the id assigned by middleware.RequestID. Routes mounted
// without that middleware get a fresh id that stays stable for the request.
func requestID(c *gin.Context) string {
	if id := c.GetString(requestIDKey); id != "" {
		return id
	}
	id := c.GetHeader(middleware.RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(requestIDKey, id)
	return id
}

// auditEntry attributes a destructive operation to the authenticated caller.
func auditEntry(c *gin.Context, text, chatID, messageID string) telemetry.AuditEntry {
	entry := telemetry.AuditEntry{
		Level:     "INFO",
		Text:      text,
		RequestID: requestID(c),
		ChatID:    chatID,
		MessageID: messageID,
	}
	if identity, ok := middleware.IdentityFrom(c); ok {
		entry.ActorID = identity.ID
		entry.ActorRole = string(identity.Role)
		if identity.IsAdmin() {
			entry.Level = "WARN"
		}
	}
	return entry
}
