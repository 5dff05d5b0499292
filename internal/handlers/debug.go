package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nufaill/fluffyCare-sub004/internal/telemetry"
	"github.com/nufaill/fluffyCare-sub004/internal/ws"
)

// RealtimeStats is satisfied by the socket hub.
type RealtimeStats interface {
	Stats() ws.HubStats
}

// RegisterDebugRoutes mounts operator endpoints under /debug. Nothing is
// mounted unless enabled.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, realtime RealtimeStats, enabled bool) {
	if !enabled {
		return
	}
	debug := router.Group("/debug")

	debug.GET("/realtime", func(c *gin.Context) {
		if realtime == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": gin.H{"code": "UNAVAILABLE", "message": "realtime hub not configured"}})
			return
		}
		c.JSON(http.StatusOK, realtime.Stats())
	})

	// Emits a test audit record so the broker binding can be checked end to end.
	debug.POST("/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": gin.H{"code": "UNAVAILABLE", "message": "audit emitter not configured"}})
			return
		}
		emitter.Emit(c.Request.Context(), auditEntry(c, "audit test", c.Query("chatId"), ""))
		c.JSON(http.StatusAccepted, gin.H{"status": "emitted"})
	})
}
