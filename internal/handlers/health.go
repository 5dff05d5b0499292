package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is satisfied by *sqlx.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RegisterHealthRoutes mounts /healthz, which reports the database state.
func RegisterHealthRoutes(router *gin.Engine, db Pinger, connections func() int) {
	router.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		body := gin.H{"status": "ok", "database": "up"}
		if connections != nil {
			body["connections"] = connections()
		}
		if db == nil {
			body["database"] = "unconfigured"
			c.JSON(http.StatusOK, body)
			return
		}
		if err := db.PingContext(ctx); err != nil {
			body["status"] = "degraded"
			body["database"] = "down"
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
		c.JSON(http.StatusOK, body)
	})
}
