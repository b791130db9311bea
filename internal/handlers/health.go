package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type DispatcherState interface {
	Running() bool
}

// Healthz reports liveness and whether the dispatcher is still consuming
// changes. A stopped dispatcher means no event will ever be delivered, so it
// answers 503.
func Healthz(state DispatcherState) gin.HandlerFunc {
	return func(c *gin.Context) {
		if state == nil || !state.Running() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "dispatcher": "stopped"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "dispatcher": "running"})
	}
}
