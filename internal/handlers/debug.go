package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"notify-service/internal/middleware"
	"notify-service/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, auth gin.HandlerFunc, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", auth, func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		var userID int64
		if principal, ok := middleware.PrincipalFromContext(c); ok {
			userID = principal.ID
		}
		emitter.Emit(c.Request.Context(), telemetry.AuditRecord{
			Level:     "INFO",
			Text:      "audit test",
			RequestID: middleware.RequestIDFromContext(c),
			UserID:    userID,
		})
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
