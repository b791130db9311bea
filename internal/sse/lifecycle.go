package sse

import (
	"context"
	"time"

	"notify-service/internal/observability"
)

const (
	eventConnect    = "sse_connect"
	eventDisconnect = "sse_disconnect"
	eventError      = "sse_error"

	lifecycleRoutingKey = "sse_events.notify"
)

func publishLifecycle(ctx context.Context, name string, info ConnInfo, reason string) {
	observability.IncSSEEvent(name)
	duration := int64(0)
	if name != eventConnect {
		duration = time.Since(info.ConnectedAt).Milliseconds()
	}
	_ = observability.PublishEvent(ctx, lifecycleRoutingKey, observability.EventEnvelope{
		EventType: "sse_events",
		EventName: name,
		RequestID: info.RequestID,
		TraceID:   info.TraceID,
		Payload: map[string]interface{}{
			"sse": map[string]interface{}{
				"event":       name,
				"conn_id":     info.ConnID,
				"duration_ms": duration,
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":    info.UserID,
				"device_id":  info.DeviceID,
				"ip":         info.IP,
				"user_agent": info.UserAgent,
			},
		},
	})
}
