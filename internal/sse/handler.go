package sse

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"notify-service/internal/middleware"
	"notify-service/internal/observability"
	"notify-service/internal/registry"
)

const (
	DefaultKeepAliveInterval = time.Second
	DefaultKeepAliveText     = "keep-alive-text"
)

type Options struct {
	KeepAliveInterval time.Duration
	KeepAliveText     string
	Logger            *slog.Logger
}

// Handler streams a principal's events over server-sent events.
type Handler struct {
	registry      *registry.Registry
	keepAlive     time.Duration
	keepAliveText string
	log           *slog.Logger
	tracer        trace.Tracer
}

func NewHandler(reg *registry.Registry, opts Options) *Handler {
	if opts.KeepAliveInterval <= 0 {
		opts.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if opts.KeepAliveText == "" {
		opts.KeepAliveText = DefaultKeepAliveText
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Handler{
		registry:      reg,
		keepAlive:     opts.KeepAliveInterval,
		keepAliveText: opts.KeepAliveText,
		log:           opts.Logger.With("component", "sse"),
		tracer:        otel.Tracer("notify-service/sse"),
	}
}

// Events serves GET /events. It must run behind middleware.AuthMiddleware.
func (h *Handler) Events(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "sse.handshake",
		trace.WithAttributes(attribute.Int64("notify.user_id", principal.ID)))
	info := newConnInfo(c, principal.ID, middleware.RequestIDFromContext(c), span.SpanContext().TraceID().String())
	// Subscribe before the first byte so nothing sent after the response
	// starts can be missed.
	rx := h.registry.Subscribe(principal.ID)
	defer rx.Close()

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()
	span.End()

	log := h.log.With("user_id", info.UserID, "conn_id", info.ConnID)
	log.Info("sse connected", "user_agent", info.UserAgent, "ip", info.IP)
	observability.IncSSEActive()
	publishLifecycle(ctx, eventConnect, info, "")

	reason, err := h.stream(ctx, w, rx, log)

	observability.DecSSEActive()
	// The request context is usually done by now; lifecycle events still go out.
	detached := context.WithoutCancel(ctx)
	if err != nil {
		log.Warn("sse write failed", "error", err)
		publishLifecycle(detached, eventError, info, reason)
	}
	log.Info("sse disconnected", "reason", reason, "duration", time.Since(info.ConnectedAt))
	publishLifecycle(detached, eventDisconnect, info, reason)
}

// stream writes frames until ctx ends or a write fails. Lagged drops are
// reported and the stream carries on.
func (h *Handler) stream(ctx context.Context, w gin.ResponseWriter, rx *registry.Receiver, log *slog.Logger) (string, error) {
	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "context done: " + context.Cause(ctx).Error(), nil
		case ev := <-rx.C():
			if n := rx.Lagged(); n > 0 {
				observability.AddSSELagged(n)
				log.Warn("sse receiver lagged, events dropped", "dropped", n)
			}
			if err := writeEvent(w, ev); err != nil {
				return "write failed", err
			}
			w.Flush()
			observability.IncSSEFrame(string(ev.Kind()))
		case <-ticker.C:
			if err := writeKeepAlive(w, h.keepAliveText); err != nil {
				return "write failed", err
			}
			w.Flush()
			observability.IncSSEFrame("keep_alive")
		}
	}
}
