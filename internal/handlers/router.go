package handlers

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"notify-service/internal/middleware"
	"notify-service/internal/observability"
	"notify-service/internal/telemetry"
)

type RouterDeps struct {
	ServiceName string
	Verifier    middleware.TokenVerifier
	Events      gin.HandlerFunc
	Dispatcher  DispatcherState
	Audit       *telemetry.AuditEmitter
	Debug       bool
	Logger      *slog.Logger
}

// NewRouter wires the public routes. /events is the only authenticated one.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		otelgin.Middleware(deps.ServiceName),
		observability.HTTPMetricsMiddleware(),
		requestLogger(deps.Logger),
	)

	authMiddleware := middleware.AuthMiddleware(deps.Verifier)

	router.GET("/", Index)
	router.GET("/healthz", Healthz(deps.Dispatcher))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/events", authMiddleware, deps.Events)

	RegisterDebugRoutes(router, deps.Audit, authMiddleware, deps.Debug)
	return router
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"request_id", middleware.RequestIDFromContext(c),
		)
	}
}
