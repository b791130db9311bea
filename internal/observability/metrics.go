package observability

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_http_requests_total",
			Help: "Total number of HTTP requests processed by the notify service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notify_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	grpcServerHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grpc_server_handled_total",
			Help: "Total number of gRPC requests handled by the server.",
		},
		[]string{"grpc_service", "grpc_method", "grpc_code"},
	)
	changesReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_changes_received_total",
			Help: "Total number of database notifications received.",
		},
		[]string{"channel"},
	)
	decodeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_decode_errors_total",
			Help: "Total number of notifications skipped because they could not be decoded.",
		},
		[]string{"channel", "reason"},
	)
	eventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_events_published_total",
			Help: "Total number of events handed to a principal with live sessions.",
		},
		[]string{"kind"},
	)
	eventsUnroutedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_events_unrouted_total",
			Help: "Total number of events addressed to a principal with no live session.",
		},
		[]string{"kind"},
	)
	dispatcherUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notify_dispatcher_up",
			Help: "1 while the dispatcher is consuming the change stream.",
		},
	)
	sseActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notify_sse_active_connections",
			Help: "Number of active SSE connections.",
		},
	)
	sseEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_sse_events_total",
			Help: "Total number of SSE connection lifecycle events.",
		},
		[]string{"event"},
	)
	sseFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_sse_frames_total",
			Help: "Total number of frames written to SSE connections.",
		},
		[]string{"kind"},
	)
	sseLaggedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_sse_lagged_events_total",
			Help: "Total number of events dropped for slow SSE connections.",
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		grpcServerHandledTotal,
		changesReceivedTotal,
		decodeErrorsTotal,
		eventsPublishedTotal,
		eventsUnroutedTotal,
		dispatcherUp,
		sseActiveConnections,
		sseEventsTotal,
		sseFramesTotal,
		sseLaggedTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func GRPCServerMetricsUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		statusInfo := status.Convert(err)
		service, method := splitFullMethod(info.FullMethod)
		grpcServerHandledTotal.WithLabelValues(service, method, statusInfo.Code().String()).Inc()
		return resp, err
	}
}

func splitFullMethod(fullMethod string) (string, string) {
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 3 {
		return "unknown", "unknown"
	}
	return parts[1], parts[2]
}

func IncChangeReceived(channel string) {
	changesReceivedTotal.WithLabelValues(channel).Inc()
}

func IncDecodeError(channel, reason string) {
	decodeErrorsTotal.WithLabelValues(channel, reason).Inc()
}

func IncEventPublished(kind string) {
	eventsPublishedTotal.WithLabelValues(kind).Inc()
}

func IncEventUnrouted(kind string) {
	eventsUnroutedTotal.WithLabelValues(kind).Inc()
}

func SetDispatcherUp(up bool) {
	if up {
		dispatcherUp.Set(1)
		return
	}
	dispatcherUp.Set(0)
}

func IncSSEActive() {
	sseActiveConnections.Inc()
}

func DecSSEActive() {
	sseActiveConnections.Dec()
}

func IncSSEEvent(event string) {
	sseEventsTotal.WithLabelValues(event).Inc()
}

func IncSSEFrame(kind string) {
	sseFramesTotal.WithLabelValues(kind).Inc()
}

func AddSSELagged(n uint64) {
	sseLaggedTotal.Add(float64(n))
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
