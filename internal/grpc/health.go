package grpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	ggrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"notify-service/internal/observability"
)

// DispatcherService is the health service name that tracks the dispatcher.
const DispatcherService = "notify.Dispatcher"

// HealthServer exposes grpc.health.v1.Health. The dispatcher service starts
// NOT_SERVING and flips with SetServing.
type HealthServer struct {
	server *ggrpc.Server
	health *health.Server
	log    *slog.Logger
}

func NewHealthServer(log *slog.Logger) *HealthServer {
	server := ggrpc.NewServer(
		ggrpc.StatsHandler(otelgrpc.NewServerHandler()),
		ggrpc.ChainUnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	hs := health.NewServer()
	hs.SetServingStatus(DispatcherService, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(server, hs)

	return &HealthServer{server: server, health: hs, log: log.With("component", "grpc")}
}

func (h *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(DispatcherService, status)
	h.log.Info("dispatcher health changed", "status", status.String())
}

// Serve blocks until ctx is cancelled, then stops gracefully.
func (h *HealthServer) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- h.server.Serve(lis)
	}()
	h.log.Info("grpc health listening", "addr", lis.Addr().String())

	select {
	case <-ctx.Done():
		h.health.Shutdown()
		h.server.GracefulStop()
		if err := <-errCh; err != nil && !errors.Is(err, ggrpc.ErrServerStopped) {
			return err
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("grpc serve: %w", err)
	}
}

func (h *HealthServer) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", addr, err)
	}
	return h.Serve(ctx, lis)
}
