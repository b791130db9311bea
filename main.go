package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"notify-service/internal/auth"
	"notify-service/internal/changes"
	"notify-service/internal/config"
	"notify-service/internal/db"
	"notify-service/internal/dispatcher"
	"notify-service/internal/events"
	grpcserver "notify-service/internal/grpc"
	"notify-service/internal/handlers"
	"notify-service/internal/logging"
	"notify-service/internal/observability"
	"notify-service/internal/rabbitmq"
	"notify-service/internal/registry"
	"notify-service/internal/sse"
	"notify-service/internal/telemetry"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("notify service stopped", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := config.SetupFlags()
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parsing flags: %w", err)
	}
	configPath, _ := flags.GetString("config")

	cfg, err := config.Load(configPath, flags)
	if err != nil {
		return err
	}
	log := logging.Setup(cfg.Log)
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		Endpoint:    cfg.OTel.Endpoint,
		ServiceName: cfg.OTel.ServiceName,
		Environment: cfg.Server.Environment,
	}, log)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	verifier, err := loadVerifier(cfg.Auth)
	if err != nil {
		return err
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, log)
	defer publisher.Close()
	log.Info("event publisher ready",
		"mode", rabbitmq.PublisherMode(publisher),
		"noop_reason", rabbitmq.PublisherNoopReason(publisher))
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, cfg.AMQP.AuditRoutingKey, cfg.OTel.ServiceName, cfg.Server.Environment, log)

	if cfg.Database.InstallTriggers {
		if err := installTriggers(ctx, cfg.Database.DSN, log); err != nil {
			return err
		}
	}

	source, err := changes.Open(ctx, cfg.Database.DSN, events.Channels, changes.Options{
		MinReconnectInterval: cfg.Database.MinReconnectInterval,
		MaxReconnectInterval: cfg.Database.MaxReconnectInterval,
		PingInterval:         cfg.Database.PingInterval,
		Logger:               log,
	})
	if err != nil {
		return fmt.Errorf("open change stream: %w", err)
	}
	defer source.Close()

	reg := registry.New(cfg.SSE.BufferCapacity)
	disp := dispatcher.New(source, reg, log)
	health := grpcserver.NewHealthServer(log)
	sseHandler := sse.NewHandler(reg, sse.Options{
		KeepAliveInterval: cfg.SSE.KeepAliveInterval,
		KeepAliveText:     cfg.SSE.KeepAliveText,
		Logger:            log,
	})

	g, gctx := errgroup.WithContext(ctx)

	router := handlers.NewRouter(handlers.RouterDeps{
		ServiceName: cfg.OTel.ServiceName,
		Verifier:    verifier,
		Events:      sseHandler.Events,
		Dispatcher:  disp,
		Audit:       audit,
		Debug:       cfg.Server.Debug,
		Logger:      log,
	})
	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// Open streams end when the group is cancelled.
		BaseContext: func(net.Listener) context.Context { return gctx },
	}

	g.Go(func() error {
		health.SetServing(true)
		audit.Emit(gctx, telemetry.AuditRecord{Level: "INFO", Text: "dispatcher started"})
		err := disp.Run(gctx)
		health.SetServing(false)
		if err != nil {
			log.Error("dispatcher terminated", "error", err)
			audit.Emit(context.WithoutCancel(gctx), telemetry.AuditRecord{Level: "ERROR", Text: "dispatcher terminated: " + err.Error()})
		}
		return err
	})
	g.Go(func() error {
		log.Info("http listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		return health.ListenAndServe(gctx, cfg.GRPC.Addr)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("notify service stopped cleanly")
	return nil
}

func loadVerifier(cfg config.AuthConfig) (*auth.Verifier, error) {
	if cfg.PK != "" {
		return auth.NewVerifier([]byte(cfg.PK))
	}
	return auth.LoadVerifier(cfg.PKPath)
}

func installTriggers(ctx context.Context, dsn string, log *slog.Logger) error {
	database, err := db.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer database.Close()
	return db.InstallTriggers(ctx, database, log)
}
