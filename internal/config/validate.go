package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535"))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout must not be negative"))
	}

	if cfg.Database.DSN == "" {
		errs = append(errs, fmt.Errorf("database.dsn is required"))
	}
	if cfg.Database.MinReconnectInterval <= 0 {
		errs = append(errs, fmt.Errorf("database.min_reconnect_interval must be positive"))
	}
	if cfg.Database.MaxReconnectInterval < cfg.Database.MinReconnectInterval {
		errs = append(errs, fmt.Errorf("database.max_reconnect_interval must be at least database.min_reconnect_interval"))
	}
	if cfg.Database.PingInterval < time.Second {
		errs = append(errs, fmt.Errorf("database.ping_interval must be at least 1s"))
	}

	if cfg.Auth.PK == "" && cfg.Auth.PKPath == "" {
		errs = append(errs, fmt.Errorf("auth.pk or auth.pk_path is required"))
	}
	if cfg.Auth.PK != "" && cfg.Auth.PKPath != "" {
		errs = append(errs, fmt.Errorf("auth.pk and auth.pk_path are mutually exclusive"))
	}

	if cfg.SSE.KeepAliveInterval <= 0 {
		errs = append(errs, fmt.Errorf("sse.keepalive_interval must be positive"))
	}
	if cfg.SSE.BufferCapacity < 1 {
		errs = append(errs, fmt.Errorf("sse.buffer_capacity must be at least 1"))
	}

	if cfg.AMQP.URL != "" {
		u, err := url.Parse(cfg.AMQP.URL)
		if err != nil || (u.Scheme != "amqp" && u.Scheme != "amqps") {
			errs = append(errs, fmt.Errorf("amqp.url must be an amqp:// or amqps:// URL"))
		}
		if cfg.AMQP.Exchange == "" {
			errs = append(errs, fmt.Errorf("amqp.exchange is required when amqp.url is set"))
		}
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn, or error"))
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
