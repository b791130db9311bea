package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/maps"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const (
	envPrefix     = "NOTIFY_"
	configPathEnv = "NOTIFY_CONFIG"
)

// DefaultPaths are tried in order when no --config is given; the path in
// $NOTIFY_CONFIG comes last.
var DefaultPaths = []string{"notify.yml", "/etc/config/notify.yml"}

// Load layers defaults, the YAML file, NOTIFY_ env vars and flags, in that
// order of precedence from lowest to highest.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(defaultsProvider{defaults: Defaults()}, nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	path, err := resolvePath(configPath)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// NOTIFY_SSE_KEEPALIVE_INTERVAL -> sse.keepalive_interval: only the first
	// underscore separates section from key.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		if s == configPathEnv {
			return ""
		}
		key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.Replace(key, "_", ".", 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, fmt.Errorf("loading flags: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
	}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func resolvePath(configPath string) (string, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return configPath, nil
	}
	candidates := DefaultPaths
	if p := os.Getenv(configPathEnv); p != "" {
		candidates = append(candidates[:len(candidates):len(candidates)], p)
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

type defaultsProvider struct {
	defaults *Config
}

func (d defaultsProvider) ReadBytes() ([]byte, error) {
	return nil, nil
}

func (d defaultsProvider) Read() (map[string]interface{}, error) {
	return maps.Unflatten(flatDefaults(d.defaults), "."), nil
}

func flatDefaults(d *Config) map[string]interface{} {
	return map[string]interface{}{
		"server.host":                     d.Server.Host,
		"server.port":                     d.Server.Port,
		"server.debug":                    d.Server.Debug,
		"server.environment":              d.Server.Environment,
		"server.shutdown_timeout":         d.Server.ShutdownTimeout.String(),
		"database.dsn":                    d.Database.DSN,
		"database.install_triggers":       d.Database.InstallTriggers,
		"database.min_reconnect_interval": d.Database.MinReconnectInterval.String(),
		"database.max_reconnect_interval": d.Database.MaxReconnectInterval.String(),
		"database.ping_interval":          d.Database.PingInterval.String(),
		"auth.pk":                         d.Auth.PK,
		"auth.pk_path":                    d.Auth.PKPath,
		"sse.keepalive_interval":          d.SSE.KeepAliveInterval.String(),
		"sse.keepalive_text":              d.SSE.KeepAliveText,
		"sse.buffer_capacity":             d.SSE.BufferCapacity,
		"grpc.addr":                       d.GRPC.Addr,
		"amqp.url":                        d.AMQP.URL,
		"amqp.exchange":                   d.AMQP.Exchange,
		"amqp.audit_routing_key":          d.AMQP.AuditRoutingKey,
		"otel.endpoint":                   d.OTel.Endpoint,
		"otel.service_name":               d.OTel.ServiceName,
		"log.level":                       d.Log.Level,
		"log.format":                      d.Log.Format,
	}
}

func SetupFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("notify", pflag.ContinueOnError)
	flags.String("config", "", "Path to config file")
	flags.String("server.host", "", "Server host")
	flags.Int("server.port", 0, "Server port")
	flags.Bool("server.debug", false, "Enable debug routes")
	flags.String("database.dsn", "", "Postgres connection string")
	flags.Bool("database.install_triggers", false, "Install the notify triggers on startup")
	flags.String("auth.pk_path", "", "Path to the Ed25519 public key (PEM)")
	flags.Duration("sse.keepalive_interval", 0, "Interval between SSE keep-alive comments")
	flags.Int("sse.buffer_capacity", 0, "Per-session event buffer")
	flags.String("grpc.addr", "", "gRPC health listen address")
	flags.String("amqp.url", "", "AMQP broker URL, empty disables publishing")
	flags.String("otel.endpoint", "", "OTLP gRPC endpoint, empty disables tracing")
	flags.String("log.level", "", "Log level: debug, info, warn, error")
	flags.String("log.format", "", "Log format: text or json")
	return flags
}
