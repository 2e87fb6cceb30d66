// Package config loads clawden's configuration from environment variables,
// an optional YAML file, and built-in defaults. The on-disk config file and
// its loader are specified only as a collaborator surface (see spec.md §1);
// this package implements just enough of it to drive the core in-process.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds every ambient and domain setting the core consumes.
type Config struct {
	Server          ServerConfig          `mapstructure:"server"`
	Logging         LoggingConfig         `mapstructure:"logging"`
	Docker          DockerConfig          `mapstructure:"docker"`
	Health          HealthConfig          `mapstructure:"health"`
	NATS            NATSConfig            `mapstructure:"nats"`
	ExternalRegistry ExternalRegistryConfig `mapstructure:"externalRegistry"`
	Tracing         TracingConfig         `mapstructure:"tracing"`
	Adapters        AdaptersConfig        `mapstructure:"adapters"`
	Audit           AuditConfig           `mapstructure:"audit"`
}

// AdaptersConfig carries the per-runtime-kind settings each concrete
// adapter needs to reach its actual subprocess/container/endpoint.
type AdaptersConfig struct {
	PicoClawImage        string `mapstructure:"picoClawImage"`
	MicroClawCommand     string `mapstructure:"microClawCommand"`
	ZeroClawExecutable   string `mapstructure:"zeroClawExecutable"`
	MimiClawExecutable   string `mapstructure:"mimiClawExecutable"`
	NanoClawURLTemplate  string `mapstructure:"nanoClawUrlTemplate"`
	OpenClawBaseURL      string `mapstructure:"openClawBaseUrlTemplate"`
}

// AuditConfig configures the append-only audit sink's file mirror.
type AuditConfig struct {
	FilePath string `mapstructure:"filePath"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DockerConfig struct {
	NoDocker bool `mapstructure:"noDocker"`
}

type HealthConfig struct {
	IntervalMS           int `mapstructure:"intervalMs"`
	RecoveryBaseBackoffMS int `mapstructure:"recoveryBaseBackoffMs"`
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ExternalRegistryConfig struct {
	Kind string `mapstructure:"kind"` // "postgres", "sqlite", or ""
	DSN  string `mapstructure:"dsn"`
}

type TracingConfig struct {
	OTLPEndpoint string `mapstructure:"otlpEndpoint"`
}

// StateDir returns $HOME/.clawden, the Process Supervisor's on-disk root.
func StateDir() (string, error) {
	home := os.Getenv("HOME")
	if home == "" {
		return "", fmt.Errorf("HOME is not set")
	}
	return filepath.Join(home, ".clawden"), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("docker.noDocker", false)
	v.SetDefault("health.intervalMs", 5000)
	v.SetDefault("health.recoveryBaseBackoffMs", 1000)
	v.SetDefault("nats.url", "")
	v.SetDefault("externalRegistry.kind", "")
	v.SetDefault("externalRegistry.dsn", "")
	v.SetDefault("tracing.otlpEndpoint", "")
	v.SetDefault("adapters.picoClawImage", "clawden/picoclaw:latest")
	v.SetDefault("adapters.microClawCommand", "microclaw-mcp-server")
	v.SetDefault("adapters.zeroClawExecutable", "zeroclaw-agent")
	v.SetDefault("adapters.mimiClawExecutable", "mimiclaw-agent")
	v.SetDefault("adapters.nanoClawUrlTemplate", "ws://localhost:9100/agents/{id}")
	v.SetDefault("adapters.openClawBaseUrlTemplate", "http://localhost:9200/agents/{id}")
	v.SetDefault("audit.filePath", "")
}

// Load reads configuration from env vars (prefix CLAWDEN_), an optional
// config.yaml in the current directory or /etc/clawden/, and defaults.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CLAWDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("server.port", "CLAWDEN_SERVER_PORT")
	_ = v.BindEnv("health.intervalMs", "CLAWDEN_HEALTH_INTERVAL_MS")
	_ = v.BindEnv("health.recoveryBaseBackoffMs", "CLAWDEN_RECOVERY_BASE_BACKOFF_MS")
	_ = v.BindEnv("docker.noDocker", "CLAWDEN_NO_DOCKER")
	_ = v.BindEnv("nats.url", "CLAWDEN_NATS_URL")
	_ = v.BindEnv("externalRegistry.kind", "CLAWDEN_EXTERNAL_REGISTRY_KIND")
	_ = v.BindEnv("externalRegistry.dsn", "CLAWDEN_EXTERNAL_REGISTRY_DSN")
	_ = v.BindEnv("tracing.otlpEndpoint", "CLAWDEN_OTLP_ENDPOINT")
	_ = v.BindEnv("adapters.picoClawImage", "CLAWDEN_PICOCLAW_IMAGE")
	_ = v.BindEnv("adapters.microClawCommand", "CLAWDEN_MICROCLAW_COMMAND")
	_ = v.BindEnv("adapters.zeroClawExecutable", "CLAWDEN_ZEROCLAW_EXECUTABLE")
	_ = v.BindEnv("adapters.mimiClawExecutable", "CLAWDEN_MIMICLAW_EXECUTABLE")
	_ = v.BindEnv("adapters.nanoClawUrlTemplate", "CLAWDEN_NANOCLAW_URL_TEMPLATE")
	_ = v.BindEnv("adapters.openClawBaseUrlTemplate", "CLAWDEN_OPENCLAW_BASE_URL_TEMPLATE")
	_ = v.BindEnv("audit.filePath", "CLAWDEN_AUDIT_FILE_PATH")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/clawden/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("server.port must be between 1 and 65535")
	}

	return &cfg, nil
}
