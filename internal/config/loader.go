package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Strob0t/CodeSwarm/internal/domain/conflict"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "codeswarm.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "CODESWARM_PORT")
	setString(&cfg.Server.CORSOrigin, "CODESWARM_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "CODESWARM_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "CODESWARM_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "CODESWARM_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "CODESWARM_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "CODESWARM_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "CODESWARM_LOG_LEVEL")
	setString(&cfg.Logging.Service, "CODESWARM_LOG_SERVICE")
	setInt(&cfg.Breaker.MaxFailures, "CODESWARM_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "CODESWARM_BREAKER_TIMEOUT")
	setInt64(&cfg.Cache.MaxSizeMB, "CODESWARM_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "CODESWARM_CACHE_TTL")
	setBool(&cfg.Telemetry.Enabled, "CODESWARM_TELEMETRY_ENABLED")
	setString(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setInt(&cfg.Coordinator.MaxConcurrent, "CODESWARM_MAX_CONCURRENT")
	setInt64(&cfg.Coordinator.DefaultTimeoutMS, "CODESWARM_DEFAULT_TIMEOUT_MS")
	setString(&cfg.Coordinator.ConflictStrategy, "CODESWARM_CONFLICT_STRATEGY")
	setString(&cfg.Coordinator.DefinitionsFile, "CODESWARM_DEFINITIONS_FILE")
	setString(&cfg.Coordinator.IsolationDir, "CODESWARM_ISOLATION_DIR")
	setInt(&cfg.Coordinator.CopyConcurrency, "CODESWARM_COPY_CONCURRENCY")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Coordinator.MaxConcurrent < 1 {
		return errors.New("coordinator.max_concurrent must be >= 1")
	}
	if cfg.Coordinator.DefaultTimeoutMS < 1000 {
		return errors.New("coordinator.default_timeout_ms must be >= 1000")
	}
	if s := conflict.Strategy(cfg.Coordinator.ConflictStrategy); !s.Valid() {
		return fmt.Errorf("coordinator.conflict_strategy %q is not one of serialize, abort-newer, merge-results, isolated", s)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
