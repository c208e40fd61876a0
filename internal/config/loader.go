package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "diagbridge.yaml"

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
	setString(&cfg.Server.Port, "DIAGBRIDGE_PORT")
	setString(&cfg.Server.CORSOrigin, "DIAGBRIDGE_CORS_ORIGIN")
	setString(&cfg.Server.APIKeyHash, "DIAGBRIDGE_API_KEY_HASH")
	setString(&cfg.Connector.Driver, "DIAGBRIDGE_CONNECTOR_DRIVER")
	setInt(&cfg.Connector.BatchSize, "DIAGBRIDGE_CONNECTOR_BATCH_SIZE")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "DIAGBRIDGE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "DIAGBRIDGE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "DIAGBRIDGE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "DIAGBRIDGE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "DIAGBRIDGE_PG_HEALTH_CHECK")
	setString(&cfg.HMSRest.BaseURL, "DIAGBRIDGE_HMS_URL")
	setString(&cfg.HMSRest.Token, "DIAGBRIDGE_HMS_TOKEN")
	setDuration(&cfg.HMSRest.Timeout, "DIAGBRIDGE_HMS_TIMEOUT")
	setString(&cfg.Analyzer.Provider, "DIAGBRIDGE_ANALYZER_PROVIDER")
	setString(&cfg.LiteLLM.URL, "LITELLM_URL")
	setString(&cfg.LiteLLM.APIKey, "LITELLM_API_KEY")
	setString(&cfg.LiteLLM.Model, "DIAGBRIDGE_ANALYZER_MODEL")
	setInt(&cfg.LiteLLM.MaxTokens, "DIAGBRIDGE_ANALYZER_MAX_TOKENS")
	setDuration(&cfg.LiteLLM.Timeout, "DIAGBRIDGE_ANALYZER_TIMEOUT")
	setString(&cfg.NATS.URL, "NATS_URL")
	setBool(&cfg.NATS.Enabled, "DIAGBRIDGE_NATS_ENABLED")
	setString(&cfg.Storage.UploadDir, "DIAGBRIDGE_UPLOAD_DIR")
	setDuration(&cfg.Poller.Warmup, "DIAGBRIDGE_POLL_WARMUP")
	setDuration(&cfg.Poller.Interval, "DIAGBRIDGE_POLL_INTERVAL")
	setDuration(&cfg.Poller.Cooldown, "DIAGBRIDGE_POLL_COOLDOWN")
	setBool(&cfg.Poller.Dedup.Enabled, "DIAGBRIDGE_DEDUP_ENABLED")
	setDuration(&cfg.Poller.Dedup.TTL, "DIAGBRIDGE_DEDUP_TTL")
	setInt64(&cfg.Poller.Dedup.MaxSizeMB, "DIAGBRIDGE_DEDUP_MAX_SIZE_MB")
	setString(&cfg.Logging.Level, "DIAGBRIDGE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "DIAGBRIDGE_LOG_SERVICE")
	setInt(&cfg.Breaker.MaxFailures, "DIAGBRIDGE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "DIAGBRIDGE_BREAKER_TIMEOUT")
	setBool(&cfg.Telemetry.Enabled, "DIAGBRIDGE_TELEMETRY_ENABLED")
	setString(&cfg.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// validate checks that required fields are set for the selected drivers.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Connector.BatchSize < 1 {
		return errors.New("connector.batch_size must be >= 1")
	}
	if cfg.Poller.Interval <= 0 {
		return errors.New("poller.interval must be > 0")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}

	switch cfg.Connector.Driver {
	case DriverDemo:
	case DriverPostgres:
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required for the postgres connector")
		}
		if cfg.Postgres.MaxConns < 1 {
			return errors.New("postgres.max_conns must be >= 1")
		}
	case DriverHMSRest:
		if cfg.HMSRest.BaseURL == "" {
			return errors.New("hmsrest.base_url is required for the hmsrest connector")
		}
	default:
		return fmt.Errorf("unknown connector.driver %q", cfg.Connector.Driver)
	}

	switch cfg.Analyzer.Provider {
	case ProviderDemo:
	case ProviderLiteLLM:
		if cfg.LiteLLM.URL == "" {
			return errors.New("litellm.url is required for the litellm analyzer")
		}
	default:
		return fmt.Errorf("unknown analyzer.provider %q", cfg.Analyzer.Provider)
	}

	if cfg.Poller.Dedup.Enabled && cfg.Poller.Dedup.TTL <= 0 {
		return errors.New("poller.dedup.ttl must be > 0 when dedup is enabled")
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
