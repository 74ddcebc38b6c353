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
const DefaultConfigFile = "sofia.yaml"

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
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the operator
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
	setString(&cfg.Server.Port, "SOFIA_PORT")
	setString(&cfg.Server.CORSOrigin, "SOFIA_CORS_ORIGIN")
	setDuration(&cfg.Server.WriteTimeout, "SOFIA_WRITE_TIMEOUT")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "SOFIA_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "SOFIA_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "SOFIA_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "SOFIA_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "SOFIA_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.LiteLLM.URL, "LITELLM_URL")
	setString(&cfg.LiteLLM.MasterKey, "LITELLM_MASTER_KEY")
	setDuration(&cfg.LiteLLM.Timeout, "SOFIA_LLM_TIMEOUT")
	setString(&cfg.Logging.Level, "SOFIA_LOG_LEVEL")
	setString(&cfg.Logging.Service, "SOFIA_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "SOFIA_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "SOFIA_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "SOFIA_BREAKER_TIMEOUT")
	setFloat64(&cfg.Rate.RequestsPerSecond, "SOFIA_RATE_RPS")
	setInt(&cfg.Rate.Burst, "SOFIA_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "SOFIA_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "SOFIA_RATE_MAX_IDLE_TIME")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "SOFIA_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Bucket, "SOFIA_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "SOFIA_CACHE_L2_TTL")
	setDuration(&cfg.Cache.AgentTTL, "SOFIA_CACHE_AGENT_TTL")

	// Orchestrator
	setInt(&cfg.Orchestrator.MaxOutputTokens, "SOFIA_ORCH_MAX_OUTPUT_TOKENS")
	setInt(&cfg.Orchestrator.AsyncWorkers, "SOFIA_ORCH_ASYNC_WORKERS")

	// Dispatch
	setDuration(&cfg.Dispatch.Timeout, "SOFIA_DISPATCH_TIMEOUT")
	setString(&cfg.Dispatch.SigningSecret, "SOFIA_WEBHOOK_SECRET")
	setString(&cfg.Dispatch.Email.APIKey, "RESEND_API_KEY")
	setString(&cfg.Dispatch.Email.APIURL, "SOFIA_EMAIL_API_URL")
	setString(&cfg.Dispatch.Email.From, "SOFIA_EMAIL_FROM")

	// Inbound webhook
	setString(&cfg.Webhook.InboundSecret, "SOFIA_INBOUND_WEBHOOK_SECRET")

	// OpenTelemetry
	setBool(&cfg.OTEL.Enabled, "SOFIA_OTEL_ENABLED")
	setString(&cfg.OTEL.Endpoint, "SOFIA_OTEL_ENDPOINT")
	setString(&cfg.OTEL.ServiceName, "SOFIA_OTEL_SERVICE_NAME")
	setBool(&cfg.OTEL.Insecure, "SOFIA_OTEL_INSECURE")
	setFloat64(&cfg.OTEL.SampleRate, "SOFIA_OTEL_SAMPLE_RATE")

	// MCP
	setBool(&cfg.MCP.Enabled, "SOFIA_MCP_ENABLED")
	setString(&cfg.MCP.Addr, "SOFIA_MCP_ADDR")
	setString(&cfg.MCP.APIKey, "SOFIA_MCP_API_KEY")
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
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.Orchestrator.MaxOutputTokens < 1 {
		return errors.New("orchestrator.max_output_tokens must be >= 1")
	}
	if cfg.Orchestrator.AsyncWorkers < 1 {
		return errors.New("orchestrator.async_workers must be >= 1")
	}
	if cfg.Dispatch.Timeout <= 0 {
		return errors.New("dispatch.timeout must be > 0")
	}
	if cfg.OTEL.SampleRate < 0 || cfg.OTEL.SampleRate > 1 {
		return errors.New("otel.sample_rate must be between 0 and 1")
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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
