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
const DefaultConfigFile = "convoke.yaml"

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
	setString(&cfg.Server.Port, "CONVOKE_PORT")
	setString(&cfg.Server.CORSOrigin, "CONVOKE_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "CONVOKE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "CONVOKE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "CONVOKE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "CONVOKE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "CONVOKE_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.LiteLLM.URL, "LITELLM_URL")
	setString(&cfg.LiteLLM.MasterKey, "LITELLM_MASTER_KEY")
	setString(&cfg.LiteLLM.Model, "CONVOKE_LLM_MODEL")
	setString(&cfg.Logging.Level, "CONVOKE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "CONVOKE_LOG_SERVICE")
	setString(&cfg.Telemetry.Endpoint, "CONVOKE_OTLP_ENDPOINT")
	setInt(&cfg.Breaker.MaxFailures, "CONVOKE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "CONVOKE_BREAKER_TIMEOUT")
	setInt64(&cfg.Cache.MaxSizeMB, "CONVOKE_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "CONVOKE_CACHE_TTL")
	setString(&cfg.Pipeline.DefaultResponder, "CONVOKE_DEFAULT_RESPONDER")
	setInt(&cfg.Pipeline.HistoryWindow, "CONVOKE_HISTORY_WINDOW")
	setFloat64(&cfg.Pipeline.DisclosureThreshold, "CONVOKE_DISCLOSURE_THRESHOLD")
	setDuration(&cfg.Pipeline.StageTimeout, "CONVOKE_STAGE_TIMEOUT")
	setDuration(&cfg.Consensus.CallTimeout, "CONVOKE_CONSENSUS_CALL_TIMEOUT")
	setInt(&cfg.Consensus.MaxConcurrent, "CONVOKE_CONSENSUS_MAX_CONCURRENT")
	setFloat64(&cfg.Consensus.ApproveThreshold, "CONVOKE_CONSENSUS_APPROVE_THRESHOLD")
	setFloat64(&cfg.Consensus.RejectThreshold, "CONVOKE_CONSENSUS_REJECT_THRESHOLD")
	setDuration(&cfg.Approval.DefaultTTL, "CONVOKE_APPROVAL_TTL")
	setDuration(&cfg.Approval.CommandTTL, "CONVOKE_APPROVAL_COMMAND_TTL")
	setDuration(&cfg.Approval.SweepInterval, "CONVOKE_APPROVAL_SWEEP_INTERVAL")
	setString(&cfg.Notify.SlackWebhook, "CONVOKE_SLACK_WEBHOOK")
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
	if cfg.Routing.Default == "" {
		return errors.New("routing.default is required")
	}
	if len(cfg.Risk.High) == 0 {
		return errors.New("risk.high keyword list must not be empty")
	}
	if len(cfg.Consensus.Sources) == 0 {
		return errors.New("consensus.sources must not be empty")
	}
	for _, s := range cfg.Consensus.Sources {
		if s.Weight < 0 || s.Weight > 1 {
			return fmt.Errorf("consensus source %q: weight must be in [0, 1]", s.Name)
		}
	}
	if cfg.Consensus.RejectThreshold > cfg.Consensus.ApproveThreshold {
		return errors.New("consensus.reject_threshold must not exceed approve_threshold")
	}
	if cfg.Approval.DefaultTTL <= 0 || cfg.Approval.CommandTTL <= 0 {
		return errors.New("approval TTLs must be positive")
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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
