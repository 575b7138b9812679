// Package config loads the lottery decision core's runtime configuration
// from environment variables (with optional YAML file overlay), mirroring
// the loader shape used across the service layer's other daemons.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `json:"host" yaml:"host" env:"SERVER_HOST"`
	Port int    `json:"port" yaml:"port" env:"SERVER_PORT"`
}

// DatabaseConfig controls the Postgres store.
type DatabaseConfig struct {
	DSN             string `json:"dsn" yaml:"dsn" env:"DATABASE_DSN"`
	MaxOpenConns    int    `json:"max_open_conns" yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `json:"max_idle_conns" yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `json:"conn_max_lifetime" yaml:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
	MigrateOnStart  bool   `json:"migrate_on_start" yaml:"migrate_on_start" env:"DATABASE_MIGRATE_ON_START"`
}

// RedisConfig controls the hot-state Redis client.
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr" env:"REDIS_ADDR"`
	Password string `json:"password" yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `json:"db" yaml:"db" env:"REDIS_DB"`
	PoolSize int    `json:"pool_size" yaml:"pool_size" env:"REDIS_POOL_SIZE"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" env:"LOG_LEVEL"`
	Format string `json:"format" yaml:"format" env:"LOG_FORMAT"`
}

// DrawConfig controls the pipeline's timing/staleness tolerances and the
// system-default correction thresholds (spec §4.5): campaign-declared
// guarantee blocks still live on the campaign row since they're
// per-campaign, but pity/anti-empty/anti-high are process-wide defaults.
type DrawConfig struct {
	DecisionDeadline       time.Duration `json:"decision_deadline" yaml:"decision_deadline" env:"DRAW_DECISION_DEADLINE"`
	LockAcquireTimeout     time.Duration `json:"lock_acquire_timeout" yaml:"lock_acquire_timeout" env:"DRAW_LOCK_ACQUIRE_TIMEOUT"`
	LockTTL                time.Duration `json:"lock_ttl" yaml:"lock_ttl" env:"DRAW_LOCK_TTL"`
	IdempotencyInFlightTTL time.Duration `json:"idempotency_in_flight_ttl" yaml:"idempotency_in_flight_ttl" env:"DRAW_IDEMPOTENCY_IN_FLIGHT_TTL"`
	IdempotencyCommittedTTL time.Duration `json:"idempotency_committed_ttl" yaml:"idempotency_committed_ttl" env:"DRAW_IDEMPOTENCY_COMMITTED_TTL"`
	PricingCacheTTL        time.Duration `json:"pricing_cache_ttl" yaml:"pricing_cache_ttl" env:"DRAW_PRICING_CACHE_TTL"`
	PressureCacheTTL       time.Duration `json:"pressure_cache_ttl" yaml:"pressure_cache_ttl" env:"DRAW_PRESSURE_CACHE_TTL"`
	DecisionRetentionHours int           `json:"decision_retention_hours" yaml:"decision_retention_hours" env:"DRAW_DECISION_RETENTION_HOURS"`
	DefaultPityThreshold   int           `json:"default_pity_threshold" yaml:"default_pity_threshold" env:"DRAW_DEFAULT_PITY_THRESHOLD"`
	AntiEmptyThreshold     int           `json:"anti_empty_threshold" yaml:"anti_empty_threshold" env:"DRAW_ANTI_EMPTY_THRESHOLD"`
	AntiHighThreshold      int           `json:"anti_high_threshold" yaml:"anti_high_threshold" env:"DRAW_ANTI_HIGH_THRESHOLD"`
	AntiHighCooldownRounds int           `json:"anti_high_cooldown_rounds" yaml:"anti_high_cooldown_rounds" env:"DRAW_ANTI_HIGH_COOLDOWN_ROUNDS"`
}

// AdminConfig controls the admin RPC surface's bearer authentication.
type AdminConfig struct {
	BearerTokenHash string `json:"bearer_token_hash" yaml:"bearer_token_hash" env:"ADMIN_BEARER_TOKEN_HASH"`
}

// AssetClientConfig controls the HTTP client to the external points ledger.
type AssetClientConfig struct {
	BaseURL string        `json:"base_url" yaml:"base_url" env:"ASSET_SERVICE_BASE_URL"`
	Token   string        `json:"token" yaml:"token" env:"ASSET_SERVICE_TOKEN"`
	Timeout time.Duration `json:"timeout" yaml:"timeout" env:"ASSET_SERVICE_TIMEOUT"`
}

// OutboxConfig controls the deferred prize-issuance resolver's schedule,
// claim batch size, and retry budget (spec §4.6 step 8).
type OutboxConfig struct {
	Schedule     string        `json:"schedule" yaml:"schedule" env:"OUTBOX_SCHEDULE"`
	BatchLimit   int           `json:"batch_limit" yaml:"batch_limit" env:"OUTBOX_BATCH_LIMIT"`
	MaxAttempts  int           `json:"max_attempts" yaml:"max_attempts" env:"OUTBOX_MAX_ATTEMPTS"`
	BaseBackoff  time.Duration `json:"base_backoff" yaml:"base_backoff" env:"OUTBOX_BASE_BACKOFF"`
	MaxBackoff   time.Duration `json:"max_backoff" yaml:"max_backoff" env:"OUTBOX_MAX_BACKOFF"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server      ServerConfig      `json:"server" yaml:"server"`
	Database    DatabaseConfig    `json:"database" yaml:"database"`
	Redis       RedisConfig       `json:"redis" yaml:"redis"`
	Logging     LoggingConfig     `json:"logging" yaml:"logging"`
	Draw        DrawConfig        `json:"draw" yaml:"draw"`
	Admin       AdminConfig       `json:"admin" yaml:"admin"`
	AssetClient AssetClientConfig `json:"asset_client" yaml:"asset_client"`
	Outbox      OutboxConfig      `json:"outbox" yaml:"outbox"`
}

// New returns a configuration populated with defaults.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
			MigrateOnStart:  true,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			DB:       0,
			PoolSize: 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Draw: DrawConfig{
			DecisionDeadline:        3 * time.Second,
			LockAcquireTimeout:      2 * time.Second,
			LockTTL:                 5 * time.Second,
			IdempotencyInFlightTTL:  5 * time.Second,
			IdempotencyCommittedTTL: 24 * time.Hour,
			PricingCacheTTL:         30 * time.Second,
			PressureCacheTTL:        60 * time.Second,
			DecisionRetentionHours:  0,
			DefaultPityThreshold:    10,
			AntiEmptyThreshold:      7,
			AntiHighThreshold:       3,
			AntiHighCooldownRounds:  5,
		},
		AssetClient: AssetClientConfig{
			Timeout: 2 * time.Second,
		},
		Outbox: OutboxConfig{
			Schedule:    "@every 10s",
			BatchLimit:  50,
			MaxAttempts: 8,
			BaseBackoff: 2 * time.Second,
			MaxBackoff:  10 * time.Minute,
		},
	}
}

// Load loads configuration from an optional .env file, an optional YAML
// file, and environment variables, in that order of increasing precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		_ = loadFromFile("configs/config.yaml", cfg)
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	applyDatabaseURLOverride(cfg)
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyDatabaseURLOverride lets operators point at a managed Postgres
// instance via DATABASE_URL without editing the DSN fields individually.
func applyDatabaseURLOverride(cfg *Config) {
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		cfg.Database.DSN = dsn
	}
}
