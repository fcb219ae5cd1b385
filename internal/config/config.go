// Package config defines the top-level configuration for the launchpad
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by LPAD_* environment variables.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Webhook   WebhookConfig   `toml:"webhook"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Notify    NotifyConfig    `toml:"notify"`
	Archive   ArchiveConfig   `toml:"archive"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// PostgresConfig holds PostgreSQL connection parameters. If DSN is set it
// wins; otherwise the discrete fields are assembled into a connection string.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the archive
// sweeper.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// WebhookConfig holds the shared secret used to verify settlement webhook
// signatures. Either secret is set directly, or encrypted_secret_path points
// at an encrypted file unlocked with secret_password.
type WebhookConfig struct {
	Secret              string   `toml:"secret"`
	EncryptedSecretPath string   `toml:"encrypted_secret_path"`
	SecretPassword      string   `toml:"secret_password"`
	MaxSkew             duration `toml:"max_skew"`
}

// RateLimitConfig holds API rate limiting parameters. Backend selects the
// limiter implementation: "redis" shares the window across replicas, "memory"
// keeps it per-process.
type RateLimitConfig struct {
	Backend string   `toml:"backend"`
	Limit   int      `toml:"limit"`
	Window  duration `toml:"window"`
}

// NotifyConfig holds operator alert channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// ArchiveConfig holds retention parameters for the event and audit archive
// sweeper.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	SweepInterval duration `toml:"sweep_interval"`
	BatchSize     int      `toml:"batch_size"`
}

// duration wraps time.Duration so TOML values can be written as "30s" or
// "24h".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings.
func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"*"},
		},
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "launchpad",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "launchpad-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Webhook: WebhookConfig{
			MaxSkew: duration{5 * time.Minute},
		},
		RateLimit: RateLimitConfig{
			Backend: "redis",
			Limit:   100,
			Window:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"compliance_flag", "deal_settled", "archive_failed"},
		},
		Archive: ArchiveConfig{
			Enabled:       true,
			RetentionDays: 90,
			SweepInterval: duration{24 * time.Hour},
			BatchSize:     1000,
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted run modes.
var validModes = map[string]bool{
	"serve":   true,
	"migrate": true,
	"sweep":   true,
}

// validLogLevels enumerates accepted slog levels.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validRateLimitBackends enumerates the limiter implementations.
var validRateLimitBackends = map[string]bool{
	"redis":  true,
	"memory": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, migrate, sweep)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	mode := strings.ToLower(c.Mode)

	// Server
	if mode == "serve" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis is required in serve mode for the signal bus and deal cache, in
	// sweep mode for the cross-replica lock, and whenever the shared rate
	// limiter backend is selected.
	needsRedis := mode == "serve" || mode == "sweep" || strings.ToLower(c.RateLimit.Backend) == "redis"
	if needsRedis {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3 is required only when the archive sweeper runs.
	needsS3 := mode == "sweep" || (mode == "serve" && c.Archive.Enabled)
	if needsS3 {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// The settlement endpoint cannot operate without a webhook secret.
	if mode == "serve" {
		if c.Webhook.Secret == "" && c.Webhook.EncryptedSecretPath == "" {
			errs = append(errs, "webhook: either secret or encrypted_secret_path must be set for mode serve")
		}
		if c.Webhook.EncryptedSecretPath != "" && c.Webhook.SecretPassword == "" {
			errs = append(errs, "webhook: secret_password is required when encrypted_secret_path is set")
		}
	}

	// RateLimit
	if !validRateLimitBackends[strings.ToLower(c.RateLimit.Backend)] {
		errs = append(errs, fmt.Sprintf("rate_limit: unknown backend %q (valid: redis, memory)", c.RateLimit.Backend))
	}
	if c.RateLimit.Limit < 0 {
		errs = append(errs, "rate_limit: limit must be >= 0 (0 disables)")
	}
	if c.RateLimit.Limit > 0 && c.RateLimit.Window.Duration <= 0 {
		errs = append(errs, "rate_limit: window must be > 0 when limit is set")
	}

	// Archive
	if c.Archive.Enabled || mode == "sweep" {
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.BatchSize < 1 {
			errs = append(errs, "archive: batch_size must be >= 1")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
