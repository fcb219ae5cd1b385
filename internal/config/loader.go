package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies LPAD_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known LPAD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setInt(&cfg.Server.Port, "LPAD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "LPAD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "LPAD_SERVER_API_KEY")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "LPAD_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "LPAD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "LPAD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "LPAD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "LPAD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "LPAD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "LPAD_POSTGRES_SSLMODE")
	setStr(&cfg.Postgres.SSLMode, "LPAD_POSTGRES_SSL_MODE") // compatibility alias
	setInt(&cfg.Postgres.PoolMaxConns, "LPAD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "LPAD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "LPAD_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "LPAD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "LPAD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "LPAD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "LPAD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "LPAD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "LPAD_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "LPAD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "LPAD_S3_REGION")
	setStr(&cfg.S3.Bucket, "LPAD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "LPAD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "LPAD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "LPAD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "LPAD_S3_FORCE_PATH_STYLE")

	// ── Webhook ──
	setStr(&cfg.Webhook.Secret, "LPAD_WEBHOOK_SECRET")
	setStr(&cfg.Webhook.EncryptedSecretPath, "LPAD_WEBHOOK_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.Webhook.SecretPassword, "LPAD_WEBHOOK_SECRET_PASSWORD")
	setDuration(&cfg.Webhook.MaxSkew, "LPAD_WEBHOOK_MAX_SKEW")

	// ── RateLimit ──
	setStr(&cfg.RateLimit.Backend, "LPAD_RATE_LIMIT_BACKEND")
	setInt(&cfg.RateLimit.Limit, "LPAD_RATE_LIMIT_LIMIT")
	setDuration(&cfg.RateLimit.Window, "LPAD_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "LPAD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "LPAD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "LPAD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "LPAD_NOTIFY_EVENTS")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "LPAD_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "LPAD_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.SweepInterval, "LPAD_ARCHIVE_SWEEP_INTERVAL")
	setInt(&cfg.Archive.BatchSize, "LPAD_ARCHIVE_BATCH_SIZE")

	// ── Top-level ──
	setStr(&cfg.Mode, "LPAD_MODE")
	setStr(&cfg.LogLevel, "LPAD_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
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

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
