package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/launchforge/launchpad/internal/blob/s3"
	"github.com/launchforge/launchpad/internal/cache/redis"
	"github.com/launchforge/launchpad/internal/config"
	"github.com/launchforge/launchpad/internal/domain"
	"github.com/launchforge/launchpad/internal/notify"
	"github.com/launchforge/launchpad/internal/ratelimit"
	"github.com/launchforge/launchpad/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Clients, kept for health checks.
	PG    *postgres.Client
	Redis *redis.Client
	S3    *s3blob.Client

	// Stores
	DealStore         domain.DealStore
	ContributionStore domain.ContributionStore
	VestingStore      domain.VestingStore
	UserStore         domain.UserStore
	ComplianceStore   domain.ComplianceStore
	PhaseStore        domain.PhaseStore
	NotificationStore domain.NotificationStore
	EventStore        domain.EventStore
	AuditStore        domain.AuditStore

	// Caches
	DealCache   domain.DealCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// needsRedis returns true for modes that require Redis. The serve mode uses
// it for the signal bus and deal cache; the sweep mode for the distributed
// lock.
func needsRedis(mode string) bool {
	switch mode {
	case "serve", "sweep":
		return true
	default:
		return false
	}
}

// needsS3 returns true when the archive sweeper will run.
func needsS3(cfg *config.Config) bool {
	switch strings.ToLower(cfg.Mode) {
	case "sweep":
		return true
	case "serve":
		return cfg.Archive.Enabled
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	mode := strings.ToLower(cfg.Mode)

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (every mode needs persistence) ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)
	deps.PG = pgClient

	// Run migrations if enabled. The migrate mode applies them explicitly.
	if cfg.Postgres.RunMigrations && mode != "migrate" {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	eventStore := postgres.NewEventStore(pool)
	auditStore := postgres.NewAuditStore(pool)
	deps.DealStore = postgres.NewDealStore(pool)
	deps.ContributionStore = postgres.NewContributionStore(pool)
	deps.VestingStore = postgres.NewVestingStore(pool)
	deps.UserStore = postgres.NewUserStore(pool)
	deps.ComplianceStore = postgres.NewComplianceStore(pool)
	deps.PhaseStore = postgres.NewPhaseStore(pool)
	deps.NotificationStore = postgres.NewNotificationStore(pool)
	deps.EventStore = eventStore
	deps.AuditStore = auditStore

	// --- Redis ---
	if needsRedis(mode) || strings.ToLower(cfg.RateLimit.Backend) == "redis" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Redis = redisClient

		deps.DealCache = redis.NewDealCache(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- Rate limiter ---
	switch strings.ToLower(cfg.RateLimit.Backend) {
	case "redis":
		deps.RateLimiter = redis.NewRateLimiter(deps.Redis)
	case "memory":
		mem := ratelimit.NewMemory()
		closers = append(closers, mem.Close)
		deps.RateLimiter = mem
	}

	// --- S3 blob storage (only when the archive sweeper runs) ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })
		deps.S3 = s3Client

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, auditStore, eventStore).
			WithBatchSize(cfg.Archive.BatchSize)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, slog.Default())

	return deps, cleanup, nil
}
