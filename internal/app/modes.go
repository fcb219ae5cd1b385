package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/launchforge/launchpad/internal/crypto"
	"github.com/launchforge/launchpad/internal/domain"
	"github.com/launchforge/launchpad/internal/notify"
	"github.com/launchforge/launchpad/internal/server"
	"github.com/launchforge/launchpad/internal/server/handler"
	"github.com/launchforge/launchpad/internal/server/ws"
	"github.com/launchforge/launchpad/internal/service"
)

// sweepLockKey guards the archive sweep so at most one replica runs it.
const sweepLockKey = "archive_sweep"

// sweepLockTTL bounds how long a crashed sweeper can hold the lock.
const sweepLockTTL = 30 * time.Minute

// ServeMode starts the HTTP API, the WebSocket hub, and (when enabled) the
// periodic archive sweeper. It blocks until the context is cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	// Webhook signature verifier.
	secret, err := crypto.LoadSecret(crypto.SecretConfig{
		RawSecret:           a.cfg.Webhook.Secret,
		EncryptedSecretPath: a.cfg.Webhook.EncryptedSecretPath,
		SecretPassword:      a.cfg.Webhook.SecretPassword,
	})
	if err != nil {
		return fmt.Errorf("serve mode: load webhook secret: %w", err)
	}
	verifier := crypto.NewWebhookVerifier(secret, a.cfg.Webhook.MaxSkew.Duration)

	// Build services.
	phaseSvc := service.NewPhaseService(
		deps.DealStore, deps.PhaseStore, deps.AuditStore, deps.SignalBus, a.logger,
	).WithCache(deps.DealCache)
	dealSvc := service.NewDealService(deps.DealStore, a.logger).WithCache(deps.DealCache)
	contributionSvc := service.NewContributionService(
		deps.DealStore, deps.ContributionStore, deps.UserStore,
		deps.NotificationStore, deps.AuditStore, deps.SignalBus, phaseSvc, a.logger,
	)
	claimSvc := service.NewClaimService(
		deps.VestingStore, deps.NotificationStore, deps.AuditStore, deps.SignalBus, a.logger,
	)
	reconcileSvc := service.NewReconcileService(
		deps.ContributionStore, deps.NotificationStore, deps.EventStore,
		deps.AuditStore, deps.SignalBus, phaseSvc, a.logger,
	).WithAlerter(deps.Notifier)

	// WebSocket hub bridging the Redis signal bus to browser clients.
	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	// HTTP handlers.
	handlers := server.Handlers{
		Health:        handler.NewHealthHandler(a.healthPingers(deps), a.logger),
		Deals:         handler.NewDealHandler(dealSvc, contributionSvc, phaseSvc, a.logger),
		Contributions: handler.NewContributionHandler(contributionSvc, a.logger),
		Claims:        handler.NewClaimHandler(claimSvc, a.logger),
		Phases:        handler.NewPhaseHandler(phaseSvc, a.logger),
		Webhooks:      handler.NewWebhookHandler(reconcileSvc, a.logger),
		Notifications: handler.NewNotificationHandler(deps.NotificationStore, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.RateLimit.Limit,
		RateLimitWindow: a.cfg.RateLimit.Window.Duration,
	}, handlers, hub, verifier, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// Periodic archive sweeps, guarded by the distributed lock.
	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		g.Go(func() error {
			ticker := time.NewTicker(a.cfg.Archive.SweepInterval.Duration)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					if err := a.runSweep(ctx, deps); err != nil {
						a.logger.ErrorContext(ctx, "archive sweep failed",
							slog.String("error", err.Error()),
						)
					}
				}
			}
		})
	}

	return g.Wait()
}

// MigrateMode applies pending database migrations and exits.
func (a *App) MigrateMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting migrate mode")

	if err := deps.PG.RunMigrations(ctx); err != nil {
		return fmt.Errorf("migrate mode: %w", err)
	}

	a.logger.InfoContext(ctx, "migrations applied")
	return nil
}

// SweepMode runs a single archive sweep and exits. Intended to be invoked
// from a scheduler (cron, Kubernetes CronJob).
func (a *App) SweepMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sweep mode")

	return a.runSweep(ctx, deps)
}

// runSweep archives audit and reconciler journal rows older than the
// retention window. The distributed lock ensures only one replica sweeps at a
// time; losing the race is not an error.
func (a *App) runSweep(ctx context.Context, deps *Dependencies) error {
	unlock, err := deps.LockManager.Acquire(ctx, sweepLockKey, sweepLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			a.logger.InfoContext(ctx, "archive sweep already running elsewhere, skipping")
			return nil
		}
		return fmt.Errorf("sweep: acquire lock: %w", err)
	}
	defer unlock()

	cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.Archive.RetentionDays)
	a.logger.InfoContext(ctx, "archive sweep starting",
		slog.Time("cutoff", cutoff),
	)

	auditRows, auditErr := deps.Archiver.ArchiveAuditLog(ctx, cutoff)
	eventRows, eventErr := deps.Archiver.ArchiveProcessedEvents(ctx, cutoff)

	if err := errors.Join(auditErr, eventErr); err != nil {
		if alertErr := deps.Notifier.Notify(ctx, notify.EventArchiveFailed,
			"Archive sweep failed",
			fmt.Sprintf("Sweep with cutoff %s failed: %v", cutoff.Format(time.RFC3339), err),
		); alertErr != nil {
			a.logger.WarnContext(ctx, "archive failure alert not delivered",
				slog.String("error", alertErr.Error()),
			)
		}
		return fmt.Errorf("sweep: %w", err)
	}

	a.logger.InfoContext(ctx, "archive sweep complete",
		slog.Int64("audit_rows", auditRows),
		slog.Int64("event_rows", eventRows),
	)
	return nil
}

// pingFunc adapts a bare function to the handler.Pinger interface.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// healthPingers assembles the dependency health checks for /api/health.
func (a *App) healthPingers(deps *Dependencies) map[string]handler.Pinger {
	pingers := map[string]handler.Pinger{
		"postgres": deps.PG,
	}
	if deps.Redis != nil {
		pingers["redis"] = deps.Redis
	}
	if deps.S3 != nil {
		pingers["s3"] = pingFunc(deps.S3.Health)
	}
	return pingers
}
