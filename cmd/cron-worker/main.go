package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/corbeille/corbeille-backend/internal/cron"
	"github.com/corbeille/corbeille-backend/internal/notifications"
	"github.com/corbeille/corbeille-backend/internal/subscriptions"
	stripewebhook "github.com/corbeille/corbeille-backend/internal/webhooks/stripe"
	"github.com/corbeille/corbeille-backend/pkg/config"
	"github.com/corbeille/corbeille-backend/pkg/db"
	"github.com/corbeille/corbeille-backend/pkg/logger"
	"github.com/corbeille/corbeille-backend/pkg/metrics"
	"github.com/corbeille/corbeille-backend/pkg/migrate"
	"github.com/corbeille/corbeille-backend/pkg/outbox"
	"github.com/corbeille/corbeille-backend/pkg/redis"
	"github.com/corbeille/corbeille-backend/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	locker, err := redis.NewEntityLocker(redisClient, cfg.Cron.Interval)
	if err != nil {
		logg.Error(ctx, "failed to create entity locker", err)
		os.Exit(1)
	}
	lock, err := cron.NewRedisLock(locker, "maintenance")
	if err != nil {
		logg.Error(ctx, "failed to create cron lock", err)
		os.Exit(1)
	}

	conn := dbClient.DB()
	retention, err := cron.NewRetentionJob(cron.RetentionJobParams{
		Logger:           logg,
		DB:               dbClient,
		Outbox:           outbox.NewRepository(conn),
		Webhooks:         stripewebhook.NewProcessedEvents(conn),
		OutboxRetention:  cfg.Cron.OutboxRetention,
		WebhookRetention: cfg.Cron.WebhookRetention,
	})
	if err != nil {
		logg.Error(ctx, "failed to create retention job", err)
		os.Exit(1)
	}
	jobs := []cron.Job{retention}

	if cfg.Stripe.APIKey != "" {
		reconcile, err := newReconcileJob(ctx, cfg, logg, dbClient)
		if err != nil {
			logg.Error(ctx, "failed to create subscription reconcile job", err)
			os.Exit(1)
		}
		jobs = append(jobs, reconcile)
	} else {
		logg.Warn(ctx, "stripe not configured, subscription reconcile disabled")
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Jobs:     jobs,
		Lock:     lock,
		Metrics:  metrics.NewCronMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cron service", err)
		os.Exit(1)
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func newReconcileJob(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (cron.Job, error) {
	stripeClient, err := stripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return nil, err
	}
	conn := dbClient.DB()
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	requester, err := notifications.NewRequester(emitter)
	if err != nil {
		return nil, err
	}
	remote := subscriptions.NewStripeClient(stripeClient)
	repo := subscriptions.NewRepository(conn)
	svc, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repository:        repo,
		Stripe:            remote,
		Notifier:          requester,
		Outbox:            emitter,
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		return nil, err
	}
	return cron.NewSubscriptionReconcileJob(cron.SubscriptionReconcileJobParams{
		Logger:        logg,
		DB:            dbClient,
		Repository:    repo,
		Subscriptions: svc,
		Stripe:        remote,
		BatchSize:     cfg.Cron.ReconcileBatchSize,
		StaleAfter:    cfg.Cron.ReconcileStaleAfter,
	})
}
