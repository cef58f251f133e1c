package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/corbeille/corbeille-backend/api/routes"
	"github.com/corbeille/corbeille-backend/internal/baskets"
	"github.com/corbeille/corbeille-backend/internal/checkout"
	"github.com/corbeille/corbeille-backend/internal/companies"
	"github.com/corbeille/corbeille-backend/internal/delivery"
	"github.com/corbeille/corbeille-backend/internal/notifications"
	"github.com/corbeille/corbeille-backend/internal/orders"
	"github.com/corbeille/corbeille-backend/internal/promos"
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

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	var redisClient *redis.Client
	if cfg.Redis.URL != "" || cfg.Redis.Address != "" {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
	} else {
		logg.Warn(ctx, "redis not configured, webhook fast-path dedupe and entity locks disabled")
	}

	var stripeClient *stripe.Client
	if cfg.Stripe.APIKey != "" {
		stripeClient, err = stripe.NewClient(ctx, cfg.Stripe, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap stripe", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(ctx, "stripe not configured, checkout and webhooks disabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	webhookMetrics := metrics.NewWebhookMetrics(registry)

	conn := dbClient.DB()
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	requester, err := notifications.NewRequester(emitter)
	if err != nil {
		logg.Error(ctx, "failed to create notification requester", err)
		os.Exit(1)
	}

	scheduler := delivery.NewScheduler(cfg.Delivery.Location(), nil)
	plans := subscriptions.NewPricePlans(cfg.Stripe.PricePlans())
	orderRepo := orders.NewRepository(conn)
	subscriptionRepo := subscriptions.NewRepository(conn)

	ordersService, err := orders.NewService(orders.ServiceParams{
		Repository:        orderRepo,
		TransactionRunner: dbClient,
		Outbox:            emitter,
		Notifier:          requester,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create orders service", err)
		os.Exit(1)
	}

	subscriptionsService, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repository:        subscriptionRepo,
		Stripe:            subscriptions.NewStripeClient(stripeClient),
		Notifier:          requester,
		Outbox:            emitter,
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create subscriptions service", err)
		os.Exit(1)
	}

	promoService, err := promos.NewService(promos.ServiceParams{
		Repository: promos.NewRepository(conn),
		Logger:     logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create promo service", err)
		os.Exit(1)
	}

	basketService, err := baskets.NewService(baskets.NewCatalogRepository(conn))
	if err != nil {
		logg.Error(ctx, "failed to create basket pricing service", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Gateway:    checkout.NewStripeGateway(stripeClient),
		Scheduler:  scheduler,
		Baskets:    basketService,
		Promos:     promoService,
		Plans:      plans,
		SuccessURL: cfg.Stripe.SuccessURL,
		CancelURL:  cfg.Stripe.CancelURL,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create checkout service", err)
		os.Exit(1)
	}

	webhookParams := stripewebhook.ServiceParams{
		TransactionRunner: dbClient,
		Processed:         stripewebhook.NewProcessedEvents(conn),
		Companies:         companies.NewRepository(conn),
		Subscriptions:     subscriptionsService,
		SubscriptionRepo:  subscriptionRepo,
		Orders:            ordersService,
		OrderRepo:         orderRepo,
		Promos:            promoService,
		Notifier:          requester,
		Plans:             plans,
		Logger:            logg,
	}
	var webhookGuard *stripewebhook.IdempotencyGuard
	if redisClient != nil {
		locker, err := redis.NewEntityLocker(redisClient, cfg.Webhook.LockTTL)
		if err != nil {
			logg.Error(ctx, "failed to create entity locker", err)
			os.Exit(1)
		}
		webhookParams.Locker = locker
		webhookGuard, err = stripewebhook.NewIdempotencyGuard(redisClient, cfg.Webhook.IdempotencyTTL, "stripe-webhook")
		if err != nil {
			logg.Error(ctx, "failed to create webhook idempotency guard", err)
			os.Exit(1)
		}
	}
	webhookService, err := stripewebhook.NewService(webhookParams)
	if err != nil {
		logg.Error(ctx, "failed to create stripe webhook service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	serverCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(serverCtx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			registry,
			promoService,
			scheduler,
			basketService,
			checkoutService,
			subscriptionsService,
			ordersService,
			stripeClient,
			webhookService,
			webhookGuard,
			webhookMetrics,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(serverCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(serverCtx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(serverCtx, "graceful shutdown failed", err)
		}
	}
}
