package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/corbeille/corbeille-backend/api/controllers"
	webhookcontrollers "github.com/corbeille/corbeille-backend/api/controllers/webhooks"
	"github.com/corbeille/corbeille-backend/api/middleware"
	"github.com/corbeille/corbeille-backend/internal/baskets"
	checkoutsvc "github.com/corbeille/corbeille-backend/internal/checkout"
	"github.com/corbeille/corbeille-backend/internal/delivery"
	"github.com/corbeille/corbeille-backend/internal/orders"
	"github.com/corbeille/corbeille-backend/internal/promos"
	subscriptionsvc "github.com/corbeille/corbeille-backend/internal/subscriptions"
	stripewebhook "github.com/corbeille/corbeille-backend/internal/webhooks/stripe"
	"github.com/corbeille/corbeille-backend/pkg/config"
	"github.com/corbeille/corbeille-backend/pkg/enums"
	"github.com/corbeille/corbeille-backend/pkg/logger"
	"github.com/corbeille/corbeille-backend/pkg/metrics"
	"github.com/corbeille/corbeille-backend/pkg/redis"
	"github.com/corbeille/corbeille-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient *redis.Client,
	gatherer prometheus.Gatherer,
	promoService *promos.Service,
	scheduler *delivery.Scheduler,
	basketService *baskets.Service,
	checkoutService checkoutsvc.Service,
	subscriptionsService subscriptionsvc.Service,
	ordersSvc orders.Service,
	stripeClient *stripe.Client,
	stripeWebhookService *stripewebhook.Service,
	stripeWebhookGuard *stripewebhook.IdempotencyGuard,
	webhookMetrics *metrics.WebhookMetrics,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	readiness := map[string]controllers.Pinger{"db": dbP, "redis": nil}
	if redisClient != nil {
		readiness["redis"] = redisClient
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readiness, logg))
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	var idempotencyStore redis.IdempotencyStore
	promoLimiter := func(next http.Handler) http.Handler { return next }
	if redisClient != nil {
		idempotencyStore = redisClient
		policy := middleware.NewRateLimitPolicy("promo-validate", cfg.RateLimit.PromoWindow, cfg.RateLimit.PromoPerIP, cfg.RateLimit.PromoPerEmail).
			WithTrustedProxies(cfg.RateLimit.TrustedProxies)
		promoLimiter = middleware.RateLimit(policy, redisClient, logg)
	}
	idempotent := middleware.Idempotency(idempotencyStore, cfg.App.IdempotencyTTL, logg)

	r.Route("/api/public", func(r chi.Router) {
		r.With(promoLimiter).Post("/promos/validate", controllers.ValidatePromo(promoService, logg))
		r.Get("/delivery/options", controllers.DeliveryOptions(scheduler, logg))
		r.Post("/baskets/quote", controllers.QuoteBasket(basketService, logg))
	})

	var guard webhookcontrollers.StripeWebhookGuard
	if stripeWebhookGuard != nil {
		guard = stripeWebhookGuard
	}
	var webhookSvc webhookcontrollers.StripeWebhookService
	if stripeWebhookService != nil {
		webhookSvc = stripeWebhookService
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/stripe", webhookcontrollers.StripeWebhook(webhookSvc, stripeClient, guard, webhookMetrics, logg))
		r.With(idempotent).Post("/checkout", controllers.Checkout(checkoutService, logg))
		r.Route("/subscriptions", func(r chi.Router) {
			r.With(idempotent).Post("/cancel", controllers.CancelSubscription(subscriptionsService, logg))
			r.Get("/{companyId}", controllers.GetSubscription(subscriptionsService, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.With(middleware.RequireRole(logg, enums.OperatorRoleAdmin, enums.OperatorRoleDispatcher, enums.OperatorRoleDriver)).
			Get("/orders", controllers.AdminListOrders(ordersSvc, logg))
		r.Route("/orders/{orderId}", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.OperatorRoleAdmin, enums.OperatorRoleDispatcher), idempotent)
				r.Post("/status", controllers.AdminOrderStatus(ordersSvc, logg))
				r.Post("/driver", controllers.AdminAssignDriver(ordersSvc, logg))
			})
			r.With(middleware.RequireRole(logg, enums.OperatorRoleAdmin, enums.OperatorRoleDriver), idempotent).
				Post("/driver/decision", controllers.AdminDriverDecision(ordersSvc, logg))
		})
	})

	return r
}
