package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Stripe       StripeConfig
	Webhook      WebhookConfig
	Delivery     DeliveryConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env            string        `envconfig:"CORBEILLE_APP_ENV" required:"true"`
	Port           string        `envconfig:"CORBEILLE_APP_PORT" default:"8080"`
	LogLevel       string        `envconfig:"CORBEILLE_LOG_LEVEL" default:"info"`
	LogFormat      string        `envconfig:"CORBEILLE_LOG_FORMAT" default:"json"`
	LogWarnStack   bool          `envconfig:"CORBEILLE_LOG_WARN_STACK" default:"false"`
	CORSOrigins    []string      `envconfig:"CORBEILLE_CORS_ORIGINS"`
	IdempotencyTTL time.Duration `envconfig:"CORBEILLE_REQUEST_IDEMPOTENCY_TTL" default:"24h"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"CORBEILLE_DB_DSN"`

	Host     string `envconfig:"CORBEILLE_DB_HOST"`
	Port     int    `envconfig:"CORBEILLE_DB_PORT" default:"5432"`
	User     string `envconfig:"CORBEILLE_DB_USER"`
	Password string `envconfig:"CORBEILLE_DB_PASSWORD"`
	Name     string `envconfig:"CORBEILLE_DB_NAME"`
	SSLMode  string `envconfig:"CORBEILLE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CORBEILLE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CORBEILLE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CORBEILLE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CORBEILLE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CORBEILLE_REDIS_URL"`
	Address      string        `envconfig:"CORBEILLE_REDIS_ADDR"`
	Password     string        `envconfig:"CORBEILLE_REDIS_PASSWORD"`
	DB           int           `envconfig:"CORBEILLE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CORBEILLE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CORBEILLE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CORBEILLE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CORBEILLE_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"CORBEILLE_REDIS_WRITE_TIMEOUT" default:"3s"`
}

// JWTConfig verifies operator tokens issued by the back-office.
type JWTConfig struct {
	Secret string `envconfig:"CORBEILLE_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"CORBEILLE_JWT_ISSUER" default:"corbeille"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CORBEILLE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CORBEILLE_AUTO_MIGRATE" default:"false"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"CORBEILLE_STRIPE_API_KEY"`
	Secret        string `envconfig:"CORBEILLE_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"CORBEILLE_STRIPE_ENV" default:"test"`
	Currency      string `envconfig:"CORBEILLE_STRIPE_CURRENCY" default:"eur"`
	SuccessURL    string `envconfig:"CORBEILLE_STRIPE_SUCCESS_URL" default:"http://localhost:3000/checkout/success?session_id={CHECKOUT_SESSION_ID}"`
	CancelURL     string `envconfig:"CORBEILLE_STRIPE_CANCEL_URL" default:"http://localhost:3000/panier"`
	PriceWeekly   string `envconfig:"CORBEILLE_STRIPE_PRICE_WEEKLY"`
	PriceBiweekly string `envconfig:"CORBEILLE_STRIPE_PRICE_BIWEEKLY"`
	PriceMonthly  string `envconfig:"CORBEILLE_STRIPE_PRICE_MONTHLY"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// PricePlans exposes the configured billing plan per frequency keyword.
func (s StripeConfig) PricePlans() map[string]string {
	return map[string]string{
		"weekly":   strings.TrimSpace(s.PriceWeekly),
		"biweekly": strings.TrimSpace(s.PriceBiweekly),
		"monthly":  strings.TrimSpace(s.PriceMonthly),
	}
}

type WebhookConfig struct {
	IdempotencyTTL time.Duration `envconfig:"CORBEILLE_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
	LockTTL        time.Duration `envconfig:"CORBEILLE_WEBHOOK_LOCK_TTL" default:"30s"`
}

type DeliveryConfig struct {
	Timezone string `envconfig:"CORBEILLE_DELIVERY_TIMEZONE" default:"Europe/Paris"`
}

// Location resolves the delivery timezone, falling back to UTC when unknown.
func (d DeliveryConfig) Location() *time.Location {
	loc, err := time.LoadLocation(strings.TrimSpace(d.Timezone))
	if err != nil {
		return time.UTC
	}
	return loc
}

type GCPConfig struct {
	ProjectID string `envconfig:"CORBEILLE_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"CORBEILLE_PUBSUB_NOTIFICATION_TOPIC" default:"corbeille-notifications"`
	OrdersTopic       string `envconfig:"CORBEILLE_PUBSUB_ORDERS_TOPIC" default:"corbeille-orders"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"CORBEILLE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"CORBEILLE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"CORBEILLE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"CORBEILLE_CRON_INTERVAL" default:"1h"`
	OutboxRetention     time.Duration `envconfig:"CORBEILLE_CRON_OUTBOX_RETENTION" default:"720h"`
	WebhookRetention    time.Duration `envconfig:"CORBEILLE_CRON_WEBHOOK_RETENTION" default:"2160h"`
	ReconcileBatchSize  int           `envconfig:"CORBEILLE_CRON_RECONCILE_BATCH_SIZE" default:"200"`
	ReconcileStaleAfter time.Duration `envconfig:"CORBEILLE_CRON_RECONCILE_STALE_AFTER" default:"24h"`
}

// RateLimitConfig throttles public promo validation against code guessing.
type RateLimitConfig struct {
	PromoWindow    time.Duration `envconfig:"CORBEILLE_RATE_LIMIT_PROMO_WINDOW" default:"1m"`
	PromoPerIP     int           `envconfig:"CORBEILLE_RATE_LIMIT_PROMO_PER_IP" default:"20"`
	PromoPerEmail  int           `envconfig:"CORBEILLE_RATE_LIMIT_PROMO_PER_EMAIL" default:"10"`
	TrustedProxies int           `envconfig:"CORBEILLE_RATE_LIMIT_TRUSTED_PROXIES" default:"0"`
}

func (db *DBConfig) ensureDSN(sqlite bool) error {
	if db.DSN != "" {
		return nil
	}
	if sqlite {
		db.DSN = "file:corbeille.db?_foreign_keys=on"
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}
	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}
	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}
	db.DSN = u.String()
	return nil
}
