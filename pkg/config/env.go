package config

const EnvPrefix = "CORBEILLE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv        = "CORBEILLE_APP_ENV"
	EnvDBDSN         = "CORBEILLE_DB_DSN"
	EnvDBHost        = "CORBEILLE_DB_HOST"
	EnvDBUser        = "CORBEILLE_DB_USER"
	EnvDBName        = "CORBEILLE_DB_NAME"
	EnvUseSQLite     = "CORBEILLE_USE_SQLITE"
	EnvJWTSecret     = "CORBEILLE_JWT_SECRET"
	EnvStripeWeekly  = "CORBEILLE_STRIPE_PRICE_WEEKLY"
	EnvStripeMonthly = "CORBEILLE_STRIPE_PRICE_MONTHLY"
	EnvWebhookTTL    = "CORBEILLE_WEBHOOK_IDEMPOTENCY_TTL"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
