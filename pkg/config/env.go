package config

// EnvPrefix is empty because every field carries its fully qualified name.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv = "PROMPTABILITY_APP_ENV"
	EnvPort   = "PROMPTABILITY_APP_PORT"

	EnvDBDSN  = "PROMPTABILITY_DB_DSN"
	EnvDBHost = "PROMPTABILITY_DB_HOST"
	EnvDBUser = "PROMPTABILITY_DB_USER"
	EnvDBName = "PROMPTABILITY_DB_NAME"

	EnvRedisURL = "PROMPTABILITY_REDIS_URL"

	EnvStripeAPIKey = "PROMPTABILITY_STRIPE_API_KEY"
	EnvStripeSecret = "PROMPTABILITY_STRIPE_SECRET"

	EnvBillingDowngradePolicy = "PROMPTABILITY_BILLING_DOWNGRADE_POLICY"
	EnvUsageTimezone          = "PROMPTABILITY_USAGE_TIMEZONE"
	EnvAllowedOrigins         = "PROMPTABILITY_HTTP_ALLOWED_ORIGINS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
