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
	HTTP         HTTPConfig
	Stripe       StripeConfig
	Billing      BillingConfig
	Usage        UsageConfig
	Sendgrid     SendgridConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Billing.validate(); err != nil {
		return nil, err
	}
	if _, err := cfg.Usage.Location(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PROMPTABILITY_APP_ENV" required:"true"`
	Port         string `envconfig:"PROMPTABILITY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PROMPTABILITY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PROMPTABILITY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"PROMPTABILITY_DB_DSN"`
	Driver string `envconfig:"PROMPTABILITY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PROMPTABILITY_DB_HOST"`
	LegacyPort     int    `envconfig:"PROMPTABILITY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PROMPTABILITY_DB_USER"`
	LegacyPassword string `envconfig:"PROMPTABILITY_DB_PASSWORD"`
	LegacyName     string `envconfig:"PROMPTABILITY_DB_NAME"`
	LegacySSLMode  string `envconfig:"PROMPTABILITY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PROMPTABILITY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PROMPTABILITY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PROMPTABILITY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PROMPTABILITY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"PROMPTABILITY_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PROMPTABILITY_REDIS_URL"`
	Address      string        `envconfig:"PROMPTABILITY_REDIS_ADDR"`
	Password     string        `envconfig:"PROMPTABILITY_REDIS_PASSWORD"`
	DB           int           `envconfig:"PROMPTABILITY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PROMPTABILITY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PROMPTABILITY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PROMPTABILITY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PROMPTABILITY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PROMPTABILITY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type HTTPConfig struct {
	ReadTimeout      time.Duration `envconfig:"PROMPTABILITY_HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout     time.Duration `envconfig:"PROMPTABILITY_HTTP_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout  time.Duration `envconfig:"PROMPTABILITY_HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
	AllowedOrigins   []string      `envconfig:"PROMPTABILITY_HTTP_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	RateLimitWindow  time.Duration `envconfig:"PROMPTABILITY_HTTP_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitPerIP   int           `envconfig:"PROMPTABILITY_HTTP_RATE_LIMIT_PER_IP" default:"60"`
	RateLimitPerUser int           `envconfig:"PROMPTABILITY_HTTP_RATE_LIMIT_PER_USER" default:"30"`
}

type StripeConfig struct {
	APIKey string `envconfig:"PROMPTABILITY_STRIPE_API_KEY"`
	Secret string `envconfig:"PROMPTABILITY_STRIPE_SECRET"`
	Env    string `envconfig:"PROMPTABILITY_STRIPE_ENV" default:"test"`

	SuccessURL string `envconfig:"PROMPTABILITY_STRIPE_SUCCESS_URL" default:"http://localhost:3000/success?session_id={CHECKOUT_SESSION_ID}"`
	CancelURL  string `envconfig:"PROMPTABILITY_STRIPE_CANCEL_URL" default:"http://localhost:3000/pricing"`
	ReturnURL  string `envconfig:"PROMPTABILITY_STRIPE_PORTAL_RETURN_URL" default:"http://localhost:3000/account"`

	PriceStarterMonthly string `envconfig:"PROMPTABILITY_STRIPE_PRICE_STARTER_MONTHLY"`
	PriceStarterYearly  string `envconfig:"PROMPTABILITY_STRIPE_PRICE_STARTER_YEARLY"`
	PriceProMonthly     string `envconfig:"PROMPTABILITY_STRIPE_PRICE_PRO_MONTHLY"`
	PriceProYearly      string `envconfig:"PROMPTABILITY_STRIPE_PRICE_PRO_YEARLY"`
	PriceTeamMonthly    string `envconfig:"PROMPTABILITY_STRIPE_PRICE_TEAM_MONTHLY"`
	PriceTeamYearly     string `envconfig:"PROMPTABILITY_STRIPE_PRICE_TEAM_YEARLY"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type BillingConfig struct {
	DowngradePolicy string        `envconfig:"PROMPTABILITY_BILLING_DOWNGRADE_POLICY" default:"period_end"`
	InFlightTTL     time.Duration `envconfig:"PROMPTABILITY_BILLING_INFLIGHT_TTL" default:"2m"`
}

func (b BillingConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(b.DowngradePolicy)) {
	case "period_end", "immediate", "none":
		return nil
	default:
		return fmt.Errorf("%s must be one of period_end, immediate, none (got %q)", EnvBillingDowngradePolicy, b.DowngradePolicy)
	}
}

type UsageConfig struct {
	Timezone string `envconfig:"PROMPTABILITY_USAGE_TIMEZONE" default:"UTC"`
}

// Location resolves the reference timezone used for daily rollover.
func (u UsageConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(u.Timezone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", EnvUsageTimezone, err)
	}
	return loc, nil
}

type SendgridConfig struct {
	APIKey      string `envconfig:"PROMPTABILITY_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"PROMPTABILITY_SENDGRID_FROM_EMAIL" default:"no-reply@promptability.ai"`
	FromName    string `envconfig:"PROMPTABILITY_SENDGRID_FROM_NAME" default:"Promptability"`
	QueueSize   int    `envconfig:"PROMPTABILITY_NOTIFICATIONS_QUEUE_SIZE" default:"256"`
	Workers     int    `envconfig:"PROMPTABILITY_NOTIFICATIONS_WORKERS" default:"2"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PROMPTABILITY_AUTO_MIGRATE" default:"false"`
	RateLimit   bool `envconfig:"PROMPTABILITY_FEATURE_RATE_LIMIT" default:"true"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
