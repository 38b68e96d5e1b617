package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Square       SquareConfig
	Outbox       OutboxConfig
	Settlement   SettlementConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Settlement.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"DEALFLOW_APP_ENV" required:"true"`
	Port         string   `envconfig:"DEALFLOW_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"DEALFLOW_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"DEALFLOW_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"DEALFLOW_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"DEALFLOW_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"DEALFLOW_DB_DSN"`
	Driver string `envconfig:"DEALFLOW_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"DEALFLOW_DB_HOST"`
	LegacyPort     int    `envconfig:"DEALFLOW_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"DEALFLOW_DB_USER"`
	LegacyPassword string `envconfig:"DEALFLOW_DB_PASSWORD"`
	LegacyName     string `envconfig:"DEALFLOW_DB_NAME"`
	LegacySSLMode  string `envconfig:"DEALFLOW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DEALFLOW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DEALFLOW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DEALFLOW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DEALFLOW_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"DEALFLOW_DB_SLOW_QUERY_THRESHOLD" default:"200ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"DEALFLOW_REDIS_URL" required:"true"`
	Address      string        `envconfig:"DEALFLOW_REDIS_ADDR"`
	Password     string        `envconfig:"DEALFLOW_REDIS_PASSWORD"`
	DB           int           `envconfig:"DEALFLOW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DEALFLOW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DEALFLOW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DEALFLOW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DEALFLOW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DEALFLOW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"DEALFLOW_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"DEALFLOW_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"DEALFLOW_JWT_EXPIRATION_MINUTES" required:"true"`
	CheckSession      bool   `envconfig:"DEALFLOW_JWT_CHECK_SESSION" default:"true"`
}

type RateLimitConfig struct {
	Window        time.Duration `envconfig:"DEALFLOW_RATE_LIMIT_WINDOW" default:"1m"`
	CheckoutLimit int           `envconfig:"DEALFLOW_RATE_LIMIT_CHECKOUT" default:"10"`
	CaptureLimit  int           `envconfig:"DEALFLOW_RATE_LIMIT_CAPTURE" default:"10"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"DEALFLOW_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"DEALFLOW_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"DEALFLOW_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"DEALFLOW_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"DEALFLOW_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic              string `envconfig:"DEALFLOW_PUBSUB_DOMAIN_TOPIC" required:"true"`
	NotificationTopic        string `envconfig:"DEALFLOW_PUBSUB_NOTIFICATION_TOPIC" default:"df-notification-events"`
	NotificationSubscription string `envconfig:"DEALFLOW_PUBSUB_NOTIFICATION_SUBSCRIPTION"`
	AnalyticsSubscription    string `envconfig:"DEALFLOW_PUBSUB_ANALYTICS_SUBSCRIPTION"`
	MaxOutstandingMessages   int    `envconfig:"DEALFLOW_PUBSUB_MAX_OUTSTANDING" default:"100"`
}

type BigQueryConfig struct {
	Dataset         string `envconfig:"DEALFLOW_BIGQUERY_DATASET" default:"dealflow"`
	SettlementTable string `envconfig:"DEALFLOW_BIGQUERY_SETTLEMENT_TABLE" default:"settlement_facts"`
	Enabled         bool   `envconfig:"DEALFLOW_BIGQUERY_ENABLED" default:"true"`
}

type SquareConfig struct {
	AccessToken string `envconfig:"DEALFLOW_SQUARE_ACCESS_TOKEN"`
	Env         string `envconfig:"DEALFLOW_SQUARE_ENV" default:"sandbox"`
	Currency    string `envconfig:"DEALFLOW_SQUARE_CURRENCY" default:"KRW"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"DEALFLOW_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"DEALFLOW_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"DEALFLOW_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// SettlementConfig carries the money-flow knobs injected into checkout, capture and the cron jobs.
type SettlementConfig struct {
	CommissionRate        string        `envconfig:"DEALFLOW_COMMISSION_RATE" default:"0.035"`
	CommissionSource      string        `envconfig:"DEALFLOW_COMMISSION_SOURCE" default:"config"`
	GatewayTimeoutSeconds int           `envconfig:"DEALFLOW_GATEWAY_TIMEOUT_SECONDS" default:"10"`
	AutoCompleteAfterHrs  int           `envconfig:"DEALFLOW_AUTOCOMPLETE_AFTER_HOURS" default:"120"`
	CheckoutLockTTL       time.Duration `envconfig:"DEALFLOW_CHECKOUT_LOCK_TTL" default:"30s"`
	PendingCheckoutTTL    time.Duration `envconfig:"DEALFLOW_PENDING_CHECKOUT_TTL" default:"30m"`

	DefaultGeneralFee      int64 `envconfig:"DEALFLOW_DEFAULT_GENERAL_FEE" default:"3000"`
	DefaultRemoteAreaFee   int64 `envconfig:"DEALFLOW_DEFAULT_REMOTE_AREA_FEE" default:"6000"`
	DefaultAmountThreshold int64 `envconfig:"DEALFLOW_DEFAULT_AMOUNT_THRESHOLD" default:"50000"`
	DefaultVolumeThreshold int   `envconfig:"DEALFLOW_DEFAULT_VOLUME_THRESHOLD" default:"0"`
}

// Rate parses the configured commission rate.
func (s SettlementConfig) Rate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(s.CommissionRate))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", EnvCommissionRate, s.CommissionRate, err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("%s must be within [0,1], got %s", EnvCommissionRate, rate)
	}
	return rate, nil
}

// GatewayTimeout bounds a single payment gateway round trip.
func (s SettlementConfig) GatewayTimeout() time.Duration {
	if s.GatewayTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(s.GatewayTimeoutSeconds) * time.Second
}

// AutoCompleteAfter is the grace period between waybill entry and automatic completion.
func (s SettlementConfig) AutoCompleteAfter() time.Duration {
	if s.AutoCompleteAfterHrs <= 0 {
		return 5 * 24 * time.Hour
	}
	return time.Duration(s.AutoCompleteAfterHrs) * time.Hour
}

func (s SettlementConfig) validate() error {
	if _, err := s.Rate(); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(s.CommissionSource)) {
	case CommissionSourceConfig, CommissionSourceDB:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvCommissionSource, CommissionSourceConfig, CommissionSourceDB)
	}
	if s.DefaultGeneralFee < 0 || s.DefaultRemoteAreaFee < 0 || s.DefaultAmountThreshold < 0 || s.DefaultVolumeThreshold < 0 {
		return fmt.Errorf("default delivery fee policy values must be non-negative")
	}
	return nil
}

type CronConfig struct {
	IntervalSeconds           int    `envconfig:"DEALFLOW_CRON_INTERVAL_SECONDS" default:"300"`
	LockKey                   string `envconfig:"DEALFLOW_CRON_LOCK_KEY"`
	SettleBatchSize           int    `envconfig:"DEALFLOW_CRON_SETTLE_BATCH_SIZE" default:"200"`
	CompleteBatchSize         int    `envconfig:"DEALFLOW_CRON_COMPLETE_BATCH_SIZE" default:"200"`
	ReconcileBatchSize        int    `envconfig:"DEALFLOW_CRON_RECONCILE_BATCH_SIZE" default:"100"`
	OutboxRetentionDays       int    `envconfig:"DEALFLOW_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	NotificationRetentionDays int    `envconfig:"DEALFLOW_CRON_NOTIFICATION_RETENTION_DAYS" default:"90"`

	JobTimeout time.Duration `envconfig:"DEALFLOW_CRON_JOB_TIMEOUT" default:"2m"`
	LockTTL    time.Duration `envconfig:"DEALFLOW_CRON_LOCK_TTL" default:"30m"`
}

// Interval is the pause between scheduled cycles.
func (c CronConfig) Interval() time.Duration {
	if c.IntervalSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.IntervalSeconds) * time.Second
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
