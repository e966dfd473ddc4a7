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
	PayPal       PayPalConfig
	Allocation   AllocationConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	CORS         CORSConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DriverSQLite
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Allocation.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadJWT reads only the JWT section, for tools that mint staff tokens
// without the full service environment.
func LoadJWT() (JWTConfig, error) {
	var cfg JWTConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return JWTConfig{}, fmt.Errorf("parsing jwt config: %w", err)
	}
	return cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"RIFA_APP_ENV" required:"true"`
	Port         string `envconfig:"RIFA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"RIFA_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"RIFA_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"RIFA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"RIFA_DB_DSN"`
	Driver string `envconfig:"RIFA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"RIFA_DB_HOST"`
	LegacyPort     int    `envconfig:"RIFA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"RIFA_DB_USER"`
	LegacyPassword string `envconfig:"RIFA_DB_PASSWORD"`
	LegacyName     string `envconfig:"RIFA_DB_NAME"`
	LegacySSLMode  string `envconfig:"RIFA_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"RIFA_SQLITE_PATH" default:"rifa.db"`

	MaxOpenConns    int           `envconfig:"RIFA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"RIFA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"RIFA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"RIFA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"RIFA_REDIS_URL"`
	Address      string        `envconfig:"RIFA_REDIS_ADDR"`
	Password     string        `envconfig:"RIFA_REDIS_PASSWORD"`
	DB           int           `envconfig:"RIFA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"RIFA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"RIFA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"RIFA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"RIFA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"RIFA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a Redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type JWTConfig struct {
	Secret            string `envconfig:"RIFA_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"RIFA_JWT_ISSUER" default:"rifa"`
	ExpirationMinutes int    `envconfig:"RIFA_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"RIFA_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"RIFA_AUTO_MIGRATE" default:"false"`
}

type PayPalConfig struct {
	ClientID  string        `envconfig:"RIFA_PAYPAL_CLIENT_ID" required:"true"`
	Secret    string        `envconfig:"RIFA_PAYPAL_SECRET" required:"true"`
	Env       string        `envconfig:"RIFA_PAYPAL_ENV" default:"sandbox"`
	Currency  string        `envconfig:"RIFA_PAYPAL_CURRENCY" default:"MXN"`
	BrandName string        `envconfig:"RIFA_PAYPAL_BRAND_NAME"`
	ReturnURL string        `envconfig:"RIFA_PAYPAL_RETURN_URL"`
	CancelURL string        `envconfig:"RIFA_PAYPAL_CANCEL_URL"`
	Timeout   time.Duration `envconfig:"RIFA_PAYPAL_TIMEOUT" default:"15s"`
	BaseURL   string        `envconfig:"RIFA_PAYPAL_BASE_URL"`
}

// Environment returns the normalized PayPal environment (sandbox/live).
func (p PayPalConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(p.Env))
	if env == "" {
		return PayPalEnvSandbox
	}
	return env
}

// MaxOrderQty is the hard per-order ticket cap. RIFA_ALLOCATION_MAX_QTY may
// lower it, never raise it.
const MaxOrderQty = 5

// AllocationConfig bounds the optimistic transaction retry loop.
type AllocationConfig struct {
	MaxAttempts int           `envconfig:"RIFA_ALLOCATION_MAX_ATTEMPTS" default:"8"`
	BaseBackoff time.Duration `envconfig:"RIFA_ALLOCATION_BASE_BACKOFF" default:"10ms"`
	MaxQty      int           `envconfig:"RIFA_ALLOCATION_MAX_QTY" default:"5"`
}

func (a AllocationConfig) validate() error {
	if a.MaxQty < 1 || a.MaxQty > MaxOrderQty {
		return fmt.Errorf("RIFA_ALLOCATION_MAX_QTY must be between 1 and %d, got %d", MaxOrderQty, a.MaxQty)
	}
	return nil
}

type GCPConfig struct {
	ProjectID              string `envconfig:"RIFA_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"RIFA_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"RIFA_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	RaffleEventsTopic string `envconfig:"RIFA_PUBSUB_RAFFLE_EVENTS_TOPIC" default:"rifa-raffle-events"`
}

type OutboxConfig struct {
	BatchSize      int    `envconfig:"RIFA_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int    `envconfig:"RIFA_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int    `envconfig:"RIFA_OUTBOX_MAX_ATTEMPTS" default:"10"`
	MetricsAddr    string `envconfig:"RIFA_OUTBOX_METRICS_ADDR"`
}

// CronConfig drives the maintenance worker.
type CronConfig struct {
	Interval            time.Duration `envconfig:"RIFA_CRON_INTERVAL" default:"1h"`
	OutboxRetentionDays int           `envconfig:"RIFA_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	LockTTL             time.Duration `envconfig:"RIFA_CRON_LOCK_TTL" default:"55m"`
	MetricsAddr         string        `envconfig:"RIFA_CRON_METRICS_ADDR"`
}

// RateLimitConfig throttles order creation per client IP and per buyer contact.
type RateLimitConfig struct {
	OrderIPLimit      int64         `envconfig:"RIFA_RATE_LIMIT_ORDER_IP" default:"20"`
	OrderContactLimit int64         `envconfig:"RIFA_RATE_LIMIT_ORDER_CONTACT" default:"5"`
	Window            time.Duration `envconfig:"RIFA_RATE_LIMIT_WINDOW" default:"1m"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"RIFA_CORS_ALLOWED_ORIGINS" default:"*"`
}

func (db *DBConfig) ensureDSN() error {
	if db.IsSQLite() {
		if db.DSN == "" {
			db.DSN = db.SQLitePath
		}
		return nil
	}
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
