package config

const EnvPrefix = "RIFA"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	PayPalEnvSandbox = "sandbox"
	PayPalEnvLive    = "live"
)

const (
	EnvAppEnv    = "RIFA_APP_ENV"
	EnvPort      = "RIFA_APP_PORT"
	EnvLogLevel  = "RIFA_LOG_LEVEL"
	EnvLogFormat = "RIFA_LOG_FORMAT"

	EnvDBDSN  = "RIFA_DB_DSN"
	EnvDBHost = "RIFA_DB_HOST"
	EnvDBUser = "RIFA_DB_USER"
	EnvDBName = "RIFA_DB_NAME"

	EnvUseSQLite  = "RIFA_USE_SQLITE"
	EnvSQLitePath = "RIFA_SQLITE_PATH"

	EnvRedisURL = "RIFA_REDIS_URL"

	EnvJWTSecret = "RIFA_JWT_SECRET"
	EnvJWTIssuer = "RIFA_JWT_ISSUER"

	EnvPayPalClientID = "RIFA_PAYPAL_CLIENT_ID"
	EnvPayPalSecret   = "RIFA_PAYPAL_SECRET"
	EnvPayPalEnv      = "RIFA_PAYPAL_ENV"
	EnvPayPalBaseURL  = "RIFA_PAYPAL_BASE_URL"

	EnvAllocationMaxAttempts = "RIFA_ALLOCATION_MAX_ATTEMPTS"

	EnvGCPProjectID       = "RIFA_GCP_PROJECT_ID"
	EnvPubSubRaffleTopic  = "RIFA_PUBSUB_RAFFLE_EVENTS_TOPIC"
	EnvCORSAllowedOrigins = "RIFA_CORS_ALLOWED_ORIGINS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
