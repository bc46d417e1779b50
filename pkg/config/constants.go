package config

// EnvPrefix is empty because every field carries its fully qualified variable name.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv    = "MISSIONS_APP_ENV"
	EnvPort      = "MISSIONS_APP_PORT"
	EnvDBDSN     = "MISSIONS_DB_DSN"
	EnvDBHost    = "MISSIONS_DB_HOST"
	EnvDBUser    = "MISSIONS_DB_USER"
	EnvDBName    = "MISSIONS_DB_NAME"
	EnvRedisURL  = "MISSIONS_REDIS_URL"
	EnvJWTSecret = "MISSIONS_JWT_SECRET"
	EnvJWTIssuer = "MISSIONS_JWT_ISSUER"
	EnvUseSQLite = "MISSIONS_USE_SQLITE"

	EnvFreeLimit       = "MISSIONS_FREE_LIMIT"
	EnvSubscriberLimit = "MISSIONS_SUBSCRIBER_LIMIT"
	EnvBaseWindow      = "MISSIONS_BASE_WINDOW"
	EnvAnonymousWindow = "MISSIONS_ANONYMOUS_WINDOW"
	EnvCreditsPerUsage = "MISSIONS_CREDITS_PER_USAGE"
	EnvUsageHoldTTL    = "MISSIONS_USAGE_HOLD_TTL"
	EnvOpenAITimeout   = "MISSIONS_OPENAI_TIMEOUT"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
