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
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Entitlements EntitlementsConfig
	Billing      BillingConfig
	Generation   GenerationConfig
	Cron         CronConfig
	HTTP         HTTPConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Entitlements.Validate(); err != nil {
		return nil, err
	}
	// a hold must outlive the generation call it reserves a unit for
	if cfg.Entitlements.HoldTTL <= cfg.Generation.Timeout {
		return nil, fmt.Errorf("%s must exceed %s", EnvUsageHoldTTL, EnvOpenAITimeout)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MISSIONS_APP_ENV" required:"true"`
	Port         string `envconfig:"MISSIONS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MISSIONS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MISSIONS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MISSIONS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MISSIONS_DB_DSN"`
	Driver string `envconfig:"MISSIONS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MISSIONS_DB_HOST"`
	LegacyPort     int    `envconfig:"MISSIONS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MISSIONS_DB_USER"`
	LegacyPassword string `envconfig:"MISSIONS_DB_PASSWORD"`
	LegacyName     string `envconfig:"MISSIONS_DB_NAME"`
	LegacySSLMode  string `envconfig:"MISSIONS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MISSIONS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MISSIONS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MISSIONS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MISSIONS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MISSIONS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MISSIONS_REDIS_ADDR"`
	Password     string        `envconfig:"MISSIONS_REDIS_PASSWORD"`
	DB           int           `envconfig:"MISSIONS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MISSIONS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MISSIONS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MISSIONS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MISSIONS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MISSIONS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"MISSIONS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MISSIONS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MISSIONS_JWT_EXPIRATION_MINUTES" default:"10080"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MISSIONS_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MISSIONS_AUTO_MIGRATE" default:"false"`
}

// EntitlementsConfig holds the allowance limits, windows and rates. It is loaded
// once at process start and passed by value to the resolver.
type EntitlementsConfig struct {
	FreeLimit       int           `envconfig:"MISSIONS_FREE_LIMIT" default:"3"`
	SubscriberLimit int           `envconfig:"MISSIONS_SUBSCRIBER_LIMIT" default:"30"`
	BaseWindow      time.Duration `envconfig:"MISSIONS_BASE_WINDOW" default:"168h"`
	AnonymousWindow time.Duration `envconfig:"MISSIONS_ANONYMOUS_WINDOW" default:"24h"`
	CreditsPerUsage int64         `envconfig:"MISSIONS_CREDITS_PER_USAGE" default:"300"`
	HoldTTL         time.Duration `envconfig:"MISSIONS_USAGE_HOLD_TTL" default:"2m"`
	RecordAttempts  uint64        `envconfig:"MISSIONS_USAGE_RECORD_ATTEMPTS" default:"5"`
	RecordBackoff   time.Duration `envconfig:"MISSIONS_USAGE_RECORD_BACKOFF" default:"100ms"`
}

// DefaultEntitlements mirrors the envconfig defaults for callers that build the
// resolver without loading the environment.
func DefaultEntitlements() EntitlementsConfig {
	return EntitlementsConfig{
		FreeLimit:       3,
		SubscriberLimit: 30,
		BaseWindow:      7 * 24 * time.Hour,
		AnonymousWindow: 24 * time.Hour,
		CreditsPerUsage: 300,
		HoldTTL:         2 * time.Minute,
		RecordAttempts:  5,
		RecordBackoff:   100 * time.Millisecond,
	}
}

// Validate rejects limits that would make the resolver meaningless.
func (e EntitlementsConfig) Validate() error {
	switch {
	case e.FreeLimit < 0:
		return fmt.Errorf("%s must be non-negative", EnvFreeLimit)
	case e.SubscriberLimit < e.FreeLimit:
		return fmt.Errorf("%s must be at least %s", EnvSubscriberLimit, EnvFreeLimit)
	case e.BaseWindow <= 0:
		return fmt.Errorf("%s must be positive", EnvBaseWindow)
	case e.AnonymousWindow <= 0:
		return fmt.Errorf("%s must be positive", EnvAnonymousWindow)
	case e.CreditsPerUsage <= 0:
		return fmt.Errorf("%s must be positive", EnvCreditsPerUsage)
	case e.HoldTTL <= 0:
		return fmt.Errorf("%s must be positive", EnvUsageHoldTTL)
	}
	return nil
}

type BillingConfig struct {
	EventIdempotencyTTL time.Duration `envconfig:"MISSIONS_BILLING_IDEMPOTENCY_TTL" default:"720h"`
	EventRetentionDays  int           `envconfig:"MISSIONS_BILLING_EVENT_RETENTION_DAYS" default:"90"`
}

type GenerationConfig struct {
	APIKey  string        `envconfig:"MISSIONS_OPENAI_API_KEY"`
	BaseURL string        `envconfig:"MISSIONS_OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	Model   string        `envconfig:"MISSIONS_OPENAI_MODEL" default:"gpt-4o-mini"`
	Timeout time.Duration `envconfig:"MISSIONS_OPENAI_TIMEOUT" default:"30s"`
}

// HTTPConfig covers the api edge: CORS origins and the anonymous throttle that
// sits in front of session based principals.
type HTTPConfig struct {
	AllowedOrigins      []string      `envconfig:"MISSIONS_CORS_ORIGINS" default:"http://localhost:3000"`
	AnonymousRateLimit  int           `envconfig:"MISSIONS_ANON_RATE_LIMIT" default:"30"`
	AnonymousRateWindow time.Duration `envconfig:"MISSIONS_ANON_RATE_WINDOW" default:"1m"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"MISSIONS_CRON_INTERVAL" default:"15m"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite {
		db.DSN = "file:missions.db?_foreign_keys=on"
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
