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
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Booking      BookingConfig
	Cron         CronConfig
	Outbox       OutboxConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		if cfg.DB.DSN == "" {
			cfg.DB.DSN = DefaultSQLiteDSN
		}
		cfg.DB.Driver = DriverSQLite
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.DB.validateIsolation(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"DORMHOUSING_APP_ENV" required:"true"`
	Port         string `envconfig:"DORMHOUSING_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"DORMHOUSING_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DORMHOUSING_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"DORMHOUSING_LOG_FORMAT" default:"json"`

	CORSOrigins []string `envconfig:"DORMHOUSING_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

// ConsoleLogs reports whether logs should be written for humans instead of JSON.
func (a AppConfig) ConsoleLogs() bool {
	return strings.EqualFold(strings.TrimSpace(a.LogFormat), "console")
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"DORMHOUSING_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"DORMHOUSING_DB_DSN"`
	Driver string `envconfig:"DORMHOUSING_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"DORMHOUSING_DB_HOST"`
	LegacyPort     int    `envconfig:"DORMHOUSING_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"DORMHOUSING_DB_USER"`
	LegacyPassword string `envconfig:"DORMHOUSING_DB_PASSWORD"`
	LegacyName     string `envconfig:"DORMHOUSING_DB_NAME"`
	LegacySSLMode  string `envconfig:"DORMHOUSING_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DORMHOUSING_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DORMHOUSING_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DORMHOUSING_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DORMHOUSING_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// Isolation is applied to every booking transaction: serializable, repeatable_read or read_committed.
	Isolation string `envconfig:"DORMHOUSING_DB_ISOLATION" default:"serializable"`
}

// IsSQLite reports whether the configured driver is the embedded sqlite driver.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"DORMHOUSING_REDIS_URL" required:"true"`
	Address      string        `envconfig:"DORMHOUSING_REDIS_ADDR"`
	Password     string        `envconfig:"DORMHOUSING_REDIS_PASSWORD"`
	DB           int           `envconfig:"DORMHOUSING_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DORMHOUSING_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DORMHOUSING_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DORMHOUSING_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DORMHOUSING_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DORMHOUSING_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies access tokens minted by the campus identity service.
type JWTConfig struct {
	Secret string `envconfig:"DORMHOUSING_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"DORMHOUSING_JWT_ISSUER" required:"true"`
}

// RateLimitConfig throttles reservation attempts per student.
type RateLimitConfig struct {
	ReserveWindow time.Duration `envconfig:"DORMHOUSING_RATE_LIMIT_RESERVE_WINDOW" default:"1m"`
	ReserveLimit  int           `envconfig:"DORMHOUSING_RATE_LIMIT_RESERVE_LIMIT" default:"10"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"DORMHOUSING_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"DORMHOUSING_AUTO_MIGRATE" default:"false"`
}

// BookingConfig bounds every booking transaction.
type BookingConfig struct {
	TxTimeout      time.Duration `envconfig:"DORMHOUSING_BOOKING_TX_TIMEOUT" default:"5s"`
	LockTimeout    time.Duration `envconfig:"DORMHOUSING_BOOKING_LOCK_TIMEOUT" default:"3s"`
	RetryAttempts  int           `envconfig:"DORMHOUSING_BOOKING_RETRY_ATTEMPTS" default:"3"`
	RetryBaseDelay time.Duration `envconfig:"DORMHOUSING_BOOKING_RETRY_BASE_DELAY" default:"50ms"`
	AuditQueueSize int           `envconfig:"DORMHOUSING_AUDIT_QUEUE_SIZE" default:"256"`
}

type CronConfig struct {
	Interval         time.Duration `envconfig:"DORMHOUSING_CRON_INTERVAL" default:"1m"`
	ReconcileEnabled bool          `envconfig:"DORMHOUSING_CRON_RECONCILE_ENABLED" default:"true"`
	OutboxRetention  time.Duration `envconfig:"DORMHOUSING_CRON_OUTBOX_RETENTION" default:"720h"`
	DLQRetention     time.Duration `envconfig:"DORMHOUSING_CRON_DLQ_RETENTION" default:"2160h"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"DORMHOUSING_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"DORMHOUSING_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"DORMHOUSING_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"DORMHOUSING_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"DORMHOUSING_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	NotificationTopic        string `envconfig:"DORMHOUSING_PUBSUB_NOTIFICATION_TOPIC" default:"dorm-notification-events"`
	NotificationSubscription string `envconfig:"DORMHOUSING_PUBSUB_NOTIFICATION_SUBSCRIPTION"`
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

func (db *DBConfig) validateIsolation() error {
	switch strings.ToLower(strings.TrimSpace(db.Isolation)) {
	case "", IsolationSerializable, IsolationRepeatableRead, IsolationReadCommitted:
		return nil
	default:
		return fmt.Errorf("%s must be one of %s, %s, %s", EnvDBIsolation, IsolationSerializable, IsolationRepeatableRead, IsolationReadCommitted)
	}
}
