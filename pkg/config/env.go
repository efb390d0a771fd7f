package config

const EnvPrefix = "DORMHOUSING"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	DriverPostgres   = "postgres"
	DriverSQLite     = "sqlite"
	DefaultSQLiteDSN = "file:dormhousing.db?_busy_timeout=5000"
)

const (
	IsolationSerializable   = "serializable"
	IsolationRepeatableRead = "repeatable_read"
	IsolationReadCommitted  = "read_committed"
)

const (
	EnvAppEnv        = "DORMHOUSING_APP_ENV"
	EnvPort          = "DORMHOUSING_APP_PORT"
	EnvDBDSN         = "DORMHOUSING_DB_DSN"
	EnvDBHost        = "DORMHOUSING_DB_HOST"
	EnvDBUser        = "DORMHOUSING_DB_USER"
	EnvDBName        = "DORMHOUSING_DB_NAME"
	EnvDBIsolation   = "DORMHOUSING_DB_ISOLATION"
	EnvRedisURL      = "DORMHOUSING_REDIS_URL"
	EnvJWTSecret     = "DORMHOUSING_JWT_SECRET"
	EnvJWTIssuer     = "DORMHOUSING_JWT_ISSUER"
	EnvUseSQLite     = "DORMHOUSING_USE_SQLITE"
	EnvTxTimeout     = "DORMHOUSING_BOOKING_TX_TIMEOUT"
	EnvRetryAttempts = "DORMHOUSING_BOOKING_RETRY_ATTEMPTS"
	EnvGCPProjectID  = "DORMHOUSING_GCP_PROJECT_ID"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
