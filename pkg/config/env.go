package config

const (
	EnvPrefix = "STOREFRONT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres   = "postgres"
	DriverSQLite     = "sqlite"
	DefaultSQLiteDSN = "file:storefront.db?cache=shared&_foreign_keys=on"

	EnvAppEnv   = "STOREFRONT_APP_ENV"
	EnvPort     = "STOREFRONT_APP_PORT"
	EnvLogLevel = "STOREFRONT_LOG_LEVEL"

	EnvDBDSN     = "STOREFRONT_DB_DSN"
	EnvDBDriver  = "STOREFRONT_DB_DRIVER"
	EnvDBHost    = "STOREFRONT_DB_HOST"
	EnvDBPort    = "STOREFRONT_DB_PORT"
	EnvDBUser    = "STOREFRONT_DB_USER"
	EnvDBPass    = "STOREFRONT_DB_PASSWORD"
	EnvDBName    = "STOREFRONT_DB_NAME"
	EnvUseSQLite = "STOREFRONT_USE_SQLITE"

	EnvRedisURL = "STOREFRONT_REDIS_URL"

	EnvJWTSecret  = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer  = "STOREFRONT_JWT_ISSUER"
	EnvJWTExpMins = "STOREFRONT_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID = "STOREFRONT_GCP_PROJECT_ID"

	EnvPubSubOrdersTopic  = "STOREFRONT_PUBSUB_ORDERS_TOPIC"
	EnvPubSubAnalyticsSub = "STOREFRONT_PUBSUB_ANALYTICS_SUBSCRIPTION"

	EnvRateLimitOrders = "STOREFRONT_RATE_LIMIT_ORDERS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
