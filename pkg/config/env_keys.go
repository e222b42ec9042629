package config

// EnvPrefix namespaces every environment variable read by the service.
const EnvPrefix = "VENDORA"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

const (
	EnvAppEnv   = "VENDORA_APP_ENV"
	EnvPort     = "VENDORA_APP_PORT"
	EnvLogLevel = "VENDORA_LOG_LEVEL"

	EnvDBDSN      = "VENDORA_DB_DSN"
	EnvDBHost     = "VENDORA_DB_HOST"
	EnvDBPort     = "VENDORA_DB_PORT"
	EnvDBUser     = "VENDORA_DB_USER"
	EnvDBPassword = "VENDORA_DB_PASSWORD"
	EnvDBName     = "VENDORA_DB_NAME"
	EnvDBSSLMode  = "VENDORA_DB_SSLMODE"

	EnvRedisURL = "VENDORA_REDIS_URL"

	EnvJWTSecret  = "VENDORA_JWT_SECRET"
	EnvJWTIssuer  = "VENDORA_JWT_ISSUER"
	EnvJWTExpMins = "VENDORA_JWT_EXPIRATION_MINUTES"

	EnvStripeSecretKey     = "VENDORA_STRIPE_SECRET_KEY"
	EnvStripeSigningSecret = "VENDORA_STRIPE_SIGNING_SECRET"

	EnvSendgridAPIKey = "VENDORA_SENDGRID_API_KEY"
	EnvSendgridFrom   = "VENDORA_SENDGRID_FROM_EMAIL"

	EnvGCPProjectID          = "VENDORA_GCP_PROJECT_ID"
	EnvPubSubAnalyticsTopic  = "VENDORA_PUBSUB_ANALYTICS_TOPIC"
	EnvPubSubAnalyticsSub    = "VENDORA_PUBSUB_ANALYTICS_SUBSCRIPTION"
	EnvBigQueryDataset       = "VENDORA_BIGQUERY_DATASET"
	EnvBigQueryPurchaseTable = "VENDORA_BIGQUERY_PURCHASE_TABLE"

	EnvCheckoutSessionTTL = "VENDORA_CHECKOUT_SESSION_TTL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
