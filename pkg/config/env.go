package config

const (
	EnvPrefix = "DEALFLOW"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	CommissionSourceConfig = "config"
	CommissionSourceDB     = "db"

	EnvAppEnv            = "DEALFLOW_APP_ENV"
	EnvPort              = "DEALFLOW_APP_PORT"
	EnvDBDSN             = "DEALFLOW_DB_DSN"
	EnvDBHost            = "DEALFLOW_DB_HOST"
	EnvDBUser            = "DEALFLOW_DB_USER"
	EnvDBName            = "DEALFLOW_DB_NAME"
	EnvRedisURL          = "DEALFLOW_REDIS_URL"
	EnvJWTSecret         = "DEALFLOW_JWT_SECRET"
	EnvJWTIssuer         = "DEALFLOW_JWT_ISSUER"
	EnvJWTExpMins        = "DEALFLOW_JWT_EXPIRATION_MINUTES"
	EnvGCPProjectID      = "DEALFLOW_GCP_PROJECT_ID"
	EnvPubSubDomainTopic = "DEALFLOW_PUBSUB_DOMAIN_TOPIC"
	EnvCommissionRate    = "DEALFLOW_COMMISSION_RATE"
	EnvCommissionSource  = "DEALFLOW_COMMISSION_SOURCE"
	EnvAutoCompleteHours = "DEALFLOW_AUTOCOMPLETE_AFTER_HOURS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
