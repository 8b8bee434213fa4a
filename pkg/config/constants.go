package config

const (
	EnvPrefix = "STUDIOPASS"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv                 = "STUDIOPASS_APP_ENV"
	EnvPort                   = "STUDIOPASS_APP_PORT"
	EnvDBDSN                  = "STUDIOPASS_DB_DSN"
	EnvDBHost                 = "STUDIOPASS_DB_HOST"
	EnvDBUser                 = "STUDIOPASS_DB_USER"
	EnvDBName                 = "STUDIOPASS_DB_NAME"
	EnvRedisURL               = "STUDIOPASS_REDIS_URL"
	EnvJWTSecret              = "STUDIOPASS_JWT_SECRET"
	EnvJWTIssuer              = "STUDIOPASS_JWT_ISSUER"
	EnvJWTExpMins             = "STUDIOPASS_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "STUDIOPASS_REFRESH_TOKEN_TTL_MINUTES"
	EnvGCSBucket              = "STUDIOPASS_GCS_BUCKET_NAME"
	EnvAPIURL                 = "STUDIOPASS_API_URL"
	EnvClientStatePath        = "STUDIOPASS_CLIENT_STATE_PATH"
	EnvPasswordMinLength      = "STUDIOPASS_PASSWORD_MIN_LENGTH"
	EnvCronOrphanGracePeriod  = "STUDIOPASS_CRON_ORPHAN_GRACE_PERIOD"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
