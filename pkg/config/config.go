// Package config loads service and client settings from STUDIOPASS_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	GCP           GCPConfig
	GCS           GCSConfig
	Credentials   CredentialsConfig
	Cron          CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every inconsistent setting at once.
func (c *Config) Validate() error {
	var errs error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.JWT.ExpirationMinutes > 0, "%s must be positive", EnvJWTExpMins)
	check(c.JWT.RefreshTokenTTLMinutes > c.JWT.ExpirationMinutes,
		"%s (%d) must exceed %s (%d)", EnvRefreshTokenTTLMinutes, c.JWT.RefreshTokenTTLMinutes, EnvJWTExpMins, c.JWT.ExpirationMinutes)
	check(c.Password.MinLength > 0, "%s must be positive", EnvPasswordMinLength)
	check(c.Credentials.ModuleWidth > 0 && c.Credentials.Height > 0, "barcode module width and height must be positive")
	check(c.Cron.Interval > 0, "cron interval must be positive")
	switch strings.ToLower(c.App.LogFormat) {
	case "", "json", "console":
	default:
		errs = multierr.Append(errs, errors.New("STUDIOPASS_LOG_FORMAT must be json or console"))
	}

	if errs != nil {
		return fmt.Errorf("invalid config: %w", errs)
	}
	return nil
}

// ClientConfig is the member CLI configuration. It is loaded separately so the
// client never needs backend secrets.
type ClientConfig struct {
	APIURL    string        `envconfig:"STUDIOPASS_API_URL" default:"http://localhost:8080"`
	StatePath string        `envconfig:"STUDIOPASS_CLIENT_STATE_PATH" default:"studiopass-session.db"`
	Timeout   time.Duration `envconfig:"STUDIOPASS_CLIENT_TIMEOUT" default:"15s"`
	LogLevel  string        `envconfig:"STUDIOPASS_LOG_LEVEL" default:"warn"`
	LogFormat string        `envconfig:"STUDIOPASS_LOG_FORMAT" default:"console"`
}

func LoadClient() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing client config: %w", err)
	}
	if _, err := url.ParseRequestURI(cfg.APIURL); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", EnvAPIURL, err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STUDIOPASS_APP_ENV" required:"true"`
	Port         string `envconfig:"STUDIOPASS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STUDIOPASS_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"STUDIOPASS_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"STUDIOPASS_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"STUDIOPASS_CORS_ORIGINS"`

	ShutdownTimeout time.Duration `envconfig:"STUDIOPASS_SHUTDOWN_TIMEOUT" default:"15s"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STUDIOPASS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STUDIOPASS_DB_DSN"`
	Driver string `envconfig:"STUDIOPASS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STUDIOPASS_DB_HOST"`
	LegacyPort     int    `envconfig:"STUDIOPASS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STUDIOPASS_DB_USER"`
	LegacyPassword string `envconfig:"STUDIOPASS_DB_PASSWORD"`
	LegacyName     string `envconfig:"STUDIOPASS_DB_NAME"`
	LegacySSLMode  string `envconfig:"STUDIOPASS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STUDIOPASS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STUDIOPASS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STUDIOPASS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STUDIOPASS_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"STUDIOPASS_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STUDIOPASS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STUDIOPASS_REDIS_ADDR"`
	Password     string        `envconfig:"STUDIOPASS_REDIS_PASSWORD"`
	DB           int           `envconfig:"STUDIOPASS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STUDIOPASS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STUDIOPASS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STUDIOPASS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STUDIOPASS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STUDIOPASS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"STUDIOPASS_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"STUDIOPASS_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"STUDIOPASS_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"STUDIOPASS_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	MinLength        int `envconfig:"STUDIOPASS_PASSWORD_MIN_LENGTH" default:"6"`
	ArgonMemoryKB    int `envconfig:"STUDIOPASS_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"STUDIOPASS_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"STUDIOPASS_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"STUDIOPASS_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"STUDIOPASS_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow      time.Duration `envconfig:"STUDIOPASS_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit  int           `envconfig:"STUDIOPASS_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit     int           `envconfig:"STUDIOPASS_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	SignupWindow     time.Duration `envconfig:"STUDIOPASS_AUTH_RATE_LIMIT_SIGNUP_WINDOW" default:"5m"`
	SignupEmailLimit int           `envconfig:"STUDIOPASS_AUTH_RATE_LIMIT_SIGNUP_EMAIL_LIMIT" default:"3"`
	SignupIPLimit    int           `envconfig:"STUDIOPASS_AUTH_RATE_LIMIT_SIGNUP_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"STUDIOPASS_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"STUDIOPASS_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"STUDIOPASS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"STUDIOPASS_GOOGLE_APPLICATION_CREDENTIALS"`
}

// GCSConfig leaves the bucket optional; without one the credential image
// function reports a dependency error.
type GCSConfig struct {
	BucketName    string `envconfig:"STUDIOPASS_GCS_BUCKET_NAME"`
	PublicBaseURL string `envconfig:"STUDIOPASS_GCS_PUBLIC_BASE_URL" default:"https://storage.googleapis.com"`
}

func (g GCSConfig) Enabled() bool {
	return strings.TrimSpace(g.BucketName) != ""
}

// CredentialsConfig controls the rendered barcode image.
type CredentialsConfig struct {
	ModuleWidth int    `envconfig:"STUDIOPASS_BARCODE_MODULE_WIDTH" default:"2"`
	Height      int    `envconfig:"STUDIOPASS_BARCODE_HEIGHT" default:"80"`
	MaxWidth    int    `envconfig:"STUDIOPASS_BARCODE_MAX_WIDTH" default:"600"`
	ObjectDir   string `envconfig:"STUDIOPASS_BARCODE_OBJECT_DIR" default:"barcodes"`
}

type CronConfig struct {
	Interval          time.Duration `envconfig:"STUDIOPASS_CRON_INTERVAL" default:"24h"`
	JobTimeout        time.Duration `envconfig:"STUDIOPASS_CRON_JOB_TIMEOUT" default:"10m"`
	LockTTL           time.Duration `envconfig:"STUDIOPASS_CRON_LOCK_TTL" default:"30m"`
	BackfillBatchSize int           `envconfig:"STUDIOPASS_CRON_BACKFILL_BATCH_SIZE" default:"100"`
	OrphanGracePeriod time.Duration `envconfig:"STUDIOPASS_CRON_ORPHAN_GRACE_PERIOD" default:"15m"`
	OrphanAuditLimit  int           `envconfig:"STUDIOPASS_CRON_ORPHAN_AUDIT_LIMIT" default:"500"`
	// MetricsAddr, when set, serves /metrics from the cron worker.
	MetricsAddr string `envconfig:"STUDIOPASS_CRON_METRICS_ADDR"`
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
