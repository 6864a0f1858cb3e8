package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/luxuryfashion/storefront/internal/auth"
	"github.com/luxuryfashion/storefront/internal/limiter"
	"github.com/luxuryfashion/storefront/internal/oauth"
	pkgconfig "github.com/luxuryfashion/storefront/pkg/config"
	"github.com/luxuryfashion/storefront/pkg/database"
	"github.com/luxuryfashion/storefront/pkg/middleware"
	"github.com/luxuryfashion/storefront/pkg/tracing"
)

// DevJWTSecret is the placeholder secret accepted only in development.
const DevJWTSecret = "change-this-to-a-secure-secret"

const minJWTSecretLength = 32

// Config holds all configuration for the storefront auth service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"storefront"`

	// HTTP server
	HTTPPort int `env:"HTTP_PORT" envDefault:"8083"`

	// PostgreSQL
	PostgresHost        string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort        int           `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser        string        `env:"POSTGRES_USER" envDefault:"storefront"`
	PostgresPass        string        `env:"POSTGRES_PASSWORD" envDefault:"storefront"`
	PostgresDB          string        `env:"POSTGRES_DB" envDefault:"storefront"`
	PostgresSSL         string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	DBMaxConns          int32         `env:"DB_MAX_CONNS" envDefault:"20"`
	DBMinConns          int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	SlowQueryThreshold  time.Duration `env:"DB_SLOW_QUERY_THRESHOLD" envDefault:"200ms"`
	MigrationsOnStartup bool          `env:"DB_MIGRATE_ON_STARTUP" envDefault:"true"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Tokens and credentials
	JWTSecret     string        `env:"JWT_SECRET" envDefault:"change-this-to-a-secure-secret"`
	JWTExpiration time.Duration `env:"JWT_EXPIRATION" envDefault:"24h"`
	BcryptCost    int           `env:"BCRYPT_COST" envDefault:"12"`

	// Access policy. ACCESS_RULES replaces the built-in rule table when set.
	AccessRules   string `env:"ACCESS_RULES"`
	AccessDefault string `env:"ACCESS_DEFAULT" envDefault:"public"`

	// Login throttling
	LoginMaxFailures   int           `env:"LOGIN_MAX_FAILURES" envDefault:"5"`
	LoginFailureWindow time.Duration `env:"LOGIN_FAILURE_WINDOW" envDefault:"15m"`
	LoginRateRPS       float64       `env:"LOGIN_RATE_RPS" envDefault:"5"`
	LoginRateBurst     int           `env:"LOGIN_RATE_BURST" envDefault:"10"`

	// Frontend and CORS
	FrontendURL        string   `env:"APP_FRONTEND_URL" envDefault:"https://rangeelaboutique.com"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"https://rangeelaboutique.com" envSeparator:","`

	// Google sign-in. Leaving the client ID empty disables the OAuth routes.
	OAuthGoogleClientID     string `env:"OAUTH_GOOGLE_CLIENT_ID"`
	OAuthGoogleClientSecret string `env:"OAUTH_GOOGLE_CLIENT_SECRET"`
	OAuthGoogleRedirectURL  string `env:"OAUTH_GOOGLE_REDIRECT_URL"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELInsecure   bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Profiling
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envSeparator:","`

	// Peers allowed to set X-Forwarded-For. Empty means the client address is
	// always the TCP peer.
	TrustedProxyCIDRs []string `env:"TRUSTED_PROXY_CIDRS" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	return LoadFrom(nil)
}

// LoadFrom reads configuration from environ, or from the process environment
// when environ is nil, and validates it.
func LoadFrom(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadFrom(cfg, environ); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	// Outside development, require an explicitly set, strong JWT secret.
	if !c.IsDevelopment() {
		if c.JWTSecret == DevJWTSecret {
			return fmt.Errorf("JWT_SECRET must be explicitly set via environment variable in %q mode", c.Environment)
		}
		if len(c.JWTSecret) < minJWTSecretLength {
			return fmt.Errorf("JWT_SECRET must be at least %d bytes long, got %d", minJWTSecretLength, len(c.JWTSecret))
		}
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET must not be empty")
	}
	if c.JWTExpiration <= 0 {
		return fmt.Errorf("JWT_EXPIRATION must be positive, got %s", c.JWTExpiration)
	}

	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.BcryptCost)
	}

	if _, err := c.AccessPolicy(); err != nil {
		return err
	}

	if c.LoginMaxFailures < 0 {
		return fmt.Errorf("LOGIN_MAX_FAILURES must not be negative, got %d", c.LoginMaxFailures)
	}
	if c.LoginMaxFailures > 0 && c.LoginFailureWindow <= 0 {
		return fmt.Errorf("LOGIN_FAILURE_WINDOW must be positive, got %s", c.LoginFailureWindow)
	}

	if c.OAuthGoogleClientID != "" {
		if c.OAuthGoogleClientSecret == "" {
			return errors.New("OAUTH_GOOGLE_CLIENT_SECRET is required when OAUTH_GOOGLE_CLIENT_ID is set")
		}
		if c.OAuthGoogleRedirectURL == "" {
			return errors.New("OAUTH_GOOGLE_REDIRECT_URL is required when OAUTH_GOOGLE_CLIENT_ID is set")
		}
	}

	for _, cidr := range c.TrustedProxyCIDRs {
		if _, _, err := net.ParseCIDR(strings.TrimSpace(cidr)); err != nil {
			return fmt.Errorf("TRUSTED_PROXY_CIDRS: %w", err)
		}
	}

	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0 and 1, got %v", c.OTELSampleRate)
	}
	return nil
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// AccessPolicy builds the request access policy from ACCESS_RULES and
// ACCESS_DEFAULT.
func (c *Config) AccessPolicy() (*auth.AccessPolicy, error) {
	rules := auth.DefaultRules()
	if c.AccessRules != "" {
		parsed, err := auth.ParseRules(c.AccessRules)
		if err != nil {
			return nil, fmt.Errorf("ACCESS_RULES: %w", err)
		}
		rules = parsed
	}

	def, err := auth.ParseRequirement(c.AccessDefault)
	if err != nil {
		return nil, fmt.Errorf("ACCESS_DEFAULT: %w", err)
	}

	return auth.NewAccessPolicy(rules, def)
}

// PostgresConfig returns the connection pool settings.
func (c *Config) PostgresConfig() database.PostgresConfig {
	return database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: c.DBMaxConnLifetime,
		MaxConnIdleTime: c.DBMaxConnIdleTime,
	}
}

// RedisConfig returns the Redis client settings.
func (c *Config) RedisConfig() database.RedisConfig {
	rc := database.DefaultRedisConfig()
	rc.Host = c.RedisHost
	rc.Port = c.RedisPort
	rc.Password = c.RedisPassword
	rc.DB = c.RedisDB
	return rc
}

// LimiterConfig returns the failed-login lockout settings.
func (c *Config) LimiterConfig() limiter.Config {
	return limiter.Config{MaxFailures: c.LoginMaxFailures, Window: c.LoginFailureWindow}
}

// OAuthConfig returns the Google client registration.
func (c *Config) OAuthConfig() oauth.Config {
	return oauth.Config{
		ClientID:     c.OAuthGoogleClientID,
		ClientSecret: c.OAuthGoogleClientSecret,
		RedirectURL:  c.OAuthGoogleRedirectURL,
	}
}

// CORSConfig returns the CORS policy for the frontend origins.
func (c *Config) CORSConfig() middleware.CORSConfig {
	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = c.CORSAllowedOrigins
	return cors
}

// TracingConfig returns the OpenTelemetry exporter settings.
func (c *Config) TracingConfig(version string) tracing.Config {
	return tracing.Config{
		ServiceName:    c.ServiceName,
		ServiceVersion: version,
		Environment:    c.Environment,
		OTLPEndpoint:   c.OTELEndpoint,
		Insecure:       c.OTELInsecure,
		SampleRate:     c.OTELSampleRate,
		Enabled:        c.OTELEnabled,
	}
}
