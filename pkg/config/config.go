package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mkurtis/warden/pkg/observability"
)

// InsecureSecretPlaceholder is the historic default token signing secret.
// It is rejected in every environment; unset deployments outside
// production get a random per-process secret instead.
const InsecureSecretPlaceholder = "change-me-in-production"

// Config holds all application configuration
type Config struct {
	// Environment is "development", "staging" or "production"
	Environment string

	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// Auth configuration
	Auth AuthConfig

	// OAuth configuration
	OAuth OAuthConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// CORSOrigins lists allowed browser origins. Empty disables CORS.
	CORSOrigins []string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// AuthConfig holds token and credential configuration
type AuthConfig struct {
	// TokenSecret signs access tokens (HS256)
	TokenSecret string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// BcryptCost for password hashing
	BcryptCost int

	// OAuthStateTTL bounds how long an authorization round-trip may take
	OAuthStateTTL time.Duration
}

// OAuthConfig holds external identity provider configuration
type OAuthConfig struct {
	// ProvidersFile is a YAML file with per-provider client credentials
	ProvidersFile string

	// ExchangeTimeout bounds outbound calls to a provider
	ExchangeTimeout time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Environment:   getEnv("WARDEN_ENV", "development"),
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Auth:          loadAuthConfig(),
		OAuth:         loadOAuthConfig(),
		Observability: loadObservabilityConfig(),
	}

	// Development works out of the box with a generated secret; tokens do
	// not survive a restart under one. Production must configure its own.
	if cfg.Auth.TokenSecret == "" && !cfg.IsProduction() {
		secret, err := generateTokenSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to generate token secret: %w", err)
		}
		cfg.Auth.TokenSecret = secret
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// generateTokenSecret mints a random 32-byte signing secret
func generateTokenSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("WARDEN_HOST", "0.0.0.0"),
		Port:            getEnv("WARDEN_PORT", "8080"),
		ReadTimeout:     getEnvDuration("WARDEN_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("WARDEN_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("WARDEN_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("WARDEN_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("WARDEN_HEALTH_PORT", "9090"),
		CORSOrigins:     getEnvList("WARDEN_CORS_ORIGINS"),
	}
}

// loadDatabaseConfig loads PostgreSQL configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:             getEnv("WARDEN_POSTGRES_URL", ""),
		MaxOpenConns:    getEnvInt("WARDEN_POSTGRES_MAX_CONNS", 25),
		MaxIdleConns:    getEnvInt("WARDEN_POSTGRES_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("WARDEN_POSTGRES_CONN_LIFETIME", 30*time.Minute),
	}
}

// loadRedisConfig loads Redis configuration from environment
func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:     getEnv("WARDEN_REDIS_ADDR", "localhost:6379"),
		Password: getEnv("WARDEN_REDIS_PASSWORD", ""),
		DB:       getEnvInt("WARDEN_REDIS_DB", 0),
		PoolSize: getEnvInt("WARDEN_REDIS_POOL_SIZE", 10),
	}
}

// loadAuthConfig loads token configuration from environment
func loadAuthConfig() AuthConfig {
	return AuthConfig{
		TokenSecret:     getEnv("WARDEN_TOKEN_SECRET", ""),
		AccessTokenTTL:  getEnvDuration("WARDEN_ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL: getEnvDuration("WARDEN_REFRESH_TOKEN_TTL", 7*24*time.Hour),
		BcryptCost:      getEnvInt("WARDEN_BCRYPT_COST", 12),
		OAuthStateTTL:   getEnvDuration("WARDEN_OAUTH_STATE_TTL", 10*time.Minute),
	}
}

// loadOAuthConfig loads OAuth provider configuration from environment
func loadOAuthConfig() OAuthConfig {
	return OAuthConfig{
		ProvidersFile:   getEnv("WARDEN_OAUTH_PROVIDERS_FILE", ""),
		ExchangeTimeout: getEnvDuration("WARDEN_OAUTH_EXCHANGE_TIMEOUT", 10*time.Second),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("WARDEN_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("WARDEN_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("WARDEN_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("WARDEN_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("WARDEN_OTEL_SERVICE_NAME", "warden"),
		OTelServiceVersion: getEnv("WARDEN_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("WARDEN_OTEL_INSECURE", true),
	}
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate database config
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	// Validate auth config. A weak signing secret is a refusal to start
	// in every environment, not just production.
	if c.Auth.TokenSecret == "" {
		return fmt.Errorf("token secret is required")
	}
	if c.Auth.TokenSecret == InsecureSecretPlaceholder {
		return fmt.Errorf("token secret must be changed from the insecure default")
	}
	if len(c.Auth.TokenSecret) < 32 {
		return fmt.Errorf("token secret must be at least 32 bytes")
	}
	if c.Auth.AccessTokenTTL <= 0 {
		return fmt.Errorf("access token TTL must be positive")
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		return fmt.Errorf("refresh token TTL must exceed access token TTL")
	}
	if c.Auth.BcryptCost < 10 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("bcrypt cost must be between 10 and 31")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable as a slice
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
