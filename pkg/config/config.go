// Package config loads application configuration from CREWDESK_* environment
// variables and validates it at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/crewdesk/crewdesk/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Auth          AuthConfig
	Limits        LimitsConfig
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

	CORSAllowedOrigins []string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// RedisConfig holds the optional Redis cache configuration. An empty URL
// disables the L2 cache; the service runs fine without it.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int

	L1CacheSize int
	CacheTTL    time.Duration
}

// AuthConfig holds credential and session settings
type AuthConfig struct {
	JWTSecret        string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	ResetTokenTTL    time.Duration
	VerifyTokenTTL   time.Duration
	InviteExpiryDays int
	SecureCookies    bool
}

// LimitsConfig holds service-wide ceilings
type LimitsConfig struct {
	// MaxRegisteredUsers caps total registrations; 0 means unlimited
	MaxRegisteredUsers int

	// Login/register rate limiting (requests per minute per IP)
	AuthRatePerMinute int
	AuthRateBurst     int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Auth:          loadAuthConfig(),
		Limits:        loadLimitsConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:               getEnv("CREWDESK_HOST", "0.0.0.0"),
		Port:               getEnv("CREWDESK_PORT", "8080"),
		ReadTimeout:        getEnvDuration("CREWDESK_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:       getEnvDuration("CREWDESK_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:        getEnvDuration("CREWDESK_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:    getEnvDuration("CREWDESK_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:         getEnv("CREWDESK_HEALTH_PORT", "9090"),
		CORSAllowedOrigins: splitAndTrim(getEnv("CREWDESK_CORS_ORIGINS", "*")),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:          getEnv("CREWDESK_POSTGRES_URL", ""),
		MaxOpenConns: getEnvInt("CREWDESK_POSTGRES_MAX_CONNS", 25),
		MaxIdleConns: getEnvInt("CREWDESK_POSTGRES_IDLE_CONNS", 5),
		ConnLifetime: getEnvDuration("CREWDESK_POSTGRES_CONN_LIFETIME", 5*time.Minute),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:         getEnv("CREWDESK_REDIS_URL", ""),
		Password:    getEnv("CREWDESK_REDIS_PASSWORD", ""),
		DB:          getEnvInt("CREWDESK_REDIS_DB", 0),
		PoolSize:    getEnvInt("CREWDESK_REDIS_POOL_SIZE", 10),
		L1CacheSize: getEnvInt("CREWDESK_L1_CACHE_SIZE", 1024),
		CacheTTL:    getEnvDuration("CREWDESK_CACHE_TTL", 5*time.Minute),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret:        getEnv("CREWDESK_JWT_SECRET", ""),
		AccessTokenTTL:   getEnvDuration("CREWDESK_ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:  getEnvDuration("CREWDESK_REFRESH_TOKEN_TTL", 7*24*time.Hour),
		ResetTokenTTL:    getEnvDuration("CREWDESK_RESET_TOKEN_TTL", time.Hour),
		VerifyTokenTTL:   getEnvDuration("CREWDESK_VERIFY_TOKEN_TTL", 24*time.Hour),
		InviteExpiryDays: getEnvInt("CREWDESK_INVITE_EXPIRY_DAYS", 7),
		SecureCookies:    getEnvBool("CREWDESK_SECURE_COOKIES", true),
	}
}

func loadLimitsConfig() LimitsConfig {
	return LimitsConfig{
		MaxRegisteredUsers: getEnvInt("CREWDESK_MAX_REGISTERED_USERS", 0),
		AuthRatePerMinute:  getEnvInt("CREWDESK_AUTH_RATE_PER_MINUTE", 10),
		AuthRateBurst:      getEnvInt("CREWDESK_AUTH_RATE_BURST", 5),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("CREWDESK_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("CREWDESK_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("CREWDESK_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("CREWDESK_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("CREWDESK_OTEL_SERVICE_NAME", "crewdesk"),
		OTelServiceVersion: getEnv("CREWDESK_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("CREWDESK_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 bytes")
	}
	if c.Auth.AccessTokenTTL <= 0 {
		return fmt.Errorf("access token TTL must be positive")
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		return fmt.Errorf("refresh token TTL must exceed access token TTL")
	}
	if c.Auth.InviteExpiryDays <= 0 {
		return fmt.Errorf("invite expiry must be at least one day")
	}

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

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
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
