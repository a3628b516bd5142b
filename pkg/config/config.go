package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/queryforge/trustcore/pkg/keys"
	"github.com/queryforge/trustcore/pkg/rbac"
	"github.com/queryforge/trustcore/pkg/storage"
	"github.com/queryforge/trustcore/pkg/tokens"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Key lifecycle configuration
	Keys keys.Config

	// Token service configuration
	Tokens tokens.Config

	// Permission engine configuration
	RBAC rbac.Config

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
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       logrus.Level
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Keys:          loadKeysConfig(),
		Tokens:        loadTokensConfig(),
		RBAC:          loadRBACConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("TRUSTCORE_HOST", "0.0.0.0"),
		Port:            getEnv("TRUSTCORE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("TRUSTCORE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("TRUSTCORE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("TRUSTCORE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("TRUSTCORE_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if redisURL := getEnv("TRUSTCORE_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("TRUSTCORE_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("TRUSTCORE_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("TRUSTCORE_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("TRUSTCORE_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}
	if opTimeout := getEnvDuration("TRUSTCORE_REDIS_OP_TIMEOUT", 0); opTimeout > 0 {
		cfg.OpTimeout = opTimeout
	}

	return cfg
}

// loadKeysConfig loads key lifecycle configuration from environment
func loadKeysConfig() keys.Config {
	cfg := keys.DefaultConfig()

	if keySize := getEnvInt("TRUSTCORE_KEY_SIZE", 0); keySize > 0 {
		cfg.KeySize = keySize
	}
	if rotationInterval := getEnvDuration("TRUSTCORE_KEY_ROTATION_INTERVAL", 0); rotationInterval > 0 {
		cfg.RotationInterval = rotationInterval
	}
	if retentionPeriod := getEnvDuration("TRUSTCORE_KEY_RETENTION_PERIOD", 0); retentionPeriod > 0 {
		cfg.RetentionPeriod = retentionPeriod
	}
	if checkInterval := getEnvDuration("TRUSTCORE_KEY_ROTATION_CHECK_INTERVAL", 0); checkInterval > 0 {
		cfg.RotationCheckInterval = checkInterval
	}
	if retryBackoff := getEnvDuration("TRUSTCORE_KEY_ROTATION_RETRY_BACKOFF", 0); retryBackoff > 0 {
		cfg.RotationRetryBackoff = retryBackoff
	}

	return cfg
}

// loadTokensConfig loads token service configuration from environment
func loadTokensConfig() tokens.Config {
	cfg := tokens.DefaultConfig()

	if issuer := getEnv("TRUSTCORE_TOKEN_ISSUER", ""); issuer != "" {
		cfg.Issuer = issuer
	}
	if audience := getEnv("TRUSTCORE_TOKEN_AUDIENCE", ""); audience != "" {
		cfg.DefaultAudience = strings.Split(audience, ",")
	}
	if accessTTL := getEnvDuration("TRUSTCORE_ACCESS_TOKEN_TTL", 0); accessTTL > 0 {
		cfg.AccessTokenTTL = accessTTL
	}
	if refreshTTL := getEnvDuration("TRUSTCORE_REFRESH_TOKEN_TTL", 0); refreshTTL > 0 {
		cfg.RefreshTokenTTL = refreshTTL
	}
	if sessionTimeout := getEnvDuration("TRUSTCORE_SESSION_TIMEOUT", 0); sessionTimeout > 0 {
		cfg.SessionTimeout = sessionTimeout
	}
	if maxSessions := getEnvInt("TRUSTCORE_MAX_SESSIONS_PER_USER", 0); maxSessions > 0 {
		cfg.MaxSessionsPerUser = maxSessions
	}

	return cfg
}

// loadRBACConfig loads permission engine configuration from environment
func loadRBACConfig() rbac.Config {
	cfg := rbac.DefaultConfig()

	if cacheTTL := getEnvDuration("TRUSTCORE_PERMISSION_CACHE_TTL", 0); cacheTTL > 0 {
		cfg.CacheTTL = cacheTTL
	}

	return cfg
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       parseLogLevel(getEnv("TRUSTCORE_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("TRUSTCORE_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Storage.RedisURL == "" {
		return fmt.Errorf("redis URL is required")
	}
	if c.Keys.KeySize < 2048 {
		return fmt.Errorf("key size must be at least 2048 bits, got %d", c.Keys.KeySize)
	}
	if c.Keys.RetentionPeriod < c.Keys.RotationInterval {
		return fmt.Errorf("key retention period must cover at least one rotation interval")
	}
	if c.Tokens.Issuer == "" {
		return fmt.Errorf("token issuer is required")
	}
	if c.Tokens.AccessTokenTTL >= c.Tokens.RefreshTokenTTL {
		return fmt.Errorf("access token TTL must be shorter than refresh token TTL")
	}
	if c.Tokens.MaxSessionsPerUser < 1 {
		return fmt.Errorf("max sessions per user must be at least 1")
	}
	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
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
