// Package config loads and validates the lease server config from the
// environment and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends accepted by STORE_BACKEND.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config holds the server configuration.
type Config struct {
	// HTTPAddr is the listen address of the registry API and /metrics.
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// LogFormat is json or text.
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// StoreBackend selects the lease record store: redis, postgres or memory.
	// memory is for local development only; it is not shared between
	// processes.
	StoreBackend string `mapstructure:"STORE_BACKEND"`
	RedisAddr    string `mapstructure:"REDIS_ADDR"`
	RedisPass    string `mapstructure:"REDIS_PASSWORD"`
	RedisDB      int    `mapstructure:"REDIS_DB"`
	RedisPrefix  string `mapstructure:"REDIS_PREFIX"`
	// DatabaseURL is the Postgres DSN; required for the postgres backend.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// DBMigrate applies the embedded migrations at startup.
	DBMigrate bool `mapstructure:"DB_MIGRATE"`

	// JWTSigningMethod is ed25519 or hs256.
	JWTSigningMethod string `mapstructure:"JWT_SIGNING_METHOD"`
	// JWTPublicKey is the PEM-encoded Ed25519 public key or a path to it.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTSecret is the HS256 shared secret, at least 32 bytes.
	JWTSecret   string `mapstructure:"JWT_SECRET"`
	JWTIssuer   string `mapstructure:"JWT_ISSUER"`
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	JWTKeyID    string `mapstructure:"JWT_KEY_ID"`

	OperationTimeout     time.Duration `mapstructure:"OPERATION_TIMEOUT"`
	MaxDeviceLabelLength int           `mapstructure:"MAX_DEVICE_LABEL_LENGTH"`
	AuditEnabled         bool          `mapstructure:"AUDIT_ENABLED"`
	MetricsEnabled       bool          `mapstructure:"METRICS_ENABLED"`
	// Register throttling, redis backend only. Zero disables a window.
	RegisterLimitPerAccount int           `mapstructure:"REGISTER_LIMIT_PER_ACCOUNT"`
	RegisterLimitPerIP      int           `mapstructure:"REGISTER_LIMIT_PER_IP"`
	RegisterLimitWindow     time.Duration `mapstructure:"REGISTER_LIMIT_WINDOW"`
	// TrustProxy takes the client IP for audit events from X-Forwarded-For.
	TrustProxy      bool          `mapstructure:"TRUST_PROXY"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment. Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("STORE_BACKEND", BackendRedis)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_PREFIX", "lr")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_MIGRATE", true)
	v.SetDefault("JWT_SIGNING_METHOD", "ed25519")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "golease")
	v.SetDefault("JWT_AUDIENCE", "lease-api")
	v.SetDefault("JWT_KEY_ID", "")
	v.SetDefault("OPERATION_TIMEOUT", "2s")
	v.SetDefault("MAX_DEVICE_LABEL_LENGTH", 128)
	v.SetDefault("AUDIT_ENABLED", false)
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("REGISTER_LIMIT_PER_ACCOUNT", 10)
	v.SetDefault("REGISTER_LIMIT_PER_IP", 0)
	v.SetDefault("REGISTER_LIMIT_WINDOW", "1m")
	v.SetDefault("TRUST_PROXY", false)
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}

	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	switch c.StoreBackend {
	case BackendRedis:
		if c.RedisAddr == "" {
			return errors.New("config: REDIS_ADDR must be set for the redis backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL must be set for the postgres backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch strings.ToLower(c.JWTSigningMethod) {
	case "ed25519":
		if c.JWTPublicKey == "" {
			return errors.New("config: JWT_PUBLIC_KEY must be set for ed25519")
		}
	case "hs256":
		if len(c.JWTSecret) < 32 {
			return errors.New("config: JWT_SECRET must be at least 32 bytes for hs256")
		}
	default:
		return fmt.Errorf("config: unknown JWT_SIGNING_METHOD %q", c.JWTSigningMethod)
	}

	if c.OperationTimeout <= 0 {
		return errors.New("config: OPERATION_TIMEOUT must be positive")
	}
	if c.MaxDeviceLabelLength < 0 {
		return errors.New("config: MAX_DEVICE_LABEL_LENGTH must not be negative")
	}
	if c.RegisterLimitPerAccount < 0 || c.RegisterLimitPerIP < 0 {
		return errors.New("config: REGISTER_LIMIT_* must not be negative")
	}
	if c.RegisterLimitWindow <= 0 {
		c.RegisterLimitWindow = time.Minute
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	return nil
}

// PublicKeyPEM returns the Ed25519 public key, reading it from disk when
// JWTPublicKey is a path.
func (c *Config) PublicKeyPEM() ([]byte, error) {
	if strings.HasPrefix(strings.TrimSpace(c.JWTPublicKey), "-----BEGIN") {
		return []byte(c.JWTPublicKey), nil
	}
	data, err := os.ReadFile(c.JWTPublicKey)
	if err != nil {
		return nil, fmt.Errorf("config: read JWT_PUBLIC_KEY: %w", err)
	}
	return data, nil
}
