// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// DBMaxConns caps the pgx pool size; 0 keeps the pgxpool default.
	DBMaxConns int `mapstructure:"DB_MAX_CONNS"`

	// JWTAccessPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file used to sign access tokens.
	JWTAccessPrivateKey string `mapstructure:"JWT_ACCESS_PRIVATE_KEY"`
	// JWTAccessPublicKey verifies access tokens.
	JWTAccessPublicKey string `mapstructure:"JWT_ACCESS_PUBLIC_KEY"`
	// JWTRefreshPrivateKey signs refresh tokens. Must not be the access key.
	JWTRefreshPrivateKey string `mapstructure:"JWT_REFRESH_PRIVATE_KEY"`
	// JWTRefreshPublicKey verifies refresh tokens.
	JWTRefreshPublicKey string `mapstructure:"JWT_REFRESH_PUBLIC_KEY"`
	// JWTIssuer is the iss claim.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// SessionTTLRaw is the fixed lifetime of a session row, independent of the refresh token expiry.
	SessionTTLRaw string `mapstructure:"SESSION_TTL"`
	// SessionCleanupIntervalRaw is the period between cleanup passes.
	SessionCleanupIntervalRaw string `mapstructure:"SESSION_CLEANUP_INTERVAL"`
	// RevokedRetentionDays is how long revoked sessions are kept for audit before deletion.
	RevokedRetentionDays int `mapstructure:"REVOKED_RETENTION_DAYS"`
	// SuspiciousWindowHours is the lookback window for the multi-country check.
	SuspiciousWindowHours int `mapstructure:"SUSPICIOUS_WINDOW_HOURS"`
	// SuspiciousCheckOnRedeem runs the suspicious check after each refresh redemption.
	SuspiciousCheckOnRedeem bool `mapstructure:"SUSPICIOUS_CHECK_ON_REDEEM"`

	// RedisURL enables the cleanup leader lock when set (e.g. redis://localhost:6379/0).
	RedisURL string `mapstructure:"REDIS_URL"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses; when set, notifications are published to Kafka.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// NotifyKafkaTopic is the Kafka topic for outbound notifications.
	NotifyKafkaTopic string `mapstructure:"NOTIFY_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group ID for the notification worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// Worker-only: Loki URL the notification worker forwards to (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`

	// OTelEndpoint is the OTLP gRPC collector endpoint; empty disables export.
	OTelEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTelInsecure disables TLS to the collector.
	OTelInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// LogLevel is the zap level (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// AdminAPIToken guards /v1/admin routes; admin routes are disabled when empty.
	AdminAPIToken string `mapstructure:"ADMIN_API_TOKEN"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_MAX_CONNS", 0)
	v.SetDefault("JWT_ACCESS_PRIVATE_KEY", "")
	v.SetDefault("JWT_ACCESS_PUBLIC_KEY", "")
	v.SetDefault("JWT_REFRESH_PRIVATE_KEY", "")
	v.SetDefault("JWT_REFRESH_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "resume-auth")
	v.SetDefault("JWT_AUDIENCE", "resume-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("SESSION_TTL", "720h") // 30d
	v.SetDefault("SESSION_CLEANUP_INTERVAL", "24h")
	v.SetDefault("REVOKED_RETENTION_DAYS", 30)
	v.SetDefault("SUSPICIOUS_WINDOW_HOURS", 24)
	v.SetDefault("SUSPICIOUS_CHECK_ON_REDEEM", true)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("NOTIFY_KAFKA_TOPIC", "resume-notifications")
	v.SetDefault("KAFKA_GROUP_ID", "resume-notification-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("ADMIN_API_TOKEN", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if cfg.RevokedRetentionDays < 0 {
		return nil, errors.New("config: REVOKED_RETENTION_DAYS must not be negative")
	}
	if cfg.JWTAccessPrivateKey != "" && cfg.JWTAccessPrivateKey == cfg.JWTRefreshPrivateKey {
		return nil, errors.New("config: JWT_ACCESS_PRIVATE_KEY and JWT_REFRESH_PRIVATE_KEY must differ")
	}
	// Cleanup must not drop a session row while its refresh token can still be redeemed.
	if cfg.SessionTTL() < cfg.RefreshTTL() {
		return nil, fmt.Errorf("config: SESSION_TTL (%s) must not be shorter than JWT_REFRESH_TTL (%s)", cfg.SessionTTL(), cfg.RefreshTTL())
	}
	if cfg.RevokedRetention() < cfg.RefreshTTL() {
		return nil, fmt.Errorf("config: REVOKED_RETENTION_DAYS (%s) must not be shorter than JWT_REFRESH_TTL (%s)", cfg.RevokedRetention(), cfg.RefreshTTL())
	}

	return &cfg, nil
}

// AuthEnabled reports whether both signing key pairs are configured.
func (c *Config) AuthEnabled() bool {
	return c.JWTAccessPrivateKey != "" && c.JWTAccessPublicKey != "" &&
		c.JWTRefreshPrivateKey != "" && c.JWTRefreshPublicKey != ""
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, 15*time.Minute)
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parseDuration(c.JWTRefreshTTL, 168*time.Hour)
}

// SessionTTL returns the session row lifetime. Returns 720h if unset or invalid.
func (c *Config) SessionTTL() time.Duration {
	return parseDuration(c.SessionTTLRaw, 720*time.Hour)
}

// RevokedRetention returns RevokedRetentionDays as a time.Duration.
func (c *Config) RevokedRetention() time.Duration {
	return time.Duration(c.RevokedRetentionDays) * 24 * time.Hour
}

// CleanupInterval returns the cleanup period. Returns 24h if unset or invalid.
func (c *Config) CleanupInterval() time.Duration {
	return parseDuration(c.SessionCleanupIntervalRaw, 24*time.Hour)
}

// SuspiciousWindow returns SuspiciousWindowHours, or 24 when unset.
func (c *Config) SuspiciousWindow() int {
	if c.SuspiciousWindowHours <= 0 {
		return 24
	}
	return c.SuspiciousWindowHours
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list means notifications stay in-process (log transport).
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseDuration(raw string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
