// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTAccessSecret signs access tokens (HS256). Required; startup fails without it.
	JWTAccessSecret string `mapstructure:"JWT_ACCESS_SECRET"`
	// JWTRefreshSecret signs refresh tokens (HS256). Required and must differ from the access secret.
	JWTRefreshSecret string `mapstructure:"JWT_REFRESH_SECRET"`
	// JWTIssuer is the iss claim set on both token kinds.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAccessTTL is the access token lifetime (e.g. "10m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token and session lifetime (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// EmailConfirmationTTL is the lifetime of email confirmation codes (e.g. "24h").
	EmailConfirmationTTL string `mapstructure:"EMAIL_CONFIRMATION_TTL"`
	// PasswordRecoveryTTL is the lifetime of password recovery codes (e.g. "1h").
	PasswordRecoveryTTL string `mapstructure:"PASSWORD_RECOVERY_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// ResendAPIKey enables the Resend mail sender when set; empty falls back to the no-op sender.
	ResendAPIKey string `mapstructure:"RESEND_API_KEY"`
	// MailFrom is the From address for confirmation and recovery mail.
	MailFrom string `mapstructure:"MAIL_FROM"`
	// RateLimitRequests is the number of requests allowed per RateLimitWindow on the /auth subtree.
	RateLimitRequests int `mapstructure:"RATE_LIMIT_REQUESTS"`
	// RateLimitWindow is the rate limit window (e.g. "10s").
	RateLimitWindow string `mapstructure:"RATE_LIMIT_WINDOW"`
	// OTLPEndpoint enables OTLP trace/metric export when set (e.g. http://localhost:4317).
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// AutoMigrate runs embedded migrations at server start when true.
	AutoMigrate bool `mapstructure:"AUTO_MIGRATE"`
	// Env is the application environment ("development", "production"). Controls the
	// Secure cookie flag and whether the maintenance endpoints are mounted.
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required
// fields are missing or invalid; in particular unset signing secrets fail here, at startup,
// never at request time.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_ISSUER", "identity-sessions")
	v.SetDefault("JWT_ACCESS_TTL", "10m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("EMAIL_CONFIRMATION_TTL", "24h")
	v.SetDefault("PASSWORD_RECOVERY_TTL", "1h")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("RESEND_API_KEY", "")
	v.SetDefault("MAIL_FROM", "no-reply@localhost")
	v.SetDefault("RATE_LIMIT_REQUESTS", 5)
	v.SetDefault("RATE_LIMIT_WINDOW", "10s")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("AUTO_MIGRATE", false)
	v.SetDefault("APP_ENV", "development")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, errors.New("config: JWT_ACCESS_SECRET must be set")
	}
	if cfg.JWTRefreshSecret == "" {
		return nil, errors.New("config: JWT_REFRESH_SECRET must be set")
	}
	if cfg.JWTAccessSecret == cfg.JWTRefreshSecret {
		return nil, errors.New("config: JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	return &cfg, nil
}

// IsProduction reports whether APP_ENV is "production".
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 10m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return durationOr(c.JWTAccessTTL, 10*time.Minute)
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return durationOr(c.JWTRefreshTTL, 168*time.Hour)
}

// ConfirmationTTL parses EmailConfirmationTTL as a time.Duration. Returns 24h if unset or invalid.
func (c *Config) ConfirmationTTL() time.Duration {
	return durationOr(c.EmailConfirmationTTL, 24*time.Hour)
}

// RecoveryTTL parses PasswordRecoveryTTL as a time.Duration. Returns 1h if unset or invalid.
func (c *Config) RecoveryTTL() time.Duration {
	return durationOr(c.PasswordRecoveryTTL, time.Hour)
}

// RateWindow parses RateLimitWindow as a time.Duration. Returns 10s if unset or invalid.
func (c *Config) RateWindow() time.Duration {
	return durationOr(c.RateLimitWindow, 10*time.Second)
}

func durationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
