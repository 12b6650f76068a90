// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis, auth services) via constructors.
  - Zero Hidden State: No global variables are used to store config.
*/
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// # Backend Drivers

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
	DriverRedis    = "redis"
)

// # Configuration Schema

// Config holds all runtime configuration for the auth API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// StorageDriver selects the credential/session/recovery-code store.
	// "memory" is for local development and loses all state on restart.
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"postgres"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL"`
	DBMaxConns  int    `env:"DB_MAX_CONNS"   envDefault:"25"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Store (Redis). Codes, lockout counters, state tokens and token families live here.
	RedisURL      string `env:"REDIS_URL,required"`
	RedisPoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"10"`

	// Cryptographic keys for identity signing
	JWTPrivKeyPath string `env:"JWT_PRIVATE_KEY_PATH,required"`
	JWTPubKeyPath  string `env:"JWT_PUBLIC_KEY_PATH,required"`
	JWTIssuer      string `env:"JWT_ISSUER"   envDefault:"auth.shop.local"`
	JWTAudience    string `env:"JWT_AUDIENCE" envDefault:"shop-api"`

	// Token lifetimes
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL"  envDefault:"15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"24h"`
	StateTokenTTL   time.Duration `env:"STATE_TOKEN_TTL"   envDefault:"5m"`

	// Account lockout
	LockoutThreshold int           `env:"LOCKOUT_THRESHOLD" envDefault:"5"`
	LockoutWindow    time.Duration `env:"LOCKOUT_WINDOW"    envDefault:"15m"`

	// One-time email codes
	CodeTTL      time.Duration `env:"CODE_TTL"      envDefault:"5m"`
	CodeCooldown time.Duration `env:"CODE_COOLDOWN" envDefault:"120s"`

	// FixedCode makes every email code deterministic. Test environments only.
	FixedCode string `env:"OTP_FIXED_CODE"`

	// TOTP
	TOTPIssuer string `env:"TOTP_ISSUER" envDefault:"Shop"`

	// Blacklist
	BlacklistDriver        string        `env:"BLACKLIST_DRIVER"         envDefault:"memory"`
	BlacklistCapacity      int           `env:"BLACKLIST_CAPACITY"       envDefault:"10000"`
	BlacklistSweepInterval time.Duration `env:"BLACKLIST_SWEEP_INTERVAL" envDefault:"5m"`

	// Password policy
	PasswordMinLength int `env:"PASSWORD_MIN_LENGTH" envDefault:"12"`

	// Outbound email. When SMTPHost is empty, messages are written to the log.
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT"     envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM"     envDefault:"no-reply@shop.local"`

	// Per-IP token bucket applied to every route
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS"   envDefault:"20"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"40"`

	// Background maintenance
	SessionPruneInterval time.Duration `env:"SESSION_PRUNE_INTERVAL" envDefault:"1h"`

	// Cross-Origin Resource Sharing
	AllowedOriginSuffix string `env:"ALLOWED_ORIGIN_SUFFIX" envDefault:"shop.local"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct and validates it.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate cross-checks values that struct tags cannot express.
func (c *Config) Validate() error {
	var problems []error

	switch c.StorageDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			problems = append(problems, errors.New("DATABASE_URL is required when STORAGE_DRIVER=postgres"))
		}
	case DriverMemory:
		if c.IsProduction() {
			problems = append(problems, errors.New("STORAGE_DRIVER=memory is not allowed in production"))
		}
	default:
		problems = append(problems, fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver))
	}

	if c.BlacklistDriver != DriverMemory && c.BlacklistDriver != DriverRedis {
		problems = append(problems, fmt.Errorf("unknown BLACKLIST_DRIVER %q", c.BlacklistDriver))
	}

	if c.FixedCode != "" && c.IsProduction() {
		problems = append(problems, errors.New("OTP_FIXED_CODE must not be set in production"))
	}

	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= c.AccessTokenTTL {
		problems = append(problems, errors.New("REFRESH_TOKEN_TTL must be greater than ACCESS_TOKEN_TTL > 0"))
	}

	if c.LockoutThreshold < 1 {
		problems = append(problems, errors.New("LOCKOUT_THRESHOLD must be at least 1"))
	}

	if c.PasswordMinLength < 8 {
		problems = append(problems, errors.New("PASSWORD_MIN_LENGTH must be at least 8"))
	}

	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		problems = append(problems, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}

	if c.BlacklistCapacity < 1 {
		problems = append(problems, errors.New("BLACKLIST_CAPACITY must be positive"))
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: invalid configuration: %w", errors.Join(problems...))
	}

	return nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// OriginSuffix returns the domain suffix trusted by the CORS middleware.
func (c *Config) OriginSuffix() string {
	return c.AllowedOriginSuffix
}
