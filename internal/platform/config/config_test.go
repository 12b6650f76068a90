// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/shopauth/internal/platform/config"
)

/*
TestLoad_Defaults verifies that optional values fall back to their documented defaults.
*/
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("JWT_PRIVATE_KEY_PATH", "/keys/private.pem")
	t.Setenv("JWT_PUBLIC_KEY_PATH", "/keys/public.pem")
	t.Setenv("DATABASE_URL", "postgres://localhost/shop")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 24*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 5, cfg.LockoutThreshold)
	assert.Equal(t, 120*time.Second, cfg.CodeCooldown)
	assert.Equal(t, 10000, cfg.BlacklistCapacity)
	assert.Equal(t, config.DriverMemory, cfg.BlacklistDriver)
	assert.Equal(t, 40, cfg.RateLimitBurst)
	assert.Equal(t, time.Hour, cfg.SessionPruneInterval)
	assert.Equal(t, 25, cfg.DBMaxConns)
	assert.Equal(t, 10, cfg.RedisPoolSize)
}

/*
TestLoad_MissingRequired ensures required variables are enforced.
*/
func TestLoad_MissingRequired(t *testing.T) {
	// t.Setenv registers the restore; Unsetenv then removes the variable for this test.
	t.Setenv("REDIS_URL", "placeholder")
	require.NoError(t, os.Unsetenv("REDIS_URL"))

	_, err := config.Load()
	assert.Error(t, err)
}

/*
TestValidate_Rules covers cross-field validation.
*/
func TestValidate_Rules(t *testing.T) {
	base := func() config.Config {
		return config.Config{
			Environment:       "development",
			StorageDriver:     config.DriverMemory,
			BlacklistDriver:   config.DriverMemory,
			AccessTokenTTL:    15 * time.Minute,
			RefreshTokenTTL:   24 * time.Hour,
			LockoutThreshold:  5,
			PasswordMinLength: 12,
			BlacklistCapacity: 100,
			RateLimitRPS:      20,
			RateLimitBurst:    40,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr bool
	}{
		{"valid", func(c *config.Config) {}, false},
		{"fixed_code_in_production", func(c *config.Config) {
			c.Environment = "production"
			c.StorageDriver = config.DriverPostgres
			c.DatabaseURL = "postgres://db"
			c.FixedCode = "123456"
		}, true},
		{"memory_storage_in_production", func(c *config.Config) { c.Environment = "production" }, true},
		{"postgres_without_dsn", func(c *config.Config) { c.StorageDriver = config.DriverPostgres }, true},
		{"refresh_shorter_than_access", func(c *config.Config) { c.RefreshTokenTTL = time.Minute }, true},
		{"unknown_blacklist_driver", func(c *config.Config) { c.BlacklistDriver = "etcd" }, true},
		{"zero_rate_limit", func(c *config.Config) { c.RateLimitBurst = 0 }, true},
		{"legacy_min_length", func(c *config.Config) { c.PasswordMinLength = 8 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
