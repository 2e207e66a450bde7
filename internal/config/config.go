// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - Provide New(ctx) to build a Config with defaults.
//   - Durations are configured as integer milliseconds or seconds and exposed
//     through accessor methods.
//   - Errors are wrapped with this package's sentinels.
package config

import (
	"context"
	"time"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn warning error"`

	// LogFormat selects the slog handler: json or text.
	LogFormat string `koanf:"log_format" validate:"oneof=json text"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr" validate:"required"`

	// StoreBackend selects the rating store.
	StoreBackend string `koanf:"store_backend" validate:"oneof=memory sqlite postgres redis"`

	// StoreDSN is the gorm DSN for sqlite and postgres.
	StoreDSN string `koanf:"store_dsn" validate:"required_if=StoreBackend sqlite,required_if=StoreBackend postgres"`

	RedisAddr      string `koanf:"redis_addr" validate:"required_if=StoreBackend redis"`
	RedisPassword  string `koanf:"redis_password"`
	RedisDB        int    `koanf:"redis_db" validate:"gte=0"`
	RedisKeyPrefix string `koanf:"redis_key_prefix" validate:"required"`

	// StoreTimeoutMS bounds every store call.
	StoreTimeoutMS int `koanf:"store_timeout_ms" validate:"gt=0"`

	// Breaker settings wrap the store in a circuit breaker.
	BreakerEnabled       bool    `koanf:"breaker_enabled"`
	BreakerFailureRatio  float64 `koanf:"breaker_failure_ratio" validate:"gt=0,lte=1"`
	BreakerMinRequests   uint32  `koanf:"breaker_min_requests" validate:"gt=0"`
	BreakerOpenTimeoutMS int     `koanf:"breaker_open_timeout_ms" validate:"gt=0"`

	// SerializeWrites routes every vote of a category through one writer.
	SerializeWrites bool `koanf:"serialize_writes"`
	WriterQueueSize int  `koanf:"writer_queue_size" validate:"gt=0"`

	// Vote retry on store conflicts.
	VoteRetryAttempts int `koanf:"vote_retry_attempts" validate:"gt=0"`
	VoteRetryBaseMS   int `koanf:"vote_retry_base_ms" validate:"gte=0"`

	// SelectionAttempts is the selector's per-call draw budget.
	SelectionAttempts int `koanf:"selection_attempts" validate:"gt=0"`
	// SelectionRetries is how many times a failed selection is retried whole.
	SelectionRetries int `koanf:"selection_retries" validate:"gte=0"`

	// PoolFile is a YAML candidate pool. Empty serves empty pools.
	PoolFile       string `koanf:"pool_file"`
	PoolSize       int    `koanf:"pool_size" validate:"gt=0"`
	PoolTTLSeconds int    `koanf:"pool_ttl_seconds" validate:"gt=0"`

	SessionTTLSeconds        int `koanf:"session_ttl_seconds" validate:"gt=0"`
	ConsumedMatchupCacheSize int `koanf:"consumed_matchup_cache_size" validate:"gt=0"`

	// MaxLeaderboardLimit caps the leaderboard limit query parameter.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit" validate:"gt=0"`

	// RateLimitRPS is the per-client request rate. Zero disables limiting.
	RateLimitRPS   float64 `koanf:"rate_limit_rps" validate:"gte=0"`
	RateLimitBurst int     `koanf:"rate_limit_burst" validate:"gte=0"`
}

// New creates a Config with defaults. Context is accepted first to
// satisfy the project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:                 "info",
		LogFormat:                "json",
		Addr:                     ":9080",
		StoreBackend:             BackendMemory,
		RedisKeyPrefix:           "pitchelo",
		StoreTimeoutMS:           2000,
		BreakerEnabled:           true,
		BreakerFailureRatio:      0.5,
		BreakerMinRequests:       10,
		BreakerOpenTimeoutMS:     5000,
		SerializeWrites:          true,
		WriterQueueSize:          256,
		VoteRetryAttempts:        5,
		VoteRetryBaseMS:          8,
		SelectionAttempts:        10,
		SelectionRetries:         3,
		PoolSize:                 50,
		PoolTTLSeconds:           3600,
		SessionTTLSeconds:        86400,
		ConsumedMatchupCacheSize: 500_000,
		MaxLeaderboardLimit:      100,
		RateLimitRPS:             20,
		RateLimitBurst:           40,
	}
}

// StoreTimeout returns StoreTimeoutMS as a duration.
func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutMS) * time.Millisecond
}

// BreakerOpenTimeout returns BreakerOpenTimeoutMS as a duration.
func (c *Config) BreakerOpenTimeout() time.Duration {
	return time.Duration(c.BreakerOpenTimeoutMS) * time.Millisecond
}

// VoteRetryBase returns VoteRetryBaseMS as a duration.
func (c *Config) VoteRetryBase() time.Duration {
	return time.Duration(c.VoteRetryBaseMS) * time.Millisecond
}

// PoolTTL returns PoolTTLSeconds as a duration.
func (c *Config) PoolTTL() time.Duration {
	return time.Duration(c.PoolTTLSeconds) * time.Second
}

// SessionTTL returns SessionTTLSeconds as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSeconds) * time.Second
}
