package config

import (
	"fmt"
	"time"
)

// Config holds runtime configuration for the workout ledger.
type Config struct {
	AppEnv    string          `mapstructure:"app_env"`
	Timezone  string          `mapstructure:"timezone" validate:"required"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database" validate:"required"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Web       WebConfig       `mapstructure:"web"`
	Bot       BotConfig       `mapstructure:"bot"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Users     []UserConfig    `mapstructure:"users" validate:"required,min=1,max=8,unique=ID,unique_telegram,dive"`
}

// LoggerConfig controls the slog handler chain.
type LoggerConfig struct {
	Level      string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"omitempty,oneof=json text"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"gte=0"`
}

// SentryConfig toggles error reporting.
type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn" validate:"required_if=Enabled true"`
	SampleRate  float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
	Environment string  `mapstructure:"environment"`
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Port            string        `mapstructure:"port" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig selects the SQL dialect and connection parameters.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver" validate:"required,oneof=postgres sqlite"`
	Host     string `mapstructure:"host" validate:"required_if=Driver postgres"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user" validate:"required_if=Driver postgres"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name" validate:"required_if=Driver postgres"`
	SSLMode  string `mapstructure:"ssl_mode"`
	Path     string `mapstructure:"path" validate:"required_if=Driver sqlite"`
}

// RedisConfig is optional; an empty Addr disables every Redis-backed component.
type RedisConfig struct {
	Addr            string        `mapstructure:"addr"`
	Password        string        `mapstructure:"password"`
	DB              int           `mapstructure:"db" validate:"gte=0"`
	PoolSize        int           `mapstructure:"pool_size" validate:"gte=0"`
	MinIdleConns    int           `mapstructure:"min_idle_conns" validate:"gte=0"`
	PoolTimeout     time.Duration `mapstructure:"pool_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	MinRetryBackoff time.Duration `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
}

// RateLimitRule is a limit per window, e.g. 30 requests per "1m".
type RateLimitRule struct {
	Limit  int    `mapstructure:"limit" validate:"gte=0"`
	Window string `mapstructure:"window"`
}

// RateLimitConfig groups limiter rules.
type RateLimitConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	PerClient RateLimitRule `mapstructure:"per_client"`
	PerUser   RateLimitRule `mapstructure:"per_user"`
	Mutations RateLimitRule `mapstructure:"mutations"`
	Whitelist []string      `mapstructure:"whitelist"`
}

// WebConfig tunes the HTML board.
type WebConfig struct {
	GridWeeks    int    `mapstructure:"grid_weeks" validate:"gte=0,lte=104"`
	CookieName   string `mapstructure:"cookie_name"`
	CookieSecure bool   `mapstructure:"cookie_secure"`
}

// BotConfig configures the optional Telegram transport.
type BotConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Token    string        `mapstructure:"token" validate:"required_if=Enabled true"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Language string        `mapstructure:"language"`
}

// JobsConfig configures reminder scheduling.
type JobsConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ReminderCron string `mapstructure:"reminder_cron" validate:"required_if=Enabled true"`
	Concurrency  int    `mapstructure:"concurrency" validate:"gte=0"`
}

// UserConfig describes one fixed ledger slot.
type UserConfig struct {
	ID          string `mapstructure:"id" validate:"required,alphanum,max=32"`
	DisplayName string `mapstructure:"display_name" validate:"required,max=64"`
	TelegramID  int64  `mapstructure:"telegram_id" validate:"gte=0"`
}

// GetDBConnectionString returns the driver-specific DSN.
func (c *Config) GetDBConnectionString() string {
	return c.Database.DSN()
}

// DSN returns the connection string for the configured driver.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path
	}

	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// IsRedisEnabled reports whether a Redis address is configured.
func (c *Config) IsRedisEnabled() bool {
	return c.Redis.Addr != ""
}
