package domain

import "time"

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	BaseURL string `mapstructure:"base_url"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"username"`
	Pass     string `mapstructure:"password"`
	SslMode  string `mapstructure:"ssl_mode"`
}

// DatabaseConfig holds general database settings and nested driver configs.
type DatabaseConfig struct {
	Type     string         `mapstructure:"type"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Path           string `mapstructure:"path"`
	Level          string `mapstructure:"level"`
	MaxFileSize    int    `mapstructure:"max_file_size"`
	MaxBackupCount int    `mapstructure:"max_backup_count"`
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	// APIToken is the bearer token sync clients must present. Generated into
	// the config file on first run. Empty disables authentication.
	APIToken string `mapstructure:"api_token"`
}

// SyncConfig holds the sync engine tunables. All values are explicit
// configuration rather than hidden service state.
type SyncConfig struct {
	// EntityTypes are the entity type names registered for sync at startup.
	EntityTypes []string `mapstructure:"entity_types"`
	// DefaultBatchSize is used when a pull request omits batch_size.
	DefaultBatchSize int `mapstructure:"default_batch_size"`
	// MaxBatchSize caps client-requested batch sizes.
	MaxBatchSize int `mapstructure:"max_batch_size"`
	// DefaultPullWindowMinutes bounds a pull with no last_sync_timestamp:
	// the effective "since" is now minus this window.
	DefaultPullWindowMinutes int `mapstructure:"default_pull_window_minutes"`
	// TombstoneRetentionDays controls how long soft-deleted entities are kept
	// before the prune job removes them. Zero disables pruning.
	TombstoneRetentionDays int `mapstructure:"tombstone_retention_days"`
	// PruneSchedule is the cron spec for the tombstone prune job.
	PruneSchedule string `mapstructure:"prune_schedule"`
}

// DefaultPullWindow returns the pull window as a duration.
func (c SyncConfig) DefaultPullWindow() time.Duration {
	return time.Duration(c.DefaultPullWindowMinutes) * time.Minute
}

// RetryConfig holds the backoff settings for the retry wrapper. Only
// transport-class failures are retried; business outcomes never are.
type RetryConfig struct {
	MaxRetries  int     `mapstructure:"max_retries"`
	BaseDelayMs int     `mapstructure:"base_delay_ms"`
	MaxDelaySec int     `mapstructure:"max_delay_sec"`
	Multiplier  float64 `mapstructure:"multiplier"`
	Jitter      bool    `mapstructure:"jitter"`
}

// BaseDelay returns the delay before the first retry.
func (c RetryConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMs) * time.Millisecond
}

// MaxDelay returns the cap applied to the exponential schedule.
func (c RetryConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelaySec) * time.Second
}

// Config holds the application's configuration, mapped from config.toml.
type Config struct {
	Version    string `mapstructure:"-"`
	ConfigPath string `mapstructure:"-"`

	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Retry    RetryConfig    `mapstructure:"retry"`
}
