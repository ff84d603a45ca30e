package config

import (
	"time"
)

// Config holds all process configuration.
type Config struct {
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Store    StoreConfig    `mapstructure:"store"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Server   ServerConfig   `mapstructure:"server"`
}

// DispatchConfig controls event publication and dispatch.
type DispatchConfig struct {
	// AsyncEnabled makes Publish enqueue a dispatch job instead of running
	// the handler inline.
	AsyncEnabled       bool          `mapstructure:"async_enabled"`
	EventRetentionDays int           `mapstructure:"event_retention_days" validate:"gt=0"`
	JobMaxAttempts     int           `mapstructure:"job_max_attempts" validate:"gte=1"`
	EventLeaseTimeout  time.Duration `mapstructure:"event_lease_timeout" validate:"gte=0"`
}

// WorkerConfig controls the polling pool and backlog reporting.
type WorkerConfig struct {
	DisableKick        bool          `mapstructure:"disable_kick"`
	PollInterval       time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	Concurrency        int           `mapstructure:"concurrency" validate:"gte=1"`
	BatchSize          int           `mapstructure:"batch_size" validate:"gte=1"`
	BacklogWarn        int64         `mapstructure:"backlog_warn" validate:"gte=0"`
	BacklogCritical    int64         `mapstructure:"backlog_critical" validate:"gtfield=BacklogWarn"`
	BacklogLogInterval time.Duration `mapstructure:"backlog_log_interval" validate:"gte=0"`
	JobLeaseTimeout    time.Duration `mapstructure:"job_lease_timeout" validate:"gte=0"`
	// RetryBackoff is a "kind:duration" spec, see backoff.Parse.
	RetryBackoff     string        `mapstructure:"retry_backoff"`
	JobRetentionDays int           `mapstructure:"job_retention_days" validate:"gt=0"`
	PurgeInterval    time.Duration `mapstructure:"purge_interval" validate:"gt=0"`
}

// StoreConfig selects and locates the persistence backend.
type StoreConfig struct {
	Driver        string `mapstructure:"driver" validate:"oneof=memory mongo postgres"`
	MongoURI      string `mapstructure:"mongo_uri" validate:"required_if=Driver mongo"`
	MongoDatabase string `mapstructure:"mongo_database" validate:"required_if=Driver mongo"`
	PostgresURL   string `mapstructure:"postgres_url" validate:"required_if=Driver postgres"`
}

// RedisConfig locates the Redis instance used for cross-process
// coordination. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

// ServerConfig controls the operator HTTP server and process logging.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	LogLevel        string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat       string        `mapstructure:"log_format" validate:"oneof=json text"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// EventRetention returns how long terminal events are kept.
func (c *Config) EventRetention() time.Duration {
	return time.Duration(c.Dispatch.EventRetentionDays) * 24 * time.Hour
}

// JobRetention returns how long terminal jobs are kept.
func (c *Config) JobRetention() time.Duration {
	return time.Duration(c.Worker.JobRetentionDays) * 24 * time.Hour
}
