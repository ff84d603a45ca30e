package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/trbojevicstefan/taskwise/backoff"
)

// EnvPrefix is the prefix of every recognized environment variable.
const EnvPrefix = "TASKWISE"

func setDefaults(v *viper.Viper) {
	v.SetDefault("dispatch.async_enabled", false)
	v.SetDefault("dispatch.event_retention_days", 30)
	v.SetDefault("dispatch.job_max_attempts", 2)
	v.SetDefault("dispatch.event_lease_timeout", "5m")

	v.SetDefault("worker.disable_kick", false)
	v.SetDefault("worker.poll_interval", "1s")
	v.SetDefault("worker.concurrency", 1)
	v.SetDefault("worker.batch_size", 10)
	v.SetDefault("worker.backlog_warn", 100)
	v.SetDefault("worker.backlog_critical", 500)
	v.SetDefault("worker.backlog_log_interval", "1m")
	v.SetDefault("worker.job_lease_timeout", "5m")
	v.SetDefault("worker.retry_backoff", "linear:10s")
	v.SetDefault("worker.job_retention_days", 30)
	v.SetDefault("worker.purge_interval", "10m")

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.mongo_uri", "")
	v.SetDefault("store.mongo_database", "taskwise")
	v.SetDefault("store.postgres_url", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.shutdown_timeout", "30s")
}

// Load reads configuration. When path is empty, a taskwise.yaml in the
// working directory or ./configs is used if present. Environment
// variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else {
		v.SetConfigName("taskwise")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: read: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and that the retry backoff spec
// parses.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	if _, err := backoff.Parse(c.Worker.RetryBackoff); err != nil {
		return fmt.Errorf("config: invalid worker.retry_backoff: %w", err)
	}
	return nil
}

// Backoff returns the configured retry strategy.
func (c *Config) Backoff() (backoff.Strategy, error) {
	return backoff.Parse(c.Worker.RetryBackoff)
}
