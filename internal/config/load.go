package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// VENDORFLOW_DISPATCHER_WORKER_COUNT.
const EnvPrefix = "VENDORFLOW"

var defaults = map[string]any{
	"server.port":      8080,
	"server.log_level": "info",

	"store.driver":          "memory",
	"store.database_url":    "",
	"store.dynamo_table":    "",
	"store.dynamo_region":   "us-east-1",
	"store.dynamo_endpoint": "",

	"dispatcher.worker_id":            "",
	"dispatcher.worker_count":         4,
	"dispatcher.batch_size":           25,
	"dispatcher.poll_interval":        2 * time.Second,
	"dispatcher.handler_timeout":      30 * time.Second,
	"dispatcher.max_retries":          3,
	"dispatcher.backoff_base":         30 * time.Second,
	"dispatcher.stuck_task_age":       15 * time.Minute,
	"dispatcher.reaper_schedule":      "@every 1m",
	"dispatcher.lease_ttl":            2 * time.Minute,
	"dispatcher.require_human_review": true,

	"llm.gemini_api_key": "",
	"llm.model_name":     "gemini-2.0-flash",
	"llm.temperature":    0.4,
	"llm.max_retries":    3,
	"llm.base_delay":     time.Second,

	"notify.driver":     "dryrun",
	"notify.from_email": "",
	"notify.region":     "us-east-1",

	"auth.jwt_secret":     "",
	"auth.token_lifetime": 12 * time.Hour,

	"redis.url": "",

	"kafka.brokers": []string{},
	"kafka.topic":   "vendor-activities",
}

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// A .env file in the working directory is applied to the environment first.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
