package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"     validate:"required"`
	Store      StoreConfig      `mapstructure:"store"      validate:"required"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher" validate:"required"`
	LLM        LLMConfig        `mapstructure:"llm"        validate:"required"`
	Notify     NotifyConfig     `mapstructure:"notify"     validate:"required"`
	Auth       AuthConfig       `mapstructure:"auth"       validate:"required"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
}

// ServerConfig contains the operator HTTP surface settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// StoreConfig selects and configures the document store engine.
type StoreConfig struct {
	Driver         string `mapstructure:"driver"          validate:"required,oneof=memory postgres dynamodb"`
	DatabaseURL    string `mapstructure:"database_url"    validate:"required_if=Driver postgres,omitempty,url"`
	DynamoTable    string `mapstructure:"dynamo_table"    validate:"required_if=Driver dynamodb"`
	DynamoRegion   string `mapstructure:"dynamo_region"`
	DynamoEndpoint string `mapstructure:"dynamo_endpoint" validate:"omitempty,url"`
}

// DispatcherConfig controls polling, concurrency, and retry policy.
type DispatcherConfig struct {
	WorkerID           string        `mapstructure:"worker_id"`
	WorkerCount        int           `mapstructure:"worker_count"         validate:"gt=0"`
	BatchSize          int           `mapstructure:"batch_size"           validate:"gt=0"`
	PollInterval       time.Duration `mapstructure:"poll_interval"        validate:"gt=0"`
	HandlerTimeout     time.Duration `mapstructure:"handler_timeout"      validate:"gt=0"`
	MaxRetries         int           `mapstructure:"max_retries"          validate:"gte=0,lte=20"`
	BackoffBase        time.Duration `mapstructure:"backoff_base"         validate:"gt=0"`
	StuckTaskAge       time.Duration `mapstructure:"stuck_task_age"       validate:"gt=0"`
	ReaperSchedule     string        `mapstructure:"reaper_schedule"      validate:"required"`
	LeaseTTL           time.Duration `mapstructure:"lease_ttl"            validate:"gt=0"`
	RequireHumanReview bool          `mapstructure:"require_human_review"`
}

// LLMConfig contains the generative model settings.
type LLMConfig struct {
	GeminiAPIKey string        `mapstructure:"gemini_api_key" validate:"required"`
	ModelName    string        `mapstructure:"model_name"     validate:"required"`
	Temperature  float32       `mapstructure:"temperature"    validate:"gte=0,lte=2"`
	MaxRetries   int           `mapstructure:"max_retries"    validate:"gte=0,lte=5"`
	BaseDelay    time.Duration `mapstructure:"base_delay"     validate:"gte=0"`
}

// NotifyConfig selects the outbound notification channel.
type NotifyConfig struct {
	Driver    string `mapstructure:"driver"     validate:"required,oneof=ses dryrun"`
	FromEmail string `mapstructure:"from_email" validate:"required_if=Driver ses,omitempty,email"`
	Region    string `mapstructure:"region"`
}

// AuthConfig contains operator authentication settings.
type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"     validate:"required,min=32"`
	TokenLifetime time.Duration `mapstructure:"token_lifetime" validate:"gt=0"`
}

// RedisConfig enables distributed per-vendor leases when URL is set.
type RedisConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// KafkaConfig enables mirroring of activity entries when brokers are set.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic" validate:"required_with=Brokers"`
}
