package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm" validate:"required"`
	Queue    QueueConfig    `mapstructure:"queue" validate:"required"`
	Feeds    FeedsConfig    `mapstructure:"feeds"`
	Hosting  HostingConfig  `mapstructure:"hosting"`
	Prompts  PromptConfig   `mapstructure:"prompts" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey      string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName         string `mapstructure:"model_name" validate:"required"`
	MaxRetries        int    `mapstructure:"max_retries" validate:"gte=0"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds" validate:"gte=0"`

	// RateLimitSeconds is the minimum interval between external LLM
	// calls (extraction and judge share the budget).
	RateLimitSeconds int `mapstructure:"rate_limit_seconds" validate:"gte=0"`
}

// QueueConfig contains queue and scheduler settings.
type QueueConfig struct {
	// FetchPollSeconds is the fetch worker's drain interval.
	FetchPollSeconds int `mapstructure:"fetch_poll_seconds" validate:"gt=0"`

	// AIPollSeconds is the AI worker's drain interval.
	AIPollSeconds int `mapstructure:"ai_poll_seconds" validate:"gt=0"`

	// BatchSize is the dequeue limit per drain.
	BatchSize int `mapstructure:"batch_size" validate:"gt=0"`

	// MaxRetries is the retry budget per job before dead-lettering.
	MaxRetries int `mapstructure:"max_retries" validate:"gt=0"`

	// StaleTimeoutMinutes is the lock age after which a processing job
	// is considered abandoned and recovered.
	StaleTimeoutMinutes int `mapstructure:"stale_timeout_minutes" validate:"gt=0"`

	// RetentionDays is how long finished jobs are kept before cleanup.
	RetentionDays int `mapstructure:"retention_days" validate:"gt=0"`

	// FetchIntervalMinutes is how often the scheduler enqueues fetch
	// jobs for each source.
	FetchIntervalMinutes int `mapstructure:"fetch_interval_minutes" validate:"gt=0"`
}

// FeedsConfig contains the settings for the source-feed gateway the
// fetch jobs and completion evidence pull from. Optional: without a base
// URL, fetching and the judge-backed evidence tiers are disabled.
type FeedsConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
	Token   string `mapstructure:"token"`
}

// HostingConfig contains code-hosting API settings for the completion
// waterfall. Optional: without a token the hosting tier is skipped.
type HostingConfig struct {
	APIBaseURL       string `mapstructure:"api_base_url" validate:"omitempty,url"`
	Token            string `mapstructure:"token"`
	RateLimitSeconds int    `mapstructure:"rate_limit_seconds" validate:"gte=0"`
}

// PromptConfig contains settings for the on-disk prompt store.
type PromptConfig struct {
	Dir string `mapstructure:"dir" validate:"required"`
}
