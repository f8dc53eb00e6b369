package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load configuration from environment variables and optionally a config
// file. Environment variables take precedence over values from config
// files. Returns a populated Config struct or an error if
// loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional config file in the working directory; absence is fine,
	// environment variables alone can carry the whole configuration.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// TRIAGE_SERVER_PORT overrides server.port, and so on.
	v.SetEnvPrefix("TRIAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	// Secrets default to empty so viper registers the keys; AutomaticEnv
	// only resolves keys it already knows about during Unmarshal.
	v.SetDefault("database.url", "")
	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("hosting.token", "")

	v.SetDefault("llm.model_name", "gemini-2.0-flash")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay_seconds", 2)
	v.SetDefault("llm.rate_limit_seconds", 2)

	v.SetDefault("queue.fetch_poll_seconds", 15)
	v.SetDefault("queue.ai_poll_seconds", 15)
	v.SetDefault("queue.batch_size", 10)
	v.SetDefault("queue.max_retries", 3)
	v.SetDefault("queue.stale_timeout_minutes", 30)
	v.SetDefault("queue.retention_days", 14)
	v.SetDefault("queue.fetch_interval_minutes", 15)

	v.SetDefault("feeds.base_url", "")
	v.SetDefault("feeds.token", "")

	v.SetDefault("hosting.api_base_url", "https://api.github.com")
	v.SetDefault("hosting.rate_limit_seconds", 1)

	v.SetDefault("prompts.dir", "prompts")
}
