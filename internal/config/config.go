// Package config reads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"taste-agent/internal/usecase"
)

type Config struct {
	ParamPrefix       string
	OpenAIAPIKey      string
	OpenAIModel       string
	OpenAIBaseURL     string
	OpenAITemperature float32
	RestaurantTable   string
	JournalTable      string
	LogLevel          slog.Level
	RequestsPerMinute int
	ConversationTTL   time.Duration
	Limits            usecase.Limits
}

func defaults(v *viper.Viper) {
	l := usecase.DefaultLimits()
	v.SetDefault("openai_model", "gpt-4o-mini")
	v.SetDefault("openai_temperature", 0.7)
	v.SetDefault("log_level", "info")
	v.SetDefault("requests_per_minute", 20)
	v.SetDefault("max_message_length", l.MaxMessageLength)
	v.SetDefault("history_window", l.HistoryWindow)
	v.SetDefault("history_cap", l.HistoryCap)
	v.SetDefault("conversation_ttl", 30*time.Minute)
	v.SetDefault("max_calls_per_conversation", l.MaxCallsPerConversation)
	v.SetDefault("max_model_attempts", l.MaxModelAttempts)
	v.SetDefault("max_tool_iterations", l.MaxToolIterations)
	v.SetDefault("model_retry_delay", l.ModelRetryDelay)
}

// Load reads the environment. Keys are the upper-case names, e.g.
// PARAM_PREFIX or HISTORY_CAP.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	defaults(v)
	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString("log_level"))); err != nil {
		return Config{}, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}

	cfg := Config{
		ParamPrefix:       strings.TrimRight(strings.TrimSpace(v.GetString("param_prefix")), "/"),
		OpenAIAPIKey:      strings.TrimSpace(v.GetString("openai_api_key")),
		OpenAIModel:       v.GetString("openai_model"),
		OpenAIBaseURL:     v.GetString("openai_base_url"),
		OpenAITemperature: float32(v.GetFloat64("openai_temperature")),
		RestaurantTable:   v.GetString("restaurant_table"),
		JournalTable:      v.GetString("journal_table"),
		LogLevel:          level,
		RequestsPerMinute: v.GetInt("requests_per_minute"),
		Limits: usecase.Limits{
			MaxMessageLength:        v.GetInt("max_message_length"),
			HistoryWindow:           v.GetInt("history_window"),
			HistoryCap:              v.GetInt("history_cap"),
			MaxCallsPerConversation: v.GetInt("max_calls_per_conversation"),
			MaxModelAttempts:        v.GetInt("max_model_attempts"),
			MaxToolIterations:       v.GetInt("max_tool_iterations"),
			ModelRetryDelay:         v.GetDuration("model_retry_delay"),
		},
		ConversationTTL: v.GetDuration("conversation_ttl"),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.ParamPrefix == "" && c.OpenAIAPIKey == "" {
		return errors.New("config: PARAM_PREFIX or OPENAI_API_KEY must be set")
	}
	if c.RequestsPerMinute <= 0 {
		return errors.New("config: REQUESTS_PER_MINUTE must be positive")
	}
	if c.ConversationTTL <= 0 {
		return errors.New("config: CONVERSATION_TTL must be positive")
	}
	l := c.Limits
	if l.MaxMessageLength <= 0 || l.HistoryWindow <= 0 || l.HistoryCap <= 0 ||
		l.MaxCallsPerConversation <= 0 || l.MaxModelAttempts <= 0 || l.MaxToolIterations <= 0 {
		return errors.New("config: limits must be positive")
	}
	if l.ModelRetryDelay < 0 {
		return errors.New("config: MODEL_RETRY_DELAY must not be negative")
	}
	return nil
}
