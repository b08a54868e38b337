// Package config loads and validates the client configuration from the
// environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds everything the client needs to talk to the remote chat
// service. One Config drives one Client; sessions inherit it.
type Config struct {
	BaseURL string `mapstructure:"BASE_URL" validate:"required,url"`
	Token   string `mapstructure:"TOKEN"`

	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT" validate:"min=1s"`
	StreamTimeout  time.Duration `mapstructure:"STREAM_TIMEOUT" validate:"min=1s"`

	// Placeholder pool tuning: PoolSize pairs are created whenever fewer
	// than MinAvailable remain unconsumed.
	PlaceholderPoolSize     int `mapstructure:"PLACEHOLDER_POOL_SIZE" validate:"min=1"`
	PlaceholderMinAvailable int `mapstructure:"PLACEHOLDER_MIN_AVAILABLE" validate:"min=1"`

	// TaskModelEnabled gates tag/title/follow-up derivation. When the server
	// exposes no task model the features degrade to unavailable either way.
	TaskModelEnabled bool `mapstructure:"TASK_MODEL_ENABLED"`

	LogLevel string `mapstructure:"LOG_LEVEL"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Load reads configuration from CHATPILOT_* environment variables (and an
// optional .env file in the working directory), applies defaults, and
// validates the result.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("BASE_URL", "")
	v.SetDefault("TOKEN", "")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("STREAM_TIMEOUT", "5m")
	v.SetDefault("PLACEHOLDER_POOL_SIZE", 4)
	v.SetDefault("PLACEHOLDER_MIN_AVAILABLE", 2)
	v.SetDefault("TASK_MODEL_ENABLED", true)
	v.SetDefault("LOG_LEVEL", "info")

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CHATPILOT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("could not read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("could not unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the struct tags and formats failures into one readable
// error. Programmatically built configs should call this before use.
func (c *Config) Validate() error {
	err := getValidator().Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("config validation: %w", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("field '%s' failed on the '%s' tag", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("config validation: %s", strings.Join(msgs, "; "))
}

// Default returns a Config with the same defaults Load applies, pointed at
// the given base URL. Convenient for tests and embedding.
func Default(baseURL string) *Config {
	return &Config{
		BaseURL:                 baseURL,
		RequestTimeout:          30 * time.Second,
		StreamTimeout:           5 * time.Minute,
		PlaceholderPoolSize:     4,
		PlaceholderMinAvailable: 2,
		TaskModelEnabled:        true,
		LogLevel:                "info",
	}
}
