// Package config loads server configuration from an optional config file,
// a .env file in development and NEXUS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the server.
type Config struct {
	Env       string          `mapstructure:"env" validate:"oneof=development production test"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Assistant AssistantConfig `mapstructure:"assistant"`
	NodeID    int64           `mapstructure:"node_id" validate:"gte=0,lte=1023"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port" validate:"gt=0,lte=65535"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr is the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// AuthConfig holds session and OAuth redirect configuration.
type AuthConfig struct {
	SessionSecret   string        `mapstructure:"session_secret"`
	SessionTTL      time.Duration `mapstructure:"session_ttl" validate:"gt=0"`
	PublicBaseURL   string        `mapstructure:"public_base_url" validate:"required,url"`
	IntegrationsURL string        `mapstructure:"integrations_url" validate:"required"`
}

// AssistantConfig holds defaults for users without stored AI settings.
type AssistantConfig struct {
	DefaultProvider string `mapstructure:"default_provider" validate:"required"`
	DefaultModel    string `mapstructure:"default_model"`
	ResponseStyle   string `mapstructure:"response_style" validate:"oneof=professional casual concise detailed"`
	HistoryLimit    int    `mapstructure:"history_limit" validate:"gt=0,lte=200"`
	Timezone        string `mapstructure:"timezone" validate:"required"`
	MaxTokens       int64  `mapstructure:"max_tokens" validate:"gte=0"`
}

// Location resolves the default timezone, falling back to UTC.
func (c AssistantConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load reads configuration. In development a .env file is loaded first if
// present; variables already set in the environment win.
func Load() (*Config, error) {
	if strings.TrimSpace(os.Getenv("NEXUS_ENV")) != "production" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigName("nexus")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/nexus")

	v.SetEnvPrefix("NEXUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// MissingSecrets lists required secret variables that are unset or too weak.
func (c *Config) MissingSecrets() []string {
	if len(c.Auth.SessionSecret) < 16 {
		return []string{"NEXUS_AUTH_SESSION_SECRET"}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("node_id", 1)

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8086)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "90s")

	v.SetDefault("database.path", "nexus.db")

	v.SetDefault("auth.session_secret", "")
	v.SetDefault("auth.session_ttl", "168h")
	v.SetDefault("auth.public_base_url", "http://localhost:8086")
	v.SetDefault("auth.integrations_url", "/integrations")

	v.SetDefault("assistant.default_provider", "gemini")
	v.SetDefault("assistant.default_model", "")
	v.SetDefault("assistant.response_style", "professional")
	v.SetDefault("assistant.history_limit", 20)
	v.SetDefault("assistant.timezone", "UTC")
	v.SetDefault("assistant.max_tokens", 1024)
}
