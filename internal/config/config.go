package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Auth       AuthConfig       `mapstructure:"auth"`
	CORS       CORSConfig       `mapstructure:"cors"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Supabase   SupabaseConfig   `mapstructure:"supabase"`
	Queue      QueueConfig      `mapstructure:"queue"`
	UserConfig UserConfigConfig `mapstructure:"user_config"`
	Notice     NoticeConfig     `mapstructure:"notice"`
	Locale     LocaleConfig     `mapstructure:"locale"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// AuthConfig holds API key authentication settings.
type AuthConfig struct {
	APIKeys []string `mapstructure:"api_keys"`
}

// CORSConfig holds CORS policy settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// RateLimitConfig holds rate limiting settings.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SupabaseConfig holds Supabase project settings.
type SupabaseConfig struct {
	URL        string `mapstructure:"url"`
	ServiceKey string `mapstructure:"service_key"`
}

// QueueConfig holds async queue settings.
type QueueConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	MaxRetry    int `mapstructure:"max_retry"`
}

// UserConfigConfig selects and configures the user config backend.
type UserConfigConfig struct {
	// Backend is "http" (boards server API) or "supabase".
	Backend    string `mapstructure:"backend"`
	BaseURL    string `mapstructure:"base_url"`
	Token      string `mapstructure:"token"`
	TimeoutSec int    `mapstructure:"timeout_sec"`
}

// Timeout returns the request timeout of the HTTP backend.
func (c UserConfigConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// NoticeConfig holds card limit notice settings (durations as seconds for YAML/env compat).
type NoticeConfig struct {
	RecheckIntervalSec int    `mapstructure:"recheck_interval_sec"`
	DismissTimeoutSec  int    `mapstructure:"dismiss_timeout_sec"`
	ProfileCacheTTLSec int    `mapstructure:"profile_cache_ttl_sec"`
	DismissMaxPerHour  int    `mapstructure:"dismiss_max_per_hour"`
	PricingURL         string `mapstructure:"pricing_url"`
}

// LocaleConfig holds localisation settings.
type LocaleConfig struct {
	Default string `mapstructure:"default"`
}

// Load reads configuration from config.yaml and environment variables.
// Environment variables use the BOARDNOTICE_ prefix and underscore separators.
// Example: BOARDNOTICE_SERVER_PORT overrides server.port in config.yaml.
func Load() (*Config, error) {
	v := viper.New()

	// Config file settings
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Load .env file if it exists
	_ = godotenv.Load()

	// Environment variable settings
	v.SetEnvPrefix("BOARDNOTICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional, env vars can provide everything)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Handle comma-separated API keys from env var
	if apiKeysStr := v.GetString("auth.api_keys"); apiKeysStr != "" && len(cfg.Auth.APIKeys) == 0 {
		keys := strings.Split(apiKeysStr, ",")
		for i := range keys {
			keys[i] = strings.TrimSpace(keys[i])
		}
		cfg.Auth.APIKeys = keys
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8082)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("log.level", "info")
	// Keys without a default are invisible to AutomaticEnv during Unmarshal.
	v.SetDefault("auth.api_keys", []string{})
	v.SetDefault("supabase.url", "")
	v.SetDefault("supabase.service_key", "")
	v.SetDefault("user_config.token", "")
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT"})
	v.SetDefault("cors.allowed_headers", []string{"Content-Type", "X-API-Key", "X-User-ID", "Accept-Language"})
	v.SetDefault("rate_limit.requests_per_second", 10)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.max_retry", 5)
	v.SetDefault("user_config.backend", "http")
	v.SetDefault("user_config.base_url", "http://localhost:8000")
	v.SetDefault("user_config.timeout_sec", 10)
	v.SetDefault("notice.recheck_interval_sec", 300) // 5 minutes
	v.SetDefault("notice.dismiss_timeout_sec", 15)
	v.SetDefault("notice.profile_cache_ttl_sec", 3600)
	v.SetDefault("notice.dismiss_max_per_hour", 20)
	v.SetDefault("notice.pricing_url", "https://mattermost.com/pricing")
	v.SetDefault("locale.default", "en")
}

func (c *Config) validate() error {
	switch c.UserConfig.Backend {
	case "http":
		if c.UserConfig.BaseURL == "" {
			return fmt.Errorf("user_config.base_url is required for the http backend")
		}
	case "supabase":
		if c.Supabase.URL == "" {
			return fmt.Errorf("supabase.url is required for the supabase backend")
		}
	default:
		return fmt.Errorf("unknown user_config.backend %q", c.UserConfig.Backend)
	}
	if c.Notice.RecheckIntervalSec <= 0 {
		return fmt.Errorf("notice.recheck_interval_sec must be positive")
	}
	return nil
}

// RecheckInterval returns the hidden gate recheck period.
func (c NoticeConfig) RecheckInterval() time.Duration {
	return time.Duration(c.RecheckIntervalSec) * time.Second
}

// DismissTimeout returns the deadline of a background snooze call.
func (c NoticeConfig) DismissTimeout() time.Duration {
	return time.Duration(c.DismissTimeoutSec) * time.Second
}

// ProfileCacheTTL returns how long cached profiles live.
func (c NoticeConfig) ProfileCacheTTL() time.Duration {
	return time.Duration(c.ProfileCacheTTLSec) * time.Second
}
