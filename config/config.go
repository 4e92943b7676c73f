// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	Provider  ProviderConfig  `yaml:"provider"`
	Internal  InternalConfig  `yaml:"internal"`
	Surfacing SurfacingConfig `yaml:"surfacing"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig configures the canonical store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite"
	DSN    string `yaml:"dsn"`
}

// CacheConfig configures the billing cache backend.
// Use "memory" for the in-process cache or "redis" for a shared one.
type CacheConfig struct {
	Mode  string      `yaml:"mode"` // "memory" or "redis"
	Redis RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig configures the Redis cache backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
}

// ProviderConfig configures the payment provider.
type ProviderConfig struct {
	Name          string `yaml:"name"` // "stripe"
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
}

// InternalConfig configures the signed service-to-service endpoints.
type InternalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Secret  string `yaml:"secret"`
}

// SurfacingConfig configures where entitlements are resolved from.
// Use "local" to serve from the canonical store or "remote" to delegate
// to a sibling service.
type SurfacingConfig struct {
	Mode    string        `yaml:"mode"` // "local" or "remote"
	URL     string        `yaml:"url,omitempty"`
	Secret  string        `yaml:"secret,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // Enable /metrics endpoint
	Path    string `yaml:"path"`    // Custom path (default: /metrics)
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(&cfg)

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
// This is useful for Docker deployments where no config file is needed.
//
// Environment variables:
//
//	BILLGATE_SERVER_HOST             - Server host (default: 0.0.0.0)
//	BILLGATE_SERVER_PORT             - Server port (default: 8080)
//	BILLGATE_DATABASE_DSN            - Database path (default: billgate.db)
//	BILLGATE_CACHE_MODE              - Cache mode: memory or redis (default: memory)
//	BILLGATE_CACHE_REDIS_ADDR        - Redis address for cache.mode=redis
//	BILLGATE_PROVIDER_SECRET_KEY     - Payment provider API key (required)
//	BILLGATE_PROVIDER_WEBHOOK_SECRET - Webhook signing secret (required)
//	BILLGATE_INTERNAL_SECRET         - Shared secret for internal endpoints
//	BILLGATE_SURFACING_MODE          - Surfacing mode: local or remote (default: local)
//	BILLGATE_LOG_LEVEL               - Log level: debug, info, warn, error (default: info)
//	BILLGATE_LOG_FORMAT              - Log format: json or console (default: json)
//	BILLGATE_METRICS_ENABLED         - Enable /metrics endpoint (default: true)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	cfg.Metrics.Enabled = true

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback tries to load from file, falls back to environment variables.
// This is the recommended method for Docker deployments.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	if HasEnvConfig() {
		return LoadFromEnv()
	}

	return nil, fmt.Errorf("no configuration found: provide config file or set BILLGATE_PROVIDER_SECRET_KEY")
}

// HasEnvConfig returns true if essential environment variables are set.
func HasEnvConfig() bool {
	return os.Getenv("BILLGATE_PROVIDER_SECRET_KEY") != ""
}

// applyEnvOverrides applies BILLGATE_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := os.Getenv("BILLGATE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("BILLGATE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("BILLGATE_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("BILLGATE_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	// Database configuration
	if v := os.Getenv("BILLGATE_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("BILLGATE_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	// Cache configuration
	if v := os.Getenv("BILLGATE_CACHE_MODE"); v != "" {
		cfg.Cache.Mode = v
	}
	if v := os.Getenv("BILLGATE_CACHE_REDIS_ADDR"); v != "" {
		cfg.Cache.Redis.Addr = v
	}
	if v := os.Getenv("BILLGATE_CACHE_REDIS_PASSWORD"); v != "" {
		cfg.Cache.Redis.Password = v
	}
	if v := os.Getenv("BILLGATE_CACHE_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.Redis.DB = n
		}
	}

	// Provider configuration
	if v := os.Getenv("BILLGATE_PROVIDER_NAME"); v != "" {
		cfg.Provider.Name = v
	}
	if v := os.Getenv("BILLGATE_PROVIDER_SECRET_KEY"); v != "" {
		cfg.Provider.SecretKey = v
	}
	if v := os.Getenv("BILLGATE_PROVIDER_WEBHOOK_SECRET"); v != "" {
		cfg.Provider.WebhookSecret = v
	}

	// Internal endpoint configuration
	if v := os.Getenv("BILLGATE_INTERNAL_ENABLED"); v != "" {
		cfg.Internal.Enabled = parseBool(v)
	}
	if v := os.Getenv("BILLGATE_INTERNAL_SECRET"); v != "" {
		cfg.Internal.Secret = v
	}

	// Surfacing configuration
	if v := os.Getenv("BILLGATE_SURFACING_MODE"); v != "" {
		cfg.Surfacing.Mode = v
	}
	if v := os.Getenv("BILLGATE_SURFACING_URL"); v != "" {
		cfg.Surfacing.URL = v
	}
	if v := os.Getenv("BILLGATE_SURFACING_SECRET"); v != "" {
		cfg.Surfacing.Secret = v
	}
	if v := os.Getenv("BILLGATE_SURFACING_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Surfacing.Timeout = d
		}
	}

	// Logging configuration
	if v := os.Getenv("BILLGATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BILLGATE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("BILLGATE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("BILLGATE_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "billgate.db"
	}

	if cfg.Cache.Mode == "" {
		cfg.Cache.Mode = "memory"
	}

	if cfg.Provider.Name == "" {
		cfg.Provider.Name = "stripe"
	}

	if cfg.Surfacing.Mode == "" {
		cfg.Surfacing.Mode = "local"
	}
	if cfg.Surfacing.Timeout == 0 {
		cfg.Surfacing.Timeout = 10 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	if cfg.Provider.Name != "stripe" {
		return fmt.Errorf("provider.name must be 'stripe', got %q", cfg.Provider.Name)
	}
	if cfg.Provider.SecretKey == "" {
		return fmt.Errorf("provider.secret_key is required")
	}
	if cfg.Provider.WebhookSecret == "" {
		return fmt.Errorf("provider.webhook_secret is required")
	}

	if cfg.Database.Driver != "sqlite" {
		return fmt.Errorf("database.driver must be 'sqlite', got %q", cfg.Database.Driver)
	}

	validCacheModes := map[string]bool{"memory": true, "redis": true}
	if !validCacheModes[cfg.Cache.Mode] {
		return fmt.Errorf("cache.mode must be 'memory' or 'redis', got %q", cfg.Cache.Mode)
	}
	if cfg.Cache.Mode == "redis" && cfg.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache.redis.addr is required when cache.mode is 'redis'")
	}

	validSurfacingModes := map[string]bool{"local": true, "remote": true}
	if !validSurfacingModes[cfg.Surfacing.Mode] {
		return fmt.Errorf("surfacing.mode must be 'local' or 'remote', got %q", cfg.Surfacing.Mode)
	}
	if cfg.Surfacing.Mode == "remote" {
		if cfg.Surfacing.URL == "" {
			return fmt.Errorf("surfacing.url is required when surfacing.mode is 'remote'")
		}
		if cfg.Surfacing.Secret == "" {
			return fmt.Errorf("surfacing.secret is required when surfacing.mode is 'remote'")
		}
	}

	if cfg.Internal.Enabled && cfg.Internal.Secret == "" {
		return fmt.Errorf("internal.secret is required when internal.enabled is true")
	}

	return nil
}
