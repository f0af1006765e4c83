// Package config loads the engine configuration from the environment, with
// an optional YAML overlay for deployments that prefer files.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Runner   RunnerConfig   `yaml:"runner"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host           string        `yaml:"host" env:"SERVER_HOST,default=0.0.0.0"`
	Port           int           `yaml:"port" env:"SERVER_PORT,default=8080"`
	ReadTimeout    time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT,default=15s"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT,default=30s"`
	RateLimit      float64       `yaml:"rate_limit" env:"SERVER_RATE_LIMIT,default=50"`
	RateLimitBurst int           `yaml:"rate_limit_burst" env:"SERVER_RATE_LIMIT_BURST,default=100"`
}

// DatabaseConfig controls PostgreSQL access. An empty DSN selects the
// in-memory store.
type DatabaseConfig struct {
	Driver          string `yaml:"driver" env:"DATABASE_DRIVER,default=postgres"`
	DSN             string `yaml:"dsn" env:"DATABASE_DSN"`
	MaxOpenConns    int    `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS,default=10"`
	MaxIdleConns    int    `yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS,default=5"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME,default=300"`
}

// RedisConfig controls the replay cache backend. An empty address selects
// the in-memory replay store.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB,default=0"`
}

// WebhookConfig controls gatekeeper tolerances.
type WebhookConfig struct {
	TimestampTolerance time.Duration `yaml:"timestamp_tolerance" env:"WEBHOOK_TIMESTAMP_TOLERANCE,default=60s"`
	ReplayTTL          time.Duration `yaml:"replay_ttl" env:"WEBHOOK_REPLAY_TTL,default=120s"`
}

// RunnerConfig controls the background runner.
type RunnerConfig struct {
	WakeInterval time.Duration `yaml:"wake_interval" env:"RUNNER_WAKE_INTERVAL,default=5s"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"LOG_LEVEL,default=info"`
	Format     string `yaml:"format" env:"LOG_FORMAT,default=json"`
	Output     string `yaml:"output" env:"LOG_OUTPUT,default=stdout"`
	FilePrefix string `yaml:"file_prefix" env:"LOG_FILE_PREFIX"`
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first if present. When CONFIG_FILE names a YAML
// file, its values overlay the environment-derived ones.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := overlayFile(&cfg, path); err != nil {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromPath reads configuration from a YAML file over environment
// defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if err := overlayFile(cfg, path); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Database.DSN != "" && c.Database.Driver == "" {
		return fmt.Errorf("database driver is required when a dsn is set")
	}
	if c.Webhook.TimestampTolerance <= 0 {
		return fmt.Errorf("webhook timestamp tolerance must be positive")
	}
	if c.Webhook.ReplayTTL < c.Webhook.TimestampTolerance {
		return fmt.Errorf("webhook replay ttl must cover the timestamp tolerance")
	}
	return nil
}
