// Package common provides shared configuration, logging, and versioning
// utilities for the operation scheduler.
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for the scheduler process.
type Config struct {
	Environment string        `toml:"environment"`
	Server      ServerConfig  `toml:"server"`
	Queue       QueueConfig   `toml:"queue"`
	AgentLock   AgentLockConfig `toml:"agent_lock"`
	Browser     BrowserConfig `toml:"browser"`
	Store       StoreConfig   `toml:"store"`
	Auth        AuthConfig    `toml:"auth"`
	Logging     LoggingConfig `toml:"logging"`
}

// ServerConfig holds the admin HTTP surface configuration.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// QueueConfig holds priority-queue tuning knobs.
type QueueConfig struct {
	Workers          int    `toml:"workers"`           // number of concurrent processor goroutines
	RemoveOnComplete int    `toml:"remove_on_complete"` // not read by the queue; terminal jobs are kept without a bound
	RemoveOnFail     int    `toml:"remove_on_fail"`
	BaseBackoff      string `toml:"base_backoff"`      // e.g. "2s"; RequeueDelay uses a fixed 2s base and does not read this
	MaxBackoff       string `toml:"max_backoff"`       // e.g. "30s"; RequeueDelay uses a fixed 30s cap and does not read this
}

// GetBaseBackoff parses the configured base backoff, defaulting to 2s.
func (c *QueueConfig) GetBaseBackoff() time.Duration {
	d, err := time.ParseDuration(c.BaseBackoff)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

// GetMaxBackoff parses the configured backoff cap, defaulting to 30s.
func (c *QueueConfig) GetMaxBackoff() time.Duration {
	d, err := time.ParseDuration(c.MaxBackoff)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// GetWorkers returns the configured worker count, defaulting to 5.
func (c *QueueConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 5
	}
	return c.Workers
}

// AgentLockConfig holds preemption-poll tuning knobs.
type AgentLockConfig struct {
	PollInterval      string `toml:"poll_interval"`      // default 500ms
	PreemptionTimeout string `toml:"preemption_timeout"` // default 30s
}

// GetPollInterval parses the configured poll interval, defaulting to 500ms.
func (c *AgentLockConfig) GetPollInterval() time.Duration {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// GetPreemptionTimeout parses the configured preemption budget, defaulting to 30s.
func (c *AgentLockConfig) GetPreemptionTimeout() time.Duration {
	d, err := time.ParseDuration(c.PreemptionTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// BrowserConfig holds the in-process reference browser-pool implementation's knobs.
type BrowserConfig struct {
	AcquireRateLimit float64 `toml:"acquire_rate_limit"` // acquires/sec allowed per agent before throttling
	AcquireBurst     int     `toml:"acquire_burst"`
}

// StoreConfig holds persistent-store connection configuration.
type StoreConfig struct {
	Address   string `toml:"address"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
}

// AuthConfig holds bearer-token configuration for the operator HTTP surface.
type AuthConfig struct {
	JWTSecret   string `toml:"jwt_secret"`
	TokenExpiry string `toml:"token_expiry"`
}

// GetTokenExpiry parses the configured token expiry, defaulting to 24h.
func (c *AuthConfig) GetTokenExpiry() time.Duration {
	d, err := time.ParseDuration(c.TokenExpiry)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string   `toml:"level"`
	Format     string   `toml:"format"`
	Outputs    []string `toml:"outputs"`
	FilePath   string   `toml:"file_path"`
	MaxSizeMB  int      `toml:"max_size_mb"`
	MaxBackups int      `toml:"max_backups"`
}

// NewDefaultConfig returns a Config with sensible defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8090,
		},
		Queue: QueueConfig{
			Workers:          5,
			RemoveOnComplete: 500,
			RemoveOnFail:     1000,
			BaseBackoff:      "2s",
			MaxBackoff:       "30s",
		},
		AgentLock: AgentLockConfig{
			PollInterval:      "500ms",
			PreemptionTimeout: "30s",
		},
		Browser: BrowserConfig{
			AcquireRateLimit: 2,
			AcquireBurst:     4,
		},
		Store: StoreConfig{
			Address:   "ws://localhost:8000/rpc",
			Namespace: "scheduler",
			Database:  "scheduler",
			Username:  "root",
			Password:  "root",
		},
		Auth: AuthConfig{
			JWTSecret:   "dev-jwt-secret-change-in-production",
			TokenExpiry: "24h",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Outputs:    []string{"console"},
			FilePath:   "./logs/scheduler.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// LoadConfig loads configuration from files with environment overrides.
// Later paths override earlier ones; missing files are skipped.
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)
	return config, nil
}

// applyEnvOverrides applies SCHED_* environment variable overrides to config.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("SCHED_ENV"); env != "" {
		config.Environment = env
	}
	if host := os.Getenv("SCHED_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SCHED_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if level := os.Getenv("SCHED_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if workers := os.Getenv("SCHED_QUEUE_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil && n > 0 {
			config.Queue.Workers = n
		}
	}
	if addr := os.Getenv("SCHED_STORE_ADDRESS"); addr != "" {
		config.Store.Address = addr
	}
	if ns := os.Getenv("SCHED_STORE_NAMESPACE"); ns != "" {
		config.Store.Namespace = ns
	}
	if db := os.Getenv("SCHED_STORE_DATABASE"); db != "" {
		config.Store.Database = db
	}
	if secret := os.Getenv("SCHED_AUTH_JWT_SECRET"); secret != "" {
		config.Auth.JWTSecret = secret
	}
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ValidateRequired returns the names of required fields that are unset or
// left at insecure defaults. Used at startup to fail fast in production.
func (c *Config) ValidateRequired() []string {
	var missing []string
	if c.Store.Address == "" {
		missing = append(missing, "store.address")
	}
	if c.Store.Namespace == "" {
		missing = append(missing, "store.namespace")
	}
	if c.Store.Database == "" {
		missing = append(missing, "store.database")
	}
	if c.Auth.JWTSecret == "" || c.Auth.JWTSecret == "dev-jwt-secret-change-in-production" {
		missing = append(missing, "auth.jwt_secret")
	}
	return missing
}
