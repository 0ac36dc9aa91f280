// ABOUTME: Configuration loading and parsing for claw-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete claw-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Webhooks  WebhooksConfig  `yaml:"webhooks"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds request authentication configuration
type AuthConfig struct {
	// AdminJWTSecret signs admin tokens; claw requests authenticate with
	// signatures, not JWTs.
	AdminJWTSecret string `yaml:"admin_jwt_secret"`

	TimestampSkew time.Duration `yaml:"-"`
	NonceTTL      time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	TimestampSkewRaw string `yaml:"timestamp_skew"`
	NonceTTLRaw      string `yaml:"nonce_ttl"`
}

// SchedulerConfig holds maintenance task timing configuration
type SchedulerConfig struct {
	HeartbeatInterval time.Duration `yaml:"-"`
	HeartbeatTimeout  time.Duration `yaml:"-"`
	DecayInterval     time.Duration `yaml:"-"`
	InboxRetention    time.Duration `yaml:"-"`

	TrustDecayCron string `yaml:"trust_decay_cron"`
	CleanupCron    string `yaml:"cleanup_cron"`

	// Raw string values for YAML unmarshaling
	HeartbeatIntervalRaw string `yaml:"heartbeat_interval"`
	HeartbeatTimeoutRaw  string `yaml:"heartbeat_timeout"`
	DecayIntervalRaw     string `yaml:"decay_interval"`
	InboxRetentionRaw    string `yaml:"inbox_retention"`
}

// WebhooksConfig holds outbound webhook delivery configuration
type WebhooksConfig struct {
	Endpoints []WebhookEndpoint `yaml:"endpoints"`

	Timeout time.Duration `yaml:"-"`

	TimeoutRaw string `yaml:"timeout"`
}

// WebhookEndpoint is one outbound event subscriber
type WebhookEndpoint struct {
	URL string `yaml:"url"`
	// Events filters which event names are delivered; empty means all.
	Events []string `yaml:"events"`
	// Secret is sent as a bearer token when set.
	Secret string `yaml:"secret"`
}

// RateLimitConfig holds per-claw request rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	Rate    float64 `yaml:"rate"`
	Burst   int     `yaml:"burst"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8080"
	}
	if c.Auth.TimestampSkew == 0 {
		c.Auth.TimestampSkew = 5 * time.Minute
	}
	if c.Auth.NonceTTL == 0 {
		c.Auth.NonceTTL = 10 * time.Minute
	}
	if c.Scheduler.HeartbeatInterval == 0 {
		c.Scheduler.HeartbeatInterval = time.Hour
	}
	if c.Scheduler.HeartbeatTimeout == 0 {
		c.Scheduler.HeartbeatTimeout = 24 * time.Hour
	}
	if c.Scheduler.DecayInterval == 0 {
		c.Scheduler.DecayInterval = 24 * time.Hour
	}
	if c.Scheduler.InboxRetention == 0 {
		c.Scheduler.InboxRetention = 30 * 24 * time.Hour
	}
	if c.Scheduler.TrustDecayCron == "" {
		c.Scheduler.TrustDecayCron = "0 0 1 * *"
	}
	if c.Scheduler.CleanupCron == "" {
		c.Scheduler.CleanupCron = "0 3 * * *"
	}
	if c.Webhooks.Timeout == 0 {
		c.Webhooks.Timeout = 10 * time.Second
	}
	if c.RateLimit.Rate == 0 {
		c.RateLimit.Rate = 10
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 20
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	for i, ep := range c.Webhooks.Endpoints {
		if ep.URL == "" {
			return fmt.Errorf("webhooks.endpoints[%d].url is required", i)
		}
	}
	if c.RateLimit.Enabled && c.RateLimit.Rate <= 0 {
		return fmt.Errorf("rate_limit.rate must be positive")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"auth.timestamp_skew", cfg.Auth.TimestampSkewRaw, &cfg.Auth.TimestampSkew},
		{"auth.nonce_ttl", cfg.Auth.NonceTTLRaw, &cfg.Auth.NonceTTL},
		{"scheduler.heartbeat_interval", cfg.Scheduler.HeartbeatIntervalRaw, &cfg.Scheduler.HeartbeatInterval},
		{"scheduler.heartbeat_timeout", cfg.Scheduler.HeartbeatTimeoutRaw, &cfg.Scheduler.HeartbeatTimeout},
		{"scheduler.decay_interval", cfg.Scheduler.DecayIntervalRaw, &cfg.Scheduler.DecayInterval},
		{"scheduler.inbox_retention", cfg.Scheduler.InboxRetentionRaw, &cfg.Scheduler.InboxRetention},
		{"webhooks.timeout", cfg.Webhooks.TimeoutRaw, &cfg.Webhooks.Timeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
