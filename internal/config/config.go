package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	API       APIConfig       `yaml:"api"`
	Database  DatabaseConfig  `yaml:"database"`
	Campaigns CampaignsConfig `yaml:"campaigns"`
	Segments  SegmentsConfig  `yaml:"segments"`
	Runner    RunnerConfig    `yaml:"runner"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Notifier  NotifierConfig  `yaml:"notifier"`
	Lease     LeaseConfig     `yaml:"lease"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig contains the management HTTP server settings
type ServerConfig struct {
	ListenAddr   string        `yaml:"listen_addr"`
	PublicURL    string        `yaml:"public_url"` // Base URL for click-tracking links
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// APIConfig contains management API authentication
type APIConfig struct {
	KeyHash string `yaml:"key_hash"` // bcrypt hash of the API key; empty disables auth
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// CampaignsConfig contains campaign validation settings
type CampaignsConfig struct {
	ScheduleGrace time.Duration `yaml:"schedule_grace"` // How far in the past scheduled_at may be
}

// SegmentsConfig contains segment preview settings
type SegmentsConfig struct {
	SampleSize int `yaml:"sample_size"`
	BatchSize  int `yaml:"batch_size"`
}

// RunnerConfig contains job runner settings
type RunnerConfig struct {
	MaxJobs       int             `yaml:"max_jobs"`    // Jobs running at once
	Concurrency   int             `yaml:"concurrency"` // Notifier calls in flight per job
	SendTimeout   time.Duration   `yaml:"send_timeout"`
	TestRecipient RecipientConfig `yaml:"test_recipient"`
}

// RecipientConfig describes the synthetic recipient used by TEST jobs
type RecipientConfig struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
	Phone string `yaml:"phone"`
}

// SchedulerConfig contains dispatch scheduler settings
type SchedulerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// NotifierConfig selects and configures the delivery channel
type NotifierConfig struct {
	Driver        string        `yaml:"driver"` // log, webhook, smtp, sandbox
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
	Webhook       WebhookConfig `yaml:"webhook"`
	SMTP          SMTPConfig    `yaml:"smtp"`
	Sandbox       SandboxConfig `yaml:"sandbox"`
}

// WebhookConfig contains push/SMS gateway settings
type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Token   string            `yaml:"token"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// SMTPConfig contains outgoing mail settings
type SMTPConfig struct {
	Addr     string     `yaml:"addr"` // host:port
	StartTLS bool       `yaml:"starttls"`
	Username string     `yaml:"username"`
	Password string     `yaml:"password"`
	From     string     `yaml:"from"`
	FromName string     `yaml:"from_name"`
	DKIM     DKIMConfig `yaml:"dkim"`
}

// DKIMConfig contains DKIM signing settings
type DKIMConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Domain   string `yaml:"domain"`
	Selector string `yaml:"selector"`
	KeyFile  string `yaml:"key_file"`
}

// SandboxConfig contains the capture store for the sandbox driver
type SandboxConfig struct {
	Path          string `yaml:"path"`
	SimulateError string `yaml:"simulate_error"` // Email domain whose deliveries fail
}

// LeaseConfig selects the per-campaign dispatch lease backend
type LeaseConfig struct {
	Driver string        `yaml:"driver"` // local, redis
	TTL    time.Duration `yaml:"ttl"`
	Redis  RedisConfig   `yaml:"redis"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled         bool          `yaml:"enabled"`
	ListenAddr      string        `yaml:"listen_addr"`      // Default: :9090
	Path            string        `yaml:"path"`             // Default: /metrics
	CollectInterval time.Duration `yaml:"collect_interval"` // Default: 30s
	AllowedIPs      []string      `yaml:"allowed_ips"`      // IP addresses/CIDRs allowed to access metrics
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads, defaults and validates the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration, applies defaults and validates it
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}

	if c.Database.Path == "" {
		c.Database.Path = "/var/lib/splaro/campaigns.db"
	}

	if c.Campaigns.ScheduleGrace == 0 {
		c.Campaigns.ScheduleGrace = 5 * time.Minute
	}

	if c.Segments.SampleSize == 0 {
		c.Segments.SampleSize = 5
	}
	if c.Segments.BatchSize == 0 {
		c.Segments.BatchSize = 500
	}

	if c.Runner.MaxJobs == 0 {
		c.Runner.MaxJobs = 4
	}
	if c.Runner.Concurrency == 0 {
		c.Runner.Concurrency = 8
	}
	if c.Runner.SendTimeout == 0 {
		c.Runner.SendTimeout = 30 * time.Second
	}
	if c.Runner.TestRecipient.ID == "" {
		c.Runner.TestRecipient.ID = "test-recipient"
	}
	if c.Runner.TestRecipient.Name == "" {
		c.Runner.TestRecipient.Name = "Test Recipient"
	}

	if c.Scheduler.Interval == 0 {
		c.Scheduler.Interval = 60 * time.Second
	}

	if c.Notifier.Driver == "" {
		c.Notifier.Driver = "log"
	}
	if c.Notifier.Burst == 0 {
		c.Notifier.Burst = 1
	}
	if c.Notifier.Webhook.Timeout == 0 {
		c.Notifier.Webhook.Timeout = 15 * time.Second
	}
	if c.Notifier.Sandbox.Path == "" {
		c.Notifier.Sandbox.Path = "/var/lib/splaro/sandbox.db"
	}

	if c.Lease.Driver == "" {
		c.Lease.Driver = "local"
	}
	if c.Lease.TTL == 0 {
		c.Lease.TTL = 30 * time.Second
	}
	if c.Lease.Redis.KeyPrefix == "" {
		c.Lease.Redis.KeyPrefix = "splaro:campaign-lease:"
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.CollectInterval == 0 {
		c.Metrics.CollectInterval = 30 * time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	if c.Server.PublicURL != "" {
		if _, err := url.ParseRequestURI(c.Server.PublicURL); err != nil {
			return fmt.Errorf("invalid server.public_url: %w", err)
		}
	}

	if c.Campaigns.ScheduleGrace < 0 {
		return fmt.Errorf("campaigns.schedule_grace must not be negative")
	}
	if c.Segments.SampleSize < 0 {
		return fmt.Errorf("segments.sample_size must not be negative")
	}
	if c.Runner.MaxJobs < 0 || c.Runner.Concurrency < 0 {
		return fmt.Errorf("runner.max_jobs and runner.concurrency must be positive")
	}
	if c.Scheduler.Interval < time.Second {
		return fmt.Errorf("scheduler.interval must be at least 1s")
	}
	if c.Notifier.RatePerSecond < 0 {
		return fmt.Errorf("notifier.rate_per_second must not be negative")
	}

	if err := c.validateNotifier(); err != nil {
		return err
	}

	switch c.Lease.Driver {
	case "local":
	case "redis":
		if c.Lease.Redis.Addr == "" {
			return fmt.Errorf("lease.redis.addr is required when lease.driver is redis")
		}
	default:
		return fmt.Errorf("invalid lease.driver: %s (must be local or redis)", c.Lease.Driver)
	}

	return nil
}

// validateNotifier validates the selected delivery driver
func (c *Config) validateNotifier() error {
	n := c.Notifier
	switch n.Driver {
	case "log", "sandbox":
	case "webhook":
		if n.Webhook.URL == "" {
			return fmt.Errorf("notifier.webhook.url is required when notifier.driver is webhook")
		}
		if _, err := url.ParseRequestURI(n.Webhook.URL); err != nil {
			return fmt.Errorf("invalid notifier.webhook.url: %w", err)
		}
	case "smtp":
		if n.SMTP.Addr == "" {
			return fmt.Errorf("notifier.smtp.addr is required when notifier.driver is smtp")
		}
		if n.SMTP.From == "" {
			return fmt.Errorf("notifier.smtp.from is required when notifier.driver is smtp")
		}
		if n.SMTP.DKIM.Enabled {
			if n.SMTP.DKIM.Domain == "" || n.SMTP.DKIM.Selector == "" || n.SMTP.DKIM.KeyFile == "" {
				return fmt.Errorf("notifier.smtp.dkim requires domain, selector and key_file")
			}
		}
	default:
		return fmt.Errorf("invalid notifier.driver: %s (must be log, webhook, smtp, or sandbox)", n.Driver)
	}
	return nil
}
