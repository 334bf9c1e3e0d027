package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the automation worker
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Polling   PollingConfig   `yaml:"polling"`
	Campaigns CampaignsConfig `yaml:"campaigns"`
	SES       SESConfig       `yaml:"ses"`
	Logging   LoggingConfig   `yaml:"logging"`
	Ops       OpsConfig       `yaml:"ops"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL                    string `yaml:"url" validate:"required"`
	MaxOpenConns           int    `yaml:"max_open_conns" validate:"gte=1"`
	MaxIdleConns           int    `yaml:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes" validate:"gte=0"`
	// LockMaxConns sizes the separate pool that holds advisory locks when
	// Redis is not configured. Each running job pins one connection.
	LockMaxConns int `yaml:"lock_max_conns" validate:"gte=2"`
}

// ConnMaxLifetime returns the pool connection lifetime as a duration
func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeMinutes) * time.Minute
}

// RedisConfig holds the optional Redis connection used for distributed locks.
// An empty URL falls back to PostgreSQL advisory locks.
type RedisConfig struct {
	URL            string `yaml:"url" validate:"omitempty,url"`
	LockTTLSeconds int    `yaml:"lock_ttl_seconds" validate:"gte=1"`
}

// LockTTL returns the lock TTL as a duration
func (c RedisConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// TrackingConfig holds the public base URL of the click/open tracking endpoint
type TrackingConfig struct {
	BaseURL string `yaml:"base_url" validate:"required,url"`
}

// PollingConfig holds per-job poll intervals
type PollingConfig struct {
	CampaignsIntervalSeconds    int `yaml:"campaigns_interval_seconds" validate:"gte=1"`
	DynamicListsIntervalSeconds int `yaml:"dynamic_lists_interval_seconds" validate:"gte=1"`
}

// CampaignsInterval returns the campaign poll interval as a duration
func (c PollingConfig) CampaignsInterval() time.Duration {
	return time.Duration(c.CampaignsIntervalSeconds) * time.Second
}

// DynamicListsInterval returns the dynamic list poll interval as a duration
func (c PollingConfig) DynamicListsInterval() time.Duration {
	return time.Duration(c.DynamicListsIntervalSeconds) * time.Second
}

// CampaignsConfig holds step sweep settings
type CampaignsConfig struct {
	BatchSize     int  `yaml:"batch_size" validate:"gte=1,lte=1000"`
	LiquidEnabled bool `yaml:"liquid_enabled"`
}

// SESConfig holds AWS SES API configuration
type SESConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Region         string `yaml:"region" validate:"required_if=Enabled true"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	FromEmail      string `yaml:"from_email" validate:"required_if=Enabled true,omitempty,email"`
	FromName       string `yaml:"from_name"`
	TimeoutSeconds int    `yaml:"timeout_seconds" validate:"gte=1"`
}

// Timeout returns the configured timeout as a duration
func (c SESConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LoggingConfig holds log level and optional rotating file sink settings
type LoggingConfig struct {
	Level      string `yaml:"level" validate:"oneof=debug info warn warning error DEBUG INFO WARN WARNING ERROR"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"gte=0"`
	Compress   bool   `yaml:"compress"`
	RedactPII  *bool  `yaml:"redact_pii"`
}

// Redact reports whether emails are masked in logs. Defaults to true.
func (c LoggingConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// OpsConfig holds the ops HTTP server settings
type OpsConfig struct {
	Addr           string   `yaml:"addr"`
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" validate:"dive,url"`
}

// Load reads and parses the configuration file. An empty path yields the
// defaults, leaving everything else to environment overrides.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetimeMinutes == 0 {
		cfg.Database.ConnMaxLifetimeMinutes = 30
	}
	if cfg.Database.LockMaxConns == 0 {
		cfg.Database.LockMaxConns = 4
	}
	if cfg.Redis.LockTTLSeconds == 0 {
		cfg.Redis.LockTTLSeconds = 300
	}
	if cfg.Polling.CampaignsIntervalSeconds == 0 {
		cfg.Polling.CampaignsIntervalSeconds = 60
	}
	if cfg.Polling.DynamicListsIntervalSeconds == 0 {
		cfg.Polling.DynamicListsIntervalSeconds = 300
	}
	if cfg.Campaigns.BatchSize == 0 {
		cfg.Campaigns.BatchSize = 50
	}
	if cfg.SES.TimeoutSeconds == 0 {
		cfg.SES.TimeoutSeconds = 30
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-west-2"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = 100
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 5
	}
	if cfg.Logging.MaxAgeDays == 0 {
		cfg.Logging.MaxAgeDays = 28
	}
	if cfg.Ops.Addr == "" {
		cfg.Ops.Addr = ":9090"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets can
// live in .env locally and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("TRACKING_BASE_URL"); v != "" {
		cfg.Tracking.BaseURL = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}
	if v := os.Getenv("AWS_SES_FROM_EMAIL"); v != "" {
		cfg.SES.FromEmail = v
		cfg.SES.Enabled = true
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}
	if v := os.Getenv("OPS_ADDR"); v != "" {
		cfg.Ops.Addr = v
		cfg.Ops.Enabled = true
	}
	if v := os.Getenv("OPS_ALLOWED_ORIGINS"); v != "" {
		cfg.Ops.AllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("CAMPAIGN_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("CAMPAIGN_BATCH_SIZE: %w", err)
		}
		cfg.Campaigns.BatchSize = n
	}

	return cfg, nil
}

var validate = validator.New()

// Validate checks the loaded configuration against its struct tags.
func (cfg *Config) Validate() error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
