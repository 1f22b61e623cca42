package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. OPTIN_SERVER_PORT
const EnvPrefix = "OPTIN"

// Database drivers
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Database DatabaseConfig `yaml:"database" envconfig:"DATABASE"`
	JWT      JWTConfig      `yaml:"jwt" envconfig:"JWT"`
	Log      LogConfig      `yaml:"log" envconfig:"LOG"`
	Matching MatchingConfig `yaml:"matching" envconfig:"MATCHING"`
	Sweep    SweepConfig    `yaml:"sweep" envconfig:"SWEEP"`
	APNs     APNsConfig     `yaml:"apns" envconfig:"APNS"`
	Archive  ArchiveConfig  `yaml:"archive" envconfig:"ARCHIVE"`
	Metrics  MetricsConfig  `yaml:"metrics" envconfig:"METRICS"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port int    `yaml:"port" split_words:"true"`
	Host string `yaml:"host" split_words:"true"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver   string `yaml:"driver" split_words:"true"`
	Host     string `yaml:"host" split_words:"true"`
	Port     int    `yaml:"port" split_words:"true"`
	User     string `yaml:"user" split_words:"true"`
	Password string `yaml:"password" split_words:"true"`
	DBName   string `yaml:"dbname" split_words:"true"`
	SSLMode  string `yaml:"sslmode" split_words:"true"`
	Migrate  bool   `yaml:"migrate" split_words:"true"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string `yaml:"secret" split_words:"true"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level" split_words:"true"`
	Format string `yaml:"format" split_words:"true"` // console or json
}

// MatchingConfig holds the thresholds of the match engine
type MatchingConfig struct {
	MinOverlapMinutes   int   `yaml:"min_overlap_minutes" split_words:"true"`
	ReminderLeadMinutes []int `yaml:"reminder_lead_minutes" split_words:"true"`
}

// SweepConfig holds the expiry sweep configuration
type SweepConfig struct {
	Schedule     string `yaml:"schedule" split_words:"true"`      // cron spec
	TriggerToken string `yaml:"trigger_token" split_words:"true"` // enables POST /internal/sweep
}

// APNsConfig holds push notification configuration
type APNsConfig struct {
	KeyFile    string `yaml:"key_file" split_words:"true"` // empty disables push delivery
	KeyID      string `yaml:"key_id" split_words:"true"`
	TeamID     string `yaml:"team_id" split_words:"true"`
	Topic      string `yaml:"topic" split_words:"true"`
	Production bool   `yaml:"production" split_words:"true"`
}

// ArchiveConfig holds the S3 archive of elapsed matches
type ArchiveConfig struct {
	Region    string `yaml:"region" split_words:"true"`
	Bucket    string `yaml:"bucket" split_words:"true"` // empty disables archiving
	AccessKey string `yaml:"access_key" split_words:"true"`
	SecretKey string `yaml:"secret_key" split_words:"true"`
	Endpoint  string `yaml:"endpoint" split_words:"true"`
}

// MetricsConfig holds prometheus exposition configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" split_words:"true"`
	Path    string `yaml:"path" split_words:"true"`
}

// Load reads configuration from a YAML file, then applies environment overrides.
// A missing file is not an error: configuration then comes from defaults and the environment.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverPostgres
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Matching.MinOverlapMinutes == 0 {
		c.Matching.MinOverlapMinutes = 15
	}
	if c.Matching.ReminderLeadMinutes == nil {
		c.Matching.ReminderLeadMinutes = []int{60, 10}
	}
	if c.Sweep.Schedule == "" {
		c.Sweep.Schedule = "@every 1m"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate rejects configurations the service cannot run with
func (c *Config) Validate() error {
	if c.Database.Driver != DriverPostgres && c.Database.Driver != DriverMemory {
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt secret is required")
	}
	if c.Matching.MinOverlapMinutes < 1 {
		return fmt.Errorf("min_overlap_minutes must be positive, got %d", c.Matching.MinOverlapMinutes)
	}
	for _, lead := range c.Matching.ReminderLeadMinutes {
		if lead <= 0 {
			return fmt.Errorf("reminder lead times must be positive, got %d", lead)
		}
	}
	if c.APNs.KeyFile != "" && (c.APNs.KeyID == "" || c.APNs.TeamID == "" || c.APNs.Topic == "") {
		return fmt.Errorf("apns key_id, team_id and topic are required with key_file")
	}
	return nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// ReminderLeadTimes returns the reminder lead times as durations
func (c *MatchingConfig) ReminderLeadTimes() []time.Duration {
	leads := make([]time.Duration, 0, len(c.ReminderLeadMinutes))
	for _, m := range c.ReminderLeadMinutes {
		leads = append(leads, time.Duration(m)*time.Minute)
	}
	return leads
}
