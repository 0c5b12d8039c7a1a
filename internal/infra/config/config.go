// Package config provides configuration loading from YAML files.
package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Log          LogConfig          `yaml:"log"`
	Device       DeviceConfig       `yaml:"device"`
	Catalog      CatalogConfig      `yaml:"catalog"`
	Resolver     ResolverConfig     `yaml:"resolver"`
	Queue        QueueConfig        `yaml:"queue"`
	Automix      AutomixConfig      `yaml:"automix"`
	Playback     PlaybackConfig     `yaml:"playback"`
	Persistence  PersistenceConfig  `yaml:"persistence"`
	Settings     SettingsConfig     `yaml:"settings"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
}

// CatalogConfig represents the external catalog HTTP API.
type CatalogConfig struct {
	BaseURL    string `yaml:"base_url" default:"http://localhost:9000" validate:"url"`
	TimeoutSec int    `yaml:"timeout_sec" default:"10" validate:"gte=1"`
}

// ConnectivityConfig represents the network reachability probe.
type ConnectivityConfig struct {
	ProbeAddr      string `yaml:"probe_addr" default:"1.1.1.1:443"`
	IntervalSec    int    `yaml:"interval_sec" default:"5" validate:"gte=1"`
	DialTimeoutSec int    `yaml:"dial_timeout_sec" default:"3" validate:"gte=1"`
}

// ServerConfig represents the HTTP API server configuration.
type ServerConfig struct {
	Addr string `yaml:"addr" default:":8080"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Output     string `yaml:"output" default:"stdout"`
	Level      string `yaml:"level" default:"info"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" default:"50"`
	MaxBackups int    `yaml:"max_backups" default:"3"`
}

// DeviceConfig represents device codec capabilities.
type DeviceConfig struct {
	SupportedCodecs []string `yaml:"supported_codecs" default:"[\"opus\",\"aac\",\"mp3\"]"`
}

// ResolverConfig represents stream resolution configuration.
// The recovery bounds are empirically chosen upstream; they are exposed
// here instead of being re-derived.
type ResolverConfig struct {
	Quality           string `yaml:"quality" default:"high" validate:"oneof=low medium high"`
	RecoveryWindowSec int    `yaml:"recovery_window_sec" default:"45" validate:"gte=1"`
	MaxRecoveryTries  int    `yaml:"max_recovery_tries" default:"2" validate:"gte=1"`
}

// QueueConfig represents queue engine configuration.
type QueueConfig struct {
	WindowBefore    int `yaml:"window_before" default:"20" validate:"gte=0"`
	WindowAfter     int `yaml:"window_after" default:"50" validate:"gte=0"`
	SettleDelayMs   int `yaml:"settle_delay_ms" default:"2000" validate:"gte=0"`
	LowWaterPaged   int `yaml:"low_water_paged" default:"5" validate:"gte=0"`
	LowWaterNoPages int `yaml:"low_water_no_pages" default:"3" validate:"gte=0"`
}

// AutomixConfig represents automix continuation configuration.
type AutomixConfig struct {
	Enabled  bool `yaml:"enabled" default:"true"`
	PageSize int  `yaml:"page_size" default:"20" validate:"gte=1"`
}

// PlaybackConfig represents playback state machine configuration.
type PlaybackConfig struct {
	MaxConsecutiveErrors int `yaml:"max_consecutive_errors" default:"5" validate:"gte=1"`
	SnapshotIntervalSec  int `yaml:"snapshot_interval_sec" default:"30" validate:"gte=1"`
	PlayingSnapshotSec   int `yaml:"playing_snapshot_sec" default:"10" validate:"gte=1"`
}

// PersistenceConfig represents durable snapshot storage configuration.
type PersistenceConfig struct {
	Backend string      `yaml:"backend" default:"file" validate:"oneof=file redis"`
	Dir     string      `yaml:"dir" default:"data"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig represents the Redis connection used by the redis backend.
type RedisConfig struct {
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" default:"0"`
}

// SettingsConfig represents the reactive user settings source.
type SettingsConfig struct {
	File string `yaml:"file" default:"config/settings.yaml"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Persistence.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Persistence.Redis.Password = v
	}
	if v := os.Getenv("CATALOG_BASE_URL"); v != "" {
		c.Catalog.BaseURL = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	// Custom validation: a playing snapshot more frequent than the base one
	// is the whole point of the second timer
	if c.Playback.PlayingSnapshotSec > c.Playback.SnapshotIntervalSec {
		return errors.New("playing_snapshot_sec must not exceed snapshot_interval_sec")
	}

	return nil
}
