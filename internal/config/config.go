package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/radio-control/ranger/internal/audit"
	"github.com/radio-control/ranger/internal/logging"
	"github.com/radio-control/ranger/internal/telemetry"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RANGER"

// Config represents the complete ranger configuration
type Config struct {
	Ranging   RangingConfig   `mapstructure:"ranging"`
	Adapter   AdapterConfig   `mapstructure:"adapter"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Audit     AuditConfig     `mapstructure:"audit"`
}

// RangingConfig controls the session manager and worker
type RangingConfig struct {
	// CacheCapacity is the number of devices a ranging session retains
	CacheCapacity int `mapstructure:"cache_capacity"`
	// CommandQueueDepth bounds commands waiting for the worker
	CommandQueueDepth int `mapstructure:"command_queue_depth"`
	// BindTimeout bounds the bind handshake
	BindTimeout time.Duration `mapstructure:"bind_timeout"`
}

// AdapterConfig selects the scanning backend
type AdapterConfig struct {
	// Backend is one of "fake", "bluez", "tinygo"
	Backend string `mapstructure:"backend"`
	// Device names the radio, e.g. hci0
	Device string `mapstructure:"device"`
	// ScenarioFile is replayed by the fake backend while scanning
	ScenarioFile string `mapstructure:"scenario_file"`
}

// AuthConfig controls bind tokens
type AuthConfig struct {
	// BindSecret signs bind tokens; empty generates a random secret per process
	BindSecret string `mapstructure:"bind_secret"`
	// TokenTTL is the bind token lifetime; 0 disables expiry
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// TelemetryConfig controls the event hub
type TelemetryConfig struct {
	EventBufferSize  int `mapstructure:"event_buffer_size"`
	SubscriberBuffer int `mapstructure:"subscriber_buffer"`
}

// LoggingConfig controls the process logger
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// AuditConfig controls the audit trail; an empty File disables it
type AuditConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Ranging: RangingConfig{
			CacheCapacity:     20,
			CommandQueueDepth: 16,
			BindTimeout:       5 * time.Second,
		},
		Adapter: AdapterConfig{
			Backend: "fake",
			Device:  "hci0",
		},
		Telemetry: TelemetryConfig{
			EventBufferSize:  telemetry.DefaultEventBufferSize,
			SubscriberBuffer: telemetry.DefaultSubscriberBuffer,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Audit: AuditConfig{
			MaxSizeMB:  10,
			MaxBackups: 5,
		},
	}
}

// SetDefaults registers default values with v
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("ranging.cache_capacity", defaults.Ranging.CacheCapacity)
	v.SetDefault("ranging.command_queue_depth", defaults.Ranging.CommandQueueDepth)
	v.SetDefault("ranging.bind_timeout", defaults.Ranging.BindTimeout)

	v.SetDefault("adapter.backend", defaults.Adapter.Backend)
	v.SetDefault("adapter.device", defaults.Adapter.Device)
	v.SetDefault("adapter.scenario_file", defaults.Adapter.ScenarioFile)

	v.SetDefault("auth.bind_secret", defaults.Auth.BindSecret)
	v.SetDefault("auth.token_ttl", defaults.Auth.TokenTTL)

	v.SetDefault("telemetry.event_buffer_size", defaults.Telemetry.EventBufferSize)
	v.SetDefault("telemetry.subscriber_buffer", defaults.Telemetry.SubscriberBuffer)

	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.file", defaults.Logging.File)
	v.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", defaults.Logging.MaxAgeDays)
	v.SetDefault("logging.compress", defaults.Logging.Compress)

	v.SetDefault("audit.file", defaults.Audit.File)
	v.SetDefault("audit.max_size_mb", defaults.Audit.MaxSizeMB)
	v.SetDefault("audit.max_backups", defaults.Audit.MaxBackups)
}

// Loader merges configuration layers held in its own viper instance.
type Loader struct {
	v *viper.Viper

	mu      sync.Mutex
	current *Config
}

// NewLoader creates a loader with defaults and environment overrides wired.
func NewLoader() *Loader {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// Viper exposes the underlying instance so callers can bind flags.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load reads path (if non-empty), merges all layers and validates the result.
func (l *Loader) Load(path string) (*Config, error) {
	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.current = &cfg
	l.mu.Unlock()
	return &cfg, nil
}

// Current returns the last successfully loaded configuration.
func (l *Loader) Current() *Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Watch reloads the configuration file whenever it changes and reports the
// result. A reload that fails validation keeps Current unchanged.
func (l *Loader) Watch(onChange func(cfg *Config, err error)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		onChange(cfg, err)
	})
	l.v.WatchConfig()
}

// LoggingOptions converts the logging section for logging.NewLogger.
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{
		Level:      c.Logging.Level,
		File:       c.Logging.File,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
		Compress:   c.Logging.Compress,
	}
}

// AuditOptions converts the audit section for audit.NewLogger.
func (c *Config) AuditOptions() audit.Options {
	return audit.Options{
		File:       c.Audit.File,
		MaxSizeMB:  c.Audit.MaxSizeMB,
		MaxBackups: c.Audit.MaxBackups,
	}
}

// TelemetryOptions converts the telemetry section for telemetry.NewHub.
func (c *Config) TelemetryOptions() telemetry.Options {
	return telemetry.Options{
		EventBufferSize:  c.Telemetry.EventBufferSize,
		SubscriberBuffer: c.Telemetry.SubscriberBuffer,
	}
}
