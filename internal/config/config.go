package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/bsantraigi/ntfy-agent/internal/logger"
	"github.com/bsantraigi/ntfy-agent/internal/notifier"
	"github.com/bsantraigi/ntfy-agent/internal/tracker"
	"github.com/spf13/viper"
)

// Defaults applied when the config file leaves a field unset.
const (
	DefaultInterval          = 5 * time.Second
	DefaultGraceCycles       = 2
	DefaultStateFile         = "/var/lib/ntfy-agent/state.json"
	DefaultNtfyServer        = "https://ntfy.sh"
	DefaultNtfyTopic         = "phone_only"
	DefaultCrashMinRuntime   = 30 * time.Second
	DefaultCrashCPUThreshold = 1.0
)

// Config represents the top-level TOML structure for the agent daemon.
type Config struct {
	Interval          time.Duration `toml:"interval" mapstructure:"interval"`
	Patterns          []string      `toml:"patterns" mapstructure:"patterns"`
	GraceCycles       int           `toml:"grace_cycles" mapstructure:"grace_cycles"`
	StateFile         string        `toml:"state_file" mapstructure:"state_file"`
	NotifyOnStart     bool          `toml:"notify_on_start" mapstructure:"notify_on_start"`
	PruneAfter        time.Duration `toml:"prune_after" mapstructure:"prune_after"`
	CrashMinRuntime   time.Duration `toml:"crash_min_runtime" mapstructure:"crash_min_runtime"`
	CrashCPUThreshold float64       `toml:"crash_cpu_threshold" mapstructure:"crash_cpu_threshold"`

	GPU     *GPUConfig     `toml:"gpu" mapstructure:"gpu"`
	Ntfy    NtfyConfig     `toml:"ntfy" mapstructure:"ntfy"`
	Log     *LogConfig     `toml:"log" mapstructure:"log"`
	Metrics *MetricsConfig `toml:"metrics" mapstructure:"metrics"`
	History *HistoryConfig `toml:"history" mapstructure:"history"`
	Server  *ServerConfig  `toml:"server" mapstructure:"server"`
}

type GPUConfig struct {
	Enabled bool          `toml:"enabled" mapstructure:"enabled"`
	SMIPath string        `toml:"smi_path" mapstructure:"smi_path"`
	Timeout time.Duration `toml:"timeout" mapstructure:"timeout"`
}

type NtfyConfig struct {
	Server      string        `toml:"server" mapstructure:"server"`
	Topic       string        `toml:"topic" mapstructure:"topic"`
	Priority    string        `toml:"priority" mapstructure:"priority"`
	Tags        string        `toml:"tags" mapstructure:"tags"`
	Token       string        `toml:"token" mapstructure:"token"`
	Timeout     time.Duration `toml:"timeout" mapstructure:"timeout"`
	MaxAttempts int           `toml:"max_attempts" mapstructure:"max_attempts"`
	Backoff     time.Duration `toml:"backoff" mapstructure:"backoff"`
}

type LogConfig struct {
	File       string `toml:"file" mapstructure:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
	Level      string `toml:"level" mapstructure:"level"`
	Color      bool   `toml:"color" mapstructure:"color"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

type HistoryConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	DSN     string `toml:"dsn" mapstructure:"dsn"`
}

type ServerConfig struct {
	Listen  string `toml:"listen" mapstructure:"listen"`
	PidFile string `toml:"pidfile" mapstructure:"pidfile"`
	LogFile string `toml:"logfile" mapstructure:"logfile"`
}

// Load reads a TOML config file and applies defaults and validation.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(filepath.Clean(path))
	v.SetConfigType("toml")

	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("grace_cycles", DefaultGraceCycles)
	v.SetDefault("state_file", DefaultStateFile)
	v.SetDefault("crash_min_runtime", DefaultCrashMinRuntime)
	v.SetDefault("crash_cpu_threshold", DefaultCrashCPUThreshold)
	v.SetDefault("ntfy.server", DefaultNtfyServer)
	v.SetDefault("ntfy.topic", DefaultNtfyTopic)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a Config usable without any file, suitable for
// embedding and tests.
func Default() *Config {
	return &Config{
		Interval:          DefaultInterval,
		GraceCycles:       DefaultGraceCycles,
		StateFile:         DefaultStateFile,
		CrashMinRuntime:   DefaultCrashMinRuntime,
		CrashCPUThreshold: DefaultCrashCPUThreshold,
		Ntfy: NtfyConfig{
			Server: DefaultNtfyServer,
			Topic:  DefaultNtfyTopic,
		},
	}
}

// Validate rejects configs the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	}
	if c.GraceCycles < 0 {
		return fmt.Errorf("grace_cycles must be >= 0, got %d", c.GraceCycles)
	}
	if c.StateFile == "" {
		return fmt.Errorf("state_file must not be empty")
	}
	if c.Ntfy.Server == "" {
		return fmt.Errorf("ntfy.server must not be empty")
	}
	if c.Ntfy.Topic == "" {
		return fmt.Errorf("ntfy.topic must not be empty")
	}
	if c.CrashCPUThreshold < 0 {
		return fmt.Errorf("crash_cpu_threshold must be >= 0, got %g", c.CrashCPUThreshold)
	}
	if c.PruneAfter < 0 {
		return fmt.Errorf("prune_after must be >= 0, got %s", c.PruneAfter)
	}
	if c.Metrics != nil && c.Metrics.Enabled && c.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen required when metrics.enabled")
	}
	if c.History != nil && c.History.Enabled && c.History.DSN == "" {
		return fmt.Errorf("history.dsn required when history.enabled")
	}
	return nil
}

// TrackerConfig converts the crash/grace knobs into the tracker's config.
func (c *Config) TrackerConfig() tracker.Config {
	return tracker.Config{
		GraceCycles:       c.GraceCycles,
		CrashMinRuntime:   c.CrashMinRuntime,
		CrashCPUThreshold: c.CrashCPUThreshold,
	}
}

// NotifierConfig converts the ntfy section into the notifier's config.
func (c *Config) NotifierConfig() notifier.Config {
	return notifier.Config{
		Server:      c.Ntfy.Server,
		Topic:       c.Ntfy.Topic,
		Priority:    c.Ntfy.Priority,
		Tags:        c.Ntfy.Tags,
		Token:       c.Ntfy.Token,
		Timeout:     c.Ntfy.Timeout,
		MaxAttempts: c.Ntfy.MaxAttempts,
		Backoff:     c.Ntfy.Backoff,
	}
}

// LoggerConfig converts the log section into the logger's config.
// A nil section means stderr logging at info level.
func (c *Config) LoggerConfig() logger.Config {
	if c.Log == nil {
		return logger.Config{}
	}
	return logger.Config{
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
		Level:      c.Log.Level,
		Color:      c.Log.Color,
	}
}
