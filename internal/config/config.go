package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	"github.com/wellsgz/pingmon/internal/logging"
)

// MinPollInterval is the shortest interval the monitor accepts between ticks
const MinPollInterval = 100 * time.Millisecond

// Config represents the root configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	Logging LoggingConfig `mapstructure:"logging"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Targets []Target      `mapstructure:"targets"`
}

// ServerConfig holds API server and control socket settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
	Socket  string `mapstructure:"socket"`
}

// MonitorConfig holds engine settings
type MonitorConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	ProbeTimeout   time.Duration `mapstructure:"probe_timeout"`
	MaxHistorySize int           `mapstructure:"max_history_size"`
	Prober         string        `mapstructure:"prober"` // exec, icmp or tcp
	TCPPort        int           `mapstructure:"tcp_port"`
	Autostart      bool          `mapstructure:"autostart"`
}

// LoggingConfig holds log output settings
type LoggingConfig struct {
	Format string `mapstructure:"format"`
	Level  string `mapstructure:"level"`
}

// ArchiveConfig holds settings for the outcome recorders
type ArchiveConfig struct {
	LogDir     string    `mapstructure:"log_dir"`
	SQLitePath string    `mapstructure:"sqlite_path"`
	RRD        RRDConfig `mapstructure:"rrd"`
}

// RRDConfig holds round robin database settings
type RRDConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Dir         string  `mapstructure:"dir"`
	Retention   string  `mapstructure:"retention"`
	Aggregation string  `mapstructure:"aggregation"`
	XFF         float64 `mapstructure:"xff"`
}

// Target represents a monitoring target
type Target struct {
	ID      string `mapstructure:"id" json:"id" yaml:"id"`
	Address string `mapstructure:"address" json:"address" yaml:"address"`
	Label   string `mapstructure:"label" json:"label" yaml:"label"`
	Enabled bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
}

// NewTarget creates an enabled target with a fresh id
func NewTarget(address, label string) Target {
	return Target{
		ID:      uuid.NewString(),
		Address: address,
		Label:   label,
		Enabled: true,
	}
}

// DefaultTargets returns the targets a new installation starts with
func DefaultTargets() []Target {
	return []Target{
		NewTarget("1.1.1.1", "Cloudflare DNS"),
		NewTarget("8.8.8.8", "Google DNS"),
	}
}

// PresetTargets returns well-known targets offered for quick add
func PresetTargets() []Target {
	return []Target{
		NewTarget("1.1.1.1", "Cloudflare DNS"),
		NewTarget("8.8.8.8", "Google DNS"),
		NewTarget("9.9.9.9", "Quad9 DNS"),
		NewTarget("208.67.222.222", "OpenDNS"),
	}
}

// Default returns a configuration populated with defaults and the default targets
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// Defaults only contain scalar values, decoding cannot fail
	_ = v.Unmarshal(&cfg)
	cfg.Targets = DefaultTargets()
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.socket", "")
	v.SetDefault("monitor.poll_interval", "1s")
	v.SetDefault("monitor.probe_timeout", "5s")
	v.SetDefault("monitor.max_history_size", 100)
	v.SetDefault("monitor.prober", "exec")
	v.SetDefault("monitor.tcp_port", 443)
	v.SetDefault("monitor.autostart", false)
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.level", "info")
	v.SetDefault("archive.log_dir", "")
	v.SetDefault("archive.sqlite_path", "")
	v.SetDefault("archive.rrd.enabled", false)
	v.SetDefault("archive.rrd.dir", "")
	v.SetDefault("archive.rrd.retention", "10s:1d,1m:7d,1h:90d")
	v.SetDefault("archive.rrd.aggregation", "average")
	v.SetDefault("archive.rrd.xff", 0.5)
}

// Load reads configuration from the specified file
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return decode(v)
}

// decode unmarshals and validates the settings held by v
func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	generated := cfg.EnsureIDs()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	// Write generated ids back so the next load sees the same ones
	if generated {
		if err := Save(&cfg, v.ConfigFileUsed()); err != nil {
			logging.For("Config").WithError(err).Warn("Could not store generated target ids")
		}
	}

	return &cfg, nil
}

// Save writes the configuration to configPath, replacing any existing file
func Save(cfg *Config, configPath string) error {
	v := viper.New()

	v.Set("server.address", cfg.Server.Address)
	v.Set("server.socket", cfg.Server.Socket)
	v.Set("monitor.poll_interval", cfg.Monitor.PollInterval.String())
	v.Set("monitor.probe_timeout", cfg.Monitor.ProbeTimeout.String())
	v.Set("monitor.max_history_size", cfg.Monitor.MaxHistorySize)
	v.Set("monitor.prober", cfg.Monitor.Prober)
	v.Set("monitor.tcp_port", cfg.Monitor.TCPPort)
	v.Set("monitor.autostart", cfg.Monitor.Autostart)
	v.Set("logging.format", cfg.Logging.Format)
	v.Set("logging.level", cfg.Logging.Level)
	v.Set("archive.log_dir", cfg.Archive.LogDir)
	v.Set("archive.sqlite_path", cfg.Archive.SQLitePath)
	v.Set("archive.rrd.enabled", cfg.Archive.RRD.Enabled)
	v.Set("archive.rrd.dir", cfg.Archive.RRD.Dir)
	v.Set("archive.rrd.retention", cfg.Archive.RRD.Retention)
	v.Set("archive.rrd.aggregation", cfg.Archive.RRD.Aggregation)
	v.Set("archive.rrd.xff", cfg.Archive.RRD.XFF)

	targets := make([]map[string]any, len(cfg.Targets))
	for i, t := range cfg.Targets {
		targets[i] = map[string]any{
			"id":      t.ID,
			"address": t.Address,
			"label":   t.Label,
			"enabled": t.Enabled,
		}
	}
	v.Set("targets", targets)

	if err := v.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// EnsureIDs assigns ids to targets declared without one and reports
// whether any were generated
func (c *Config) EnsureIDs() bool {
	generated := false
	for i := range c.Targets {
		if c.Targets[i].ID == "" {
			c.Targets[i].ID = uuid.NewString()
			generated = true
		}
	}
	return generated
}

// Clone returns a deep copy of the configuration
func (c *Config) Clone() *Config {
	out := *c
	out.Targets = append([]Target(nil), c.Targets...)
	return &out
}

// Validate checks configuration for required fields and valid values
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Targets))
	for i, target := range c.Targets {
		if strings.TrimSpace(target.Address) == "" {
			return fmt.Errorf("target[%d] %q: address is required", i, target.Label)
		}
		if target.ID != "" {
			if seen[target.ID] {
				return fmt.Errorf("target[%d] %q: duplicate id %q", i, target.Label, target.ID)
			}
			seen[target.ID] = true
		}
	}

	if c.Monitor.PollInterval < MinPollInterval {
		return fmt.Errorf("monitor.poll_interval must be at least %s", MinPollInterval)
	}
	if c.Monitor.ProbeTimeout <= 0 {
		return fmt.Errorf("monitor.probe_timeout must be positive")
	}
	if c.Monitor.MaxHistorySize < 1 {
		return fmt.Errorf("monitor.max_history_size must be at least 1")
	}

	switch c.Monitor.Prober {
	case "exec", "icmp":
	case "tcp":
		if c.Monitor.TCPPort < 1 || c.Monitor.TCPPort > 65535 {
			return fmt.Errorf("monitor.tcp_port must be between 1 and 65535")
		}
	default:
		return fmt.Errorf("monitor.prober must be one of: exec, icmp, tcp, got %q", c.Monitor.Prober)
	}

	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", c.Logging.Format)
	}

	if c.Archive.RRD.Enabled {
		if c.Archive.RRD.XFF < 0 || c.Archive.RRD.XFF > 1 {
			return fmt.Errorf("archive.rrd.xff must be between 0 and 1")
		}

		validAggregations := map[string]bool{
			"average": true,
			"min":     true,
			"max":     true,
			"last":    true,
		}
		if !validAggregations[c.Archive.RRD.Aggregation] {
			return fmt.Errorf("archive.rrd.aggregation must be one of: average, min, max, last")
		}

		if err := validateRetention(c.Archive.RRD.Retention); err != nil {
			return fmt.Errorf("archive.rrd.retention: %w", err)
		}
	}

	return nil
}

// validateRetention validates the RRD retention string format
// Format: "resolution:duration,resolution:duration,..."
// Examples: "10s:1d", "10s:1d,1m:7d,1h:90d"
func validateRetention(retention string) error {
	if retention == "" {
		return fmt.Errorf("retention string cannot be empty")
	}

	durationPattern := regexp.MustCompile(`^(\d+)(s|m|h|d|w|y)$`)

	archives := strings.Split(retention, ",")
	for i, archive := range archives {
		archive = strings.TrimSpace(archive)
		parts := strings.Split(archive, ":")
		if len(parts) != 2 {
			return fmt.Errorf("archive %d: expected format 'resolution:duration', got %q", i+1, archive)
		}

		resolution := strings.TrimSpace(parts[0])
		if !durationPattern.MatchString(resolution) {
			return fmt.Errorf("archive %d: invalid resolution %q (use format like 10s, 1m, 1h)", i+1, resolution)
		}

		duration := strings.TrimSpace(parts[1])
		if !durationPattern.MatchString(duration) {
			return fmt.Errorf("archive %d: invalid duration %q (use format like 1d, 7d, 90d)", i+1, duration)
		}
	}

	return nil
}
