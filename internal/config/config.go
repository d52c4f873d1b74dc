package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/denster32/HealthAI-2030-sub022/internal/alerts"
	"github.com/denster32/HealthAI-2030-sub022/internal/detector"
	"github.com/denster32/HealthAI-2030-sub022/internal/history"
	"github.com/denster32/HealthAI-2030-sub022/internal/intervention"
)

// Detector strategy names
const (
	StrategyStatic   = "static"
	StrategyBaseline = "baseline"
)

// Config is the complete healthmon configuration loaded from YAML
type Config struct {
	Monitoring   MonitoringSettings  `yaml:"monitoring"`
	History      history.Config      `yaml:"history"`
	Detector     DetectorConfig      `yaml:"detector"`
	Alerts       alerts.Config       `yaml:"alerts"`
	Intervention intervention.Config `yaml:"intervention"`
	Source       SourceConfig        `yaml:"source"`
	Notify       NotifyConfig        `yaml:"notify"`
	Storage      StorageConfig       `yaml:"storage"`
	API          APIConfig           `yaml:"api"`
	Control      ControlConfig       `yaml:"control"`
}

// DetectorConfig selects and tunes the anomaly scoring strategy
type DetectorConfig struct {
	// Strategy is "static" (per-metric bounds) or "baseline" (learned EWMA baseline)
	// Default: static
	Strategy string `yaml:"strategy"`

	// Multiples are the out-of-range multiples for medium, high and critical
	Multiples detector.Multiples `yaml:"multiples"`

	// Baseline tunes the baseline strategy
	Baseline detector.BaselineConfig `yaml:"baseline"`
}

// NewStrategy builds the configured scoring strategy
func (d DetectorConfig) NewStrategy() (detector.ScoringStrategy, error) {
	switch d.Strategy {
	case "", StrategyStatic:
		return detector.NewStaticStrategy(nil, d.Multiples), nil
	case StrategyBaseline:
		return detector.NewBaselineStrategy(d.Baseline, d.Multiples), nil
	default:
		return nil, fmt.Errorf("unknown detector strategy: %q", d.Strategy)
	}
}

// SourceConfig configures the simulated health data source and device registry
type SourceConfig struct {
	// Seed makes the simulated readings reproducible; 0 picks a time-based seed
	Seed int64 `yaml:"seed"`

	// SpikeProbability is the chance that a reading is an out-of-range spike
	// Default: 0.02
	SpikeProbability float64 `yaml:"spike_probability"`

	// RecoveryDelay is how long an intervention is given before the metric is re-sampled
	// Default: 2 minutes
	RecoveryDelay time.Duration `yaml:"recovery_delay"`

	// Devices are the sensors reported by the device registry
	Devices []DeviceConfig `yaml:"devices"`
}

// DeviceConfig describes one configured sensor
type DeviceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
}

// NotifyConfig configures alert notification sinks
type NotifyConfig struct {
	// Log writes escalated alerts to the structured log
	// Default: true
	Log bool `yaml:"log"`

	// TelegramToken enables Telegram notifications when set.
	// Prefer HEALTHMON_TELEGRAM_TOKEN over putting the token in a file.
	TelegramToken string `yaml:"telegram_token"`

	// TelegramChatID is the chat that receives alerts
	TelegramChatID int64 `yaml:"telegram_chat_id"`
}

// TelegramEnabled reports whether Telegram notifications are configured
func (n NotifyConfig) TelegramEnabled() bool {
	return n.TelegramToken != ""
}

// StorageConfig configures the SQLite persistence collaborator
type StorageConfig struct {
	// Path is the database file; empty disables persistence
	// Default: healthmon.db
	Path string `yaml:"path"`
}

// APIConfig configures the HTTP and WebSocket surface
type APIConfig struct {
	// Enabled controls whether the HTTP server is started
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Addr is the listen address
	// Default: 127.0.0.1:8080
	Addr string `yaml:"addr"`

	// RequestTimeout bounds a single request
	// Default: 30 seconds
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// ControlConfig configures the unix control socket
type ControlConfig struct {
	// SocketPath is where the control socket is created
	// Default: $TMPDIR/healthmon.sock
	SocketPath string `yaml:"socket_path"`
}

// DefaultSocketPath returns the default control socket location
func DefaultSocketPath() string {
	return filepath.Join(os.TempDir(), "healthmon.sock")
}

// DefaultConfig returns a configuration with every section at its defaults
func DefaultConfig() *Config {
	return &Config{
		Monitoring: DefaultMonitoringSettings(),
		History:    history.DefaultConfig(),
		Detector: DetectorConfig{
			Strategy:  StrategyStatic,
			Multiples: detector.DefaultMultiples(),
			Baseline:  detector.DefaultBaselineConfig(),
		},
		Alerts:       alerts.DefaultConfig(),
		Intervention: intervention.DefaultConfig(),
		Source: SourceConfig{
			SpikeProbability: 0.02,
			RecoveryDelay:    2 * time.Minute,
			Devices: []DeviceConfig{
				{ID: "wrist-1", Name: "Wrist sensor", Kind: "wearable"},
			},
		},
		Notify:  NotifyConfig{Log: true},
		Storage: StorageConfig{Path: "healthmon.db"},
		API: APIConfig{
			Enabled:        true,
			Addr:           "127.0.0.1:8080",
			RequestTimeout: 30 * time.Second,
		},
		Control: ControlConfig{SocketPath: DefaultSocketPath()},
	}
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
// Returns the default config if the file doesn't exist.
// Returns an error if the file exists but is invalid.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration as YAML
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks every section
func (c *Config) Validate() error {
	if err := c.Monitoring.Validate(); err != nil {
		return err
	}
	if err := c.History.Validate(); err != nil {
		return fmt.Errorf("history: %w", err)
	}
	if _, err := c.Detector.NewStrategy(); err != nil {
		return fmt.Errorf("detector: %w", err)
	}
	if err := c.Detector.Multiples.Validate(); err != nil {
		return fmt.Errorf("detector: %w", err)
	}
	if err := c.Alerts.Validate(); err != nil {
		return fmt.Errorf("alerts: %w", err)
	}
	if err := c.Intervention.Validate(); err != nil {
		return fmt.Errorf("intervention: %w", err)
	}
	if c.Source.SpikeProbability < 0 || c.Source.SpikeProbability > 1 {
		return fmt.Errorf("source: spike_probability must be between 0 and 1, got %v", c.Source.SpikeProbability)
	}
	if c.Source.RecoveryDelay < 0 {
		return fmt.Errorf("source: recovery_delay must be non-negative, got %v", c.Source.RecoveryDelay)
	}
	for i, d := range c.Source.Devices {
		if d.ID == "" {
			return fmt.Errorf("source: device %d has no id", i)
		}
	}
	if c.Notify.TelegramEnabled() && c.Notify.TelegramChatID == 0 {
		return fmt.Errorf("notify: telegram_chat_id is required when telegram_token is set")
	}
	if c.API.Enabled {
		if c.API.Addr == "" {
			return fmt.Errorf("api: addr is required when the API is enabled")
		}
		if c.API.RequestTimeout <= 0 {
			return fmt.Errorf("api: request_timeout must be positive, got %v", c.API.RequestTimeout)
		}
	}
	if c.Control.SocketPath == "" {
		return fmt.Errorf("control: socket_path is required")
	}
	return nil
}

// Clone returns a deep copy
func (c *Config) Clone() *Config {
	out := *c
	out.Monitoring = c.Monitoring.Clone()
	out.Source.Devices = append([]DeviceConfig(nil), c.Source.Devices...)
	return &out
}
