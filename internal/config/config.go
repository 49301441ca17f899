package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	BLE       BLEConfig       `yaml:"ble"`
	Wearable  WearableConfig  `yaml:"wearable"`
	Relay     RelayConfig     `yaml:"relay"`
	Companion CompanionConfig `yaml:"companion"`
	Fake      FakeConfig      `yaml:"fake"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // "text" or "json"
	Output string `yaml:"output"` // "stderr", "stdout" or a file path
}

// BLEConfig holds Bluetooth heart-rate strap settings.
type BLEConfig struct {
	Enabled           bool          `yaml:"enabled"`
	ServiceUUID       string        `yaml:"service_uuid"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	Breaker           BreakerConfig `yaml:"breaker"`
	PowerMonitor      bool          `yaml:"power_monitor"` // follow adapter power over BlueZ (linux)
}

// BreakerConfig controls when connect attempts are skipped.
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// WearableConfig holds companion watch settings.
type WearableConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Mode              string        `yaml:"mode"` // "relay" or "session"
	MDNSService       string        `yaml:"mdns_service"`
	DiscoveryInterval time.Duration `yaml:"discovery_interval"`
	PollInterval      time.Duration `yaml:"poll_interval"`
}

// RelayConfig holds the host relay listener settings.
type RelayConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Listen        string  `yaml:"listen"`
	Path          string  `yaml:"path"`
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
	SharedSecret  string  `yaml:"shared_secret"` // empty sends plain frames
}

// CompanionConfig holds settings for the companion program.
type CompanionConfig struct {
	HostURL  string `yaml:"host_url"`
	Instance string `yaml:"instance"`
	Port     int    `yaml:"port"` // announced in the DNS-SD record
}

// FakeConfig holds simulated sensor settings.
type FakeConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	MinBPM   uint16        `yaml:"min_bpm"`
	MaxBPM   uint16        `yaml:"max_bpm"`
}

// maxBPM mirrors sensor.MaxHeartRate.
const maxBPM = 300

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "hrkit")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		BLE: BLEConfig{
			Enabled:           true,
			ServiceUUID:       "0000180d-0000-1000-8000-00805f9b34fb",
			ReconnectInterval: 5 * time.Second,
			ConnectTimeout:    10 * time.Second,
			Breaker: BreakerConfig{
				MaxFailures: 5,
				Timeout:     30 * time.Second,
			},
			PowerMonitor: true,
		},
		Wearable: WearableConfig{
			Enabled:           false,
			Mode:              "relay",
			MDNSService:       "_hrkit-companion._tcp",
			DiscoveryInterval: 10 * time.Second,
			PollInterval:      time.Second,
		},
		Relay: RelayConfig{
			Enabled:       true,
			Listen:        ":8765",
			Path:          "/relay",
			RatePerSecond: 5,
			Burst:         10,
		},
		Companion: CompanionConfig{
			HostURL:  "ws://localhost:8765/relay",
			Instance: "hrkit-companion",
			Port:     8766,
		},
		Fake: FakeConfig{
			Enabled:  true,
			Interval: 5 * time.Second,
			MinBPM:   40,
			MaxBPM:   200,
		},
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in log.output is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing config file: %w", err)
	}

	cfg.Log.Output = expandTilde(cfg.Log.Output)

	return cfg, nil
}

// WriteDefault writes the default config to DefaultConfigPath. If a config
// already exists there it is left alone and ("", nil) is returned.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("config: checking %s: %w", path, err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("config: marshal defaults: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("config: creating config dir: %w", err)
	}

	header := "# hrkit configuration\n# See ble, wearable, relay and fake sections for the heart-rate sources.\n\n"
	if err := os.WriteFile(path, append([]byte(header), data...), 0644); err != nil {
		return "", fmt.Errorf("config: writing %s: %w", path, err)
	}
	return path, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn, or error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be \"text\" or \"json\", got %q", c.Log.Format)
	}
	if c.Log.Output == "" {
		return fmt.Errorf("log.output must not be empty")
	}

	if !c.BLE.Enabled && !c.Wearable.Enabled && !c.Fake.Enabled {
		return fmt.Errorf("at least one of ble, wearable or fake must be enabled")
	}

	if c.BLE.Enabled {
		if c.BLE.ServiceUUID == "" {
			return fmt.Errorf("ble.service_uuid must not be empty")
		}
		if c.BLE.ReconnectInterval <= 0 {
			return fmt.Errorf("ble.reconnect_interval must be > 0")
		}
		if c.BLE.ConnectTimeout <= 0 {
			return fmt.Errorf("ble.connect_timeout must be > 0")
		}
		if c.BLE.Breaker.MaxFailures == 0 {
			return fmt.Errorf("ble.breaker.max_failures must be > 0")
		}
		if c.BLE.Breaker.Timeout <= 0 {
			return fmt.Errorf("ble.breaker.timeout must be > 0")
		}
	}

	if c.Wearable.Enabled {
		switch c.Wearable.Mode {
		case "relay", "session":
		default:
			return fmt.Errorf("wearable.mode must be \"relay\" or \"session\", got %q", c.Wearable.Mode)
		}
		if c.Wearable.DiscoveryInterval <= 0 {
			return fmt.Errorf("wearable.discovery_interval must be > 0")
		}
		if c.Wearable.Mode == "session" && c.Wearable.PollInterval <= 0 {
			return fmt.Errorf("wearable.poll_interval must be > 0")
		}
		if err := c.Relay.validate(); err != nil {
			return err
		}
	}

	if c.Fake.Enabled {
		if c.Fake.Interval <= 0 {
			return fmt.Errorf("fake.interval must be > 0")
		}
		if c.Fake.MinBPM >= c.Fake.MaxBPM {
			return fmt.Errorf("fake.min_bpm must be below fake.max_bpm, got %d and %d", c.Fake.MinBPM, c.Fake.MaxBPM)
		}
		if c.Fake.MaxBPM > maxBPM {
			return fmt.Errorf("fake.max_bpm must be <= %d, got %d", maxBPM, c.Fake.MaxBPM)
		}
	}

	return nil
}

func (r RelayConfig) validate() error {
	if !r.Enabled {
		return fmt.Errorf("relay must be enabled for the wearable transport")
	}
	if r.Listen == "" {
		return fmt.Errorf("relay.listen must not be empty")
	}
	if !strings.HasPrefix(r.Path, "/") {
		return fmt.Errorf("relay.path must start with /, got %q", r.Path)
	}
	if r.RatePerSecond <= 0 {
		return fmt.Errorf("relay.rate_per_second must be > 0")
	}
	if r.Burst <= 0 {
		return fmt.Errorf("relay.burst must be > 0")
	}
	return nil
}

// ParseLogLevel converts a config level string to a slog.Level. Unknown
// values fall back to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
