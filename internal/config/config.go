package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
// Password may be either an argon2id encoded hash ($argon2id$...) or a
// plaintext value compared in constant time.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// AlertsConfig controls the proximity/reminder evaluator.
type AlertsConfig struct {
	// Enabled gates the whole evaluator; when false no cron entry is
	// registered at all.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Cron is a robfig/cron spec driving evaluation cycles,
	// e.g. "@every 30s".
	Cron string `yaml:"cron" json:"cron"`

	// WindowMinutes is the lookahead before an event start during which it
	// becomes alertable.
	WindowMinutes int `yaml:"window_minutes" json:"window_minutes"`

	// MovementThresholdKm is the maximum great-circle distance between
	// consecutive position samples still considered stationary.
	MovementThresholdKm float64 `yaml:"movement_threshold_km" json:"movement_threshold_km"`

	// PositionURL is the endpoint of the position source. Empty disables
	// location gating; location-bearing events then never fire.
	PositionURL string `yaml:"position_url" json:"position_url"`
}

// SuggestConfig points at the external conflict-suggestion collaborator.
// Empty URL means conflicts are always resolved locally.
type SuggestConfig struct {
	URL            string `yaml:"url" json:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone for recurrence until-boundaries and
	// the calendar feed's advertised zone (e.g. "Europe/Berlin").
	// Resolved via Location.
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is one of debug/info/warn/error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// StoragePath is the JSON file holding the event collection.
	StoragePath string `yaml:"storage_path" json:"storage_path"`

	Alerts  AlertsConfig  `yaml:"alerts" json:"alerts"`
	Suggest SuggestConfig `yaml:"suggest" json:"suggest"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		Timezone:    "Local",
		LogLevel:    "info",
		StoragePath: "/var/lib/myplanner/events.json",
		Alerts: AlertsConfig{
			Enabled:             false,
			Cron:                "@every 30s",
			WindowMinutes:       10,
			MovementThresholdKm: 0.1,
		},
		Suggest: SuggestConfig{
			TimeoutSeconds: 15,
		},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "Local"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.StoragePath == "" {
		c.StoragePath = "/var/lib/myplanner/events.json"
	}
	if c.Alerts.Cron == "" {
		c.Alerts.Cron = "@every 30s"
	}
	if c.Alerts.WindowMinutes <= 0 {
		c.Alerts.WindowMinutes = 10
	}
	if c.Alerts.MovementThresholdKm <= 0 {
		c.Alerts.MovementThresholdKm = 0.1
	}
	if c.Suggest.TimeoutSeconds <= 0 {
		c.Suggest.TimeoutSeconds = 15
	}
}

// Location resolves Timezone to a *time.Location. Empty, "Local" and
// unknown names fall back to the system location.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is unmarshaled and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path atomically
// (temp file + rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".myplanner-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
