package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions.

// DefaultBuildingConfig describes the building synthesized when a legacy
// document carries no buildings of its own.
type DefaultBuildingConfig struct {
	ID    string   `yaml:"id" json:"id"`
	Name  string   `yaml:"name" json:"name"`
	Rooms []string `yaml:"rooms" json:"rooms"`
}

// CaptureConfig controls the headless board-page screenshot.
type CaptureConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	Width   int  `yaml:"width" json:"width"`
	Height  int  `yaml:"height" json:"height"`
	// Output is the PNG path served back at /preview.png.
	Output string `yaml:"output" json:"output"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the board UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used when extracting local date and
	// clock fields from booking instants (e.g. "Asia/Jakarta").
	Timezone string `yaml:"timezone" json:"timezone"`

	// Source is the base URL the schedule document is fetched from. The
	// loader derives the fixed candidate paths from this base and the
	// Resource name.
	Source string `yaml:"source" json:"source"`

	// Resource is the schedule document's file name. It is both the name
	// fetched from Source and the legacy resource name the bridge answers
	// for.
	Resource string `yaml:"resource" json:"resource"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// used for periodic re-fetch of the schedule document.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// DefaultBuilding is used when the document predates multi-building
	// support.
	DefaultBuilding DefaultBuildingConfig `yaml:"default_building" json:"default_building"`

	// Capture, if enabled, renders the board page to a PNG after each
	// refresh.
	Capture CaptureConfig `yaml:"capture" json:"capture"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// defaultRooms is the hard-coded room list of the original single-building
// deployment, used when a legacy document lists no rooms at all.
var defaultRooms = []string{
	"1201", "1202", "1203", "1204", "1205", "Ruang Staf Lama", "Ruang Staf Baru",
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		Timezone:    "Asia/Jakarta",
		Source:      "",
		Resource:    "schedule.json",
		RefreshCron: "*/15 * * * *",
		DefaultBuilding: DefaultBuildingConfig{
			ID:    "GF",
			Name:  "Gedung Fisika",
			Rooms: append([]string(nil), defaultRooms...),
		},
		Capture: CaptureConfig{
			Enabled: false,
			Width:   1304,
			Height:  984,
			Output:  "/var/lib/schedbridge/preview.png",
		},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "Asia/Jakarta"
	}
	if c.Resource == "" {
		c.Resource = "schedule.json"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/15 * * * *"
	}
	if c.DefaultBuilding.ID == "" {
		c.DefaultBuilding.ID = "GF"
	}
	if c.DefaultBuilding.Name == "" {
		c.DefaultBuilding.Name = "Gedung Fisika"
	}
	if len(c.DefaultBuilding.Rooms) == 0 {
		c.DefaultBuilding.Rooms = append([]string(nil), defaultRooms...)
	}
	if c.Capture.Width <= 0 {
		c.Capture.Width = 1304
	}
	if c.Capture.Height <= 0 {
		c.Capture.Height = 984
	}
	if c.Capture.Output == "" {
		c.Capture.Output = "/var/lib/schedbridge/preview.png"
	}
}

// PreviewPath is the single source of truth for where the board PNG lives:
// the configured output normally, a local cache path in debug mode. The
// capture pipeline and the /preview.png handler must agree on it.
func (c *Config) PreviewPath(debug bool) string {
	if debug {
		return "./cache/preview.png"
	}
	return c.Capture.Output
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
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

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
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

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".schedbridge-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	// Set permissions to 0600 on temp file before rename.
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	// Rename over the target path.
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return nil
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
