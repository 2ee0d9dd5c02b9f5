// Package config loads the plasmadeck configuration from
// ~/.config/plasmadeck/config.yaml. A missing file yields defaults; an
// unreadable or invalid file is an error.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the effective daemon configuration.
type Config struct {
	// Brightness is the deck backlight level in percent (0-100).
	Brightness int
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// BusName is the well-known D-Bus name the daemon claims; it also
	// names the callback interface the observer script calls into.
	BusName string
	// ObjectPath is the D-Bus path of the callback object.
	ObjectPath string
	// DesktopDirs are searched for <class>.desktop entries.
	DesktopDirs []string
	// IconDirs are icon theme roots and flat pixmap directories.
	IconDirs []string
}

// rawConfig mirrors the YAML file; pointer fields distinguish "absent"
// from zero values so partial files merge onto defaults.
type rawConfig struct {
	Brightness  *int     `yaml:"brightness"`
	LogLevel    *string  `yaml:"log_level"`
	BusName     *string  `yaml:"bus_name"`
	ObjectPath  *string  `yaml:"object_path"`
	DesktopDirs []string `yaml:"desktop_dirs"`
	IconDirs    []string `yaml:"icon_dirs"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Brightness: 30,
		LogLevel:   "info",
		BusName:    "net.shehadeh.PlasmaDeckWindowListener",
		ObjectPath: "/net/shehadeh/PlasmaDeckWindowListener",
		DesktopDirs: []string{
			"/usr/share/applications",
		},
		IconDirs: []string{
			"/usr/share/icons/hicolor",
			"/usr/share/pixmaps",
		},
	}
}

// DefaultConfigPath returns the standard config file location.
func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "plasmadeck", "config.yaml"), nil
}

// Load reads the configuration from the standard location.
func Load() (*Config, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath reads the configuration from path, merging file values
// onto defaults. A missing file yields pure defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	raw := rawConfig{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if raw.Brightness != nil {
		cfg.Brightness = *raw.Brightness
	}
	if raw.LogLevel != nil {
		cfg.LogLevel = *raw.LogLevel
	}
	if raw.BusName != nil {
		cfg.BusName = *raw.BusName
	}
	if raw.ObjectPath != nil {
		cfg.ObjectPath = *raw.ObjectPath
	}
	if raw.DesktopDirs != nil {
		cfg.DesktopDirs = raw.DesktopDirs
	}
	if raw.IconDirs != nil {
		cfg.IconDirs = raw.IconDirs
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Brightness < 0 || c.Brightness > 100 {
		return fmt.Errorf("brightness must be between 0 and 100, got %d", c.Brightness)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", c.LogLevel)
	}
	if c.BusName == "" {
		return fmt.Errorf("bus_name must not be empty")
	}
	if !strings.HasPrefix(c.ObjectPath, "/") {
		return fmt.Errorf("object_path must be an absolute D-Bus path, got %q", c.ObjectPath)
	}
	return nil
}

// SlogLevel maps the configured log level onto slog.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
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
