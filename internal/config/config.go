package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default config file path.
const DefaultConfigPath = "~/.config/tempo/config.yaml"

// Config holds all tempo configuration.
type Config struct {
	Storage       StorageConfig       `yaml:"storage"`
	Timer         TimerConfig         `yaml:"timer"`
	Limits        map[string]int      `yaml:"limits"`
	Backup        BackupConfig        `yaml:"backup"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Logging       LoggingConfig       `yaml:"logging"`
}

type StorageConfig struct {
	Path       string `yaml:"path"`
	SQLiteFile string `yaml:"sqlite_file"`
}

type TimerConfig struct {
	TickIntervalMs    int    `yaml:"tick_interval_ms"`
	MinSessionSeconds int    `yaml:"min_session_seconds"`
	DefaultCategory   string `yaml:"default_category"`
}

type BackupConfig struct {
	StaleAfterDays int    `yaml:"stale_after_days"`
	ExportDir      string `yaml:"export_dir"`
}

type NotificationsConfig struct {
	Desktop  bool   `yaml:"desktop"`
	Icon     string `yaml:"icon"`
	ExpireMs int    `yaml:"expire_ms"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load reads a YAML config file at path and merges it with defaults.
// Returns an error if the file cannot be read or contains invalid YAML.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return cfg, nil
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	if c.Storage.SQLiteFile == "" {
		return fmt.Errorf("storage.sqlite_file must not be empty")
	}
	if c.Timer.TickIntervalMs <= 0 {
		return fmt.Errorf("timer.tick_interval_ms must be positive, got %d", c.Timer.TickIntervalMs)
	}
	if c.Timer.MinSessionSeconds < 0 {
		return fmt.Errorf("timer.min_session_seconds must not be negative, got %d", c.Timer.MinSessionSeconds)
	}
	if c.Backup.StaleAfterDays <= 0 {
		return fmt.Errorf("backup.stale_after_days must be positive, got %d", c.Backup.StaleAfterDays)
	}
	for name, minutes := range c.Limits {
		if minutes < 0 {
			return fmt.Errorf("limits.%s must not be negative, got %d", name, minutes)
		}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "quiet":
	default:
		return fmt.Errorf("logging.level must be debug, info or quiet, got %q", c.Logging.Level)
	}
	return nil
}

// DBPath returns the resolved database file path.
func (c *Config) DBPath() (string, error) {
	dir, err := expandPath(c.Storage.Path)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, c.Storage.SQLiteFile), nil
}

// LogPath returns the resolved log file path, or "" to log to stderr.
func (c *Config) LogPath() (string, error) {
	if c.Logging.File == "" {
		return "", nil
	}
	if filepath.IsAbs(c.Logging.File) || strings.HasPrefix(c.Logging.File, "~") {
		return expandPath(c.Logging.File)
	}
	dir, err := expandPath(c.Storage.Path)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, c.Logging.File), nil
}

// ExportDir returns the resolved directory for export files.
func (c *Config) ExportDir() (string, error) {
	return expandPath(c.Backup.ExportDir)
}

func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Timer.TickIntervalMs) * time.Millisecond
}

func (c *Config) MinSession() time.Duration {
	return time.Duration(c.Timer.MinSessionSeconds) * time.Second
}

func (c *Config) BackupStaleAfter() time.Duration {
	return time.Duration(c.Backup.StaleAfterDays) * 24 * time.Hour
}

// expandPath replaces a leading ~ with the user's home directory.
func expandPath(path string) (string, error) {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// LoadOrCreate loads the config from the default path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreate() (*Config, error) {
	path, err := expandPath(DefaultConfigPath)
	if err != nil {
		return nil, err
	}
	return LoadOrCreateAt(path)
}

// LoadOrCreateAt loads the config from the given path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreateAt(path string) (*Config, error) {
	path, err := expandPath(path)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()

		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating config directory: %w", err)
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("marshaling default config: %w", err)
		}

		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("writing default config: %w", err)
		}

		return cfg, nil
	}

	return Load(path)
}
