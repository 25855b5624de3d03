package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"treedelta/internal/snapshot"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = ".treedelta.yaml"

// StorageEnv overrides the storage directory from the environment.
const StorageEnv = "TREEDELTA_STORAGE"

type Config struct {
	// Exclude holds project ignore patterns applied on top of the
	// built-in defaults.
	Exclude          []string      `yaml:"exclude"`
	StorageDir       string        `yaml:"storage_dir"`
	Workers          int           `yaml:"workers"`
	SnapshotFormat   string        `yaml:"snapshot_format"`
	AutoReindexAfter time.Duration `yaml:"auto_reindex_after"`
	WatchDebounce    time.Duration `yaml:"watch_debounce"`
}

func DefaultConfig() *Config {
	return &Config{
		Exclude:          []string{},
		SnapshotFormat:   string(snapshot.FormatJSON),
		AutoReindexAfter: 5 * time.Minute,
		WatchDebounce:    500 * time.Millisecond,
	}
}

// LoadConfig reads path. A missing file yields DefaultConfig; keys absent
// from the file keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	// Initialize Exclude slice if nil (for explicit `exclude:` with no items)
	if cfg.Exclude == nil {
		cfg.Exclude = []string{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if _, err := snapshot.ParseFormat(c.SnapshotFormat); err != nil {
		return err
	}
	if c.AutoReindexAfter < 0 {
		return fmt.Errorf("auto_reindex_after must not be negative")
	}
	if c.WatchDebounce < 0 {
		return fmt.Errorf("watch_debounce must not be negative")
	}
	return nil
}

// Format returns the parsed snapshot format.
func (c *Config) Format() snapshot.Format {
	f, err := snapshot.ParseFormat(c.SnapshotFormat)
	if err != nil {
		return snapshot.FormatJSON
	}
	return f
}

// ResolveStorageDir picks the storage directory: the environment
// override, then the config value, then ~/.treedelta.
func (c *Config) ResolveStorageDir() (string, error) {
	if dir := os.Getenv(StorageEnv); dir != "" {
		return dir, nil
	}
	if c.StorageDir != "" {
		return c.StorageDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".treedelta"), nil
}

// SnapshotDir is where per-project snapshots live inside the storage dir.
func (c *Config) SnapshotDir() (string, error) {
	dir, err := c.ResolveStorageDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "snapshots"), nil
}
