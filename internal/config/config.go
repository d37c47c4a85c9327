// Package config handles loading and resolving lifeos configuration.
// Resolution order (last layer wins):
//  1. built-in defaults
//  2. config.json in the current working directory
//  3. environment variables LIFEOS_DB_PATH, LIFEOS_FORMAT
//  4. CLI flag --db
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/derickschaefer/lifeos/internal/analyze"
	"github.com/derickschaefer/lifeos/internal/energy"
)

const (
	DefaultConfigFile = "config.json"
	DefaultFormat     = "table"
	DefaultWindowDays = 30
	EnvDBPath         = "LIFEOS_DB_PATH"
	EnvFormat         = "LIFEOS_FORMAT"
)

// File is the on-disk representation of config.json. The analysis and
// energy sections may be partial; missing fields keep their defaults.
type File struct {
	DefaultFormat string          `json:"default_format"`
	DBPath        string          `json:"db_path"`
	WindowDays    int             `json:"window_days"`
	Analysis      *analyze.Params `json:"analysis,omitempty"`
	Energy        *energy.Options `json:"energy,omitempty"`
}

// Config is the fully-resolved runtime configuration.
// All callers use this struct; the File is only read during loading.
type Config struct {
	Format     string
	DBPath     string
	WindowDays int // history window for detection; 0 = all stored data
	Analysis   analyze.Params
	Energy     energy.Options
	ConfigPath string // path of the config.json that was loaded (empty if none found)

	// Runtime overrides set from CLI flags after Load()
	Quiet   bool
	Verbose bool
	Debug   bool
}

// Load resolves configuration from all sources.
// flagDBPath is the value of --db (empty string if not set).
func Load(flagDBPath string) (*Config, error) {
	cfg := &Config{
		Format:     DefaultFormat,
		WindowDays: DefaultWindowDays,
		Analysis:   analyze.DefaultParams(),
		Energy:     energy.DefaultOptions(),
	}

	// Layer 1: config.json. A missing file is fine, a broken one is not.
	f, path, err := loadFile(cfg)
	if err != nil {
		return nil, err
	}
	if f != nil {
		applyFile(cfg, f, path)
	}

	// Layer 2: environment
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvFormat); v != "" {
		cfg.Format = v
	}

	// Layer 3: CLI flag
	if flagDBPath != "" {
		cfg.DBPath = flagDBPath
	}

	if cfg.DBPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.DBPath = filepath.Join(home, ".lifeos", "lifeos.db")
		}
	}

	return cfg, nil
}

// Validate returns an error if any threshold is unusable.
func (c *Config) Validate() error {
	if c.WindowDays < 0 {
		return fmt.Errorf("window_days must be >= 0, got %d", c.WindowDays)
	}
	if err := c.Analysis.Validate(); err != nil {
		return fmt.Errorf("analysis: %w", err)
	}
	if err := c.Energy.Validate(); err != nil {
		return fmt.Errorf("energy: %w", err)
	}
	return nil
}

// loadFile reads config.json from the current working directory, decoding
// the analysis and energy sections over cfg's defaults. It returns a nil
// File when no config.json exists.
func loadFile(cfg *Config) (*File, string, error) {
	path, err := filepath.Abs(DefaultConfigFile)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("reading config.json: %w", err)
	}
	params, opts := cfg.Analysis, cfg.Energy
	f := File{Analysis: &params, Energy: &opts}
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, "", fmt.Errorf("parsing config.json: %w", err)
	}
	return &f, path, nil
}

// applyFile copies values from a parsed File into cfg,
// skipping any fields that are zero/empty.
func applyFile(cfg *Config, f *File, path string) {
	cfg.ConfigPath = path
	if f.DefaultFormat != "" {
		cfg.Format = f.DefaultFormat
	}
	if f.DBPath != "" {
		cfg.DBPath = f.DBPath
	}
	if f.WindowDays > 0 {
		cfg.WindowDays = f.WindowDays
	}
	if f.Analysis != nil {
		cfg.Analysis = *f.Analysis
	}
	if f.Energy != nil {
		cfg.Energy = *f.Energy
	}
}

// Template returns a File populated with sensible defaults, suitable for
// writing an initial config.json via `lifeos config init`.
func Template() File {
	params := analyze.DefaultParams()
	opts := energy.DefaultOptions()
	return File{
		DefaultFormat: DefaultFormat,
		WindowDays:    DefaultWindowDays,
		Analysis:      &params,
		Energy:        &opts,
	}
}

// WriteFile serialises a File to the given path.
func WriteFile(path string, f File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0600)
}
