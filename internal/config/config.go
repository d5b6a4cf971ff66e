// Package config provides unified configuration loading for connectome.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/connectome/internal/constants"
)

// ConnectomeConfig contains all connectome configuration settings.
type ConnectomeConfig struct {
	// Kernel sizes the worker pool and sets the time grid.
	Kernel KernelConfig `json:"kernel" yaml:"kernel"`

	// Logging contains settings for operational and decision logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Store selects where network snapshots are kept.
	Store StoreConfig `json:"store" yaml:"store"`

	// Metrics controls the Prometheus endpoint.
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// KernelConfig configures the connection manager.
type KernelConfig struct {
	Threads int `json:"threads" yaml:"threads"`

	// Processes above one run that many in-process members joined by one
	// reduction group.
	Processes int `json:"processes" yaml:"processes"`

	// ResolutionMS is the simulation step in milliseconds.
	ResolutionMS float64 `json:"resolution" yaml:"resolution"`

	Seed uint64 `json:"seed" yaml:"seed"`

	// KeepSourceTable keeps connection sources after the network is prepared,
	// so connections can still be listed.
	KeepSourceTable bool `json:"keep_source_table" yaml:"keep_source_table"`

	// MinDelayMS and MaxDelayMS pin the delay window when both are set.
	MinDelayMS float64 `json:"min_delay,omitempty" yaml:"min_delay,omitempty"`
	MaxDelayMS float64 `json:"max_delay,omitempty" yaml:"max_delay,omitempty"`
}

// HasDelayWindow reports whether a user-defined delay window is configured.
func (k KernelConfig) HasDelayWindow() bool {
	return k.MinDelayMS != 0 || k.MaxDelayMS != 0
}

// LoggingConfig configures connectome's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables decision logging to <trace_dir>/decisions.jsonl.
	// "trace" additionally records every skipped pair.
	Level string `json:"level" yaml:"level"`

	// Format is "text" (default) or "json".
	Format string `json:"format,omitempty" yaml:"format,omitempty"`

	// TraceDir holds decisions.jsonl. Defaults to ~/.connectome.
	TraceDir string `json:"trace_dir,omitempty" yaml:"trace_dir,omitempty"`
}

// StoreConfig configures the snapshot store.
type StoreConfig struct {
	Backend constants.Backend `json:"backend" yaml:"backend"`

	// Path is the SQLite database file. Supports ${VAR} syntax for env vars.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

// Default returns a ConnectomeConfig with sensible defaults.
func Default() *ConnectomeConfig {
	return &ConnectomeConfig{
		Kernel: KernelConfig{
			Threads:      constants.DefaultThreads,
			Processes:    constants.DefaultProcesses,
			ResolutionMS: constants.DefaultResolutionMS,
			Seed:         constants.DefaultSeed,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Store: StoreConfig{
			Backend: constants.BackendSQLite,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    constants.DefaultMetricsAddr,
		},
	}
}

// HomeDir returns ~/.connectome.
func HomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, constants.HomeDirName), nil
}

// DefaultPath returns ~/.connectome/config.yaml.
func DefaultPath() (string, error) {
	dir, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, constants.ConfigFileName), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.connectome/config.yaml -> environment variables
func Load() (*ConnectomeConfig, error) {
	config := Default()

	// Try to load from default config file
	if configPath, err := DefaultPath(); err == nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	// Apply environment variable overrides
	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*ConnectomeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Store.Path = expandEnvVars(config.Store.Path)
	config.Logging.TraceDir = expandEnvVars(config.Logging.TraceDir)

	return config, nil
}

// Save writes the configuration to path, creating its directory.
func (c *ConnectomeConfig) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// StorePath returns the configured SQLite path or the default one.
func (c *ConnectomeConfig) StorePath() (string, error) {
	if c.Store.Path != "" {
		return c.Store.Path, nil
	}
	dir, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, constants.SnapshotDBName), nil
}

// Validate checks that the configuration is valid.
func (c *ConnectomeConfig) Validate() error {
	if c.Kernel.Threads < 1 {
		return fmt.Errorf("threads must be at least 1, got %d", c.Kernel.Threads)
	}
	if c.Kernel.Processes < 1 {
		return fmt.Errorf("processes must be at least 1, got %d", c.Kernel.Processes)
	}
	if !(c.Kernel.ResolutionMS > 0) {
		return fmt.Errorf("resolution must be positive, got %g", c.Kernel.ResolutionMS)
	}
	if c.Kernel.HasDelayWindow() {
		if c.Kernel.MinDelayMS < c.Kernel.ResolutionMS {
			return fmt.Errorf("min_delay %g must be at least the resolution %g", c.Kernel.MinDelayMS, c.Kernel.ResolutionMS)
		}
		if c.Kernel.MaxDelayMS < c.Kernel.MinDelayMS {
			return fmt.Errorf("max_delay %g must not be below min_delay %g", c.Kernel.MaxDelayMS, c.Kernel.MinDelayMS)
		}
	}

	if !c.Store.Backend.Valid() {
		return fmt.Errorf("invalid store backend: %s (valid: memory, sqlite)", c.Store.Backend)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true, "warn": true, "error": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: error, warn, info, debug, trace, or empty for default)", c.Logging.Level)
	}
	if c.Logging.Format != "" && c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (valid: text, json)", c.Logging.Format)
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr must be set when metrics are enabled")
	}

	return nil
}

// Value retrieves a configuration value by dot-notation key.
func (c *ConnectomeConfig) Value(key string) (any, bool) {
	switch key {
	case "kernel.threads":
		return c.Kernel.Threads, true
	case "kernel.processes":
		return c.Kernel.Processes, true
	case "kernel.resolution":
		return c.Kernel.ResolutionMS, true
	case "kernel.seed":
		return c.Kernel.Seed, true
	case "kernel.keep_source_table":
		return c.Kernel.KeepSourceTable, true
	case "kernel.min_delay":
		return c.Kernel.MinDelayMS, true
	case "kernel.max_delay":
		return c.Kernel.MaxDelayMS, true
	case "logging.level":
		return c.Logging.Level, true
	case "logging.format":
		return c.Logging.Format, true
	case "logging.trace_dir":
		return c.Logging.TraceDir, true
	case "store.backend":
		return c.Store.Backend.String(), true
	case "store.path":
		return c.Store.Path, true
	case "metrics.enabled":
		return c.Metrics.Enabled, true
	case "metrics.addr":
		return c.Metrics.Addr, true
	default:
		return nil, false
	}
}

// SetValue sets a configuration value by dot-notation key. The result is
// not validated; call Validate before saving.
func (c *ConnectomeConfig) SetValue(key, value string) error {
	var err error
	switch key {
	case "kernel.threads":
		c.Kernel.Threads, err = strconv.Atoi(value)
	case "kernel.processes":
		c.Kernel.Processes, err = strconv.Atoi(value)
	case "kernel.resolution":
		c.Kernel.ResolutionMS, err = strconv.ParseFloat(value, 64)
	case "kernel.seed":
		c.Kernel.Seed, err = strconv.ParseUint(value, 10, 64)
	case "kernel.keep_source_table":
		c.Kernel.KeepSourceTable = parseBool(value)
	case "kernel.min_delay":
		c.Kernel.MinDelayMS, err = strconv.ParseFloat(value, 64)
	case "kernel.max_delay":
		c.Kernel.MaxDelayMS, err = strconv.ParseFloat(value, 64)
	case "logging.level":
		c.Logging.Level = value
	case "logging.format":
		c.Logging.Format = value
	case "logging.trace_dir":
		c.Logging.TraceDir = value
	case "store.backend":
		c.Store.Backend = constants.Backend(value)
	case "store.path":
		c.Store.Path = value
	case "metrics.enabled":
		c.Metrics.Enabled = parseBool(value)
	case "metrics.addr":
		c.Metrics.Addr = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	if err != nil {
		return fmt.Errorf("invalid value %q for %s: %w", value, key, err)
	}
	return nil
}

// Keys lists every key accepted by Value and SetValue.
func Keys() []string {
	return []string{
		"kernel.threads", "kernel.processes", "kernel.resolution", "kernel.seed",
		"kernel.keep_source_table", "kernel.min_delay", "kernel.max_delay",
		"logging.level", "logging.format", "logging.trace_dir",
		"store.backend", "store.path",
		"metrics.enabled", "metrics.addr",
	}
}

func parseBool(v string) bool {
	return v == "true" || v == "1"
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *ConnectomeConfig) {
	if v := os.Getenv("CONNECTOME_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Kernel.Threads = n
		}
	}
	if v := os.Getenv("CONNECTOME_PROCESSES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Kernel.Processes = n
		}
	}
	if v := os.Getenv("CONNECTOME_RESOLUTION"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Kernel.ResolutionMS = f
		}
	}
	if v := os.Getenv("CONNECTOME_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			config.Kernel.Seed = n
		}
	}

	if v := os.Getenv("CONNECTOME_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	if v := os.Getenv("CONNECTOME_STORE"); v != "" {
		config.Store.Backend = constants.Backend(v)
	}
	if v := os.Getenv("CONNECTOME_STORE_PATH"); v != "" {
		config.Store.Path = v
	}

	// Setting an address implies the endpoint is wanted.
	if v := os.Getenv("CONNECTOME_METRICS_ADDR"); v != "" {
		config.Metrics.Addr = v
		config.Metrics.Enabled = true
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
