package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nvandessel/connectome/internal/constants"
)

func TestDefault(t *testing.T) {
	config := Default()

	if config.Kernel.Threads != 1 {
		t.Errorf("expected Threads 1, got %d", config.Kernel.Threads)
	}
	if config.Kernel.ResolutionMS != 0.1 {
		t.Errorf("expected resolution 0.1, got %g", config.Kernel.ResolutionMS)
	}
	if config.Kernel.HasDelayWindow() {
		t.Error("expected no delay window by default")
	}
	if config.Store.Backend != constants.BackendSQLite {
		t.Errorf("expected sqlite backend, got '%s'", config.Store.Backend)
	}
	if config.Metrics.Enabled {
		t.Error("expected metrics to be disabled by default")
	}
	if config.Logging.Level != "info" {
		t.Errorf("expected Logging.Level 'info', got '%s'", config.Logging.Level)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
kernel:
  threads: 4
  resolution: 0.05
  seed: 99
  keep_source_table: true
  min_delay: 0.5
  max_delay: 20

store:
  backend: memory

logging:
  level: debug
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.Kernel.Threads != 4 {
		t.Errorf("expected Threads 4, got %d", config.Kernel.Threads)
	}
	if config.Kernel.ResolutionMS != 0.05 {
		t.Errorf("expected resolution 0.05, got %g", config.Kernel.ResolutionMS)
	}
	if config.Kernel.Seed != 99 {
		t.Errorf("expected Seed 99, got %d", config.Kernel.Seed)
	}
	if !config.Kernel.KeepSourceTable {
		t.Error("expected KeepSourceTable to be true")
	}
	if !config.Kernel.HasDelayWindow() || config.Kernel.MaxDelayMS != 20 {
		t.Errorf("expected delay window [0.5, 20], got [%g, %g]", config.Kernel.MinDelayMS, config.Kernel.MaxDelayMS)
	}
	if config.Store.Backend != constants.BackendMemory {
		t.Errorf("expected memory backend, got '%s'", config.Store.Backend)
	}
	// Unset sections keep their defaults.
	if config.Metrics.Addr != constants.DefaultMetricsAddr {
		t.Errorf("expected default metrics addr, got '%s'", config.Metrics.Addr)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("expected loaded config to be valid, got: %v", err)
	}
}

func TestLoadFromFile_EnvExpansion(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
store:
  backend: sqlite
  path: ${TEST_CONNECTOME_DIR}/net.db
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("TEST_CONNECTOME_DIR", "/data")

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if config.Store.Path != "/data/net.db" {
		t.Errorf("expected path '/data/net.db', got '%s'", config.Store.Path)
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CONNECTOME_THREADS", "8")
	t.Setenv("CONNECTOME_PROCESSES", "2")
	t.Setenv("CONNECTOME_RESOLUTION", "0.25")
	t.Setenv("CONNECTOME_SEED", "3")
	t.Setenv("CONNECTOME_LOG_LEVEL", "trace")
	t.Setenv("CONNECTOME_STORE", "memory")
	t.Setenv("CONNECTOME_STORE_PATH", "/tmp/x.db")
	t.Setenv("CONNECTOME_METRICS_ADDR", ":9999")

	config := Default()
	applyEnvOverrides(config)

	if config.Kernel.Threads != 8 || config.Kernel.Processes != 2 {
		t.Errorf("expected 8 threads and 2 processes, got %d and %d", config.Kernel.Threads, config.Kernel.Processes)
	}
	if config.Kernel.ResolutionMS != 0.25 || config.Kernel.Seed != 3 {
		t.Errorf("expected resolution 0.25 and seed 3, got %g and %d", config.Kernel.ResolutionMS, config.Kernel.Seed)
	}
	if config.Logging.Level != "trace" {
		t.Errorf("expected level trace, got '%s'", config.Logging.Level)
	}
	if config.Store.Backend != constants.BackendMemory || config.Store.Path != "/tmp/x.db" {
		t.Errorf("expected memory store at /tmp/x.db, got %s at %s", config.Store.Backend, config.Store.Path)
	}
	if !config.Metrics.Enabled || config.Metrics.Addr != ":9999" {
		t.Errorf("expected metrics enabled on :9999, got %v on %s", config.Metrics.Enabled, config.Metrics.Addr)
	}
}

func TestEnvOverrides_IgnoresGarbage(t *testing.T) {
	t.Setenv("CONNECTOME_THREADS", "many")
	config := Default()
	applyEnvOverrides(config)
	if config.Kernel.Threads != 1 {
		t.Errorf("expected Threads to stay 1, got %d", config.Kernel.Threads)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *ConnectomeConfig)
		wantErr bool
	}{
		{"defaults", func(c *ConnectomeConfig) {}, false},
		{"zero threads", func(c *ConnectomeConfig) { c.Kernel.Threads = 0 }, true},
		{"zero processes", func(c *ConnectomeConfig) { c.Kernel.Processes = 0 }, true},
		{"zero resolution", func(c *ConnectomeConfig) { c.Kernel.ResolutionMS = 0 }, true},
		{"min delay below resolution", func(c *ConnectomeConfig) {
			c.Kernel.MinDelayMS, c.Kernel.MaxDelayMS = 0.01, 5
		}, true},
		{"inverted window", func(c *ConnectomeConfig) {
			c.Kernel.MinDelayMS, c.Kernel.MaxDelayMS = 5, 1
		}, true},
		{"valid window", func(c *ConnectomeConfig) {
			c.Kernel.MinDelayMS, c.Kernel.MaxDelayMS = 0.1, 10
		}, false},
		{"unknown backend", func(c *ConnectomeConfig) { c.Store.Backend = "postgres" }, true},
		{"unknown level", func(c *ConnectomeConfig) { c.Logging.Level = "verbose" }, true},
		{"unknown format", func(c *ConnectomeConfig) { c.Logging.Format = "xml" }, true},
		{"metrics without addr", func(c *ConnectomeConfig) {
			c.Metrics.Enabled, c.Metrics.Addr = true, ""
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.mutate(config)
			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValueAndSetValue(t *testing.T) {
	config := Default()
	for _, key := range Keys() {
		if _, ok := config.Value(key); !ok {
			t.Errorf("Value(%q) not found", key)
		}
	}

	tests := []struct {
		key, value string
		want       any
	}{
		{"kernel.threads", "6", 6},
		{"kernel.resolution", "0.2", 0.2},
		{"kernel.seed", "17", uint64(17)},
		{"kernel.keep_source_table", "true", true},
		{"store.backend", "memory", "memory"},
		{"metrics.addr", ":1234", ":1234"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if err := config.SetValue(tt.key, tt.value); err != nil {
				t.Fatalf("SetValue() error = %v", err)
			}
			got, _ := config.Value(tt.key)
			if got != tt.want {
				t.Errorf("Value(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}

	if err := config.SetValue("kernel.threads", "lots"); err == nil {
		t.Error("expected error for non-numeric threads")
	}
	if err := config.SetValue("llm.provider", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	config := Default()
	config.Kernel.Threads = 3
	config.Store.Path = "/var/lib/connectome.db"

	if err := config.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if loaded.Kernel.Threads != 3 || loaded.Store.Path != "/var/lib/connectome.db" {
		t.Errorf("loaded %+v, want threads 3 and saved path", loaded)
	}
}

func TestStorePath(t *testing.T) {
	config := Default()
	config.Store.Path = "/explicit.db"
	got, err := config.StorePath()
	if err != nil || got != "/explicit.db" {
		t.Errorf("StorePath() = %q, %v, want /explicit.db", got, err)
	}
}
