package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// setupTestEnv points OPENMUX_CONFIG_DIR at a fresh temp directory and
// clears every other openmux env var, restoring prior state on cleanup.
func setupTestEnv(t *testing.T) func() {
	t.Helper()

	vars := []string{
		"OPENMUX_CONFIG_DIR",
		"OPENMUX_WORKER_COUNT",
		"OPENMUX_SCROLLBACK_CAPACITY",
		"OPENMUX_KITTY_BUFFER_LIMIT",
		"OPENMUX_DEFAULT_SHELL",
		"OPENMUX_BRIDGE_ADDR",
		"OPENMUX_ATTACH_ADDR",
		"OPENMUX_MESH_CONTROL_URL",
	}
	orig := make(map[string]string, len(vars))
	for _, v := range vars {
		orig[v] = os.Getenv(v)
		os.Unsetenv(v)
	}

	tmpDir := t.TempDir()
	os.Setenv("OPENMUX_CONFIG_DIR", tmpDir)

	return func() {
		for _, v := range vars {
			if orig[v] != "" {
				os.Setenv(v, orig[v])
			} else {
				os.Unsetenv(v)
			}
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.WorkerCount != 4 {
		t.Errorf("WorkerCount = %d, want 4", cfg.WorkerCount)
	}
	if cfg.ScrollbackCapacity != 1000 {
		t.Errorf("ScrollbackCapacity = %d, want 1000", cfg.ScrollbackCapacity)
	}
	if cfg.BridgeAddr != "" || cfg.AttachAddr != "" || cfg.MeshControlURL != "" {
		t.Errorf("expected remote transports disabled by default, got %+v", cfg)
	}
}

func TestConfigSerializationRoundTrips(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BridgeAddr = ":7890"
	cfg.DefaultShell = "/bin/zsh"

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if loaded.BridgeAddr != cfg.BridgeAddr || loaded.DefaultShell != cfg.DefaultShell {
		t.Errorf("loaded = %+v, want %+v", loaded, cfg)
	}
}

func TestLoadFromFile(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	path, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath() failed: %v", err)
	}

	fileConfig := &Config{
		WorkerCount:        8,
		ScrollbackCapacity: 5000,
		DefaultShell:       "/bin/fish",
	}
	data, err := json.MarshalIndent(fileConfig, "", "  ")
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.WorkerCount != 8 || cfg.ScrollbackCapacity != 5000 || cfg.DefaultShell != "/bin/fish" {
		t.Errorf("cfg = %+v, want values from file", cfg)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	path, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath() failed: %v", err)
	}
	fileConfig := &Config{WorkerCount: 8, ScrollbackCapacity: 5000}
	data, _ := json.MarshalIndent(fileConfig, "", "  ")
	os.WriteFile(path, data, 0600)

	os.Setenv("OPENMUX_WORKER_COUNT", "16")
	os.Setenv("OPENMUX_SCROLLBACK_CAPACITY", "2000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.WorkerCount != 16 {
		t.Errorf("WorkerCount = %d, want 16 (env override)", cfg.WorkerCount)
	}
	if cfg.ScrollbackCapacity != 2000 {
		t.Errorf("ScrollbackCapacity = %d, want 2000 (env override)", cfg.ScrollbackCapacity)
	}
}

func TestAllEnvOverrides(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("OPENMUX_WORKER_COUNT", "2")
	os.Setenv("OPENMUX_SCROLLBACK_CAPACITY", "250")
	os.Setenv("OPENMUX_KITTY_BUFFER_LIMIT", "1048576")
	os.Setenv("OPENMUX_DEFAULT_SHELL", "/bin/zsh")
	os.Setenv("OPENMUX_BRIDGE_ADDR", ":9001")
	os.Setenv("OPENMUX_ATTACH_ADDR", ":9002")
	os.Setenv("OPENMUX_MESH_CONTROL_URL", "https://headscale.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.WorkerCount != 2 {
		t.Errorf("WorkerCount = %d, want 2", cfg.WorkerCount)
	}
	if cfg.ScrollbackCapacity != 250 {
		t.Errorf("ScrollbackCapacity = %d, want 250", cfg.ScrollbackCapacity)
	}
	if cfg.KittyBufferLimit != 1048576 {
		t.Errorf("KittyBufferLimit = %d, want 1048576", cfg.KittyBufferLimit)
	}
	if cfg.DefaultShell != "/bin/zsh" {
		t.Errorf("DefaultShell = %q, want /bin/zsh", cfg.DefaultShell)
	}
	if cfg.BridgeAddr != ":9001" {
		t.Errorf("BridgeAddr = %q, want :9001", cfg.BridgeAddr)
	}
	if cfg.AttachAddr != ":9002" {
		t.Errorf("AttachAddr = %q, want :9002", cfg.AttachAddr)
	}
	if cfg.MeshControlURL != "https://headscale.example.com" {
		t.Errorf("MeshControlURL = %q, want https://headscale.example.com", cfg.MeshControlURL)
	}
}

func TestSaveAndLoad(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	cfg := DefaultConfig()
	cfg.WorkerCount = 12
	cfg.BridgeAddr = ":7777"

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if loaded.WorkerCount != 12 || loaded.BridgeAddr != ":7777" {
		t.Errorf("loaded = %+v, want WorkerCount=12, BridgeAddr=:7777", loaded)
	}
}

func TestConfigDirOverride(t *testing.T) {
	tmpDir := t.TempDir()
	customDir := filepath.Join(tmpDir, "custom_config")

	os.Setenv("OPENMUX_CONFIG_DIR", customDir)
	defer os.Unsetenv("OPENMUX_CONFIG_DIR")

	dir, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() failed: %v", err)
	}
	if dir != customDir {
		t.Errorf("ConfigDir() = %q, want %q", dir, customDir)
	}
	if _, err := os.Stat(customDir); os.IsNotExist(err) {
		t.Errorf("config directory was not created")
	}
}

func TestLoadWithNoFileUsesDefaults(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.WorkerCount != 4 || cfg.ScrollbackCapacity != 1000 {
		t.Errorf("cfg = %+v, want defaults", cfg)
	}
}

func TestInvalidEnvVarsIgnored(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("OPENMUX_WORKER_COUNT", "not_a_number")
	os.Setenv("OPENMUX_SCROLLBACK_CAPACITY", "invalid")
	os.Setenv("OPENMUX_KITTY_BUFFER_LIMIT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.WorkerCount != 4 {
		t.Errorf("WorkerCount = %d, want default 4 (invalid env ignored)", cfg.WorkerCount)
	}
	if cfg.ScrollbackCapacity != 1000 {
		t.Errorf("ScrollbackCapacity = %d, want default 1000 (invalid env ignored)", cfg.ScrollbackCapacity)
	}
	if cfg.KittyBufferLimit != 16<<20 {
		t.Errorf("KittyBufferLimit = %d, want default (empty env ignored)", cfg.KittyBufferLimit)
	}
}
