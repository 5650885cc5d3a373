// Package config provides configuration loading and persistence for
// openmux.
//
// Configuration is loaded from:
//  1. ~/.openmux/config.json (file)
//  2. Environment variables (override file values)
//
// Environment variables:
//   - OPENMUX_WORKER_COUNT: internal/workerpool shard count
//   - OPENMUX_SCROLLBACK_CAPACITY: internal/term scrollback cache capacity, rows
//   - OPENMUX_KITTY_BUFFER_LIMIT: internal/query Kitty transmit-cache byte limit
//   - OPENMUX_DEFAULT_SHELL: shell used when a pane's SpawnConfig omits Command
//   - OPENMUX_BRIDGE_ADDR: listen address for internal/bridge's websocket server
//   - OPENMUX_ATTACH_ADDR: listen address for internal/attach's SSH server
//   - OPENMUX_MESH_CONTROL_URL: tailnet control-server URL for internal/meshnet
//     (attach falls back to a plain TCP listener when unset)
//   - OPENMUX_CONFIG_DIR: override config directory (for testing)
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all configuration for an openmux session.
type Config struct {
	// WorkerCount is the number of internal/workerpool shard goroutines.
	WorkerCount int `json:"worker_count"`

	// ScrollbackCapacity is the default per-pane scrollback row capacity
	// internal/term.New is called with.
	ScrollbackCapacity int `json:"scrollback_capacity"`

	// KittyBufferLimit caps internal/query's Kitty image transmit-cache
	// size, in bytes, before the oldest entries are evicted.
	KittyBufferLimit int `json:"kitty_buffer_limit"`

	// DefaultShell is the command run when a pane's SpawnConfig leaves
	// Command empty; internal/pty falls back to $SHELL or /bin/bash if
	// this is also empty.
	DefaultShell string `json:"default_shell,omitempty"`

	// BridgeAddr is the listen address for internal/bridge's websocket
	// server. Empty disables the bridge.
	BridgeAddr string `json:"bridge_addr,omitempty"`

	// AttachAddr is the listen address for internal/attach's SSH server.
	// Empty disables direct SSH attach.
	AttachAddr string `json:"attach_addr,omitempty"`

	// MeshControlURL, if set, makes internal/attach bind its listener on
	// a Tailscale/Headscale mesh (via internal/meshnet) instead of a
	// plain TCP socket.
	MeshControlURL string `json:"mesh_control_url,omitempty"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		WorkerCount:        4,
		ScrollbackCapacity: 1000,
		KittyBufferLimit:   16 << 20,
		DefaultShell:       "",
		BridgeAddr:         "",
		AttachAddr:         "",
		MeshControlURL:     "",
	}
}

// ConfigDir returns the configuration directory path, creating it if
// necessary. Respects OPENMUX_CONFIG_DIR for testing.
func ConfigDir() (string, error) {
	if testDir := os.Getenv("OPENMUX_CONFIG_DIR"); testDir != "" {
		if err := os.MkdirAll(testDir, 0700); err != nil {
			return "", fmt.Errorf("config: create config directory: %w", err)
		}
		return testDir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: determine home directory: %w", err)
	}

	dir := filepath.Join(home, ".openmux")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("config: create config directory: %w", err)
	}
	return dir, nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads configuration from file and applies environment variable
// overrides. Priority: environment variables > config file > defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// A missing or invalid config file is not an error; defaults apply.
	_ = cfg.loadFromFile()

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) loadFromFile() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, c)
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("OPENMUX_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.WorkerCount = n
		}
	}
	if v := os.Getenv("OPENMUX_SCROLLBACK_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ScrollbackCapacity = n
		}
	}
	if v := os.Getenv("OPENMUX_KITTY_BUFFER_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.KittyBufferLimit = n
		}
	}
	if v := os.Getenv("OPENMUX_DEFAULT_SHELL"); v != "" {
		c.DefaultShell = v
	}
	if v := os.Getenv("OPENMUX_BRIDGE_ADDR"); v != "" {
		c.BridgeAddr = v
	}
	if v := os.Getenv("OPENMUX_ATTACH_ADDR"); v != "" {
		c.AttachAddr = v
	}
	if v := os.Getenv("OPENMUX_MESH_CONTROL_URL"); v != "" {
		c.MeshControlURL = v
	}
}

// Save writes configuration to the config file.
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("config: create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("config: write config file: %w", err)
	}
	return nil
}
