/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package config loads and validates raftd's node configuration: its
peer identity, the static peer list, listener addresses, and the
ambient knobs (tick interval, compression, discovery, TLS) that don't
belong in the core role machine.

Configuration can come from a file (a small key = value format, one
setting per line, double-quoted strings) or environment variables;
environment variables always win over the file.
*/
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Environment variable names recognized by LoadFromEnv.
const (
	EnvID            = "RAFTD_ID"
	EnvListenRaft    = "RAFTD_LISTEN_RAFT"
	EnvDataDir       = "RAFTD_DATA_DIR"
	EnvLogLevel      = "RAFTD_LOG_LEVEL"
	EnvLogJSON       = "RAFTD_LOG_JSON"
	EnvTickMillis    = "RAFTD_TICK_MILLIS"
	EnvCompression   = "RAFTD_COMPRESSION"
	EnvDiscovery     = "RAFTD_DISCOVERY_ENABLED"
	EnvSharedSecret  = "RAFTD_SHARED_SECRET"
)

// Config is a single node's full configuration.
type Config struct {
	ID          string            `toml:"id"`
	Peers       map[string]string `toml:"peers"` // peer id -> address, excludes self
	ListenRaft  string            `toml:"listen_raft"`
	DataDir     string            `toml:"data_dir"`
	LogLevel    string            `toml:"log_level"`
	LogJSON     bool              `toml:"log_json"`
	TickMillis  int               `toml:"tick_millis"`
	Compression string            `toml:"compression"` // none|gzip|lz4|snappy|zstd

	DiscoveryEnabled bool   `toml:"discovery_enabled"`
	SharedSecret     string `toml:"-"` // never serialized to disk

	ConfigFile string `toml:"-"`
}

// DefaultConfig returns the out-of-the-box single-node-friendly config.
func DefaultConfig() *Config {
	return &Config{
		ID:          "node-1",
		Peers:       map[string]string{},
		ListenRaft:  "127.0.0.1:7000",
		DataDir:     "raftd-data",
		LogLevel:    "info",
		LogJSON:     false,
		TickMillis:  100,
		Compression: "snappy",
	}
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
var validCompression = map[string]bool{"none": true, "gzip": true, "lz4": true, "snappy": true, "zstd": true, "": true}

// Validate checks invariants that the rest of raftd assumes hold.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("config: id must not be empty")
	}
	if strings.TrimSpace(c.ListenRaft) == "" {
		return fmt.Errorf("config: listen_raft must not be empty")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: data_dir must not be empty")
	}
	if _, ok := c.Peers[c.ID]; ok {
		return fmt.Errorf("config: peers must not contain id %q", c.ID)
	}
	if c.TickMillis <= 0 {
		return fmt.Errorf("config: tick_millis must be positive, got %d", c.TickMillis)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("config: invalid log_level %q", c.LogLevel)
	}
	if !validCompression[strings.ToLower(c.Compression)] {
		return fmt.Errorf("config: invalid compression algorithm %q", c.Compression)
	}
	return nil
}

// PeerIDs returns the configured peer ids (excluding self), sorted for
// determinism.
func (c *Config) PeerIDs() []string {
	out := make([]string, 0, len(c.Peers))
	for id := range c.Peers {
		if id == c.ID {
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ToTOML renders the config in the same small key = value format
// LoadFromFile accepts.
func (c *Config) ToTOML() string {
	var b strings.Builder
	fmt.Fprintf(&b, "id = %q\n", c.ID)
	fmt.Fprintf(&b, "listen_raft = %q\n", c.ListenRaft)
	fmt.Fprintf(&b, "data_dir = %q\n", c.DataDir)
	fmt.Fprintf(&b, "log_level = %q\n", c.LogLevel)
	fmt.Fprintf(&b, "log_json = %t\n", c.LogJSON)
	fmt.Fprintf(&b, "tick_millis = %d\n", c.TickMillis)
	fmt.Fprintf(&b, "compression = %q\n", c.Compression)
	fmt.Fprintf(&b, "discovery_enabled = %t\n", c.DiscoveryEnabled)
	for _, id := range c.PeerIDs() {
		fmt.Fprintf(&b, "peer.%s = %q\n", id, c.Peers[id])
	}
	return b.String()
}

// SaveToFile writes ToTOML's output to path, creating parent
// directories as needed.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(c.ToTOML()), 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// String renders a human-readable one-line summary.
func (c *Config) String() string {
	return fmt.Sprintf("Config{ID: %s, Role: raft, ListenRaft: %s, Peers: %d, LogLevel: %s}",
		c.ID, c.ListenRaft, len(c.Peers), c.LogLevel)
}

// Manager owns the active Config, supports hot reload from its
// backing file, and notifies registered callbacks on reload.
type Manager struct {
	mu        sync.RWMutex
	cfg       *Config
	path      string
	callbacks []func(*Config)
}

// NewManager returns a Manager seeded with DefaultConfig.
func NewManager() *Manager {
	return &Manager{cfg: DefaultConfig()}
}

// Get returns the currently active Config. Callers must not mutate it.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// LoadFromFile parses path as a sequence of `key = value` lines,
// applies recognized keys onto a copy of the current config, and
// makes the result active if it validates.
func (m *Manager) LoadFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	m.mu.Lock()
	cfg := *m.cfg
	m.mu.Unlock()
	cfg.Peers = cloneMap(cfg.Peers)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := splitKV(line)
		if !ok {
			continue
		}
		if err := applyKey(&cfg, key, value); err != nil {
			return fmt.Errorf("config: %s: %w", path, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg.ConfigFile = path
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	m.cfg = &cfg
	m.path = path
	m.mu.Unlock()
	return nil
}

// LoadFromEnv overlays recognized RAFTD_* environment variables onto
// the active config. Unset variables leave the current value in place.
func (m *Manager) LoadFromEnv() {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg := *m.cfg
	cfg.Peers = cloneMap(cfg.Peers)

	if v, ok := os.LookupEnv(EnvID); ok {
		cfg.ID = v
	}
	if v, ok := os.LookupEnv(EnvListenRaft); ok {
		cfg.ListenRaft = v
	}
	if v, ok := os.LookupEnv(EnvDataDir); ok {
		cfg.DataDir = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv(EnvLogJSON); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.LogJSON = b
		}
	}
	if v, ok := os.LookupEnv(EnvTickMillis); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TickMillis = n
		}
	}
	if v, ok := os.LookupEnv(EnvCompression); ok {
		cfg.Compression = v
	}
	if v, ok := os.LookupEnv(EnvDiscovery); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.DiscoveryEnabled = b
		}
	}
	if v, ok := os.LookupEnv(EnvSharedSecret); ok {
		cfg.SharedSecret = v
	}

	m.cfg = &cfg
}

// Reload re-reads the file most recently passed to LoadFromFile and
// invokes every registered callback on success.
func (m *Manager) Reload() error {
	m.mu.RLock()
	path := m.path
	m.mu.RUnlock()
	if path == "" {
		return fmt.Errorf("config: Reload called before LoadFromFile")
	}
	if err := m.LoadFromFile(path); err != nil {
		return err
	}
	cfg := m.Get()
	m.mu.RLock()
	callbacks := append([]func(*Config){}, m.callbacks...)
	m.mu.RUnlock()
	for _, cb := range callbacks {
		cb(cfg)
	}
	return nil
}

// OnReload registers cb to be called after every successful Reload.
func (m *Manager) OnReload(cb func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func splitKV(line string) (key, value string, ok bool) {
	idx := strings.Index(line, "=")
	if idx < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:idx])
	value = strings.TrimSpace(line[idx+1:])
	value = strings.Trim(value, `"`)
	return key, value, true
}

func applyKey(cfg *Config, key, value string) error {
	switch {
	case key == "id":
		cfg.ID = value
	case key == "listen_raft":
		cfg.ListenRaft = value
	case key == "data_dir":
		cfg.DataDir = value
	case key == "log_level":
		cfg.LogLevel = value
	case key == "log_json":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid log_json value %q", value)
		}
		cfg.LogJSON = b
	case key == "tick_millis":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid tick_millis value %q", value)
		}
		cfg.TickMillis = n
	case key == "compression":
		cfg.Compression = value
	case key == "discovery_enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid discovery_enabled value %q", value)
		}
		cfg.DiscoveryEnabled = b
	case strings.HasPrefix(key, "peer."):
		id := strings.TrimPrefix(key, "peer.")
		if cfg.Peers == nil {
			cfg.Peers = make(map[string]string)
		}
		cfg.Peers[id] = value
	default:
		// Unknown keys are ignored for forward compatibility.
	}
	return nil
}

var (
	globalOnce sync.Once
	globalMgr  *Manager
)

// Global returns the process-wide Manager, creating it on first use.
func Global() *Manager {
	globalOnce.Do(func() {
		globalMgr = NewManager()
	})
	return globalMgr
}
