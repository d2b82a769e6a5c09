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

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ID != "node-1" {
		t.Errorf("Expected default id 'node-1', got '%s'", cfg.ID)
	}
	if cfg.ListenRaft != "127.0.0.1:7000" {
		t.Errorf("Expected default listen_raft '127.0.0.1:7000', got '%s'", cfg.ListenRaft)
	}
	if cfg.TickMillis != 100 {
		t.Errorf("Expected default tick_millis 100, got %d", cfg.TickMillis)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log_level 'info', got '%s'", cfg.LogLevel)
	}
	if cfg.LogJSON != false {
		t.Errorf("Expected default log_json false, got %v", cfg.LogJSON)
	}
	if cfg.Compression != "snappy" {
		t.Errorf("Expected default compression 'snappy', got '%s'", cfg.Compression)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{
			name:    "valid default config",
			cfg:     DefaultConfig(),
			wantErr: false,
		},
		{
			name: "valid three node config",
			cfg: &Config{
				ID:          "n1",
				Peers:       map[string]string{"n2": "10.0.0.2:7000", "n3": "10.0.0.3:7000"},
				ListenRaft:  "10.0.0.1:7000",
				DataDir:     "/var/lib/raftd",
				LogLevel:    "info",
				TickMillis:  100,
				Compression: "lz4",
			},
			wantErr: false,
		},
		{
			name: "empty id",
			cfg: &Config{
				ID:         "",
				ListenRaft: "127.0.0.1:7000",
				DataDir:    "data",
				LogLevel:   "info",
				TickMillis: 100,
			},
			wantErr: true,
		},
		{
			name: "empty listen_raft",
			cfg: &Config{
				ID:         "n1",
				ListenRaft: "",
				DataDir:    "data",
				LogLevel:   "info",
				TickMillis: 100,
			},
			wantErr: true,
		},
		{
			name: "empty data_dir",
			cfg: &Config{
				ID:         "n1",
				ListenRaft: "127.0.0.1:7000",
				DataDir:    "",
				LogLevel:   "info",
				TickMillis: 100,
			},
			wantErr: true,
		},
		{
			name: "non-positive tick_millis",
			cfg: &Config{
				ID:         "n1",
				ListenRaft: "127.0.0.1:7000",
				DataDir:    "data",
				LogLevel:   "info",
				TickMillis: 0,
			},
			wantErr: true,
		},
		{
			name: "invalid log level",
			cfg: &Config{
				ID:         "n1",
				ListenRaft: "127.0.0.1:7000",
				DataDir:    "data",
				LogLevel:   "invalid",
				TickMillis: 100,
			},
			wantErr: true,
		},
		{
			name: "invalid compression algorithm",
			cfg: &Config{
				ID:          "n1",
				ListenRaft:  "127.0.0.1:7000",
				DataDir:     "data",
				LogLevel:    "info",
				TickMillis:  100,
				Compression: "rot13",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "raftd_config_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	configContent := `# Test configuration
id = "n1"
listen_raft = "10.0.0.1:7000"
data_dir = "/tmp/raftd"
log_level = "debug"
log_json = true
tick_millis = 250
compression = "zstd"
peer.n2 = "10.0.0.2:7000"
peer.n3 = "10.0.0.3:7000"
`

	configPath := filepath.Join(tmpDir, "raftd.conf")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	cfg := mgr.Get()

	if cfg.ID != "n1" {
		t.Errorf("Expected id 'n1', got '%s'", cfg.ID)
	}
	if cfg.ListenRaft != "10.0.0.1:7000" {
		t.Errorf("Expected listen_raft '10.0.0.1:7000', got '%s'", cfg.ListenRaft)
	}
	if cfg.TickMillis != 250 {
		t.Errorf("Expected tick_millis 250, got %d", cfg.TickMillis)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log_level 'debug', got '%s'", cfg.LogLevel)
	}
	if cfg.LogJSON != true {
		t.Errorf("Expected log_json true, got %v", cfg.LogJSON)
	}
	if cfg.Peers["n2"] != "10.0.0.2:7000" || cfg.Peers["n3"] != "10.0.0.3:7000" {
		t.Errorf("Expected peers n2/n3 to be populated, got %v", cfg.Peers)
	}
	if cfg.ConfigFile != configPath {
		t.Errorf("Expected ConfigFile '%s', got '%s'", configPath, cfg.ConfigFile)
	}
}

func TestLoadFromEnv(t *testing.T) {
	origID := os.Getenv(EnvID)
	origLogLevel := os.Getenv(EnvLogLevel)
	origLogJSON := os.Getenv(EnvLogJSON)
	origSecret := os.Getenv(EnvSharedSecret)

	defer func() {
		os.Setenv(EnvID, origID)
		os.Setenv(EnvLogLevel, origLogLevel)
		os.Setenv(EnvLogJSON, origLogJSON)
		os.Setenv(EnvSharedSecret, origSecret)
	}()

	os.Setenv(EnvID, "n7")
	os.Setenv(EnvLogLevel, "debug")
	os.Setenv(EnvLogJSON, "true")
	os.Setenv(EnvSharedSecret, "testsecret")

	mgr := NewManager()
	mgr.LoadFromEnv()

	cfg := mgr.Get()

	if cfg.ID != "n7" {
		t.Errorf("Expected id 'n7' from env, got '%s'", cfg.ID)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log_level 'debug' from env, got '%s'", cfg.LogLevel)
	}
	if cfg.LogJSON != true {
		t.Errorf("Expected log_json true from env, got %v", cfg.LogJSON)
	}
	if cfg.SharedSecret != "testsecret" {
		t.Errorf("Expected shared_secret 'testsecret' from env, got '%s'", cfg.SharedSecret)
	}
}

func TestConfigPrecedence(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "raftd_config_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	configContent := `id = "file-id"
listen_raft = "127.0.0.1:7000"
data_dir = "data"
log_level = "info"
tick_millis = 100
`
	configPath := filepath.Join(tmpDir, "raftd.conf")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	origID := os.Getenv(EnvID)
	defer os.Setenv(EnvID, origID)
	os.Setenv(EnvID, "env-id")

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	mgr.LoadFromEnv()

	cfg := mgr.Get()

	if cfg.ID != "env-id" {
		t.Errorf("Expected id 'env-id' (env override), got '%s'", cfg.ID)
	}
}

func TestToTOML(t *testing.T) {
	cfg := &Config{
		ID:         "n1",
		Peers:      map[string]string{"n2": "10.0.0.2:7000"},
		ListenRaft: "10.0.0.1:7000",
		DataDir:    "/var/lib/raftd",
		LogLevel:   "info",
		TickMillis: 100,
	}

	toml := cfg.ToTOML()

	if !contains(toml, "id = \"n1\"") {
		t.Error("TOML output missing id")
	}
	if !contains(toml, "listen_raft = \"10.0.0.1:7000\"") {
		t.Error("TOML output missing listen_raft")
	}
	if !contains(toml, "peer.n2 = \"10.0.0.2:7000\"") {
		t.Error("TOML output missing peer entry")
	}
}

func TestSaveToFile(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "raftd_config_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	cfg := DefaultConfig()
	cfg.ID = "n9"
	cfg.TickMillis = 500

	configPath := filepath.Join(tmpDir, "subdir", "raftd.conf")
	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("Config file was not created")
	}

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}

	loaded := mgr.Get()
	if loaded.ID != "n9" {
		t.Errorf("Expected id 'n9', got '%s'", loaded.ID)
	}
	if loaded.TickMillis != 500 {
		t.Errorf("Expected tick_millis 500, got %d", loaded.TickMillis)
	}
}

func TestReload(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "raftd_config_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	configContent := `id = "n1"
listen_raft = "127.0.0.1:7000"
data_dir = "data"
log_level = "info"
tick_millis = 100
`
	configPath := filepath.Join(tmpDir, "raftd.conf")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	cfg := mgr.Get()
	if cfg.TickMillis != 100 {
		t.Errorf("Expected initial tick_millis 100, got %d", cfg.TickMillis)
	}

	reloadCalled := false
	mgr.OnReload(func(c *Config) {
		reloadCalled = true
	})

	newContent := `id = "n1"
listen_raft = "127.0.0.1:7000"
data_dir = "data"
log_level = "debug"
tick_millis = 200
`
	if err := os.WriteFile(configPath, []byte(newContent), 0644); err != nil {
		t.Fatalf("Failed to update config file: %v", err)
	}

	if err := mgr.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	cfg = mgr.Get()
	if cfg.TickMillis != 200 {
		t.Errorf("Expected reloaded tick_millis 200, got %d", cfg.TickMillis)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected reloaded log_level 'debug', got '%s'", cfg.LogLevel)
	}
	if !reloadCalled {
		t.Error("Reload callback was not called")
	}
}

func TestGlobalManager(t *testing.T) {
	mgr := Global()
	if mgr == nil {
		t.Error("Global() returned nil")
	}

	mgr2 := Global()
	if mgr != mgr2 {
		t.Error("Global() returned different instances")
	}
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()
	str := cfg.String()

	if !contains(str, "ID:") {
		t.Error("String() missing ID")
	}
	if !contains(str, "node-1") {
		t.Error("String() missing id value")
	}
}

// Helper function
func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(s) > 0 && containsHelper(s, substr))
}

func containsHelper(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
