package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	content := `{
	// This is a JSONC comment
	"rpc": {
		"host": "0.0.0.0",
		"port": 9999
	},
	"remote_store": {
		"host": "store.internal",
		"port": 443,
		"root_ca_path": "${{ .Env.ROOT_CA_PATH }}"
	}
}`

	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("ROOT_CA_PATH", "/etc/aegis/ca.pem")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.RPC.Host != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0, got %s", cfg.RPC.Host)
	}
	if cfg.RPC.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.RPC.Port)
	}
	if cfg.RemoteStore.Host != "store.internal" {
		t.Errorf("expected remote_store host store.internal, got %s", cfg.RemoteStore.Host)
	}
	if cfg.RemoteStore.RootCAPath != "/etc/aegis/ca.pem" {
		t.Errorf("expected root_ca_path resolved from env, got %s", cfg.RemoteStore.RootCAPath)
	}
}

func TestLoadDefaults(t *testing.T) {
	content := `{}`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.RPC.Host != "127.0.0.1" {
		t.Errorf("expected default host 127.0.0.1, got %s", cfg.RPC.Host)
	}
	if cfg.RPC.Port != 50051 {
		t.Errorf("expected default port 50051, got %d", cfg.RPC.Port)
	}
	if cfg.RemoteStore.Port != 50052 {
		t.Errorf("expected default remote store port 50052, got %d", cfg.RemoteStore.Port)
	}
	if cfg.Events.BufferSize != 1024 {
		t.Errorf("expected default buffer 1024, got %d", cfg.Events.BufferSize)
	}
}

func TestLoadDefaults_Dispatch(t *testing.T) {
	content := `{}`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Dispatch.PoolWidth != 5 {
		t.Errorf("expected default pool_width 5, got %d", cfg.Dispatch.PoolWidth)
	}
	if cfg.Approval.DefaultExpiryHours != 24 {
		t.Errorf("expected default_expiry_hours 24, got %d", cfg.Approval.DefaultExpiryHours)
	}
	if cfg.Metrics.TickerInterval.Duration() != 5*time.Second {
		t.Errorf("expected default ticker_interval 5s, got %v", cfg.Metrics.TickerInterval.Duration())
	}
	if !cfg.Sync.IsEnabled() {
		t.Error("expected sync enabled by default")
	}
}

func TestLoadDefaults_LogLevel(t *testing.T) {
	content := `{}`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Events.LogLevel != "info" {
		t.Errorf("expected default log_level 'info', got %q", cfg.Events.LogLevel)
	}
}

func TestExpandEnvTemplates(t *testing.T) {
	t.Setenv("TEST_KEY", "my-secret")
	result := expandEnvTemplates(`{"key": "${{ .Env.TEST_KEY }}"}`)
	expected := `{"key": "my-secret"}`
	if result != expected {
		t.Errorf("expected %s, got %s", expected, result)
	}
}
