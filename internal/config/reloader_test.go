package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

func TestReloader_Current(t *testing.T) {
	cfg := &Config{}
	cfg.RPC.Port = 9999

	r := NewReloader("", cfg)
	got := r.Current()
	if got.RPC.Port != 9999 {
		t.Errorf("Current().RPC.Port = %d, want 9999", got.RPC.Port)
	}
}

func TestReloader_Reload(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.jsonc")

	configContent := `{"rpc": {"host": "127.0.0.1", "port": 50051}}`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatal(err)
	}

	initial := &Config{}
	r := NewReloader(configPath, initial)

	var callCount atomic.Int32
	r.OnReload(func(cfg *Config) {
		callCount.Add(1)
	})

	// Change the listen port between loads to observe the swap.
	if err := os.WriteFile(configPath, []byte(`{"rpc": {"host": "127.0.0.1", "port": 50099}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := r.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if callCount.Load() != 1 {
		t.Errorf("listener called %d times, want 1", callCount.Load())
	}

	got := r.Current()
	if got == initial {
		t.Error("Current() still returns initial config after reload")
	}
	if got.RPC.Port != 50099 {
		t.Errorf("RPC.Port = %d, want 50099", got.RPC.Port)
	}
}

func TestReloader_ReloadMissingFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "does-not-exist.jsonc")

	initial := &Config{}
	r := NewReloader(configPath, initial)

	if err := r.Reload(); err == nil {
		t.Fatal("expected error reloading a missing config file")
	}
}
