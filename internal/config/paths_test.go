package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAgentPath_Default(t *testing.T) {
	t.Setenv("AEGIS_PATH", "")

	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatal(err)
	}

	got := AgentPath()
	want := filepath.Join(home, ".aegis")
	if got != want {
		t.Errorf("AgentPath() = %q, want %q", got, want)
	}
}

func TestAgentPath_EnvOverride(t *testing.T) {
	t.Setenv("AEGIS_PATH", "/tmp/custom-aegis")

	got := AgentPath()
	want := "/tmp/custom-aegis"
	if got != want {
		t.Errorf("AgentPath() = %q, want %q", got, want)
	}
}

func TestConfigPath(t *testing.T) {
	t.Setenv("AEGIS_PATH", "/tmp/test-aegis")

	got := ConfigPath()
	want := "/tmp/test-aegis/config.jsonc"
	if got != want {
		t.Errorf("ConfigPath() = %q, want %q", got, want)
	}
}
