package config

import (
	"os"
	"path/filepath"
)

// AgentPath returns the root directory for agent data.
// It uses $AEGIS_PATH if set, otherwise defaults to ~/.aegis.
func AgentPath() string {
	if v := os.Getenv("AEGIS_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".aegis")
	}
	return filepath.Join(home, ".aegis")
}

// ConfigPath returns the path to the agent config file.
func ConfigPath() string {
	return filepath.Join(AgentPath(), "config.jsonc")
}

// DotenvPath returns the path to the agent's .env file.
func DotenvPath() string {
	return filepath.Join(AgentPath(), ".env")
}
