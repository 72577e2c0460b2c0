package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/marcozac/go-jsonc"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// Load reads a JSONC config file, strips comments, expands ${{ .Env.VAR }} templates,
// unmarshals it into Config, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variable templates (before stripping, since templates are in strings)
	expanded := expandEnvTemplates(string(data))

	// Strip JSONC comments and unmarshal
	var cfg Config
	if err := jsonc.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// applyDefaults fills in zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.RPC.Host == "" {
		cfg.RPC.Host = "127.0.0.1"
	}
	if cfg.RPC.Port == 0 {
		cfg.RPC.Port = 50051
	}
	if cfg.RemoteStore.Host == "" {
		cfg.RemoteStore.Host = "127.0.0.1"
	}
	if cfg.RemoteStore.Port == 0 {
		cfg.RemoteStore.Port = 50052
	}
	if cfg.Dispatch.PoolWidth == 0 {
		cfg.Dispatch.PoolWidth = 5
	}
	if cfg.Approval.DefaultExpiryHours == 0 {
		cfg.Approval.DefaultExpiryHours = 24
	}
	if cfg.Approval.HousekeepingSchedule == "" {
		cfg.Approval.HousekeepingSchedule = "@every 30s"
	}
	if cfg.Metrics.TickerInterval == 0 {
		cfg.Metrics.TickerInterval = Duration(5 * time.Second)
	}
	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 1024
	}
	if cfg.Events.LogLevel == "" {
		cfg.Events.LogLevel = "info"
	}
}
