package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/aegis-agent/aegis/internal/config"
	"github.com/aegis-agent/aegis/internal/secrets"
)

// NewWakeCommand returns the onboarding subcommand.
func NewWakeCommand() *cli.Command {
	return &cli.Command{
		Name:   "wake",
		Usage:  "Initialize the agent home directory (~/.aegis)",
		Action: runWake,
	}
}

func runWake(_ context.Context, _ *cli.Command) error {
	root := config.AgentPath()
	created := false

	dirs := []string{root, filepath.Join(root, "logs")}
	for _, d := range dirs {
		if _, err := os.Stat(d); err != nil {
			if err := os.MkdirAll(d, 0o755); err != nil {
				return fmt.Errorf("create dir %s: %w", d, err)
			}
			fmt.Printf("  Created %s\n", d)
			created = true
		}
	}

	configPath := config.ConfigPath()
	if _, err := os.Stat(configPath); err != nil {
		if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("  Created %s\n", configPath)
		created = true
	}

	dotenvPath := config.DotenvPath()
	if _, err := os.Stat(dotenvPath); err != nil {
		if err := os.WriteFile(dotenvPath, []byte(defaultDotenv), 0o600); err != nil {
			return fmt.Errorf("write .env: %w", err)
		}
		fmt.Printf("  Created %s\n", dotenvPath)
		created = true
	}

	keyPath := secrets.KeyPath()
	if _, err := os.Stat(keyPath); err != nil {
		if err := secrets.GenerateIdentity(keyPath); err != nil {
			return fmt.Errorf("generate age identity: %w", err)
		}
		fmt.Printf("  Created %s\n", keyPath)
		created = true
	}

	if !created {
		fmt.Printf("Already awake — %s is complete. Nothing to do.\n", root)
		return nil
	}

	fmt.Println(wakeMessage(root))
	return nil
}

const defaultConfig = `{
	// Aegis agent configuration
	"rpc": {
		"host": "127.0.0.1",
		"port": 50051
	},

	"remote_store": {
		"host": "127.0.0.1",
		"port": 50052
	},

	"sync": {
		"enabled": true
	},

	"dispatch": {
		"pool_width": 5
	},

	"approval": {
		"default_expiry_hours": 24
	},

	"metrics": {
		"ticker_interval": "5s"
	},

	"events": {
		"buffer_size": 1024,
		"log_level": "info"
	}
}
`

const defaultDotenv = `# Aegis agent environment variables
# This file is loaded automatically. Existing env vars are never overridden.

# ROOT_CA_PATH=/etc/aegis/ca.pem
`

func wakeMessage(root string) string {
	return fmt.Sprintf(`
  Home set up at %s
  Config, logs, age key — all in there.

  Next steps:
    1. Tweak %s/config.jsonc if you feel like it
    2. Run: agentd serve

`, root, root)
}
