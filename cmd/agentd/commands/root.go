// Package commands implements the agentd CLI: the daemon's serve
// command plus onboarding/inspection subcommands, grounded on the
// teacher's cmd/commands package (root.go's flag/subcommand tree,
// wake.go's ~/.ozzie bootstrap, status.go's heartbeat check).
package commands

import (
	"github.com/urfave/cli/v3"

	"github.com/aegis-agent/aegis/internal/config"
)

// NewRootCommand returns the top-level CLI command.
func NewRootCommand(version, commit string) *cli.Command {
	return &cli.Command{
		Name:    "agentd",
		Usage:   "Autonomous experiment agent daemon",
		Version: version + " (" + commit + ")",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   config.ConfigPath(),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			NewWakeCommand(),
			NewServeCommand(),
			NewStatusCommand(),
		},
	}
}
