package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"filippo.io/age"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"

	"github.com/aegis-agent/aegis/internal/approval"
	"github.com/aegis-agent/aegis/internal/autonomy"
	"github.com/aegis-agent/aegis/internal/capability"
	"github.com/aegis-agent/aegis/internal/config"
	"github.com/aegis-agent/aegis/internal/corectx"
	"github.com/aegis-agent/aegis/internal/dispatch"
	"github.com/aegis-agent/aegis/internal/events"
	"github.com/aegis-agent/aegis/internal/experiment"
	"github.com/aegis-agent/aegis/internal/governance"
	"github.com/aegis-agent/aegis/internal/heartbeat"
	"github.com/aegis-agent/aegis/internal/metricsticker"
	"github.com/aegis-agent/aegis/internal/notification"
	"github.com/aegis-agent/aegis/internal/rpc"
	"github.com/aegis-agent/aegis/internal/secrets"
	"github.com/aegis-agent/aegis/internal/sync"
)

// NewServeCommand returns the serve subcommand: the daemon's
// composition root, grounded on the teacher's cmd/commands/gateway.go
// (config load -> bus -> collaborators -> server -> signal-driven
// shutdown), generalized from a chat gateway to the agent daemon.
func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the agent daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Usage: "RPC host override"},
			&cli.IntFlag{Name: "port", Usage: "RPC port override"},
		},
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Warn("config not found, using defaults", "path", configPath, "error", err)
		cfg = &config.Config{}
	}

	logLevel := resolveLogLevel(cfg.Events.LogLevel)
	if cmd.Bool("debug") {
		logLevel = slog.LevelDebug
	}

	if cmd.IsSet("host") {
		cfg.RPC.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.RPC.Port = cmd.Int("port")
	}

	// Event bus, wired into every collaborator below.
	bus := events.NewBus(cfg.Events.BufferSize)
	defer bus.Close()

	textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(events.NewBusHandler(textHandler, bus, events.SourceAgent))
	slog.SetDefault(logger)

	actx := corectx.New(cfg, logger, bus)

	remoteClient, err := sync.NewRemoteClient(cfg.RemoteStore)
	if err != nil {
		return fmt.Errorf("init remote store client: %w", err)
	}

	// Age identity — optional. A missing key leaves approval
	// continuation refs travelling unsealed (internal/sync.sealer's
	// no-op mode), never a startup failure.
	identity := loadOrNilIdentity(logger)

	// Sync Bridge is constructed first: it only needs the remote
	// client, not the components it fronts — each of those declares
	// its own narrow Syncer interface that Bridge happens to satisfy.
	bridge := sync.New(actx, cfg.Sync, remoteClient, identity)
	defer bridge.Close()
	prometheus.MustRegister(sync.FailuresTotal)

	notifies := notification.New(actx, bridge)
	approvals := approval.New(actx, notifies, bridge)

	matrix := governance.NewMatrix(logger)
	governance.SeedDefaults(matrix)
	tolerance := governance.NewToleranceRegistry()
	facade := autonomy.New(actx, matrix, tolerance, notifies, approvals)

	caps := capability.NewRegistry()
	pool := dispatch.New(cfg.Dispatch.PoolWidth, logger)
	defer pool.Stop()

	ticker := metricsticker.New(cfg.Metrics.TickerInterval.Duration(), actx, nil)
	defer ticker.StopAll()

	registry := experiment.New(actx, facade, caps, pool, ticker, bridge)
	ticker.SetSink(registry)

	notifies.Restore()
	registry.Restore()
	facade.RestorePending(func(category, action string, reqCtx map[string]any) autonomy.ExecuteFn {
		return func(map[string]any) (map[string]any, error) {
			logger.Warn("resumed approval has no resumable action after restart", "category", category, "action", action)
			return nil, fmt.Errorf("autonomy: %s/%s is not resumable after restart", category, action)
		}
	})

	if err := approvals.StartHousekeeping(cfg.Approval.HousekeepingSchedule); err != nil {
		return fmt.Errorf("start approval housekeeping: %w", err)
	}
	defer approvals.StopHousekeeping()

	hbWriter := heartbeat.NewWriter(filepath.Join(config.AgentPath(), "heartbeat.json"))
	hbWriter.Start()
	defer hbWriter.Stop()

	server := rpc.New(actx, cfg.RPC, registry, facade, approvals, notifies, pool, bridge)
	server.RegisterMetrics()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func loadOrNilIdentity(logger *slog.Logger) *age.X25519Identity {
	path := secrets.KeyPath()
	identity, err := secrets.LoadIdentity(path)
	if err != nil {
		logger.Warn("no age identity on file, approval continuation refs travel unsealed", "path", path, "error", err)
		return nil
	}
	return identity
}

func resolveLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
