// Command agentctl is the operator CLI for the agent daemon: it talks
// to a running agentd's RPC Service (C10) over HTTP+JSON/websocket,
// never touching the daemon's in-process state directly. Grounded on
// the teacher's cmd/commands/ask.go (CLI flags, a context deadline,
// dialing a long-lived remote endpoint, streaming frames to stdout),
// adapted from a websocket chat session to short-lived HTTP calls plus
// one websocket log stream.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/coder/websocket"
	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:  "agentctl",
		Usage: "Operator CLI for the agent daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "agentd RPC base URL",
				Value: "http://127.0.0.1:50051",
			},
		},
		Commands: []*cli.Command{
			newCreateCommand(),
			newStartCommand(),
			newStopCommand(),
			newStatusCommand(),
			newAgentStatusCommand(),
			newAgentStopCommand(),
			newApproveCommand(),
			newLogsCommand(),
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func clientFrom(cmd *cli.Command) *client {
	return newClient(cmd.String("addr"))
}

func newCreateCommand() *cli.Command {
	return &cli.Command{
		Name:      "create",
		Usage:     "Create an experiment",
		ArgsUsage: "<kind> <name>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "description"},
			&cli.StringFlag{Name: "params", Usage: "JSON object of parameters"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() < 2 {
				return fmt.Errorf("usage: agentctl create <kind> <name>")
			}
			params := map[string]any{}
			if raw := cmd.String("params"); raw != "" {
				if err := json.Unmarshal([]byte(raw), &params); err != nil {
					return fmt.Errorf("parse --params: %w", err)
				}
			}

			body := map[string]any{
				"kind":        cmd.Args().Get(0),
				"name":        cmd.Args().Get(1),
				"description": cmd.String("description"),
				"parameters":  params,
			}
			var resp struct {
				ID     string `json:"id"`
				Status struct {
					Success bool   `json:"success"`
					Message string `json:"message"`
				} `json:"status"`
			}
			if err := clientFrom(cmd).post(ctx, "/api/experiments/", body, &resp); err != nil {
				return err
			}
			if !resp.Status.Success {
				return fmt.Errorf("refused: %s", resp.Status.Message)
			}
			fmt.Println(resp.ID)
			return nil
		},
	}
}

func newStartCommand() *cli.Command {
	return &cli.Command{
		Name:      "start",
		Usage:     "Start a DEFINED experiment",
		ArgsUsage: "<id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id := cmd.Args().First()
			if id == "" {
				return fmt.Errorf("usage: agentctl start <id>")
			}
			var resp struct {
				Success           bool   `json:"success"`
				Message           string `json:"message"`
				Prohibited        bool   `json:"prohibited"`
				ApprovalRequested bool   `json:"approval_requested"`
				RequestID         string `json:"request_id"`
			}
			if err := clientFrom(cmd).post(ctx, "/api/experiments/"+id+"/start", nil, &resp); err != nil {
				return err
			}
			switch {
			case resp.Prohibited:
				fmt.Printf("prohibited: %s\n", resp.Message)
			case resp.ApprovalRequested:
				fmt.Printf("approval requested: %s (request id %s)\n", resp.Message, resp.RequestID)
			case resp.Success:
				fmt.Println("started")
			default:
				return fmt.Errorf("start failed: %s", resp.Message)
			}
			return nil
		},
	}
}

func newStopCommand() *cli.Command {
	return &cli.Command{
		Name:      "stop",
		Usage:     "Stop a RUNNING experiment",
		ArgsUsage: "<id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id := cmd.Args().First()
			if id == "" {
				return fmt.Errorf("usage: agentctl stop <id>")
			}
			var resp struct {
				Success bool   `json:"success"`
				Message string `json:"message"`
			}
			if err := clientFrom(cmd).post(ctx, "/api/experiments/"+id+"/stop", nil, &resp); err != nil {
				return err
			}
			if !resp.Success {
				return fmt.Errorf("stop failed: %s", resp.Message)
			}
			fmt.Println("stopped")
			return nil
		},
	}
}

func newStatusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show an experiment's status",
		ArgsUsage: "<id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id := cmd.Args().First()
			if id == "" {
				return fmt.Errorf("usage: agentctl status <id>")
			}
			var resp map[string]any
			if err := clientFrom(cmd).get(ctx, "/api/experiments/"+id, &resp); err != nil {
				return err
			}
			data, _ := json.MarshalIndent(resp, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	}
}

func newAgentStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "agent-status",
		Usage: "Show the agent's overall status",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var resp map[string]any
			if err := clientFrom(cmd).get(ctx, "/api/agent/status", &resp); err != nil {
				return err
			}
			data, _ := json.MarshalIndent(resp, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	}
}

func newAgentStopCommand() *cli.Command {
	return &cli.Command{
		Name:  "agent-stop",
		Usage: "Kill switch: stop every running experiment and the dispatcher pool",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var resp struct {
				Success bool   `json:"success"`
				Message string `json:"message"`
			}
			if err := clientFrom(cmd).post(ctx, "/api/agent/stop", nil, &resp); err != nil {
				return err
			}
			if !resp.Success {
				return fmt.Errorf("agent-stop failed: %s", resp.Message)
			}
			fmt.Println("stopping")
			return nil
		},
	}
}

func newApproveCommand() *cli.Command {
	return &cli.Command{
		Name:      "approve",
		Usage:     "Approve or reject a pending approval request",
		ArgsUsage: "<request-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "reject", Usage: "Reject instead of approve"},
			&cli.StringFlag{Name: "user", Usage: "Deciding user id", Value: "operator"},
			&cli.StringFlag{Name: "reason"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id := cmd.Args().First()
			if id == "" {
				return fmt.Errorf("usage: agentctl approve <request-id>")
			}
			body := map[string]any{
				"approved": !cmd.Bool("reject"),
				"user_id":  cmd.String("user"),
				"reason":   cmd.String("reason"),
			}
			var resp struct {
				Success bool   `json:"success"`
				Message string `json:"message"`
			}
			if err := clientFrom(cmd).post(ctx, "/api/approvals/"+id+"/decision", body, &resp); err != nil {
				return err
			}
			if !resp.Success {
				return fmt.Errorf("decision failed: %s", resp.Message)
			}
			fmt.Println("recorded")
			return nil
		},
	}
}

func newLogsCommand() *cli.Command {
	return &cli.Command{
		Name:  "logs",
		Usage: "Stream agent logs",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "experiment-id", Usage: "Filter to one experiment"},
			&cli.StringFlag{Name: "min-level", Usage: "debug|info|warn|error", Value: "info"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			wsURL := toWebsocketURL(cmd.String("addr")) + "/api/logs"
			if eid := cmd.String("experiment-id"); eid != "" {
				wsURL += "?experiment_id=" + eid + "&min_level=" + cmd.String("min-level")
			} else {
				wsURL += "?min_level=" + cmd.String("min-level")
			}

			conn, _, err := websocket.Dial(ctx, wsURL, nil)
			if err != nil {
				return fmt.Errorf("dial logs stream: %w", err)
			}
			defer conn.Close(websocket.StatusNormalClosure, "")

			for {
				_, data, err := conn.Read(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("read log entry: %w", err)
				}
				var entry map[string]any
				if err := json.Unmarshal(data, &entry); err != nil {
					continue
				}
				fmt.Printf("[%v] %v: %v\n", entry["timestamp"], entry["level"], entry["message"])
			}
		},
	}
}

func toWebsocketURL(httpURL string) string {
	switch {
	case len(httpURL) >= 5 && httpURL[:5] == "https":
		return "wss" + httpURL[5:]
	case len(httpURL) >= 4 && httpURL[:4] == "http":
		return "ws" + httpURL[4:]
	default:
		return httpURL
	}
}
