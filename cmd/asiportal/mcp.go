package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/ASI-Josh/asiportal/internal/api"
	"github.com/ASI-Josh/asiportal/internal/config"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the portal tools over MCP (stdio)",
	Long: `Serve the portal tools to an MCP client over stdin/stdout.

The client acts as the local administrator: it can propose, approve and
reject actions and talk to the agents. Logs go to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	go a.mailer.Run(ctx)

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Conversation: a.orch,
		Actions:      a.queue,
		Operator:     api.Principal{ID: "admin", Name: "Administrator", Roles: []string{api.RoleAdmin}, Source: "mcp"},
		Version:      version,
	})
	slog.Info("MCP server started (stdio transport)")
	if err := server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp stdio server: %w", err)
	}
	return nil
}
