package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	fieldmcp "github.com/ppiankov/fieldguard/internal/mcp"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the agent with an MCP tool server on stdio",
	Long: "Runs the enforcement agent and serves its gate as MCP (Model Context Protocol)\n" +
		"tools over stdio: boundary_enforce, boundary_check, boundary_list, agent_status.\n" +
		"Logs go to stderr.",
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := cfg.NewLogger(os.Stderr)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	agent, err := newAgent(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}
	if err := agent.Start(ctx); err != nil {
		return fmt.Errorf("failed to start agent: %w", err)
	}

	// Tools keep answering after quarantine; enforce calls then fail
	// closed with ErrQuarantined.
	fmt.Fprintln(os.Stderr, "fieldguard MCP server running on stdio")
	if err := fieldmcp.New(agent, version).Run(ctx); err != nil && ctx.Err() == nil {
		logger.Warn("MCP server stopped", "error", err)
	}

	return stop(agent, logger)
}
