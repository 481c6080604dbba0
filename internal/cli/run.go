package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/fieldguard/internal/localapi"
)

var runListen string

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runListen, "listen", "", "Override local.listen for the loopback enforcement API (\"off\" disables it)")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the enforcement agent",
	Long: "Syncs boundaries from the Authority, registers a session, and runs heartbeat\n" +
		"and telemetry until SIGINT/SIGTERM, connectivity loss, or credential revocation.\n\n" +
		"Exit code 0 after shutdown, connectivity loss, and quarantine.\n" +
		"Exit code 1 on configuration or startup errors.",
	RunE: runAgent,
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	switch runListen {
	case "":
	case "off":
		cfg.Local.Listen = ""
	default:
		cfg.Local.Listen = runListen
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

	apiCtx, stopAPI := context.WithCancel(context.Background())
	defer stopAPI()
	if cfg.Local.Listen != "" {
		api := localapi.New(cfg.Local.Listen, agent, logger)
		go func() {
			if err := api.Start(apiCtx); err != nil {
				logger.Error("local enforcement API stopped", "error", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "\nShutting down fieldguard...")
	case <-agent.Done():
	}

	err = stop(agent, logger)
	stopAPI()
	return err
}
