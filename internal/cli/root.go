package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fieldguard",
	Short: "Boundary enforcement agent for certified autonomous systems",
	Long: "Keeps an autonomous system inside the operational boundaries issued by its certification Authority.\n" +
		"Every action is checked against the current boundaries before it runs, and every decision is\n" +
		"reported back. A revoked credential quarantines the agent and disables its supervision unit.",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
