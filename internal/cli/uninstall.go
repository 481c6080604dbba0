package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/fieldguard/internal/config"
	"github.com/ppiankov/fieldguard/internal/marker"
	"github.com/ppiankov/fieldguard/internal/systemd"
)

func init() {
	rootCmd.AddCommand(uninstallCmd)
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Disable and remove the supervision unit and marker file",
	Long: "Reads the marker file of the last running agent, disables its systemd unit,\n" +
		"removes the unit file, and removes the marker. Config and credentials are kept.",
	RunE: runUninstall,
}

func runUninstall(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	sup := cfg.Supervision

	unit := sup.Unit
	m, err := marker.Read(sup.MarkerPath)
	switch {
	case err == nil:
		fmt.Printf("agent marker: pid %d, session %s, identity %s\n", m.PID, m.SessionID, m.Identity)
		if m.Unit != "" {
			unit = m.Unit
		}
	case errors.Is(err, os.ErrNotExist):
		fmt.Println("no agent marker found")
	default:
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sc := systemd.NewSystemctl(unit, nil)
	sc.UnitDir = sup.UnitDir
	if err := sc.Uninstall(ctx); err != nil {
		return err
	}
	if unit != "" {
		fmt.Printf("removed unit %s\n", sc.UnitPath())
	}

	if err := marker.Remove(sup.MarkerPath); err != nil {
		return err
	}
	if err := os.Remove(sup.HashPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove unit digest: %w", err)
	}
	fmt.Println("fieldguard uninstalled.")
	return nil
}
