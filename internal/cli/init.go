package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ppiankov/fieldguard/internal/config"
	"github.com/ppiankov/fieldguard/internal/systemd"
)

var (
	initMode           string
	initInstallSystemd bool
	initForce          bool
)

func init() {
	initCmd.Flags().StringVar(&initMode, "mode", "system", "Config location: system (/etc/fieldguard) or user (~/.fieldguard)")
	initCmd.Flags().BoolVar(&initInstallSystemd, "install-systemd", false, "Install and enable the fieldguard.service unit (requires root)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config files")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap fieldguard configuration and optional systemd supervision",
	Long: `Writes a commented default agent.yaml.

System mode (default): writes /etc/fieldguard/agent.yaml (requires root)
User mode:             writes ~/.fieldguard/agent.yaml
--config overrides both.

With --install-systemd: installs and enables fieldguard.service, and
records the unit file digest so later runs can detect tampering.`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	cfgPath, err := initConfigPath()
	if err != nil {
		return err
	}

	var created []string
	if wrote, err := writeIfMissing(cfgPath, config.DefaultConfigYAML()); err != nil {
		return err
	} else if wrote {
		created = append(created, cfgPath)
	}

	if initInstallSystemd {
		unitPath, err := installSystemd(cfgPath)
		if err != nil {
			return err
		}
		created = append(created, unitPath)
	}

	fmt.Println("fieldguard init complete.")
	fmt.Println()
	if len(created) > 0 {
		fmt.Println("Created:")
		for _, path := range created {
			fmt.Printf("  %s\n", path)
		}
		fmt.Println()
	} else {
		fmt.Println("All files already exist (use --force to overwrite).")
		fmt.Println()
	}

	fmt.Println("Next steps:")
	fmt.Printf("  set authority.url and authority.token_file in %s\n", cfgPath)
	fmt.Println("  fieldguard boundaries")
	if initInstallSystemd {
		fmt.Println("  sudo systemctl start fieldguard")
	} else {
		fmt.Printf("  fieldguard run --config %s\n", cfgPath)
	}
	return nil
}

// initConfigPath returns where init writes agent.yaml.
func initConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	switch initMode {
	case "system", "":
		return config.DefaultPath, nil
	case "user":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(home, ".fieldguard", "agent.yaml"), nil
	default:
		return "", fmt.Errorf("unknown mode %q: use 'system' or 'user'", initMode)
	}
}

func installSystemd(cfgPath string) (string, error) {
	if runtime.GOOS != "linux" {
		return "", fmt.Errorf("--install-systemd is only supported on Linux")
	}
	if os.Geteuid() != 0 {
		return "", fmt.Errorf("--install-systemd requires root; run with sudo")
	}

	binary, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve fieldguard binary: %w", err)
	}
	absCfg, err := filepath.Abs(cfgPath)
	if err != nil {
		return "", err
	}

	sup := config.DefaultConfig().Supervision
	sc := systemd.NewSystemctl(sup.Unit, nil)
	sc.UnitDir = sup.UnitDir
	if err := sc.Install(context.Background(), systemd.AgentTemplate(binary, absCfg)); err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(sup.HashPath), 0o755); err != nil {
		return "", fmt.Errorf("create hash directory: %w", err)
	}
	if err := systemd.RecordUnitFileHash(sc.UnitPath(), sup.HashPath); err != nil {
		fmt.Fprintf(os.Stderr, "warning: unit file digest not recorded: %v\n", err)
	}
	return sc.UnitPath(), nil
}

// writeIfMissing writes content to path if it doesn't exist or --force is set.
// Returns true if the file was written.
func writeIfMissing(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create directory %s: %w", dir, err)
	}

	// The config may hold an inline token.
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
