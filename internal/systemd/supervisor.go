// Package systemd installs and controls the agent's systemd unit.
package systemd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// commandTimeout bounds each systemctl invocation.
const commandTimeout = 15 * time.Second

// Supervisor is the OS service manager as seen by the agent.
type Supervisor interface {
	// Disable stops the manager from restarting the agent. It is a no-op
	// when supervision is not in place.
	Disable(ctx context.Context) error
}

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Systemctl drives systemd through the systemctl binary.
type Systemctl struct {
	Unit    string
	UnitDir string
	Logger  *slog.Logger

	// Run and LookPath are replaced in tests.
	Run      Runner
	LookPath func(string) (string, error)
}

// NewSystemctl returns a Systemctl for unit. An empty unit disables
// every operation.
func NewSystemctl(unit string, logger *slog.Logger) *Systemctl {
	if logger == nil {
		logger = slog.Default()
	}
	return &Systemctl{
		Unit:     unit,
		UnitDir:  DefaultUnitDir,
		Logger:   logger,
		Run:      execRunner,
		LookPath: exec.LookPath,
	}
}

// UnitPath is the unit file location.
func (s *Systemctl) UnitPath() string {
	return filepath.Join(s.UnitDir, s.Unit)
}

// Disable runs `systemctl disable` for the unit. Missing systemctl, a
// missing unit file, or an empty unit name are not errors.
func (s *Systemctl) Disable(ctx context.Context) error {
	bin, ok := s.available()
	if !ok {
		return nil
	}
	if out, err := s.run(ctx, bin, "disable", s.Unit); err != nil {
		return fmt.Errorf("systemd: disable %s: %w: %s", s.Unit, err, strings.TrimSpace(string(out)))
	}
	s.Logger.Info("supervision disabled", "unit", s.Unit)
	return nil
}

// Install writes the unit file, reloads systemd, and enables the unit.
func (s *Systemctl) Install(ctx context.Context, content string) error {
	if s.Unit == "" {
		return fmt.Errorf("systemd: no unit name configured")
	}
	if err := os.MkdirAll(s.UnitDir, 0755); err != nil {
		return fmt.Errorf("systemd: create unit dir: %w", err)
	}
	if err := os.WriteFile(s.UnitPath(), []byte(content), 0644); err != nil {
		return fmt.Errorf("systemd: write unit file: %w", err)
	}
	bin, err := s.LookPath("systemctl")
	if err != nil {
		s.Logger.Warn("systemctl not found, unit written but not enabled", "path", s.UnitPath())
		return nil
	}
	if out, err := s.run(ctx, bin, "daemon-reload"); err != nil {
		return fmt.Errorf("systemd: daemon-reload: %w: %s", err, strings.TrimSpace(string(out)))
	}
	if out, err := s.run(ctx, bin, "enable", s.Unit); err != nil {
		return fmt.Errorf("systemd: enable %s: %w: %s", s.Unit, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Uninstall disables the unit and removes its file.
func (s *Systemctl) Uninstall(ctx context.Context) error {
	if err := s.Disable(ctx); err != nil {
		return err
	}
	if s.Unit == "" {
		return nil
	}
	if err := os.Remove(s.UnitPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("systemd: remove unit file: %w", err)
	}
	return nil
}

func (s *Systemctl) available() (string, bool) {
	if s.Unit == "" {
		return "", false
	}
	bin, err := s.LookPath("systemctl")
	if err != nil {
		s.Logger.Debug("systemctl not found, supervision absent")
		return "", false
	}
	if _, err := os.Stat(s.UnitPath()); err != nil {
		s.Logger.Debug("unit not installed, supervision absent", "unit", s.Unit)
		return "", false
	}
	return bin, true
}

func (s *Systemctl) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	return s.Run(ctx, name, args...)
}
