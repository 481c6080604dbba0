package systemd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

type recordedRunner struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (r *recordedRunner) run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, strings.Join(append([]string{filepath.Base(name)}, args...), " "))
	if r.err != nil {
		return []byte("boom"), r.err
	}
	return nil, nil
}

func newTestSystemctl(t *testing.T, unit string, installed bool, haveSystemctl bool) (*Systemctl, *recordedRunner) {
	t.Helper()
	dir := t.TempDir()
	if installed && unit != "" {
		if err := os.WriteFile(filepath.Join(dir, unit), []byte("[Unit]\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	r := &recordedRunner{}
	lookPath := func(string) (string, error) {
		if !haveSystemctl {
			return "", errors.New("not found")
		}
		return "/usr/bin/systemctl", nil
	}
	s := &Systemctl{
		Unit:     unit,
		UnitDir:  dir,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Run:      r.run,
		LookPath: lookPath,
	}
	return s, r
}

func TestDisableRunsSystemctl(t *testing.T) {
	s, r := newTestSystemctl(t, UnitName, true, true)

	if err := s.Disable(context.Background()); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if len(r.calls) != 1 || r.calls[0] != "systemctl disable fieldguard.service" {
		t.Errorf("unexpected calls %v", r.calls)
	}
}

func TestDisableNoopWhenSupervisionAbsent(t *testing.T) {
	tests := []struct {
		name          string
		unit          string
		installed     bool
		haveSystemctl bool
	}{
		{"no unit configured", "", true, true},
		{"no systemctl", UnitName, true, false},
		{"unit not installed", UnitName, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, r := newTestSystemctl(t, tt.unit, tt.installed, tt.haveSystemctl)
			if err := s.Disable(context.Background()); err != nil {
				t.Errorf("expected no-op, got %v", err)
			}
			if len(r.calls) != 0 {
				t.Errorf("expected no commands, got %v", r.calls)
			}
		})
	}
}

func TestDisableReportsCommandFailure(t *testing.T) {
	s, r := newTestSystemctl(t, UnitName, true, true)
	r.err = errors.New("exit status 1")

	err := s.Disable(context.Background())
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("expected failure with output, got %v", err)
	}
}

func TestInstallWritesAndEnables(t *testing.T) {
	s, r := newTestSystemctl(t, UnitName, false, true)

	if err := s.Install(context.Background(), AgentTemplate("/bin/fieldguard", "/etc/fieldguard/agent.yaml")); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if _, err := os.Stat(s.UnitPath()); err != nil {
		t.Fatalf("unit file not written: %v", err)
	}
	want := []string{"systemctl daemon-reload", "systemctl enable fieldguard.service"}
	if strings.Join(r.calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", r.calls, want)
	}
}

func TestUninstallRemovesUnit(t *testing.T) {
	s, r := newTestSystemctl(t, UnitName, true, true)

	if err := s.Uninstall(context.Background()); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}
	if _, err := os.Stat(s.UnitPath()); !errors.Is(err, os.ErrNotExist) {
		t.Error("unit file should be removed")
	}
	if len(r.calls) != 1 {
		t.Errorf("expected one disable call, got %v", r.calls)
	}
}
