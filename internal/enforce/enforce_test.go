package enforce

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ppiankov/fieldguard/internal/boundary"
)

func TestGuardRunsOpWhenAllowed(t *testing.T) {
	e, _ := newTestEngine(t, boundary.New("speed", boundary.Max(30)))

	ran := false
	err := e.Guard(context.Background(), "move", map[string]float64{"speed": 10}, func(context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !ran {
		t.Error("op should run when every boundary passes")
	}
}

func TestGuardBlocksAndNeverRunsOp(t *testing.T) {
	e, _ := newTestEngine(t,
		boundary.New("speed", boundary.Max(30), boundary.Unit("m/s")),
		boundary.New("altitude", boundary.HardLimit(120), boundary.Unit("m")),
	)

	ran := false
	err := e.Guard(context.Background(), "move", map[string]float64{"speed": 45, "altitude": 130}, func(context.Context) error {
		ran = true
		return nil
	})
	if ran {
		t.Fatal("op must not run when blocked")
	}
	var blocked *BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("expected *BlockedError, got %T %v", err, err)
	}
	if len(blocked.Violations) != 2 {
		t.Fatalf("expected 2 violations, got %d", len(blocked.Violations))
	}
	// Violations are in sorted parameter order; altitude comes first.
	if blocked.Reason != "altitude=130 exceeds hard limit 120m" {
		t.Errorf("unexpected reason %q", blocked.Reason)
	}
	if !strings.Contains(blocked.Error(), "+1 more") {
		t.Errorf("error should mention remaining violations: %s", blocked.Error())
	}
	if e.Counters().BlockCount != 1 {
		t.Errorf("expected block_count 1, got %d", e.Counters().BlockCount)
	}
}

func TestGuardPropagatesOpError(t *testing.T) {
	e, _ := newTestEngine(t)
	want := errors.New("actuator fault")

	err := e.Guard(context.Background(), "grip", nil, func(context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Errorf("expected op error, got %v", err)
	}
}

func TestGuardQuarantinedFailsClosed(t *testing.T) {
	e, log := newTestEngine(t)
	e.Quarantine()

	ran := false
	err := e.Guard(context.Background(), "move", map[string]float64{"speed": 1}, func(context.Context) error {
		ran = true
		return nil
	})
	if !errors.Is(err, ErrQuarantined) {
		t.Fatalf("expected ErrQuarantined, got %v", err)
	}
	if ran {
		t.Error("op must not run when quarantined")
	}
	if log.Len() != 0 || e.Counters().Total() != 0 {
		t.Error("quarantined calls must not be recorded or counted")
	}
}
