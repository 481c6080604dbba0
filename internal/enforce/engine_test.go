package enforce

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/fieldguard/internal/boundary"
	"github.com/ppiankov/fieldguard/internal/clock"
	"github.com/ppiankov/fieldguard/internal/model"
	"github.com/ppiankov/fieldguard/internal/telemetry"
)

func newTestEngine(t *testing.T, defs ...boundary.Boundary) (*Engine, *telemetry.Log) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cat := boundary.NewCatalog(logger)
	if err := cat.Replace(defs); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	log := telemetry.NewLog()
	return New(cat, log, clock.Fake(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)), logger), log
}

func TestEvaluateEmptyParamsPasses(t *testing.T) {
	e, log := newTestEngine(t, boundary.New("speed", boundary.Max(30)))

	ok, violations := e.Evaluate("noop", map[string]float64{})
	if !ok || len(violations) != 0 {
		t.Fatalf("expected (true, []), got (%v, %v)", ok, violations)
	}
	if e.Counters().PassCount != 1 || e.Counters().BlockCount != 0 {
		t.Errorf("unexpected counters %+v", e.Counters())
	}
	if log.Len() != 1 {
		t.Errorf("expected 1 record, got %d", log.Len())
	}
}

func TestEvaluateUnknownParameterPasses(t *testing.T) {
	e, log := newTestEngine(t, boundary.New("speed", boundary.Max(30)))

	ok, _ := e.Evaluate("move", map[string]float64{"payload": 9999})
	if !ok {
		t.Fatal("undeclared parameter must pass")
	}
	batch := log.Swap()
	if len(batch) != 1 {
		t.Fatalf("expected 1 record, got %d", len(batch))
	}
	if len(batch[0].Checks) != 0 {
		t.Errorf("undeclared parameter must not produce a check, got %+v", batch[0].Checks)
	}
	if batch[0].Parameters["payload"] != 9999 {
		t.Error("submitted parameters should be recorded in full")
	}
}

func TestEvaluateScenario(t *testing.T) {
	e, log := newTestEngine(t, boundary.New("speed", boundary.Max(30), boundary.Unit("m/s"), boundary.Tolerance(2)))

	if ok, _ := e.Evaluate("move", map[string]float64{"speed": 32}); !ok {
		t.Error("32 should pass within tolerance")
	}
	ok, violations := e.Evaluate("move", map[string]float64{"speed": 33})
	if ok {
		t.Fatal("33 should block")
	}
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %d", len(violations))
	}
	v := violations[0]
	if v.Boundary != "speed" || v.Value != 33 || v.Message != "speed=33 above max 30m/s (tolerance 2)" {
		t.Errorf("unexpected violation %+v", v)
	}

	c := e.Counters()
	if c.PassCount != 1 || c.BlockCount != 1 {
		t.Errorf("expected pass=1 block=1, got %+v", c)
	}

	batch := log.Swap()
	if len(batch) != 2 {
		t.Fatalf("expected 2 records, got %d", len(batch))
	}
	if batch[0].Result != model.Pass || batch[1].Result != model.Block {
		t.Errorf("unexpected results %s, %s", batch[0].Result, batch[1].Result)
	}
	if batch[0].ActionID == "" || batch[0].ActionID == batch[1].ActionID {
		t.Error("action ids must be unique and non-empty")
	}
	if batch[0].Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestEvaluateViolationsSorted(t *testing.T) {
	e, _ := newTestEngine(t,
		boundary.New("zeta", boundary.Max(1)),
		boundary.New("alpha", boundary.Max(1)),
		boundary.New("mid", boundary.Max(1)),
	)

	for i := 0; i < 10; i++ {
		_, violations := e.Evaluate("x", map[string]float64{"zeta": 2, "mid": 2, "alpha": 2})
		if len(violations) != 3 {
			t.Fatalf("expected 3 violations, got %d", len(violations))
		}
		if violations[0].Parameter != "alpha" || violations[1].Parameter != "mid" || violations[2].Parameter != "zeta" {
			t.Fatalf("violations not in sorted order: %+v", violations)
		}
	}
}

func TestEvaluateRecordIsolatedFromCaller(t *testing.T) {
	e, log := newTestEngine(t)
	params := map[string]float64{"speed": 1}
	e.Evaluate("move", params)
	params["speed"] = 100

	if got := log.Swap()[0].Parameters["speed"]; got != 1 {
		t.Errorf("record mutated through caller map: %v", got)
	}
}

func TestCheckDoesNotRecord(t *testing.T) {
	e, log := newTestEngine(t, boundary.New("speed", boundary.Max(30)))

	checks, violations := e.Check(map[string]float64{"speed": 50, "other": 1})
	if len(checks) != 1 || len(violations) != 1 {
		t.Fatalf("expected 1 check and 1 violation, got %d/%d", len(checks), len(violations))
	}
	if e.Counters().Total() != 0 || log.Len() != 0 {
		t.Error("Check must not count or record")
	}
}

func TestEvaluateQuarantined(t *testing.T) {
	e, log := newTestEngine(t)
	e.Quarantine()

	ok, violations := e.Evaluate("move", nil)
	if ok {
		t.Fatal("quarantined engine must not allow")
	}
	if len(violations) != 1 || violations[0].Message != ErrQuarantined.Error() {
		t.Errorf("unexpected violations %+v", violations)
	}
	if log.Len() != 0 || e.Counters().Total() != 0 {
		t.Error("quarantined calls must not be recorded")
	}
}

func TestEvaluateConcurrentCountersMatchRecords(t *testing.T) {
	e, log := newTestEngine(t, boundary.New("speed", boundary.Max(30)))

	const workers, perWorker = 16, 200
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				e.Evaluate(fmt.Sprintf("w%d", w), map[string]float64{"speed": float64(i % 60)})
			}
		}(w)
	}
	wg.Wait()

	c := e.Counters()
	if c.Total() != workers*perWorker {
		t.Fatalf("expected %d counted, got %d", workers*perWorker, c.Total())
	}
	batch := log.Swap()
	if uint64(len(batch)) != c.Total() {
		t.Fatalf("records %d != counted %d", len(batch), c.Total())
	}

	var pass, block uint64
	for _, r := range batch {
		if r.Result == model.Pass {
			pass++
		} else {
			block++
		}
	}
	if pass != c.PassCount || block != c.BlockCount {
		t.Errorf("counters %+v disagree with records pass=%d block=%d", c, pass, block)
	}
}
