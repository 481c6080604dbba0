package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ppiankov/fieldguard/internal/boundary"
)

func TestParseParams(t *testing.T) {
	got, err := parseParams([]string{"speed=12.5", " load = 40 "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["speed"] != 12.5 || got["load"] != 40 {
		t.Errorf("unexpected params %v", got)
	}

	for _, bad := range []string{"speed", "=3", "speed=fast"} {
		if _, err := parseParams([]string{bad}); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}

func testCatalog(t *testing.T) *boundary.Catalog {
	t.Helper()
	cat := boundary.NewCatalog(nil)
	if err := cat.Replace([]boundary.Boundary{
		boundary.New("speed", boundary.Max(30), boundary.Unit("m/s")),
	}); err != nil {
		t.Fatal(err)
	}
	return cat
}

func TestDryRun(t *testing.T) {
	cat := testCatalog(t)

	res := dryRun(cat, map[string]float64{"speed": 10, "altitude": 900})
	if !res.Allowed || len(res.Checks) != 1 || len(res.Violations) != 0 {
		t.Errorf("expected allowed with one check, got %+v", res)
	}

	res = dryRun(cat, map[string]float64{"speed": 31})
	if res.Allowed || len(res.Violations) != 1 {
		t.Fatalf("expected blocked, got %+v", res)
	}
	if res.Violations[0].Message != "speed=31 above max 30m/s" {
		t.Errorf("unexpected message %q", res.Violations[0].Message)
	}
}

func TestWriteCheckResult(t *testing.T) {
	res := dryRun(testCatalog(t), map[string]float64{"speed": 31})

	var text bytes.Buffer
	if err := writeCheckResult(&text, "text", res); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text.String(), "BLOCK") || !strings.Contains(text.String(), "blocked: speed=31") {
		t.Errorf("unexpected text output:\n%s", text.String())
	}

	var js bytes.Buffer
	if err := writeCheckResult(&js, "json", res); err != nil {
		t.Fatal(err)
	}
	var decoded checkResult
	if err := json.Unmarshal(js.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded.Allowed {
		t.Error("expected allowed=false in JSON")
	}

	if err := writeCheckResult(&js, "yaml", res); err == nil {
		t.Error("expected error for unknown format")
	}
}
