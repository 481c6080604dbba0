package boundary

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

type stubSource struct {
	defs []Boundary
	err  error
}

func (s stubSource) FetchBoundaries(context.Context) ([]Boundary, error) {
	return s.defs, s.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSyncReplacesWholesale(t *testing.T) {
	c := NewCatalog(quietLogger())
	ctx := context.Background()

	if err := c.Sync(ctx, stubSource{defs: []Boundary{
		New("speed", Max(30)),
		New("altitude", Max(120)),
	}}); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 boundaries, got %d", c.Len())
	}

	if err := c.Sync(ctx, stubSource{defs: []Boundary{New("torque", Max(5))}}); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("expected wholesale replacement to 1 boundary, got %d", c.Len())
	}
	if _, ok := c.Lookup("speed"); ok {
		t.Error("old boundary survived replacement")
	}
}

func TestSyncFailureRetainsPrevious(t *testing.T) {
	c := NewCatalog(quietLogger())
	ctx := context.Background()
	if err := c.Replace([]Boundary{New("speed", Max(30))}); err != nil {
		t.Fatal(err)
	}

	err := c.Sync(ctx, stubSource{err: errors.New("connection refused")})
	if !errors.Is(err, ErrSyncFailed) {
		t.Fatalf("expected ErrSyncFailed, got %v", err)
	}
	if _, ok := c.Lookup("speed"); !ok {
		t.Error("previous catalog lost after failed sync")
	}
}

func TestSyncMalformedNeverPartialMerge(t *testing.T) {
	c := NewCatalog(quietLogger())
	if err := c.Replace([]Boundary{New("speed", Max(30))}); err != nil {
		t.Fatal(err)
	}

	err := c.Sync(context.Background(), stubSource{defs: []Boundary{
		New("altitude", Max(120)),
		New("", Max(1)),
	}})
	if !errors.Is(err, ErrSyncFailed) {
		t.Fatalf("expected ErrSyncFailed, got %v", err)
	}
	if _, ok := c.Lookup("altitude"); ok {
		t.Error("valid half of malformed set was merged")
	}
	if c.Len() != 1 {
		t.Errorf("expected previous catalog of 1, got %d", c.Len())
	}
}

func TestReplaceRejectsDuplicateKeys(t *testing.T) {
	c := NewCatalog(quietLogger())
	err := c.Replace([]Boundary{
		New("speed", Max(30)),
		New("speed_limit", Parameter("speed"), Max(25)),
	})
	if err == nil || !strings.Contains(err.Error(), "declared by both") {
		t.Fatalf("expected duplicate key error, got %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("catalog changed after rejected replace: %d", c.Len())
	}
}

func TestLookupByParameterKey(t *testing.T) {
	c := NewCatalog(quietLogger())
	if err := c.Replace([]Boundary{New("speed", Parameter("velocity"), Max(30))}); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Lookup("speed"); ok {
		t.Error("lookup by name should miss when parameter key differs")
	}
	b, ok := c.Lookup("velocity")
	if !ok || b.Name != "speed" {
		t.Errorf("expected speed boundary under velocity key, got %+v ok=%v", b, ok)
	}
}

func TestReplaceCopiesDefinitions(t *testing.T) {
	c := NewCatalog(quietLogger())
	defs := []Boundary{New("speed", Max(30))}
	if err := c.Replace(defs); err != nil {
		t.Fatal(err)
	}
	*defs[0].MaxValue = 1000

	b, _ := c.Lookup("speed")
	if *b.MaxValue != 30 {
		t.Errorf("catalog shares storage with caller: max=%v", *b.MaxValue)
	}
}

func TestSummaryDigestStable(t *testing.T) {
	a := NewCatalog(quietLogger())
	b := NewCatalog(quietLogger())
	_ = a.Replace([]Boundary{New("speed", Max(30)), New("altitude", Max(120))})
	_ = b.Replace([]Boundary{New("altitude", Max(120)), New("speed", Max(30))})

	sa, sb := a.Summary(), b.Summary()
	if sa.Digest != sb.Digest {
		t.Errorf("digest depends on definition order: %s vs %s", sa.Digest, sb.Digest)
	}
	if !strings.HasPrefix(sa.Digest, "blake3:") {
		t.Errorf("unexpected digest format %q", sa.Digest)
	}
	if sa.Count != 2 || sa.Names[0] != "altitude" || sa.Names[1] != "speed" {
		t.Errorf("unexpected summary %+v", sa)
	}

	_ = b.Replace([]Boundary{New("speed", Max(31))})
	if b.Summary().Digest == sa.Digest {
		t.Error("digest did not change with definitions")
	}
}

func TestEmptyCatalogSummary(t *testing.T) {
	c := NewCatalog(nil)
	s := c.Summary()
	if s.Count != 0 || len(s.Names) != 0 || s.Digest == "" {
		t.Errorf("unexpected empty summary %+v", s)
	}
}
