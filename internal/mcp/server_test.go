package mcp

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/fieldguard/internal/boundary"
	"github.com/ppiankov/fieldguard/internal/clock"
	"github.com/ppiankov/fieldguard/internal/enforce"
	"github.com/ppiankov/fieldguard/internal/session"
	"github.com/ppiankov/fieldguard/internal/telemetry"
)

type engineAgent struct {
	*enforce.Engine
	catalog *boundary.Catalog
}

func (a engineAgent) Boundaries() []boundary.Boundary { return a.catalog.Boundaries() }

func (a engineAgent) Status() session.Status {
	return session.Status{State: session.Running, Counters: a.Counters(), Boundaries: a.catalog.Summary()}
}

func newTestServer(t *testing.T) (*Server, engineAgent) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cat := boundary.NewCatalog(logger)
	if err := cat.Replace([]boundary.Boundary{
		boundary.New("speed", boundary.Max(30), boundary.Unit("m/s")),
		boundary.New("load", boundary.HardLimit(50), boundary.Unit("kg")),
	}); err != nil {
		t.Fatal(err)
	}
	agent := engineAgent{
		Engine:  enforce.New(cat, telemetry.NewLog(), clock.Fake(time.Unix(0, 0)), logger),
		catalog: cat,
	}
	return New(agent, "test"), agent
}

func TestEnforceAllowed(t *testing.T) {
	s, agent := newTestServer(t)

	result, out, err := s.handleEnforce(context.Background(), &mcpsdk.CallToolRequest{}, EnforceInput{
		ActionType: "move",
		Parameters: map[string]float64{"speed": 10},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil && result.IsError {
		t.Fatal("expected success, got error result")
	}
	if !out.Allowed || out.ActionID == "" {
		t.Fatalf("unexpected output %+v", out)
	}
	if agent.Counters().PassCount != 1 {
		t.Errorf("expected pass recorded, got %+v", agent.Counters())
	}
}

func TestEnforceBlocked(t *testing.T) {
	s, agent := newTestServer(t)

	result, out, err := s.handleEnforce(context.Background(), &mcpsdk.CallToolRequest{}, EnforceInput{
		ActionType: "lift",
		Parameters: map[string]float64{"load": 80},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || !result.IsError {
		t.Fatal("expected IsError result for blocked action")
	}
	if out.Allowed {
		t.Fatal("expected allowed=false")
	}
	if out.Reason != "load=80 exceeds hard limit 50kg" {
		t.Errorf("unexpected reason %q", out.Reason)
	}
	if agent.Counters().BlockCount != 1 {
		t.Errorf("expected block recorded, got %+v", agent.Counters())
	}
}

func TestEnforceQuarantined(t *testing.T) {
	s, agent := newTestServer(t)
	agent.Quarantine()

	result, out, err := s.handleEnforce(context.Background(), &mcpsdk.CallToolRequest{}, EnforceInput{ActionType: "move"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || !result.IsError || !out.Quarantined || out.Allowed {
		t.Fatalf("expected quarantined error result, got %+v", out)
	}
}

func TestEnforceRequiresActionType(t *testing.T) {
	s, _ := newTestServer(t)
	if _, _, err := s.handleEnforce(context.Background(), &mcpsdk.CallToolRequest{}, EnforceInput{}); err == nil {
		t.Error("expected error for missing action_type")
	}
}

func TestCheckDryRun(t *testing.T) {
	s, agent := newTestServer(t)

	_, out, err := s.handleCheck(context.Background(), &mcpsdk.CallToolRequest{}, CheckInput{
		Parameters: map[string]float64{"speed": 45, "unknown": 1},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Allowed || len(out.Checks) != 1 || len(out.Violations) != 1 {
		t.Fatalf("unexpected output %+v", out)
	}
	if agent.Counters().Total() != 0 {
		t.Error("dry-run must not be counted")
	}
}

func TestListAndStatus(t *testing.T) {
	s, _ := newTestServer(t)

	_, list, err := s.handleList(context.Background(), &mcpsdk.CallToolRequest{}, ListInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list.Boundaries) != 2 || list.Boundaries[0].Name != "load" {
		t.Errorf("unexpected boundaries %+v", list.Boundaries)
	}
	if list.Digest == "" {
		t.Error("expected digest")
	}

	_, st, err := s.handleStatus(context.Background(), &mcpsdk.CallToolRequest{}, StatusInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.State != "running" || st.Boundaries != 2 {
		t.Errorf("unexpected status %+v", st)
	}
}
