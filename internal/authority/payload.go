package authority

import (
	"time"

	"github.com/ppiankov/fieldguard/internal/boundary"
	"github.com/ppiankov/fieldguard/internal/model"
)

// Endpoint paths relative to the Authority base URL.
const (
	PathBoundaries   = "/api/v1/agent/boundaries"
	PathSessionStart = "/api/v1/agent/sessions"
	PathHeartbeat    = "/api/v1/agent/heartbeat"
	PathTelemetry    = "/api/v1/agent/telemetry"
	PathSessionEnd   = "/api/v1/agent/sessions/end"
)

// SessionStart registers a new agent session.
type SessionStart struct {
	SessionID    string           `json:"session_id"`
	Identity     string           `json:"identity"`
	StartedAt    time.Time        `json:"started_at"`
	AgentVersion string           `json:"agent_version"`
	Boundaries   boundary.Summary `json:"boundaries"`
}

// Heartbeat is the periodic liveness report.
type Heartbeat struct {
	SessionID string         `json:"session_id"`
	Identity  string         `json:"identity"`
	Timestamp time.Time      `json:"timestamp"`
	Counters  model.Counters `json:"counters"`
}

// TelemetryBatch carries buffered evaluation records.
type TelemetryBatch struct {
	SessionID string         `json:"session_id"`
	Identity  string         `json:"identity"`
	Records   []model.Record `json:"records"`
	Counters  model.Counters `json:"counters"`
}

// SessionEnd closes a session with final counters.
type SessionEnd struct {
	SessionID string         `json:"session_id"`
	EndedAt   time.Time      `json:"ended_at"`
	Counters  model.Counters `json:"counters"`
}

type boundaryConfig struct {
	Boundaries *[]boundary.Boundary `json:"boundaries"`
}
