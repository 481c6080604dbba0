package session

import (
	"fmt"
	"time"

	"github.com/ppiankov/fieldguard/internal/boundary"
	"github.com/ppiankov/fieldguard/internal/heartbeat"
	"github.com/ppiankov/fieldguard/internal/model"
)

// State is the agent lifecycle state.
type State int

const (
	Created State = iota
	Starting
	Running
	Stopping
	Stopped
	Quarantined
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	case Quarantined:
		return "quarantined"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a point-in-time view of the agent.
type Status struct {
	State      State            `json:"state"`
	SessionID  string           `json:"session_id"`
	Identity   string           `json:"identity"`
	StartedAt  time.Time        `json:"started_at"`
	Counters   model.Counters   `json:"counters"`
	Buffered   int              `json:"buffered_records"`
	Uploaded   uint64           `json:"uploaded_records"`
	Flush      string           `json:"flush_state"`
	Heartbeat  heartbeat.Status `json:"heartbeat"`
	Boundaries boundary.Summary `json:"boundaries"`
	SyncError  string           `json:"sync_error,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// Status returns the agent's current view.
func (a *Agent) Status() Status {
	a.mu.Lock()
	st := Status{State: a.state}
	if a.syncErr != nil {
		st.SyncError = a.syncErr.Error()
	}
	if a.cause != nil {
		st.Error = a.cause.Error()
	}
	a.mu.Unlock()

	st.SessionID = a.session.SessionID
	st.Identity = a.session.Identity
	st.StartedAt = a.session.StartedAt
	st.Counters = a.engine.Counters()
	st.Buffered = a.log.Len()
	st.Uploaded = a.flusher.Uploaded()
	st.Flush = a.flusher.State().String()
	st.Heartbeat = a.monitor.Status()
	st.Boundaries = a.catalog.Summary()
	return st
}
