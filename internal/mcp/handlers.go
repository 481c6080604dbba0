package mcp

import (
	"context"
	"errors"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/fieldguard/internal/boundary"
	"github.com/ppiankov/fieldguard/internal/enforce"
	"github.com/ppiankov/fieldguard/internal/model"
)

// --- Input/Output types ---

// EnforceInput defines parameters for the boundary_enforce tool.
type EnforceInput struct {
	ActionType string             `json:"action_type" jsonschema:"kind of action about to be taken (e.g. move, lift)"`
	Parameters map[string]float64 `json:"parameters" jsonschema:"numeric action parameters keyed by boundary parameter name"`
}

// EnforceOutput is the recorded decision.
type EnforceOutput struct {
	Allowed     bool              `json:"allowed"`
	ActionID    string            `json:"action_id,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	Violations  []model.Violation `json:"violations,omitempty"`
	Quarantined bool              `json:"quarantined,omitempty"`
}

// CheckInput defines parameters for the boundary_check tool.
type CheckInput struct {
	Parameters map[string]float64 `json:"parameters" jsonschema:"numeric parameters to check"`
}

// CheckOutput contains the dry-run result.
type CheckOutput struct {
	Allowed    bool              `json:"allowed"`
	Checks     []model.Check     `json:"checks"`
	Violations []model.Violation `json:"violations,omitempty"`
}

// ListInput is empty, no parameters needed.
type ListInput struct{}

// ListOutput lists the loaded boundaries.
type ListOutput struct {
	Boundaries []boundary.Boundary `json:"boundaries"`
	Digest     string              `json:"digest"`
}

// StatusInput is empty, no parameters needed.
type StatusInput struct{}

// StatusOutput summarises the agent state.
type StatusOutput struct {
	State              string `json:"state"`
	SessionID          string `json:"session_id"`
	Identity           string `json:"identity"`
	PassCount          uint64 `json:"pass_count"`
	BlockCount         uint64 `json:"block_count"`
	BufferedRecords    int    `json:"buffered_records"`
	UploadedRecords    uint64 `json:"uploaded_records"`
	HeartbeatFailures  int    `json:"heartbeat_failures"`
	LastHeartbeatError string `json:"last_heartbeat_error,omitempty"`
	Boundaries         int    `json:"boundaries"`
	BoundaryDigest     string `json:"boundary_digest"`
	TerminalError      string `json:"terminal_error,omitempty"`
}

// --- Handlers ---

func (s *Server) handleEnforce(ctx context.Context, req *mcpsdk.CallToolRequest, input EnforceInput) (*mcpsdk.CallToolResult, EnforceOutput, error) {
	if input.ActionType == "" {
		return nil, EnforceOutput{}, fmt.Errorf("action_type is required")
	}

	d, err := s.agent.Enforce(input.ActionType, input.Parameters)
	if errors.Is(err, enforce.ErrQuarantined) {
		out := EnforceOutput{Reason: err.Error(), Quarantined: true}
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	if err != nil {
		return nil, EnforceOutput{}, err
	}

	out := EnforceOutput{Allowed: d.Allowed, ActionID: d.ActionID, Violations: d.Violations}
	if !d.Allowed {
		out.Reason = d.Violations[0].Message
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) handleCheck(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckInput) (*mcpsdk.CallToolResult, CheckOutput, error) {
	checks, violations := s.agent.Check(input.Parameters)
	return nil, CheckOutput{
		Allowed:    len(violations) == 0,
		Checks:     checks,
		Violations: violations,
	}, nil
}

func (s *Server) handleList(ctx context.Context, req *mcpsdk.CallToolRequest, input ListInput) (*mcpsdk.CallToolResult, ListOutput, error) {
	return nil, ListOutput{
		Boundaries: s.agent.Boundaries(),
		Digest:     s.agent.Status().Boundaries.Digest,
	}, nil
}

func (s *Server) handleStatus(ctx context.Context, req *mcpsdk.CallToolRequest, input StatusInput) (*mcpsdk.CallToolResult, StatusOutput, error) {
	st := s.agent.Status()
	return nil, StatusOutput{
		State:              st.State.String(),
		SessionID:          st.SessionID,
		Identity:           st.Identity,
		PassCount:          st.Counters.PassCount,
		BlockCount:         st.Counters.BlockCount,
		BufferedRecords:    st.Buffered,
		UploadedRecords:    st.Uploaded,
		HeartbeatFailures:  st.Heartbeat.ConsecutiveFailures,
		LastHeartbeatError: st.Heartbeat.LastError,
		Boundaries:         st.Boundaries.Count,
		BoundaryDigest:     st.Boundaries.Digest,
		TerminalError:      st.Error,
	}, nil
}
