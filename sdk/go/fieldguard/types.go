package fieldguard

import (
	"errors"
	"fmt"
)

// ErrQuarantined is returned once the agent's credential has been
// revoked. No further action will be allowed for the life of the agent.
var ErrQuarantined = errors.New("fieldguard: agent quarantined")

// ErrUnavailable wraps failures to reach the agent.
var ErrUnavailable = errors.New("fieldguard: agent unavailable")

// Action describes what the caller intends to do.
type Action struct {
	Type       string             // action kind: "move", "lift", "descend"
	Parameters map[string]float64 // numeric parameters keyed by boundary parameter
}

// Violation is one boundary the action would break.
type Violation struct {
	Boundary  string  `json:"boundary"`
	Parameter string  `json:"parameter"`
	Value     float64 `json:"value"`
	Message   string  `json:"message"`
}

// Result is an enforcement outcome.
type Result struct {
	Allowed    bool
	ActionID   string
	Reason     string
	Violations []Violation
}

// BlockedError is returned when the agent blocks an action.
type BlockedError struct {
	Action     Action
	ActionID   string
	Reason     string
	Violations []Violation
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("fieldguard blocked %s: %s", e.Action.Type, e.Reason)
}
