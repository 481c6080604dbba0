package model

import "time"

// Result is the overall outcome of one enforcement call.
type Result string

const (
	Pass  Result = "PASS"
	Block Result = "BLOCK"
)

// Check is the outcome of one declared boundary against one submitted value.
type Check struct {
	Boundary  string  `json:"boundary"`
	Parameter string  `json:"parameter"`
	Value     float64 `json:"value"`
	Passed    bool    `json:"passed"`
	Message   string  `json:"message"`
}

// Record is the immutable log entry of one enforcement decision.
// Parameters holds every submitted value, including undeclared ones;
// Checks holds entries only for parameters with a declared boundary.
type Record struct {
	Timestamp  time.Time          `json:"timestamp"`
	ActionID   string             `json:"action_id"`
	ActionType string             `json:"action_type"`
	Result     Result             `json:"result"`
	Parameters map[string]float64 `json:"parameters"`
	Checks     []Check            `json:"boundary_results"`
}

// Violation describes a boundary that blocked an action.
type Violation struct {
	Boundary  string  `json:"boundary"`
	Parameter string  `json:"parameter"`
	Value     float64 `json:"value"`
	Message   string  `json:"message"`
}

// Counters are process-lifetime enforcement totals.
type Counters struct {
	PassCount  uint64 `json:"pass_count"`
	BlockCount uint64 `json:"block_count"`
}

// Total returns the number of enforcement calls counted.
func (c Counters) Total() uint64 {
	return c.PassCount + c.BlockCount
}
