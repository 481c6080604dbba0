// Package enforce evaluates action parameters against the boundary
// catalog and gates execution on the result.
package enforce

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ppiankov/fieldguard/internal/boundary"
	"github.com/ppiankov/fieldguard/internal/clock"
	"github.com/ppiankov/fieldguard/internal/model"
	"github.com/ppiankov/fieldguard/internal/telemetry"
)

// ErrQuarantined is returned once the agent's credential has been
// revoked. Every action is refused and nothing is recorded.
var ErrQuarantined = errors.New("enforce: agent quarantined")

// Catalog is the read side of boundary.Catalog.
type Catalog interface {
	Snapshot() boundary.Snapshot
}

// Decision is the outcome of one recorded enforcement call.
type Decision struct {
	ActionID   string            `json:"action_id"`
	Allowed    bool              `json:"allowed"`
	Violations []model.Violation `json:"violations"`
}

// Engine evaluates actions. Safe for concurrent use; it never performs
// network I/O.
type Engine struct {
	catalog Catalog
	log     *telemetry.Log
	clock   clock.Clock
	logger  *slog.Logger
	newID   func() string

	// mu covers the counter update and the log append together so the
	// counters always equal the number of records appended.
	mu       sync.Mutex
	counters model.Counters

	quarantined atomic.Bool
}

// New creates an Engine. A nil clock or logger uses the defaults.
func New(catalog Catalog, log *telemetry.Log, clk clock.Clock, logger *slog.Logger) *Engine {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		catalog: catalog,
		log:     log,
		clock:   clk,
		logger:  logger,
		newID:   uuid.NewString,
	}
}

// Evaluate checks every submitted parameter against its declared
// boundary, records the outcome, and reports whether the action may
// proceed. Parameters without a declared boundary pass. After
// quarantine it returns false with a single violation naming the cause.
func (e *Engine) Evaluate(actionType string, params map[string]float64) (bool, []model.Violation) {
	d, err := e.Enforce(actionType, params)
	if err != nil {
		return false, []model.Violation{{Message: err.Error()}}
	}
	return d.Allowed, d.Violations
}

// Enforce is Evaluate returning the full decision, or ErrQuarantined.
func (e *Engine) Enforce(actionType string, params map[string]float64) (Decision, error) {
	if e.quarantined.Load() {
		return Decision{}, ErrQuarantined
	}

	checks, violations := e.evaluate(params)
	result := model.Pass
	if len(violations) > 0 {
		result = model.Block
	}

	rec := model.Record{
		ActionID:   e.newID(),
		ActionType: actionType,
		Result:     result,
		Parameters: copyParams(params),
		Checks:     checks,
	}

	e.mu.Lock()
	rec.Timestamp = e.clock.Now().UTC()
	if result == model.Pass {
		e.counters.PassCount++
	} else {
		e.counters.BlockCount++
	}
	e.log.Append(rec)
	e.mu.Unlock()

	if result == model.Block {
		e.logger.Info("action blocked",
			"action_id", rec.ActionID,
			"action_type", actionType,
			"violations", len(violations),
			"reason", violations[0].Message,
		)
	}

	return Decision{ActionID: rec.ActionID, Allowed: result == model.Pass, Violations: violations}, nil
}

// Check evaluates params without recording anything or touching the
// counters.
func (e *Engine) Check(params map[string]float64) ([]model.Check, []model.Violation) {
	return e.evaluate(params)
}

// Counters returns the current totals.
func (e *Engine) Counters() model.Counters {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counters
}

// Quarantine makes every later call fail closed with ErrQuarantined.
func (e *Engine) Quarantine() {
	e.quarantined.Store(true)
}

// Quarantined reports whether Quarantine has been called.
func (e *Engine) Quarantined() bool {
	return e.quarantined.Load()
}

func (e *Engine) evaluate(params map[string]float64) ([]model.Check, []model.Violation) {
	snap := e.catalog.Snapshot()

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	checks := []model.Check{}
	violations := []model.Violation{}
	for _, key := range keys {
		b, ok := snap[key]
		if !ok {
			continue
		}
		value := params[key]
		passed, msg := b.Evaluate(value)
		checks = append(checks, model.Check{
			Boundary:  b.Name,
			Parameter: key,
			Value:     value,
			Passed:    passed,
			Message:   msg,
		})
		if !passed {
			violations = append(violations, model.Violation{
				Boundary:  b.Name,
				Parameter: key,
				Value:     value,
				Message:   msg,
			})
		}
	}
	return checks, violations
}

func copyParams(params map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
