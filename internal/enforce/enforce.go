package enforce

import (
	"context"
	"fmt"

	"github.com/ppiankov/fieldguard/internal/model"
)

// BlockedError is returned by Guard when a boundary blocks an action.
type BlockedError struct {
	ActionID   string
	ActionType string
	Reason     string
	Violations []model.Violation
}

func (e *BlockedError) Error() string {
	if len(e.Violations) > 1 {
		return fmt.Sprintf("action %s blocked: %s (+%d more)", e.ActionType, e.Reason, len(e.Violations)-1)
	}
	return fmt.Sprintf("action %s blocked: %s", e.ActionType, e.Reason)
}

// Guard evaluates the action and runs op only if every boundary passes.
// A blocked action returns *BlockedError; a quarantined engine returns
// ErrQuarantined. op is never invoked in either case.
func (e *Engine) Guard(ctx context.Context, actionType string, params map[string]float64, op func(context.Context) error) error {
	d, err := e.Enforce(actionType, params)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return &BlockedError{
			ActionID:   d.ActionID,
			ActionType: actionType,
			Reason:     d.Violations[0].Message,
			Violations: d.Violations,
		}
	}
	if op == nil {
		return nil
	}
	return op(ctx)
}
