package fieldguard

import "context"

// ToolFunc is the function signature that Wrap guards.
type ToolFunc func(ctx context.Context, action Action) (any, error)

// Guard runs op only if the agent allows action. A block returns a
// *BlockedError; any failure to obtain a decision returns that error.
// In both cases op is not called.
func (c *Client) Guard(ctx context.Context, action Action, op func(context.Context) error) error {
	if err := c.admit(ctx, action); err != nil {
		return err
	}
	return op(ctx)
}

// Wrap returns a new ToolFunc that asks the agent before calling fn.
func (c *Client) Wrap(fn ToolFunc, opts ...WrapOption) ToolFunc {
	var wcfg wrapConfig
	for _, o := range opts {
		o(&wcfg)
	}

	return func(ctx context.Context, action Action) (any, error) {
		if wcfg.actionType != "" {
			action.Type = wcfg.actionType
		}
		if err := c.admit(ctx, action); err != nil {
			return nil, err
		}
		return fn(ctx, action)
	}
}

func (c *Client) admit(ctx context.Context, action Action) error {
	res, err := c.Enforce(ctx, action)
	if err != nil {
		return err
	}
	if !res.Allowed {
		return &BlockedError{
			Action:     action,
			ActionID:   res.ActionID,
			Reason:     res.Reason,
			Violations: res.Violations,
		}
	}
	return nil
}
