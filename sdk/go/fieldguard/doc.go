// Package fieldguard lets Go programs route actions through a running
// fieldguard agent before executing them. It talks to the agent's
// loopback enforcement API and fails closed: if the agent cannot be
// reached, or it refuses, the wrapped operation is not run.
//
// Usage:
//
//	fg, err := fieldguard.New(fieldguard.WithAddress("http://127.0.0.1:7878"))
//	err = fg.Guard(ctx, fieldguard.Action{
//	    Type:       "move",
//	    Parameters: map[string]float64{"speed": 12},
//	}, func(ctx context.Context) error {
//	    return drive(ctx, 12)
//	})
//
// External users import github.com/ppiankov/fieldguard/sdk/go/fieldguard.
package fieldguard
