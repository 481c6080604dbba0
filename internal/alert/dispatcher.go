package alert

import (
	"context"
	"log/slog"
	"sync"
)

// Dispatcher fans out events to matching webhook configurations.
// A nil *Dispatcher drops every event.
type Dispatcher struct {
	configs []WebhookConfig
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher from webhook configurations.
// Returns nil if configs is empty.
func NewDispatcher(configs []WebhookConfig, logger *slog.Logger) *Dispatcher {
	if len(configs) == 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{configs: configs, logger: logger}
}

// Dispatch sends the event to all webhooks whose Events list matches its
// kind. Does not block the caller. Events dispatched after Wait has
// started are dropped.
func (d *Dispatcher) Dispatch(event Event) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.logger.Debug("alert dropped after shutdown", "kind", event.Kind)
		return
	}
	for _, cfg := range d.configs {
		if !matches(cfg.Events, event) {
			continue
		}
		d.wg.Add(1)
		go func(cfg WebhookConfig) {
			defer d.wg.Done()
			if err := Send(context.Background(), cfg, event); err != nil {
				d.logger.Warn("alert not delivered", "kind", event.Kind, "url", cfg.URL, "error", err)
			}
		}(cfg)
	}
}

// Wait stops accepting events and blocks until in-flight deliveries
// finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func matches(events []string, event Event) bool {
	for _, e := range events {
		if e == event.Kind {
			return true
		}
	}
	return false
}
