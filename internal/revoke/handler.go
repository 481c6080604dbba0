// Package revoke quarantines the agent after its credential is rejected.
package revoke

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ppiankov/fieldguard/internal/marker"
	"github.com/ppiankov/fieldguard/internal/systemd"
)

// DefaultTimeout bounds the supervision call.
const DefaultTimeout = 30 * time.Second

// Config wires a Handler.
type Config struct {
	// Stop cancels the background loops and marks the agent quarantined.
	// It must not wait for the loops: Revoke is called from inside them.
	Stop       func()
	MarkerPath string
	Supervisor systemd.Supervisor
	Timeout    time.Duration
	Logger     *slog.Logger
}

// Handler performs revocation cleanup exactly once.
type Handler struct {
	stop       func()
	markerPath string
	supervisor systemd.Supervisor
	timeout    time.Duration
	logger     *slog.Logger

	once    sync.Once
	revoked atomic.Bool
	err     error
}

// New creates a Handler. Every field of cfg is optional.
func New(cfg Config) *Handler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{
		stop:       cfg.Stop,
		markerPath: cfg.MarkerPath,
		supervisor: cfg.Supervisor,
		timeout:    cfg.Timeout,
		logger:     cfg.Logger,
	}
}

// Revoke stops the loops, removes the marker file, and disables OS
// supervision. Later and concurrent calls block until the first
// completes and return its result.
func (h *Handler) Revoke() error {
	h.once.Do(h.revoke)
	return h.err
}

// Revoked reports whether Revoke has completed.
func (h *Handler) Revoked() bool {
	return h.revoked.Load()
}

func (h *Handler) revoke() {
	h.logger.Error("credential revoked, entering quarantine")

	if h.stop != nil {
		h.stop()
	}

	var errs []error
	if h.markerPath != "" {
		if err := marker.Remove(h.markerPath); err != nil {
			h.logger.Warn("marker removal failed", "path", h.markerPath, "error", err)
			errs = append(errs, err)
		}
	}

	if h.supervisor != nil {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		err := h.supervisor.Disable(ctx)
		cancel()
		if err != nil {
			h.logger.Warn("disabling supervision failed", "error", err)
			errs = append(errs, err)
		}
	}

	h.err = errors.Join(errs...)
	h.revoked.Store(true)
	h.logger.Info("quarantine complete")
}
