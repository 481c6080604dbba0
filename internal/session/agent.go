// Package session runs the agent for one process lifetime: catalog
// sync, registration, background heartbeat and telemetry, and shutdown.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/ppiankov/fieldguard/internal/alert"
	"github.com/ppiankov/fieldguard/internal/authority"
	"github.com/ppiankov/fieldguard/internal/boundary"
	"github.com/ppiankov/fieldguard/internal/clock"
	"github.com/ppiankov/fieldguard/internal/enforce"
	"github.com/ppiankov/fieldguard/internal/heartbeat"
	"github.com/ppiankov/fieldguard/internal/identity"
	"github.com/ppiankov/fieldguard/internal/marker"
	"github.com/ppiankov/fieldguard/internal/model"
	"github.com/ppiankov/fieldguard/internal/revoke"
	"github.com/ppiankov/fieldguard/internal/systemd"
	"github.com/ppiankov/fieldguard/internal/telemetry"
)

// DefaultShutdownTimeout bounds the final flush and session-end calls
// when the caller's context has no deadline.
const DefaultShutdownTimeout = 15 * time.Second

// ErrQuarantined is returned by enforcement calls after revocation.
var ErrQuarantined = enforce.ErrQuarantined

// Authority is the remote side of the agent.
type Authority interface {
	FetchBoundaries(ctx context.Context) ([]boundary.Boundary, error)
	StartSession(ctx context.Context, req authority.SessionStart) error
	SendHeartbeat(ctx context.Context, hb authority.Heartbeat) error
	UploadTelemetry(ctx context.Context, batch authority.TelemetryBatch) error
	EndSession(ctx context.Context, req authority.SessionEnd) error
	Close()
}

// Config wires an Agent.
type Config struct {
	Identity   string
	Version    string
	Authority  Authority
	Supervisor systemd.Supervisor
	// Unit is recorded in the marker file for uninstall tooling.
	Unit       string
	MarkerPath string

	HeartbeatInterval time.Duration
	FlushInterval     time.Duration
	MaxFailures       int
	ShutdownTimeout   time.Duration

	// Alerts receives block, quarantine, connectivity and sync events.
	// Nil disables alerting.
	Alerts *alert.Dispatcher

	Clock  clock.Clock
	Logger *slog.Logger
}

// Agent owns every component for one session.
type Agent struct {
	cfg     Config
	clock   clock.Clock
	logger  *slog.Logger
	auth    Authority
	session *identity.Session

	catalog *boundary.Catalog
	log     *telemetry.Log
	engine  *enforce.Engine
	flusher *telemetry.Flusher
	monitor *heartbeat.Monitor
	revoker *revoke.Handler

	mu        sync.Mutex
	state     State
	cancel    context.CancelFunc
	cause     error
	syncErr   error
	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
	release   sync.Once
}

// New builds an Agent in the Created state.
func New(cfg Config) (*Agent, error) {
	if cfg.Authority == nil {
		return nil, fmt.Errorf("session: authority is required")
	}
	if cfg.Identity == "" {
		return nil, fmt.Errorf("session: identity is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	a := &Agent{
		cfg:     cfg,
		clock:   cfg.Clock,
		auth:    cfg.Authority,
		session: identity.NewSession(cfg.Identity, cfg.Clock.Now()),
		log:     telemetry.NewLog(),
		done:    make(chan struct{}),
	}
	a.logger = cfg.Logger.With("session_id", a.session.SessionID)
	a.catalog = boundary.NewCatalog(a.logger)
	a.engine = enforce.New(a.catalog, a.log, a.clock, a.logger)

	a.revoker = revoke.New(revoke.Config{
		Stop:       a.quarantine,
		MarkerPath: cfg.MarkerPath,
		Supervisor: cfg.Supervisor,
		Logger:     a.logger,
	})

	var err error
	a.flusher, err = telemetry.NewFlusher(telemetry.Config{
		SessionID: a.session.SessionID,
		Identity:  a.session.Identity,
		Log:       a.log,
		Uploader:  a.auth,
		Counters:  a.engine.Counters,
		Interval:  cfg.FlushInterval,
		Clock:     a.clock,
		Logger:    a.logger,
		OnRevoked: func() { _ = a.revoker.Revoke() },
	})
	if err != nil {
		return nil, err
	}

	a.monitor, err = heartbeat.New(heartbeat.Config{
		SessionID:   a.session.SessionID,
		Identity:    a.session.Identity,
		Sender:      a.auth,
		Counters:    a.engine.Counters,
		Interval:    cfg.HeartbeatInterval,
		MaxFailures: cfg.MaxFailures,
		Clock:       a.clock,
		Logger:      a.logger,
		OnRevoked:   a.finalFlushThenRevoke,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Start syncs the catalog, registers the session, writes the marker
// file, and launches heartbeat and telemetry. Sync and registration
// failures are logged and tolerated.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.state != Created {
		st := a.state
		a.mu.Unlock()
		return fmt.Errorf("session: start from state %s", st)
	}
	a.state = Starting
	a.mu.Unlock()

	if err := a.catalog.Sync(ctx, a.auth); err != nil {
		a.mu.Lock()
		a.syncErr = err
		a.mu.Unlock()
		a.logger.Warn("starting with fallback boundary catalog",
			"boundaries", a.catalog.Len(), "reason", err)
		a.alert(alert.Event{Kind: alert.EventSyncFailed, Reason: err.Error()})
	}
	summary := a.catalog.Summary()

	err := a.auth.StartSession(ctx, authority.SessionStart{
		SessionID:    a.session.SessionID,
		Identity:     a.session.Identity,
		StartedAt:    a.session.StartedAt,
		AgentVersion: a.cfg.Version,
		Boundaries:   summary,
	})
	if err != nil {
		a.logger.Warn("session registration failed, continuing unregistered", "error", err)
	}

	if a.cfg.MarkerPath != "" {
		if err := marker.Write(a.cfg.MarkerPath, marker.Marker{
			PID:       os.Getpid(),
			SessionID: a.session.SessionID,
			Identity:  a.session.Identity,
			Unit:      a.cfg.Unit,
			StartedAt: a.session.StartedAt,
		}); err != nil {
			a.logger.Warn("marker write failed", "path", a.cfg.MarkerPath, "error", err)
		}
	}

	loopCtx, cancel := context.WithCancel(context.Background())

	a.mu.Lock()
	a.cancel = cancel
	a.state = Running
	a.mu.Unlock()

	a.wg.Add(2)
	go a.runLoop(loopCtx, "telemetry", a.flusher.Run)
	go a.runLoop(loopCtx, "heartbeat", a.monitor.Run)
	go func() {
		a.wg.Wait()
		a.closeOnce.Do(func() { close(a.done) })
	}()

	a.logger.Info("agent running",
		"identity", a.session.Identity,
		"boundaries", summary.Count,
		"digest", summary.Digest,
	)
	return nil
}

// Shutdown stops the background loops, performs one final flush and a
// best-effort session-end, removes the marker file, and releases the
// transport. After quarantine only the transport is released.
func (a *Agent) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	switch a.state {
	case Running:
		a.state = Stopping
	case Quarantined:
	case Created:
		a.state = Stopped
		a.mu.Unlock()
		a.closeOnce.Do(func() { close(a.done) })
		a.release.Do(a.auth.Close)
		return nil
	case Stopping, Stopped:
		a.mu.Unlock()
		return nil
	default:
		st := a.state
		a.mu.Unlock()
		return fmt.Errorf("session: shutdown from state %s", st)
	}
	cancel := a.cancel
	a.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok {
		var c context.CancelFunc
		ctx, c = context.WithTimeout(ctx, a.cfg.ShutdownTimeout)
		defer c()
	}

	cancel()
	select {
	case <-a.done:
	case <-ctx.Done():
		a.logger.Warn("background tasks did not stop before deadline", "error", ctx.Err())
	}

	// A revocation may still be disabling supervision; quarantine is
	// already set by then.
	a.mu.Lock()
	quarantined := a.state == Quarantined
	a.mu.Unlock()

	var errs []error
	if !quarantined {
		errs = append(errs, a.finish(ctx))
	}
	a.release.Do(a.auth.Close)
	a.cfg.Alerts.Wait(ctx)

	counters := a.engine.Counters()
	a.mu.Lock()
	if a.state != Quarantined {
		a.state = Stopped
	}
	final := a.state
	a.mu.Unlock()

	a.logger.Info("agent stopped",
		"state", final.String(),
		"pass_count", counters.PassCount,
		"block_count", counters.BlockCount,
		"uploaded", a.flusher.Uploaded(),
	)
	return errors.Join(errs...)
}

// finish runs the clean-shutdown steps that quarantine skips.
func (a *Agent) finish(ctx context.Context) error {
	state, err := a.flusher.Flush(ctx)
	switch {
	case state == telemetry.Revoked:
		return a.revoker.Revoke()
	case err != nil:
		a.logger.Warn("final telemetry flush failed", "error", err, "undelivered", a.log.Len())
	}

	if err := a.auth.EndSession(ctx, authority.SessionEnd{
		SessionID: a.session.SessionID,
		EndedAt:   a.clock.Now().UTC(),
		Counters:  a.engine.Counters(),
	}); err != nil {
		a.logger.Warn("session end not delivered", "error", err)
	}

	if a.cfg.MarkerPath != "" {
		if err := marker.Remove(a.cfg.MarkerPath); err != nil {
			return err
		}
	}
	return nil
}

func (a *Agent) runLoop(ctx context.Context, name string, run func(context.Context) error) {
	defer a.wg.Done()
	err := run(ctx)
	if err == nil {
		return
	}
	a.logger.Error("background task stopped", "task", name, "error", err)
	if errors.Is(err, heartbeat.ErrConnectivityLost) {
		a.alert(alert.Event{Kind: alert.EventConnectivityLost, Reason: err.Error()})
	}

	a.mu.Lock()
	if a.cause == nil {
		a.cause = err
	}
	cancel := a.cancel
	a.mu.Unlock()
	cancel()
}

// finalFlushThenRevoke is the heartbeat's response to a rejected
// credential.
func (a *Agent) finalFlushThenRevoke() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	_, _ = a.flusher.Flush(ctx)
	cancel()
	_ = a.revoker.Revoke()
}

// quarantine is the revocation handler's stop step. It must not block
// on the loops.
func (a *Agent) quarantine() {
	a.engine.Quarantine()
	a.mu.Lock()
	a.state = Quarantined
	if a.cause == nil {
		a.cause = authority.ErrCredentialRevoked
	}
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	a.alert(alert.Event{Kind: alert.EventQuarantined, Reason: authority.ErrCredentialRevoked.Error()})
}

// alert stamps and dispatches e.
func (a *Agent) alert(e alert.Event) {
	e.Timestamp = a.clock.Now().UTC().Format(time.RFC3339)
	e.SessionID = a.session.SessionID
	e.Identity = a.session.Identity
	a.cfg.Alerts.Dispatch(e)
}

func (a *Agent) alertBlock(actionType string, violations []model.Violation) {
	if len(violations) == 0 {
		return
	}
	a.alert(alert.Event{
		Kind:       alert.EventBlock,
		ActionType: actionType,
		Boundary:   violations[0].Boundary,
		Reason:     violations[0].Message,
	})
}

// Done is closed once the background tasks have stopped, whether on
// their own or through Shutdown.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

// Err returns why the background tasks stopped on their own, or nil.
func (a *Agent) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cause
}

// State returns the lifecycle state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Session returns the session identity.
func (a *Agent) Session() identity.Session {
	return *a.session
}

// Evaluate checks params and records the decision.
func (a *Agent) Evaluate(actionType string, params map[string]float64) (bool, []model.Violation) {
	ok, violations := a.engine.Evaluate(actionType, params)
	if !ok && !a.engine.Quarantined() {
		a.alertBlock(actionType, violations)
	}
	return ok, violations
}

// Enforce checks params, records the decision, and returns it, or
// ErrQuarantined.
func (a *Agent) Enforce(actionType string, params map[string]float64) (enforce.Decision, error) {
	d, err := a.engine.Enforce(actionType, params)
	if err == nil && !d.Allowed {
		a.alertBlock(actionType, d.Violations)
	}
	return d, err
}

// Guard runs op only if every boundary passes.
func (a *Agent) Guard(ctx context.Context, actionType string, params map[string]float64, op func(context.Context) error) error {
	err := a.engine.Guard(ctx, actionType, params, op)
	var blocked *enforce.BlockedError
	if errors.As(err, &blocked) {
		a.alertBlock(actionType, blocked.Violations)
	}
	return err
}

// Check evaluates params without recording.
func (a *Agent) Check(params map[string]float64) ([]model.Check, []model.Violation) {
	return a.engine.Check(params)
}

// Boundaries returns the loaded definitions sorted by name.
func (a *Agent) Boundaries() []boundary.Boundary {
	return a.catalog.Boundaries()
}

// Counters returns the process-lifetime totals.
func (a *Agent) Counters() model.Counters {
	return a.engine.Counters()
}
