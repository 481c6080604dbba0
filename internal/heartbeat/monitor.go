// Package heartbeat reports agent liveness to the Authority and detects
// lost connectivity.
package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ppiankov/fieldguard/internal/authority"
	"github.com/ppiankov/fieldguard/internal/clock"
	"github.com/ppiankov/fieldguard/internal/model"
)

const (
	// DefaultInterval is the time between heartbeats.
	DefaultInterval = 30 * time.Second

	// DefaultMaxFailures is the consecutive-failure ceiling.
	DefaultMaxFailures = 10
)

// ErrConnectivityLost is returned when the failure ceiling is reached.
// It is a terminal condition but not a revocation.
var ErrConnectivityLost = errors.New("heartbeat: connectivity lost")

// Sender delivers one heartbeat.
type Sender interface {
	SendHeartbeat(ctx context.Context, hb authority.Heartbeat) error
}

// Config wires a Monitor.
type Config struct {
	SessionID   string
	Identity    string
	Sender      Sender
	Counters    func() model.Counters
	Interval    time.Duration
	MaxFailures int
	Clock       clock.Clock
	Logger      *slog.Logger
	// OnRevoked runs once when the Authority rejects the credential,
	// before Run returns.
	OnRevoked func()
}

// Monitor sends heartbeats and counts consecutive failures.
type Monitor struct {
	sessionID   string
	identity    string
	sender      Sender
	counters    func() model.Counters
	interval    time.Duration
	maxFailures int
	clock       clock.Clock
	logger      *slog.Logger
	onRevoked   func()

	mu          sync.Mutex
	failures    int
	lastSuccess time.Time
	lastErr     error
}

// Status is a point-in-time view of the monitor.
type Status struct {
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastSuccess         time.Time `json:"last_success,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
}

// New creates a Monitor. Sender is required.
func New(cfg Config) (*Monitor, error) {
	if cfg.Sender == nil {
		return nil, fmt.Errorf("heartbeat: sender is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Counters == nil {
		cfg.Counters = func() model.Counters { return model.Counters{} }
	}
	return &Monitor{
		sessionID:   cfg.SessionID,
		identity:    cfg.Identity,
		sender:      cfg.Sender,
		counters:    cfg.Counters,
		interval:    cfg.Interval,
		maxFailures: cfg.MaxFailures,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		onRevoked:   cfg.OnRevoked,
	}, nil
}

// Beat sends one heartbeat. It returns nil on success, the transport
// error while below the ceiling, ErrConnectivityLost once the ceiling is
// reached, or an error wrapping authority.ErrCredentialRevoked.
// A call interrupted by ctx cancellation is not counted.
func (m *Monitor) Beat(ctx context.Context) error {
	err := m.sender.SendHeartbeat(ctx, authority.Heartbeat{
		SessionID: m.sessionID,
		Identity:  m.identity,
		Timestamp: m.clock.Now().UTC(),
		Counters:  m.counters(),
	})

	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case err == nil:
		if m.failures > 0 {
			m.logger.Info("heartbeat recovered", "after_failures", m.failures)
		}
		m.failures = 0
		m.lastSuccess = m.clock.Now()
		m.lastErr = nil
		return nil

	case errors.Is(err, authority.ErrCredentialRevoked):
		m.lastErr = err
		return err

	case ctx.Err() != nil:
		return ctx.Err()

	default:
		m.failures++
		m.lastErr = err
		m.logger.Warn("heartbeat failed",
			"error", err,
			"consecutive_failures", m.failures,
			"max_failures", m.maxFailures,
		)
		if m.failures >= m.maxFailures {
			return fmt.Errorf("%w after %d consecutive failures: %w", ErrConnectivityLost, m.failures, err)
		}
		return err
	}
}

// Run sends a heartbeat on every tick until ctx is cancelled, the
// ceiling is reached, or the credential is revoked. The first heartbeat
// is sent one interval after Run starts.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := m.Beat(ctx)
			switch {
			case errors.Is(err, ErrConnectivityLost):
				m.logger.Error("connectivity lost, stopping", "error", err)
				return err
			case errors.Is(err, authority.ErrCredentialRevoked):
				m.logger.Error("heartbeat rejected credential", "error", err)
				if m.onRevoked != nil {
					m.onRevoked()
				}
				return err
			}
		}
	}
}

// Failures returns the current consecutive-failure count.
func (m *Monitor) Failures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures
}

// Status returns the monitor's current view.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Status{ConsecutiveFailures: m.failures, LastSuccess: m.lastSuccess}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	return s
}
