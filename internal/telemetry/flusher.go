package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ppiankov/fieldguard/internal/authority"
	"github.com/ppiankov/fieldguard/internal/clock"
	"github.com/ppiankov/fieldguard/internal/model"
)

// DefaultInterval is how often buffered records are uploaded.
const DefaultInterval = 10 * time.Second

// State is the flusher's position in one tick.
type State int

const (
	Idle State = iota
	Draining
	Uploading
	Committed
	Retained
	Revoked
	Discarded
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Draining:
		return "draining"
	case Uploading:
		return "uploading"
	case Committed:
		return "committed"
	case Retained:
		return "retained"
	case Revoked:
		return "revoked"
	case Discarded:
		return "discarded"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Uploader sends one batch of records plus current counters.
type Uploader interface {
	UploadTelemetry(ctx context.Context, batch authority.TelemetryBatch) error
}

// Config wires a Flusher.
type Config struct {
	SessionID string
	Identity  string
	Log       *Log
	Uploader  Uploader
	Counters  func() model.Counters
	Interval  time.Duration
	Clock     clock.Clock
	Logger    *slog.Logger
	// OnRevoked is called once when the Authority rejects the credential.
	OnRevoked func()
}

// Flusher drains the Log to the Authority.
type Flusher struct {
	sessionID string
	identity  string
	log       *Log
	uploader  Uploader
	counters  func() model.Counters
	interval  time.Duration
	clock     clock.Clock
	logger    *slog.Logger
	onRevoked func()

	// flushMu serialises Flush: a restored batch must land ahead of any
	// batch swapped out after it.
	flushMu  sync.Mutex
	state    atomic.Int32
	uploaded atomic.Uint64
}

// NewFlusher creates a Flusher. Log and Uploader are required.
func NewFlusher(cfg Config) (*Flusher, error) {
	if cfg.Log == nil || cfg.Uploader == nil {
		return nil, fmt.Errorf("telemetry: log and uploader are required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
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
	return &Flusher{
		sessionID: cfg.SessionID,
		identity:  cfg.Identity,
		log:       cfg.Log,
		uploader:  cfg.Uploader,
		counters:  cfg.Counters,
		interval:  cfg.Interval,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		onRevoked: cfg.OnRevoked,
	}, nil
}

// State returns the outcome of the most recent step.
func (f *Flusher) State() State {
	return State(f.state.Load())
}

// Uploaded returns the number of records the Authority has accepted.
func (f *Flusher) Uploaded() uint64 {
	return f.uploaded.Load()
}

// Flush performs one drain/upload cycle and returns its terminal state.
// A failed upload is restored to the head of the log; a revoked
// credential discards the batch and returns authority.ErrCredentialRevoked.
// A batch that cannot be encoded is discarded so it never blocks later
// uploads.
func (f *Flusher) Flush(ctx context.Context) (State, error) {
	f.flushMu.Lock()
	defer f.flushMu.Unlock()

	f.setState(Draining)
	batch := f.log.Swap()
	if len(batch) == 0 {
		f.setState(Idle)
		return Idle, nil
	}

	f.setState(Uploading)
	err := f.uploader.UploadTelemetry(ctx, authority.TelemetryBatch{
		SessionID: f.sessionID,
		Identity:  f.identity,
		Records:   batch,
		Counters:  f.counters(),
	})
	switch {
	case err == nil:
		f.uploaded.Add(uint64(len(batch)))
		f.setState(Committed)
		f.logger.Debug("telemetry batch uploaded", "records", len(batch))
		return Committed, nil

	case errors.Is(err, authority.ErrCredentialRevoked):
		f.setState(Revoked)
		f.logger.Error("telemetry upload rejected credential, discarding batch",
			"records", len(batch))
		return Revoked, err

	case errors.Is(err, authority.ErrUnencodable):
		f.setState(Discarded)
		f.logger.Error("telemetry batch cannot be encoded, discarding",
			"error", err,
			"records", len(batch))
		return Discarded, err

	default:
		f.log.Restore(batch)
		f.setState(Retained)
		f.logger.Warn("telemetry upload failed, batch retained",
			"error", err,
			"records", len(batch),
			"buffered", f.log.Len(),
		)
		return Retained, err
	}
}

// Run flushes on every tick until ctx is cancelled or the credential is
// revoked. Cancellation interrupts the wait between ticks.
func (f *Flusher) Run(ctx context.Context) error {
	ticker := f.clock.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			state, err := f.Flush(ctx)
			if state == Revoked {
				if f.onRevoked != nil {
					f.onRevoked()
				}
				return err
			}
		}
	}
}

func (f *Flusher) setState(s State) {
	f.state.Store(int32(s))
}
