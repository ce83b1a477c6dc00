package sdr

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sdrlab/txwave/internal/logging"
)

// State tracks the device handle lifecycle.
type State int32

const (
	// Unattached means simulation was requested; no hardware is involved.
	Unattached State = iota
	Connecting
	Streaming
	Failed
)

func (s State) String() string {
	switch s {
	case Unattached:
		return "unattached"
	case Connecting:
		return "connecting"
	case Streaming:
		return "streaming"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Transport abstracts "is there a radio, and if so, drive it" behind a
// uniform send operation. When no device is attached, or the device fails
// at connect time or mid-run, Send becomes a timed no-op so the caller's
// cadence stays comparable to the hardware path.
//
// Frequency and gain are applied to hardware at connect time only;
// re-tuning a live session requires a fresh Connect.
type Transport struct {
	mu      sync.Mutex
	backend Transmitter
	logger  logging.Logger

	state    atomic.Int32
	started  bool
	dropped  atomic.Uint64
	simDelay time.Duration
	size     int
}

// NewTransport wraps a transmit backend. A nil backend always simulates.
func NewTransport(backend Transmitter, logger logging.Logger) *Transport {
	if logger == nil {
		logger = logging.Default()
	}
	return &Transport{
		backend: backend,
		logger:  logger.With(logging.Field{Key: "subsystem", Value: "transport"}),
	}
}

// State returns the current device handle state. Safe from any goroutine.
func (t *Transport) State() State {
	return State(t.state.Load())
}

// DroppedSends returns how many buffers were discarded on the simulation
// path since the last Connect.
func (t *Transport) DroppedSends() uint64 {
	return t.dropped.Load()
}

// Connect prepares the transport for a run. An empty cfg.URI selects
// simulation and never touches hardware. A hardware connect that fails at
// any step leaves the transport in the Failed state and returns the cause;
// the caller is expected to continue in simulation, not to retry.
func (t *Transport) Connect(ctx context.Context, cfg Config) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.started = false
	t.dropped.Store(0)
	t.size = cfg.NumSamples
	t.simDelay = bufferDuration(cfg.NumSamples, cfg.SampleRate)

	if cfg.URI == "" || t.backend == nil {
		t.state.Store(int32(Unattached))
		t.logger.Info("simulation mode selected")
		return nil
	}

	t.state.Store(int32(Connecting))
	if err := t.backend.Init(ctx, cfg); err != nil {
		t.state.Store(int32(Failed))
		t.logger.Warn("device init failed, degrading to simulation",
			logging.Field{Key: "uri", Value: cfg.URI},
			logging.Field{Key: "err", Value: err})
		return fmt.Errorf("init transmit device: %w", err)
	}
	t.state.Store(int32(Streaming))
	t.logger.Info("device streaming", logging.Field{Key: "uri", Value: cfg.URI})
	return nil
}

// Send pushes one buffer to the device, or burns one buffer's worth of
// wall time when not streaming. The first hardware send of a session is
// flagged start-of-burst. A hardware send error degrades the session to
// simulation for all subsequent sends; it is reported in the state, not
// returned, so the caller's loop never has to handle it.
func (t *Transport) Send(ctx context.Context, buf []complex64) error {
	if t.size > 0 && len(buf) != t.size {
		return fmt.Errorf("send buffer length %d, want %d", len(buf), t.size)
	}

	if t.State() == Streaming {
		t.mu.Lock()
		burst := Burst{Start: !t.started}
		err := t.backend.TX(ctx, buf, burst)
		if err == nil {
			t.started = true
		}
		t.mu.Unlock()
		if err == nil {
			return nil
		}
		t.state.Store(int32(Failed))
		t.logger.Warn("send failed, degrading to simulation",
			logging.Field{Key: "err", Value: err})
	}

	t.dropped.Add(1)
	return t.sleep(ctx)
}

// sleep burns approximately the time the buffer would have occupied on
// the wire.
func (t *Transport) sleep(ctx context.Context) error {
	if t.simDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(t.simDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close terminates the burst with a zero-length end-of-burst send when the
// transport still believes itself streaming, then releases the device.
// Closing an unattached, failed, or already-closed transport is a no-op.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.backend == nil {
		return nil
	}
	state := t.State()
	if state != Streaming && state != Failed {
		return nil
	}

	var firstErr error
	if state == Streaming && t.started {
		if err := t.backend.TX(context.Background(), nil, Burst{End: true}); err != nil {
			t.logger.Warn("end of burst failed", logging.Field{Key: "err", Value: err})
			firstErr = err
		}
	}
	if err := t.backend.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	t.started = false
	t.state.Store(int32(Unattached))
	return firstErr
}

// bufferDuration returns the wall time one buffer occupies at the given
// sample rate.
func bufferDuration(samples int, rateHz float64) time.Duration {
	if samples <= 0 || rateHz <= 0 {
		return 0
	}
	return time.Duration(float64(samples) / rateHz * float64(time.Second))
}
