package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sdrlab/txwave/internal/dsp"
	"github.com/sdrlab/txwave/internal/logging"
	"github.com/sdrlab/txwave/internal/sdr"
	"github.com/sdrlab/txwave/internal/telemetry"
)

// ErrAlreadyRunning is returned by Start while a run is in progress.
var ErrAlreadyRunning = errors.New("generator already running")

// Config captures the fixed per-run parameters of the generator. The
// baseband tone and sample rate are internal constants of the synthesis
// chain, distinct from the tunable RF center frequency which governs the
// hardware up-conversion.
type Config struct {
	SampleRate float64 // samples per second, default 1e6
	ToneHz     float64 // baseband tone, default 10e3
	BufferSize int     // samples per cycle, default 2048
	SSH        sdr.SSHConfig
}

func (c *Config) applyDefaults() {
	if c.SampleRate == 0 {
		c.SampleRate = 1e6
	}
	if c.ToneHz == 0 {
		c.ToneHz = 10e3
	}
	if c.BufferSize == 0 {
		c.BufferSize = 2048
	}
}

// Generator is the streaming worker: it owns the oscillator state, drives
// the device transport, and publishes each completed buffer into the
// snapshot slot. It runs on its own goroutine and is restartable: a
// stopped generator accepts a new Start.
type Generator struct {
	mu        sync.Mutex
	cfg       Config
	transport *sdr.Transport
	params    *Params
	slot      *Slot
	logger    logging.Logger
	reporter  telemetry.Reporter

	status atomic.Value // telemetry.Status
	cancel context.CancelFunc
	done   chan struct{}
}

// NewGenerator wires a generator around a transmit backend. A nil backend
// (or an empty device URI at Start) runs purely in simulation.
func NewGenerator(backend sdr.Transmitter, reporter telemetry.Reporter, logger logging.Logger, cfg Config) *Generator {
	if logger == nil {
		logger = logging.Default()
	}
	cfg.applyDefaults()
	g := &Generator{
		cfg:       cfg,
		transport: sdr.NewTransport(backend, logger),
		params:    NewParams(),
		slot:      NewSlot(),
		logger:    logger.With(logging.Field{Key: "subsystem", Value: "generator"}),
		reporter:  reporter,
	}
	g.status.Store(telemetry.StatusStandby)
	return g
}

// Params returns the live-tunable registers.
func (g *Generator) Params() *Params { return g.params }

// Snapshot returns a copy of the latest published buffer. Non-blocking
// with respect to the worker; usable as a telemetry.SnapshotSource.
func (g *Generator) Snapshot() ([]complex64, uint64, bool) { return g.slot.Read() }

// Status returns the current run status.
func (g *Generator) Status() telemetry.Status {
	return g.status.Load().(telemetry.Status)
}

// Running reports whether a run is in progress.
func (g *Generator) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.done != nil
}

// Start launches the worker goroutine. An empty deviceURI selects
// simulation; otherwise the transport attempts the device and degrades to
// simulation on any failure. Start never fails because of the device.
func (g *Generator) Start(deviceURI string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.done != nil {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	g.cancel = cancel
	g.done = done
	go g.run(ctx, deviceURI, done)
	return nil
}

// Stop requests a cooperative stop and waits for the worker to exit, up to
// one cycle's duration plus transport teardown. Stopping a stopped
// generator is a no-op.
func (g *Generator) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.done == nil {
		return nil
	}
	g.cancel()
	<-g.done
	g.cancel = nil
	g.done = nil
	return nil
}

func (g *Generator) setStatus(status telemetry.Status, detail string) {
	g.status.Store(status)
	if g.reporter != nil {
		g.reporter.ReportStatus(status, detail)
	}
}

// run is the worker loop: read registers, synthesize, send, publish.
func (g *Generator) run(ctx context.Context, deviceURI string, done chan struct{}) {
	defer close(done)

	g.setStatus(telemetry.StatusConnecting, deviceURI)
	if err := g.transport.Connect(ctx, sdr.Config{
		URI:        deviceURI,
		SampleRate: g.cfg.SampleRate,
		CenterFreq: g.params.Frequency(),
		TxGain:     g.params.Gain(),
		NumSamples: g.cfg.BufferSize,
		SSH:        g.cfg.SSH,
	}); err != nil {
		g.logger.Warn("connect failed, running simulated", logging.Field{Key: "err", Value: err})
	}

	hardware := g.transport.State() == sdr.Streaming
	if hardware {
		g.setStatus(telemetry.StatusStreamingHW, deviceURI)
	} else {
		g.setStatus(telemetry.StatusStreamingSim, "")
	}

	osc := dsp.NewOscillator(g.cfg.ToneHz, g.cfg.SampleRate)
	for ctx.Err() == nil {
		buf := make([]complex64, g.cfg.BufferSize)
		osc.Synthesize(buf, g.params.Amplitude(), g.params.Waveform())

		if err := g.transport.Send(ctx, buf); err != nil {
			if ctx.Err() != nil {
				break
			}
			// only reachable through a buffer-length bug, not a device error
			g.logger.Error("send rejected, stopping run", logging.Field{Key: "err", Value: err})
			break
		}
		g.slot.Offer(buf)

		if hardware && g.transport.State() != sdr.Streaming {
			hardware = false
			g.setStatus(telemetry.StatusStreamingSim, "device lost mid-run")
		}
	}

	if err := g.transport.Close(); err != nil {
		g.logger.Warn("transport close failed", logging.Field{Key: "err", Value: err})
	}
	g.setStatus(telemetry.StatusStandby, "")
}

// String renders the generator's observable state for the control loop.
func (g *Generator) String() string {
	return fmt.Sprintf("status=%s freq=%.0fHz gain=%.1fdB amp=%.2f wave=%s",
		g.Status(), g.params.Frequency(), g.params.Gain(), g.params.Amplitude(), g.params.Waveform())
}
