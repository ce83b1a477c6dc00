package app

import (
	"errors"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/sdrlab/txwave/internal/logging"
	"github.com/sdrlab/txwave/internal/sdr"
	"github.com/sdrlab/txwave/internal/telemetry"
)

type recordedStatus struct {
	status telemetry.Status
	detail string
}

// recordingReporter captures status transitions in order.
type recordingReporter struct {
	mu      sync.Mutex
	history []recordedStatus
}

func (r *recordingReporter) ReportStatus(status telemetry.Status, detail string) {
	r.mu.Lock()
	r.history = append(r.history, recordedStatus{status, detail})
	r.mu.Unlock()
}

func (r *recordingReporter) statuses() []telemetry.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]telemetry.Status, len(r.history))
	for i, h := range r.history {
		out[i] = h.status
	}
	return out
}

func quietLogger() logging.Logger {
	return logging.New(logging.Error, logging.Text, io.Discard)
}

// testConfig uses a buffer holding an integer number of tone cycles, so
// every buffer starts at phase zero and sample 0 is deterministic. The
// short buffer also keeps simulated cycle time at 2ms for fast tests.
func testConfig() Config {
	return Config{SampleRate: 1e6, ToneHz: 10e3, BufferSize: 2000}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestSimulatedRunProducesSamples(t *testing.T) {
	reporter := &recordingReporter{}
	g := NewGenerator(nil, reporter, quietLogger(), testConfig())
	if err := g.Params().SetAmplitude(0.5); err != nil {
		t.Fatalf("set amplitude: %v", err)
	}

	if err := g.Start(""); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer g.Stop()

	waitFor(t, 2*time.Second, func() bool {
		_, seq, ok := g.Snapshot()
		return ok && seq >= 10
	}, "ten published buffers")

	if got := g.Status(); got != telemetry.StatusStreamingSim {
		t.Fatalf("status = %s, want %s", got, telemetry.StatusStreamingSim)
	}

	buf, _, ok := g.Snapshot()
	if !ok {
		t.Fatal("snapshot vanished")
	}
	if len(buf) != 2000 {
		t.Fatalf("buffer length = %d, want 2000", len(buf))
	}
	// integer cycles per buffer: sample 0 sits at phase zero every cycle
	if math.Abs(float64(real(buf[0]))-0.5) > 1e-3 {
		t.Fatalf("sample 0 real = %v, want ~0.5", real(buf[0]))
	}
	if math.Abs(float64(imag(buf[0]))) > 1e-3 {
		t.Fatalf("sample 0 imag = %v, want ~0", imag(buf[0]))
	}

	if err := g.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := g.Status(); got != telemetry.StatusStandby {
		t.Fatalf("status after stop = %s, want %s", got, telemetry.StatusStandby)
	}

	want := []telemetry.Status{
		telemetry.StatusConnecting,
		telemetry.StatusStreamingSim,
		telemetry.StatusStandby,
	}
	got := reporter.statuses()
	if len(got) != len(want) {
		t.Fatalf("status transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transition %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestWaveformSwitchAppliesNextCycle(t *testing.T) {
	g := NewGenerator(nil, nil, quietLogger(), testConfig())
	if err := g.Params().SetAmplitude(0.25); err != nil {
		t.Fatalf("set amplitude: %v", err)
	}
	if err := g.Start(""); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer g.Stop()

	waitFor(t, 2*time.Second, func() bool {
		_, _, ok := g.Snapshot()
		return ok
	}, "first published buffer")

	_, before, _ := g.Snapshot()
	if err := g.Params().SetWaveform("square"); err != nil {
		t.Fatalf("set waveform: %v", err)
	}

	// the buffer in flight at switch time may still be sinusoidal; the one
	// after that is synthesized entirely under the new register value
	waitFor(t, 2*time.Second, func() bool {
		_, seq, ok := g.Snapshot()
		return ok && seq >= before+2
	}, "square buffer")

	buf, _, _ := g.Snapshot()
	const amp = float32(0.25)
	for i, v := range buf {
		if re := real(v); re != amp && re != -amp {
			t.Fatalf("sample %d real = %v, want exactly ±%v", i, re, amp)
		}
		if im := imag(v); im != amp && im != -amp {
			t.Fatalf("sample %d imag = %v, want exactly ±%v", i, im, amp)
		}
	}
}

func TestStartWhileRunningFails(t *testing.T) {
	g := NewGenerator(nil, nil, quietLogger(), testConfig())
	if err := g.Start(""); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer g.Stop()

	if err := g.Start(""); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second start = %v, want ErrAlreadyRunning", err)
	}
}

func TestGeneratorIsRestartable(t *testing.T) {
	g := NewGenerator(nil, nil, quietLogger(), testConfig())

	for round := 0; round < 2; round++ {
		if err := g.Start(""); err != nil {
			t.Fatalf("round %d start: %v", round, err)
		}
		waitFor(t, 2*time.Second, func() bool {
			_, _, ok := g.Snapshot()
			return ok
		}, "published buffer")
		if err := g.Stop(); err != nil {
			t.Fatalf("round %d stop: %v", round, err)
		}
		if g.Running() {
			t.Fatalf("round %d: still running after stop", round)
		}
	}

	// stopping a stopped generator is a no-op
	if err := g.Stop(); err != nil {
		t.Fatalf("redundant stop: %v", err)
	}
}

func TestConnectFailureDegradesToSimulation(t *testing.T) {
	backend := sdr.NewMockTX()
	backend.FailInit(errors.New("no route to device"))
	reporter := &recordingReporter{}
	g := NewGenerator(backend, reporter, quietLogger(), testConfig())

	if err := g.Start("192.0.2.1:30431"); err != nil {
		t.Fatalf("start must not surface device errors, got %v", err)
	}
	defer g.Stop()

	waitFor(t, 2*time.Second, func() bool {
		_, seq, ok := g.Snapshot()
		return ok && seq >= 3
	}, "simulated buffers after failed connect")

	if got := g.Status(); got != telemetry.StatusStreamingSim {
		t.Fatalf("status = %s, want %s", got, telemetry.StatusStreamingSim)
	}
	if backend.Sends() != 0 {
		t.Fatalf("backend saw %d sends after failed init", backend.Sends())
	}

	if err := g.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if backend.Closes() != 1 {
		t.Fatalf("backend closes = %d, want 1", backend.Closes())
	}
}

func TestMidRunSendFailureDegrades(t *testing.T) {
	backend := sdr.NewMockTX()
	backend.FailAfter(2, errors.New("link dropped"))
	g := NewGenerator(backend, nil, quietLogger(), testConfig())

	if err := g.Start("pluto.local:30431"); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer g.Stop()

	waitFor(t, 2*time.Second, func() bool {
		return g.Status() == telemetry.StatusStreamingSim
	}, "degrade to simulation")

	// samples keep flowing on the simulated path
	_, seqAtDegrade, _ := g.Snapshot()
	waitFor(t, 2*time.Second, func() bool {
		_, seq, ok := g.Snapshot()
		return ok && seq > seqAtDegrade
	}, "buffers after degrade")

	if backend.Sends() != 2 {
		t.Fatalf("backend sends = %d, want 2", backend.Sends())
	}
	if err := g.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	// the failed session must not get an end-of-burst marker
	for _, b := range backend.Bursts() {
		if b.End {
			t.Fatal("end of burst sent after mid-run failure")
		}
	}
	if backend.Closes() != 1 {
		t.Fatalf("backend closes = %d, want 1", backend.Closes())
	}
}

func TestHardwareRunStatus(t *testing.T) {
	backend := sdr.NewMockTX()
	g := NewGenerator(backend, nil, quietLogger(), testConfig())

	if err := g.Start("pluto.local:30431"); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer g.Stop()

	waitFor(t, 2*time.Second, func() bool {
		return backend.Sends() >= 2
	}, "hardware sends")

	if got := g.Status(); got != telemetry.StatusStreamingHW {
		t.Fatalf("status = %s, want %s", got, telemetry.StatusStreamingHW)
	}

	if err := g.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	bursts := backend.Bursts()
	if len(bursts) < 3 {
		t.Fatalf("recorded %d bursts, want at least 3", len(bursts))
	}
	if !bursts[0].Start {
		t.Fatal("first send missing start-of-burst")
	}
	last := bursts[len(bursts)-1]
	if !last.End {
		t.Fatal("session missing end-of-burst on stop")
	}
}

func TestParamValidation(t *testing.T) {
	p := NewParams()

	if err := p.SetFrequency(1e6); err == nil {
		t.Fatal("frequency below range accepted")
	}
	if err := p.SetFrequency(7e9); err == nil {
		t.Fatal("frequency above range accepted")
	}
	if err := p.SetGain(-1); err == nil {
		t.Fatal("negative gain accepted")
	}
	if err := p.SetGain(90); err == nil {
		t.Fatal("gain above range accepted")
	}
	if err := p.SetAmplitude(1.5); err == nil {
		t.Fatal("amplitude above range accepted")
	}
	if err := p.SetWaveform("triangle"); err == nil {
		t.Fatal("unknown waveform accepted")
	}

	if p.Frequency() != DefaultFrequencyHz || p.Gain() != DefaultGainDB || p.Amplitude() != DefaultAmplitude {
		t.Fatal("rejected writes must leave registers untouched")
	}

	if err := p.SetFrequency(2.4e9); err != nil {
		t.Fatalf("in-range frequency rejected: %v", err)
	}
	if p.Frequency() != 2.4e9 {
		t.Fatalf("frequency register = %v", p.Frequency())
	}
}
