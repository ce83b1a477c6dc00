package app

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/sdrlab/txwave/internal/dsp"
)

// Parameter envelopes, matching the device's usable range.
const (
	MinFrequencyHz = 70e6
	MaxFrequencyHz = 6e9
	MinGainDB      = 0.0
	MaxGainDB      = 89.0
	MinAmplitude   = 0.0
	MaxAmplitude   = 1.0
)

// Defaults applied by NewParams.
const (
	DefaultFrequencyHz = 915e6
	DefaultGainDB      = 40.0
	DefaultAmplitude   = 1.0
)

// Params holds the live-tunable registers read by the streaming worker
// every cycle. Each field is independently atomic: writers never block the
// worker and no cross-field consistency is needed. Frequency and gain only
// reach hardware at connect time; amplitude and waveform apply on the next
// cycle.
type Params struct {
	frequency atomic.Uint64
	gain      atomic.Uint64
	amplitude atomic.Uint64
	waveform  atomic.Int32
}

// NewParams returns registers initialized to defaults.
func NewParams() *Params {
	p := &Params{}
	p.frequency.Store(math.Float64bits(DefaultFrequencyHz))
	p.gain.Store(math.Float64bits(DefaultGainDB))
	p.amplitude.Store(math.Float64bits(DefaultAmplitude))
	p.waveform.Store(int32(dsp.Sine))
	return p
}

// SetFrequency updates the center frequency register.
func (p *Params) SetFrequency(hz float64) error {
	if hz < MinFrequencyHz || hz > MaxFrequencyHz {
		return fmt.Errorf("frequency %.0f Hz outside [%.0f, %.0f]", hz, MinFrequencyHz, MaxFrequencyHz)
	}
	p.frequency.Store(math.Float64bits(hz))
	return nil
}

// SetGain updates the TX gain register.
func (p *Params) SetGain(db float64) error {
	if db < MinGainDB || db > MaxGainDB {
		return fmt.Errorf("gain %.1f dB outside [%.0f, %.0f]", db, MinGainDB, MaxGainDB)
	}
	p.gain.Store(math.Float64bits(db))
	return nil
}

// SetAmplitude updates the baseband amplitude register.
func (p *Params) SetAmplitude(a float64) error {
	if a < MinAmplitude || a > MaxAmplitude {
		return fmt.Errorf("amplitude %.2f outside [%.0f, %.0f]", a, MinAmplitude, MaxAmplitude)
	}
	p.amplitude.Store(math.Float64bits(a))
	return nil
}

// SetWaveform selects the waveform family by name.
func (p *Params) SetWaveform(name string) error {
	w, err := dsp.ParseWaveform(name)
	if err != nil {
		return err
	}
	p.waveform.Store(int32(w))
	return nil
}

func (p *Params) Frequency() float64 { return math.Float64frombits(p.frequency.Load()) }
func (p *Params) Gain() float64      { return math.Float64frombits(p.gain.Load()) }
func (p *Params) Amplitude() float64 { return math.Float64frombits(p.amplitude.Load()) }

func (p *Params) Waveform() dsp.Waveform { return dsp.Waveform(p.waveform.Load()) }
