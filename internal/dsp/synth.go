package dsp

import (
	"fmt"
	"math"
	"strings"
)

// Waveform selects the synthesized waveform family.
type Waveform int32

const (
	Sine Waveform = iota
	Square
)

func (w Waveform) String() string {
	switch w {
	case Sine:
		return "sine"
	case Square:
		return "square"
	default:
		return "unknown"
	}
}

// ParseWaveform converts a string to a Waveform. An empty string means Sine.
func ParseWaveform(s string) (Waveform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sine", "":
		return Sine, nil
	case "square":
		return Square, nil
	default:
		return Waveform(0), fmt.Errorf("unsupported waveform %q", s)
	}
}

// Oscillator produces phase-continuous complex baseband buffers. The phase
// accumulator only ever advances; it is reduced into [0, 2pi) by modulo
// after each buffer, so continuity holds across buffer boundaries for any
// buffer length.
type Oscillator struct {
	phase     float64
	increment float64
}

// NewOscillator builds an oscillator for a baseband tone at toneHz sampled
// at sampleRateHz.
func NewOscillator(toneHz, sampleRateHz float64) *Oscillator {
	return &Oscillator{increment: 2 * math.Pi * toneHz / sampleRateHz}
}

// Phase returns the current accumulator value in [0, 2pi).
func (o *Oscillator) Phase() float64 { return o.phase }

// Increment returns the per-sample phase step in radians.
func (o *Oscillator) Increment() float64 { return o.increment }

// Synthesize fills dst with one buffer of IQ samples at the given amplitude
// and advances the phase accumulator by len(dst) steps.
//
// Sine yields (amp*cos, amp*sin). Square yields the sign of each component
// scaled by amplitude, with zero treated as positive so the output is always
// exactly +/-amplitude.
func (o *Oscillator) Synthesize(dst []complex64, amplitude float64, w Waveform) {
	for i := range dst {
		theta := o.phase + float64(i)*o.increment
		var re, im float64
		if w == Square {
			re = signOf(math.Cos(theta)) * amplitude
			im = signOf(math.Sin(theta)) * amplitude
		} else {
			re = math.Cos(theta) * amplitude
			im = math.Sin(theta) * amplitude
		}
		dst[i] = complex(float32(re), float32(im))
	}
	o.phase = math.Mod(o.phase+float64(len(dst))*o.increment, 2*math.Pi)
}

func signOf(v float64) float64 {
	if v >= 0 {
		return 1
	}
	return -1
}
