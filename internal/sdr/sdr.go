package sdr

import (
	"context"
)

// Config carries parameters required to initialize a transmit backend.
type Config struct {
	// URI is the IIOD endpoint (host:port). Empty means simulation.
	URI        string
	SampleRate float64
	// CenterFreq programs the TX LO in Hz.
	CenterFreq float64
	// TxGain programs the hardware TX gain in dB.
	TxGain     float64
	NumSamples int
	// SSH enables the sysfs attribute fallback for firmware that rejects
	// IIOD attribute writes. Ignored when SSH.Host is empty.
	SSH SSHConfig
}

// Burst marks a transmission's position within a burst window. The first
// send of a session carries Start; the terminating zero-length send
// carries End.
type Burst struct {
	Start bool
	End   bool
}

// Transmitter captures the minimal radio operations required by the
// transport: bring up the TX chain, push IQ buffers, tear down.
type Transmitter interface {
	Init(ctx context.Context, cfg Config) error
	TX(ctx context.Context, iq []complex64, burst Burst) error
	Close() error
}
