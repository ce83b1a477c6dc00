package sdr

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sdrlab/txwave/iiod"
	"github.com/sdrlab/txwave/internal/logging"
)

// PlutoTX implements a minimal AD9361/Pluto transmit backend using the IIOD
// client. Init programs sample rate, TX LO, and TX gain, then acquires a
// streaming buffer on the DDS core; TX pushes interleaved int16 IQ payloads.
type PlutoTX struct {
	mu         sync.Mutex
	client     *iiod.Client
	phyDev     string
	txDev      string
	txBuffer   *iiod.Buffer
	numSamples int
	sshWriter  *SSHAttributeWriter
	logger     logging.Logger
}

func NewPluto() *PlutoTX { return &PlutoTX{logger: logging.Default()} }

// SetLogger replaces the backend logger.
func (p *PlutoTX) SetLogger(logger logging.Logger) {
	if logger == nil {
		return
	}
	p.mu.Lock()
	p.logger = logger.With(logging.Field{Key: "subsystem", Value: "pluto"})
	p.mu.Unlock()
}

// Init connects to the IIOD server, locates the AD9361 PHY and TX devices,
// programs rate, LO frequency, and gain, and opens the transmit buffer.
func (p *PlutoTX) Init(_ context.Context, cfg Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cfg.URI == "" {
		return fmt.Errorf("IIOD URI is required")
	}
	if cfg.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive")
	}
	if cfg.NumSamples <= 0 {
		cfg.NumSamples = 2048
	}

	p.logger.Info("connecting", logging.Field{Key: "uri", Value: cfg.URI})
	client, err := iiod.Dial(cfg.URI)
	if err != nil {
		return fmt.Errorf("connect to IIOD: %w", err)
	}

	devices, err := client.ListDevices()
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("list devices: %w", err)
	}
	phy, tx := identifyTXDevices(devices)
	if phy == "" || tx == "" {
		_ = client.Close()
		return fmt.Errorf("unable to locate AD9361 TX devices (phy=%q tx=%q)", phy, tx)
	}
	p.logger.Debug("devices located",
		logging.Field{Key: "phy", Value: phy},
		logging.Field{Key: "tx", Value: tx})

	if cfg.SSH.Host != "" {
		writer, err := NewSSHAttributeWriter(cfg.SSH)
		if err != nil {
			_ = client.Close()
			return fmt.Errorf("configure ssh fallback: %w", err)
		}
		p.sshWriter = writer
	}

	if err := p.writeAttr(client, phy, "", "sampling_frequency", fmt.Sprintf("%.0f", cfg.SampleRate)); err != nil {
		_ = client.Close()
		return fmt.Errorf("set sample rate: %w", err)
	}
	if err := p.writeAttr(client, phy, "altvoltage0", "frequency", fmt.Sprintf("%.0f", cfg.CenterFreq)); err != nil {
		_ = client.Close()
		return fmt.Errorf("set TX LO: %w", err)
	}
	if err := p.writeAttr(client, phy, "out", "hardwaregain", fmt.Sprintf("%.0f", cfg.TxGain)); err != nil {
		_ = client.Close()
		return fmt.Errorf("set TX gain: %w", err)
	}

	p.logger.Debug("opening TX buffer", logging.Field{Key: "samples", Value: cfg.NumSamples})
	txBuf, err := client.CreateStreamBuffer(tx, cfg.NumSamples, 0x3, false)
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("create TX buffer: %w", err)
	}

	p.client = client
	p.phyDev = phy
	p.txDev = tx
	p.txBuffer = txBuf
	p.numSamples = cfg.NumSamples

	p.logger.Info("TX chain initialized",
		logging.Field{Key: "rate_hz", Value: cfg.SampleRate},
		logging.Field{Key: "lo_hz", Value: cfg.CenterFreq},
		logging.Field{Key: "gain_db", Value: cfg.TxGain})
	return nil
}

// writeAttr programs an IIO attribute, falling back to sysfs over SSH when
// the IIOD write is rejected (protocol v0.25 firmware lacks WRITE_ATTR for
// some PHY attributes).
func (p *PlutoTX) writeAttr(client *iiod.Client, dev, ch, attr, value string) error {
	err := client.WriteAttr(dev, ch, attr, value)
	if err == nil {
		return nil
	}
	if p.sshWriter == nil {
		return err
	}
	p.logger.Warn("IIOD attribute write rejected, using sysfs fallback",
		logging.Field{Key: "attr", Value: attr},
		logging.Field{Key: "err", Value: err})
	if sshErr := p.sshWriter.WriteAttribute(context.Background(), dev, ch, attr, value); sshErr != nil {
		return fmt.Errorf("IIOD write failed (%v); sysfs fallback failed: %w", err, sshErr)
	}
	return nil
}

// TX pushes one buffer to the device. A zero-length end burst terminates
// the transmission window.
func (p *PlutoTX) TX(_ context.Context, iq []complex64, burst Burst) error {
	p.mu.Lock()
	buf := p.txBuffer
	size := p.numSamples
	p.mu.Unlock()

	if buf == nil {
		return fmt.Errorf("TX buffer not initialized")
	}
	if burst.End && len(iq) == 0 {
		if err := buf.WriteEnd(); err != nil {
			return fmt.Errorf("write end of burst: %w", err)
		}
		return nil
	}
	if len(iq) != size {
		return fmt.Errorf("TX buffer length %d, want %d", len(iq), size)
	}
	if err := buf.WriteSamples(iiod.InterleaveComplex(iq)); err != nil {
		return fmt.Errorf("write TX buffer: %w", err)
	}
	return nil
}

// Close releases the TX buffer and the IIOD connection. Idempotent.
func (p *PlutoTX) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	if p.txBuffer != nil {
		if err := p.txBuffer.Close(); err != nil {
			firstErr = err
		}
		p.txBuffer = nil
	}
	if p.sshWriter != nil {
		if err := p.sshWriter.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		p.sshWriter = nil
	}
	if p.client != nil {
		if err := p.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		p.client = nil
	}
	return firstErr
}

// identifyTXDevices finds the PHY and DDS (TX) device identifiers.
func identifyTXDevices(devices []string) (phy, tx string) {
	for _, dev := range devices {
		lower := strings.ToLower(dev)
		switch {
		case strings.Contains(lower, "ad9361-phy"):
			phy = dev
		case strings.Contains(lower, "cf-ad9361-dds"):
			tx = dev
		}
	}
	return phy, tx
}
