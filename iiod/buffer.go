package iiod

import (
	"fmt"
	"strings"
	"sync"
)

// Buffer represents an open streaming buffer on a remote IIO device.
// A transmit buffer accepts interleaved int16 IQ payloads via WriteSamples;
// WriteEnd pushes the zero-length terminating write that closes a burst.
type Buffer struct {
	mu           sync.Mutex
	client       *Client
	device       string
	size         int
	channelMask  uint64
	isOpen       bool
	enabledChans []string
}

// CreateStreamBuffer enables the channels selected by channelMask on the
// device and opens a streaming buffer of the given sample count. Cyclic
// buffers replay their last payload until closed.
func (c *Client) CreateStreamBuffer(device string, samples int, channelMask uint64, cyclic bool) (*Buffer, error) {
	if strings.TrimSpace(device) == "" {
		return nil, fmt.Errorf("device name is required")
	}
	if samples <= 0 {
		return nil, fmt.Errorf("sample count must be positive")
	}

	b := &Buffer{
		client:      c,
		device:      device,
		size:        samples,
		channelMask: channelMask,
	}

	channels, err := c.GetChannels(device)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	for i, ch := range channels {
		if i >= 64 {
			break
		}
		if channelMask&(1<<uint(i)) == 0 {
			continue
		}
		if err := c.WriteAttr(device, ch, "en", "1"); err != nil {
			return nil, fmt.Errorf("enable channel %s: %w", ch, err)
		}
		b.enabledChans = append(b.enabledChans, ch)
	}

	cmd := fmt.Sprintf("OPEN %s %d %x", device, samples, channelMask)
	if cyclic {
		cmd += " CYCLIC"
	}
	if _, err := c.exec(cmd, nil); err != nil {
		return nil, fmt.Errorf("open buffer: %w", err)
	}
	b.isOpen = true
	return b, nil
}

// Size returns the buffer depth in samples.
func (b *Buffer) Size() int { return b.size }

// WriteSamples pushes one interleaved payload to the device.
func (b *Buffer) WriteSamples(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.isOpen {
		return fmt.Errorf("buffer not open")
	}
	if _, err := b.client.exec(fmt.Sprintf("WRITEBUF %s", b.device), data); err != nil {
		return fmt.Errorf("write buffer: %w", err)
	}
	return nil
}

// WriteEnd pushes a zero-length payload, signalling end of transmission
// to the device before the buffer is closed.
func (b *Buffer) WriteEnd() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.isOpen {
		return fmt.Errorf("buffer not open")
	}
	if _, err := b.client.exec(fmt.Sprintf("WRITEBUF %s", b.device), []byte{}); err != nil {
		return fmt.Errorf("write end marker: %w", err)
	}
	return nil
}

// Close releases the remote buffer and disables the channels it enabled.
// Closing an already-closed buffer is a no-op.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.isOpen {
		return nil
	}
	b.isOpen = false

	if _, err := b.client.exec(fmt.Sprintf("CLOSE %s", b.device), nil); err != nil {
		return fmt.Errorf("close buffer: %w", err)
	}
	for _, ch := range b.enabledChans {
		if err := b.client.WriteAttr(b.device, ch, "en", "0"); err != nil {
			return fmt.Errorf("disable channel %s: %w", ch, err)
		}
	}
	b.enabledChans = nil
	return nil
}
