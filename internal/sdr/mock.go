package sdr

import (
	"context"
	"sync"
)

// MockTX is a scriptable transmit backend for tests. It records burst
// framing and the last transmitted buffer, and can be told to fail at init
// or after a number of sends.
type MockTX struct {
	mu        sync.Mutex
	cfg       Config
	initErr   error
	sendErr   error
	failAfter int
	sends     int
	closes    int
	bursts    []Burst
	last      []complex64
}

func NewMockTX() *MockTX { return &MockTX{} }

// FailInit makes the next Init return err.
func (m *MockTX) FailInit(err error) {
	m.mu.Lock()
	m.initErr = err
	m.mu.Unlock()
}

// FailAfter makes TX return err once n sends have succeeded.
func (m *MockTX) FailAfter(n int, err error) {
	m.mu.Lock()
	m.failAfter = n
	m.sendErr = err
	m.mu.Unlock()
}

func (m *MockTX) Init(_ context.Context, cfg Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initErr != nil {
		return m.initErr
	}
	m.cfg = cfg
	return nil
}

func (m *MockTX) TX(_ context.Context, iq []complex64, burst Burst) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil && m.sends >= m.failAfter {
		return m.sendErr
	}
	m.bursts = append(m.bursts, burst)
	m.sends++
	m.last = append([]complex64(nil), iq...)
	return nil
}

func (m *MockTX) Close() error {
	m.mu.Lock()
	m.closes++
	m.mu.Unlock()
	return nil
}

// Sends returns the number of successful TX calls, end bursts included.
func (m *MockTX) Sends() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sends
}

// Closes returns how many times Close was called.
func (m *MockTX) Closes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

// Bursts returns the recorded burst metadata in send order.
func (m *MockTX) Bursts() []Burst {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Burst(nil), m.bursts...)
}

// LastBuffer returns a copy of the most recently transmitted buffer.
func (m *MockTX) LastBuffer() []complex64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]complex64(nil), m.last...)
}
