package app

import (
	"sync"
)

// Slot is a single-slot mailbox handing the latest generated buffer from
// the streaming worker to external readers. Offer never blocks: when a
// reader holds the lock the publish is skipped, trading staleness for a
// stall-free real-time loop. Readers see either the previous or the latest
// complete buffer, never a partial one.
type Slot struct {
	mu  sync.Mutex
	buf []complex64
	seq uint64
}

func NewSlot() *Slot { return &Slot{} }

// Offer publishes a buffer if the slot is uncontended. It reports whether
// the publish happened. The buffer is copied, so the caller may reuse it.
func (s *Slot) Offer(buf []complex64) bool {
	if !s.mu.TryLock() {
		return false
	}
	defer s.mu.Unlock()
	s.buf = append(s.buf[:0], buf...)
	s.seq++
	return true
}

// Read returns a copy of the last published buffer and its sequence
// number, or ok=false when nothing has been published yet.
func (s *Slot) Read() (buf []complex64, seq uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq == 0 {
		return nil, 0, false
	}
	out := make([]complex64, len(s.buf))
	copy(out, s.buf)
	return out, s.seq, true
}
