package dsp

import (
	"math"
	"testing"
)

func TestSpectrumPeakAtToneBin(t *testing.T) {
	const n = 2048
	osc := NewOscillator(testTone, testRate)
	buf := make([]complex64, n)
	osc.Synthesize(buf, 1.0, Sine)

	dbfs := SpectrumDBFS(buf)
	if len(dbfs) != n {
		t.Fatalf("expected %d bins, got %d", n, len(dbfs))
	}

	idx, peak := PeakBin(dbfs)
	wantBin := n/2 + int(math.Round(testTone/testRate*n))
	if idx < wantBin-2 || idx > wantBin+2 {
		t.Fatalf("peak at bin %d, want near %d", idx, wantBin)
	}
	// unit tone through a normalized Hamming window lands near 0 dBFS,
	// minus scalloping loss for a tone between bin centers
	if peak < -3 || peak > 1 {
		t.Fatalf("peak level %.2f dBFS, want near 0", peak)
	}
}

func TestSpectrumEmptyInput(t *testing.T) {
	if got := SpectrumDBFS(nil); len(got) != 0 {
		t.Fatalf("expected empty spectrum, got %d bins", len(got))
	}
}

func TestFFTShiftCentersDC(t *testing.T) {
	in := []complex128{0, 1, 2, 3}
	out := FFTShift(in)
	if out[0] != 2 || out[2] != 0 {
		t.Fatalf("unexpected shift result %v", out)
	}
}
