package dsp

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// FFTShift returns the FFT output shifted so that DC is centered.
func FFTShift(data []complex128) []complex128 {
	n := len(data)
	if n == 0 {
		return []complex128{}
	}
	half := n / 2
	out := make([]complex128, 0, n)
	out = append(out, data[half:]...)
	return append(out, data[:half]...)
}

// SpectrumDBFS computes the Hamming-windowed FFT of a complex baseband
// buffer and returns the magnitude in dBFS, DC-centered. Full scale is a
// unit-amplitude tone; empty input yields an empty slice.
func SpectrumDBFS(samples []complex64) []float64 {
	if len(samples) == 0 {
		return []float64{}
	}
	win := Hamming(len(samples))
	windowed := ApplyWindow(samples, win)
	fft := fourier.NewCmplxFFT(len(samples)).Coefficients(nil, windowed)

	sumWin := 0.0
	for _, v := range win {
		sumWin += v
	}
	for i := range fft {
		fft[i] /= complex(sumWin, 0)
	}

	shifted := FFTShift(fft)
	dbfs := make([]float64, len(shifted))
	for i, v := range shifted {
		mag := cmplx.Abs(v)
		if mag == 0 {
			dbfs[i] = math.Inf(-1)
			continue
		}
		dbfs[i] = 20 * math.Log10(mag)
	}
	return dbfs
}

// PeakBin returns the index and value of the strongest spectrum bin.
func PeakBin(dbfs []float64) (int, float64) {
	peak := math.Inf(-1)
	idx := -1
	for i, v := range dbfs {
		if v > peak {
			peak = v
			idx = i
		}
	}
	return idx, peak
}
