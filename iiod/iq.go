package iiod

import (
	"encoding/binary"
	"errors"
	"math"
)

// InterleaveComplex converts complex64 baseband samples into the interleaved
// signed 16-bit little-endian IQ format the AD9361 TX path expects. Values
// are clamped to [-1, +1] before scaling.
func InterleaveComplex(samples []complex64) []byte {
	buf := make([]byte, len(samples)*4)
	for n, s := range samples {
		i := clampInt16(real(s))
		q := clampInt16(imag(s))
		off := n * 4
		binary.LittleEndian.PutUint16(buf[off+0:off+2], uint16(i))
		binary.LittleEndian.PutUint16(buf[off+2:off+4], uint16(q))
	}
	return buf
}

// DeinterleaveComplex converts an interleaved 16-bit LE IQ payload back into
// normalized complex64 samples.
func DeinterleaveComplex(buf []byte) ([]complex64, error) {
	if len(buf)%4 != 0 {
		return nil, errors.New("DeinterleaveComplex: buffer length not multiple of 4")
	}
	out := make([]complex64, len(buf)/4)
	for n := range out {
		off := n * 4
		i16 := int16(binary.LittleEndian.Uint16(buf[off+0 : off+2]))
		q16 := int16(binary.LittleEndian.Uint16(buf[off+2 : off+4]))
		out[n] = complex(float32(i16)/float32(math.MaxInt16), float32(q16)/float32(math.MaxInt16))
	}
	return out, nil
}

func clampInt16(v float32) int16 {
	if v > 1 {
		v = 1
	}
	if v < -1 {
		v = -1
	}
	return int16(v * math.MaxInt16)
}
