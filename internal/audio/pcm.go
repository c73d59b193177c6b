// Package audio converts between wire PCM16 audio and the normalized
// float sample buffers consumed by the speech backends.
package audio

import "encoding/binary"

// DecodePCM16 converts little-endian signed 16-bit PCM bytes into mono
// float32 samples normalized to [-1, 1]. A trailing odd byte is dropped.
func DecodePCM16(raw []byte) []float32 {
	n := len(raw) / 2
	if n == 0 {
		return nil
	}
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(raw[i*2:]))
		samples[i] = float32(s) / 32768.0
	}
	return samples
}

// EncodePCM16 converts normalized float32 samples back to little-endian
// signed 16-bit PCM, clamping values outside [-1, 1].
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := s * 32767.0
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// Window extracts the sub-slice of samples covering [start, end) seconds.
// Bounds are clamped to the buffer; an inverted or out-of-range window
// yields nil.
func Window(samples []float32, sampleRate int, start, end float64) []float32 {
	if sampleRate <= 0 || end <= start {
		return nil
	}
	lo := int(start * float64(sampleRate))
	hi := int(end * float64(sampleRate))
	if lo < 0 {
		lo = 0
	}
	if hi > len(samples) {
		hi = len(samples)
	}
	if lo >= hi {
		return nil
	}
	return samples[lo:hi]
}

// Duration returns the length of the sample buffer in seconds.
func Duration(samples []float32, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(len(samples)) / float64(sampleRate)
}
