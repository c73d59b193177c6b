package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestDecodePCM16(t *testing.T) {
	raw := make([]byte, 8)
	binary.LittleEndian.PutUint16(raw[0:], uint16(int16(0)))
	binary.LittleEndian.PutUint16(raw[2:], uint16(int16(16384)))
	negHalf := int16(-16384)
	negFull := int16(-32768)
	binary.LittleEndian.PutUint16(raw[4:], uint16(negHalf))
	binary.LittleEndian.PutUint16(raw[6:], uint16(negFull))

	samples := DecodePCM16(raw)
	if len(samples) != 4 {
		t.Fatalf("len = %d, want 4", len(samples))
	}

	want := []float32{0, 0.5, -0.5, -1.0}
	for i, w := range want {
		if math.Abs(float64(samples[i]-w)) > 1e-4 {
			t.Errorf("sample[%d] = %f, want %f", i, samples[i], w)
		}
	}
}

func TestDecodePCM16Empty(t *testing.T) {
	if got := DecodePCM16(nil); got != nil {
		t.Errorf("DecodePCM16(nil) = %v, want nil", got)
	}
	if got := DecodePCM16([]byte{0x01}); got != nil {
		t.Errorf("single byte should decode to nil, got %v", got)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := []float32{0, 0.25, -0.25, 0.99, -0.99}
	out := DecodePCM16(EncodePCM16(in))
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if math.Abs(float64(out[i]-in[i])) > 1e-3 {
			t.Errorf("sample[%d] = %f, want %f", i, out[i], in[i])
		}
	}
}

func TestEncodePCM16Clamps(t *testing.T) {
	out := EncodePCM16([]float32{2.0, -2.0})
	hi := int16(binary.LittleEndian.Uint16(out[0:]))
	lo := int16(binary.LittleEndian.Uint16(out[2:]))
	if hi != 32767 {
		t.Errorf("positive overflow = %d, want 32767", hi)
	}
	if lo != -32768 {
		t.Errorf("negative overflow = %d, want -32768", lo)
	}
}

func TestWindow(t *testing.T) {
	samples := make([]float32, 16000) // one second at 16kHz

	tests := []struct {
		name       string
		start, end float64
		wantLen    int
	}{
		{"first half", 0, 0.5, 8000},
		{"clamped end", 0.75, 2.0, 4000},
		{"inverted", 0.5, 0.25, 0},
		{"past end", 2.0, 3.0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Window(samples, 16000, tt.start, tt.end)
			if len(got) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestDuration(t *testing.T) {
	if d := Duration(make([]float32, 8000), 16000); d != 0.5 {
		t.Errorf("Duration = %f, want 0.5", d)
	}
	if d := Duration(nil, 0); d != 0 {
		t.Errorf("Duration with zero rate = %f, want 0", d)
	}
}
