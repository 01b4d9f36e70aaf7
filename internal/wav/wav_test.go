package wav

import (
	"encoding/binary"
	"errors"
	"testing"
)

func TestQuantizeSaturates(t *testing.T) {
	cases := []struct {
		in   float32
		want int16
	}{
		{0, 0},
		{1.0, 32767},
		{-1.0, -32767},
		{1.5, 32767},
		{-2.0, -32767},
		{0.5, 16384}, // 16383.5 rounds away from zero
		{-0.5, -16384},
	}

	for _, c := range cases {
		if got := Quantize(c.in); got != c.want {
			t.Errorf("Quantize(%f): expected %d, got %d", c.in, c.want, got)
		}
	}
}

func TestQuantizePrecision(t *testing.T) {
	// Every representable level must be within one quantization step
	// of the exact value.
	for _, f := range []float32{0.1, 0.25, 0.333, 0.9, -0.1, -0.707} {
		got := Quantize(f)
		exact := float64(f) * 32767
		diff := float64(got) - exact
		if diff < 0 {
			diff = -diff
		}
		if diff > 0.5 {
			t.Errorf("Quantize(%f) = %d, off by %f from %f", f, got, diff, exact)
		}
	}
}

func TestEncodeMonoHeader(t *testing.T) {
	data, err := Encode([][]float32{{0.5, -0.5, 1.2}}, 16000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 3 frames * 1 channel * 2 bytes
	if len(data) != 44+6 {
		t.Fatalf("expected %d bytes, got %d", 44+6, len(data))
	}

	if string(data[0:4]) != "RIFF" {
		t.Errorf("expected RIFF marker, got %q", data[0:4])
	}
	if got := binary.LittleEndian.Uint32(data[4:8]); got != 42 {
		t.Errorf("expected riff chunk size 42, got %d", got)
	}
	if string(data[8:12]) != "WAVE" {
		t.Errorf("expected WAVE marker, got %q", data[8:12])
	}
	if string(data[12:16]) != "fmt " {
		t.Errorf("expected fmt marker, got %q", data[12:16])
	}
	if got := binary.LittleEndian.Uint32(data[16:20]); got != 16 {
		t.Errorf("expected fmt chunk size 16, got %d", got)
	}
	if got := binary.LittleEndian.Uint16(data[20:22]); got != 1 {
		t.Errorf("expected PCM format tag, got %d", got)
	}
	if got := binary.LittleEndian.Uint16(data[22:24]); got != 1 {
		t.Errorf("expected 1 channel, got %d", got)
	}
	if got := binary.LittleEndian.Uint32(data[24:28]); got != 16000 {
		t.Errorf("expected sample rate 16000, got %d", got)
	}
	if got := binary.LittleEndian.Uint32(data[28:32]); got != 32000 {
		t.Errorf("expected byte rate 32000, got %d", got)
	}
	if got := binary.LittleEndian.Uint16(data[32:34]); got != 2 {
		t.Errorf("expected block align 2, got %d", got)
	}
	if got := binary.LittleEndian.Uint16(data[34:36]); got != 16 {
		t.Errorf("expected 16 bits per sample, got %d", got)
	}
	if string(data[36:40]) != "data" {
		t.Errorf("expected data marker, got %q", data[36:40])
	}
	if got := binary.LittleEndian.Uint32(data[40:44]); got != 6 {
		t.Errorf("expected data length 6, got %d", got)
	}

	// Samples: 0.5 -> 16384, -0.5 -> -16384, 1.2 clamps to 32767
	expected := []int16{16384, -16384, 32767}
	for i, want := range expected {
		got := int16(binary.LittleEndian.Uint16(data[44+i*2 : 46+i*2]))
		if got != want {
			t.Errorf("sample %d: expected %d, got %d", i, want, got)
		}
	}
}

func TestEncodeStereoInterleaving(t *testing.T) {
	left := []float32{0.25, 0.5}
	right := []float32{-0.25, -0.5}

	data, err := Encode([][]float32{left, right}, 48000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(data) != 44+8 {
		t.Fatalf("expected %d bytes, got %d", 44+8, len(data))
	}
	if got := binary.LittleEndian.Uint16(data[22:24]); got != 2 {
		t.Errorf("expected 2 channels, got %d", got)
	}
	if got := binary.LittleEndian.Uint32(data[28:32]); got != 192000 {
		t.Errorf("expected byte rate 192000, got %d", got)
	}
	if got := binary.LittleEndian.Uint16(data[32:34]); got != 4 {
		t.Errorf("expected block align 4, got %d", got)
	}

	// L0 R0 L1 R1
	expected := []int16{8192, -8192, 16384, -16384}
	for i, want := range expected {
		got := int16(binary.LittleEndian.Uint16(data[44+i*2 : 46+i*2]))
		if got != want {
			t.Errorf("sample %d: expected %d, got %d", i, want, got)
		}
	}
}

func TestEncodeEmptyChannels(t *testing.T) {
	// Zero frames is a legal recording; the container is header-only.
	data, err := Encode([][]float32{{}}, 48000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) != 44 {
		t.Fatalf("expected header-only container of 44 bytes, got %d", len(data))
	}
	if got := binary.LittleEndian.Uint32(data[40:44]); got != 0 {
		t.Errorf("expected data length 0, got %d", got)
	}
	if got := binary.LittleEndian.Uint32(data[4:8]); got != 36 {
		t.Errorf("expected riff chunk size 36, got %d", got)
	}
}

func TestEncodeMalformed(t *testing.T) {
	if _, err := Encode(nil, 48000); !errors.Is(err, ErrMalformedBuffer) {
		t.Errorf("no channels: expected ErrMalformedBuffer, got %v", err)
	}
	if _, err := Encode([][]float32{{0, 0}, {0}}, 48000); !errors.Is(err, ErrMalformedBuffer) {
		t.Errorf("ragged channels: expected ErrMalformedBuffer, got %v", err)
	}
	if _, err := EncodeInterleaved([]float32{0, 0, 0}, 2, 48000); !errors.Is(err, ErrMalformedBuffer) {
		t.Errorf("partial frame: expected ErrMalformedBuffer, got %v", err)
	}
	if _, err := EncodeInterleaved([]float32{0, 0}, 0, 48000); !errors.Is(err, ErrMalformedBuffer) {
		t.Errorf("zero channels: expected ErrMalformedBuffer, got %v", err)
	}
	if _, err := EncodeInterleaved([]float32{0, 0}, 2, 0); !errors.Is(err, ErrMalformedBuffer) {
		t.Errorf("zero rate: expected ErrMalformedBuffer, got %v", err)
	}
}

func TestEncodePCM16Passthrough(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}

	data, err := EncodePCM16(pcm, 1, 16000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) != 44+4 {
		t.Fatalf("expected %d bytes, got %d", 44+4, len(data))
	}
	for i, b := range pcm {
		if data[44+i] != b {
			t.Errorf("payload byte %d: expected %#x, got %#x", i, b, data[44+i])
		}
	}

	if _, err := EncodePCM16([]byte{0x01}, 1, 16000); !errors.Is(err, ErrMalformedBuffer) {
		t.Errorf("odd byte count: expected ErrMalformedBuffer, got %v", err)
	}
}
