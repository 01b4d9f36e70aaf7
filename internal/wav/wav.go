package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrMalformedBuffer indicates a sample buffer the encoder cannot
// represent: no channels, ragged channel lengths, or a non-positive rate.
var ErrMalformedBuffer = errors.New("malformed sample buffer")

const headerSize = 44

// Quantize converts one float sample to signed 16-bit PCM. The sample is
// clamped to [-1, 1] first, then rounded half away from zero: overdriven
// input saturates at ±32767, it never wraps.
func Quantize(f float32) int16 {
	v := float64(f)
	if v > 1.0 {
		v = 1.0
	}
	if v < -1.0 {
		v = -1.0
	}
	return int16(math.Round(v * 32767))
}

// Encode builds a complete WAV container from per-channel sample vectors.
// Channels are interleaved channel-major, time-minor: for each time index,
// channel 0's sample, then channel 1's, and so on. Every channel must be
// the same length. The output is always exactly 44 + dataLength bytes.
func Encode(channels [][]float32, sampleRate int) ([]byte, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("%w: no channels", ErrMalformedBuffer)
	}
	frames := len(channels[0])
	for i, ch := range channels[1:] {
		if len(ch) != frames {
			return nil, fmt.Errorf("%w: channel %d length %d != channel 0 length %d", ErrMalformedBuffer, i+1, len(ch), frames)
		}
	}

	interleaved := make([]float32, 0, frames*len(channels))
	for i := 0; i < frames; i++ {
		for _, ch := range channels {
			interleaved = append(interleaved, ch[i])
		}
	}

	return EncodeInterleaved(interleaved, len(channels), sampleRate)
}

// EncodeInterleaved builds a complete WAV container from already
// interleaved samples.
func EncodeInterleaved(samples []float32, channels, sampleRate int) ([]byte, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("%w: channel count %d", ErrMalformedBuffer, channels)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrMalformedBuffer, sampleRate)
	}
	if len(samples)%channels != 0 {
		return nil, fmt.Errorf("%w: %d samples is not a whole number of %d-channel frames", ErrMalformedBuffer, len(samples), channels)
	}

	pcm := make([]byte, 0, len(samples)*2)
	var scratch [2]byte
	for _, s := range samples {
		binary.LittleEndian.PutUint16(scratch[:], uint16(Quantize(s)))
		pcm = append(pcm, scratch[0], scratch[1])
	}

	return wrapPCM(pcm, sampleRate, channels), nil
}

// EncodePCM16 wraps already quantized 16-bit little-endian PCM bytes in a
// WAV container.
func EncodePCM16(pcm []byte, channels, sampleRate int) ([]byte, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("%w: channel count %d", ErrMalformedBuffer, channels)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrMalformedBuffer, sampleRate)
	}
	if len(pcm)%(channels*2) != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of %d-channel frames", ErrMalformedBuffer, len(pcm), channels)
	}
	return wrapPCM(pcm, sampleRate, channels), nil
}

// wrapPCM writes the RIFF/WAVE header (PCM, 16-bit, little-endian) and
// appends the payload.
func wrapPCM(pcm []byte, sampleRate, channels int) []byte {
	const bitsPerSample = 16

	byteRate := uint32(sampleRate * channels * bitsPerSample / 8)
	blockAlign := uint16(channels * bitsPerSample / 8)
	dataLen := uint32(len(pcm))
	riffSize := uint32(36 + dataLen)

	buf := bytes.NewBuffer(make([]byte, 0, headerSize+len(pcm)))
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, riffSize)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, byteRate)
	binary.Write(buf, binary.LittleEndian, blockAlign)
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, dataLen)
	buf.Write(pcm)
	return buf.Bytes()
}
