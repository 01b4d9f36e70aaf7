package encode

import (
	"encoding/binary"
	"fmt"

	"github.com/meetcap/meetcap/internal/wav"
)

// windowEncoder turns one cadence window of interleaved PCM16 into
// transport-ready chunks.
type windowEncoder interface {
	encodeWindow(pcm []int16) ([][]byte, error)
}

// Chunker accumulates the combined stream and emits encoded chunks at a
// fixed cadence of captured audio (independent of wall-clock time). Chunks
// come out in the order the samples went in.
type Chunker struct {
	rate     int
	channels int
	window   int // interleaved samples per cadence window
	buf      []int16
	enc      windowEncoder
}

// NewChunker builds a chunker producing one window per chunkMs of audio.
// Codec "pcm16" emits the window's raw little-endian PCM bytes as a single
// chunk; "opus" emits one chunk per 20 ms Opus packet.
func NewChunker(sampleRate, channels, chunkMs int, codec string, opusBitrate int) (*Chunker, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid stream shape: rate %d, channels %d", sampleRate, channels)
	}
	if chunkMs <= 0 {
		chunkMs = 1000
	}

	var enc windowEncoder
	var err error
	switch codec {
	case "", "pcm16":
		enc = pcmEncoder{}
	case "opus":
		enc, err = newOpusEncoder(sampleRate, channels, opusBitrate)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown codec %q", codec)
	}

	return &Chunker{
		rate:     sampleRate,
		channels: channels,
		window:   sampleRate * chunkMs / 1000 * channels,
		enc:      enc,
	}, nil
}

// Write quantizes an interleaved float block into the accumulator and
// returns the chunks for every cadence window completed by this block.
func (c *Chunker) Write(block []float32) ([][]byte, error) {
	for _, s := range block {
		c.buf = append(c.buf, wav.Quantize(s))
	}

	var chunks [][]byte
	for len(c.buf) >= c.window {
		window := c.buf[:c.window]
		c.buf = c.buf[c.window:]

		encoded, err := c.enc.encodeWindow(window)
		if err != nil {
			return chunks, fmt.Errorf("encode window: %w", err)
		}
		chunks = append(chunks, encoded...)
	}
	return chunks, nil
}

// Flush encodes whatever partial window remains. Called once when the
// session stops, before the transport closes.
func (c *Chunker) Flush() ([][]byte, error) {
	if len(c.buf) == 0 {
		return nil, nil
	}
	window := c.buf
	c.buf = nil

	encoded, err := c.enc.encodeWindow(window)
	if err != nil {
		return nil, fmt.Errorf("encode final window: %w", err)
	}
	return encoded, nil
}

// pcmEncoder passes the window through as raw 16-bit little-endian bytes.
type pcmEncoder struct{}

func (pcmEncoder) encodeWindow(pcm []int16) ([][]byte, error) {
	if len(pcm) == 0 {
		return nil, nil
	}
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return [][]byte{out}, nil
}
