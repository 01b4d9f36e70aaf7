package encode

import (
	"fmt"

	"github.com/hraban/opus"
)

// opusFrameMs is the Opus packet duration. 20 ms is the codec's sweet spot
// for speech and divides the default cadence evenly.
const opusFrameMs = 20

// maxPacketSize is large enough for any Opus packet at our bitrates.
const maxPacketSize = 4000

// opusEncoder slices a cadence window into fixed Opus frames and encodes
// each to its own packet. Packets are self-delimiting chunks: one packet
// per transport frame, no extra framing.
type opusEncoder struct {
	enc      *opus.Encoder
	channels int
	frame    int // interleaved samples per Opus frame
}

func newOpusEncoder(sampleRate, channels, bitrate int) (*opusEncoder, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("opus encoder: %w", err)
	}
	if bitrate > 0 {
		if err := enc.SetBitrate(bitrate); err != nil {
			return nil, fmt.Errorf("opus bitrate %d: %w", bitrate, err)
		}
	}
	return &opusEncoder{
		enc:      enc,
		channels: channels,
		frame:    sampleRate * opusFrameMs / 1000 * channels,
	}, nil
}

func (e *opusEncoder) encodeWindow(pcm []int16) ([][]byte, error) {
	var packets [][]byte

	for start := 0; start < len(pcm); start += e.frame {
		end := start + e.frame
		frame := pcm[start:min(end, len(pcm))]

		// Opus frames are fixed-size; pad a trailing partial frame
		// (final flush) with silence.
		if len(frame) < e.frame {
			padded := make([]int16, e.frame)
			copy(padded, frame)
			frame = padded
		}

		buf := make([]byte, maxPacketSize)
		n, err := e.enc.Encode(frame, buf)
		if err != nil {
			return packets, fmt.Errorf("opus encode: %w", err)
		}
		packets = append(packets, buf[:n])
	}

	return packets, nil
}
