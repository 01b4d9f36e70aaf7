package mix

import (
	"fmt"
)

// PadPolicy controls how sources of unequal length are combined.
type PadPolicy int

const (
	// PadToLongest pads an exhausted source with silence so the combined
	// duration equals the longest source.
	PadToLongest PadPolicy = iota
	// TruncateToShortest cuts the combined stream at the shortest source.
	TruncateToShortest
)

// ParsePadPolicy maps a config value to a policy.
func ParsePadPolicy(s string) (PadPolicy, error) {
	switch s {
	case "", "pad":
		return PadToLongest, nil
	case "truncate":
		return TruncateToShortest, nil
	default:
		return PadToLongest, fmt.Errorf("unknown pad policy %q", s)
	}
}

// Track is one source's contribution to a combined stream: interleaved
// samples, its channel count, and the gain applied before combining.
type Track struct {
	Samples  []float32 // interleaved
	Channels int
	Gain     float64
}

// Frames returns the number of time steps the track covers.
func (t Track) Frames() int {
	if t.Channels <= 0 {
		return 0
	}
	return len(t.Samples) / t.Channels
}

// Clamp bounds a sample to [-1, 1]. Overdriven samples saturate, they
// never wrap.
func Clamp(s float32) float32 {
	if s > 1.0 {
		return 1.0
	}
	if s < -1.0 {
		return -1.0
	}
	return s
}

// ApplyGain scales samples by gain, clamping each result. Returns a new
// slice; the input is left untouched.
func ApplyGain(samples []float32, gain float64) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = Clamp(float32(float64(s) * gain))
	}
	return out
}

// Combine merges tracks by channel union: each track keeps its own
// channel(s) in the output rather than being summed into one, so tab and
// mic energy stay separate. Output is one sample vector per combined
// channel, in track order. Gain is applied per track with hard clamping.
//
// Length mismatches follow the policy: PadToLongest extends exhausted
// tracks with zero samples, TruncateToShortest cuts at the shortest track.
func Combine(tracks []Track, policy PadPolicy) ([][]float32, error) {
	if len(tracks) == 0 {
		return nil, fmt.Errorf("no tracks to combine")
	}
	for i, t := range tracks {
		if t.Channels <= 0 {
			return nil, fmt.Errorf("track %d has no channels", i)
		}
		if len(t.Samples)%t.Channels != 0 {
			return nil, fmt.Errorf("track %d has a partial frame (%d samples, %d channels)", i, len(t.Samples), t.Channels)
		}
	}

	frames := tracks[0].Frames()
	for _, t := range tracks[1:] {
		switch policy {
		case TruncateToShortest:
			if t.Frames() < frames {
				frames = t.Frames()
			}
		default:
			if t.Frames() > frames {
				frames = t.Frames()
			}
		}
	}

	var out [][]float32
	for _, t := range tracks {
		scaled := ApplyGain(t.Samples, t.Gain)
		for c := 0; c < t.Channels; c++ {
			channel := make([]float32, frames)
			for i := 0; i < frames && i < t.Frames(); i++ {
				channel[i] = scaled[i*t.Channels+c]
			}
			out = append(out, channel)
		}
	}

	return out, nil
}

// Interleave flattens per-channel vectors into channel-major, time-minor
// order: for each time index, channel 0's sample, then channel 1's, etc.
// All channels must be the same length.
func Interleave(channels [][]float32) ([]float32, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("no channels to interleave")
	}
	frames := len(channels[0])
	for i, ch := range channels[1:] {
		if len(ch) != frames {
			return nil, fmt.Errorf("channel %d length %d != channel 0 length %d", i+1, len(ch), frames)
		}
	}

	out := make([]float32, 0, frames*len(channels))
	for i := 0; i < frames; i++ {
		for _, ch := range channels {
			out = append(out, ch[i])
		}
	}
	return out, nil
}
