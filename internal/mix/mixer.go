package mix

import (
	"fmt"
)

// Input is one live source feeding the mixer.
type Input struct {
	Blocks   <-chan []float32 // interleaved, fixed-size blocks
	Channels int
	Gain     float64
}

// Mixer merges 1..N live inputs into a single combined stream of
// interleaved blocks. The combined channel count is the sum of the input
// channel counts; blocks are combined in strict arrival order, one block
// per input per round.
type Mixer struct {
	inputs   []Input
	policy   PadPolicy
	channels int
}

// NewMixer validates the inputs and builds a mixer.
func NewMixer(inputs []Input, policy PadPolicy) (*Mixer, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("mixer needs at least one input")
	}
	total := 0
	for i, in := range inputs {
		if in.Channels <= 0 {
			return nil, fmt.Errorf("input %d has no channels", i)
		}
		if in.Blocks == nil {
			return nil, fmt.Errorf("input %d has no block channel", i)
		}
		total += in.Channels
	}
	return &Mixer{inputs: inputs, policy: policy, channels: total}, nil
}

// Channels returns the combined channel count.
func (m *Mixer) Channels() int {
	return m.channels
}

// Run pumps the inputs until done closes or the inputs end, writing
// combined interleaved blocks to out. With PadToLongest an exhausted input
// contributes silence until every input has ended; with TruncateToShortest
// the run ends at the first exhausted input. out is closed on return.
func (m *Mixer) Run(done <-chan struct{}, out chan<- []float32) {
	defer close(out)

	ended := make([]bool, len(m.inputs))

	for {
		blocks := make([][]float32, len(m.inputs))
		open := 0

		for i, in := range m.inputs {
			if ended[i] {
				continue
			}
			select {
			case block, ok := <-in.Blocks:
				if !ok {
					ended[i] = true
					if m.policy == TruncateToShortest {
						return
					}
					continue
				}
				blocks[i] = block
				open++
			case <-done:
				return
			}
		}

		if open == 0 {
			return
		}

		combined := m.combineRound(blocks)

		select {
		case out <- combined:
		case <-done:
			return
		}
	}
}

// combineRound builds one union block from this round's input blocks. A
// nil block (ended or lagging input) contributes zeros.
func (m *Mixer) combineRound(blocks [][]float32) []float32 {
	frames := 0
	for i, in := range m.inputs {
		if blocks[i] == nil {
			continue
		}
		if f := len(blocks[i]) / in.Channels; f > frames {
			frames = f
		}
	}

	combined := make([]float32, frames*m.channels)

	offset := 0
	for i, in := range m.inputs {
		scaled := blocks[i]
		if scaled != nil {
			scaled = ApplyGain(scaled, in.Gain)
		}
		for f := 0; f < frames; f++ {
			for c := 0; c < in.Channels; c++ {
				idx := f*in.Channels + c
				var sample float32
				if scaled != nil && idx < len(scaled) {
					sample = scaled[idx]
				}
				combined[f*m.channels+offset+c] = sample
			}
		}
		offset += in.Channels
	}

	return combined
}
