package processor

import (
	"errors"
	"math"

	"pipelined.dev/graph/message"
)

// Buffer plays back loaded audio data. Every trigger restarts playback
// from the beginning. The rate input scales playback speed, 1.0 plays at
// the original pitch regardless of the runtime sample rate. The buffer is
// silent before the first trigger and after the end of data.
type Buffer struct {
	SampleRate float64
	Channels   [][]float64
}

// Spec implements Allocator.
func (b Buffer) Spec() Spec {
	n := len(b.Channels)
	if n == 0 {
		n = 1
	}
	return Spec{
		Kind:    "buffer",
		Inputs:  []Port{event("trigger"), numeric("rate", 1)},
		Outputs: indexed("out", n),
	}
}

// Len returns the number of frames in the buffer.
func (b Buffer) Len() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Allocate implements Allocator.
func (b Buffer) Allocate(ctx Context) (Processor, error) {
	if len(b.Channels) == 0 {
		return Processor{}, errors.New("buffer has no channels")
	}
	if b.SampleRate <= 0 {
		return Processor{}, errors.New("buffer sample rate must be positive")
	}
	var (
		pos     float64
		playing bool
	)
	ratio := b.SampleRate / ctx.SampleRate
	size := b.Len()
	return Processor{
		ProcessFunc: func(n int, in Inputs, out Outputs) error {
			for i := 0; i < n; i++ {
				if in[0].Event(i) {
					pos, playing = 0, true
				}
				rate := in[1].Float(i)
				if playing && (pos < 0 || pos >= float64(size)) {
					playing = false
				}
				if !playing {
					for c := range out {
						out[c][i] = message.NewFloat(0)
					}
					continue
				}
				idx, frac := math.Modf(pos)
				j := int(idx)
				for c := range out {
					data := b.Channels[c]
					v := data[j]
					if j+1 < size {
						v += (data[j+1] - v) * frac
					}
					out[c][i] = message.NewFloat(v)
				}
				pos += rate * ratio
			}
			return nil
		},
	}, nil
}
