package processor

import (
	"pipelined.dev/graph/message"
)

// Default values of node inputs.
const (
	DefaultFrequency    = 440.0
	DefaultPulseWidth   = 0.5
	DefaultPeriod       = 1.0
	DefaultCutoff       = 1000.0
	DefaultQ            = 0.1
	DefaultResonance    = 0.1
	DefaultGain         = 0.0
	DefaultThreshold    = 1.0
	DefaultAttack       = 0.01
	DefaultRelease      = 0.1
	DefaultTimeConstant = 0.01
)

type (
	// GraphInput is an audio-rate input of the graph. Its output is
	// filled by the runtime.
	GraphInput struct{}

	// GraphOutput is an audio-rate output of the graph. Its input is
	// consumed by the runtime.
	GraphOutput struct{}

	// Constant emits the same value on every sample.
	Constant struct {
		Value message.Message
	}

	// SampleRate emits the sample rate of the runtime.
	SampleRate struct{}

	// Param emits values published to the parameter source. The latest
	// value is taken once per step and emitted on the first sample.
	Param struct {
		Name   string
		Source Source
	}

	// Source provides values of a parameter. Both methods must be
	// wait-free.
	Source interface {
		Take() (message.Message, bool)
		Peek() (message.Message, bool)
	}
)

// Spec implements Allocator.
func (GraphInput) Spec() Spec {
	return Spec{Kind: "input", Outputs: single}
}

// Allocate implements Allocator.
func (GraphInput) Allocate(Context) (Processor, error) {
	return Processor{ProcessFunc: nop}, nil
}

// Spec implements Allocator.
func (GraphOutput) Spec() Spec {
	return Spec{Kind: "output", Inputs: []Port{numeric("in", 0)}}
}

// Allocate implements Allocator.
func (GraphOutput) Allocate(Context) (Processor, error) {
	return Processor{ProcessFunc: nop}, nil
}

func nop(int, Inputs, Outputs) error {
	return nil
}

// Spec implements Allocator.
func (Constant) Spec() Spec {
	return Spec{Kind: "constant", Outputs: single}
}

// Allocate implements Allocator.
func (c Constant) Allocate(Context) (Processor, error) {
	return Processor{
		ProcessFunc: func(n int, _ Inputs, out Outputs) error {
			fill(out[0], n, c.Value)
			return nil
		},
	}, nil
}

// Spec implements Allocator.
func (SampleRate) Spec() Spec {
	return Spec{Kind: "sample_rate", Outputs: single}
}

// Allocate implements Allocator.
func (SampleRate) Allocate(ctx Context) (Processor, error) {
	sr := message.NewFloat(ctx.SampleRate)
	return Processor{
		ProcessFunc: func(n int, _ Inputs, out Outputs) error {
			fill(out[0], n, sr)
			return nil
		},
	}, nil
}

// Spec implements Allocator.
func (Param) Spec() Spec {
	return Spec{Kind: "param", Outputs: single}
}

// Allocate implements Allocator. The first step emits the latest value of
// the source even if it was consumed before, so the processor starts with
// the current value after a graph swap.
func (p Param) Allocate(Context) (Processor, error) {
	started := false
	return Processor{
		ProcessFunc: func(n int, _ Inputs, out Outputs) error {
			fill(out[0], n, message.Message{})
			if p.Source == nil {
				return nil
			}
			m, ok := p.Source.Take()
			if !ok && !started {
				m, ok = p.Source.Peek()
			}
			started = true
			if ok && n > 0 {
				out[0][0] = m
			}
			return nil
		},
	}, nil
}
