package processor

import (
	"errors"
	"fmt"
	"math"

	"pipelined.dev/graph/message"
)

// ErrNonFinite is reported by CheckFinite when a non-finite value passes
// through it.
var ErrNonFinite = errors.New("non-finite value")

type (
	// Message emits its value every time the trigger input receives any
	// message.
	Message struct {
		Value message.Message
	}

	// ConstantMessage emits its value on every sample.
	ConstantMessage struct {
		Value message.Message
	}

	// Register delays its input by one sample.
	Register struct{}

	// Metro emits Bang periodically, starting on the first sample. The
	// period input is in seconds.
	Metro struct{}

	// Select routes messages of the in input to the output chosen by the
	// index input.
	Select struct {
		N int
	}

	// Merge emits the first message present among its inputs.
	Merge struct {
		N int
	}

	// Counter counts triggers and emits the count as Int.
	Counter struct{}

	// SampleAndHold captures the input when triggered and emits the
	// captured value on every sample.
	SampleAndHold struct{}

	// ChangeDetector emits Bang when the input changes by more than
	// threshold.
	ChangeDetector struct{}

	// CheckFinite passes its input through and reports non-finite values
	// tagged with the context.
	CheckFinite struct {
		Context string
	}
)

var inOnly = []Port{numeric("in", 0)}

// Spec implements Allocator.
func (Message) Spec() Spec {
	return Spec{Kind: "message", Inputs: []Port{event("trigger")}, Outputs: single}
}

// Allocate implements Allocator.
func (m Message) Allocate(Context) (Processor, error) {
	return Processor{
		ProcessFunc: func(n int, in Inputs, out Outputs) error {
			for i := 0; i < n; i++ {
				if in[0].Event(i) {
					out[0][i] = m.Value
				} else {
					out[0][i] = message.Message{}
				}
			}
			return nil
		},
	}, nil
}

// Spec implements Allocator.
func (ConstantMessage) Spec() Spec {
	return Spec{Kind: "constant_message", Outputs: single}
}

// Allocate implements Allocator.
func (m ConstantMessage) Allocate(Context) (Processor, error) {
	return Processor{
		ProcessFunc: func(n int, _ Inputs, out Outputs) error {
			fill(out[0], n, m.Value)
			return nil
		},
	}, nil
}

// Spec implements Allocator.
func (Register) Spec() Spec {
	return Spec{Kind: "register", Inputs: inOnly, Outputs: single, Delay: true}
}

// Allocate implements Allocator.
func (Register) Allocate(Context) (Processor, error) {
	var state message.Message
	return Processor{
		ProcessFunc: func(n int, _ Inputs, out Outputs) error {
			fill(out[0], n, state)
			return nil
		},
		LatchFunc: func(n int, in Inputs) {
			if n > 0 {
				state = in[0].Message(n - 1)
			}
		},
	}, nil
}

// Spec implements Allocator.
func (Metro) Spec() Spec {
	return Spec{
		Kind:    "metro",
		Inputs:  []Port{positive("period", DefaultPeriod), event("reset")},
		Outputs: single,
	}
}

// Allocate implements Allocator.
func (Metro) Allocate(ctx Context) (Processor, error) {
	var remaining float64
	bang := message.NewBang()
	sr := ctx.SampleRate
	return Processor{
		ProcessFunc: func(n int, in Inputs, out Outputs) error {
			for i := 0; i < n; i++ {
				period := in[0].Float(i) * sr
				if in[1].Event(i) {
					remaining = 0
				}
				if remaining <= 0 {
					out[0][i] = bang
					if period < 1 {
						period = 1
					}
					remaining += period
				} else {
					out[0][i] = message.Message{}
				}
				remaining--
			}
			return nil
		},
	}, nil
}

// Spec implements Allocator.
func (s Select) Spec() Spec {
	return Spec{
		Kind:    "select",
		Inputs:  []Port{event("in"), numeric("index", 0)},
		Outputs: indexed("out", s.N),
	}
}

// Allocate implements Allocator.
func (s Select) Allocate(Context) (Processor, error) {
	if s.N < 1 {
		return Processor{}, fmt.Errorf("select needs at least one output, got %d", s.N)
	}
	return Processor{
		ProcessFunc: func(n int, in Inputs, out Outputs) error {
			for i := range out {
				fill(out[i], n, message.Message{})
			}
			for i := 0; i < n; i++ {
				idx := int(in[1].Float(i))
				if in[0].Event(i) && idx >= 0 && idx < len(out) {
					out[idx][i] = in[0].Message(i)
				}
			}
			return nil
		},
	}, nil
}

// Spec implements Allocator.
func (m Merge) Spec() Spec {
	ports := make([]Port, m.N)
	for i, name := range indexed("in", m.N) {
		ports[i] = event(name)
	}
	return Spec{Kind: "merge", Inputs: ports, Outputs: single}
}

// Allocate implements Allocator.
func (m Merge) Allocate(Context) (Processor, error) {
	if m.N < 1 {
		return Processor{}, fmt.Errorf("merge needs at least one input, got %d", m.N)
	}
	return Processor{
		ProcessFunc: func(n int, in Inputs, out Outputs) error {
			for i := 0; i < n; i++ {
				out[0][i] = message.Message{}
				for j := range in {
					if in[j].Event(i) {
						out[0][i] = in[j].Message(i)
						break
					}
				}
			}
			return nil
		},
	}, nil
}

// Spec implements Allocator.
func (Counter) Spec() Spec {
	return Spec{
		Kind:    "counter",
		Inputs:  []Port{event("trigger"), event("reset")},
		Outputs: single,
	}
}

// Allocate implements Allocator.
func (Counter) Allocate(Context) (Processor, error) {
	var count int64
	return Processor{
		ProcessFunc: func(n int, in Inputs, out Outputs) error {
			for i := 0; i < n; i++ {
				if in[1].Event(i) {
					count = 0
				}
				if in[0].Event(i) {
					count++
					out[0][i] = message.NewInt(count)
				} else {
					out[0][i] = message.Message{}
				}
			}
			return nil
		},
	}, nil
}

// Spec implements Allocator.
func (SampleAndHold) Spec() Spec {
	return Spec{
		Kind:    "sample_and_hold",
		Inputs:  []Port{numeric("in", 0), event("trigger")},
		Outputs: single,
	}
}

// Allocate implements Allocator.
func (SampleAndHold) Allocate(Context) (Processor, error) {
	var held float64
	return Processor{
		ProcessFunc: func(n int, in Inputs, out Outputs) error {
			for i := 0; i < n; i++ {
				v := in[0].Float(i)
				if in[1].Event(i) {
					held = v
				}
				out[0][i] = message.NewFloat(held)
			}
			return nil
		},
	}, nil
}

// Spec implements Allocator.
func (ChangeDetector) Spec() Spec {
	return Spec{
		Kind:    "change_detector",
		Inputs:  []Port{numeric("in", 0), numeric("threshold", 0)},
		Outputs: single,
	}
}

// Allocate implements Allocator.
func (ChangeDetector) Allocate(Context) (Processor, error) {
	var (
		prev    float64
		started bool
	)
	bang := message.NewBang()
	return Processor{
		ProcessFunc: func(n int, in Inputs, out Outputs) error {
			for i := 0; i < n; i++ {
				v := in[0].Float(i)
				out[0][i] = message.Message{}
				if started && math.Abs(v-prev) > in[1].Float(i) {
					out[0][i] = bang
				}
				prev, started = v, true
			}
			return nil
		},
	}, nil
}

// Spec implements Allocator.
func (CheckFinite) Spec() Spec {
	return Spec{Kind: "check_finite", Inputs: inOnly, Outputs: single}
}

// Allocate implements Allocator. Only the transition into non-finite
// state is reported.
func (c CheckFinite) Allocate(ctx Context) (Processor, error) {
	var flagged bool
	report := ctx.Report
	err := fmt.Errorf("%w: %s", ErrNonFinite, c.Context)
	return Processor{
		ProcessFunc: func(n int, in Inputs, out Outputs) error {
			for i := 0; i < n; i++ {
				m := in[0].Message(i)
				out[0][i] = m
				v, ok := m.Number()
				if !ok {
					continue
				}
				finite := !math.IsNaN(v) && !math.IsInf(v, 0)
				if !finite && !flagged && report != nil {
					report(err)
				}
				flagged = !finite
			}
			return nil
		},
	}, nil
}
