// Package processor defines node kinds that can be placed into a graph.
//
// Every node kind is described by an Allocator: a static configuration
// that declares the ports of the node and allocates a Processor for
// particular execution properties. Allocate is called outside of the audio
// goroutine and is responsible for pre-allocation of all necessary
// structures, so ProcessFunc never allocates.
//
// Processors exchange blocks of messages. Audio-rate outputs emit a numeric
// message on every sample, event outputs emit message.None on samples
// without an event. Numeric readers hold the last seen numeric value, see
// In.Float.
package processor

import (
	"math/rand"
	"strconv"

	"pipelined.dev/graph/message"
)

type (
	// Allocator is the static configuration of a node kind.
	Allocator interface {
		Spec() Spec
		Allocate(ctx Context) (Processor, error)
	}

	// Processor is an allocated instance of a node kind.
	Processor struct {
		ProcessFunc
		// LatchFunc is set only for delay processors. It is called after
		// all processors of the graph were executed for the current step.
		LatchFunc
	}

	// ProcessFunc processes n samples of inputs into outputs.
	ProcessFunc func(n int, in Inputs, out Outputs) error

	// LatchFunc captures n samples of inputs of a delay processor.
	LatchFunc func(n int, in Inputs)

	// Spec declares ports of a node kind.
	Spec struct {
		Kind    string
		Inputs  []Port
		Outputs []string
		// Delay processors produce outputs that don't depend on the inputs
		// of the same sample. Cycles in the graph are allowed only if they
		// pass through a delay processor. Graphs with delay processors
		// are executed one sample at a time.
		Delay bool
	}

	// Port describes a single input.
	Port struct {
		Name string
		// Default is the value of the input when nothing is connected.
		// Event inputs have message.None default.
		Default message.Message
		// Positive inputs reject constants that are not greater than zero.
		Positive bool
	}

	// Context contains execution properties.
	Context struct {
		SampleRate float64
		BlockSize  int
		// Rand is the random source of the graph. It is seeded by the
		// runtime, so stochastic nodes are reproducible.
		Rand *rand.Rand
		// Report delivers asynchronous diagnostics. It must not block.
		Report func(error)
	}

	// Inputs of the processor for the current step.
	Inputs []*In

	// Outputs of the processor for the current step.
	Outputs [][]message.Message

	// In is an input buffer with the hold state of the last numeric value.
	In struct {
		Buffer []message.Message
		held   float64
	}
)

// GetRand returns the random source of the context. If it's not set, a
// source with fixed seed is returned.
func (c Context) GetRand() *rand.Rand {
	if c.Rand == nil {
		return rand.New(rand.NewSource(1))
	}
	return c.Rand
}

// NewIn returns input that holds the default value until the first
// numeric message arrives.
func NewIn(def message.Message) *In {
	v, _ := def.Number()
	return &In{held: v}
}

// Float returns numeric value of the input at sample i. Non-numeric
// messages don't change the held value.
func (in *In) Float(i int) float64 {
	if v, ok := in.Buffer[i].Number(); ok {
		in.held = v
	}
	return in.held
}

// Message returns raw message of the input at sample i.
func (in *In) Message(i int) message.Message {
	return in.Buffer[i]
}

// Event returns true if input carries any message at sample i.
func (in *In) Event(i int) bool {
	return !in.Buffer[i].IsNone()
}

// InputIndex returns the index of the input with provided name.
func (s Spec) InputIndex(name string) (int, bool) {
	for i := range s.Inputs {
		if s.Inputs[i].Name == name {
			return i, true
		}
	}
	return 0, false
}

// OutputIndex returns the index of the output with provided name.
func (s Spec) OutputIndex(name string) (int, bool) {
	for i := range s.Outputs {
		if s.Outputs[i] == name {
			return i, true
		}
	}
	return 0, false
}

func positive(name string, def float64) Port {
	return Port{Name: name, Default: message.NewFloat(def), Positive: true}
}

func numeric(name string, def float64) Port {
	return Port{Name: name, Default: message.NewFloat(def)}
}

func event(name string) Port {
	return Port{Name: name}
}

var single = []string{"out"}

func indexed(prefix string, n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = prefix + strconv.Itoa(i)
	}
	return names
}

func fill(out []message.Message, n int, m message.Message) {
	for i := 0; i < n; i++ {
		out[i] = m
	}
}
