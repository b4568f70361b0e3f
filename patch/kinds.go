package patch

import (
	"sort"

	"pipelined.dev/graph"
	"pipelined.dev/graph/processor"
)

// factory creates the node of the kind.
type factory func(b *graph.Builder, n Node) graph.Node

// kinds maps node kinds to factories.
var kinds = map[string]factory{
	"input":            func(b *graph.Builder, _ Node) graph.Node { return b.AddInput() },
	"output":           func(b *graph.Builder, _ Node) graph.Node { return b.AddOutput() },
	"constant":         func(b *graph.Builder, n Node) graph.Node { return b.Constant(n.Value.Interface()) },
	"message":          func(b *graph.Builder, n Node) graph.Node { return b.Message(n.Value.Interface()) },
	"constant_message": func(b *graph.Builder, n Node) graph.Node { return b.ConstantMessage(n.Value.Interface()) },
	"select":           func(b *graph.Builder, n Node) graph.Node { return b.Select(n.Size) },
	"merge":            func(b *graph.Builder, n Node) graph.Node { return b.Merge(n.Size) },
	"check_finite":     func(b *graph.Builder, n Node) graph.Node { return b.CheckFinite(n.Context) },
	"buffer":           func(b *graph.Builder, n Node) graph.Node { return b.LoadBuffer(n.Path) },
}

func init() {
	allocators := []processor.Allocator{
		processor.SineOsc{},
		processor.SawOsc{},
		processor.BlSawOsc{},
		processor.BlSquareOsc{},
		processor.PhaseAccum{},
		processor.NoiseOsc{},
		processor.SampleRate{},
		processor.Register{},
		processor.Metro{},
		processor.Counter{},
		processor.SampleAndHold{},
		processor.ChangeDetector{},
		processor.MoogLadder{},
		processor.PeakLimiter{},
		processor.Smooth{},
	}
	for _, t := range []processor.BiquadType{
		processor.Lowpass,
		processor.Highpass,
		processor.Bandpass,
		processor.Notch,
		processor.Peak,
		processor.LowShelf,
		processor.HighShelf,
	} {
		allocators = append(allocators, processor.Biquad{Type: t})
	}
	for _, op := range []processor.BinaryOp{
		processor.Add,
		processor.Sub,
		processor.Mul,
		processor.Div,
		processor.Rem,
		processor.Pow,
		processor.Atan2,
	} {
		allocators = append(allocators, processor.Binary{Op: op})
	}
	for _, op := range []processor.UnaryOp{
		processor.Neg,
		processor.Sin,
		processor.Cos,
		processor.Tan,
		processor.Asin,
		processor.Acos,
		processor.Atan,
		processor.Recip,
		processor.Floor,
		processor.Ceil,
		processor.Round,
		processor.MidiToFreq,
		processor.FreqToMidi,
	} {
		allocators = append(allocators, processor.Unary{Op: op})
	}
	for _, a := range allocators {
		kinds[a.Spec().Kind] = allocate(a)
	}
}

// allocate returns a factory of the generic node configured with options.
func allocate(a processor.Allocator) factory {
	return func(b *graph.Builder, n Node) graph.Node {
		opts := make([]graph.Option, 0, len(n.Options))
		for _, name := range sortedKeys(n.Options) {
			opts = append(opts, graph.Setting(name, n.Options[name]))
		}
		return b.AddNode(a, opts...)
	}
}

// Kinds returns known node kinds in lexicographical order.
func Kinds() []string {
	names := make([]string, 0, len(kinds))
	for k := range kinds {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
