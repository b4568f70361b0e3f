package graph

import (
	"fmt"
	"strings"

	"github.com/rs/xid"

	"pipelined.dev/graph/internal/engine"
	"pipelined.dev/graph/log"
	"pipelined.dev/graph/message"
	"pipelined.dev/graph/processor"
	"pipelined.dev/graph/sndfile"
)

type (
	// Builder accumulates vertices, edges and params of the graph. Errors
	// of factory calls are accumulated and reported by Build, so all
	// construction mistakes are diagnosed at once. Builder is not safe for
	// concurrent use.
	Builder struct {
		id       string
		log      log.Logger
		vertices []vertex
		edges    []engine.Edge
		driven   map[port]struct{}
		inputs   []int
		outputs  []int
		params   map[string]*Param
		bound    map[*Param]int
		errs     errs
	}

	vertex struct {
		alloc     processor.Allocator
		spec      processor.Spec
		constants map[int]message.Message
		param     *Param
	}

	port struct {
		vertex, index int
	}
)

// NewBuilder returns an empty builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := Builder{
		id:     xid.New().String(),
		log:    log.Silent(),
		driven: make(map[port]struct{}),
		params: make(map[string]*Param),
		bound:  make(map[*Param]int),
	}
	for _, opt := range opts {
		opt(&b)
	}
	b.log = log.With(b.log, map[string]interface{}{"builder": b.id})
	return &b
}

// fail records the error and returns it.
func (b *Builder) fail(err error) error {
	b.errs = append(b.errs, err)
	b.log.Debug(err.Error())
	return err
}

// Err returns errors accumulated so far or nil.
func (b *Builder) Err() error {
	return b.errs.ret()
}

// AddNode adds a vertex of provided kind. Options set constants of its
// inputs by name.
func (b *Builder) AddNode(a processor.Allocator, opts ...Option) Node {
	spec := a.Spec()
	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	constants, err := s.constants(spec)
	if err != nil {
		b.fail(err)
	}
	b.vertices = append(b.vertices, vertex{
		alloc:     a,
		spec:      spec,
		constants: constants,
	})
	return Node{b: b, id: len(b.vertices) - 1}
}

// AddInput adds an audio-rate input of the graph.
func (b *Builder) AddInput() Node {
	n := b.AddNode(processor.GraphInput{})
	b.inputs = append(b.inputs, n.id)
	return n
}

// AddOutput adds an audio-rate output of the graph.
func (b *Builder) AddOutput() Node {
	n := b.AddNode(processor.GraphOutput{})
	b.outputs = append(b.outputs, n.id)
	return n
}

// SineOsc adds a sine oscillator.
func (b *Builder) SineOsc(opts ...Option) Node {
	return b.AddNode(processor.SineOsc{}, opts...)
}

// SawOsc adds a naive sawtooth oscillator.
func (b *Builder) SawOsc(opts ...Option) Node {
	return b.AddNode(processor.SawOsc{}, opts...)
}

// BlSawOsc adds a band-limited sawtooth oscillator.
func (b *Builder) BlSawOsc(opts ...Option) Node {
	return b.AddNode(processor.BlSawOsc{}, opts...)
}

// BlSquareOsc adds a band-limited square oscillator.
func (b *Builder) BlSquareOsc(opts ...Option) Node {
	return b.AddNode(processor.BlSquareOsc{}, opts...)
}

// PhaseAccum adds a phase accumulator. Its increment input is added to
// the output on every sample.
func (b *Builder) PhaseAccum() Node {
	return b.AddNode(processor.PhaseAccum{})
}

// NoiseOsc adds a white noise oscillator.
func (b *Builder) NoiseOsc() Node {
	return b.AddNode(processor.NoiseOsc{})
}

// SampleRate adds a node that emits the sample rate of the runtime.
func (b *Builder) SampleRate() Node {
	return b.AddNode(processor.SampleRate{})
}

// Constant adds a node that emits the value on every sample.
func (b *Builder) Constant(v interface{}) Node {
	m, err := b.coerce("constant", v)
	if err == nil {
		if f, ok := m.Number(); ok {
			err = checkValue(processor.Port{Name: "value"}, f)
		}
	}
	n := b.AddNode(processor.Constant{Value: m})
	if err != nil {
		b.fail(fmt.Errorf("constant: %w", err))
	}
	return n
}

// Message adds a node that emits the value on every message of its
// trigger input.
func (b *Builder) Message(v interface{}) Node {
	m, err := b.coerce("message", v)
	n := b.AddNode(processor.Message{Value: m})
	if err != nil {
		b.fail(err)
	}
	return n
}

// ConstantMessage adds a node that holds the value as a message on every
// sample.
func (b *Builder) ConstantMessage(v interface{}) Node {
	m, err := b.coerce("constant_message", v)
	n := b.AddNode(processor.ConstantMessage{Value: m})
	if err != nil {
		b.fail(err)
	}
	return n
}

func (b *Builder) coerce(kind string, v interface{}) (message.Message, error) {
	m, err := message.Coerce(v)
	if err != nil {
		return message.Message{}, fmt.Errorf("%s: %w", kind, err)
	}
	return m, nil
}

// Register adds a one-sample delay. It's the only way to create a
// feedback loop.
func (b *Builder) Register() Node {
	return b.AddNode(processor.Register{})
}

// Metro adds a periodic trigger.
func (b *Builder) Metro(opts ...Option) Node {
	return b.AddNode(processor.Metro{}, opts...)
}

// Select adds a node that routes its input to one of n outputs.
func (b *Builder) Select(n int) Node {
	if n < 1 {
		b.fail(fmt.Errorf("select: %w: need at least one output, got %d", ErrInvalidArgument, n))
	}
	return b.AddNode(processor.Select{N: n})
}

// Merge adds a node that merges n inputs into one output.
func (b *Builder) Merge(n int) Node {
	if n < 1 {
		b.fail(fmt.Errorf("merge: %w: need at least one input, got %d", ErrInvalidArgument, n))
	}
	return b.AddNode(processor.Merge{N: n})
}

// Counter adds a trigger counter.
func (b *Builder) Counter() Node {
	return b.AddNode(processor.Counter{})
}

// SampleAndHold adds a sample and hold node.
func (b *Builder) SampleAndHold() Node {
	return b.AddNode(processor.SampleAndHold{})
}

// ChangeDetector adds a node that emits bang when its input changes more
// than the threshold.
func (b *Builder) ChangeDetector(opts ...Option) Node {
	return b.AddNode(processor.ChangeDetector{}, opts...)
}

// CheckFinite adds a pass-through node that reports non-finite values
// tagged with the context.
func (b *Builder) CheckFinite(context string) Node {
	return b.AddNode(processor.CheckFinite{Context: context})
}

// MoogLadder adds a moog ladder lowpass filter.
func (b *Builder) MoogLadder(opts ...Option) Node {
	return b.AddNode(processor.MoogLadder{}, opts...)
}

// BiquadLowpass adds a biquad lowpass filter.
func (b *Builder) BiquadLowpass(opts ...Option) Node {
	return b.AddNode(processor.Biquad{Type: processor.Lowpass}, opts...)
}

// BiquadHighpass adds a biquad highpass filter.
func (b *Builder) BiquadHighpass(opts ...Option) Node {
	return b.AddNode(processor.Biquad{Type: processor.Highpass}, opts...)
}

// BiquadBandpass adds a biquad bandpass filter.
func (b *Builder) BiquadBandpass(opts ...Option) Node {
	return b.AddNode(processor.Biquad{Type: processor.Bandpass}, opts...)
}

// BiquadNotch adds a biquad notch filter.
func (b *Builder) BiquadNotch(opts ...Option) Node {
	return b.AddNode(processor.Biquad{Type: processor.Notch}, opts...)
}

// BiquadPeak adds a biquad peaking filter.
func (b *Builder) BiquadPeak(opts ...Option) Node {
	return b.AddNode(processor.Biquad{Type: processor.Peak}, opts...)
}

// BiquadLowShelf adds a biquad low shelf filter.
func (b *Builder) BiquadLowShelf(opts ...Option) Node {
	return b.AddNode(processor.Biquad{Type: processor.LowShelf}, opts...)
}

// BiquadHighShelf adds a biquad high shelf filter.
func (b *Builder) BiquadHighShelf(opts ...Option) Node {
	return b.AddNode(processor.Biquad{Type: processor.HighShelf}, opts...)
}

// PeakLimiter adds a peak limiter.
func (b *Builder) PeakLimiter(opts ...Option) Node {
	return b.AddNode(processor.PeakLimiter{}, opts...)
}

// LoadBuffer loads the audio file and adds a node that plays it back on
// trigger. The node has an output per channel of the file.
func (b *Builder) LoadBuffer(path string) Node {
	buf, err := sndfile.Load(path)
	if err != nil {
		n := b.AddNode(processor.Buffer{})
		b.fail(fmt.Errorf("%w %s: %w", ErrLoadBuffer, path, err))
		return n
	}
	b.log.Debug(fmt.Sprintf("loaded %s: %d channels %d frames", path, len(buf.Channels), buf.Len()))
	return b.AddNode(processor.Buffer{
		SampleRate: float64(buf.SampleRate),
		Channels:   buf.Channels,
	})
}

// Param binds the param to the builder and returns its node. Binding the
// same param twice returns the same node. Params without name are named
// automatically.
func (b *Builder) Param(p *Param) Node {
	n, err := b.bind(p)
	if err != nil {
		b.fail(err)
	}
	return n
}

// AddParam creates a param and binds it to the builder.
func (b *Builder) AddParam(name string, initial interface{}) (*Param, Node) {
	p, err := NewParam(name, initial)
	if err != nil {
		b.fail(err)
		p = &Param{name: name}
	}
	return p, b.Param(p)
}

func (b *Builder) bind(p *Param) (Node, error) {
	if p == nil {
		return Node{}, fmt.Errorf("param: %w: nil param", ErrOperand)
	}
	if id, ok := b.bound[p]; ok {
		return Node{b: b, id: id}, nil
	}
	if p.name == "" {
		p.name = fmt.Sprintf("param%d", len(b.params))
	}
	if _, ok := b.params[p.name]; ok {
		return Node{}, fmt.Errorf("%w: %q", ErrDuplicateParam, p.name)
	}
	n := b.AddNode(processor.Param{Name: p.name, Source: &p.cell})
	b.vertices[n.id].param = p
	b.params[p.name] = p
	b.bound[p] = n.id
	return n, nil
}

// Connect adds an edge from the output of src node to the input of dst
// node.
func (b *Builder) Connect(src Node, srcOut int, dst Node, dstIn int) error {
	if src.b != b || dst.b != b {
		return b.fail(fmt.Errorf("%w: connect %v to %v", ErrDanglingNode, src, dst))
	}
	return connect(src.Output(srcOut), dst.Input(dstIn))
}

// Build validates the builder and returns a frozen graph. All violations
// are enumerated in *GraphError.
func (b *Builder) Build() (*Graph, error) {
	violations := append(errs(nil), b.errs...)
	for _, e := range b.edges {
		if e.Src >= len(b.vertices) || e.Dst >= len(b.vertices) {
			violations = append(violations, fmt.Errorf("%w: edge %v", ErrDanglingNode, e))
		}
	}
	violations = append(violations, b.cycles()...)
	if err := violations.ret(); err != nil {
		return nil, err
	}

	g := Graph{
		id:       xid.New().String(),
		vertices: make([]vertex, len(b.vertices)),
		edges:    append([]engine.Edge(nil), b.edges...),
		inputs:   append([]int(nil), b.inputs...),
		outputs:  append([]int(nil), b.outputs...),
		params:   make(map[string]*Param, len(b.params)),
	}
	for i, v := range b.vertices {
		if v.constants != nil {
			constants := make(map[int]message.Message, len(v.constants))
			for k, c := range v.constants {
				constants[k] = c
			}
			v.constants = constants
		}
		g.vertices[i] = v
	}
	for name, p := range b.params {
		g.params[name] = p
	}
	b.log.Debug(fmt.Sprintf("built graph %s: %d vertices %d edges", g.id, len(g.vertices), len(g.edges)))
	return &g, nil
}

// BuildRuntime builds the graph and creates a runtime for it.
func (b *Builder) BuildRuntime(opts ...RuntimeOption) (*Runtime, error) {
	g, err := b.Build()
	if err != nil {
		return nil, err
	}
	return NewRuntime(g, opts...), nil
}

// cycles returns an error for every cycle that doesn't pass through a
// delay vertex.
func (b *Builder) cycles() []error {
	next := make([][]int, len(b.vertices))
	for _, e := range b.edges {
		if e.Src >= len(b.vertices) || e.Dst >= len(b.vertices) {
			continue
		}
		// edges into delay vertices don't create dependencies within a
		// sample
		if b.vertices[e.Dst].spec.Delay {
			continue
		}
		next[e.Src] = append(next[e.Src], e.Dst)
	}

	// permanent: vertices that have been fully visited.
	// temporary: vertices in the recursion stack of the current traversal.
	var (
		found     []error
		permanent = make([]bool, len(b.vertices))
		temporary = make([]bool, len(b.vertices))
		stack     []int
		visit     func(v int)
	)
	visit = func(v int) {
		temporary[v] = true
		stack = append(stack, v)
		for _, w := range next[v] {
			if temporary[w] {
				found = append(found, fmt.Errorf("%w: %s", ErrCycle, b.path(stack, w)))
				continue
			}
			if !permanent[w] {
				visit(w)
			}
		}
		stack = stack[:len(stack)-1]
		temporary[v] = false
		permanent[v] = true
	}
	for v := range b.vertices {
		if !permanent[v] {
			visit(v)
		}
	}
	return found
}

// path formats the cycle that starts at vertex w.
func (b *Builder) path(stack []int, w int) string {
	var s []string
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == w {
			for _, v := range stack[i:] {
				s = append(s, Node{b: b, id: v}.String())
			}
			break
		}
	}
	s = append(s, Node{b: b, id: w}.String())
	return strings.Join(s, " -> ")
}
