package graph

import (
	"fmt"

	"pipelined.dev/graph/internal/engine"
	"pipelined.dev/graph/message"
	"pipelined.dev/graph/processor"
)

type (
	// Node is a reference to a vertex of the builder. Copying a node never
	// duplicates the vertex. Zero value is an invalid node.
	Node struct {
		b  *Builder
		id int
	}

	// Input is a reference to an input port of the node.
	Input struct {
		node  Node
		index int
		name  string
	}

	// Output is a reference to an output port of the node.
	Output struct {
		node  Node
		index int
		name  string
	}

	// Operand of the node algebra. It's implemented only by Node, *Param
	// and Lit.
	Operand interface {
		operand()
	}

	// Lit is a numeric literal operand. It's wrapped into a new constant
	// node.
	Lit float64
)

func (Node) operand() {}
func (Lit) operand()  {}

// ID returns the index of the vertex in the builder.
func (n Node) ID() int {
	return n.id
}

// Builder returns the builder of the node.
func (n Node) Builder() *Builder {
	return n.b
}

func (n Node) valid() bool {
	return n.b != nil && n.id >= 0 && n.id < len(n.b.vertices)
}

func (n Node) spec() processor.Spec {
	return n.b.vertices[n.id].spec
}

// Kind returns the kind of the node.
func (n Node) Kind() string {
	if !n.valid() {
		return ""
	}
	return n.spec().Kind
}

// NumInputs returns the number of inputs of the node.
func (n Node) NumInputs() int {
	if !n.valid() {
		return 0
	}
	return len(n.spec().Inputs)
}

// NumOutputs returns the number of outputs of the node.
func (n Node) NumOutputs() int {
	if !n.valid() {
		return 0
	}
	return len(n.spec().Outputs)
}

func (n Node) String() string {
	if !n.valid() {
		return "invalid node"
	}
	return fmt.Sprintf("%s#%d", n.Kind(), n.id)
}

// Input returns the input with provided index. The index is checked when
// the input is used.
func (n Node) Input(i int) Input {
	return Input{node: n, index: i}
}

// InputNamed returns the input with provided name. The name is checked
// when the input is used.
func (n Node) InputNamed(name string) Input {
	return Input{node: n, index: -1, name: name}
}

// Output returns the output with provided index.
func (n Node) Output(i int) Output {
	return Output{node: n, index: i}
}

// OutputNamed returns the output with provided name.
func (n Node) OutputNamed(name string) Output {
	return Output{node: n, index: -1, name: name}
}

// Node returns the node of the input.
func (in Input) Node() Node {
	return in.node
}

func (in Input) String() string {
	if in.name != "" {
		return fmt.Sprintf("%v.%s", in.node, in.name)
	}
	return fmt.Sprintf("%v.in[%d]", in.node, in.index)
}

// resolve returns the index of the input.
func (in Input) resolve() (int, error) {
	if !in.node.valid() {
		return 0, fmt.Errorf("%w: %v", ErrDanglingNode, in.node)
	}
	spec := in.node.spec()
	if in.name != "" {
		idx, ok := spec.InputIndex(in.name)
		if !ok {
			return 0, fmt.Errorf("%w: %s has no input %q", ErrUnknownPort, spec.Kind, in.name)
		}
		return idx, nil
	}
	if in.index < 0 || in.index >= len(spec.Inputs) {
		return 0, fmt.Errorf("%w: %s has %d inputs, got %d", ErrPortRange, spec.Kind, len(spec.Inputs), in.index)
	}
	return in.index, nil
}

// Connect connects the output to the input. It's equivalent to
// out.Connect(in).
func (in Input) Connect(out Output) error {
	return connect(out, in)
}

// Set provides a constant value for the unconnected input. The value
// replaces previous constant.
func (in Input) Set(v interface{}) error {
	b := in.node.b
	if b == nil {
		return fmt.Errorf("%w: %v", ErrDanglingNode, in.node)
	}
	idx, err := in.resolve()
	if err != nil {
		return b.fail(err)
	}
	if _, ok := b.driven[port{in.node.id, idx}]; ok {
		return b.fail(fmt.Errorf("%w: cannot set %v", ErrInputConnected, in))
	}
	m, err := message.Coerce(v)
	if err != nil {
		return b.fail(fmt.Errorf("set %v: %w", in, err))
	}
	if err := checkMessage(in.node.spec().Inputs[idx], m); err != nil {
		return b.fail(fmt.Errorf("set %v: %w", in, err))
	}
	vx := &b.vertices[in.node.id]
	if vx.constants == nil {
		vx.constants = make(map[int]message.Message)
	}
	vx.constants[idx] = m
	return nil
}

// Param creates a param initialized with the current value of the input
// and connects it to the input.
func (in Input) Param(name string) (*Param, error) {
	b := in.node.b
	if b == nil {
		return nil, fmt.Errorf("%w: %v", ErrDanglingNode, in.node)
	}
	idx, err := in.resolve()
	if err != nil {
		return nil, b.fail(err)
	}
	if _, ok := b.driven[port{in.node.id, idx}]; ok {
		return nil, b.fail(fmt.Errorf("%w: cannot create param %q for %v", ErrInputConnected, name, in))
	}
	var initial interface{}
	if m, ok := b.vertices[in.node.id].constants[idx]; ok {
		initial = m
	} else if def := in.node.spec().Inputs[idx].Default; !def.IsNone() {
		initial = def
	}
	p, err := NewParam(name, initial)
	if err != nil {
		return nil, b.fail(err)
	}
	n, err := b.bind(p)
	if err != nil {
		return nil, b.fail(err)
	}
	if err := n.Output(0).Connect(in); err != nil {
		return nil, err
	}
	return p, nil
}

// Node returns the node of the output.
func (out Output) Node() Node {
	return out.node
}

func (out Output) String() string {
	if out.name != "" {
		return fmt.Sprintf("%v.%s", out.node, out.name)
	}
	return fmt.Sprintf("%v.out[%d]", out.node, out.index)
}

// resolve returns the index of the output.
func (out Output) resolve() (int, error) {
	if !out.node.valid() {
		return 0, fmt.Errorf("%w: %v", ErrDanglingNode, out.node)
	}
	spec := out.node.spec()
	if out.name != "" {
		idx, ok := spec.OutputIndex(out.name)
		if !ok {
			return 0, fmt.Errorf("%w: %s has no output %q", ErrUnknownPort, spec.Kind, out.name)
		}
		return idx, nil
	}
	if out.index < 0 || out.index >= len(spec.Outputs) {
		return 0, fmt.Errorf("%w: %s has %d outputs, got %d", ErrPortRange, spec.Kind, len(spec.Outputs), out.index)
	}
	return out.index, nil
}

// Connect connects the output to the input. It's equivalent to
// in.Connect(out).
func (out Output) Connect(in Input) error {
	return connect(out, in)
}

// connect is the single path for both connection directions. Inputs can
// be driven by a single edge only, connecting a driven input is rejected.
func connect(out Output, in Input) error {
	b := in.node.b
	if b == nil {
		b = out.node.b
	}
	if b == nil {
		return fmt.Errorf("%w: connect %v to %v", ErrDanglingNode, out, in)
	}
	if out.node.b != in.node.b {
		return b.fail(fmt.Errorf("%w: connect %v to %v of another builder", ErrDanglingNode, out, in))
	}
	srcOut, err := out.resolve()
	if err != nil {
		return b.fail(err)
	}
	dstIn, err := in.resolve()
	if err != nil {
		return b.fail(err)
	}
	key := port{in.node.id, dstIn}
	if _, ok := b.driven[key]; ok {
		return b.fail(fmt.Errorf("%w: connect %v to %v", ErrInputConnected, out, in))
	}
	b.driven[key] = struct{}{}
	b.edges = append(b.edges, engine.Edge{
		Src:    out.node.id,
		SrcOut: srcOut,
		Dst:    in.node.id,
		DstIn:  dstIn,
	})
	b.log.Debug(fmt.Sprintf("connected %v to %v", out, in))
	return nil
}

// Add creates addition node.
func (n Node) Add(o Operand) Node { return n.binary(processor.Add, o) }

// Sub creates subtraction node.
func (n Node) Sub(o Operand) Node { return n.binary(processor.Sub, o) }

// Mul creates multiplication node.
func (n Node) Mul(o Operand) Node { return n.binary(processor.Mul, o) }

// Div creates division node.
func (n Node) Div(o Operand) Node { return n.binary(processor.Div, o) }

// Rem creates floored remainder node.
func (n Node) Rem(o Operand) Node { return n.binary(processor.Rem, o) }

// Pow creates exponentiation node.
func (n Node) Pow(o Operand) Node { return n.binary(processor.Pow, o) }

// Atan2 creates a node that computes atan2(n, o).
func (n Node) Atan2(o Operand) Node { return n.binary(processor.Atan2, o) }

// Neg creates negation node.
func (n Node) Neg() Node { return n.unary(processor.Neg) }

// Sin creates sine node.
func (n Node) Sin() Node { return n.unary(processor.Sin) }

// Cos creates cosine node.
func (n Node) Cos() Node { return n.unary(processor.Cos) }

// Tan creates tangent node.
func (n Node) Tan() Node { return n.unary(processor.Tan) }

// Asin creates arcsine node.
func (n Node) Asin() Node { return n.unary(processor.Asin) }

// Acos creates arccosine node.
func (n Node) Acos() Node { return n.unary(processor.Acos) }

// Atan creates arctangent node.
func (n Node) Atan() Node { return n.unary(processor.Atan) }

// Recip creates reciprocal node.
func (n Node) Recip() Node { return n.unary(processor.Recip) }

// Floor creates floor node.
func (n Node) Floor() Node { return n.unary(processor.Floor) }

// Ceil creates ceil node.
func (n Node) Ceil() Node { return n.unary(processor.Ceil) }

// Round creates round node.
func (n Node) Round() Node { return n.unary(processor.Round) }

// MidiToFreq creates a node that converts midi note to frequency.
func (n Node) MidiToFreq() Node { return n.unary(processor.MidiToFreq) }

// FreqToMidi creates a node that converts frequency to midi note.
func (n Node) FreqToMidi() Node { return n.unary(processor.FreqToMidi) }

// Smooth creates one-pole smoothing node. Use TimeConstant option to
// configure it.
func (n Node) Smooth(opts ...Option) Node {
	return n.apply("smooth", processor.Smooth{}, opts)
}

func (n Node) binary(op processor.BinaryOp, o Operand) Node {
	if n.b == nil {
		return Node{}
	}
	b := n.b
	right, err := b.resolve(string(op), o)
	v := n.apply(string(op), processor.Binary{Op: op}, nil)
	if err != nil {
		b.fail(err)
		return v
	}
	right.Output(0).Connect(v.Input(1))
	return v
}

func (n Node) unary(op processor.UnaryOp) Node {
	return n.apply(string(op), processor.Unary{Op: op}, nil)
}

// apply creates a new vertex and wires the node into its first input.
func (n Node) apply(name string, a processor.Allocator, opts []Option) Node {
	if n.b == nil {
		return Node{}
	}
	b := n.b
	v := b.AddNode(a, opts...)
	if !n.valid() {
		b.fail(fmt.Errorf("%s: %w: %v", name, ErrOperand, n))
		return v
	}
	n.Output(0).Connect(v.Input(0))
	return v
}

// resolve returns node of the operand.
func (b *Builder) resolve(op string, o Operand) (Node, error) {
	switch o := o.(type) {
	case Node:
		if o.b != b {
			return Node{}, fmt.Errorf("%s: %w: %w: operand from another builder", op, ErrOperand, ErrDanglingNode)
		}
		if !o.valid() {
			return Node{}, fmt.Errorf("%s: %w: %v", op, ErrOperand, o)
		}
		return o, nil
	case Lit:
		return b.Constant(float64(o)), nil
	case *Param:
		if o == nil {
			return Node{}, fmt.Errorf("%s: %w: nil param", op, ErrOperand)
		}
		return b.bind(o)
	}
	return Node{}, fmt.Errorf("%s: %w: %T", op, ErrOperand, o)
}
