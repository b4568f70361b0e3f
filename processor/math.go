package processor

import (
	"fmt"
	"math"

	"pipelined.dev/graph/message"
)

// BinaryOp is an arithmetic operation with two operands.
type BinaryOp string

// Binary operations.
const (
	Add   BinaryOp = "add"
	Sub   BinaryOp = "sub"
	Mul   BinaryOp = "mul"
	Div   BinaryOp = "div"
	Rem   BinaryOp = "rem"
	Pow   BinaryOp = "pow"
	Atan2 BinaryOp = "atan2"
)

// UnaryOp is an arithmetic operation with a single operand.
type UnaryOp string

// Unary operations.
const (
	Neg        UnaryOp = "neg"
	Sin        UnaryOp = "sin"
	Cos        UnaryOp = "cos"
	Tan        UnaryOp = "tan"
	Asin       UnaryOp = "asin"
	Acos       UnaryOp = "acos"
	Atan       UnaryOp = "atan"
	Recip      UnaryOp = "recip"
	Floor      UnaryOp = "floor"
	Ceil       UnaryOp = "ceil"
	Round      UnaryOp = "round"
	MidiToFreq UnaryOp = "midi2freq"
	FreqToMidi UnaryOp = "freq2midi"
)

var (
	binaryFuncs = map[BinaryOp]func(a, b float64) float64{
		Add:   func(a, b float64) float64 { return a + b },
		Sub:   func(a, b float64) float64 { return a - b },
		Mul:   func(a, b float64) float64 { return a * b },
		Div:   func(a, b float64) float64 { return a / b },
		Rem:   rem,
		Pow:   math.Pow,
		Atan2: math.Atan2,
	}

	unaryFuncs = map[UnaryOp]func(float64) float64{
		Neg:   func(v float64) float64 { return -v },
		Sin:   math.Sin,
		Cos:   math.Cos,
		Tan:   math.Tan,
		Asin:  math.Asin,
		Acos:  math.Acos,
		Atan:  math.Atan,
		Recip: func(v float64) float64 { return 1 / v },
		Floor: math.Floor,
		Ceil:  math.Ceil,
		Round: math.Round,
		MidiToFreq: func(v float64) float64 {
			return 440 * math.Pow(2, (v-69)/12)
		},
		FreqToMidi: func(v float64) float64 {
			return 69 + 12*math.Log2(v/440)
		},
	}
)

// rem is a floored modulo, the result has the sign of the divisor.
func rem(a, b float64) float64 {
	r := math.Mod(a, b)
	if r != 0 && (r < 0) != (b < 0) {
		r += b
	}
	return r
}

type (
	// Binary applies the operation to the inputs a and b.
	Binary struct {
		Op BinaryOp
	}

	// Unary applies the operation to the input.
	Unary struct {
		Op UnaryOp
	}

	// Smooth is a one-pole filter that exponentially approaches its
	// input. The time_constant input is in seconds.
	Smooth struct{}
)

var binaryInputs = []Port{numeric("a", 0), numeric("b", 0)}

// Spec implements Allocator.
func (b Binary) Spec() Spec {
	return Spec{Kind: string(b.Op), Inputs: binaryInputs, Outputs: single}
}

// Allocate implements Allocator.
func (b Binary) Allocate(Context) (Processor, error) {
	fn, ok := binaryFuncs[b.Op]
	if !ok {
		return Processor{}, fmt.Errorf("unknown binary operation %q", b.Op)
	}
	return Processor{
		ProcessFunc: func(n int, in Inputs, out Outputs) error {
			for i := 0; i < n; i++ {
				out[0][i] = message.NewFloat(fn(in[0].Float(i), in[1].Float(i)))
			}
			return nil
		},
	}, nil
}

// ValidBinary returns true if operation is known.
func ValidBinary(op BinaryOp) bool {
	_, ok := binaryFuncs[op]
	return ok
}

// ValidUnary returns true if operation is known.
func ValidUnary(op UnaryOp) bool {
	_, ok := unaryFuncs[op]
	return ok
}

// Spec implements Allocator.
func (u Unary) Spec() Spec {
	return Spec{Kind: string(u.Op), Inputs: []Port{numeric("in", 0)}, Outputs: single}
}

// Allocate implements Allocator.
func (u Unary) Allocate(Context) (Processor, error) {
	fn, ok := unaryFuncs[u.Op]
	if !ok {
		return Processor{}, fmt.Errorf("unknown unary operation %q", u.Op)
	}
	return Processor{
		ProcessFunc: func(n int, in Inputs, out Outputs) error {
			for i := 0; i < n; i++ {
				out[0][i] = message.NewFloat(fn(in[0].Float(i)))
			}
			return nil
		},
	}, nil
}

// Spec implements Allocator.
func (Smooth) Spec() Spec {
	return Spec{
		Kind: "smooth",
		Inputs: []Port{
			numeric("in", 0),
			positive("time_constant", DefaultTimeConstant),
		},
		Outputs: single,
	}
}

// Allocate implements Allocator.
func (Smooth) Allocate(ctx Context) (Processor, error) {
	var (
		y, tau, coef float64
		started      bool
	)
	sr := ctx.SampleRate
	return Processor{
		ProcessFunc: func(n int, in Inputs, out Outputs) error {
			for i := 0; i < n; i++ {
				x := in[0].Float(i)
				if t := in[1].Float(i); t != tau || coef == 0 {
					tau = t
					coef = onePole(tau, sr)
				}
				if !started {
					y, started = x, true
				}
				y += (x - y) * coef
				out[0][i] = message.NewFloat(y)
			}
			return nil
		},
	}, nil
}

// onePole returns the coefficient of one-pole filter for the time
// constant in seconds. Non-positive time constant disables smoothing.
func onePole(tau, sampleRate float64) float64 {
	if tau <= 0 || sampleRate <= 0 {
		return 1
	}
	return 1 - math.Exp(-1/(tau*sampleRate))
}
