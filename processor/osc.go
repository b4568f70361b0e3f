package processor

import (
	"math"

	"pipelined.dev/graph/message"
)

type (
	// SineOsc is a sine oscillator.
	SineOsc struct{}
	// SawOsc is a naive sawtooth oscillator.
	SawOsc struct{}
	// BlSawOsc is a band-limited sawtooth oscillator.
	BlSawOsc struct{}
	// BlSquareOsc is a band-limited pulse oscillator.
	BlSquareOsc struct{}
	// PhaseAccum accumulates the increment on every sample.
	PhaseAccum struct{}
	// NoiseOsc emits uniform white noise in [-1, 1).
	NoiseOsc struct{}
)

var (
	oscInputs = []Port{
		numeric("frequency", DefaultFrequency),
		event("reset"),
	}
	squareInputs = []Port{
		numeric("frequency", DefaultFrequency),
		numeric("pulse_width", DefaultPulseWidth),
		event("reset"),
	}
)

// Spec implements Allocator.
func (SineOsc) Spec() Spec {
	return Spec{Kind: "sine_osc", Inputs: oscInputs, Outputs: single}
}

// Allocate implements Allocator.
func (SineOsc) Allocate(ctx Context) (Processor, error) {
	return phasor(ctx, func(phase, _ float64) float64 {
		return math.Sin(2 * math.Pi * phase)
	}), nil
}

// Spec implements Allocator.
func (SawOsc) Spec() Spec {
	return Spec{Kind: "saw_osc", Inputs: oscInputs, Outputs: single}
}

// Allocate implements Allocator.
func (SawOsc) Allocate(ctx Context) (Processor, error) {
	return phasor(ctx, func(phase, _ float64) float64 {
		return 2*phase - 1
	}), nil
}

// Spec implements Allocator.
func (BlSawOsc) Spec() Spec {
	return Spec{Kind: "bl_saw_osc", Inputs: oscInputs, Outputs: single}
}

// Allocate implements Allocator.
func (BlSawOsc) Allocate(ctx Context) (Processor, error) {
	return phasor(ctx, func(phase, dt float64) float64 {
		return 2*phase - 1 - polyBLEP(phase, dt)
	}), nil
}

// phasor returns a processor that advances the phase in [0, 1) by the
// frequency input and shapes it with provided function.
func phasor(ctx Context, shape func(phase, dt float64) float64) Processor {
	var phase float64
	sr := ctx.SampleRate
	return Processor{
		ProcessFunc: func(n int, in Inputs, out Outputs) error {
			for i := 0; i < n; i++ {
				if in[1].Event(i) {
					phase = 0
				}
				dt := in[0].Float(i) / sr
				out[0][i] = message.NewFloat(shape(phase, math.Abs(dt)))
				phase = wrap(phase + dt)
			}
			return nil
		},
	}
}

// Spec implements Allocator.
func (BlSquareOsc) Spec() Spec {
	return Spec{Kind: "bl_square_osc", Inputs: squareInputs, Outputs: single}
}

// Allocate implements Allocator.
func (BlSquareOsc) Allocate(ctx Context) (Processor, error) {
	var phase float64
	sr := ctx.SampleRate
	return Processor{
		ProcessFunc: func(n int, in Inputs, out Outputs) error {
			for i := 0; i < n; i++ {
				if in[2].Event(i) {
					phase = 0
				}
				dt := in[0].Float(i) / sr
				pw := clamp(in[1].Float(i), 0, 1)
				v := -1.0
				if phase < pw {
					v = 1.0
				}
				adt := math.Abs(dt)
				v += polyBLEP(phase, adt) - polyBLEP(wrap(phase+1-pw), adt)
				out[0][i] = message.NewFloat(v)
				phase = wrap(phase + dt)
			}
			return nil
		},
	}, nil
}

// Spec implements Allocator.
func (PhaseAccum) Spec() Spec {
	return Spec{
		Kind:    "phase_accum",
		Inputs:  []Port{numeric("increment", 0), event("reset")},
		Outputs: single,
	}
}

// Allocate implements Allocator.
func (PhaseAccum) Allocate(Context) (Processor, error) {
	var acc float64
	return Processor{
		ProcessFunc: func(n int, in Inputs, out Outputs) error {
			for i := 0; i < n; i++ {
				if in[1].Event(i) {
					acc = 0
				}
				out[0][i] = message.NewFloat(acc)
				acc += in[0].Float(i)
			}
			return nil
		},
	}, nil
}

// Spec implements Allocator.
func (NoiseOsc) Spec() Spec {
	return Spec{Kind: "noise_osc", Outputs: single}
}

// Allocate implements Allocator.
func (NoiseOsc) Allocate(ctx Context) (Processor, error) {
	r := ctx.GetRand()
	return Processor{
		ProcessFunc: func(n int, _ Inputs, out Outputs) error {
			for i := 0; i < n; i++ {
				out[0][i] = message.NewFloat(r.Float64()*2 - 1)
			}
			return nil
		},
	}, nil
}

func polyBLEP(t, dt float64) float64 {
	switch {
	case dt <= 0:
		return 0
	case t < dt:
		t /= dt
		return t + t - t*t - 1
	case t > 1-dt:
		t = (t - 1) / dt
		return t*t + t + t + 1
	}
	return 0
}

func wrap(phase float64) float64 {
	return phase - math.Floor(phase)
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}
