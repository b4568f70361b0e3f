package processor

import (
	"fmt"
	"math"

	"pipelined.dev/graph/message"
)

// BiquadType selects the response of the biquad filter.
type BiquadType string

// Biquad responses.
const (
	Lowpass   BiquadType = "lowpass"
	Highpass  BiquadType = "highpass"
	Bandpass  BiquadType = "bandpass"
	Notch     BiquadType = "notch"
	Peak      BiquadType = "peak"
	LowShelf  BiquadType = "lowshelf"
	HighShelf BiquadType = "highshelf"
)

type (
	// MoogLadder is a four-pole resonant lowpass filter.
	MoogLadder struct{}

	// Biquad is a second order filter with coefficients from the RBJ
	// audio EQ cookbook. Gain is in decibels and affects only peak and
	// shelf responses.
	Biquad struct {
		Type BiquadType
	}

	// PeakLimiter limits the peak level of the input to threshold.
	// Attack and release are in seconds.
	PeakLimiter struct{}
)

// Spec implements Allocator.
func (MoogLadder) Spec() Spec {
	return Spec{
		Kind: "moog_ladder",
		Inputs: []Port{
			numeric("in", 0),
			positive("cutoff", DefaultCutoff),
			numeric("resonance", DefaultResonance),
		},
		Outputs: single,
	}
}

// Allocate implements Allocator.
func (MoogLadder) Allocate(ctx Context) (Processor, error) {
	var stage [4]float64
	sr := ctx.SampleRate
	return Processor{
		ProcessFunc: func(n int, in Inputs, out Outputs) error {
			for i := 0; i < n; i++ {
				x := in[0].Float(i)
				fc := clamp(in[1].Float(i)/sr, 0, 0.49)
				g := 1 - math.Exp(-2*math.Pi*fc)
				k := 4 * clamp(in[2].Float(i), 0, 1)
				u := math.Tanh(x - k*stage[3])
				for s := range stage {
					stage[s] += g * (u - stage[s])
					u = stage[s]
				}
				out[0][i] = message.NewFloat(stage[3])
			}
			return nil
		},
	}, nil
}

// Spec implements Allocator.
func (b Biquad) Spec() Spec {
	return Spec{
		Kind: "biquad_" + string(b.Type),
		Inputs: []Port{
			numeric("in", 0),
			positive("cutoff", DefaultCutoff),
			positive("q", DefaultQ),
			numeric("gain", DefaultGain),
		},
		Outputs: single,
	}
}

// ValidBiquad returns true if filter type is known.
func ValidBiquad(t BiquadType) bool {
	switch t {
	case Lowpass, Highpass, Bandpass, Notch, Peak, LowShelf, HighShelf:
		return true
	}
	return false
}

// Allocate implements Allocator. Coefficients are recomputed only when
// cutoff, q or gain change.
func (b Biquad) Allocate(ctx Context) (Processor, error) {
	if !ValidBiquad(b.Type) {
		return Processor{}, fmt.Errorf("unknown biquad type %q", b.Type)
	}
	var (
		c              coefficients
		x1, x2, y1, y2 float64
	)
	fc, q, gain := math.NaN(), math.NaN(), math.NaN()
	sr := ctx.SampleRate
	return Processor{
		ProcessFunc: func(n int, in Inputs, out Outputs) error {
			for i := 0; i < n; i++ {
				x := in[0].Float(i)
				if f, qq, g := in[1].Float(i), in[2].Float(i), in[3].Float(i); f != fc || qq != q || g != gain {
					fc, q, gain = f, qq, g
					c = b.coefficients(sr, fc, q, gain)
				}
				y := c.b0*x + c.b1*x1 + c.b2*x2 - c.a1*y1 - c.a2*y2
				x2, x1 = x1, x
				y2, y1 = y1, y
				out[0][i] = message.NewFloat(y)
			}
			return nil
		},
	}, nil
}

// coefficients are normalized by a0.
type coefficients struct {
	b0, b1, b2, a1, a2 float64
}

func (b Biquad) coefficients(sr, fc, q, gain float64) coefficients {
	if q <= 0 {
		q = DefaultQ
	}
	w0 := 2 * math.Pi * clamp(fc, 1, sr*0.49) / sr
	cosw, sinw := math.Cos(w0), math.Sin(w0)
	alpha := sinw / (2 * q)
	a := math.Pow(10, gain/40)

	var b0, b1, b2, a0, a1, a2 float64
	switch b.Type {
	case Lowpass:
		b0, b1, b2 = (1-cosw)/2, 1-cosw, (1-cosw)/2
		a0, a1, a2 = 1+alpha, -2*cosw, 1-alpha
	case Highpass:
		b0, b1, b2 = (1+cosw)/2, -(1 + cosw), (1+cosw)/2
		a0, a1, a2 = 1+alpha, -2*cosw, 1-alpha
	case Bandpass:
		b0, b1, b2 = alpha, 0, -alpha
		a0, a1, a2 = 1+alpha, -2*cosw, 1-alpha
	case Notch:
		b0, b1, b2 = 1, -2*cosw, 1
		a0, a1, a2 = 1+alpha, -2*cosw, 1-alpha
	case Peak:
		b0, b1, b2 = 1+alpha*a, -2*cosw, 1-alpha*a
		a0, a1, a2 = 1+alpha/a, -2*cosw, 1-alpha/a
	case LowShelf:
		sq := 2 * math.Sqrt(a) * alpha
		b0 = a * ((a + 1) - (a-1)*cosw + sq)
		b1 = 2 * a * ((a - 1) - (a+1)*cosw)
		b2 = a * ((a + 1) - (a-1)*cosw - sq)
		a0 = (a + 1) + (a-1)*cosw + sq
		a1 = -2 * ((a - 1) + (a+1)*cosw)
		a2 = (a + 1) + (a-1)*cosw - sq
	case HighShelf:
		sq := 2 * math.Sqrt(a) * alpha
		b0 = a * ((a + 1) + (a-1)*cosw + sq)
		b1 = -2 * a * ((a - 1) + (a+1)*cosw)
		b2 = a * ((a + 1) + (a-1)*cosw - sq)
		a0 = (a + 1) - (a-1)*cosw + sq
		a1 = 2 * ((a - 1) - (a+1)*cosw)
		a2 = (a + 1) - (a-1)*cosw - sq
	}
	return coefficients{
		b0: b0 / a0,
		b1: b1 / a0,
		b2: b2 / a0,
		a1: a1 / a0,
		a2: a2 / a0,
	}
}

// Spec implements Allocator.
func (PeakLimiter) Spec() Spec {
	return Spec{
		Kind: "peak_limiter",
		Inputs: []Port{
			numeric("in", 0),
			positive("threshold", DefaultThreshold),
			positive("attack", DefaultAttack),
			positive("release", DefaultRelease),
		},
		Outputs: single,
	}
}

// Allocate implements Allocator.
func (PeakLimiter) Allocate(ctx Context) (Processor, error) {
	var env, attackCoef, releaseCoef float64
	attack, release := math.NaN(), math.NaN()
	sr := ctx.SampleRate
	return Processor{
		ProcessFunc: func(n int, in Inputs, out Outputs) error {
			for i := 0; i < n; i++ {
				x := in[0].Float(i)
				threshold := in[1].Float(i)
				if a := in[2].Float(i); a != attack {
					attack, attackCoef = a, onePole(a, sr)
				}
				if r := in[3].Float(i); r != release {
					release, releaseCoef = r, onePole(r, sr)
				}
				level := math.Abs(x)
				if level > env {
					env += (level - env) * attackCoef
				} else {
					env += (level - env) * releaseCoef
				}
				// the envelope lags behind the signal, so the peak is
				// limited by whichever is greater
				peak := math.Max(env, level)
				gain := 1.0
				if threshold > 0 && peak > threshold {
					gain = threshold / peak
				}
				out[0][i] = message.NewFloat(x * gain)
			}
			return nil
		},
	}, nil
}
