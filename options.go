package graph

import (
	"fmt"
	"math"

	"pipelined.dev/graph/log"
	"pipelined.dev/graph/message"
	"pipelined.dev/graph/metric"
	"pipelined.dev/graph/processor"
)

// Option configures inputs of the created node.
type Option func(*settings)

// settings are constants of node inputs by port name.
type settings struct {
	names  []string
	values []float64
}

func set(name string, v float64) Option {
	return func(s *settings) {
		s.names = append(s.names, name)
		s.values = append(s.values, v)
	}
}

// Setting sets the constant of the input with provided name.
func Setting(name string, v float64) Option { return set(name, v) }

// Frequency sets frequency of the oscillator in Hz.
func Frequency(v float64) Option { return set("frequency", v) }

// PulseWidth sets pulse width of the square oscillator.
func PulseWidth(v float64) Option { return set("pulse_width", v) }

// Period sets period of the metro in seconds.
func Period(v float64) Option { return set("period", v) }

// Cutoff sets cutoff frequency of the filter in Hz.
func Cutoff(v float64) Option { return set("cutoff", v) }

// Q sets quality factor of the biquad filter.
func Q(v float64) Option { return set("q", v) }

// Resonance sets resonance of the moog ladder filter.
func Resonance(v float64) Option { return set("resonance", v) }

// Gain sets gain of the biquad filter in dB.
func Gain(v float64) Option { return set("gain", v) }

// Threshold sets threshold of the peak limiter or change detector.
func Threshold(v float64) Option { return set("threshold", v) }

// Attack sets attack of the peak limiter in seconds.
func Attack(v float64) Option { return set("attack", v) }

// Release sets release of the peak limiter in seconds.
func Release(v float64) Option { return set("release", v) }

// TimeConstant sets time constant of the smooth node in seconds.
func TimeConstant(v float64) Option { return set("time_constant", v) }

// constants resolves settings against node spec.
func (s settings) constants(spec processor.Spec) (map[int]message.Message, error) {
	if len(s.names) == 0 {
		return nil, nil
	}
	constants := make(map[int]message.Message, len(s.names))
	for i, name := range s.names {
		idx, ok := spec.InputIndex(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no %s input", ErrInvalidArgument, spec.Kind, name)
		}
		if err := checkValue(spec.Inputs[idx], s.values[i]); err != nil {
			return nil, fmt.Errorf("%s: %w", spec.Kind, err)
		}
		constants[idx] = message.NewFloat(s.values[i])
	}
	return constants, nil
}

func checkValue(p processor.Port, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s must be finite, got %v", ErrInvalidArgument, p.Name, v)
	}
	if p.Positive && v <= 0 {
		return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidArgument, p.Name, v)
	}
	return nil
}

// checkMessage validates numeric constants of the input.
func checkMessage(p processor.Port, m message.Message) error {
	if v, ok := m.Number(); ok {
		return checkValue(p, v)
	}
	return nil
}

// BuilderOption configures the builder.
type BuilderOption func(*Builder)

// WithBuilderLogger sets the logger of the builder.
func WithBuilderLogger(l log.Logger) BuilderOption {
	return func(b *Builder) {
		b.log = l
	}
}

// RuntimeOption configures the runtime.
type RuntimeOption func(*Runtime)

// WithSampleRate sets sample rate of live runs.
func WithSampleRate(sampleRate int) RuntimeOption {
	return func(r *Runtime) {
		r.sampleRate = sampleRate
	}
}

// WithBlockSize sets block size of live runs.
func WithBlockSize(blockSize int) RuntimeOption {
	return func(r *Runtime) {
		r.blockSize = blockSize
	}
}

// WithSeed sets the seed of stochastic nodes.
func WithSeed(seed int64) RuntimeOption {
	return func(r *Runtime) {
		r.seed = seed
	}
}

// WithLogger sets the logger of the runtime.
func WithLogger(l log.Logger) RuntimeOption {
	return func(r *Runtime) {
		r.log = l
	}
}

// WithMetrics enables metrics of the runtime.
func WithMetrics(m *metric.Metrics) RuntimeOption {
	return func(r *Runtime) {
		r.metrics = m
	}
}
