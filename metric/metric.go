// Package metric exposes runtime counters as prometheus metrics.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const (
	namespace    = "graph"
	runtimeLabel = "runtime"
)

const (
	// BlockCounter measures number of processed blocks.
	BlockCounter = "blocks_total"
	// SampleCounter measures number of processed frames.
	SampleCounter = "samples_total"
	// LatencyGauge measures time between processing calls.
	LatencyGauge = "latency_seconds"
	// DurationCounter measures duration of produced audio.
	DurationCounter = "duration_seconds_total"
	// ReloadCounter measures number of applied hot reloads.
	ReloadCounter = "reloads_total"
	// ErrorCounter measures number of reported errors.
	ErrorCounter = "errors_total"
)

// Metrics of runtimes. Nil value is valid and measures nothing.
type Metrics struct {
	blocks   *prometheus.CounterVec
	samples  *prometheus.CounterVec
	latency  *prometheus.GaugeVec
	duration *prometheus.CounterVec
	reloads  *prometheus.CounterVec
	errors   *prometheus.CounterVec
}

// New creates metrics and registers them. If registerer is nil, metrics
// are not registered.
func New(r prometheus.Registerer) (*Metrics, error) {
	counter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, []string{runtimeLabel})
	}
	m := Metrics{
		blocks:  counter(BlockCounter, "Number of processed blocks."),
		samples: counter(SampleCounter, "Number of processed frames."),
		latency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      LatencyGauge,
			Help:      "Time between the last two processing calls.",
		}, []string{runtimeLabel}),
		duration: counter(DurationCounter, "Duration of produced audio."),
		reloads:  counter(ReloadCounter, "Number of applied hot reloads."),
		errors:   counter(ErrorCounter, "Number of reported errors."),
	}
	if r == nil {
		return &m, nil
	}
	for _, c := range []prometheus.Collector{m.blocks, m.samples, m.latency, m.duration, m.reloads, m.errors} {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

// ResetFunc returns new Measure closure. This closure is needed to
// postpone metrics capture until runtime is actually running.
type ResetFunc func() MeasureFunc

// MeasureFunc captures metrics when block is processed.
type MeasureFunc func(frames int64)

// Events counts runtime events.
type Events struct {
	reloads prometheus.Counter
	errors  prometheus.Counter
}

// Reload counts an applied hot reload.
func (e Events) Reload() {
	if e.reloads != nil {
		e.reloads.Inc()
	}
}

// Error counts a reported error.
func (e Events) Error() {
	if e.errors != nil {
		e.errors.Inc()
	}
}

// Meter creates new meter closure to capture runtime counters. Labeled
// metrics are resolved here, so measure closure doesn't allocate.
func (m *Metrics) Meter(runtime string, sampleRate int) ResetFunc {
	if m == nil {
		return func() MeasureFunc {
			return func(int64) {}
		}
	}
	var (
		blocks   = m.blocks.WithLabelValues(runtime)
		samples  = m.samples.WithLabelValues(runtime)
		latency  = m.latency.WithLabelValues(runtime)
		duration = m.duration.WithLabelValues(runtime)
	)
	return func() MeasureFunc {
		calledAt := time.Now()
		var (
			blockSize     int64
			blockDuration float64
		)
		return func(frames int64) {
			now := time.Now()
			latency.Set(now.Sub(calledAt).Seconds())
			blocks.Inc()
			samples.Add(float64(frames))
			// recalculate block duration only when block size has changed
			if blockSize != frames {
				blockSize = frames
				blockDuration = float64(frames) / float64(sampleRate)
			}
			duration.Add(blockDuration)
			calledAt = now
		}
	}
}

// Events returns event counters of the runtime.
func (m *Metrics) Events(runtime string) Events {
	if m == nil {
		return Events{}
	}
	return Events{
		reloads: m.reloads.WithLabelValues(runtime),
		errors:  m.errors.WithLabelValues(runtime),
	}
}

// Get returns metric values of the runtime.
func (m *Metrics) Get(runtime string) map[string]float64 {
	values := make(map[string]float64)
	if m == nil {
		return values
	}
	counters := map[string]*prometheus.CounterVec{
		BlockCounter:    m.blocks,
		SampleCounter:   m.samples,
		DurationCounter: m.duration,
		ReloadCounter:   m.reloads,
		ErrorCounter:    m.errors,
	}
	for name, vec := range counters {
		var d dto.Metric
		if err := vec.WithLabelValues(runtime).Write(&d); err == nil && d.Counter != nil {
			values[name] = d.Counter.GetValue()
		}
	}
	var d dto.Metric
	if err := m.latency.WithLabelValues(runtime).Write(&d); err == nil && d.Gauge != nil {
		values[LatencyGauge] = d.Gauge.GetValue()
	}
	return values
}
