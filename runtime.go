package graph

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/xid"

	"pipelined.dev/graph/backend"
	"pipelined.dev/graph/internal/engine"
	"pipelined.dev/graph/log"
	"pipelined.dev/graph/metric"
	"pipelined.dev/graph/processor"
	"pipelined.dev/graph/sndfile"
)

// Default execution properties.
const (
	DefaultSampleRate = 48000
	DefaultBlockSize  = 512
	DefaultSeed       = 1
)

// DefaultBackend is used when nil backend is provided to Run and RunFor.
var DefaultBackend backend.Backend = backend.Clock{}

// state identifies one of the possible states runtime can be in.
type state int

// states.
const (
	constructed state = iota
	running
	stopped
	renderingOffline
	finished
)

func (s state) String() string {
	switch s {
	case constructed:
		return "constructed"
	case running:
		return "running"
	case stopped:
		return "stopped"
	case renderingOffline:
		return "rendering offline"
	case finished:
		return "finished"
	}
	return "unknown"
}

// Runtime executes the graph. It can be executed only once: either live
// with Run and RunFor or offline with RunOfflineToFile and RenderTo.
type Runtime struct {
	id         string
	sampleRate int
	blockSize  int
	seed       int64
	log        log.Logger
	metrics    *metric.Metrics

	m      sync.Mutex
	state  state
	graph  *Graph
	params map[string]*Param
}

// NewRuntime creates a runtime for the graph.
func NewRuntime(g *Graph, opts ...RuntimeOption) *Runtime {
	r := Runtime{
		id:         xid.New().String(),
		sampleRate: DefaultSampleRate,
		blockSize:  DefaultBlockSize,
		seed:       DefaultSeed,
		log:        log.Silent(),
		graph:      g,
		params:     make(map[string]*Param, len(g.params)),
	}
	for _, opt := range opts {
		opt(&r)
	}
	r.log = log.With(r.log, map[string]interface{}{"runtime": r.id})
	for name, p := range g.params {
		r.params[name] = p.clone()
	}
	return &r
}

// ID returns unique id of the runtime.
func (r *Runtime) ID() string {
	return r.id
}

// ParamNames returns names of the runtime params in lexicographical
// order.
func (r *Runtime) ParamNames() []string {
	r.m.Lock()
	defer r.m.Unlock()
	return sortedNames(r.params)
}

// ParamNamed returns the runtime param with provided name. Runtime params
// are copies of the graph params made when the runtime is created, values
// sent to graph params afterwards don't reach the runtime.
func (r *Runtime) ParamNamed(name string) (*Param, error) {
	r.m.Lock()
	defer r.m.Unlock()
	if p, ok := r.params[name]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownParam, name)
}

// transition changes the state of the runtime.
func (r *Runtime) transition(from, to state) error {
	r.m.Lock()
	defer r.m.Unlock()
	if r.state != from {
		return fmt.Errorf("%w: runtime is %v", ErrInvalidState, r.state)
	}
	r.log.Debug(fmt.Sprintf("%v -> %v", r.state, to))
	r.state = to
	return nil
}

func (r *Runtime) setState(s state) {
	r.m.Lock()
	defer r.m.Unlock()
	r.log.Debug(fmt.Sprintf("%v -> %v", r.state, s))
	r.state = s
}

// compile allocates the program for the graph. Params are resolved by
// name: if the runtime already has a param with the same name, it's used
// instead of the graph's one. Otherwise the runtime registers its own copy,
// so runtimes of the same graph never share params.
func (r *Runtime) compile(g *Graph, sampleRate, blockSize int, report func(error)) (*engine.Program, error) {
	r.m.Lock()
	d := g.description(func(p *Param) *Param {
		if existing, ok := r.params[p.name]; ok {
			return existing
		}
		c := p.clone()
		r.params[p.name] = c
		return c
	})
	r.m.Unlock()
	return engine.Compile(d, processor.Context{
		SampleRate: float64(sampleRate),
		BlockSize:  blockSize,
		Rand:       rand.New(rand.NewSource(r.seed)),
		Report:     report,
	})
}

// Run opens the stream of the backend and starts execution. It returns
// immediately, use the handle to control execution. If backend is nil,
// DefaultBackend is used.
func (r *Runtime) Run(ctx context.Context, b backend.Backend) (*Handle, error) {
	return r.run(ctx, b, 0)
}

// RunFor executes the graph until d of audio is produced or context is
// done. It blocks until execution is finished.
func (r *Runtime) RunFor(ctx context.Context, b backend.Backend, d time.Duration) error {
	frames := int64(math.Round(d.Seconds() * float64(r.sampleRate)))
	if frames <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %v", ErrInvalidArgument, d)
	}
	h, err := r.run(ctx, b, frames)
	if err != nil {
		return err
	}
	return h.Wait()
}

func (r *Runtime) run(ctx context.Context, b backend.Backend, limit int64) (*Handle, error) {
	if b == nil {
		b = DefaultBackend
	}
	if err := r.transition(constructed, running); err != nil {
		return nil, err
	}
	cfg := backend.Config{
		SampleRate: r.sampleRate,
		BlockSize:  r.blockSize,
		Inputs:     r.graph.NumInputs(),
		Outputs:    r.graph.NumOutputs(),
	}
	h := newHandle(r, cfg, limit)
	p, err := r.compile(r.graph, cfg.SampleRate, cfg.BlockSize, h.report)
	if err != nil {
		r.setState(stopped)
		return nil, err
	}
	s, err := b.Open(cfg)
	if err != nil {
		r.setState(stopped)
		return nil, fmt.Errorf("%w: %w", ErrDevice, err)
	}
	r.log.Info(fmt.Sprintf("running at %d Hz block size %d", cfg.SampleRate, cfg.BlockSize))
	h.start(ctx, s, p)
	return h, nil
}

// RunOfflineToFile renders d of audio to the file. The format is chosen
// by the file extension. Zero sample rate and block size mean defaults.
// Arguments are validated before the file is created.
func (r *Runtime) RunOfflineToFile(path string, d time.Duration, sampleRate, blockSize int) error {
	if err := r.transition(constructed, renderingOffline); err != nil {
		return err
	}
	defer r.setState(finished)
	sampleRate, blockSize, err := renderArgs(d, sampleRate, blockSize)
	if err != nil {
		return err
	}
	w, err := sndfile.Create(path, sampleRate, r.graph.NumOutputs(), 0)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", path, err)
	}
	if err := r.render(w, d, sampleRate, blockSize); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("error closing %s: %w", path, err)
	}
	return nil
}

// RenderTo renders d of audio to the writer. The writer is not closed.
// Zero sample rate and block size mean defaults.
func (r *Runtime) RenderTo(w sndfile.Writer, d time.Duration, sampleRate, blockSize int) error {
	if err := r.transition(constructed, renderingOffline); err != nil {
		return err
	}
	defer r.setState(finished)
	sampleRate, blockSize, err := renderArgs(d, sampleRate, blockSize)
	if err != nil {
		return err
	}
	return r.render(w, d, sampleRate, blockSize)
}

// renderArgs applies defaults and validates arguments of offline render.
func renderArgs(d time.Duration, sampleRate, blockSize int) (int, int, error) {
	if sampleRate == 0 {
		sampleRate = DefaultSampleRate
	}
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}
	switch {
	case d < 0:
		return 0, 0, fmt.Errorf("%w: negative duration %v", ErrInvalidArgument, d)
	case sampleRate < 0:
		return 0, 0, fmt.Errorf("%w: negative sample rate %d", ErrInvalidArgument, sampleRate)
	case blockSize < 0:
		return 0, 0, fmt.Errorf("%w: negative block size %d", ErrInvalidArgument, blockSize)
	}
	return sampleRate, blockSize, nil
}

// render executes the graph synchronously for exactly round(d*sampleRate)
// frames. Graph inputs are silent.
func (r *Runtime) render(w sndfile.Writer, d time.Duration, sampleRate, blockSize int) error {
	p, err := r.compile(r.graph, sampleRate, blockSize, func(err error) {
		r.log.Info(err.Error())
	})
	if err != nil {
		return err
	}
	var (
		total   = int64(math.Round(d.Seconds() * float64(sampleRate)))
		in      = buffers(p.NumInputs(), blockSize)
		out     = buffers(p.NumOutputs(), blockSize)
		measure = r.metrics.Meter(r.id, sampleRate)()
	)
	r.log.Info(fmt.Sprintf("rendering %d frames at %d Hz block size %d", total, sampleRate, blockSize))
	for produced := int64(0); produced < total; {
		n := int64(blockSize)
		if total-produced < n {
			n = total - produced
			in = resize(in, int(n))
			out = resize(out, int(n))
		}
		if err := p.Process(int(n), in, out); err != nil {
			return err
		}
		if err := w.Write(out); err != nil {
			return fmt.Errorf("error writing: %w", err)
		}
		measure(n)
		produced += n
	}
	return nil
}

func buffers(channels, size int) [][]float64 {
	b := make([][]float64, channels)
	for i := range b {
		b[i] = make([]float64, size)
	}
	return b
}

func resize(b [][]float64, size int) [][]float64 {
	for i := range b {
		b[i] = b[i][:size]
	}
	return b
}
