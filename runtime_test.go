package graph_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/graph"
	"pipelined.dev/graph/backend"
	"pipelined.dev/graph/message"
	"pipelined.dev/graph/processor"
	"pipelined.dev/graph/sndfile"
)

// stepper is a backend that hands every written block to the test.
type stepper struct {
	blocks chan [][]float64
	quit   chan struct{}
	once   sync.Once
}

func newStepper() *stepper {
	return &stepper{
		blocks: make(chan [][]float64),
		quit:   make(chan struct{}),
	}
}

func (s *stepper) Open(backend.Config) (backend.Stream, error) {
	return s, nil
}

func (s *stepper) Read(in [][]float64) error {
	for i := range in {
		for j := range in[i] {
			in[i][j] = 1
		}
	}
	return nil
}

func (s *stepper) Write(out [][]float64) error {
	block := make([][]float64, len(out))
	for i := range out {
		block[i] = append([]float64(nil), out[i]...)
	}
	select {
	case s.blocks <- block:
	case <-s.quit:
	}
	return nil
}

func (s *stepper) Close() error {
	return nil
}

// release unblocks the pending writes, so the handle can be stopped.
func (s *stepper) release() {
	s.once.Do(func() { close(s.quit) })
}

func constantGraph(t *testing.T, v float64) *graph.Graph {
	t.Helper()
	b := graph.NewBuilder()
	b.AddOutput().Input(0).Connect(b.Constant(v).Output(0))
	g, err := b.Build()
	assert.NoError(t, err)
	return g
}

func uniform(block []float64) (float64, bool) {
	for _, v := range block {
		if v != block[0] {
			return 0, false
		}
	}
	return block[0], true
}

func TestRenderExact(t *testing.T) {
	r := graph.NewRuntime(constantGraph(t, 0.75))
	var s sink
	assert.NoError(t, r.RenderTo(&s, time.Second, 48000, 512))

	assert.Len(t, s.channels, 1)
	assert.Len(t, s.channels[0], 48000)
	for _, v := range s.channels[0] {
		if v != 0.75 {
			t.Fatalf("unexpected sample %v", v)
		}
	}
	// last block is partial
	assert.Equal(t, 94, s.writes)
	assert.False(t, s.closed)
}

func TestRunOfflineToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	r := graph.NewRuntime(constantGraph(t, 0.75))
	assert.NoError(t, r.RunOfflineToFile(path, time.Second, 48000, 512))

	buf, err := sndfile.Load(path)
	assert.NoError(t, err)
	assert.Equal(t, 48000, buf.SampleRate)
	assert.Len(t, buf.Channels, 1)
	assert.Equal(t, 48000, buf.Len())
	for _, v := range buf.Channels[0] {
		assert.InDelta(t, 0.75, v, 1e-4)
	}

	// runtime executes once
	err = r.RunOfflineToFile(path, time.Second, 0, 0)
	assert.True(t, errors.Is(err, graph.ErrInvalidState))
	_, err = r.Run(context.Background(), backend.Clock{})
	assert.True(t, errors.Is(err, graph.ErrInvalidState))
}

func TestRenderErrors(t *testing.T) {
	r := graph.NewRuntime(constantGraph(t, 1))
	err := r.RunOfflineToFile(filepath.Join(t.TempDir(), "out.xyz"), time.Second, 0, 0)
	assert.True(t, errors.Is(err, sndfile.ErrUnsupportedFormat))

	r = graph.NewRuntime(constantGraph(t, 1))
	var s sink
	err = r.RenderTo(&s, -time.Second, 0, 0)
	assert.True(t, errors.Is(err, graph.ErrInvalidArgument))
}

func TestRunOfflineToFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	err := graph.NewRuntime(constantGraph(t, 1)).RunOfflineToFile(path, -time.Second, 0, 0)
	assert.True(t, errors.Is(err, graph.ErrInvalidArgument))
	err = graph.NewRuntime(constantGraph(t, 1)).RunOfflineToFile(path, time.Second, 0, -1)
	assert.True(t, errors.Is(err, graph.ErrInvalidArgument))

	// file is not created
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestRuntimesOwnParams(t *testing.T) {
	b := graph.NewBuilder()
	gain, node := b.AddParam("gain", 0.5)
	b.AddOutput().Input(0).Connect(node.Output(0))
	g, err := b.Build()
	assert.NoError(t, err)

	r1, r2 := graph.NewRuntime(g), graph.NewRuntime(g)
	p1, err := r1.ParamNamed("gain")
	assert.NoError(t, err)
	p2, err := r2.ParamNamed("gain")
	assert.NoError(t, err)
	assert.NotSame(t, p1, p2)

	assert.NoError(t, p1.Send(0.25))

	var s1, s2 sink
	assert.NoError(t, r2.RenderTo(&s2, 4*time.Millisecond, 1000, 4))
	assert.NoError(t, r1.RenderTo(&s1, 4*time.Millisecond, 1000, 4))
	assert.Equal(t, []float64{0.25, 0.25, 0.25, 0.25}, s1.channels[0])
	assert.Equal(t, []float64{0.5, 0.5, 0.5, 0.5}, s2.channels[0])

	// graph param is not affected
	v, ok := gain.Value()
	assert.True(t, ok)
	assert.Equal(t, message.NewFloat(0.5), v)
}

func TestDeterministicNoise(t *testing.T) {
	render := func(seed int64) []float64 {
		b := graph.NewBuilder()
		b.AddOutput().Input(0).Connect(b.NoiseOsc().Output(0))
		r, err := b.BuildRuntime(graph.WithSeed(seed))
		assert.NoError(t, err)
		var s sink
		assert.NoError(t, r.RenderTo(&s, 10*time.Millisecond, 0, 0))
		return s.channels[0]
	}
	assert.Equal(t, render(7), render(7))
	assert.NotEqual(t, render(7), render(8))
}

func TestHotReload(t *testing.T) {
	s := newStepper()
	r := graph.NewRuntime(constantGraph(t, 0.25), graph.WithBlockSize(64))
	h, err := r.Run(context.Background(), s)
	assert.NoError(t, err)

	first := <-s.blocks
	v, ok := uniform(first[0])
	assert.True(t, ok)
	assert.Equal(t, 0.25, v)

	assert.NoError(t, h.HotReload(constantGraph(t, 0.5)))

	// the switch happens on a block boundary: every block is produced by
	// a single graph and the new one is applied within two blocks
	var values []float64
	for i := 0; i < 4; i++ {
		block := <-s.blocks
		v, ok := uniform(block[0])
		assert.True(t, ok, "mixed block %v", block[0])
		values = append(values, v)
	}
	assert.Equal(t, 0.5, values[1])
	for i := 1; i < len(values); i++ {
		assert.GreaterOrEqual(t, values[i], values[i-1])
	}

	s.release()
	assert.NoError(t, h.Stop())
	assert.NoError(t, h.Stop())
	<-h.Done()

	err = h.HotReload(constantGraph(t, 1))
	assert.True(t, errors.Is(err, graph.ErrStopped))
}

func TestHotReloadIncompatible(t *testing.T) {
	s := newStepper()
	defer s.release()
	r := graph.NewRuntime(constantGraph(t, 0.25), graph.WithBlockSize(64))
	h, err := r.Run(context.Background(), s)
	assert.NoError(t, err)
	<-s.blocks

	b := graph.NewBuilder()
	c := b.Constant(0.5)
	b.AddOutput().Input(0).Connect(c.Output(0))
	b.AddOutput().Input(0).Connect(c.Output(0))
	g, err := b.Build()
	assert.NoError(t, err)
	err = h.HotReload(g)
	assert.True(t, errors.Is(err, graph.ErrIncompatibleGraph))

	s.release()
	assert.NoError(t, h.Stop())
}

func TestHotReloadOscillator(t *testing.T) {
	const block = 8
	osc := func(freq float64) *graph.Graph {
		b := graph.NewBuilder()
		b.AddOutput().Input(0).Connect(b.SineOsc(graph.Frequency(freq)).Output(0))
		g, err := b.Build()
		assert.NoError(t, err)
		return g
	}
	reference := func(g *graph.Graph) []float64 {
		var s sink
		assert.NoError(t, graph.NewRuntime(g).RenderTo(&s, 48*time.Millisecond, 1000, block))
		return s.channels[0]
	}
	a, b := osc(100), osc(250)
	refA, refB := reference(a), reference(b)

	s := newStepper()
	r := graph.NewRuntime(a, graph.WithSampleRate(1000), graph.WithBlockSize(block))
	h, err := r.Run(context.Background(), s)
	assert.NoError(t, err)
	assert.Equal(t, refA[:block], (<-s.blocks)[0])
	assert.NoError(t, h.HotReload(b))

	// blocks before the switch continue the old oscillator, the new one
	// starts from zero phase
	switched := 0
	for k := 1; k <= 4; k++ {
		got := (<-s.blocks)[0]
		if switched == 0 && !assert.ObjectsAreEqual(refA[k*block:(k+1)*block], got) {
			switched = k
		}
		if switched > 0 {
			i := (k - switched) * block
			assert.Equal(t, refB[i:i+block], got, "block %d", k)
		}
	}
	assert.Contains(t, []int{1, 2}, switched)

	s.release()
	assert.NoError(t, h.Stop())
}

func TestHotReloadKeepsParams(t *testing.T) {
	build := func(scale float64) *graph.Graph {
		b := graph.NewBuilder()
		_, node := b.AddParam("amp", 1.0)
		b.AddOutput().Input(0).Connect(node.Mul(graph.Lit(scale)).Output(0))
		g, err := b.Build()
		assert.NoError(t, err)
		return g
	}
	s := newStepper()
	r := graph.NewRuntime(build(1), graph.WithBlockSize(16))
	h, err := r.Run(context.Background(), s)
	assert.NoError(t, err)
	<-s.blocks

	amp, err := r.ParamNamed("amp")
	assert.NoError(t, err)
	assert.NoError(t, amp.Send(0.5))
	assert.Equal(t, 0.5, waitFor(t, s, func(v float64) bool { return v == 0.5 }))

	// new graph has its own amp param, runtime keeps the old one
	assert.NoError(t, h.HotReload(build(2)))
	assert.Equal(t, 1.0, waitFor(t, s, func(v float64) bool { return v == 1 }))
	assert.NoError(t, amp.Send(2.0))
	assert.Equal(t, 4.0, waitFor(t, s, func(v float64) bool { return v == 4 }))
	assert.Equal(t, []string{"amp"}, r.ParamNames())

	s.release()
	assert.NoError(t, h.Stop())
}

// waitFor reads blocks until the last sample satisfies the condition.
func waitFor(t *testing.T, s *stepper, cond func(float64) bool) float64 {
	t.Helper()
	for i := 0; i < 100; i++ {
		block := <-s.blocks
		v := block[0][len(block[0])-1]
		if cond(v) {
			return v
		}
	}
	t.Fatal("condition not met")
	return 0
}

func TestLiveInput(t *testing.T) {
	b := graph.NewBuilder()
	in := b.AddInput()
	b.AddOutput().Input(0).Connect(in.Mul(graph.Lit(3)).Output(0))
	r, err := b.BuildRuntime(graph.WithBlockSize(8))
	assert.NoError(t, err)

	s := newStepper()
	h, err := r.Run(context.Background(), s)
	assert.NoError(t, err)
	block := <-s.blocks
	assert.Equal(t, []float64{3, 3, 3, 3, 3, 3, 3, 3}, block[0])

	s.release()
	assert.NoError(t, h.Stop())
}

func TestErrorsReported(t *testing.T) {
	b := graph.NewBuilder()
	check := b.CheckFinite("recip")
	b.Constant(0.0).Recip().Output(0).Connect(check.Input(0))
	b.AddOutput().Input(0).Connect(check.Output(0))
	r, err := b.BuildRuntime(graph.WithBlockSize(8))
	assert.NoError(t, err)

	s := newStepper()
	h, err := r.Run(context.Background(), s)
	assert.NoError(t, err)
	<-s.blocks

	err = <-h.Errors()
	assert.True(t, errors.Is(err, processor.ErrNonFinite))
	assert.Contains(t, err.Error(), "recip")

	// execution continues after the error
	<-s.blocks
	s.release()
	assert.NoError(t, h.Stop())
	for range h.Errors() {
	}
}

func TestErrorsWithoutOutputs(t *testing.T) {
	b := graph.NewBuilder()
	check := b.CheckFinite("sink")
	b.Constant(0.0).Recip().Output(0).Connect(check.Input(0))
	r, err := b.BuildRuntime(graph.WithBlockSize(8))
	assert.NoError(t, err)

	s := newStepper()
	h, err := r.Run(context.Background(), s)
	assert.NoError(t, err)
	block := <-s.blocks
	assert.Empty(t, block)

	err = <-h.Errors()
	assert.True(t, errors.Is(err, processor.ErrNonFinite))
	assert.Contains(t, err.Error(), "sink")

	s.release()
	assert.NoError(t, h.Stop())
	for range h.Errors() {
	}
}

func TestRunFor(t *testing.T) {
	r := graph.NewRuntime(constantGraph(t, 0.5), graph.WithBlockSize(480))
	var (
		m      sync.Mutex
		blocks int
	)
	b := backend.Func(func(cfg backend.Config) (backend.Stream, error) {
		assert.Equal(t, graph.DefaultSampleRate, cfg.SampleRate)
		assert.Equal(t, 480, cfg.BlockSize)
		assert.Equal(t, 1, cfg.Outputs)
		return writeFunc(func(out [][]float64) error {
			m.Lock()
			blocks++
			m.Unlock()
			return nil
		}), nil
	})
	assert.NoError(t, r.RunFor(context.Background(), b, 50*time.Millisecond))
	assert.Equal(t, 5, blocks)

	err := r.RunFor(context.Background(), b, time.Second)
	assert.True(t, errors.Is(err, graph.ErrInvalidState))
}

func TestRunForContext(t *testing.T) {
	r := graph.NewRuntime(constantGraph(t, 0.5), graph.WithBlockSize(480))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	assert.NoError(t, r.RunFor(ctx, backend.Clock{}, time.Hour))
	assert.Less(t, time.Since(start), time.Second)
}

func TestRunForInvalid(t *testing.T) {
	r := graph.NewRuntime(constantGraph(t, 0.5))
	err := r.RunFor(context.Background(), nil, 0)
	assert.True(t, errors.Is(err, graph.ErrInvalidArgument))
}

func TestDeviceError(t *testing.T) {
	errBusy := errors.New("device busy")
	r := graph.NewRuntime(constantGraph(t, 0.5))
	_, err := r.Run(context.Background(), backend.Func(func(backend.Config) (backend.Stream, error) {
		return nil, errBusy
	}))
	assert.True(t, errors.Is(err, graph.ErrDevice))
	assert.True(t, errors.Is(err, errBusy))
}

func TestParamNamed(t *testing.T) {
	b := graph.NewBuilder()
	gain, node := b.AddParam("gain", 0.5)
	b.AddOutput().Input(0).Connect(node.Output(0))
	r, err := b.BuildRuntime()
	assert.NoError(t, err)

	p, err := r.ParamNamed("gain")
	assert.NoError(t, err)
	// runtime owns a copy of the graph param
	assert.NotSame(t, gain, p)
	assert.Equal(t, gain.Name(), p.Name())
	assert.Equal(t, gain.Kind(), p.Kind())
	v, ok := p.Value()
	assert.True(t, ok)
	assert.Equal(t, message.NewFloat(0.5), v)
	_, err = r.ParamNamed("volume")
	assert.True(t, errors.Is(err, graph.ErrUnknownParam))
	assert.NotEmpty(t, r.ID())
}

func TestParam(t *testing.T) {
	p, err := graph.NewParam("x", nil)
	assert.NoError(t, err)
	assert.Equal(t, message.None, p.Kind())
	_, ok := p.Recv()
	assert.False(t, ok)

	assert.NoError(t, p.Send(5.0))
	v, ok := p.Recv()
	assert.True(t, ok)
	assert.Equal(t, message.NewFloat(5), v)
	_, ok = p.Recv()
	assert.False(t, ok)

	// last value is still observable
	v, ok = p.Value()
	assert.True(t, ok)
	assert.Equal(t, message.NewFloat(5), v)

	// bang round trips as trigger
	assert.NoError(t, p.Send(message.Trigger{}))
	v, ok = p.Get()
	assert.True(t, ok)
	assert.True(t, v.IsBang())
	rendered, err := message.Render(v)
	assert.NoError(t, err)
	assert.Equal(t, message.Trigger{}, rendered)
}

func TestTypedParam(t *testing.T) {
	p, err := graph.NewParam("n", 3)
	assert.NoError(t, err)
	assert.Equal(t, message.Int, p.Kind())

	assert.NoError(t, p.Send(4.0))
	v, ok := p.Recv()
	assert.True(t, ok)
	assert.Equal(t, message.NewInt(4), v)

	err = p.Send("four")
	assert.True(t, errors.Is(err, message.ErrType))
	err = p.Send([]byte{4})
	assert.True(t, errors.Is(err, message.ErrType))
}

// writeFunc is a stream that only writes.
type writeFunc func([][]float64) error

func (fn writeFunc) Read([][]float64) error    { return nil }
func (fn writeFunc) Write(b [][]float64) error { return fn(b) }
func (fn writeFunc) Close() error              { return nil }
