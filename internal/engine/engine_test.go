package engine_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/graph/internal/engine"
	"pipelined.dev/graph/message"
	"pipelined.dev/graph/processor"
)

var ctx = processor.Context{SampleRate: 48000, BlockSize: 4}

func TestConstantToOutput(t *testing.T) {
	p, err := engine.Compile(engine.Description{
		Vertices: []engine.Vertex{
			{Allocator: processor.Constant{Value: message.NewFloat(0.75)}},
			{Allocator: processor.GraphOutput{}},
		},
		Edges:   []engine.Edge{{Src: 0, Dst: 1}},
		Outputs: []int{1},
	}, ctx)
	assert.NoError(t, err)
	assert.Equal(t, 4, p.Step())
	assert.Equal(t, 1, p.NumOutputs())

	out := [][]float64{make([]float64, 10)}
	assert.NoError(t, p.Process(len(out[0]), nil, out))
	for _, v := range out[0] {
		assert.Equal(t, 0.75, v)
	}
}

func TestInputsAndConstants(t *testing.T) {
	// out = in * 2, where 2 is a constant of unconnected input
	p, err := engine.Compile(engine.Description{
		Vertices: []engine.Vertex{
			{Allocator: processor.GraphInput{}},
			{
				Allocator: processor.Binary{Op: processor.Mul},
				Constants: map[int]message.Message{1: message.NewFloat(2)},
			},
			{Allocator: processor.GraphOutput{}},
		},
		Edges: []engine.Edge{
			{Src: 0, Dst: 1},
			{Src: 1, Dst: 2},
		},
		Inputs:  []int{0},
		Outputs: []int{2},
	}, ctx)
	assert.NoError(t, err)

	out := [][]float64{make([]float64, 6)}
	assert.NoError(t, p.Process(6, [][]float64{{1, 2, 3, 4, 5, 6}}, out))
	assert.Equal(t, []float64{2, 4, 6, 8, 10, 12}, out[0])
}

func TestConnectedInputIgnoresConstant(t *testing.T) {
	p, err := engine.Compile(engine.Description{
		Vertices: []engine.Vertex{
			{Allocator: processor.Constant{Value: message.NewFloat(1)}},
			{Allocator: processor.GraphOutput{}, Constants: map[int]message.Message{0: message.NewFloat(5)}},
		},
		Edges:   []engine.Edge{{Src: 0, Dst: 1}},
		Outputs: []int{1},
	}, ctx)
	assert.NoError(t, err)
	out := [][]float64{make([]float64, 2)}
	assert.NoError(t, p.Process(len(out[0]), nil, out))
	assert.Equal(t, []float64{1, 1}, out[0])
}

func TestFeedbackThroughRegister(t *testing.T) {
	// counter: reg -> add(+1) -> reg
	p, err := engine.Compile(engine.Description{
		Vertices: []engine.Vertex{
			{Allocator: processor.Register{}},
			{
				Allocator: processor.Binary{Op: processor.Add},
				Constants: map[int]message.Message{1: message.NewFloat(1)},
			},
			{Allocator: processor.GraphOutput{}},
		},
		Edges: []engine.Edge{
			{Src: 0, Dst: 1},
			{Src: 1, Dst: 0},
			{Src: 0, Dst: 2},
		},
		Outputs: []int{2},
	}, ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, p.Step())

	out := [][]float64{make([]float64, 5)}
	assert.NoError(t, p.Process(len(out[0]), nil, out))
	assert.Equal(t, []float64{0, 1, 2, 3, 4}, out[0])
}

func TestCycleWithoutDelay(t *testing.T) {
	_, err := engine.Compile(engine.Description{
		Vertices: []engine.Vertex{
			{Allocator: processor.Unary{Op: processor.Neg}},
			{Allocator: processor.Unary{Op: processor.Neg}},
		},
		Edges: []engine.Edge{
			{Src: 0, Dst: 1},
			{Src: 1, Dst: 0},
		},
	}, ctx)
	assert.True(t, errors.Is(err, engine.ErrCycle))
}

func TestInvalidDescription(t *testing.T) {
	tests := []struct {
		name string
		d    engine.Description
		ctx  processor.Context
	}{
		{
			name: "unknown vertex",
			d:    engine.Description{Edges: []engine.Edge{{Src: 0, Dst: 1}}},
			ctx:  ctx,
		},
		{
			name: "unknown input",
			d: engine.Description{
				Vertices: []engine.Vertex{
					{Allocator: processor.SineOsc{}},
					{Allocator: processor.SineOsc{}},
				},
				Edges: []engine.Edge{{Src: 0, Dst: 1, DstIn: 5}},
			},
			ctx: ctx,
		},
		{
			name: "connected twice",
			d: engine.Description{
				Vertices: []engine.Vertex{
					{Allocator: processor.SineOsc{}},
					{Allocator: processor.GraphOutput{}},
				},
				Edges: []engine.Edge{{Src: 0, Dst: 1}, {Src: 0, Dst: 1}},
			},
			ctx: ctx,
		},
		{
			name: "block size",
			ctx:  processor.Context{SampleRate: 48000},
		},
		{
			name: "allocation",
			d: engine.Description{
				Vertices: []engine.Vertex{{Allocator: processor.Select{}}},
			},
			ctx: ctx,
		},
	}
	for _, test := range tests {
		_, err := engine.Compile(test.d, test.ctx)
		assert.Error(t, err, test.name)
	}
}

func TestSort(t *testing.T) {
	order, err := engine.Sort(3, []engine.Edge{{Src: 2, Dst: 1}, {Src: 1, Dst: 0}}, nil)
	assert.NoError(t, err)
	assert.Equal(t, []int{2, 1, 0}, order)
}

func TestProcessMismatch(t *testing.T) {
	p, err := engine.Compile(engine.Description{}, ctx)
	assert.NoError(t, err)
	assert.Error(t, p.Process(1, nil, [][]float64{{0}}))

	p, err = engine.Compile(engine.Description{
		Vertices: []engine.Vertex{{Allocator: processor.GraphOutput{}}},
		Outputs:  []int{0},
	}, ctx)
	assert.NoError(t, err)
	assert.Error(t, p.Process(4, nil, [][]float64{{0, 0}}))
}

func TestProcessWithoutOutputs(t *testing.T) {
	var reported []error
	c := ctx
	c.Report = func(err error) { reported = append(reported, err) }
	p, err := engine.Compile(engine.Description{
		Vertices: []engine.Vertex{
			{Allocator: processor.Constant{Value: message.NewFloat(math.Inf(1))}},
			{Allocator: processor.CheckFinite{Context: "inf"}},
		},
		Edges: []engine.Edge{{Src: 0, Dst: 1}},
	}, c)
	assert.NoError(t, err)
	assert.Equal(t, 0, p.NumOutputs())

	assert.NoError(t, p.Process(8, nil, nil))
	assert.Len(t, reported, 1)
	assert.True(t, errors.Is(reported[0], processor.ErrNonFinite))
}
