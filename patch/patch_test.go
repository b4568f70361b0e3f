package patch_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/graph"
	"pipelined.dev/graph/patch"
)

const example = `
params:
  - {name: gain, value: 0.5}
nodes:
  - {id: two, kind: constant, value: 2}
  - {id: three, kind: constant, value: 3.0}
  - {id: sub, kind: sub}
  - {id: mul, kind: mul}
  - {id: osc, kind: sine_osc, options: {frequency: 220}}
  - {id: out, kind: output}
  - {id: silent, kind: output}
connections:
  - {from: two, to: sub.0}
  - {from: three, to: sub.b}
  - {from: sub.out, to: mul}
  - {from: $gain, to: mul.1}
  - {from: mul.0, to: out}
`

type sink struct {
	channels [][]float64
}

func (s *sink) Write(frames [][]float64) error {
	if s.channels == nil {
		s.channels = make([][]float64, len(frames))
	}
	for c := range frames {
		s.channels[c] = append(s.channels[c], frames[c]...)
	}
	return nil
}

func (s *sink) Close() error { return nil }

func render(t *testing.T, g *graph.Graph, frames int) [][]float64 {
	t.Helper()
	var s sink
	r := graph.NewRuntime(g)
	require.NoError(t, r.RenderTo(&s, time.Duration(frames)*time.Millisecond, 1000, 4))
	return s.channels
}

func TestDecodeAndBuild(t *testing.T) {
	p, err := patch.Decode(strings.NewReader(example))
	require.NoError(t, err)
	assert.Len(t, p.Nodes, 7)
	assert.Len(t, p.Connections, 5)

	b := graph.NewBuilder()
	nodes, err := p.Build(b)
	require.NoError(t, err)
	assert.Equal(t, "sine_osc", nodes["osc"].Kind())
	assert.Equal(t, "sub", nodes["sub"].Kind())

	g, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"gain"}, g.ParamNames())
	assert.Equal(t, 2, g.NumOutputs())

	out := render(t, g, 3)
	// (2-3)*0.5
	assert.Equal(t, []float64{-0.5, -0.5, -0.5}, out[0])
	assert.Equal(t, []float64{0, 0, 0}, out[1])
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(example), 0o644))
	p, err := patch.Load(path)
	require.NoError(t, err)
	g, err := p.Graph()
	require.NoError(t, err)
	assert.Equal(t, 1, len(g.ParamNames()))

	_, err = patch.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestMessages(t *testing.T) {
	const doc = `
nodes:
  - id: metro
    kind: metro
    options:
      period: 0.002
  - id: msg
    kind: message
    value: !bang
  - id: count
    kind: counter
  - id: sel
    kind: select
    size: 2
    inputs:
      index: 1
  - id: hold
    kind: sample_and_hold
  - id: out
    kind: output
connections:
  - {from: metro, to: msg.trigger}
  - {from: msg, to: count.trigger}
  - {from: count, to: sel.in}
  - {from: sel.out1, to: hold.in}
  - {from: metro, to: hold.trigger}
  - {from: hold, to: out}
`
	p, err := patch.Decode(strings.NewReader(doc))
	require.NoError(t, err)
	g, err := p.Graph()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 2, 2}, render(t, g, 4)[0])
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		msg  string
	}{
		{
			name: "unknown field",
			doc:  "nodes: [{id: a, kind: output, colour: red}]",
			msg:  "colour",
		},
		{
			name: "missing id",
			doc:  "nodes: [{kind: output}]",
			msg:  "nodes[0] has no id",
		},
		{
			name: "duplicate id",
			doc:  "nodes: [{id: a, kind: output}, {id: a, kind: input}]",
			msg:  `duplicate node "a"`,
		},
		{
			name: "reserved id",
			doc:  "nodes: [{id: a.b, kind: output}]",
			msg:  "reserved",
		},
		{
			name: "duplicate param",
			doc:  "params: [{name: x}, {name: x}]",
			msg:  `duplicate param "x"`,
		},
		{
			name: "connection",
			doc:  "connections: [{from: a}]",
			msg:  "connections[0]",
		},
	}
	for _, test := range tests {
		_, err := patch.Decode(strings.NewReader(test.doc))
		assert.True(t, errors.Is(err, patch.ErrInvalidPatch), test.name)
		assert.Contains(t, err.Error(), test.msg, test.name)
	}

	p, err := patch.Decode(strings.NewReader(""))
	assert.NoError(t, err)
	assert.Empty(t, p.Nodes)
}

func TestBuildErrors(t *testing.T) {
	const doc = `
nodes:
  - {id: a, kind: wobbler}
  - {id: osc, kind: sine_osc, options: {cutoff: 10}}
  - {id: out, kind: output}
connections:
  - {from: ghost, to: out}
  - {from: $nothing, to: out}
  - {from: osc, to: phantom.0}
  - {from: osc.left, to: out}
`
	p, err := patch.Decode(strings.NewReader(doc))
	require.NoError(t, err)
	b := graph.NewBuilder()
	_, err = p.Build(b)
	assert.True(t, errors.Is(err, patch.ErrInvalidPatch))
	assert.True(t, errors.Is(err, graph.ErrUnknownPort))
	for _, name := range []string{"wobbler", "ghost", "$nothing", "phantom"} {
		assert.Contains(t, err.Error(), name)
	}

	_, err = b.Build()
	assert.True(t, errors.Is(err, graph.ErrInvalidArgument))
}

func TestKinds(t *testing.T) {
	kinds := patch.Kinds()
	for _, k := range []string{"add", "biquad_lowpass", "buffer", "constant", "freq2midi", "moog_ladder", "output", "sine_osc", "smooth"} {
		assert.Contains(t, kinds, k)
	}
}
