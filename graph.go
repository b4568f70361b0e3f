package graph

import (
	"sort"

	"pipelined.dev/graph/internal/engine"
	"pipelined.dev/graph/processor"
)

// Graph is a validated frozen graph. It's consumed by runtimes and can
// be executed by many of them. Every runtime owns copies of the graph
// params.
type Graph struct {
	id       string
	vertices []vertex
	edges    []engine.Edge
	inputs   []int
	outputs  []int
	params   map[string]*Param
}

// ID returns unique id of the graph.
func (g *Graph) ID() string {
	return g.id
}

// NumInputs returns the number of audio-rate inputs.
func (g *Graph) NumInputs() int {
	return len(g.inputs)
}

// NumOutputs returns the number of audio-rate outputs.
func (g *Graph) NumOutputs() int {
	return len(g.outputs)
}

// NumNodes returns the number of vertices.
func (g *Graph) NumNodes() int {
	return len(g.vertices)
}

// ParamNames returns names of the graph params in lexicographical order.
func (g *Graph) ParamNames() []string {
	return sortedNames(g.params)
}

// Param returns the param with provided name.
func (g *Graph) Param(name string) (*Param, bool) {
	p, ok := g.params[name]
	return p, ok
}

func sortedNames(params map[string]*Param) []string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// description returns engine description of the graph. Param vertices
// read values from params resolved by name, so params of the runtime
// survive graph replacement.
func (g *Graph) description(resolve func(*Param) *Param) engine.Description {
	d := engine.Description{
		Vertices: make([]engine.Vertex, len(g.vertices)),
		Edges:    g.edges,
		Inputs:   g.inputs,
		Outputs:  g.outputs,
	}
	for i, v := range g.vertices {
		alloc := v.alloc
		if v.param != nil {
			p := resolve(v.param)
			alloc = processor.Param{Name: p.name, Source: &p.cell}
		}
		d.Vertices[i] = engine.Vertex{
			Allocator: alloc,
			Constants: v.constants,
		}
	}
	return d
}
