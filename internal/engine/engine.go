// Package engine compiles graph descriptions into programs that can be
// executed on the audio goroutine.
package engine

import (
	"errors"
	"fmt"

	"pipelined.dev/graph/message"
	"pipelined.dev/graph/processor"
)

// ErrCycle is returned when the graph has a cycle that doesn't pass
// through a delay vertex.
var ErrCycle = errors.New("cycle without delay")

type (
	// Description is a plain description of the graph.
	Description struct {
		Vertices []Vertex
		Edges    []Edge
		// Inputs and Outputs are indices of boundary vertices in order of
		// their creation.
		Inputs  []int
		Outputs []int
	}

	// Vertex is a node of the graph.
	Vertex struct {
		processor.Allocator
		// Constants are values of unconnected inputs by input index.
		Constants map[int]message.Message
	}

	// Edge connects the output of one vertex to the input of another.
	Edge struct {
		Src, SrcOut int
		Dst, DstIn  int
	}

	// Program is a compiled graph. It's not safe for concurrent use.
	Program struct {
		step     int
		order    []int
		vertices []vertex
		delays   []int
		inputs   []int
		outputs  []int
	}

	vertex struct {
		kind string
		processor.Processor
		in  processor.Inputs
		out processor.Outputs
	}
)

// Compile allocates processors of all vertices and binds their buffers.
// Graphs with delay vertices are executed one sample per step, otherwise
// the step is the block size of the context.
func Compile(d Description, ctx processor.Context) (*Program, error) {
	if ctx.BlockSize <= 0 {
		return nil, fmt.Errorf("invalid block size: %d", ctx.BlockSize)
	}
	if ctx.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %v", ctx.SampleRate)
	}
	if ctx.Rand == nil {
		ctx.Rand = ctx.GetRand()
	}

	specs := make([]processor.Spec, len(d.Vertices))
	p := Program{
		step:     ctx.BlockSize,
		vertices: make([]vertex, len(d.Vertices)),
		inputs:   d.Inputs,
		outputs:  d.Outputs,
	}
	for i, v := range d.Vertices {
		specs[i] = v.Spec()
		if specs[i].Delay {
			p.delays = append(p.delays, i)
			p.step = 1
		}
	}
	if err := validate(d, specs); err != nil {
		return nil, err
	}
	order, err := Sort(len(d.Vertices), d.Edges, func(i int) bool { return specs[i].Delay })
	if err != nil {
		return nil, err
	}
	p.order = order

	for i, v := range d.Vertices {
		proc, err := v.Allocate(ctx)
		if err != nil {
			return nil, fmt.Errorf("error allocating %s vertex %d: %w", specs[i].Kind, i, err)
		}
		out := make(processor.Outputs, len(specs[i].Outputs))
		for j := range out {
			out[j] = make([]message.Message, p.step)
		}
		p.vertices[i] = vertex{
			kind:      specs[i].Kind,
			Processor: proc,
			in:        make(processor.Inputs, len(specs[i].Inputs)),
			out:       out,
		}
	}

	// connected inputs share buffers with outputs
	for _, e := range d.Edges {
		in := processor.NewIn(specs[e.Dst].Inputs[e.DstIn].Default)
		in.Buffer = p.vertices[e.Src].out[e.SrcOut]
		p.vertices[e.Dst].in[e.DstIn] = in
	}
	// unconnected inputs are constant
	for i, v := range d.Vertices {
		for j, port := range specs[i].Inputs {
			if p.vertices[i].in[j] != nil {
				continue
			}
			m, ok := v.Constants[j]
			if !ok {
				m = port.Default
			}
			in := processor.NewIn(m)
			in.Buffer = make([]message.Message, p.step)
			for k := range in.Buffer {
				in.Buffer[k] = m
			}
			p.vertices[i].in[j] = in
		}
	}
	return &p, nil
}

func validate(d Description, specs []processor.Spec) error {
	n := len(d.Vertices)
	driven := make(map[[2]int]struct{}, len(d.Edges))
	for _, e := range d.Edges {
		if e.Src < 0 || e.Src >= n || e.Dst < 0 || e.Dst >= n {
			return fmt.Errorf("edge %v references unknown vertex", e)
		}
		if e.SrcOut < 0 || e.SrcOut >= len(specs[e.Src].Outputs) {
			return fmt.Errorf("edge %v references unknown output", e)
		}
		if e.DstIn < 0 || e.DstIn >= len(specs[e.Dst].Inputs) {
			return fmt.Errorf("edge %v references unknown input", e)
		}
		key := [2]int{e.Dst, e.DstIn}
		if _, ok := driven[key]; ok {
			return fmt.Errorf("input %d of vertex %d is connected twice", e.DstIn, e.Dst)
		}
		driven[key] = struct{}{}
	}
	for _, idx := range append(append([]int{}, d.Inputs...), d.Outputs...) {
		if idx < 0 || idx >= n {
			return fmt.Errorf("boundary vertex %d doesn't exist", idx)
		}
	}
	return nil
}

// Sort returns vertices in topological order. Edges into vertices for
// which skip returns true are ignored.
func Sort(n int, edges []Edge, skip func(int) bool) ([]int, error) {
	indegree := make([]int, n)
	next := make([][]int, n)
	for _, e := range edges {
		if skip != nil && skip(e.Dst) {
			continue
		}
		indegree[e.Dst]++
		next[e.Src] = append(next[e.Src], e.Dst)
	}
	order := make([]int, 0, n)
	queue := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if indegree[i] == 0 {
			queue = append(queue, i)
		}
	}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		order = append(order, v)
		for _, w := range next[v] {
			indegree[w]--
			if indegree[w] == 0 {
				queue = append(queue, w)
			}
		}
	}
	if len(order) != n {
		return nil, ErrCycle
	}
	return order, nil
}

// NumInputs returns the number of graph inputs.
func (p *Program) NumInputs() int {
	return len(p.inputs)
}

// NumOutputs returns the number of graph outputs.
func (p *Program) NumOutputs() int {
	return len(p.outputs)
}

// Step returns the number of samples processed at once.
func (p *Program) Step() int {
	return p.step
}

// Process executes the program for provided number of frames. Every input
// and output channel must have at least that many frames. Programs without
// outputs are still executed. Processing continues after processor errors,
// the first one is returned. Process doesn't allocate unless a processor
// returns an error.
func (p *Program) Process(frames int, in, out [][]float64) error {
	if len(out) != len(p.outputs) || len(in) != len(p.inputs) {
		return fmt.Errorf("program has %d inputs and %d outputs, got %d and %d", len(p.inputs), len(p.outputs), len(in), len(out))
	}
	for _, buffers := range [][][]float64{in, out} {
		for c := range buffers {
			if len(buffers[c]) < frames {
				return fmt.Errorf("channel %d has %d frames, need %d", c, len(buffers[c]), frames)
			}
		}
	}
	var first error
	for off := 0; off < frames; off += p.step {
		n := p.step
		if off+n > frames {
			n = frames - off
		}
		// graph inputs
		for c, idx := range p.inputs {
			buf := p.vertices[idx].out[0]
			for i := 0; i < n; i++ {
				buf[i] = message.NewFloat(in[c][off+i])
			}
		}
		for _, idx := range p.order {
			v := &p.vertices[idx]
			if err := v.ProcessFunc(n, v.in, v.out); err != nil && first == nil {
				first = fmt.Errorf("error processing %s vertex %d: %w", v.kind, idx, err)
			}
		}
		for _, idx := range p.delays {
			if v := &p.vertices[idx]; v.LatchFunc != nil {
				v.LatchFunc(n, v.in)
			}
		}
		// graph outputs
		for c, idx := range p.outputs {
			src := p.vertices[idx].in[0]
			for i := 0; i < n; i++ {
				out[c][off+i] = src.Float(i)
			}
		}
	}
	return first
}
