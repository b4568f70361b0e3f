package graph

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"

	"pipelined.dev/graph/internal/engine"
	"pipelined.dev/graph/processor"
)

// WriteDot writes Graphviz representation of the builder to the file.
func (b *Builder) WriteDot(path string) error {
	return writeDotFile(path, b.WriteDotTo)
}

// WriteDotTo writes Graphviz representation of the builder.
func (b *Builder) WriteDotTo(w io.Writer) error {
	return writeDot(w, b.id, b.vertices, b.edges)
}

// WriteDot writes Graphviz representation of the graph to the file.
func (g *Graph) WriteDot(path string) error {
	return writeDotFile(path, g.WriteDotTo)
}

// WriteDotTo writes Graphviz representation of the graph.
func (g *Graph) WriteDotTo(w io.Writer) error {
	return writeDot(w, g.id, g.vertices, g.edges)
}

func writeDotFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeDot(w io.Writer, id string, vertices []vertex, edges []engine.Edge) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "digraph %q {\n", id)
	for i, v := range vertices {
		fmt.Fprintf(bw, "  v%d [label=%q];\n", i, label(v))
	}
	for _, e := range edges {
		src, dst := vertices[e.Src].spec, vertices[e.Dst].spec
		fmt.Fprintf(bw, "  v%d -> v%d [label=%q];\n", e.Src, e.Dst, src.Outputs[e.SrcOut]+" -> "+dst.Inputs[e.DstIn].Name)
	}
	fmt.Fprintln(bw, "}")
	return bw.Flush()
}

func label(v vertex) string {
	s := v.spec.Kind
	switch a := v.alloc.(type) {
	case processor.Constant:
		s += " " + a.Value.String()
	case processor.Message:
		s += " " + a.Value.String()
	case processor.ConstantMessage:
		s += " " + a.Value.String()
	case processor.CheckFinite:
		s += " " + a.Context
	}
	if v.param != nil {
		s += " " + v.param.name
	}
	idx := make([]int, 0, len(v.constants))
	for i := range v.constants {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	for _, i := range idx {
		s += fmt.Sprintf("\n%s=%v", v.spec.Inputs[i].Name, v.constants[i])
	}
	return s
}
