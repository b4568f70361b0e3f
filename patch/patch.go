// Package patch builds graphs from YAML patch files.
//
// A patch declares params, nodes and connections:
//
//	params:
//	  - {name: freq, value: 440}
//	nodes:
//	  - {id: osc, kind: sine_osc, options: {frequency: 220}}
//	  - {id: amp, kind: constant, value: 0.2}
//	  - {id: mul, kind: mul}
//	  - {id: out, kind: output}
//	connections:
//	  - {from: osc, to: mul.0}
//	  - {from: amp, to: mul.1}
//	  - {from: mul, to: out}
//	  - {from: $freq, to: osc.frequency}
//
// Ports are referenced by index or by name. A bare node id refers to the
// first port. Params are referenced with $ prefix. Bang literals are
// written with !bang tag.
package patch

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"pipelined.dev/graph"
	"pipelined.dev/graph/message"
)

// ErrInvalidPatch is returned when patch has invalid shape or refers to
// unknown entries.
var ErrInvalidPatch = errors.New("invalid patch")

type (
	// Patch is a declarative graph description.
	Patch struct {
		Params      []Param      `yaml:"params"`
		Nodes       []Node       `yaml:"nodes"`
		Connections []Connection `yaml:"connections"`
	}

	// Param declares a named param. Param without value is untyped.
	Param struct {
		Name  string `yaml:"name"`
		Value *Value `yaml:"value"`
	}

	// Node declares a vertex of the graph.
	Node struct {
		ID   string `yaml:"id"`
		Kind string `yaml:"kind"`
		// Value of constant and message nodes.
		Value *Value `yaml:"value"`
		// Options are numeric constants of inputs by name.
		Options map[string]float64 `yaml:"options"`
		// Inputs are constants of inputs by name of any message type.
		Inputs map[string]Value `yaml:"inputs"`
		// Size is the number of ports of select and merge nodes.
		Size int `yaml:"size"`
		// Path of the audio file of buffer nodes.
		Path string `yaml:"path"`
		// Context of check_finite nodes.
		Context string `yaml:"context"`
	}

	// Connection declares an edge.
	Connection struct {
		From string `yaml:"from"`
		To   string `yaml:"to"`
	}

	// Value is a message literal.
	Value struct {
		v interface{}
	}
)

// UnmarshalYAML implements yaml.Unmarshaler.
func (v *Value) UnmarshalYAML(n *yaml.Node) error {
	if n.Tag == "!bang" {
		v.v = message.Trigger{}
		return nil
	}
	return n.Decode(&v.v)
}

// Interface returns the value to be coerced into the message.
func (v *Value) Interface() interface{} {
	if v == nil {
		return nil
	}
	return v.v
}

// Load reads the patch file.
func Load(path string) (*Patch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	p, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Decode parses the patch and validates its shape. Unknown fields are
// rejected.
func Decode(r io.Reader) (*Patch, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var p Patch
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPatch, err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Patch) validate() error {
	var errs []error
	params := make(map[string]struct{}, len(p.Params))
	for i, param := range p.Params {
		if param.Name == "" {
			errs = append(errs, fmt.Errorf("%w: params[%d] has no name", ErrInvalidPatch, i))
			continue
		}
		if _, ok := params[param.Name]; ok {
			errs = append(errs, fmt.Errorf("%w: duplicate param %q", ErrInvalidPatch, param.Name))
		}
		params[param.Name] = struct{}{}
	}
	ids := make(map[string]struct{}, len(p.Nodes))
	for i, n := range p.Nodes {
		switch {
		case n.ID == "":
			errs = append(errs, fmt.Errorf("%w: nodes[%d] has no id", ErrInvalidPatch, i))
		case strings.ContainsAny(n.ID, ".$"):
			errs = append(errs, fmt.Errorf("%w: node id %q contains reserved characters", ErrInvalidPatch, n.ID))
		}
		if n.Kind == "" {
			errs = append(errs, fmt.Errorf("%w: node %q has no kind", ErrInvalidPatch, n.ID))
		}
		if _, ok := ids[n.ID]; ok && n.ID != "" {
			errs = append(errs, fmt.Errorf("%w: duplicate node %q", ErrInvalidPatch, n.ID))
		}
		ids[n.ID] = struct{}{}
	}
	for i, c := range p.Connections {
		if c.From == "" || c.To == "" {
			errs = append(errs, fmt.Errorf("%w: connections[%d] needs both from and to", ErrInvalidPatch, i))
		}
	}
	return errors.Join(errs...)
}

// Build adds params, nodes and connections of the patch to the builder.
// It returns the table of created nodes by id. Errors name the offending
// entries; construction errors are also accumulated by the builder.
func (p *Patch) Build(b *graph.Builder) (map[string]graph.Node, error) {
	var errs []error
	params := make(map[string]graph.Node, len(p.Params))
	for _, param := range p.Params {
		_, n := b.AddParam(param.Name, param.Value.Interface())
		params[param.Name] = n
	}

	nodes := make(map[string]graph.Node, len(p.Nodes))
	for _, spec := range p.Nodes {
		factory, ok := kinds[spec.Kind]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: node %q has unknown kind %q", ErrInvalidPatch, spec.ID, spec.Kind))
			continue
		}
		n := factory(b, spec)
		for _, name := range sortedKeys(spec.Inputs) {
			v := spec.Inputs[name]
			if err := n.InputNamed(name).Set(v.Interface()); err != nil {
				errs = append(errs, fmt.Errorf("node %q: %w", spec.ID, err))
			}
		}
		nodes[spec.ID] = n
	}

	for _, c := range p.Connections {
		out, err := output(c.From, nodes, params)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		in, err := input(c.To, nodes)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := out.Connect(in); err != nil {
			errs = append(errs, fmt.Errorf("connection %s -> %s: %w", c.From, c.To, err))
		}
	}
	return nodes, errors.Join(errs...)
}

// Graph builds the patch with a new builder.
func (p *Patch) Graph(opts ...graph.BuilderOption) (*graph.Graph, error) {
	b := graph.NewBuilder(opts...)
	if _, err := p.Build(b); err != nil {
		return nil, err
	}
	return b.Build()
}

// output resolves the source reference of the connection.
func output(ref string, nodes, params map[string]graph.Node) (graph.Output, error) {
	if name, ok := strings.CutPrefix(ref, "$"); ok {
		n, ok := params[name]
		if !ok {
			return graph.Output{}, fmt.Errorf("%w: unknown param %q", ErrInvalidPatch, ref)
		}
		return n.Output(0), nil
	}
	id, port, hasPort := strings.Cut(ref, ".")
	n, ok := nodes[id]
	if !ok {
		return graph.Output{}, fmt.Errorf("%w: unknown node %q", ErrInvalidPatch, ref)
	}
	if !hasPort {
		return n.Output(0), nil
	}
	if i, err := strconv.Atoi(port); err == nil {
		return n.Output(i), nil
	}
	return n.OutputNamed(port), nil
}

// input resolves the destination reference of the connection.
func input(ref string, nodes map[string]graph.Node) (graph.Input, error) {
	id, port, hasPort := strings.Cut(ref, ".")
	n, ok := nodes[id]
	if !ok {
		return graph.Input{}, fmt.Errorf("%w: unknown node %q", ErrInvalidPatch, ref)
	}
	if !hasPort {
		return n.Input(0), nil
	}
	if i, err := strconv.Atoi(port); err == nil {
		return n.Input(i), nil
	}
	return n.InputNamed(port), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
