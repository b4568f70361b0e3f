package graph

import (
	"fmt"

	"pipelined.dev/graph/internal/cell"
	"pipelined.dev/graph/message"
)

// Param is a named live value. It has one producer, Send or Set, and one
// consumer, Recv or Get. Values are not queued: a new value overwrites
// the unconsumed one.
//
// Once the param is bound into a running graph, the audio goroutine is its
// consumer. Use Value to observe the latest value from the control code.
type Param struct {
	name string
	kind message.Kind
	cell cell.Cell
}

// NewParam creates a param. If initial value is not nil, the param is
// typed: subsequent values are converted to the kind of the initial value
// or rejected. The initial value is published immediately.
func NewParam(name string, initial interface{}) (*Param, error) {
	p := Param{name: name}
	if initial == nil {
		return &p, nil
	}
	m, err := message.Coerce(initial)
	if err != nil {
		return nil, fmt.Errorf("param %q initial value: %w", name, err)
	}
	p.kind = m.Kind()
	p.cell.Store(m)
	return &p, nil
}

// Name returns the name of the param.
func (p *Param) Name() string {
	return p.name
}

// Kind returns the kind of typed param or message.None if the param is
// untyped.
func (p *Param) Kind() message.Kind {
	return p.kind
}

// Send publishes a new value.
func (p *Param) Send(v interface{}) error {
	m, err := message.Coerce(v)
	if err != nil {
		return fmt.Errorf("param %q: %w", p.name, err)
	}
	if p.kind != message.None {
		if m, err = m.Convert(p.kind); err != nil {
			return fmt.Errorf("param %q: %w", p.name, err)
		}
	}
	p.cell.Store(m)
	return nil
}

// Set is an alias for Send.
func (p *Param) Set(v interface{}) error {
	return p.Send(v)
}

// Recv returns the latest unread value. It returns false if no value was
// published since the last read.
func (p *Param) Recv() (message.Message, bool) {
	return p.cell.Take()
}

// Get is an alias for Recv.
func (p *Param) Get() (message.Message, bool) {
	return p.Recv()
}

// Value returns the latest published value without consuming it.
func (p *Param) Value() (message.Message, bool) {
	return p.cell.Peek()
}

func (p *Param) String() string {
	if m, ok := p.Value(); ok {
		return fmt.Sprintf("Param(%s=%v)", p.name, m)
	}
	return fmt.Sprintf("Param(%s)", p.name)
}

// clone returns an unbound param with the same name, kind and latest
// value.
func (p *Param) clone() *Param {
	c := Param{name: p.name, kind: p.kind}
	if m, ok := p.cell.Peek(); ok {
		c.cell.Store(m)
	}
	return &c
}

func (*Param) operand() {}
