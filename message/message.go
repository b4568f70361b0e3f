// Package message provides the control-rate value carried over graph
// connections and parameters.
//
// Message is a closed tagged union. Values coming from outside of the graph
// (literals passed to constructors, parameter updates) are converted with
// Coerce and converted back with Render.
package message

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Kind identifies the active variant of a message.
type Kind uint8

// Message kinds. None is the reserved "no value" sentinel: event streams
// carry it on samples without an event.
const (
	None Kind = iota
	Bang
	Float
	Int
	Bool
	String
)

var kindNames = [...]string{
	None:   "None",
	Bang:   "Bang",
	Float:  "Float",
	Int:    "Int",
	Bool:   "Bool",
	String: "String",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// ErrType is returned when a value doesn't match any message variant or
// a message cannot be represented as requested.
var ErrType = errors.New("unsupported message type")

// Trigger is the external representation of Bang.
type Trigger struct{}

// Message is a dynamically typed control value. Zero value is None.
type Message struct {
	kind Kind
	num  float64
	i    int64
	s    string
}

// NewBang returns a trigger message.
func NewBang() Message {
	return Message{kind: Bang}
}

// NewFloat returns a float message.
func NewFloat(f float64) Message {
	return Message{kind: Float, num: f}
}

// NewInt returns an integer message.
func NewInt(i int64) Message {
	return Message{kind: Int, i: i}
}

// NewBool returns a boolean message.
func NewBool(b bool) Message {
	m := Message{kind: Bool}
	if b {
		m.i = 1
	}
	return m
}

// NewString returns a string message.
func NewString(s string) Message {
	return Message{kind: String, s: s}
}

// Kind returns the active variant.
func (m Message) Kind() Kind {
	return m.kind
}

// IsNone returns true if message carries no value.
func (m Message) IsNone() bool {
	return m.kind == None
}

// IsBang returns true if message is a trigger.
func (m Message) IsBang() bool {
	return m.kind == Bang
}

// Float returns the payload of a Float message.
func (m Message) Float() (float64, bool) {
	return m.num, m.kind == Float
}

// Int returns the payload of an Int message.
func (m Message) Int() (int64, bool) {
	return m.i, m.kind == Int
}

// Bool returns the payload of a Bool message.
func (m Message) Bool() (bool, bool) {
	return m.i != 0, m.kind == Bool
}

// Text returns the payload of a String message.
func (m Message) Text() (string, bool) {
	return m.s, m.kind == String
}

// Number returns numeric interpretation of the message. Float, Int and
// Bool messages are numeric, other kinds are not.
func (m Message) Number() (float64, bool) {
	switch m.kind {
	case Float:
		return m.num, true
	case Int:
		return float64(m.i), true
	case Bool:
		return float64(m.i), true
	}
	return 0, false
}

// Convert returns the message converted to the provided kind. Only
// lossless conversions between numeric kinds are allowed.
func (m Message) Convert(k Kind) (Message, error) {
	if m.kind == k {
		return m, nil
	}
	switch k {
	case Float:
		if v, ok := m.Number(); ok {
			return NewFloat(v), nil
		}
	case Int:
		switch m.kind {
		case Float:
			if m.num == math.Trunc(m.num) && m.num >= math.MinInt64 && m.num < math.MaxInt64 {
				return NewInt(int64(m.num)), nil
			}
		case Bool:
			return NewInt(m.i), nil
		}
	case Bool:
		if v, ok := m.Number(); ok {
			return NewBool(v != 0), nil
		}
	}
	return Message{}, fmt.Errorf("%w: cannot convert %v to %v", ErrType, m, k)
}

func (m Message) String() string {
	switch m.kind {
	case Bang:
		return "Bang"
	case Float:
		return "Float(" + strconv.FormatFloat(m.num, 'g', -1, 64) + ")"
	case Int:
		return "Int(" + strconv.FormatInt(m.i, 10) + ")"
	case Bool:
		return "Bool(" + strconv.FormatBool(m.i != 0) + ")"
	case String:
		return "String(" + m.s + ")"
	}
	return "None"
}
