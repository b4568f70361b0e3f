package graph

import (
	"errors"
	"strings"
)

// Graph structure errors.
var (
	// ErrDanglingNode is returned when node doesn't belong to the builder.
	ErrDanglingNode = errors.New("dangling node")
	// ErrPortRange is returned when port index is out of range.
	ErrPortRange = errors.New("port index out of range")
	// ErrUnknownPort is returned when node has no port with provided name.
	ErrUnknownPort = errors.New("unknown port")
	// ErrInputConnected is returned when input is already driven by an edge.
	ErrInputConnected = errors.New("input is already connected")
	// ErrCycle is returned when graph has a cycle without a register.
	ErrCycle = errors.New("cycle without register")
	// ErrDuplicateParam is returned when another param with the same name
	// is registered in the builder.
	ErrDuplicateParam = errors.New("duplicate param")
	// ErrInvalidArgument is returned when node configuration is invalid.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrOperand is returned when algebra operand cannot be resolved.
	ErrOperand = errors.New("invalid operand")
	// ErrLoadBuffer is returned when audio file cannot be loaded.
	ErrLoadBuffer = errors.New("cannot load buffer")
)

// Runtime errors.
var (
	// ErrDevice is returned when backend stream cannot be opened.
	ErrDevice = errors.New("device error")
	// ErrInvalidState is returned if runtime method cannot be executed at
	// this moment.
	ErrInvalidState = errors.New("invalid state")
	// ErrStopped is returned when handle is used after stop.
	ErrStopped = errors.New("runtime is stopped")
	// ErrIncompatibleGraph is returned when hot-reloaded graph has
	// different boundary ports.
	ErrIncompatibleGraph = errors.New("incompatible graph")
	// ErrUnknownParam is returned when runtime has no param with provided
	// name.
	ErrUnknownParam = errors.New("unknown param")
)

// GraphError enumerates every violation found in the graph.
type GraphError struct {
	Errs []error
}

func (e *GraphError) Error() string {
	s := make([]string, 0, len(e.Errs))
	for _, se := range e.Errs {
		s = append(s, se.Error())
	}
	return "invalid graph: " + strings.Join(s, "; ")
}

// Unwrap returns all violations, so errors.Is and errors.As match any of
// them.
func (e *GraphError) Unwrap() []error {
	return e.Errs
}

// errs accumulates errors.
type errs []error

// ret returns untyped nil if error list is empty.
func (e errs) ret() error {
	if len(e) > 0 {
		return &GraphError{Errs: append([]error(nil), e...)}
	}
	return nil
}
