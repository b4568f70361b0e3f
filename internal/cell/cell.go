// Package cell provides a wait-free single-slot cell to pass the latest
// message between goroutines.
package cell

import (
	"sync/atomic"

	"pipelined.dev/graph/message"
)

// Cell holds the latest unconsumed message. Store and Take never block.
// Stored values overwrite unconsumed ones, there is no history.
type Cell struct {
	slot atomic.Pointer[message.Message]
	last atomic.Pointer[message.Message]
}

// Store publishes a message. It allocates, so it must be called outside
// of the audio goroutine.
func (c *Cell) Store(m message.Message) {
	p := &m
	c.last.Store(p)
	c.slot.Store(p)
}

// Take consumes the latest message if it wasn't consumed yet.
func (c *Cell) Take() (message.Message, bool) {
	if p := c.slot.Swap(nil); p != nil {
		return *p, true
	}
	return message.Message{}, false
}

// Peek returns the latest published message without consuming it.
func (c *Cell) Peek() (message.Message, bool) {
	if p := c.last.Load(); p != nil {
		return *p, true
	}
	return message.Message{}, false
}
