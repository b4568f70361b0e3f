// Package backend defines audio streams the runtime is driven by.
package backend

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrClosed is returned when stream is used after Close.
var ErrClosed = errors.New("stream is closed")

type (
	// Config of the stream.
	Config struct {
		SampleRate int
		BlockSize  int
		Inputs     int
		Outputs    int
	}

	// Backend opens audio streams.
	Backend interface {
		Open(Config) (Stream, error)
	}

	// Stream exchanges blocks of deinterleaved samples with the device.
	// Read and Write block until the device is ready for the next block,
	// so the stream paces the runtime.
	Stream interface {
		Read(in [][]float64) error
		Write(out [][]float64) error
		Close() error
	}

	// Func is an adapter to use functions as backends.
	Func func(Config) (Stream, error)
)

// Open implements Backend.
func (fn Func) Open(c Config) (Stream, error) {
	return fn(c)
}

// Validate returns an error if config is not usable.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", c.SampleRate)
	}
	if c.BlockSize <= 0 {
		return fmt.Errorf("invalid block size: %d", c.BlockSize)
	}
	if c.Inputs < 0 || c.Outputs < 0 {
		return fmt.Errorf("invalid channels: %d inputs %d outputs", c.Inputs, c.Outputs)
	}
	return nil
}

// BlockDuration returns the duration of a single block.
func (c Config) BlockDuration() time.Duration {
	return time.Duration(c.BlockSize) * time.Second / time.Duration(c.SampleRate)
}

// Clock is a backend without a device. It discards outputs, provides
// silence on inputs and paces blocks in wall-clock time. Zero value is
// ready to use.
type Clock struct{}

// Open implements Backend.
func (Clock) Open(c Config) (Stream, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &clockStream{
		period: c.BlockDuration(),
		next:   time.Now(),
	}, nil
}

type clockStream struct {
	m      sync.Mutex
	period time.Duration
	next   time.Time
	closed bool
}

func (s *clockStream) Read(in [][]float64) error {
	s.m.Lock()
	defer s.m.Unlock()
	if s.closed {
		return ErrClosed
	}
	for i := range in {
		for j := range in[i] {
			in[i][j] = 0
		}
	}
	return nil
}

func (s *clockStream) Write([][]float64) error {
	s.m.Lock()
	if s.closed {
		s.m.Unlock()
		return ErrClosed
	}
	s.next = s.next.Add(s.period)
	wait := time.Until(s.next)
	s.m.Unlock()
	if wait > 0 {
		time.Sleep(wait)
	}
	return nil
}

func (s *clockStream) Close() error {
	s.m.Lock()
	defer s.m.Unlock()
	s.closed = true
	return nil
}
