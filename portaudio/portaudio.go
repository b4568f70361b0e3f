// Package portaudio provides a backend that plays and records audio with
// portaudio devices.
package portaudio

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"

	"pipelined.dev/graph/backend"
)

// Backend opens streams on portaudio devices. Empty device names select
// platform defaults.
type Backend struct {
	Output string
	Input  string
}

// Devices returns names of available devices.
func Devices() ([]string, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	defer portaudio.Terminate()
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(devices))
	for _, d := range devices {
		names = append(names, d.Name)
	}
	return names, nil
}

// Open implements backend.Backend. It initializes portaudio and starts
// the stream, both are released by Close.
func (b Backend) Open(c backend.Config) (backend.Stream, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	s, err := b.open(c)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}
	return s, nil
}

func (b Backend) open(c backend.Config) (*stream, error) {
	in, err := device(b.Input, c.Inputs, portaudio.DefaultInputDevice)
	if err != nil {
		return nil, err
	}
	out, err := device(b.Output, c.Outputs, portaudio.DefaultOutputDevice)
	if err != nil {
		return nil, err
	}
	p := portaudio.HighLatencyParameters(in, out)
	p.Input.Channels = c.Inputs
	p.Output.Channels = c.Outputs
	p.SampleRate = float64(c.SampleRate)
	p.FramesPerBuffer = c.BlockSize

	s := stream{
		in:  make([]float32, c.BlockSize*c.Inputs),
		out: make([]float32, c.BlockSize*c.Outputs),
	}
	var args []interface{}
	if c.Inputs > 0 {
		args = append(args, &s.in)
	}
	if c.Outputs > 0 {
		args = append(args, &s.out)
	}
	if s.stream, err = portaudio.OpenStream(p, args...); err != nil {
		return nil, err
	}
	if err = s.stream.Start(); err != nil {
		s.stream.Close()
		return nil, err
	}
	return &s, nil
}

// device returns nil if no channels are requested.
func device(name string, channels int, def func() (*portaudio.DeviceInfo, error)) (*portaudio.DeviceInfo, error) {
	if channels == 0 {
		return nil, nil
	}
	if name == "" {
		return def()
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if strings.EqualFold(d.Name, name) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("device %q not found", name)
}

type stream struct {
	once   sync.Once
	stream *portaudio.Stream
	in     []float32
	out    []float32
}

// Read reads the input buffer of the stream and deinterleaves it.
func (s *stream) Read(in [][]float64) error {
	if len(s.in) == 0 {
		return nil
	}
	if err := s.stream.Read(); err != nil {
		return err
	}
	channels := len(in)
	for j := range in {
		for i := range in[j] {
			in[j][i] = float64(s.in[i*channels+j])
		}
	}
	return nil
}

// Write interleaves the buffer and writes it to the stream.
func (s *stream) Write(out [][]float64) error {
	if len(s.out) == 0 {
		return nil
	}
	channels := len(out)
	for j := range out {
		for i := range out[j] {
			s.out[i*channels+j] = float32(out[j][i])
		}
	}
	return s.stream.Write()
}

// Close stops the stream and terminates portaudio structures.
func (s *stream) Close() error {
	var err error
	s.once.Do(func() {
		if err = s.stream.Stop(); err != nil {
			s.stream.Close()
			portaudio.Terminate()
			return
		}
		if err = s.stream.Close(); err != nil {
			portaudio.Terminate()
			return
		}
		err = portaudio.Terminate()
	})
	return err
}
