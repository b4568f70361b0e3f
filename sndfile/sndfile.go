// Package sndfile writes rendered audio to files and loads audio files
// into memory. The format is chosen by the file extension, additional
// formats can be registered with RegisterFormat.
package sndfile

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultBitDepth is used when bit depth is not specified.
const DefaultBitDepth = 16

var (
	// ErrUnsupportedFormat is returned when file extension has no
	// registered format.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrUnsupportedBitDepth is returned when unsupported bit depth is used.
	ErrUnsupportedBitDepth = errors.New("only 8, 16, 24 and 32 bit depth is supported")
	// ErrInvalidFile is returned when file cannot be decoded.
	ErrInvalidFile = errors.New("invalid file")
)

type (
	// Writer writes deinterleaved frames. All channels must have the same
	// length. Close must be called to finalize the file.
	Writer interface {
		Write(frames [][]float64) error
		Close() error
	}

	// Buffer is audio data loaded into memory.
	Buffer struct {
		SampleRate int
		Channels   [][]float64
	}

	// CreateFunc creates a writer for the file.
	CreateFunc func(path string, sampleRate, channels, bitDepth int) (Writer, error)

	// LoadFunc loads the file into memory.
	LoadFunc func(path string) (*Buffer, error)

	format struct {
		create CreateFunc
		load   LoadFunc
	}
)

var (
	m       sync.RWMutex
	formats = map[string]format{}
)

func init() {
	RegisterFormat(".wav", createWav, loadWav)
	RegisterFormat(".aif", createAiff, loadAiff)
	RegisterFormat(".aiff", createAiff, loadAiff)
}

// RegisterFormat registers functions for the extension. Either function
// can be nil if the format is write-only or read-only.
func RegisterFormat(ext string, create CreateFunc, load LoadFunc) {
	m.Lock()
	defer m.Unlock()
	formats[strings.ToLower(ext)] = format{create: create, load: load}
}

func lookup(path string) (format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	m.RLock()
	defer m.RUnlock()
	f, ok := formats[ext]
	if !ok {
		return format{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return f, nil
}

// Create creates a file writer. Zero bit depth means DefaultBitDepth.
func Create(path string, sampleRate, channels, bitDepth int) (Writer, error) {
	f, err := lookup(path)
	if err != nil {
		return nil, err
	}
	if f.create == nil {
		return nil, fmt.Errorf("%w: %s is read-only", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if bitDepth == 0 {
		bitDepth = DefaultBitDepth
	}
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid stream: sample rate %d channels %d", sampleRate, channels)
	}
	return f.create(path, sampleRate, channels, bitDepth)
}

// Load reads the whole file into memory.
func Load(path string) (*Buffer, error) {
	f, err := lookup(path)
	if err != nil {
		return nil, err
	}
	if f.load == nil {
		return nil, fmt.Errorf("%w: %s is write-only", ErrUnsupportedFormat, filepath.Ext(path))
	}
	return f.load(path)
}

// Len returns number of frames in the buffer.
func (b *Buffer) Len() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

func validBitDepth(bitDepth int) error {
	switch bitDepth {
	case 8, 16, 24, 32:
		return nil
	}
	return fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bitDepth)
}

// scale returns the maximum integer value for the bit depth.
func scale(bitDepth int) float64 {
	return float64(int64(1)<<uint(bitDepth-1) - 1)
}

// Interleave converts deinterleaved floats into interleaved integers of
// provided bit depth. Values are clipped to [-1, 1] and rounded.
func Interleave(frames [][]float64, bitDepth int, ints []int) []int {
	s := scale(bitDepth)
	channels := len(frames)
	if channels == 0 {
		return ints[:0]
	}
	n := len(frames[0]) * channels
	if cap(ints) < n {
		ints = make([]int, n)
	}
	ints = ints[:n]
	for c := range frames {
		for i, v := range frames[c] {
			ints[i*channels+c] = int(math.Round(clip(v) * s))
		}
	}
	return ints
}

// Deinterleave converts interleaved integers of provided bit depth into
// deinterleaved floats.
func Deinterleave(ints []int, channels, bitDepth int) [][]float64 {
	s := scale(bitDepth)
	frames := len(ints) / channels
	out := make([][]float64, channels)
	for c := range out {
		out[c] = make([]float64, frames)
		for i := range out[c] {
			out[c][i] = float64(ints[i*channels+c]) / s
		}
	}
	return out
}

func clip(v float64) float64 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	case math.IsNaN(v):
		return 0
	}
	return v
}
