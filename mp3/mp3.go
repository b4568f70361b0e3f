// Package mp3 registers the ".mp3" extension in package sndfile. Import
// it for side effects to render and load mp3 files:
//
//	import _ "pipelined.dev/graph/mp3"
package mp3

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/viert/lame"

	"pipelined.dev/graph/sndfile"
)

// Default encoder settings.
const (
	DefaultBitRate = 192
	DefaultQuality = 2
)

// Encoder settings of created files.
type Encoder struct {
	BitRate int
	Quality int
}

func init() {
	Register(Encoder{BitRate: DefaultBitRate, Quality: DefaultQuality})
}

// Register sets encoder settings for files created with sndfile.Create.
func Register(e Encoder) {
	sndfile.RegisterFormat(".mp3", e.Create, Load)
}

// Create creates mp3 file writer. Only 16 bit depth is supported, zero
// bit depth defaults to it.
func (e Encoder) Create(path string, sampleRate, channels, bitDepth int) (sndfile.Writer, error) {
	if bitDepth != 0 && bitDepth != 16 {
		return nil, fmt.Errorf("%w: mp3 supports only 16 bits, got %d", sndfile.ErrUnsupportedBitDepth, bitDepth)
	}
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("mp3 supports mono and stereo, got %d channels", channels)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	wr := lame.NewWriter(f)
	wr.Encoder.SetBitrate(e.BitRate)
	wr.Encoder.SetQuality(e.Quality)
	wr.Encoder.SetNumChannels(channels)
	wr.Encoder.SetInSamplerate(sampleRate)
	if channels == 2 {
		wr.Encoder.SetMode(lame.JOINT_STEREO)
	} else {
		wr.Encoder.SetMode(lame.MONO)
	}
	wr.Encoder.SetVBR(lame.VBR_RH)
	wr.Encoder.InitParams()
	return &writer{file: f, wr: wr, channels: channels}, nil
}

type writer struct {
	file     *os.File
	wr       *lame.LameWriter
	channels int
	ints     []int
	bytes    []byte
	closed   bool
}

// Write encodes frames as 16 bit little-endian samples.
func (w *writer) Write(frames [][]float64) error {
	if len(frames) != w.channels {
		return fmt.Errorf("expected %d channels, got %d", w.channels, len(frames))
	}
	w.ints = sndfile.Interleave(frames, 16, w.ints)
	if cap(w.bytes) < 2*len(w.ints) {
		w.bytes = make([]byte, 2*len(w.ints))
	}
	w.bytes = w.bytes[:2*len(w.ints)]
	for i, v := range w.ints {
		binary.LittleEndian.PutUint16(w.bytes[2*i:], uint16(int16(v)))
	}
	_, err := w.wr.Write(w.bytes)
	return err
}

// Close flushes the encoder and closes the file.
func (w *writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.wr.Close(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// Load decodes the whole file. Decoder always provides stereo.
func Load(path string) (*sndfile.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sndfile.ErrInvalidFile, err)
	}
	data, err := io.ReadAll(d)
	if err != nil {
		return nil, err
	}
	ints := make([]int, len(data)/2)
	for i := range ints {
		ints[i] = int(int16(binary.LittleEndian.Uint16(data[2*i:])))
	}
	// drop incomplete frame
	ints = ints[:len(ints)-len(ints)%2]
	return &sndfile.Buffer{
		SampleRate: d.SampleRate(),
		Channels:   sndfile.Deinterleave(ints, 2, 16),
	}, nil
}
