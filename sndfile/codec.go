package sndfile

import (
	"fmt"
	"os"

	"github.com/go-audio/aiff"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// encoder is implemented by wav and aiff encoders.
type encoder interface {
	Write(*audio.IntBuffer) error
	Close() error
}

// fileWriter encodes frames into the file.
type fileWriter struct {
	file    *os.File
	encoder encoder
	buf     *audio.IntBuffer
	closed  bool
}

func createWav(path string, sampleRate, channels, bitDepth int) (Writer, error) {
	if err := validBitDepth(bitDepth); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	// 1 is PCM format
	e := wav.NewEncoder(f, sampleRate, bitDepth, channels, 1)
	return newFileWriter(f, e, sampleRate, channels, bitDepth), nil
}

func createAiff(path string, sampleRate, channels, bitDepth int) (Writer, error) {
	if err := validBitDepth(bitDepth); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	e := aiff.NewEncoder(f, sampleRate, bitDepth, channels)
	return newFileWriter(f, e, sampleRate, channels, bitDepth), nil
}

func newFileWriter(f *os.File, e encoder, sampleRate, channels, bitDepth int) *fileWriter {
	return &fileWriter{
		file:    f,
		encoder: e,
		buf: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: channels,
				SampleRate:  sampleRate,
			},
			SourceBitDepth: bitDepth,
		},
	}
}

// Write implements Writer.
func (w *fileWriter) Write(frames [][]float64) error {
	if len(frames) != w.buf.Format.NumChannels {
		return fmt.Errorf("expected %d channels, got %d", w.buf.Format.NumChannels, len(frames))
	}
	w.buf.Data = Interleave(frames, w.buf.SourceBitDepth, w.buf.Data)
	return w.encoder.Write(w.buf)
}

// Close flushes encoder and closes the file.
func (w *fileWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.encoder.Close(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

func loadWav(path string) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: %s is not a valid wav", ErrInvalidFile, path)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	return toBuffer(buf, int(d.SampleRate), int(d.BitDepth))
}

func loadAiff(path string) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d := aiff.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: %s is not a valid aiff", ErrInvalidFile, path)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	return toBuffer(buf, d.SampleRate, int(d.BitDepth))
}

func toBuffer(buf *audio.IntBuffer, sampleRate, bitDepth int) (*Buffer, error) {
	if buf.SourceBitDepth != 0 {
		bitDepth = buf.SourceBitDepth
	}
	if err := validBitDepth(bitDepth); err != nil {
		return nil, err
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 {
		return nil, fmt.Errorf("%w: no channels", ErrInvalidFile)
	}
	if buf.Format.SampleRate > 0 {
		sampleRate = buf.Format.SampleRate
	}
	return &Buffer{
		SampleRate: sampleRate,
		Channels:   Deinterleave(buf.Data, buf.Format.NumChannels, bitDepth),
	}, nil
}
