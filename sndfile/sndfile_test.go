package sndfile_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/graph/sndfile"
)

func TestRoundTrip(t *testing.T) {
	frames := [][]float64{
		{0, 0.5, -0.5, 1, -1, 0.75},
		{0.25, -0.25, 0.1, -0.1, 0, 2},
	}
	tests := []struct {
		ext      string
		bitDepth int
		delta    float64
	}{
		{ext: ".wav", bitDepth: 16, delta: 1.0 / 32767},
		{ext: ".wav", bitDepth: 24, delta: 1.0 / 8388607},
		{ext: ".aif", bitDepth: 16, delta: 1.0 / 32767},
		{ext: ".aiff", bitDepth: 16, delta: 1.0 / 32767},
	}
	for _, test := range tests {
		path := filepath.Join(t.TempDir(), "out"+test.ext)
		w, err := sndfile.Create(path, 48000, 2, test.bitDepth)
		assert.NoError(t, err)
		assert.NoError(t, w.Write(frames))
		assert.NoError(t, w.Close())
		assert.NoError(t, w.Close())

		b, err := sndfile.Load(path)
		assert.NoError(t, err)
		assert.Equal(t, 48000, b.SampleRate)
		assert.Equal(t, 6, b.Len())
		assert.Len(t, b.Channels, 2)
		for c := range frames {
			for i, v := range frames[c] {
				// values are clipped
				if v > 1 {
					v = 1
				}
				assert.InDelta(t, v, b.Channels[c][i], test.delta, "%s %d %d", test.ext, c, i)
			}
		}
	}
}

func TestUnsupported(t *testing.T) {
	dir := t.TempDir()
	_, err := sndfile.Create(filepath.Join(dir, "out.ogg"), 48000, 1, 16)
	assert.True(t, errors.Is(err, sndfile.ErrUnsupportedFormat))

	_, err = sndfile.Load(filepath.Join(dir, "in.flac"))
	assert.True(t, errors.Is(err, sndfile.ErrUnsupportedFormat))

	_, err = sndfile.Create(filepath.Join(dir, "out.wav"), 48000, 1, 12)
	assert.True(t, errors.Is(err, sndfile.ErrUnsupportedBitDepth))

	_, err = sndfile.Create(filepath.Join(dir, "out.wav"), 0, 1, 16)
	assert.Error(t, err)

	_, err = sndfile.Load(filepath.Join(dir, "missing.wav"))
	assert.Error(t, err)
}

func TestWriteChannelMismatch(t *testing.T) {
	w, err := sndfile.Create(filepath.Join(t.TempDir(), "out.wav"), 48000, 2, 0)
	assert.NoError(t, err)
	assert.Error(t, w.Write([][]float64{{0}}))
	assert.NoError(t, w.Close())
}

func TestRegisterFormat(t *testing.T) {
	var created string
	sndfile.RegisterFormat(".TEST", func(path string, sampleRate, channels, bitDepth int) (sndfile.Writer, error) {
		created = path
		assert.Equal(t, sndfile.DefaultBitDepth, bitDepth)
		return nil, errors.New("test")
	}, nil)
	_, err := sndfile.Create("a.test", 1, 1, 0)
	assert.Error(t, err)
	assert.Equal(t, "a.test", created)

	_, err = sndfile.Load("a.test")
	assert.True(t, errors.Is(err, sndfile.ErrUnsupportedFormat))
}

func TestInterleave(t *testing.T) {
	ints := sndfile.Interleave([][]float64{{1, 0.5}, {-1, 0}}, 16, nil)
	assert.Equal(t, []int{32767, -32767, 16384, 0}, ints)
	frames := sndfile.Deinterleave(ints, 2, 16)
	assert.Equal(t, []float64{1, 16384.0 / 32767}, frames[0])
	assert.Equal(t, []float64{-1, 0}, frames[1])
}
