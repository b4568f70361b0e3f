//go:build portaudio
// +build portaudio

package portaudio_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/graph/backend"
	"pipelined.dev/graph/portaudio"
)

func TestDevices(t *testing.T) {
	names, err := portaudio.Devices()
	assert.Nil(t, err)
	assert.NotEmpty(t, names)
}

func TestPlayback(t *testing.T) {
	c := backend.Config{SampleRate: 44100, BlockSize: 512, Outputs: 2}
	s, err := portaudio.Backend{}.Open(c)
	assert.Nil(t, err)

	out := [][]float64{make([]float64, c.BlockSize), make([]float64, c.BlockSize)}
	for i := 0; i < 10; i++ {
		assert.Nil(t, s.Write(out))
	}
	assert.Nil(t, s.Close())
	assert.Nil(t, s.Close())
}

func TestUnknownDevice(t *testing.T) {
	_, err := portaudio.Backend{Output: "no such device"}.Open(backend.Config{SampleRate: 44100, BlockSize: 512, Outputs: 1})
	assert.NotNil(t, err)
}
