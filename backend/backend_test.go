package backend_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/graph/backend"
)

func TestConfig(t *testing.T) {
	c := backend.Config{SampleRate: 48000, BlockSize: 480, Outputs: 2}
	assert.NoError(t, c.Validate())
	assert.Equal(t, 10*time.Millisecond, c.BlockDuration())

	for _, c := range []backend.Config{
		{BlockSize: 1},
		{SampleRate: 1},
		{SampleRate: 1, BlockSize: 1, Inputs: -1},
	} {
		assert.Error(t, c.Validate())
	}
}

func TestClock(t *testing.T) {
	s, err := backend.Clock{}.Open(backend.Config{SampleRate: 1000, BlockSize: 10, Inputs: 1, Outputs: 1})
	assert.NoError(t, err)

	in := [][]float64{{1, 2, 3}}
	assert.NoError(t, s.Read(in))
	assert.Equal(t, []float64{0, 0, 0}, in[0])

	start := time.Now()
	for i := 0; i < 5; i++ {
		assert.NoError(t, s.Write([][]float64{make([]float64, 10)}))
	}
	// five blocks of 10ms each
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	assert.NoError(t, s.Close())
	assert.True(t, errors.Is(s.Write(nil), backend.ErrClosed))
	assert.True(t, errors.Is(s.Read(nil), backend.ErrClosed))

	_, err = backend.Clock{}.Open(backend.Config{})
	assert.Error(t, err)
}

func TestFunc(t *testing.T) {
	var got backend.Config
	b := backend.Func(func(c backend.Config) (backend.Stream, error) {
		got = c
		return nil, errors.New("no device")
	})
	_, err := b.Open(backend.Config{SampleRate: 1})
	assert.Error(t, err)
	assert.Equal(t, 1, got.SampleRate)
}
