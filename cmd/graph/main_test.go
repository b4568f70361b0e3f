package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/graph/sndfile"
)

const synth = `
params:
  - {name: amp, value: 0.25}
nodes:
  - {id: osc, kind: sine_osc, options: {frequency: 440}}
  - {id: mul, kind: mul}
  - {id: out, kind: output}
connections:
  - {from: osc, to: mul.a}
  - {from: $amp, to: mul.b}
  - {from: mul, to: out}
`

func writePatch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(synth), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestInit(t *testing.T) {
	names := map[string]bool{}
	for _, c := range newRootCommand().Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"render", "play", "devices", "dot", "params", "kinds"} {
		assert.True(t, names[name], name)
	}
}

func TestRender(t *testing.T) {
	dir := t.TempDir()
	a := writePatch(t, dir, "a.yaml")
	b := writePatch(t, dir, "b.yaml")

	out, err := execute(t, "render", a, b, "--duration", "100ms", "--out-dir", dir, "--sample-rate", "8000")
	require.NoError(t, err)
	assert.Contains(t, out, "a.wav")
	assert.Contains(t, out, "b.wav")

	for _, name := range []string{"a.wav", "b.wav"} {
		buf, err := sndfile.Load(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Equal(t, 8000, buf.SampleRate)
		assert.Equal(t, 800, buf.Len())
		for _, v := range buf.Channels[0] {
			assert.LessOrEqual(t, v, 0.26)
		}
	}

	_, err = execute(t, "render", filepath.Join(dir, "missing.yaml"), "--out-dir", dir)
	assert.Error(t, err)
}

func TestDot(t *testing.T) {
	path := writePatch(t, t.TempDir(), "synth.yaml")
	out, err := execute(t, "dot", path)
	require.NoError(t, err)
	assert.Contains(t, out, "digraph")
	assert.Contains(t, out, "sine_osc")
}

func TestParams(t *testing.T) {
	path := writePatch(t, t.TempDir(), "synth.yaml")
	out, err := execute(t, "params", path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "amp\tFloat"), out)
}

func TestKinds(t *testing.T) {
	out, err := execute(t, "kinds")
	require.NoError(t, err)
	assert.Contains(t, out, "moog_ladder\n")
}
