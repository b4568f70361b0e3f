// Command graph renders, plays and inspects patch files.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"pipelined.dev/graph"
	"pipelined.dev/graph/log"
	// mp3 registers .mp3 format for render and buffer nodes.
	_ "pipelined.dev/graph/mp3"
	"pipelined.dev/graph/patch"
)

var (
	successExitCode = 0
	errorExitCode   = 1
)

// flags shared by all commands.
type options struct {
	sampleRate int
	blockSize  int
	seed       int64
	verbose    bool
}

func (o *options) register(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.IntVar(&o.sampleRate, "sample-rate", graph.DefaultSampleRate, "sample rate in Hz")
	f.IntVar(&o.blockSize, "block-size", graph.DefaultBlockSize, "block size in frames")
	f.Int64Var(&o.seed, "seed", graph.DefaultSeed, "seed of noise generators")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "log debug messages, same as "+log.DebugEnv+"=1")
}

func (o *options) logger() *logrus.Logger {
	l := log.GetLogger()
	if o.verbose {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

func (o *options) runtimeOptions() []graph.RuntimeOption {
	return []graph.RuntimeOption{
		graph.WithSampleRate(o.sampleRate),
		graph.WithBlockSize(o.blockSize),
		graph.WithSeed(o.seed),
		graph.WithLogger(o.logger()),
	}
}

// load reads the patch file and builds its graph.
func (o *options) load(path string) (*graph.Graph, error) {
	p, err := patch.Load(path)
	if err != nil {
		return nil, err
	}
	g, err := p.Graph(graph.WithBuilderLogger(o.logger()))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

func newRootCommand() *cobra.Command {
	var o options
	root := &cobra.Command{
		Use:   "graph",
		Short: "Graph renders and plays signal-flow patches",
		Long: `Graph executes signal-flow graphs described in YAML patch files.

Examples:
  graph render synth.yaml --duration 10s --format wav
  graph play synth.yaml --for 30s
  graph dot synth.yaml | dot -Tpng > synth.png`,
		SilenceUsage: true,
	}
	o.register(root)
	root.AddCommand(
		newRenderCommand(&o),
		newPlayCommand(&o),
		newDevicesCommand(),
		newDotCommand(&o),
		newParamsCommand(&o),
		newKindsCommand(),
	)
	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Command failed: %v\n", err)
		os.Exit(errorExitCode)
	}
	os.Exit(successExitCode)
}
