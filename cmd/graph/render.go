package main

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"pipelined.dev/graph"
	"pipelined.dev/graph/metric"
)

type renderCommand struct {
	*options
	duration time.Duration
	format   string
	outDir   string
	jobs     int
}

func newRenderCommand(o *options) *cobra.Command {
	c := renderCommand{options: o}
	cmd := &cobra.Command{
		Use:   "render PATCH...",
		Short: "Render patches offline to audio files",
		Long: `Render every patch to the audio file with the same base name.
Patches are rendered concurrently.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, args)
		},
	}
	f := cmd.Flags()
	f.DurationVarP(&c.duration, "duration", "d", 10*time.Second, "duration of rendered audio")
	f.StringVarP(&c.format, "format", "f", "wav", "output format: wav, aiff or mp3")
	f.StringVarP(&c.outDir, "out-dir", "o", ".", "directory of rendered files")
	f.IntVarP(&c.jobs, "jobs", "j", runtime.NumCPU(), "number of concurrent renders")
	return cmd
}

// output returns the path of the rendered file for the patch.
func (c *renderCommand) output(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return filepath.Join(c.outDir, base+"."+strings.TrimPrefix(c.format, "."))
}

func (c *renderCommand) run(cmd *cobra.Command, patches []string) error {
	metrics, err := metric.New(prometheus.NewRegistry())
	if err != nil {
		return err
	}
	var eg errgroup.Group
	eg.SetLimit(c.jobs)
	runtimes := make([]*graph.Runtime, len(patches))
	for i, path := range patches {
		i, path := i, path
		eg.Go(func() error {
			g, err := c.load(path)
			if err != nil {
				return err
			}
			r := graph.NewRuntime(g, append(c.runtimeOptions(), graph.WithMetrics(metrics))...)
			runtimes[i] = r
			out := c.output(path)
			if err := r.RunOfflineToFile(out, c.duration, c.sampleRate, c.blockSize); err != nil {
				return fmt.Errorf("render %s: %w", path, err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	for i, path := range patches {
		m := metrics.Get(runtimes[i].ID())
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s: %v blocks, %v of audio\n",
			path, c.output(path), m[metric.BlockCounter], time.Duration(m[metric.DurationCounter]*float64(time.Second)))
	}
	return nil
}
