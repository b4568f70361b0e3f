package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"pipelined.dev/graph"
	"pipelined.dev/graph/metric"
	"pipelined.dev/graph/portaudio"
)

type playCommand struct {
	*options
	duration time.Duration
	output   string
	input    string
	params   []string
	metrics  string
}

func newPlayCommand(o *options) *cobra.Command {
	c := playCommand{options: o}
	cmd := &cobra.Command{
		Use:   "play PATCH",
		Short: "Play the patch on the audio device",
		Long: `Play the patch until interrupted or for the provided duration.
Initial param values can be set with --param name=value.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, args[0])
		},
	}
	f := cmd.Flags()
	f.DurationVar(&c.duration, "for", 0, "play duration, zero plays until interrupted")
	f.StringVar(&c.output, "output", "", "output device name, default device if empty")
	f.StringVar(&c.input, "input", "", "input device name, default device if empty")
	f.StringArrayVarP(&c.params, "param", "p", nil, "initial param value as name=value")
	f.StringVar(&c.metrics, "metrics", "", "address to serve prometheus metrics on")
	return cmd
}

// setParams sends initial values to the runtime params.
func setParams(r *graph.Runtime, params []string) error {
	for _, kv := range params {
		name, raw, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("invalid param %q: must be name=value", kv)
		}
		p, err := r.ParamNamed(name)
		if err != nil {
			return err
		}
		var v interface{}
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			return fmt.Errorf("invalid param %q: %w", kv, err)
		}
		if err := p.Send(v); err != nil {
			return err
		}
	}
	return nil
}

func (c *playCommand) run(cmd *cobra.Command, path string) error {
	g, err := c.load(path)
	if err != nil {
		return err
	}
	registry := prometheus.NewRegistry()
	metrics, err := metric.New(registry)
	if err != nil {
		return err
	}
	l := c.logger()
	r := graph.NewRuntime(g, append(c.runtimeOptions(), graph.WithMetrics(metrics))...)
	if err := setParams(r, c.params); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if c.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.duration)
		defer cancel()
	}

	h, err := r.Run(ctx, portaudio.Backend{Output: c.output, Input: c.input})
	if err != nil {
		return err
	}
	l.Infof("playing %s, press Ctrl+C to stop", path)

	var eg errgroup.Group
	eg.Go(func() error {
		for err := range h.Errors() {
			l.Warn(err)
		}
		return nil
	})
	if c.metrics != "" {
		srv := &http.Server{
			Addr:    c.metrics,
			Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		}
		eg.Go(func() error {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		eg.Go(func() error {
			<-h.Done()
			return srv.Shutdown(context.Background())
		})
	}

	err = h.Wait()
	if werr := eg.Wait(); err == nil {
		err = werr
	}
	m := metrics.Get(r.ID())
	l.Infof("played %v blocks, %v errors", m[metric.BlockCounter], m[metric.ErrorCounter])
	return err
}

func newDevicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			devices, err := portaudio.Devices()
			if err != nil {
				return err
			}
			for _, d := range devices {
				fmt.Fprintln(cmd.OutOrStdout(), d)
			}
			return nil
		},
	}
}
