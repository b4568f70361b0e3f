package graph

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"pipelined.dev/graph/backend"
	"pipelined.dev/graph/internal/engine"
	"pipelined.dev/graph/metric"
)

// errorsBuffer is the capacity of the errors channel. Errors are dropped
// when nobody reads them.
const errorsBuffer = 64

// Handle controls the running runtime. All methods are safe to call
// concurrently.
type Handle struct {
	r      *Runtime
	cfg    backend.Config
	limit  int64
	events metric.Events

	stop atomic.Bool
	next atomic.Pointer[engine.Program]

	eg   *errgroup.Group
	errs chan error
	done chan struct{}
}

func newHandle(r *Runtime, cfg backend.Config, limit int64) *Handle {
	return &Handle{
		r:      r,
		cfg:    cfg,
		limit:  limit,
		events: r.metrics.Events(r.id),
		errs:   make(chan error, errorsBuffer),
		done:   make(chan struct{}),
	}
}

// start runs the audio goroutine.
func (h *Handle) start(ctx context.Context, s backend.Stream, p *engine.Program) {
	eg, ctx := errgroup.WithContext(ctx)
	h.eg = eg
	eg.Go(func() error {
		defer close(h.done)
		defer close(h.errs)
		err := h.loop(ctx, s, p)
		if cerr := s.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("error closing stream: %w", cerr)
		}
		h.r.setState(stopped)
		return err
	})
}

// loop executes the program block by block until stopped. Errors are
// reported and don't interrupt the execution.
func (h *Handle) loop(ctx context.Context, s backend.Stream, p *engine.Program) error {
	var (
		in       = buffers(h.cfg.Inputs, h.cfg.BlockSize)
		out      = buffers(h.cfg.Outputs, h.cfg.BlockSize)
		measure  = h.r.metrics.Meter(h.r.id, h.cfg.SampleRate)()
		produced int64
		size     = int64(h.cfg.BlockSize)
	)
	for {
		if h.stop.Load() {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		// new program is applied at the block boundary
		if next := h.next.Swap(nil); next != nil {
			p = next
			h.events.Reload()
		}
		if err := s.Read(in); err != nil {
			h.report(err)
		}
		if err := p.Process(h.cfg.BlockSize, in, out); err != nil {
			h.report(err)
		}
		if err := s.Write(out); err != nil {
			h.report(err)
		}
		measure(size)
		produced += size
		if h.limit > 0 && produced >= h.limit {
			return nil
		}
	}
}

// report delivers the error without blocking.
func (h *Handle) report(err error) {
	h.events.Error()
	select {
	case h.errs <- err:
	default:
	}
}

// Stop requests the audio goroutine to exit at the next block boundary
// and waits for it. It's idempotent.
func (h *Handle) Stop() error {
	h.stop.Store(true)
	return h.Wait()
}

// Wait blocks until the audio goroutine exits.
func (h *Handle) Wait() error {
	<-h.done
	return h.eg.Wait()
}

// Done is closed when the audio goroutine exits.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Errors returns the channel of errors reported during execution. It's
// closed when the audio goroutine exits.
func (h *Handle) Errors() <-chan error {
	return h.errs
}

// HotReload replaces the executed graph. The graph is compiled on the
// calling goroutine and applied at the next block boundary. Params are
// resolved by name, so params of the runtime keep working. The graph must
// have the same number of inputs and outputs.
func (h *Handle) HotReload(g *Graph) error {
	if h.stop.Load() {
		return ErrStopped
	}
	select {
	case <-h.done:
		return ErrStopped
	default:
	}
	if g.NumInputs() != h.cfg.Inputs || g.NumOutputs() != h.cfg.Outputs {
		return fmt.Errorf("%w: expected %d inputs %d outputs, got %d and %d",
			ErrIncompatibleGraph, h.cfg.Inputs, h.cfg.Outputs, g.NumInputs(), g.NumOutputs())
	}
	p, err := h.r.compile(g, h.cfg.SampleRate, h.cfg.BlockSize, h.report)
	if err != nil {
		return err
	}
	h.r.m.Lock()
	h.r.graph = g
	h.r.m.Unlock()
	h.next.Store(p)
	h.r.log.Debug(fmt.Sprintf("reloading graph %s", g.id))
	return nil
}
