package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/dudu/facemesh/internal/log"
)

// Options configures frame delivery
type Options struct {
	// QueueSize is the number of frames buffered between source and surface
	QueueSize int
	// DropLate discards the oldest queued frame instead of blocking the
	// source when the surface falls behind
	DropLate bool
}

// Stats counts frames moved by the pipeline
type Stats struct {
	Produced int64
	Dropped  int64
}

// Pipeline moves frames from a source to a surface
type Pipeline struct {
	source  LandmarkSource
	surface DrawSurface
	opts    Options

	produced atomic.Int64
	dropped  atomic.Int64
}

// New creates a pipeline
func New(source LandmarkSource, surface DrawSurface, opts Options) *Pipeline {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1
	}
	return &Pipeline{source: source, surface: surface, opts: opts}
}

// Run pulls frames from the source on a separate goroutine and runs the
// surface on the calling goroutine. It returns when the source is exhausted
// and the surface has consumed every frame, when the surface returns, or
// when ctx is cancelled. Frames never handed to the surface are closed.
func (p *Pipeline) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := make(chan *Frame, p.opts.QueueSize)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(frames)
		for {
			f, err := p.source.Next(gctx)
			if errors.Is(err, io.EOF) {
				log.Debug(log.Fields{"frames": p.produced.Load()}, "source exhausted")
				return nil
			}
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("source failed: %w", err)
			}
			p.produced.Add(1)
			if !p.send(gctx, frames, f) {
				f.Close()
				return nil
			}
		}
	})

	surfaceErr := p.surface.Run(gctx, frames)
	stopped := ctx.Err() != nil
	cancel()

	for f := range frames {
		f.Close()
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if surfaceErr != nil && !stopped && !errors.Is(surfaceErr, context.Canceled) {
		return fmt.Errorf("surface failed: %w", surfaceErr)
	}
	return nil
}

// send queues f, returning false if ctx ended first
func (p *Pipeline) send(ctx context.Context, frames chan *Frame, f *Frame) bool {
	if !p.opts.DropLate {
		select {
		case frames <- f:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		if ctx.Err() != nil {
			return false
		}
		select {
		case frames <- f:
			return true
		default:
		}

		select {
		case old := <-frames:
			old.Close()
			if n := p.dropped.Add(1); n == 1 || n%100 == 0 {
				log.Warn(log.Fields{"dropped": n, "frame": old.Index}, "surface is falling behind, dropping frames")
			}
		default:
		}
	}
}

// Stats returns frame counters; safe to call while Run is active
func (p *Pipeline) Stats() Stats {
	return Stats{Produced: p.produced.Load(), Dropped: p.dropped.Load()}
}

// Close releases the source and, if it holds resources, the surface
func (p *Pipeline) Close() error {
	var errs []error
	if p.source != nil {
		if err := p.source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("source: %w", err))
		}
	}
	if c, ok := p.surface.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("surface: %w", err))
		}
	}
	return errors.Join(errs...)
}
