package source

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dudu/facemesh/internal/log"
	"github.com/dudu/facemesh/internal/pipeline"
)

// RecordSink is a surface that writes every frame's result to a recording.
// With a preview surface, frames are passed on to it after being written and
// the preview runs on the calling goroutine.
type RecordSink struct {
	writer  ResultWriter
	preview pipeline.DrawSurface
	written int
}

// NewRecordSink creates a sink writing to w. preview may be nil.
func NewRecordSink(w ResultWriter, preview pipeline.DrawSurface) *RecordSink {
	return &RecordSink{writer: w, preview: preview}
}

// Written returns the number of frames recorded
func (s *RecordSink) Written() int {
	return s.written
}

// Run records frames until the channel closes or ctx ends
func (s *RecordSink) Run(ctx context.Context, frames <-chan *pipeline.Frame) error {
	if s.preview == nil {
		return s.record(ctx, frames, nil)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	forward := make(chan *pipeline.Frame)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(forward)
		return s.record(gctx, frames, forward)
	})

	previewErr := s.preview.Run(gctx, forward)
	// quitting the preview stops the recording
	cancel()
	for f := range forward {
		f.Close()
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if previewErr != nil && !errors.Is(previewErr, context.Canceled) {
		return fmt.Errorf("preview failed: %w", previewErr)
	}
	return nil
}

func (s *RecordSink) record(ctx context.Context, frames <-chan *pipeline.Frame, forward chan<- *pipeline.Frame) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			if err := s.writer.Write(f.Result); err != nil {
				f.Close()
				return fmt.Errorf("failed to record frame %d: %w", f.Index, err)
			}
			s.written++
			if s.written%300 == 0 {
				log.Info(log.Fields{"frames": s.written}, "recording")
			}

			if forward == nil {
				f.Close()
				continue
			}
			select {
			case forward <- f:
			case <-ctx.Done():
				f.Close()
				return nil
			}
		}
	}
}

// Close flushes and closes the recording
func (s *RecordSink) Close() error {
	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("failed to close recording: %w", err)
	}
	log.Info(log.Fields{"frames": s.written}, "recording closed")
	return nil
}

var _ pipeline.DrawSurface = (*RecordSink)(nil)
