package ui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"gocv.io/x/gocv"

	"github.com/dudu/facemesh/internal/gpu"
	"github.com/dudu/facemesh/internal/gpu/cvgpu"
	"github.com/dudu/facemesh/internal/log"
	"github.com/dudu/facemesh/internal/pipeline"
)

// ImageSink renders every frame offscreen and writes it as a PNG
type ImageSink struct {
	dir      string
	renderer pipeline.ResultRenderer
	device   *cvgpu.Device
	bar      *progressbar.ProgressBar

	ready   bool
	canvas  gocv.Mat
	written int
}

// NewImageSink creates dir if needed. total is the expected frame count for
// the progress bar, or -1 when unknown.
func NewImageSink(dir string, renderer pipeline.ResultRenderer, device *cvgpu.Device, total int) (*ImageSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("rendering frames"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100_000_000),
	)
	return &ImageSink{
		dir:      dir,
		renderer: renderer,
		device:   device,
		bar:      bar,
		canvas:   gocv.NewMat(),
	}, nil
}

// FramePath returns the file a frame index is written to
func (s *ImageSink) FramePath(index int) string {
	return filepath.Join(s.dir, fmt.Sprintf("frame_%06d.png", index))
}

// Written returns the number of images written
func (s *ImageSink) Written() int {
	return s.written
}

// Run writes frames until the channel closes or ctx ends
func (s *ImageSink) Run(ctx context.Context, frames <-chan *pipeline.Frame) error {
	defer s.release()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			err := s.write(f)
			f.Close()
			if err != nil {
				return err
			}
		}
	}
}

func (s *ImageSink) write(f *pipeline.Frame) error {
	if !s.ready {
		if err := s.renderer.Setup(); err != nil {
			return fmt.Errorf("failed to set up renderer: %w", err)
		}
		s.ready = true
	}

	target := f.Image
	if !f.HasImage() {
		width, height := max(f.Width, 1), max(f.Height, 1)
		if s.canvas.Cols() != width || s.canvas.Rows() != height {
			s.canvas.Close()
			s.canvas = gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
		}
		s.canvas.SetTo(gocv.NewScalar(0, 0, 0, 0))
		target = &s.canvas
	}

	s.device.Bind(target)
	stats := s.renderer.Render(f.Result, gpu.NormalizedProjection())
	s.device.Flush()

	path := s.FramePath(f.Index)
	if !gocv.IMWrite(path, *target) {
		return fmt.Errorf("failed to write %s", path)
	}
	s.written++
	s.bar.Add(1)

	log.Debug(log.Fields{"frame": f.Index, "faces": stats.Faces, "path": path}, "frame written")
	return nil
}

func (s *ImageSink) release() {
	if s.ready {
		s.renderer.Release()
		s.ready = false
	}
}

// Close finishes the progress bar and frees the canvas
func (s *ImageSink) Close() error {
	s.release()
	s.bar.Finish()
	return s.canvas.Close()
}

var _ pipeline.DrawSurface = (*ImageSink)(nil)
