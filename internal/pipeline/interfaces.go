package pipeline

import (
	"context"
	"time"

	"gocv.io/x/gocv"

	"github.com/dudu/facemesh/internal/gpu"
	"github.com/dudu/facemesh/internal/landmark"
	"github.com/dudu/facemesh/internal/overlay"
)

// Timing holds per-stage timing of one frame
type Timing struct {
	Capture   time.Duration
	Detection time.Duration
	Mesh      time.Duration
	Total     time.Duration
}

// Frame is one produced frame: the camera image (if any) and the landmarks
// detected on it. Landmarks are normalized to the frame size.
type Frame struct {
	Index  int
	Image  *gocv.Mat
	Width  int
	Height int
	Result *landmark.Result
	Timing Timing
}

// HasImage reports whether the frame carries a background image
func (f *Frame) HasImage() bool {
	return f.Image != nil && !f.Image.Empty()
}

// Close releases the frame image
func (f *Frame) Close() error {
	if f.Image == nil {
		return nil
	}
	err := f.Image.Close()
	f.Image = nil
	return err
}

// LandmarkSource produces frames with detection results.
// Next returns io.EOF when the source is exhausted.
type LandmarkSource interface {
	Next(ctx context.Context) (*Frame, error)
	Close() error
}

// DrawSurface consumes frames until the channel is closed, the context is
// cancelled or the user quits. It owns every frame it receives.
type DrawSurface interface {
	Run(ctx context.Context, frames <-chan *Frame) error
}

// ResultRenderer draws detection results on the surface's device
type ResultRenderer interface {
	Setup() error
	Render(result *landmark.Result, projection gpu.Mat4) overlay.Stats
	Release()
}

var _ ResultRenderer = (*overlay.Renderer)(nil)
