package ui

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"

	"github.com/dudu/facemesh/internal/gpu"
	"github.com/dudu/facemesh/internal/gpu/cvgpu"
	"github.com/dudu/facemesh/internal/log"
	"github.com/dudu/facemesh/internal/pipeline"
)

// Window manages the preview display. It draws landmarks with the renderer
// on a gocv raster device and shows the result with highgui.
type Window struct {
	window     *gocv.Window
	name       string
	renderer   pipeline.ResultRenderer
	device     *cvgpu.Device
	showTiming bool

	ready  bool
	canvas gocv.Mat
	fps    fpsCounter
}

// NewWindow creates a new preview window. device must be the device the
// renderer was created with.
func NewWindow(name string, renderer pipeline.ResultRenderer, device *cvgpu.Device, showTiming bool) *Window {
	window := gocv.NewWindow(name)
	// Force window to appear on macOS
	window.ResizeWindow(1280, 720)
	window.MoveWindow(100, 100)
	return &Window{
		window:     window,
		name:       name,
		renderer:   renderer,
		device:     device,
		showTiming: showTiming,
		canvas:     gocv.NewMat(),
	}
}

// Run shows frames until the channel closes, ctx ends, or q/ESC is pressed.
// The renderer is set up on the first frame and released on return.
func (w *Window) Run(ctx context.Context, frames <-chan *pipeline.Frame) error {
	defer w.release()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			err := w.Show(f)
			f.Close()
			if err != nil {
				return err
			}
			if isQuitKey(w.window.WaitKey(1)) {
				return nil
			}
		default:
			// keep the window responsive while waiting for frames
			if isQuitKey(w.window.WaitKey(5)) {
				return nil
			}
		}
	}
}

// Show draws the frame with its landmarks and displays it
func (w *Window) Show(f *pipeline.Frame) error {
	if !w.ready {
		if err := w.renderer.Setup(); err != nil {
			return fmt.Errorf("failed to set up renderer: %w", err)
		}
		w.ready = true
		log.Info(log.Fields{"window": w.name}, "renderer ready")
	}

	target := w.target(f)

	renderStart := time.Now()
	w.device.Bind(target)
	stats := w.renderer.Render(f.Result, gpu.NormalizedProjection())
	w.device.Flush()
	render := time.Since(renderStart)

	fps := w.fps.tick(time.Now())
	for i, line := range hudLines(fps, f.Timing, render, stats, w.showTiming) {
		gocv.PutText(target, line, image.Pt(10, 30+i*28),
			gocv.FontHersheyPlain, 1.6, color.RGBA{R: 0, G: 255, B: 0, A: 255}, 2)
	}

	w.window.IMShow(*target)
	return nil
}

// target returns the frame image, or a black canvas of the frame size
func (w *Window) target(f *pipeline.Frame) *gocv.Mat {
	if f.HasImage() {
		return f.Image
	}
	width, height := max(f.Width, 1), max(f.Height, 1)
	if w.canvas.Cols() != width || w.canvas.Rows() != height {
		w.canvas.Close()
		w.canvas = gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	}
	w.canvas.SetTo(gocv.NewScalar(0, 0, 0, 0))
	return &w.canvas
}

func (w *Window) release() {
	if w.ready {
		w.renderer.Release()
		w.ready = false
	}
}

// Close closes the window
func (w *Window) Close() error {
	w.release()
	w.canvas.Close()
	if w.window != nil {
		err := w.window.Close()
		w.window = nil
		return err
	}
	return nil
}

var _ pipeline.DrawSurface = (*Window)(nil)
