// Package source produces frames with face landmarks for the pipeline:
// live from a camera and models, or replayed from a recording.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"gocv.io/x/gocv"

	"github.com/dudu/facemesh/internal/detector"
	"github.com/dudu/facemesh/internal/landmark"
	"github.com/dudu/facemesh/internal/log"
	"github.com/dudu/facemesh/internal/pipeline"
)

// Capture supplies camera or video frames
type Capture interface {
	Read(frame *gocv.Mat) bool
	Width() int
	Height() int
	Close() error
}

// FaceFinder locates faces in a frame
type FaceFinder interface {
	Detect(img gocv.Mat) ([]detector.Face, error)
	Close() error
}

// MeshRegressor regresses face mesh landmarks inside a region of a frame
type MeshRegressor interface {
	Infer(frame gocv.Mat, roi detector.ROI) (face landmark.Face, score float32, ok bool, err error)
	Close() error
}

// LiveOptions tunes the live source
type LiveOptions struct {
	// ROIScale enlarges detected boxes before mesh regression
	ROIScale float32
	// MaxFaces caps the faces regressed per frame
	MaxFaces int
}

// Live runs the models on every captured frame
type Live struct {
	capture Capture
	finder  FaceFinder
	mesh    MeshRegressor
	opts    LiveOptions

	index int
	start time.Time
}

// NewLive creates a live source. finder may be nil, in which case the
// centered square of every frame is treated as the only face.
func NewLive(capture Capture, finder FaceFinder, mesh MeshRegressor, opts LiveOptions) *Live {
	if opts.ROIScale < 1 {
		opts.ROIScale = 1
	}
	if opts.MaxFaces <= 0 {
		opts.MaxFaces = 1
	}
	return &Live{capture: capture, finder: finder, mesh: mesh, opts: opts}
}

// Next captures a frame and detects faces on it. It returns io.EOF when the
// capture device stops delivering frames.
func (l *Live) Next(ctx context.Context) (*pipeline.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	totalStart := time.Now()
	var timing pipeline.Timing

	img := gocv.NewMat()
	if !l.capture.Read(&img) {
		img.Close()
		log.Warn(log.Fields{"frames": l.index}, "capture stopped delivering frames")
		return nil, io.EOF
	}
	if l.start.IsZero() {
		l.start = totalStart
	}
	timing.Capture = time.Since(totalStart)

	result, err := l.detect(img, &timing)
	if err != nil {
		img.Close()
		return nil, err
	}
	result.TimestampUs = totalStart.Sub(l.start).Microseconds()
	timing.Total = time.Since(totalStart)

	f := &pipeline.Frame{
		Index:  l.index,
		Image:  &img,
		Width:  img.Cols(),
		Height: img.Rows(),
		Result: result,
		Timing: timing,
	}
	l.index++

	if log.DebugEnabled() {
		log.Debug(log.Fields{
			"frame":     f.Index,
			"faces":     len(result.Faces),
			"capture":   timing.Capture,
			"detection": timing.Detection,
			"mesh":      timing.Mesh,
		}, "frame processed")
	}
	return f, nil
}

func (l *Live) detect(img gocv.Mat, timing *pipeline.Timing) (*landmark.Result, error) {
	var rois []detector.ROI
	if l.finder == nil {
		rois = []detector.ROI{detector.WholeFrame(img.Cols(), img.Rows())}
	} else {
		start := time.Now()
		faces, err := l.finder.Detect(img)
		timing.Detection = time.Since(start)
		if err != nil {
			return nil, fmt.Errorf("face detection failed: %w", err)
		}
		for _, f := range faces {
			if len(rois) == l.opts.MaxFaces {
				break
			}
			rois = append(rois, f.ROI(l.opts.ROIScale))
		}
	}

	result := &landmark.Result{}
	start := time.Now()
	for _, roi := range rois {
		face, _, ok, err := l.mesh.Infer(img, roi)
		if err != nil {
			return nil, fmt.Errorf("mesh regression failed: %w", err)
		}
		if ok {
			result.Faces = append(result.Faces, face)
		}
	}
	timing.Mesh = time.Since(start)
	return result, nil
}

// Close releases the capture device and models
func (l *Live) Close() error {
	var errs []error
	if err := l.capture.Close(); err != nil {
		errs = append(errs, fmt.Errorf("capture: %w", err))
	}
	if l.finder != nil {
		if err := l.finder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("detector: %w", err))
		}
	}
	if err := l.mesh.Close(); err != nil {
		errs = append(errs, fmt.Errorf("mesh model: %w", err))
	}
	return errors.Join(errs...)
}

var _ pipeline.LandmarkSource = (*Live)(nil)
