package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"gocv.io/x/gocv"

	"github.com/dudu/facemesh/internal/log"
	"github.com/dudu/facemesh/internal/pipeline"
)

// ReplayOptions tunes the replay source
type ReplayOptions struct {
	// Video supplies background frames; nil replays landmarks on a blank canvas
	Video Capture
	// Width and Height size the canvas when there is no video
	Width, Height int
	// Realtime waits between frames according to their timestamps
	Realtime bool
}

// Replay reads frames back from a recording
type Replay struct {
	reader ResultReader
	opts   ReplayOptions

	index     int
	first     int64
	startWall time.Time
	videoDone bool
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewReplay creates a replay source over reader
func NewReplay(reader ResultReader, opts ReplayOptions) *Replay {
	if opts.Video != nil {
		opts.Width, opts.Height = opts.Video.Width(), opts.Video.Height()
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = 1280, 720
	}
	return &Replay{reader: reader, opts: opts, sleep: sleepContext}
}

// Size returns the frame size of replayed frames
func (r *Replay) Size() (width, height int) {
	return r.opts.Width, r.opts.Height
}

// Next returns the next recorded frame, or io.EOF after the last one
func (r *Replay) Next(ctx context.Context) (*pipeline.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := r.reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read frame %d: %w", r.index, err)
	}

	if r.opts.Realtime {
		if r.index == 0 {
			r.first = result.TimestampUs
			r.startWall = start
		}
		due := r.startWall.Add(time.Duration(result.TimestampUs-r.first) * time.Microsecond)
		if err := r.sleep(ctx, time.Until(due)); err != nil {
			return nil, err
		}
	}

	f := &pipeline.Frame{
		Index:  r.index,
		Width:  r.opts.Width,
		Height: r.opts.Height,
		Result: result,
	}
	if img, ok := r.readVideo(); ok {
		f.Image = img
		f.Width, f.Height = img.Cols(), img.Rows()
	}
	f.Timing.Total = time.Since(start)
	r.index++
	return f, nil
}

func (r *Replay) readVideo() (*gocv.Mat, bool) {
	if r.opts.Video == nil || r.videoDone {
		return nil, false
	}
	img := gocv.NewMat()
	if !r.opts.Video.Read(&img) {
		img.Close()
		r.videoDone = true
		log.Warn(log.Fields{"frame": r.index}, "background video ended before the recording")
		return nil, false
	}
	return &img, true
}

// Close closes the recording and the background video
func (r *Replay) Close() error {
	var errs []error
	if err := r.reader.Close(); err != nil {
		errs = append(errs, fmt.Errorf("recording: %w", err))
	}
	if r.opts.Video != nil {
		if err := r.opts.Video.Close(); err != nil {
			errs = append(errs, fmt.Errorf("video: %w", err))
		}
	}
	return errors.Join(errs...)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ pipeline.LandmarkSource = (*Replay)(nil)
