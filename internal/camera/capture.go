package camera

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"github.com/dudu/facemesh/internal/log"
)

// Config describes the capture device
type Config struct {
	DeviceID int
	Width    int
	Height   int
	FPS      int
	// Mirror flips frames horizontally, as a front-facing camera preview does
	Mirror bool
}

// Capture manages webcam or video file capture
type Capture struct {
	webcam *gocv.VideoCapture
	source string
	mirror bool
	fps    float64
	width  int
	height int
	frames int
	mu     sync.Mutex
}

// NewCapture opens a camera with the requested resolution and frame rate
func NewCapture(config Config) (*Capture, error) {
	webcam, err := gocv.OpenVideoCapture(config.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %d: %w", config.DeviceID, err)
	}

	webcam.Set(gocv.VideoCaptureFrameWidth, float64(config.Width))
	webcam.Set(gocv.VideoCaptureFrameHeight, float64(config.Height))
	webcam.Set(gocv.VideoCaptureFPS, float64(config.FPS))

	c := newCapture(webcam, fmt.Sprintf("camera %d", config.DeviceID), config.Mirror)
	if c.fps <= 0 {
		c.fps = float64(config.FPS)
	}
	if c.width != config.Width || c.height != config.Height {
		log.Warn(log.Fields{
			"requested": fmt.Sprintf("%dx%d", config.Width, config.Height),
			"actual":    fmt.Sprintf("%dx%d", c.width, c.height),
		}, "camera does not support requested resolution")
	}
	return c, nil
}

// OpenFile opens a video file for reading
func OpenFile(path string) (*Capture, error) {
	video, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open video %s: %w", path, err)
	}
	return newCapture(video, path, false), nil
}

func newCapture(vc *gocv.VideoCapture, source string, mirror bool) *Capture {
	// Get actual properties (devices may not honor the requested ones)
	c := &Capture{
		webcam: vc,
		source: source,
		mirror: mirror,
		fps:    vc.Get(gocv.VideoCaptureFPS),
		width:  int(vc.Get(gocv.VideoCaptureFrameWidth)),
		height: int(vc.Get(gocv.VideoCaptureFrameHeight)),
		frames: int(vc.Get(gocv.VideoCaptureFrameCount)),
	}
	log.Info(log.Fields{
		"source": source,
		"size":   fmt.Sprintf("%dx%d", c.width, c.height),
		"fps":    c.fps,
		"mirror": mirror,
	}, "capture opened")
	return c
}

// Read captures a frame into the provided Mat, mirrored if configured.
// It returns false at the end of a file or when the device fails.
func (c *Capture) Read(frame *gocv.Mat) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webcam == nil {
		return false
	}
	if !c.webcam.Read(frame) || frame.Empty() {
		return false
	}
	if c.mirror {
		gocv.Flip(*frame, frame, 1)
	}
	return true
}

// Source names the device or file
func (c *Capture) Source() string {
	return c.source
}

// Width returns frame width
func (c *Capture) Width() int {
	return c.width
}

// Height returns frame height
func (c *Capture) Height() int {
	return c.height
}

// FPS returns the frame rate reported by the device
func (c *Capture) FPS() float64 {
	return c.fps
}

// FrameCount returns the number of frames of a video file, or 0 for cameras
func (c *Capture) FrameCount() int {
	return max(c.frames, 0)
}

// Close releases the device
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webcam != nil {
		err := c.webcam.Close()
		c.webcam = nil
		return err
	}
	return nil
}
