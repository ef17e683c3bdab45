package ui

import (
	"fmt"
	"time"

	"github.com/dudu/facemesh/internal/overlay"
	"github.com/dudu/facemesh/internal/pipeline"
)

// fpsCounter averages the frame rate over one second windows
type fpsCounter struct {
	last   time.Time
	frames int
	fps    float64
}

func (c *fpsCounter) tick(now time.Time) float64 {
	if c.last.IsZero() {
		c.last = now
	}
	c.frames++
	if elapsed := now.Sub(c.last); elapsed >= time.Second {
		c.fps = float64(c.frames) / elapsed.Seconds()
		c.frames = 0
		c.last = now
	}
	return c.fps
}

// hudLines formats the overlay text for one frame
func hudLines(fps float64, timing pipeline.Timing, render time.Duration, stats overlay.Stats, showTiming bool) []string {
	lines := []string{fmt.Sprintf("FPS: %.1f  faces: %d", fps, stats.Faces)}
	if !showTiming {
		return lines
	}
	return append(lines,
		fmt.Sprintf("detect %s  mesh %s", ms(timing.Detection), ms(timing.Mesh)),
		fmt.Sprintf("render %s  segments %d  calls %d", ms(render), stats.Segments, stats.DrawCalls),
	)
}

func ms(d time.Duration) string {
	return fmt.Sprintf("%.1fms", float64(d.Microseconds())/1000)
}

// isQuitKey reports whether a key code returned by WaitKey asks to quit
func isQuitKey(key int) bool {
	key &= 0xff
	return key == 'q' || key == 'Q' || key == 27
}
