package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"gocv.io/x/gocv"

	"github.com/dudu/facemesh/internal/gpu"
	"github.com/dudu/facemesh/internal/gpu/ebitengpu"
	"github.com/dudu/facemesh/internal/log"
	"github.com/dudu/facemesh/internal/overlay"
	"github.com/dudu/facemesh/internal/pipeline"
)

// Game is a surface drawing frames in an Ebitengine window. The renderer is
// set up on the first Draw, inside ebiten's drawing context.
type Game struct {
	title      string
	renderer   pipeline.ResultRenderer
	device     *ebitengpu.Device
	showTiming bool

	ctx    context.Context
	frames <-chan *pipeline.Frame
	err    error
	ready  bool
	ended  bool

	current *pipeline.Frame
	width   int
	height  int

	background *ebiten.Image
	rgba       gocv.Mat
	fps        fpsCounter
	stats      overlay.Stats
	render     time.Duration
}

// NewGame creates an ebiten surface. width and height size the window
// until the first frame arrives.
func NewGame(title string, renderer pipeline.ResultRenderer, device *ebitengpu.Device, width, height int, showTiming bool) *Game {
	return &Game{
		title:      title,
		renderer:   renderer,
		device:     device,
		showTiming: showTiming,
		width:      width,
		height:     height,
		rgba:       gocv.NewMat(),
	}
}

// Run opens the window and blocks until it closes. It must be called from
// the main goroutine.
func (g *Game) Run(ctx context.Context, frames <-chan *pipeline.Frame) error {
	g.ctx = ctx
	g.frames = frames

	ebiten.SetWindowTitle(g.title)
	ebiten.SetWindowSize(g.width, g.height)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)

	err := ebiten.RunGame(g)
	g.release()
	if g.current != nil {
		g.current.Close()
		g.current = nil
	}

	if g.err != nil {
		return g.err
	}
	if err != nil && !errors.Is(err, ebiten.Termination) {
		return fmt.Errorf("ebiten: %w", err)
	}
	return nil
}

// Update takes the newest available frame, dropping older ones
func (g *Game) Update() error {
	if g.err != nil {
		return g.err
	}
	if g.ended || g.ctx.Err() != nil {
		return ebiten.Termination
	}
	if ebiten.IsKeyPressed(ebiten.KeyQ) || ebiten.IsKeyPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}

	for {
		select {
		case f, ok := <-g.frames:
			if !ok {
				g.ended = true
				return nil
			}
			if g.current != nil {
				g.current.Close()
			}
			g.current = f
			if f.Width > 0 && f.Height > 0 {
				g.width, g.height = f.Width, f.Height
			}
		default:
			return nil
		}
	}
}

// Draw paints the current frame and its landmarks
func (g *Game) Draw(screen *ebiten.Image) {
	if !g.ready && g.err == nil {
		if err := g.renderer.Setup(); err != nil {
			g.err = fmt.Errorf("failed to set up renderer: %w", err)
			return
		}
		g.ready = true
		log.Info(log.Fields{"window": g.title}, "renderer ready")
	}
	if g.current == nil || !g.ready {
		return
	}

	if g.current.HasImage() {
		g.drawBackground(screen, g.current.Image)
	}

	start := time.Now()
	g.device.Bind(screen)
	g.stats = g.renderer.Render(g.current.Result, gpu.NormalizedProjection())
	g.render = time.Since(start)

	fps := g.fps.tick(time.Now())
	lines := hudLines(fps, g.current.Timing, g.render, g.stats, g.showTiming)
	ebitenutil.DebugPrint(screen, strings.Join(lines, "\n"))
}

func (g *Game) drawBackground(screen *ebiten.Image, img *gocv.Mat) {
	w, h := img.Cols(), img.Rows()
	if g.background == nil || g.background.Bounds().Dx() != w || g.background.Bounds().Dy() != h {
		if g.background != nil {
			g.background.Deallocate()
		}
		g.background = ebiten.NewImage(w, h)
	}
	gocv.CvtColor(*img, &g.rgba, gocv.ColorBGRToRGBA)
	g.background.WritePixels(g.rgba.ToBytes())
	screen.DrawImage(g.background, nil)
}

// Layout uses the frame size as the logical screen size
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return max(g.width, 1), max(g.height, 1)
}

func (g *Game) release() {
	if g.ready {
		g.renderer.Release()
		g.ready = false
	}
}

// Close frees the background image
func (g *Game) Close() error {
	g.release()
	if g.background != nil {
		g.background.Deallocate()
		g.background = nil
	}
	return g.rgba.Close()
}

var (
	_ ebiten.Game          = (*Game)(nil)
	_ pipeline.DrawSurface = (*Game)(nil)
)
