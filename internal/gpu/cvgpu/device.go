// Package cvgpu implements gpu.Device by rasterizing lines onto a gocv Mat.
// The vertex stage runs on the CPU; translucent colors are composited with
// a weighted blend when the color changes or the device is flushed.
package cvgpu

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"github.com/dudu/facemesh/internal/gpu"
)

// Device draws onto the Mat passed to Bind
type Device struct {
	target   *gocv.Mat
	viewport gpu.Viewport

	programs map[gpu.Program]gpu.LineProgram
	next     gpu.Program
	current  gpu.LineProgram
	active   gpu.Program
	bound    bool

	projection gpu.Mat4
	color      gpu.Color
	thickness  int

	// translucent lines are drawn here and blended into target on flush
	layer       gocv.Mat
	hasLayer    bool
	layerActive bool
	layerAlpha  float64
}

// New creates a device with no target
func New() *Device {
	return &Device{
		programs:   make(map[gpu.Program]gpu.LineProgram),
		projection: gpu.Identity(),
		thickness:  1,
	}
}

// Bind directs subsequent draws to img, which must be a 3 channel BGR Mat.
// Pending translucent draws on the previous target are flushed first.
func (d *Device) Bind(img *gocv.Mat) {
	d.Flush()
	d.target = img
	if img != nil {
		d.viewport = gpu.Viewport{Width: img.Cols(), Height: img.Rows()}
	}
}

// Flush composites pending translucent lines into the target
func (d *Device) Flush() {
	if !d.layerActive {
		return
	}
	d.layerActive = false
	if d.target == nil || d.target.Empty() {
		return
	}
	gocv.AddWeighted(d.layer, d.layerAlpha, *d.target, 1-d.layerAlpha, 0, d.target)
}

// Close flushes and frees the blend layer
func (d *Device) Close() error {
	d.Flush()
	d.target = nil
	if !d.hasLayer {
		return nil
	}
	d.hasLayer = false
	return d.layer.Close()
}

func (d *Device) CompileProgram(src gpu.ProgramSource) (gpu.Program, error) {
	lp, err := gpu.ResolveLineProgram(src)
	if err != nil {
		return 0, fmt.Errorf("cvgpu: %w", err)
	}
	d.next++
	d.programs[d.next] = lp
	return d.next, nil
}

func (d *Device) AttribLocation(p gpu.Program, name string) gpu.Location {
	if v, ok := d.programs[p].Interface.Attribute(name); ok {
		return v.Location
	}
	return gpu.NoLocation
}

func (d *Device) UniformLocation(p gpu.Program, name string) gpu.Location {
	if v, ok := d.programs[p].Interface.Uniform(name); ok {
		return v.Location
	}
	return gpu.NoLocation
}

func (d *Device) UseProgram(p gpu.Program) {
	d.current, d.bound = d.programs[p]
	d.active = p
}

func (d *Device) UniformMatrix4(loc gpu.Location, m gpu.Mat4) {
	if d.bound && loc == d.current.Projection {
		d.projection = m
	}
}

func (d *Device) Uniform4(loc gpu.Location, c gpu.Color) {
	if !d.bound || loc != d.current.Color {
		return
	}
	if c != d.color {
		d.Flush()
	}
	d.color = c
}

// LineWidth rounds width to whole pixels, with a minimum of one
func (d *Device) LineWidth(width float32) {
	d.thickness = max(1, int(math.Round(float64(width))))
}

func (d *Device) DrawLines(attrib gpu.Location, vertices []float32) {
	if !d.bound || attrib != d.current.Position || d.target == nil || d.target.Empty() {
		return
	}

	alpha := float64(d.color[3])
	if alpha <= 0 {
		return
	}
	dst := d.target
	if alpha < 1 {
		dst = d.beginLayer(alpha)
	}

	r, g, b, _ := d.color.RGBA8()
	c := color.RGBA{R: r, G: g, B: b, A: 255}

	for i := 0; i+3 < len(vertices); i += 4 {
		x0, y0 := d.viewport.Project(d.projection, vertices[i], vertices[i+1])
		x1, y1 := d.viewport.Project(d.projection, vertices[i+2], vertices[i+3])
		gocv.Line(dst, pixel(x0, y0), pixel(x1, y1), c, d.thickness)
	}
}

func (d *Device) DeleteProgram(p gpu.Program) {
	delete(d.programs, p)
	if p == d.active {
		d.bound = false
	}
}

// beginLayer returns the Mat translucent lines are drawn on, copying the
// target into it when a new blend starts
func (d *Device) beginLayer(alpha float64) *gocv.Mat {
	if d.layerActive && d.layerAlpha == alpha {
		return &d.layer
	}
	d.Flush()
	if !d.hasLayer {
		d.layer = gocv.NewMat()
		d.hasLayer = true
	}
	d.target.CopyTo(&d.layer)
	d.layerActive = true
	d.layerAlpha = alpha
	return &d.layer
}

func pixel(x, y float32) image.Point {
	return image.Pt(int(math.Round(float64(x))), int(math.Round(float64(y))))
}

var _ gpu.Device = (*Device)(nil)
