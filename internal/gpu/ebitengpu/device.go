// Package ebitengpu implements gpu.Device on top of Ebitengine.
//
// Programs are compiled from their Kage fragment stage with ebiten.NewShader;
// the GLSL stages are only reflected to resolve locations. The vertex stage
// runs on the CPU and each line segment is expanded into a screen-space quad
// of the current line width, drawn with DrawTrianglesShader.
package ebitengpu

import (
	"errors"
	"fmt"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/dudu/facemesh/internal/gpu"
)

// colorUniform is the Kage variable receiving the color uniform
const colorUniform = "Color"

var errNoKage = errors.New("program has no Kage fragment stage")

type program struct {
	lines  gpu.LineProgram
	shader *ebiten.Shader
}

// Device draws onto the image passed to Bind. It must only be used from
// ebiten's Draw callback.
type Device struct {
	target   *ebiten.Image
	viewport gpu.Viewport

	programs map[gpu.Program]*program
	next     gpu.Program
	current  *program

	projection gpu.Mat4
	color      [4]float32
	width      float32

	vertices []ebiten.Vertex
	indices  []uint16
	options  ebiten.DrawTrianglesShaderOptions
}

// New creates a device with no target
func New() *Device {
	d := &Device{
		programs:   make(map[gpu.Program]*program),
		projection: gpu.Identity(),
		width:      1,
	}
	d.options.Uniforms = map[string]any{colorUniform: d.color[:]}
	return d
}

// Bind directs subsequent draws to img
func (d *Device) Bind(img *ebiten.Image) {
	d.target = img
	if img != nil {
		b := img.Bounds()
		d.viewport = gpu.Viewport{Width: b.Dx(), Height: b.Dy()}
	}
}

func (d *Device) CompileProgram(src gpu.ProgramSource) (gpu.Program, error) {
	lp, err := gpu.ResolveLineProgram(src)
	if err != nil {
		return 0, fmt.Errorf("ebitengpu: %w", err)
	}
	if src.Kage == "" {
		return 0, fmt.Errorf("ebitengpu: %w", errNoKage)
	}
	shader, err := ebiten.NewShader([]byte(src.Kage))
	if err != nil {
		return 0, fmt.Errorf("ebitengpu: compile Kage: %w", err)
	}
	d.next++
	d.programs[d.next] = &program{lines: lp, shader: shader}
	return d.next, nil
}

func (d *Device) AttribLocation(p gpu.Program, name string) gpu.Location {
	if prog, ok := d.programs[p]; ok {
		if v, ok := prog.lines.Interface.Attribute(name); ok {
			return v.Location
		}
	}
	return gpu.NoLocation
}

func (d *Device) UniformLocation(p gpu.Program, name string) gpu.Location {
	if prog, ok := d.programs[p]; ok {
		if v, ok := prog.lines.Interface.Uniform(name); ok {
			return v.Location
		}
	}
	return gpu.NoLocation
}

func (d *Device) UseProgram(p gpu.Program) {
	d.current = d.programs[p]
}

func (d *Device) UniformMatrix4(loc gpu.Location, m gpu.Mat4) {
	if d.current != nil && loc == d.current.lines.Projection {
		d.projection = m
	}
}

func (d *Device) Uniform4(loc gpu.Location, c gpu.Color) {
	if d.current != nil && loc == d.current.lines.Color {
		d.color = c
	}
}

func (d *Device) LineWidth(width float32) {
	d.width = width
}

func (d *Device) DrawLines(attrib gpu.Location, vertices []float32) {
	if d.current == nil || attrib != d.current.lines.Position || d.target == nil {
		return
	}

	d.vertices = d.vertices[:0]
	d.indices = d.indices[:0]
	for i := 0; i+3 < len(vertices); i += 4 {
		ax, ay := d.viewport.Project(d.projection, vertices[i], vertices[i+1])
		bx, by := d.viewport.Project(d.projection, vertices[i+2], vertices[i+3])
		q, ok := segmentQuad(point{ax, ay}, point{bx, by}, d.width)
		if !ok {
			continue
		}
		if len(d.vertices)/4 == maxQuadsPerDraw {
			d.flush()
		}
		d.indices = appendQuadIndices(d.indices, uint16(len(d.vertices)))
		for _, p := range q {
			d.vertices = append(d.vertices, ebiten.Vertex{
				DstX: p.X, DstY: p.Y,
				ColorR: 1, ColorG: 1, ColorB: 1, ColorA: 1,
			})
		}
	}
	d.flush()
}

func (d *Device) DeleteProgram(p gpu.Program) {
	prog, ok := d.programs[p]
	if !ok {
		return
	}
	prog.shader.Deallocate()
	delete(d.programs, p)
	if d.current == prog {
		d.current = nil
	}
}

func (d *Device) flush() {
	if len(d.indices) == 0 {
		return
	}
	d.target.DrawTrianglesShader(d.vertices, d.indices, d.current.shader, &d.options)
	d.vertices = d.vertices[:0]
	d.indices = d.indices[:0]
}

var _ gpu.Device = (*Device)(nil)
