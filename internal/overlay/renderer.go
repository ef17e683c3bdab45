// Package overlay draws face mesh landmarks as colored line segments.
package overlay

import (
	_ "embed"
	"errors"
	"fmt"

	"github.com/dudu/facemesh/internal/gpu"
	"github.com/dudu/facemesh/internal/landmark"
	"github.com/dudu/facemesh/internal/topology"
)

var (
	//go:embed shaders/line.vert
	vertexShader string
	//go:embed shaders/line.frag
	fragmentShader string
	//go:embed shaders/line.kage
	kageShader string
)

const (
	positionAttrib    = "vPosition"
	projectionUniform = "uProjectionMatrix"
	colorUniform      = "uColor"
)

var (
	// ErrAlreadySetUp is returned by a second Setup on the same renderer
	ErrAlreadySetUp = errors.New("overlay: renderer already set up")
	// ErrReleased is returned by Setup after Release
	ErrReleased = errors.New("overlay: renderer released")
)

// Source returns the line program drawn by the renderer
func Source() gpu.ProgramSource {
	return gpu.ProgramSource{
		Vertex:   vertexShader,
		Fragment: fragmentShader,
		Kage:     kageShader,
	}
}

type state int

const (
	stateUninitialized state = iota
	stateReady
	stateReleased
)

// Option configures a Renderer
type Option func(*Renderer)

// WithBatching draws each connection group with a single line-list call
// instead of one call per connection
func WithBatching(enabled bool) Option {
	return func(r *Renderer) {
		r.batch = enabled
	}
}

// WithTopology replaces the connection tables. The caller is responsible
// for validating t against the landmark counts it will be drawn with.
func WithTopology(t *topology.Topology) Option {
	return func(r *Renderer) {
		if t != nil {
			r.topo = t
		}
	}
}

// WithStyles replaces the per-group colors and thicknesses
func WithStyles(s Styles) Option {
	return func(r *Renderer) {
		r.styles = s
	}
}

// Stats counts the work done by one Render call
type Stats struct {
	Faces        int
	SkippedFaces int
	Groups       int
	Segments     int
	DrawCalls    int
}

// Renderer draws detection results through a gpu.Device. All methods must
// be called from the goroutine that owns the device.
type Renderer struct {
	device gpu.Device
	topo   *topology.Topology
	styles Styles
	batch  bool

	state      state
	program    gpu.Program
	position   gpu.Location
	projection gpu.Location
	color      gpu.Location

	// scratch vertex storage, reused between draws
	segment  [4]float32
	vertices []float32
}

// New creates a renderer drawing on device
func New(device gpu.Device, opts ...Option) *Renderer {
	r := &Renderer{
		device:     device,
		topo:       topology.Default(),
		styles:     DefaultStyles(),
		position:   gpu.NoLocation,
		projection: gpu.NoLocation,
		color:      gpu.NoLocation,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Setup compiles the line program and resolves its attribute and uniform
// locations. It must be called once per device context before Render.
func (r *Renderer) Setup() error {
	switch r.state {
	case stateReady:
		return ErrAlreadySetUp
	case stateReleased:
		return ErrReleased
	}

	program, err := r.device.CompileProgram(Source())
	if err != nil {
		return fmt.Errorf("failed to build line program: %w", err)
	}

	position := r.device.AttribLocation(program, positionAttrib)
	projection := r.device.UniformLocation(program, projectionUniform)
	color := r.device.UniformLocation(program, colorUniform)

	var missing []string
	if position == gpu.NoLocation {
		missing = append(missing, positionAttrib)
	}
	if projection == gpu.NoLocation {
		missing = append(missing, projectionUniform)
	}
	if color == gpu.NoLocation {
		missing = append(missing, colorUniform)
	}
	if len(missing) > 0 {
		r.device.DeleteProgram(program)
		return fmt.Errorf("line program does not declare %v", missing)
	}

	r.program = program
	r.position = position
	r.projection = projection
	r.color = color
	r.state = stateReady
	return nil
}

// Ready reports whether Setup succeeded and Release has not been called
func (r *Renderer) Ready() bool {
	return r.state == stateReady
}

// Release deletes the line program. Further calls are no-ops.
func (r *Renderer) Release() {
	if r.state != stateReady {
		r.state = stateReleased
		return
	}
	r.device.DeleteProgram(r.program)
	r.program = 0
	r.state = stateReleased
}

// Render draws every face of result with the given column-major projection.
// A nil result draws nothing. Faces shorter than the base mesh are skipped;
// the iris groups are drawn only for faces carrying the refined iris points.
func (r *Renderer) Render(result *landmark.Result, projection gpu.Mat4) Stats {
	var st Stats
	if result == nil || r.state != stateReady {
		return st
	}

	r.device.UseProgram(r.program)
	r.device.UniformMatrix4(r.projection, projection)

	for _, face := range result.Faces {
		if len(face) < landmark.NumLandmarks {
			st.SkippedFaces++
			continue
		}
		st.Faces++

		for _, g := range topology.DrawOrder {
			if !topology.Enabled(g, len(face)) {
				continue
			}
			segments, calls := r.drawGroup(face, r.topo.Connections(g), r.styles[g])
			st.Groups++
			st.Segments += segments
			st.DrawCalls += calls
		}
	}
	return st
}

// drawGroup draws one connection group of a face with an explicit style and
// returns the number of segments and draw calls issued
func (r *Renderer) drawGroup(face landmark.Face, conns []topology.Connection, style Style) (int, int) {
	r.device.Uniform4(r.color, style.Color)
	r.device.LineWidth(style.Thickness)

	if len(conns) == 0 {
		return 0, 0
	}

	if r.batch {
		v := r.vertices[:0]
		for _, c := range conns {
			start, end := face[c.Start], face[c.End]
			v = append(v, start.X, start.Y, end.X, end.Y)
		}
		r.vertices = v
		r.device.DrawLines(r.position, v)
		return len(conns), 1
	}

	for _, c := range conns {
		start, end := face[c.Start], face[c.End]
		r.segment = [4]float32{start.X, start.Y, end.X, end.Y}
		r.device.DrawLines(r.position, r.segment[:])
	}
	return len(conns), len(conns)
}
