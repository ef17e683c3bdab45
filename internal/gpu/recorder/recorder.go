// Package recorder provides a headless gpu.Device that records every call.
// It backs the renderer tests and dry runs that count draw work without a
// display.
package recorder

import (
	"fmt"

	"github.com/dudu/facemesh/internal/gpu"
)

// Op is a recorded device operation
type Op int

const (
	OpCompileProgram Op = iota
	OpUseProgram
	OpUniformMatrix4
	OpUniform4
	OpLineWidth
	OpDrawLines
	OpDeleteProgram
)

var opNames = [...]string{
	OpCompileProgram: "CompileProgram",
	OpUseProgram:     "UseProgram",
	OpUniformMatrix4: "UniformMatrix4",
	OpUniform4:       "Uniform4",
	OpLineWidth:      "LineWidth",
	OpDrawLines:      "DrawLines",
	OpDeleteProgram:  "DeleteProgram",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Call is one recorded operation. Only the fields relevant to Op are set.
type Call struct {
	Op       Op
	Program  gpu.Program
	Location gpu.Location
	Matrix   gpu.Mat4
	Color    gpu.Color
	Width    float32
	Vertices []float32
}

// Device records calls instead of drawing
type Device struct {
	Calls []Call

	// CompileErr, when set, is returned by the next CompileProgram
	CompileErr error

	programs map[gpu.Program]gpu.LineProgram
	next     gpu.Program
}

// New creates an empty recording device
func New() *Device {
	return &Device{programs: make(map[gpu.Program]gpu.LineProgram)}
}

// CompileProgram validates src the way the CPU devices do
func (d *Device) CompileProgram(src gpu.ProgramSource) (gpu.Program, error) {
	d.Calls = append(d.Calls, Call{Op: OpCompileProgram})
	if d.CompileErr != nil {
		err := d.CompileErr
		d.CompileErr = nil
		return 0, err
	}
	lp, err := gpu.ResolveLineProgram(src)
	if err != nil {
		return 0, err
	}
	if d.programs == nil {
		d.programs = make(map[gpu.Program]gpu.LineProgram)
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
	d.Calls = append(d.Calls, Call{Op: OpUseProgram, Program: p})
}

func (d *Device) UniformMatrix4(loc gpu.Location, m gpu.Mat4) {
	d.Calls = append(d.Calls, Call{Op: OpUniformMatrix4, Location: loc, Matrix: m})
}

func (d *Device) Uniform4(loc gpu.Location, c gpu.Color) {
	d.Calls = append(d.Calls, Call{Op: OpUniform4, Location: loc, Color: c})
}

func (d *Device) LineWidth(width float32) {
	d.Calls = append(d.Calls, Call{Op: OpLineWidth, Width: width})
}

func (d *Device) DrawLines(attrib gpu.Location, vertices []float32) {
	v := make([]float32, len(vertices))
	copy(v, vertices)
	d.Calls = append(d.Calls, Call{Op: OpDrawLines, Location: attrib, Vertices: v})
}

func (d *Device) DeleteProgram(p gpu.Program) {
	d.Calls = append(d.Calls, Call{Op: OpDeleteProgram, Program: p})
	delete(d.programs, p)
}

// Count returns how many calls of op were recorded
func (d *Device) Count(op Op) int {
	n := 0
	for _, c := range d.Calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Filter returns the recorded calls of op in order
func (d *Device) Filter(op Op) []Call {
	var out []Call
	for _, c := range d.Calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Segments returns the number of line segments drawn
func (d *Device) Segments() int {
	n := 0
	for _, c := range d.Calls {
		if c.Op == OpDrawLines {
			n += len(c.Vertices) / 4
		}
	}
	return n
}

// Reset forgets recorded calls but keeps compiled programs
func (d *Device) Reset() {
	d.Calls = d.Calls[:0]
}

var _ gpu.Device = (*Device)(nil)
