// Package gpu defines the drawing device the overlay renderer talks to.
//
// The interface mirrors the small slice of OpenGL ES 2.0 the renderer needs:
// one shader program, one vertex attribute, two uniforms and line primitives.
// Implementations own the drawing context and must only be called from the
// goroutine that owns it.
package gpu

// Program is a handle to a linked shader program. Zero is never a valid program.
type Program uint32

// Location is an attribute or uniform location inside a program.
// NoLocation is returned for names the program does not declare.
type Location int32

// NoLocation marks an unresolved attribute or uniform
const NoLocation Location = -1

// Color is a straight-alpha RGBA color with components in [0,1]
type Color [4]float32

// RGBA8 returns the color as 8-bit components
func (c Color) RGBA8() (r, g, b, a uint8) {
	return unit8(c[0]), unit8(c[1]), unit8(c[2]), unit8(c[3])
}

func unit8(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}

// Device is a GL-like drawing context
type Device interface {
	// CompileProgram compiles and links both stages of src
	CompileProgram(src ProgramSource) (Program, error)
	// AttribLocation returns the location of a vertex attribute, or NoLocation
	AttribLocation(p Program, name string) Location
	// UniformLocation returns the location of a uniform, or NoLocation
	UniformLocation(p Program, name string) Location
	// UseProgram makes p the program used by subsequent calls
	UseProgram(p Program)
	// UniformMatrix4 uploads a column-major 4x4 matrix
	UniformMatrix4(loc Location, m Mat4)
	// Uniform4 uploads a vec4 color
	Uniform4(loc Location, c Color)
	// LineWidth sets the rasterized width of lines in pixels
	LineWidth(width float32)
	// DrawLines binds vertices (two tightly packed floats per vertex) to the
	// attribute and draws them as a line list: every pair of vertices is one
	// segment.
	DrawLines(attrib Location, vertices []float32)
	// DeleteProgram frees p
	DeleteProgram(p Program)
}
