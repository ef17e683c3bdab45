package ebitengpu

import "math"

// point is a screen-space position in pixels
type point struct {
	X, Y float32
}

// quadIndices are the two triangles covering a quad built by segmentQuad
var quadIndices = [6]uint16{0, 1, 2, 1, 3, 2}

// maxQuadsPerDraw keeps every index addressable by uint16
const maxQuadsPerDraw = (1 << 16) / 4

// segmentQuad returns the corners of a rectangle of the given width centered
// on the segment a-b. Corners are ordered a-left, a-right, b-left, b-right.
// ok is false for zero-length segments, which rasterize to nothing.
func segmentQuad(a, b point, width float32) (q [4]point, ok bool) {
	dx, dy := b.X-a.X, b.Y-a.Y
	length := float32(math.Hypot(float64(dx), float64(dy)))
	if length == 0 || width <= 0 {
		return q, false
	}
	half := width / 2
	nx, ny := -dy/length*half, dx/length*half
	q[0] = point{a.X + nx, a.Y + ny}
	q[1] = point{a.X - nx, a.Y - ny}
	q[2] = point{b.X + nx, b.Y + ny}
	q[3] = point{b.X - nx, b.Y - ny}
	return q, true
}

// appendQuadIndices appends the indices of the quad whose first corner is at base
func appendQuadIndices(indices []uint16, base uint16) []uint16 {
	for _, i := range quadIndices {
		indices = append(indices, base+i)
	}
	return indices
}
