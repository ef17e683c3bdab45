package gpu

// Mat4 is a 4x4 matrix stored column-major, as uploaded with glUniformMatrix4fv
type Mat4 [16]float32

// Identity returns the identity matrix
func Identity() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Ortho returns an orthographic projection mapping the given box to clip space
func Ortho(left, right, bottom, top, near, far float32) Mat4 {
	var m Mat4
	m[0] = 2 / (right - left)
	m[5] = 2 / (top - bottom)
	m[10] = -2 / (far - near)
	m[12] = -(right + left) / (right - left)
	m[13] = -(top + bottom) / (top - bottom)
	m[14] = -(far + near) / (far - near)
	m[15] = 1
	return m
}

// NormalizedProjection maps normalized landmark coordinates (origin top-left,
// y down, [0,1] on both axes) to clip space
func NormalizedProjection() Mat4 {
	return Ortho(0, 1, 1, 0, -1, 1)
}

// Transform multiplies the column vector (x, y, z, w) by m
func (m Mat4) Transform(x, y, z, w float32) [4]float32 {
	return [4]float32{
		m[0]*x + m[4]*y + m[8]*z + m[12]*w,
		m[1]*x + m[5]*y + m[9]*z + m[13]*w,
		m[2]*x + m[6]*y + m[10]*z + m[14]*w,
		m[3]*x + m[7]*y + m[11]*z + m[15]*w,
	}
}

// Mul returns m * n
func (m Mat4) Mul(n Mat4) Mat4 {
	var out Mat4
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			var s float32
			for k := 0; k < 4; k++ {
				s += m[k*4+row] * n[col*4+k]
			}
			out[col*4+row] = s
		}
	}
	return out
}

// Viewport maps clip space to window pixels with the origin at the top-left
type Viewport struct {
	Width, Height int
}

// Project runs the vertex stage of the line program on the CPU: the 2D
// position (x, y, 0, 1) is transformed by m, divided by w and mapped to pixels.
func (v Viewport) Project(m Mat4, x, y float32) (px, py float32) {
	clip := m.Transform(x, y, 0, 1)
	w := clip[3]
	if w == 0 {
		w = 1
	}
	ndcX := clip[0] / w
	ndcY := clip[1] / w
	px = (ndcX + 1) / 2 * float32(v.Width)
	py = (1 - ndcY) / 2 * float32(v.Height)
	return px, py
}
