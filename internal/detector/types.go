package detector

import "math"

// Point represents a 2D point in pixels
type Point struct {
	X, Y float32
}

// BoundingBox represents a face bounding box
type BoundingBox struct {
	X1, Y1 float32 // top-left
	X2, Y2 float32 // bottom-right
}

// Width returns box width
func (b BoundingBox) Width() float32 {
	return b.X2 - b.X1
}

// Height returns box height
func (b BoundingBox) Height() float32 {
	return b.Y2 - b.Y1
}

// Center returns box center point
func (b BoundingBox) Center() Point {
	return Point{
		X: (b.X1 + b.X2) / 2,
		Y: (b.Y1 + b.Y2) / 2,
	}
}

// Area returns box area
func (b BoundingBox) Area() float32 {
	return b.Width() * b.Height()
}

// Keypoints are the five facial points SCRFD predicts with each box.
// Left and right are from the viewer's point of view.
type Keypoints struct {
	LeftEye    Point
	RightEye   Point
	Nose       Point
	LeftMouth  Point
	RightMouth Point
}

// Roll returns the in-plane rotation of the face in radians, measured from
// the line through both eyes. Zero means the eyes are level.
func (k Keypoints) Roll() float32 {
	dx := k.RightEye.X - k.LeftEye.X
	dy := k.RightEye.Y - k.LeftEye.Y
	if dx == 0 && dy == 0 {
		return 0
	}
	return float32(math.Atan2(float64(dy), float64(dx)))
}

// Face represents a detected face
type Face struct {
	BoundingBox BoundingBox
	Keypoints   Keypoints
	Score       float32
}

// ROI is a square, possibly rotated region of the frame that the mesh model
// is run on. Center and Size are in pixels, Angle in radians.
type ROI struct {
	Center Point
	Size   float32
	Angle  float32
}

// ROI returns the square region around the face, enlarged by scale and
// rotated to level the eyes
func (f Face) ROI(scale float32) ROI {
	b := f.BoundingBox
	return ROI{
		Center: b.Center(),
		Size:   max(b.Width(), b.Height()) * scale,
		Angle:  f.Keypoints.Roll(),
	}
}

// WholeFrame returns the largest centered square ROI of a width x height frame
func WholeFrame(width, height int) ROI {
	return ROI{
		Center: Point{X: float32(width) / 2, Y: float32(height) / 2},
		Size:   float32(min(width, height)),
	}
}

// ToFrame maps a point given in ROI-local normalized coordinates ([0,1] on
// both axes of the unrotated square) to frame pixels
func (r ROI) ToFrame(u, v float32) Point {
	lx := (u - 0.5) * r.Size
	ly := (v - 0.5) * r.Size
	sin, cos := math.Sincos(float64(r.Angle))
	s, c := float32(sin), float32(cos)
	return Point{
		X: r.Center.X + lx*c - ly*s,
		Y: r.Center.Y + lx*s + ly*c,
	}
}

// Affine returns the 2x3 row-major matrix that maps frame pixels into an
// out x out crop of the ROI, the inverse of ToFrame scaled to out pixels
func (r ROI) Affine(out int) [6]float64 {
	sin, cos := math.Sincos(float64(r.Angle))
	k := float64(out) / float64(r.Size)
	cx, cy := float64(r.Center.X), float64(r.Center.Y)
	half := float64(out) / 2

	// rotate by -Angle around the center, scale, move the center to the crop middle
	a, b := k*cos, k*sin
	c, d := -k*sin, k*cos
	return [6]float64{
		a, b, half - a*cx - b*cy,
		c, d, half - c*cx - d*cy,
	}
}
