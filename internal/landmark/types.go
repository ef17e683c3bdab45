package landmark

import "fmt"

const (
	// NumLandmarks is the landmark count of the base face mesh model
	NumLandmarks = 468
	// NumIrisLandmarks is the number of points iris refinement appends
	NumIrisLandmarks = 10
	// NumLandmarksWithIrises is the landmark count when iris refinement is enabled
	NumLandmarksWithIrises = NumLandmarks + NumIrisLandmarks
)

// Landmark is a normalized face mesh point. X and Y are in [0,1] with the
// origin at the top-left of the frame; Z is relative depth and is not drawn.
type Landmark struct {
	X, Y, Z float32
}

// Face is the ordered landmark list for one detected face.
// Indices are positional and referenced directly by connection tables.
type Face []Landmark

// HasIrises reports whether the face carries the refined iris points
func (f Face) HasIrises() bool {
	return len(f) == NumLandmarksWithIrises
}

// Valid reports whether the face has one of the supported landmark counts
func (f Face) Valid() bool {
	return len(f) == NumLandmarks || len(f) == NumLandmarksWithIrises
}

// Bounds returns the normalized bounding box of the face as x1, y1, x2, y2
func (f Face) Bounds() (x1, y1, x2, y2 float32) {
	if len(f) == 0 {
		return 0, 0, 0, 0
	}
	x1, y1 = f[0].X, f[0].Y
	x2, y2 = f[0].X, f[0].Y
	for _, p := range f[1:] {
		x1 = min(x1, p.X)
		y1 = min(y1, p.Y)
		x2 = max(x2, p.X)
		y2 = max(y2, p.Y)
	}
	return x1, y1, x2, y2
}

// Result is the detection output for a single frame
type Result struct {
	// TimestampUs is the capture time of the frame in microseconds
	TimestampUs int64
	Faces       []Face
}

// CheckCounts returns an error naming the first face whose landmark count
// is not supported
func (r *Result) CheckCounts() error {
	if r == nil {
		return nil
	}
	for i, f := range r.Faces {
		if !f.Valid() {
			return fmt.Errorf("face %d: unsupported landmark count %d (want %d or %d)",
				i, len(f), NumLandmarks, NumLandmarksWithIrises)
		}
	}
	return nil
}
