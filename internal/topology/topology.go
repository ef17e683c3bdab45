// Package topology holds the face mesh connection tables: which landmark
// pairs are joined by a line segment, grouped by facial feature.
package topology

import (
	"fmt"

	"github.com/dudu/facemesh/internal/landmark"
)

// GroupID identifies a connection group
type GroupID int

const (
	Tesselation GroupID = iota
	RightEye
	RightEyebrow
	LeftEye
	LeftEyebrow
	FaceOval
	Lips
	RightIris
	LeftIris

	numGroups
)

// NumGroups is the number of connection groups, irises included
const NumGroups = int(numGroups)

var groupNames = [numGroups]string{
	Tesselation:  "tesselation",
	RightEye:     "right_eye",
	RightEyebrow: "right_eyebrow",
	LeftEye:      "left_eye",
	LeftEyebrow:  "left_eyebrow",
	FaceOval:     "face_oval",
	Lips:         "lips",
	RightIris:    "right_iris",
	LeftIris:     "left_iris",
}

func (g GroupID) String() string {
	if g < 0 || g >= numGroups {
		return fmt.Sprintf("group(%d)", int(g))
	}
	return groupNames[g]
}

// RequiresIrises reports whether the group references refined iris landmarks
func (g GroupID) RequiresIrises() bool {
	return g == RightIris || g == LeftIris
}

// DrawOrder is the fixed per-face drawing order. Later groups are drawn on
// top of earlier ones.
var DrawOrder = [NumGroups]GroupID{
	Tesselation,
	RightEye,
	RightEyebrow,
	LeftEye,
	LeftEyebrow,
	FaceOval,
	Lips,
	RightIris,
	LeftIris,
}

// Connection is one line segment between two landmark indices
type Connection struct {
	Start, End uint16
}

// Topology is an immutable set of connection groups
type Topology struct {
	groups [numGroups][]Connection
}

var defaultTopology = &Topology{
	groups: [numGroups][]Connection{
		Tesselation:  tesselation,
		RightEye:     rightEye,
		RightEyebrow: rightEyebrow,
		LeftEye:      leftEye,
		LeftEyebrow:  leftEyebrow,
		FaceOval:     faceOval,
		Lips:         lips,
		RightIris:    rightIris,
		LeftIris:     leftIris,
	},
}

// Default returns the built-in face mesh topology
func Default() *Topology {
	return defaultTopology
}

// Connections returns the connections of a group. The slice must not be modified.
func (t *Topology) Connections(g GroupID) []Connection {
	if g < 0 || g >= numGroups {
		return nil
	}
	return t.groups[g]
}

// WithTesselation returns a copy of t with the tessellation group replaced
func (t *Topology) WithTesselation(conns []Connection) *Topology {
	c := *t
	c.groups[Tesselation] = conns
	return &c
}

// Enabled reports whether group g can be drawn on a face with n landmarks
func Enabled(g GroupID, n int) bool {
	if g.RequiresIrises() {
		return n == landmark.NumLandmarksWithIrises
	}
	return n >= landmark.NumLandmarks
}

// Validate checks that every connection of every group enabled for the
// given landmark count references an existing landmark
func (t *Topology) Validate(landmarkCount int) error {
	for _, g := range DrawOrder {
		if !Enabled(g, landmarkCount) {
			continue
		}
		for i, c := range t.groups[g] {
			if int(c.Start) >= landmarkCount || int(c.End) >= landmarkCount {
				return fmt.Errorf("%s connection %d (%d,%d) out of range for %d landmarks",
					g, i, c.Start, c.End, landmarkCount)
			}
		}
	}
	return nil
}

// Stats summarizes one group for reporting
type Stats struct {
	Group       GroupID
	Connections int
	Landmarks   int
	MaxIndex    int
}

// Summary returns per-group statistics in draw order
func (t *Topology) Summary() []Stats {
	out := make([]Stats, 0, NumGroups)
	for _, g := range DrawOrder {
		seen := make(map[uint16]struct{})
		maxIdx := -1
		for _, c := range t.groups[g] {
			seen[c.Start] = struct{}{}
			seen[c.End] = struct{}{}
			maxIdx = max(maxIdx, int(c.Start), int(c.End))
		}
		out = append(out, Stats{
			Group:       g,
			Connections: len(t.groups[g]),
			Landmarks:   len(seen),
			MaxIndex:    maxIdx,
		})
	}
	return out
}
