package overlay

import (
	"github.com/dudu/facemesh/internal/gpu"
	"github.com/dudu/facemesh/internal/topology"
)

// Style is the color and line thickness of one connection group
type Style struct {
	Color     gpu.Color
	Thickness float32
}

// Styles holds one Style per group, indexed by topology.GroupID
type Styles [topology.NumGroups]Style

var (
	tesselationStyle = Style{Color: gpu.Color{0.75, 0.75, 0.75, 0.5}, Thickness: 5}
	rightStyle       = Style{Color: gpu.Color{1, 0.2, 0.2, 1}, Thickness: 8}
	leftStyle        = Style{Color: gpu.Color{0.2, 1, 0.2, 1}, Thickness: 8}
	contourStyle     = Style{Color: gpu.Color{0.9, 0.9, 0.9, 1}, Thickness: 8}
)

// DefaultStyles returns the stock palette. Irises share their eye's style.
func DefaultStyles() Styles {
	return Styles{
		topology.Tesselation:  tesselationStyle,
		topology.RightEye:     rightStyle,
		topology.RightEyebrow: rightStyle,
		topology.RightIris:    rightStyle,
		topology.LeftEye:      leftStyle,
		topology.LeftEyebrow:  leftStyle,
		topology.LeftIris:     leftStyle,
		topology.FaceOval:     contourStyle,
		topology.Lips:         contourStyle,
	}
}
