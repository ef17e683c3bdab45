package meshmodel

import (
	"math"
	"testing"

	"github.com/dudu/facemesh/internal/detector"
	"github.com/dudu/facemesh/internal/inference"
	"github.com/dudu/facemesh/internal/landmark"
)

func near(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-4
}

func meshInfo(outputs ...inference.TensorInfo) *inference.ModelInfo {
	return &inference.ModelInfo{
		Inputs:  []inference.TensorInfo{{Name: "input_1", Shape: []int64{1, 192, 192, 3}}},
		Outputs: outputs,
	}
}

func TestResolve(t *testing.T) {
	landmarks := inference.TensorInfo{Name: "conv2d_21", Shape: []int64{1, 1, 1, 1404}}
	refined := inference.TensorInfo{Name: "mesh_refined", Shape: []int64{-1, 1434}}
	flag := inference.TensorInfo{Name: "conv2d_31", Shape: []int64{1, 1, 1, 1}}
	other := inference.TensorInfo{Name: "aux", Shape: []int64{1, 10}}

	tests := []struct {
		name       string
		config     Config
		info       *inference.ModelInfo
		wantOutput string
		wantPoints int
		wantErr    bool
	}{
		{
			name:       "first matching output",
			info:       meshInfo(other, flag, landmarks),
			wantOutput: "conv2d_21",
			wantPoints: 468,
		},
		{
			name:       "refined mesh with dynamic batch",
			info:       meshInfo(refined),
			wantOutput: "mesh_refined",
			wantPoints: 478,
		},
		{
			name:       "explicit names",
			config:     Config{OutputName: "conv2d_21", ScoreName: "conv2d_31"},
			info:       meshInfo(landmarks, flag),
			wantOutput: "conv2d_21",
			wantPoints: 468,
		},
		{
			name:    "explicit output with wrong size",
			config:  Config{OutputName: "aux"},
			info:    meshInfo(other, landmarks),
			wantErr: true,
		},
		{
			name:    "no landmark output",
			info:    meshInfo(other),
			wantErr: true,
		},
		{
			name:    "missing score output",
			config:  Config{ScoreName: "face_flag"},
			info:    meshInfo(landmarks),
			wantErr: true,
		},
		{
			name:    "score output is not scalar",
			config:  Config{ScoreName: "aux"},
			info:    meshInfo(landmarks, other),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, sh, err := resolve(tt.config, tt.info)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("resolve failed: %v", err)
			}
			if config.InputName != "input_1" {
				t.Errorf("input = %q, want input_1", config.InputName)
			}
			if config.OutputName != tt.wantOutput {
				t.Errorf("output = %q, want %q", config.OutputName, tt.wantOutput)
			}
			if sh.points != tt.wantPoints {
				t.Errorf("points = %d, want %d", sh.points, tt.wantPoints)
			}
		})
	}
}

func TestStaticShape(t *testing.T) {
	if got := staticShape([]int64{-1, 1434}); len(got) != 2 || got[0] != 1 || got[1] != 1434 {
		t.Errorf("staticShape(dynamic batch) = %v", got)
	}
	if got := staticShape([]int64{1, -1}); got != nil {
		t.Errorf("staticShape(dynamic feature) = %v, want nil", got)
	}
}

func TestDecode(t *testing.T) {
	raw := make([]float32, landmark.NumLandmarks*3)
	// point 0 at the crop center, point 1 at the crop's top-left corner
	raw[0], raw[1], raw[2] = 96, 96, 19.2
	raw[3], raw[4] = 0, 0

	roi := detector.ROI{Center: detector.Point{X: 320, Y: 240}, Size: 200}
	face := decode(raw, landmark.NumLandmarks, 192, roi, 640, 480)

	if len(face) != landmark.NumLandmarks {
		t.Fatalf("decoded %d points", len(face))
	}
	if !near(face[0].X, 0.5) || !near(face[0].Y, 0.5) {
		t.Errorf("center point = %+v, want (0.5, 0.5)", face[0])
	}
	if !near(face[1].X, 220.0/640) || !near(face[1].Y, 140.0/480) {
		t.Errorf("corner point = %+v, want (%v, %v)", face[1], 220.0/640, 140.0/480)
	}
	// 19.2 crop pixels = 0.1 of the crop = 20 frame pixels = 20/640 of the width
	if !near(face[0].Z, 20.0/640) {
		t.Errorf("z = %v, want %v", face[0].Z, 20.0/640)
	}
}

func TestDecodeRotated(t *testing.T) {
	raw := make([]float32, landmark.NumLandmarks*3)
	// a point right of the crop center ends up below it after a quarter turn
	raw[0], raw[1] = 192, 96

	roi := detector.ROI{Center: detector.Point{X: 100, Y: 100}, Size: 100, Angle: math.Pi / 2}
	face := decode(raw, landmark.NumLandmarks, 192, roi, 200, 200)

	if !near(face[0].X, 0.5) || !near(face[0].Y, 0.75) {
		t.Errorf("rotated point = %+v, want (0.5, 0.75)", face[0])
	}
}

func TestSigmoid(t *testing.T) {
	if got := sigmoid(0); got != 0.5 {
		t.Errorf("sigmoid(0) = %v", got)
	}
	if got := sigmoid(10); got < 0.999 {
		t.Errorf("sigmoid(10) = %v", got)
	}
}
