package cvgpu

import (
	"testing"

	"gocv.io/x/gocv"

	"github.com/dudu/facemesh/internal/gpu"
	"github.com/dudu/facemesh/internal/overlay"
)

func setupDevice(t *testing.T, img *gocv.Mat) (*Device, gpu.LineProgram) {
	t.Helper()
	dev := New()
	p, err := dev.CompileProgram(overlay.Source())
	if err != nil {
		t.Fatalf("CompileProgram failed: %v", err)
	}
	dev.UseProgram(p)
	dev.Bind(img)
	return dev, dev.programs[p]
}

func TestDrawOpaqueLine(t *testing.T) {
	img := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8UC3)
	defer img.Close()

	dev, lp := setupDevice(t, &img)
	defer dev.Close()

	dev.UniformMatrix4(lp.Projection, gpu.NormalizedProjection())
	dev.Uniform4(lp.Color, gpu.Color{1, 0, 0, 1})
	dev.LineWidth(3)
	dev.DrawLines(lp.Position, []float32{0.1, 0.5, 0.9, 0.5})

	got := img.GetVecbAt(50, 50)
	if got[0] != 0 || got[1] != 0 || got[2] != 255 {
		t.Errorf("pixel (50,50) = %v, want BGR [0 0 255]", got)
	}
	if corner := img.GetVecbAt(5, 5); corner[2] != 0 {
		t.Errorf("corner pixel was drawn: %v", corner)
	}
}

func TestDrawTranslucentLine(t *testing.T) {
	img := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8UC3)
	defer img.Close()

	dev, lp := setupDevice(t, &img)
	defer dev.Close()

	dev.UniformMatrix4(lp.Projection, gpu.NormalizedProjection())
	dev.Uniform4(lp.Color, gpu.Color{1, 1, 1, 0.5})
	dev.LineWidth(1)
	dev.DrawLines(lp.Position, []float32{0.5, 0.1, 0.5, 0.9})

	if got := img.GetVecbAt(50, 50); got[0] != 0 {
		t.Fatalf("translucent line composited before flush: %v", got)
	}
	dev.Flush()

	got := img.GetVecbAt(50, 50)
	if got[0] < 126 || got[0] > 129 {
		t.Errorf("pixel (50,50) = %v, want about half intensity", got)
	}
}

func TestIgnoresUnknownLocations(t *testing.T) {
	img := gocv.NewMatWithSize(20, 20, gocv.MatTypeCV8UC3)
	defer img.Close()

	dev, lp := setupDevice(t, &img)
	defer dev.Close()

	dev.UniformMatrix4(lp.Projection, gpu.NormalizedProjection())
	dev.Uniform4(lp.Color, gpu.Color{1, 1, 1, 1})
	dev.DrawLines(gpu.Location(7), []float32{0, 0, 1, 1})

	gray := img.Reshape(1, 0)
	defer gray.Close()
	if n := gocv.CountNonZero(gray); n != 0 {
		t.Errorf("draw with unbound attribute touched %d pixels", n)
	}
}

func TestLineWidthRounding(t *testing.T) {
	tests := []struct {
		width float32
		want  int
	}{
		{0, 1},
		{0.4, 1},
		{5, 5},
		{7.6, 8},
	}
	dev := New()
	for _, tt := range tests {
		dev.LineWidth(tt.width)
		if dev.thickness != tt.want {
			t.Errorf("LineWidth(%v): thickness %d, want %d", tt.width, dev.thickness, tt.want)
		}
	}
}
