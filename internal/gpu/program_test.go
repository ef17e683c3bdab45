package gpu

import "testing"

const testVertex = `
uniform mat4 uProjectionMatrix;
attribute vec4 vPosition;
void main() {
  gl_Position = uProjectionMatrix * vPosition;
}
`

const testFragment = `
precision mediump float;
uniform vec4 uColor;
void main() {
  gl_FragColor = uColor;
}
`

func TestResolveLineProgram(t *testing.T) {
	lp, err := ResolveLineProgram(ProgramSource{Vertex: testVertex, Fragment: testFragment})
	if err != nil {
		t.Fatalf("ResolveLineProgram failed: %v", err)
	}
	if lp.Position != 0 {
		t.Errorf("Position = %d, want 0", lp.Position)
	}
	if lp.Projection != 0 || lp.Color != 1 {
		t.Errorf("Projection = %d, Color = %d, want 0 and 1", lp.Projection, lp.Color)
	}
	if u, ok := lp.Interface.Uniform("uColor"); !ok || u.Stage != FragmentStage {
		t.Errorf("uColor = %+v, %v", u, ok)
	}
	if _, ok := lp.Interface.Attribute("missing"); ok {
		t.Error("Attribute(missing) found")
	}
}

func TestReflectErrors(t *testing.T) {
	tests := []struct {
		name     string
		vertex   string
		fragment string
	}{
		{
			name:     "vertex without main",
			vertex:   "attribute vec4 vPosition;\n",
			fragment: testFragment,
		},
		{
			name:     "main only in a comment",
			vertex:   testVertex,
			fragment: "uniform vec4 uColor;\n// void main() {}\n",
		},
		{
			name:     "attribute in fragment stage",
			vertex:   testVertex,
			fragment: "attribute vec4 a;\nvoid main() {}\n",
		},
		{
			name:     "uniform type mismatch",
			vertex:   testVertex,
			fragment: "uniform vec4 uProjectionMatrix;\nvoid main() {}\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Reflect(ProgramSource{Vertex: tt.vertex, Fragment: tt.fragment}); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestResolveLineProgramShape(t *testing.T) {
	tests := []struct {
		name     string
		vertex   string
		fragment string
	}{
		{
			name:     "no color uniform",
			vertex:   testVertex,
			fragment: "void main() { gl_FragColor = vec4(1.0); }\n",
		},
		{
			name:     "no projection",
			vertex:   "attribute vec4 vPosition;\nvoid main() { gl_Position = vPosition; }\n",
			fragment: testFragment,
		},
		{
			name:     "extra sampler",
			vertex:   testVertex,
			fragment: "uniform vec4 uColor;\nuniform sampler2D tex;\nvoid main() {}\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ResolveLineProgram(ProgramSource{Vertex: tt.vertex, Fragment: tt.fragment}); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}
