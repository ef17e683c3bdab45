package topology

import (
	"strings"
	"testing"

	"github.com/dudu/facemesh/internal/landmark"
)

func TestDefaultTopologyInRange(t *testing.T) {
	for _, n := range []int{landmark.NumLandmarks, landmark.NumLandmarksWithIrises} {
		if err := Default().Validate(n); err != nil {
			t.Errorf("Validate(%d): %v", n, err)
		}
	}
}

func TestIrisGroupsNeedRefinedMesh(t *testing.T) {
	// Every iris connection must point past the base mesh, otherwise the
	// length gate would be meaningless.
	for _, g := range []GroupID{RightIris, LeftIris} {
		if !g.RequiresIrises() {
			t.Errorf("%s: RequiresIrises() = false", g)
		}
		for _, c := range Default().Connections(g) {
			if int(c.Start) < landmark.NumLandmarks || int(c.End) < landmark.NumLandmarks {
				t.Errorf("%s: connection (%d,%d) inside base mesh", g, c.Start, c.End)
			}
		}
		if Enabled(g, landmark.NumLandmarks) {
			t.Errorf("%s enabled for base mesh", g)
		}
		if !Enabled(g, landmark.NumLandmarksWithIrises) {
			t.Errorf("%s disabled for refined mesh", g)
		}
	}

	for _, g := range DrawOrder[:7] {
		if g.RequiresIrises() {
			t.Errorf("%s: RequiresIrises() = true", g)
		}
		for _, c := range Default().Connections(g) {
			if int(c.Start) >= landmark.NumLandmarks || int(c.End) >= landmark.NumLandmarks {
				t.Errorf("%s: connection (%d,%d) needs irises", g, c.Start, c.End)
			}
		}
	}
}

func TestGroupSizes(t *testing.T) {
	want := map[GroupID]int{
		Tesselation:  2556,
		RightEye:     16,
		LeftEye:      16,
		RightEyebrow: 8,
		LeftEyebrow:  8,
		FaceOval:     36,
		Lips:         40,
		RightIris:    4,
		LeftIris:     4,
	}
	for g, n := range want {
		if got := len(Default().Connections(g)); got != n {
			t.Errorf("%s: %d connections, want %d", g, got, n)
		}
	}
}

func TestClosedContours(t *testing.T) {
	// Eye, oval and iris outlines are closed loops: every point has degree 2.
	for _, g := range []GroupID{RightEye, LeftEye, FaceOval, RightIris, LeftIris} {
		degree := make(map[uint16]int)
		for _, c := range Default().Connections(g) {
			degree[c.Start]++
			degree[c.End]++
		}
		for idx, d := range degree {
			if d != 2 {
				t.Errorf("%s: landmark %d has degree %d", g, idx, d)
			}
		}
	}
}

func TestTesselationEdgesShared(t *testing.T) {
	// In a triangle mesh an edge borders at most two triangles.
	count := make(map[[2]uint16]int)
	for _, c := range Default().Connections(Tesselation) {
		count[edgeKey(c)]++
	}
	for e, n := range count {
		if n > 2 {
			t.Errorf("edge %v used by %d triangles", e, n)
		}
	}
}

func TestTesselationCoversMesh(t *testing.T) {
	tess := Default().Connections(Tesselation)

	touched := make(map[uint16]bool)
	directed := make(map[Connection]bool)
	undirected := make(map[[2]uint16]int)
	for _, c := range tess {
		touched[c.Start] = true
		touched[c.End] = true
		if directed[c] {
			t.Errorf("connection (%d,%d) listed twice", c.Start, c.End)
		}
		directed[c] = true
		undirected[edgeKey(c)]++
	}
	if len(touched) != landmark.NumLandmarks {
		t.Errorf("tesselation touches %d landmarks, want %d", len(touched), landmark.NumLandmarks)
	}

	// The mesh is open only along the face oval, the eye openings and the
	// inner lips: 36 + 16 + 16 + 20 edges.
	outline := make(map[[2]uint16]bool)
	for _, g := range []GroupID{FaceOval, RightEye, LeftEye, Lips} {
		for _, c := range Default().Connections(g) {
			outline[edgeKey(c)] = true
		}
	}
	boundary := 0
	for e, n := range undirected {
		if n != 1 {
			continue
		}
		boundary++
		if !outline[e] {
			t.Errorf("edge %v borders one triangle but is not on an outline", e)
		}
	}
	if boundary != 88 {
		t.Errorf("%d boundary edges, want 88", boundary)
	}
}

func edgeKey(c Connection) [2]uint16 {
	if c.Start > c.End {
		return [2]uint16{c.End, c.Start}
	}
	return [2]uint16{c.Start, c.End}
}

func TestDrawOrder(t *testing.T) {
	want := []string{
		"tesselation", "right_eye", "right_eyebrow", "left_eye",
		"left_eyebrow", "face_oval", "lips", "right_iris", "left_iris",
	}
	for i, g := range DrawOrder {
		if g.String() != want[i] {
			t.Errorf("DrawOrder[%d] = %s, want %s", i, g, want[i])
		}
	}
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	topo := Default().WithTesselation([]Connection{{0, 1}, {1, 500}})
	if err := topo.Validate(landmark.NumLandmarks); err == nil {
		t.Fatal("Expected error for index 500, got nil")
	}
	// the default must be untouched by the override
	if err := Default().Validate(landmark.NumLandmarks); err != nil {
		t.Errorf("default topology modified: %v", err)
	}
}

func TestParseTriangles(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []Connection
		wantErr bool
	}{
		{
			name:  "plain triples",
			input: "# comment\n0 1 2\n\n2 1 3\n",
			want:  []Connection{{0, 1}, {1, 2}, {2, 0}, {2, 1}, {1, 3}, {3, 2}},
		},
		{
			name:  "obj faces are 1-based",
			input: "v 0 0 0\nv 1 0 0\nv 0 1 0\nvt 0 0\nf 1/1/1 2/2/2 3/3/3\n",
			want:  []Connection{{0, 1}, {1, 2}, {2, 0}},
		},
		{
			name:  "obj quad is fanned",
			input: "f 1 2 3 4\n",
			want:  []Connection{{0, 1}, {1, 2}, {2, 0}, {0, 2}, {2, 3}, {3, 0}},
		},
		{name: "mixed formats", input: "f 1 2 3\n0 1 2\n", wantErr: true},
		{name: "short line", input: "0 1\n", wantErr: true},
		{name: "negative", input: "0 -1 2\n", wantErr: true},
		{name: "obj zero index", input: "f 0 1 2\n", wantErr: true},
		{name: "empty", input: "# nothing\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTriangles(strings.NewReader(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTriangles failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d connections, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("connection %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSummary(t *testing.T) {
	s := Default().Summary()
	if len(s) != NumGroups {
		t.Fatalf("Summary() returned %d groups, want %d", len(s), NumGroups)
	}
	if first := s[0]; first.Group != Tesselation || first.Connections != 2556 || first.Landmarks != landmark.NumLandmarks {
		t.Errorf("tesselation summary = %+v", first)
	}
	last := s[len(s)-1]
	if last.Group != LeftIris || last.Landmarks != 4 || last.MaxIndex != 477 {
		t.Errorf("left iris summary = %+v", last)
	}
}
