package main

import (
	"testing"

	"github.com/dudu/facemesh/internal/landmark"
	"github.com/dudu/facemesh/internal/topology"
)

func TestDryRun(t *testing.T) {
	topo := topology.Default()
	rows, err := dryRun(topo)
	if err != nil {
		t.Fatalf("dryRun: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(rows))
	}

	segments := func(n int) int {
		total := 0
		for _, g := range topology.DrawOrder {
			if topology.Enabled(g, n) {
				total += len(topo.Connections(g))
			}
		}
		return total
	}

	for _, r := range rows {
		wantGroups := 7
		if r.landmarks == landmark.NumLandmarksWithIrises {
			wantGroups = 9
		}
		if r.stats.Groups != wantGroups {
			t.Errorf("%s/%d: expected %d groups, got %d", r.mode, r.landmarks, wantGroups, r.stats.Groups)
		}
		if r.colors != wantGroups {
			t.Errorf("%s/%d: expected %d color uploads, got %d", r.mode, r.landmarks, wantGroups, r.colors)
		}
		if r.stats.Segments != segments(r.landmarks) {
			t.Errorf("%s/%d: expected %d segments, got %d", r.mode, r.landmarks, segments(r.landmarks), r.stats.Segments)
		}

		wantDraws := r.stats.Segments
		if r.mode == "batched" {
			wantDraws = wantGroups
		}
		if r.draws != wantDraws {
			t.Errorf("%s/%d: expected %d draw calls, got %d", r.mode, r.landmarks, wantDraws, r.draws)
		}
	}
}

func TestSyntheticFace(t *testing.T) {
	for _, n := range []int{landmark.NumLandmarks, landmark.NumLandmarksWithIrises} {
		face := syntheticFace(n)
		if len(face) != n {
			t.Fatalf("expected %d landmarks, got %d", n, len(face))
		}
		x1, y1, x2, y2 := face.Bounds()
		if x1 < 0 || y1 < 0 || x2 > 1 || y2 > 1 {
			t.Errorf("%d: bounds (%v,%v)-(%v,%v) leave the unit square", n, x1, y1, x2, y2)
		}
	}
}
