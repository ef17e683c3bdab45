package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dudu/facemesh/internal/gpu"
	"github.com/dudu/facemesh/internal/gpu/recorder"
	"github.com/dudu/facemesh/internal/landmark"
	"github.com/dudu/facemesh/internal/overlay"
	"github.com/dudu/facemesh/internal/topology"
)

var topologyDryRun bool

var topologyCmd = &cobra.Command{
	Use:   "topology",
	Short: "Check the connection tables and print per-group statistics",
	Long: `Validates every connection group against both landmark counts (468 and 478)
and prints the size of each group. With --dry-run a synthetic face of each
size is rendered on a recording device and the resulting device calls are
counted.`,
	RunE: runTopology,
}

func init() {
	topologyCmd.Flags().BoolVar(&topologyDryRun, "dry-run", false, "render synthetic faces and count device calls")
	rootCmd.AddCommand(topologyCmd)
}

func runTopology(cmd *cobra.Command, args []string) error {
	topo, err := loadTopology()
	if err != nil {
		return err
	}

	var errs []error
	for _, n := range []int{landmark.NumLandmarks, landmark.NumLandmarksWithIrises} {
		if err := topo.Validate(n); err != nil {
			fmt.Printf("❌ %d landmarks: %v\n", n, err)
			errs = append(errs, err)
			continue
		}
		fmt.Printf("✓ %d landmarks: all connections in range\n", n)
	}

	fmt.Println()
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "GROUP\tCONNECTIONS\tLANDMARKS\tMAX INDEX\tIRISES")
	for _, s := range topo.Summary() {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%v\n", s.Group, s.Connections, s.Landmarks, s.MaxIndex, s.Group.RequiresIrises())
	}
	tw.Flush()

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if !topologyDryRun {
		return nil
	}

	rows, err := dryRun(topo)
	if err != nil {
		return err
	}
	fmt.Println()
	tw = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FACE\tMODE\tGROUPS\tSEGMENTS\tDRAW CALLS\tCOLOR UPLOADS")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%d\n", r.landmarks, r.mode, r.stats.Groups, r.stats.Segments, r.draws, r.colors)
	}
	return tw.Flush()
}

type dryRunRow struct {
	landmarks int
	mode      string
	stats     overlay.Stats
	draws     int
	colors    int
}

// dryRun renders one synthetic face of each supported size in both drawing
// modes and reports what reached the device
func dryRun(topo *topology.Topology) ([]dryRunRow, error) {
	var rows []dryRunRow
	for _, batched := range []bool{false, true} {
		mode := "per-segment"
		if batched {
			mode = "batched"
		}
		for _, n := range []int{landmark.NumLandmarks, landmark.NumLandmarksWithIrises} {
			device := recorder.New()
			r := overlay.New(device, overlay.WithTopology(topo), overlay.WithBatching(batched))
			if err := r.Setup(); err != nil {
				return nil, fmt.Errorf("dry run setup: %w", err)
			}
			device.Reset()

			stats := r.Render(&landmark.Result{Faces: []landmark.Face{syntheticFace(n)}}, gpu.NormalizedProjection())
			rows = append(rows, dryRunRow{
				landmarks: n,
				mode:      mode,
				stats:     stats,
				draws:     device.Count(recorder.OpDrawLines),
				colors:    device.Count(recorder.OpUniform4),
			})
			r.Release()
		}
	}
	return rows, nil
}

// syntheticFace spreads n landmarks over a grid inside the unit square
func syntheticFace(n int) landmark.Face {
	const cols = 24
	face := make(landmark.Face, n)
	for i := range face {
		face[i] = landmark.Landmark{
			X: 0.1 + 0.8*float32(i%cols)/cols,
			Y: 0.1 + 0.8*float32(i/cols)/float32(n/cols+1),
		}
	}
	return face
}
