package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dudu/facemesh/internal/inference"
	"github.com/dudu/facemesh/internal/landmark"
)

var probeCmd = &cobra.Command{
	Use:   "probe [model.onnx...]",
	Short: "Check that ONNX Runtime can load models and print their tensors",
	Long: `Loads each model with ONNX Runtime and prints its inputs, outputs and
metadata. Without arguments the configured detector and mesh models are
probed.`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	models := args
	if len(models) == 0 {
		models = []string{cfg.MeshModel}
		if cfg.DetectorModel != "" {
			models = append(models, cfg.DetectorModel)
		}
	}

	fmt.Println("Initializing ONNX Runtime...")
	if err := inference.Initialize(cfg.ORTLibrary); err != nil {
		fmt.Printf("❌ %v\n", err)
		fmt.Println("\nSet --ort-lib or FACEMESH_ORT_LIB to the onnxruntime shared library.")
		return err
	}
	defer inference.Shutdown()
	fmt.Println("✓ ONNX Runtime initialized")

	var failed []error
	for _, model := range models {
		if err := probeModel(model); err != nil {
			fmt.Printf("❌ %v\n", err)
			failed = append(failed, err)
		}
	}
	return errors.Join(failed...)
}

func probeModel(path string) error {
	fmt.Printf("\nModel: %s\n", path)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("model not found: %w", err)
	}

	info, err := inference.Inspect(path)
	if err != nil {
		return err
	}

	fmt.Printf("  Inputs (%d):\n", len(info.Inputs))
	for _, t := range info.Inputs {
		fmt.Printf("    %s: shape=%v, type=%s\n", t.Name, t.Shape, t.DataType)
	}
	fmt.Printf("  Outputs (%d):\n", len(info.Outputs))
	for _, t := range info.Outputs {
		fmt.Printf("    %s: shape=%v, type=%s%s\n", t.Name, t.Shape, t.DataType, outputHint(t))
	}

	m := info.Metadata
	if m.Producer != "" || m.Domain != "" || m.Description != "" {
		fmt.Println("  Metadata:")
		fmt.Printf("    Producer: %s\n", m.Producer)
		fmt.Printf("    Version: %d\n", m.Version)
		fmt.Printf("    Domain: %s\n", m.Domain)
		fmt.Printf("    Description: %s\n", m.Description)
	}
	fmt.Println("✅ loaded")
	return nil
}

// outputHint flags outputs that look like face mesh landmarks
func outputHint(t inference.TensorInfo) string {
	switch t.Elements() {
	case landmark.NumLandmarks * 3:
		return "  <- face mesh landmarks"
	case landmark.NumLandmarksWithIrises * 3:
		return "  <- face mesh landmarks with irises"
	}
	return ""
}
