package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dudu/facemesh/internal/log"
	"github.com/dudu/facemesh/internal/pipeline"
	"github.com/dudu/facemesh/internal/source"
)

var (
	recordOut     string
	recordPreview bool
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record face mesh landmarks from the camera",
	Long: `Runs the live models and writes every frame's landmarks to a recording.
The format follows the file extension: .pb for length-delimited protobuf
frames, .jsonl for JSON lines.`,
	Example: `  facemesh record --out session.pb --preview
  facemesh record -o session.jsonl --detector models/det_500m.onnx`,
	RunE: runRecord,
}

func init() {
	recordCmd.Flags().StringVarP(&recordOut, "out", "o", "", "recording file (.pb or .jsonl)")
	recordCmd.Flags().BoolVar(&recordPreview, "preview", false, "show the overlay while recording")
	recordCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(recordCmd)
}

func runRecord(cmd *cobra.Command, args []string) error {
	if _, err := source.FormatFromPath(recordOut); err != nil {
		return err
	}

	src, capture, err := openLive()
	if err != nil {
		return err
	}

	var preview surface
	if recordPreview {
		preview, err = newSurface("facemesh (recording)", capture.Width(), capture.Height())
		if err != nil {
			return errors.Join(err, closeLive(src))
		}
	}

	writer, err := source.Create(recordOut)
	if err != nil {
		err = errors.Join(err, closeLive(src))
		if preview != nil {
			err = errors.Join(err, preview.Close())
		}
		return err
	}

	var previewSurface pipeline.DrawSurface
	if preview != nil {
		previewSurface = preview
	}
	sink := source.NewRecordSink(writer, previewSurface)

	// every frame is kept so the recording has no gaps
	err = run(cmd.Context(), src, sink, false)
	if preview != nil {
		err = errors.Join(err, preview.Close())
	}
	if err != nil {
		return err
	}

	log.Info(log.Fields{"file": recordOut, "frames": sink.Written()}, "recording finished")
	fmt.Printf("Recorded %d frames to %s\n", sink.Written(), recordOut)
	return nil
}
