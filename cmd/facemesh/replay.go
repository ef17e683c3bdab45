package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dudu/facemesh/internal/camera"
	"github.com/dudu/facemesh/internal/gpu/cvgpu"
	"github.com/dudu/facemesh/internal/source"
	"github.com/dudu/facemesh/internal/ui"
)

var (
	replayIn     string
	replayVideo  string
	replayFrames string
	replayWidth  int
	replayHeight int
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a landmark recording",
	Long: `Draws a recording made with the record command, optionally over the video
it was captured from. With --frames every frame is rendered to a PNG file
instead of a window.`,
	Example: `  facemesh replay --in session.pb
  facemesh replay -i session.pb --video session.mp4 --frames out/`,
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVarP(&replayIn, "in", "i", "", "recording file (.pb or .jsonl)")
	replayCmd.Flags().StringVar(&replayVideo, "video", "", "background video")
	replayCmd.Flags().StringVar(&replayFrames, "frames", "", "write frame_NNNNNN.png files to this directory instead of showing a window")
	replayCmd.Flags().IntVar(&replayWidth, "width", 1280, "canvas width without a video")
	replayCmd.Flags().IntVar(&replayHeight, "height", 720, "canvas height without a video")
	replayCmd.MarkFlagRequired("in")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	reader, err := source.Open(replayIn)
	if err != nil {
		return err
	}

	opts := source.ReplayOptions{
		Width:  replayWidth,
		Height: replayHeight,
		// offline rendering runs as fast as frames can be written
		Realtime: cfg.Realtime && replayFrames == "",
	}
	total := -1
	if replayVideo != "" {
		video, err := camera.OpenFile(replayVideo)
		if err != nil {
			reader.Close()
			return err
		}
		opts.Video = video
		if n := video.FrameCount(); n > 0 {
			total = n
		}
	}
	src := source.NewReplay(reader, opts)
	width, height := src.Size()

	if replayFrames == "" {
		surf, err := newSurface("facemesh (replay)", width, height)
		if err != nil {
			src.Close()
			return err
		}
		return run(cmd.Context(), src, surf, false)
	}

	device := cvgpu.New()
	renderer, err := newRenderer(device)
	if err != nil {
		src.Close()
		device.Close()
		return err
	}
	sink, err := ui.NewImageSink(replayFrames, renderer, device, total)
	if err != nil {
		src.Close()
		device.Close()
		return err
	}

	err = errors.Join(run(cmd.Context(), src, sink, false), device.Close())
	if err != nil {
		return err
	}
	fmt.Printf("\nWrote %d frames to %s\n", sink.Written(), replayFrames)
	return nil
}
