package main

import (
	"errors"

	"github.com/spf13/cobra"
)

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Draw face mesh landmarks over the camera feed",
	Long: `Captures the camera, runs the face detector and mesh model on every frame
and draws the landmarks in a window. Press q or ESC to quit.`,
	RunE: runLive,
}

func init() {
	rootCmd.AddCommand(liveCmd)
}

func runLive(cmd *cobra.Command, args []string) error {
	src, capture, err := openLive()
	if err != nil {
		return err
	}

	surf, err := newSurface("facemesh", capture.Width(), capture.Height())
	if err != nil {
		return errors.Join(err, closeLive(src))
	}

	// a slow surface should show the newest frame, not a backlog
	return run(cmd.Context(), src, surf, true)
}
