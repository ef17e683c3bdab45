package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dudu/facemesh/internal/camera"
	"github.com/dudu/facemesh/internal/config"
	"github.com/dudu/facemesh/internal/detector"
	"github.com/dudu/facemesh/internal/gpu"
	"github.com/dudu/facemesh/internal/gpu/cvgpu"
	"github.com/dudu/facemesh/internal/gpu/ebitengpu"
	"github.com/dudu/facemesh/internal/inference"
	"github.com/dudu/facemesh/internal/landmark"
	"github.com/dudu/facemesh/internal/log"
	"github.com/dudu/facemesh/internal/meshmodel"
	"github.com/dudu/facemesh/internal/overlay"
	"github.com/dudu/facemesh/internal/pipeline"
	"github.com/dudu/facemesh/internal/source"
	"github.com/dudu/facemesh/internal/topology"
	"github.com/dudu/facemesh/internal/ui"
)

// loadTopology returns the built-in topology, with the tessellation replaced
// by the configured triangle file if any
func loadTopology() (*topology.Topology, error) {
	topo := topology.Default()
	if cfg.Tesselation == "" {
		return topo, nil
	}

	f, err := os.Open(cfg.Tesselation)
	if err != nil {
		return nil, fmt.Errorf("failed to open tessellation: %w", err)
	}
	defer f.Close()

	conns, err := topology.ParseTriangles(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Tesselation, err)
	}
	topo = topo.WithTesselation(conns)
	if err := topo.Validate(landmark.NumLandmarks); err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Tesselation, err)
	}
	log.Info(log.Fields{"file": cfg.Tesselation, "connections": len(conns)}, "tessellation loaded")
	return topo, nil
}

func newRenderer(device gpu.Device) (*overlay.Renderer, error) {
	topo, err := loadTopology()
	if err != nil {
		return nil, err
	}
	return overlay.New(device,
		overlay.WithTopology(topo),
		overlay.WithBatching(cfg.Batch),
	), nil
}

// surface is a draw surface that holds resources
type surface interface {
	pipeline.DrawSurface
	Close() error
}

// newSurface creates the configured on-screen surface. width and height
// size the window before the first frame.
func newSurface(title string, width, height int) (surface, error) {
	switch cfg.Surface {
	case config.SurfaceGPU:
		device := ebitengpu.New()
		renderer, err := newRenderer(device)
		if err != nil {
			return nil, err
		}
		return ui.NewGame(title, renderer, device, width, height, cfg.ShowTiming), nil
	default:
		device := cvgpu.New()
		renderer, err := newRenderer(device)
		if err != nil {
			device.Close()
			return nil, err
		}
		return &cvSurface{Window: ui.NewWindow(title, renderer, device, cfg.ShowTiming), device: device}, nil
	}
}

// cvSurface closes the raster device along with the window
type cvSurface struct {
	*ui.Window
	device *cvgpu.Device
}

func (s *cvSurface) Close() error {
	return errors.Join(s.Window.Close(), s.device.Close())
}

// shutdownRuntime releases ONNX Runtime once the models are gone
var shutdownRuntime = inference.Shutdown

// openLive opens the camera and loads the models. On failure everything
// opened so far is released, the runtime included.
func openLive() (_ *source.Live, _ *camera.Capture, err error) {
	if err := inference.Initialize(cfg.ORTLibrary); err != nil {
		return nil, nil, err
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, shutdownRuntime())
		}
	}()
	session := inference.Options{CoreML: cfg.CoreML}

	capture, err := camera.NewCapture(camera.Config{
		DeviceID: cfg.CameraID,
		Width:    cfg.CameraWidth,
		Height:   cfg.CameraHeight,
		FPS:      cfg.CameraFPS,
		Mirror:   cfg.Mirror,
	})
	if err != nil {
		return nil, nil, err
	}

	var finder source.FaceFinder
	if cfg.DetectorModel != "" {
		det, err := detector.NewSCRFD(detector.Config{
			ModelPath:     cfg.DetectorModel,
			InputSize:     cfg.DetectionSize,
			ConfThreshold: cfg.DetectionConf,
			NMSThreshold:  cfg.DetectionNMS,
			MaxFaces:      cfg.MaxFaces,
			Session:       session,
		})
		if err != nil {
			capture.Close()
			return nil, nil, fmt.Errorf("failed to create detector: %w", err)
		}
		finder = det
	} else {
		log.Info(nil, "no detector model configured, using the whole frame")
	}

	mesh, err := meshmodel.New(meshmodel.Config{
		ModelPath:  cfg.MeshModel,
		InputName:  cfg.MeshInput,
		OutputName: cfg.MeshOutput,
		ScoreName:  cfg.MeshScore,
		InputSize:  cfg.MeshInputSize,
		Layout:     cfg.MeshLayout,
		MinScore:   cfg.MeshMinScore,
		Session:    session,
	})
	if err != nil {
		capture.Close()
		if finder != nil {
			finder.Close()
		}
		return nil, nil, fmt.Errorf("failed to load mesh model: %w", err)
	}
	log.Info(log.Fields{
		"source":    capture.Source(),
		"fps":       capture.FPS(),
		"landmarks": mesh.Points(),
		"detector":  finder != nil,
	}, "live source ready")

	live := source.NewLive(capture, finder, mesh, source.LiveOptions{
		ROIScale: cfg.ROIScale,
		MaxFaces: cfg.MaxFaces,
	})
	return live, capture, nil
}

// closeLive releases a live source that never reached run
func closeLive(src *source.Live) error {
	return errors.Join(src.Close(), shutdownRuntime())
}

// run drives src into surf and reports frame counters
func run(ctx context.Context, src pipeline.LandmarkSource, surf pipeline.DrawSurface, dropLate bool) error {
	p := pipeline.New(src, surf, pipeline.Options{QueueSize: cfg.QueueSize, DropLate: dropLate})
	runErr := p.Run(ctx)
	closeErr := p.Close()

	st := p.Stats()
	log.WithRun().WithField("produced", st.Produced).WithField("dropped", st.Dropped).Info("pipeline finished")

	if runErr != nil {
		log.Error(log.Fields{"error": runErr.Error()}, "pipeline stopped")
	}
	return errors.Join(runErr, closeErr, shutdownRuntime())
}
