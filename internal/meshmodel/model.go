// Package meshmodel runs a face mesh regression model on a region of a frame.
//
// The model takes a square RGB crop scaled to [0,1] and returns 468 (or 478
// with iris refinement) points in crop pixels, optionally with a face
// presence logit.
package meshmodel

import (
	"fmt"
	"image"
	"math"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/dudu/facemesh/internal/detector"
	"github.com/dudu/facemesh/internal/inference"
	"github.com/dudu/facemesh/internal/landmark"
	"github.com/dudu/facemesh/internal/log"
)

// Input layouts
const (
	LayoutNHWC = "nhwc"
	LayoutNCHW = "nchw"
)

// Config holds mesh model settings. Empty tensor names are resolved from the
// model: the first input, and the first output holding 468 or 478 points.
type Config struct {
	ModelPath  string
	InputName  string
	OutputName string
	// ScoreName is the face presence output; empty disables scoring
	ScoreName string
	InputSize int
	Layout    string
	MinScore  float32
	Session   inference.Options
}

// Model is a loaded face mesh model
type Model struct {
	session *inference.Session
	config  Config
	shapes  shapes
	points  int

	input     *ort.Tensor[float32]
	landmarks *ort.Tensor[float32]
	score     *ort.Tensor[float32]

	crop   gocv.Mat
	rgb    gocv.Mat
	scaled gocv.Mat
	affine gocv.Mat
}

// New loads the model at config.ModelPath
func New(config Config) (*Model, error) {
	if config.InputSize <= 0 {
		return nil, fmt.Errorf("mesh input size must be positive, got %d", config.InputSize)
	}
	if config.Layout != LayoutNHWC && config.Layout != LayoutNCHW {
		return nil, fmt.Errorf("unknown mesh input layout %q", config.Layout)
	}

	info, err := inference.Inspect(config.ModelPath)
	if err != nil {
		return nil, err
	}
	config, sh, err := resolve(config, info)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ModelPath, err)
	}

	outputs := []string{config.OutputName}
	if config.ScoreName != "" {
		outputs = append(outputs, config.ScoreName)
	}
	session, err := inference.NewSession(config.ModelPath, []string{config.InputName}, outputs, config.Session)
	if err != nil {
		return nil, fmt.Errorf("failed to create mesh session: %w", err)
	}

	m := &Model{
		session: session,
		config:  config,
		shapes:  sh,
		points:  sh.points,
		crop:    gocv.NewMat(),
		rgb:     gocv.NewMat(),
		scaled:  gocv.NewMat(),
		affine:  gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F),
	}
	if err := m.allocate(); err != nil {
		m.Close()
		return nil, err
	}

	log.Info(log.Fields{
		"model":  config.ModelPath,
		"points": sh.points,
		"input":  config.InputName,
		"output": config.OutputName,
		"score":  config.ScoreName,
	}, "mesh model loaded")
	return m, nil
}

// shapes are the tensor shapes the model declares. The runtime checks
// output tensors against them, so they are allocated exactly.
type shapes struct {
	input     []int64
	landmarks []int64
	score     []int64
	points    int
}

// resolve fills in empty tensor names and reads the tensor shapes
func resolve(config Config, info *inference.ModelInfo) (Config, shapes, error) {
	var sh shapes
	if len(info.Inputs) == 0 || len(info.Outputs) == 0 {
		return config, sh, fmt.Errorf("model has no inputs or outputs")
	}
	if config.InputName == "" {
		config.InputName = info.Inputs[0].Name
	}
	for _, in := range info.Inputs {
		if in.Name == config.InputName {
			sh.input = staticShape(in.Shape)
		}
	}

	var output *inference.TensorInfo
	for i := range info.Outputs {
		o := &info.Outputs[i]
		if config.OutputName == "" && validPoints(o.Elements()/3) && o.Elements()%3 == 0 {
			config.OutputName = o.Name
		}
		if o.Name == config.OutputName {
			output = o
		}
	}
	if output == nil {
		return config, sh, fmt.Errorf("no landmark output found (set the output name explicitly)")
	}

	n := output.Elements()
	if n < 0 || n%3 != 0 || !validPoints(n/3) {
		return config, sh, fmt.Errorf("output %s has shape %v, want %d or %d points x 3",
			output.Name, output.Shape, landmark.NumLandmarks, landmark.NumLandmarksWithIrises)
	}
	sh.points = int(n / 3)
	sh.landmarks = output.Shape

	if config.ScoreName != "" {
		for _, o := range info.Outputs {
			if o.Name == config.ScoreName {
				sh.score = o.Shape
			}
		}
		if sh.score == nil {
			return config, sh, fmt.Errorf("score output %s not found", config.ScoreName)
		}
		if (inference.TensorInfo{Shape: sh.score}).Elements() != 1 {
			return config, sh, fmt.Errorf("score output %s has shape %v, want a single value", config.ScoreName, sh.score)
		}
	}
	return config, sh, nil
}

// staticShape returns shape with a dynamic batch dimension fixed to 1, or
// nil when any other dimension is dynamic
func staticShape(shape []int64) []int64 {
	out := make([]int64, len(shape))
	for i, d := range shape {
		switch {
		case d > 0:
			out[i] = d
		case i == 0:
			out[i] = 1
		default:
			return nil
		}
	}
	return out
}

func validPoints(n int64) bool {
	return n == landmark.NumLandmarks || n == landmark.NumLandmarksWithIrises
}

func (m *Model) allocate() error {
	size := int64(m.config.InputSize)
	shape := []int64{1, size, size, 3}
	if m.config.Layout == LayoutNCHW {
		shape = []int64{1, 3, size, size}
	}
	if m.shapes.input != nil {
		if (inference.TensorInfo{Shape: m.shapes.input}).Elements() != size*size*3 {
			return fmt.Errorf("input %s has shape %v, want %d x %d x 3",
				m.config.InputName, m.shapes.input, size, size)
		}
		shape = m.shapes.input
	}

	var err error
	if m.input, err = inference.CreateEmptyTensor[float32](shape); err != nil {
		return fmt.Errorf("failed to create input tensor: %w", err)
	}
	if m.landmarks, err = inference.CreateEmptyTensor[float32](staticShape(m.shapes.landmarks)); err != nil {
		return fmt.Errorf("failed to create landmark tensor: %w", err)
	}
	if m.config.ScoreName != "" {
		if m.score, err = inference.CreateEmptyTensor[float32](staticShape(m.shapes.score)); err != nil {
			return fmt.Errorf("failed to create score tensor: %w", err)
		}
	}
	return nil
}

// Points returns the number of landmarks the model produces
func (m *Model) Points() int {
	return m.points
}

// Infer runs the model on roi of a BGR frame. The face is returned in
// normalized full-frame coordinates. ok is false when the face presence
// score is below the configured minimum.
func (m *Model) Infer(frame gocv.Mat, roi detector.ROI) (face landmark.Face, score float32, ok bool, err error) {
	if frame.Empty() {
		return nil, 0, false, fmt.Errorf("empty frame")
	}
	m.preprocess(frame, roi)

	outputs := []ort.Value{m.landmarks}
	if m.score != nil {
		outputs = append(outputs, m.score)
	}
	if err := m.session.Run([]ort.Value{m.input}, outputs); err != nil {
		return nil, 0, false, fmt.Errorf("mesh inference failed (%s): %w", m.session.ModelPath(), err)
	}

	score = 1
	if m.score != nil {
		score = sigmoid(m.score.GetData()[0])
		if score < m.config.MinScore {
			return nil, score, false, nil
		}
	}

	face = decode(m.landmarks.GetData(), m.points, m.config.InputSize, roi, frame.Cols(), frame.Rows())
	return face, score, true, nil
}

// preprocess crops roi into the input tensor as RGB scaled to [0,1]
func (m *Model) preprocess(frame gocv.Mat, roi detector.ROI) {
	size := m.config.InputSize
	a := roi.Affine(size)
	for i, v := range a {
		m.affine.SetDoubleAt(i/3, i%3, v)
	}

	gocv.WarpAffine(frame, &m.crop, m.affine, image.Pt(size, size))
	gocv.CvtColor(m.crop, &m.rgb, gocv.ColorBGRToRGB)

	if m.config.Layout == LayoutNCHW {
		blob := gocv.BlobFromImage(m.rgb, 1.0/255.0, image.Pt(size, size),
			gocv.NewScalar(0, 0, 0, 0), false, false)
		defer blob.Close()
		if data, err := blob.DataPtrFloat32(); err == nil {
			copy(m.input.GetData(), data)
		}
		return
	}

	m.rgb.ConvertToWithParams(&m.scaled, gocv.MatTypeCV32FC3, 1.0/255.0, 0)
	if data, err := m.scaled.DataPtrFloat32(); err == nil {
		copy(m.input.GetData(), data)
	}
}

// decode maps raw crop-pixel points to normalized frame coordinates.
// Z is scaled with the same factor as X.
func decode(raw []float32, points, inputSize int, roi detector.ROI, width, height int) landmark.Face {
	face := make(landmark.Face, points)
	s := float32(inputSize)
	zScale := roi.Size / s / float32(width)
	for i := range face {
		x, y, z := raw[i*3], raw[i*3+1], raw[i*3+2]
		p := roi.ToFrame(x/s, y/s)
		face[i] = landmark.Landmark{
			X: p.X / float32(width),
			Y: p.Y / float32(height),
			Z: z * zScale,
		}
	}
	return face
}

// Close releases model resources
func (m *Model) Close() error {
	for _, t := range []*ort.Tensor[float32]{m.input, m.landmarks, m.score} {
		if t != nil {
			t.Destroy()
		}
	}
	m.input, m.landmarks, m.score = nil, nil, nil
	for _, mat := range []*gocv.Mat{&m.crop, &m.rgb, &m.scaled, &m.affine} {
		mat.Close()
	}
	return m.session.Destroy()
}

func sigmoid(x float32) float32 {
	return 1.0 / (1.0 + float32(math.Exp(float64(-x))))
}
