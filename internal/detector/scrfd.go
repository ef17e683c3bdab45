package detector

import (
	"fmt"
	"image"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/dudu/facemesh/internal/inference"
)

// Config holds SCRFD settings
type Config struct {
	ModelPath     string
	InputSize     int
	ConfThreshold float32
	NMSThreshold  float32
	MaxFaces      int
	Session       inference.Options
}

var (
	featureStrides = [3]int{8, 16, 32}
	scrfdInputs    = []string{"input.1"}
	// 3 levels x (score, bbox, kps)
	scrfdOutputs = []string{
		"score_8", "score_16", "score_32",
		"bbox_8", "bbox_16", "bbox_32",
		"kps_8", "kps_16", "kps_32",
	}
)

// anchors per feature map position
const numAnchors = 2

// SCRFD finds face boxes and five keypoints per face
type SCRFD struct {
	session *inference.Session
	config  Config

	input   *ort.Tensor[float32]
	outputs []*ort.Tensor[float32]
}

// NewSCRFD creates a new SCRFD detector
func NewSCRFD(config Config) (*SCRFD, error) {
	if config.InputSize <= 0 || config.InputSize%32 != 0 {
		return nil, fmt.Errorf("SCRFD input size must be a positive multiple of 32, got %d", config.InputSize)
	}

	session, err := inference.NewSession(config.ModelPath, scrfdInputs, scrfdOutputs, config.Session)
	if err != nil {
		return nil, fmt.Errorf("failed to create SCRFD session: %w", err)
	}

	s := &SCRFD{session: session, config: config}
	if err := s.allocate(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// allocate creates the input and output tensors once; the input size is fixed
func (s *SCRFD) allocate() error {
	size := int64(s.config.InputSize)
	input, err := inference.CreateEmptyTensor[float32]([]int64{1, 3, size, size})
	if err != nil {
		return fmt.Errorf("failed to create input tensor: %w", err)
	}
	s.input = input

	s.outputs = make([]*ort.Tensor[float32], len(scrfdOutputs))
	for level, stride := range featureStrides {
		anchors := int64(s.config.InputSize/stride) * int64(s.config.InputSize/stride) * numAnchors
		for kind, width := range []int64{1, 4, 10} {
			t, err := inference.CreateEmptyTensor[float32]([]int64{anchors, width})
			if err != nil {
				return fmt.Errorf("failed to create output tensor %s: %w", scrfdOutputs[kind*3+level], err)
			}
			s.outputs[kind*3+level] = t
		}
	}
	return nil
}

// Detect finds faces in a BGR image. Boxes and keypoints are in image pixels.
func (s *SCRFD) Detect(img gocv.Mat) ([]Face, error) {
	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	scale := s.preprocess(img)

	outputs := make([]ort.Value, len(s.outputs))
	for i, t := range s.outputs {
		outputs[i] = t
	}
	if err := s.session.Run([]ort.Value{s.input}, outputs); err != nil {
		return nil, fmt.Errorf("SCRFD inference failed (%s): %w", s.session.ModelPath(), err)
	}

	var faces []Face
	for level, stride := range featureStrides {
		faces = decodeLevel(faces, levelOutput{
			scores: s.outputs[level].GetData(),
			boxes:  s.outputs[level+3].GetData(),
			kps:    s.outputs[level+6].GetData(),
			stride: stride,
			size:   s.config.InputSize,
		}, scale, s.config.ConfThreshold, img.Cols(), img.Rows())
	}

	return nms(faces, s.config.NMSThreshold, s.config.MaxFaces), nil
}

// preprocess letterboxes img into the input tensor and returns the scale
// from image pixels to input pixels
func (s *SCRFD) preprocess(img gocv.Mat) float32 {
	size := s.config.InputSize
	scale := float32(size) / float32(max(img.Rows(), img.Cols()))
	newWidth := int(float32(img.Cols()) * scale)
	newHeight := int(float32(img.Rows()) * scale)

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, image.Pt(newWidth, newHeight), 0, 0, gocv.InterpolationLinear)

	padded := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), size, size, gocv.MatTypeCV8UC3)
	defer padded.Close()
	roi := padded.Region(image.Rect(0, 0, newWidth, newHeight))
	resized.CopyTo(&roi)
	roi.Close()

	// (x - 127.5) / 128, RGB, NCHW
	blob := gocv.BlobFromImage(padded, 1.0/128.0, image.Pt(size, size),
		gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	data, err := blob.DataPtrFloat32()
	if err == nil {
		copy(s.input.GetData(), data)
	}
	return scale
}

// levelOutput holds the raw outputs of one feature level
type levelOutput struct {
	scores []float32
	boxes  []float32
	kps    []float32
	stride int
	size   int
}

// decodeLevel appends every anchor of one level scoring above conf,
// converted back to image pixels and clamped to the image
func decodeLevel(faces []Face, out levelOutput, scale, conf float32, width, height int) []Face {
	fm := out.size / out.stride
	stride := float32(out.stride)
	w, h := float32(width), float32(height)

	anchor := 0
	for y := 0; y < fm; y++ {
		for x := 0; x < fm; x++ {
			for a := 0; a < numAnchors; a, anchor = a+1, anchor+1 {
				if anchor >= len(out.scores) {
					return faces
				}
				score := out.scores[anchor]
				if score <= conf {
					continue
				}

				cx := (float32(x) + 0.5) * stride
				cy := (float32(y) + 0.5) * stride
				d := out.boxes[anchor*4 : anchor*4+4]
				box := BoundingBox{
					X1: clamp((cx-d[0]*stride)/scale, 0, w),
					Y1: clamp((cy-d[1]*stride)/scale, 0, h),
					X2: clamp((cx+d[2]*stride)/scale, 0, w),
					Y2: clamp((cy+d[3]*stride)/scale, 0, h),
				}

				k := out.kps[anchor*10 : anchor*10+10]
				pt := func(i int) Point {
					return Point{(cx + k[2*i]*stride) / scale, (cy + k[2*i+1]*stride) / scale}
				}

				faces = append(faces, Face{
					BoundingBox: box,
					Keypoints: Keypoints{
						LeftEye:    pt(0),
						RightEye:   pt(1),
						Nose:       pt(2),
						LeftMouth:  pt(3),
						RightMouth: pt(4),
					},
					Score: score,
				})
			}
		}
	}
	return faces
}

// Close releases detector resources
func (s *SCRFD) Close() error {
	if s.input != nil {
		s.input.Destroy()
		s.input = nil
	}
	for _, t := range s.outputs {
		if t != nil {
			t.Destroy()
		}
	}
	s.outputs = nil
	return s.session.Destroy()
}

func clamp(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
