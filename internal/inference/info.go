package inference

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// TensorInfo describes one model input or output
type TensorInfo struct {
	Name     string
	Shape    []int64
	DataType string
}

// Metadata is the descriptive part of a model file
type Metadata struct {
	Producer    string
	Domain      string
	Description string
	Version     int64
}

// ModelInfo describes the inputs, outputs and metadata of an ONNX model
type ModelInfo struct {
	Inputs   []TensorInfo
	Outputs  []TensorInfo
	Metadata Metadata
}

// Inspect reads the tensor layout of a model without creating a session.
// Initialize must have been called.
func Inspect(modelPath string) (*ModelInfo, error) {
	if !isInitialized() {
		return nil, fmt.Errorf("ONNX Runtime not initialized, call Initialize() first")
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model info from %s: %w", modelPath, err)
	}

	info := &ModelInfo{
		Inputs:  convertInfo(inputs),
		Outputs: convertInfo(outputs),
	}

	// Metadata is optional; many exported models carry none
	if metadata, err := ort.GetModelMetadata(modelPath); err == nil {
		if producer, err := metadata.GetProducerName(); err == nil {
			info.Metadata.Producer = producer
		}
		if domain, err := metadata.GetDomain(); err == nil {
			info.Metadata.Domain = domain
		}
		if desc, err := metadata.GetDescription(); err == nil {
			info.Metadata.Description = desc
		}
		if version, err := metadata.GetVersion(); err == nil {
			info.Metadata.Version = version
		}
		metadata.Destroy()
	}

	return info, nil
}

func convertInfo(in []ort.InputOutputInfo) []TensorInfo {
	out := make([]TensorInfo, len(in))
	for i, v := range in {
		out[i] = TensorInfo{
			Name:     v.Name,
			Shape:    append([]int64(nil), v.Dimensions...),
			DataType: fmt.Sprint(v.DataType),
		}
	}
	return out
}

// Elements returns the number of elements of one batch item: a dynamic
// leading dimension counts as 1. It returns -1 when any other dimension is
// dynamic.
func (t TensorInfo) Elements() int64 {
	n := int64(1)
	for i, d := range t.Shape {
		switch {
		case d > 0:
			n *= d
		case i == 0:
		default:
			return -1
		}
	}
	return n
}
