package classifiers

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// TensorLayout is the dimension order of a rank-4 image input.
type TensorLayout int

const (
	LayoutNHWC TensorLayout = iota
	LayoutNCHW
)

func (l TensorLayout) String() string {
	if l == LayoutNCHW {
		return "NCHW"
	}
	return "NHWC"
}

// InputSpec describes the image input of a graph with every dynamic
// dimension resolved.
type InputSpec struct {
	Name   string
	Layout TensorLayout
	Height int
	Width  int
	Shape  ort.Shape
}

type OutputSpec struct {
	Name  string
	Shape ort.Shape
}

func resolveInput(info ort.InputOutputInfo) (InputSpec, error) {
	if info.OrtValueType != ort.ONNXTypeTensor {
		return InputSpec{}, fmt.Errorf("input %q is not a tensor (%v)", info.Name, info.OrtValueType)
	}
	if info.DataType != ort.TensorElementDataTypeFloat {
		return InputSpec{}, fmt.Errorf("input %q has element type %v, want float", info.Name, info.DataType)
	}
	dims := info.Dimensions
	if len(dims) != 4 {
		return InputSpec{}, fmt.Errorf("input %q has rank %d, want 4 (batch, spatial, channels)", info.Name, len(dims))
	}

	batch := dims[0]
	if batch <= 0 {
		batch = 1
	}
	if batch != 1 {
		return InputSpec{}, fmt.Errorf("input %q has fixed batch size %d, want 1", info.Name, dims[0])
	}

	spec := InputSpec{Name: info.Name}
	var h, w int64
	switch {
	case dims[3] == 3:
		spec.Layout = LayoutNHWC
		h, w = dims[1], dims[2]
	case dims[1] == 3:
		spec.Layout = LayoutNCHW
		h, w = dims[2], dims[3]
	default:
		return InputSpec{}, fmt.Errorf("input %q shape %v has no 3-channel axis", info.Name, dims)
	}
	if h <= 0 || w <= 0 {
		return InputSpec{}, fmt.Errorf("input %q shape %v has dynamic spatial dimensions", info.Name, dims)
	}

	spec.Height, spec.Width = int(h), int(w)
	if spec.Layout == LayoutNHWC {
		spec.Shape = ort.NewShape(1, h, w, 3)
	} else {
		spec.Shape = ort.NewShape(1, 3, h, w)
	}
	return spec, nil
}

func resolveOutput(info ort.InputOutputInfo) (OutputSpec, error) {
	if info.OrtValueType != ort.ONNXTypeTensor {
		return OutputSpec{}, fmt.Errorf("output %q is not a tensor (%v)", info.Name, info.OrtValueType)
	}
	if info.DataType != ort.TensorElementDataTypeFloat {
		return OutputSpec{}, fmt.Errorf("output %q has element type %v, want float", info.Name, info.DataType)
	}
	if len(info.Dimensions) == 0 {
		return OutputSpec{Name: info.Name, Shape: ort.NewShape(1)}, nil
	}

	dims := make([]int64, len(info.Dimensions))
	for i, d := range info.Dimensions {
		if d < 0 {
			d = 1
		}
		if d == 0 {
			return OutputSpec{}, fmt.Errorf("output %q shape %v is empty", info.Name, info.Dimensions)
		}
		dims[i] = d
	}
	return OutputSpec{Name: info.Name, Shape: ort.NewShape(dims...)}, nil
}

// resolveShapes picks the single image input and the first output of a graph.
func resolveShapes(inputs, outputs []ort.InputOutputInfo) (InputSpec, OutputSpec, error) {
	if len(inputs) != 1 {
		return InputSpec{}, OutputSpec{}, fmt.Errorf("graph has %d inputs, want 1", len(inputs))
	}
	if len(outputs) == 0 {
		return InputSpec{}, OutputSpec{}, fmt.Errorf("graph has no outputs")
	}
	in, err := resolveInput(inputs[0])
	if err != nil {
		return InputSpec{}, OutputSpec{}, err
	}
	out, err := resolveOutput(outputs[0])
	if err != nil {
		return InputSpec{}, OutputSpec{}, err
	}
	return in, out, nil
}
