// Package tensors holds the small set of helpers used to move image and
// disparity data in and out of gorgonia dense tensors.
//
// Two layouts are used throughout the module:
//   - image tensors: [1, C, H, W] float32, channel-first, values in 0..255
//   - field tensors: [1, 1, H, W] float32, one disparity value per pixel
package tensors

import (
	"fmt"

	"gorgonia.org/tensor"
)

// Image wraps channel-first pixel data of the given size in a [1, C, H, W] tensor.
func Image(data []float32, channels, height, width int) *tensor.Dense {
	return tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(1, channels, height, width),
		tensor.WithBacking(data),
	)
}

// Field wraps a single-channel prediction in a [1, 1, H, W] tensor.
func Field(data []float32, height, width int) *tensor.Dense {
	return Image(data, 1, height, width)
}

// Float32s returns the backing data of t. Tensors that collapse to a scalar
// are returned as a one element slice.
func Float32s(t tensor.Tensor) ([]float32, error) {
	switch data := t.Data().(type) {
	case []float32:
		return data, nil
	case float32:
		return []float32{data}, nil
	default:
		return nil, fmt.Errorf("expected float32 tensor, got %T", data)
	}
}

// Size returns the channel count and spatial size of a [1, C, H, W] tensor.
func Size(t tensor.Tensor) (channels, height, width int, err error) {
	shape := t.Shape()
	if len(shape) != 4 || shape[0] != 1 {
		return 0, 0, 0, fmt.Errorf("expected [1 C H W] tensor, got shape %v", []int(shape))
	}
	return shape[1], shape[2], shape[3], nil
}

// FieldFromShape builds a field tensor from a flat prediction and the shape the
// model reported for it. Only the last two dimensions are kept; every leading
// dimension must be 1.
func FieldFromShape(data []float32, shape []int64) (*tensor.Dense, error) {
	if len(shape) < 2 {
		return nil, fmt.Errorf("prediction has shape %v, want at least 2 dimensions", shape)
	}
	for _, d := range shape[:len(shape)-2] {
		if d != 1 {
			return nil, fmt.Errorf("prediction has shape %v, want a single-channel batch of 1", shape)
		}
	}
	height, width := int(shape[len(shape)-2]), int(shape[len(shape)-1])
	if height*width != len(data) {
		return nil, fmt.Errorf("prediction has %d values, shape %v needs %d", len(data), shape, height*width)
	}
	return Field(data, height, width), nil
}
