//go:build NOORT

package model

import "fmt"

func newORTPredictor(_ Options, _ Metadata) (Predictor, error) {
	return nil, fmt.Errorf("%w: ort backend not compiled (built with NOORT)", ErrBackendUnavailable)
}

// IOInfo describes one graph input or output.
type IOInfo struct {
	Name       string
	Dimensions []int64
	DataType   string
}

// Describe needs onnxruntime and is unavailable in NOORT builds.
func Describe(_, _ string) ([]IOInfo, []IOInfo, error) {
	return nil, nil, fmt.Errorf("%w: ort backend not compiled (built with NOORT)", ErrBackendUnavailable)
}
