package model

import (
	"context"
	"fmt"
	"os"

	"github.com/Brownie44l1/stereodepth/internal/tensors"
	"github.com/advancedclimatesystems/gonnx"
	"gorgonia.org/tensor"
)

// GoPredictor interprets a checkpoint in pure Go. It needs no shared library
// but only runs on the CPU and is much slower than onnxruntime.
type GoPredictor struct {
	model    *gonnx.Model
	Metadata Metadata
}

func newGoPredictor(opts Options, meta Metadata) (*GoPredictor, error) {
	if opts.Device != DeviceCPU && opts.Device != "" {
		return nil, fmt.Errorf("%w: go backend only supports the cpu device", ErrBackendUnavailable)
	}
	raw, err := os.ReadFile(opts.CheckpointPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	m, err := gonnx.NewModelFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint: %w", err)
	}
	return &GoPredictor{model: m, Metadata: meta}, nil
}

// Predict runs one forward pass and returns the full-resolution output.
func (p *GoPredictor) Predict(ctx context.Context, left, right *tensor.Dense, iters int) (*tensor.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inputs := map[string]tensor.Tensor{
		p.Metadata.InputNames[0]: left,
		p.Metadata.InputNames[1]: right,
	}
	if p.Metadata.ItersInput != "" {
		inputs[p.Metadata.ItersInput] = tensor.New(
			tensor.Of(tensor.Int64),
			tensor.WithShape(1),
			tensor.WithBacking([]int64{int64(iters)}),
		)
	}

	outputs, err := p.model.Run(inputs)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	final, ok := outputs[p.Metadata.OutputNames[1]]
	if !ok {
		return nil, fmt.Errorf("model produced no output %q", p.Metadata.OutputNames[1])
	}

	data, err := tensors.Float32s(final)
	if err != nil {
		return nil, err
	}
	shape := final.Shape()
	dims := make([]int64, len(shape))
	for i, d := range shape {
		dims[i] = int64(d)
	}
	return tensors.FieldFromShape(append([]float32(nil), data...), dims)
}

// Close is a no-op; the interpreter holds no native resources.
func (p *GoPredictor) Close() error {
	return nil
}
