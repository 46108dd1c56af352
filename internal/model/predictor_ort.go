//go:build !NOORT

package model

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/Brownie44l1/stereodepth/internal/tensors"
	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"
)

// ORTPredictor runs a checkpoint through onnxruntime.
type ORTPredictor struct {
	session  *ort.DynamicAdvancedSession
	options  *ort.SessionOptions
	Metadata Metadata
}

func newORTPredictor(opts Options, meta Metadata) (*ORTPredictor, error) {
	if err := initEnvironment(opts.LibraryPath); err != nil {
		return nil, err
	}

	sessionOptions, err := ort.NewSessionOptions()
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	p := &ORTPredictor{options: sessionOptions, Metadata: meta}

	if err := p.configure(opts); err != nil {
		p.Close()
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(opts.CheckpointPath,
		inputNames(meta), meta.OutputNames, sessionOptions)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	p.session = session
	return p, nil
}

func initEnvironment(libraryPath string) error {
	if libraryPath == "" {
		libraryPath = os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}
	if err := ort.DisableTelemetry(); err != nil {
		ort.DestroyEnvironment()
		return fmt.Errorf("failed to disable ONNX telemetry: %w", err)
	}
	return nil
}

func (p *ORTPredictor) configure(opts Options) error {
	if opts.Threads > 0 {
		if err := p.options.SetIntraOpNumThreads(opts.Threads); err != nil {
			return fmt.Errorf("failed to set thread count: %w", err)
		}
	}
	switch opts.Device {
	case DeviceCPU, "":
	case DeviceCUDA:
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return fmt.Errorf("%w: cuda: %v", ErrBackendUnavailable, err)
		}
		defer cudaOptions.Destroy()
		if err := p.options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
			return fmt.Errorf("%w: cuda: %v", ErrBackendUnavailable, err)
		}
	default:
		return fmt.Errorf("%w: unknown device %q", ErrBackendUnavailable, opts.Device)
	}
	return nil
}

// Predict runs one forward pass. Output tensors are allocated by onnxruntime
// and released before returning; only the full-resolution output is copied out.
func (p *ORTPredictor) Predict(ctx context.Context, left, right *tensor.Dense, iters int) (_ *tensor.Dense, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inputs := make([]ort.Value, 0, 3)
	defer func() {
		for _, v := range inputs {
			err = errors.Join(err, v.Destroy())
		}
	}()
	for _, img := range []*tensor.Dense{left, right} {
		v, err := imageValue(img)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, v)
	}
	if p.Metadata.ItersInput != "" {
		v, err := ort.NewTensor(ort.NewShape(1), []int64{int64(iters)})
		if err != nil {
			return nil, fmt.Errorf("failed to create iteration tensor: %w", err)
		}
		inputs = append(inputs, v)
	}

	outputs := make([]ort.Value, len(p.Metadata.OutputNames))
	defer func() {
		for _, v := range outputs {
			if v != nil {
				err = errors.Join(err, v.Destroy())
			}
		}
	}()
	if err := p.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	final, ok := outputs[1].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("output %q is %T, want float32 tensor", p.Metadata.OutputNames[1], outputs[1])
	}
	data := append([]float32(nil), final.GetData()...)
	return tensors.FieldFromShape(data, final.GetShape())
}

func imageValue(img *tensor.Dense) (*ort.Tensor[float32], error) {
	c, h, w, err := tensors.Size(img)
	if err != nil {
		return nil, err
	}
	data, err := tensors.Float32s(img)
	if err != nil {
		return nil, err
	}
	v, err := ort.NewTensor(ort.NewShape(1, int64(c), int64(h), int64(w)), data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	return v, nil
}

// Close releases the session and the onnxruntime environment.
func (p *ORTPredictor) Close() error {
	var err error
	if p.session != nil {
		err = errors.Join(err, p.session.Destroy())
	}
	if p.options != nil {
		err = errors.Join(err, p.options.Destroy())
	}
	return errors.Join(err, ort.DestroyEnvironment())
}

// IOInfo describes one graph input or output.
type IOInfo struct {
	Name       string
	Dimensions []int64
	DataType   string
}

// Describe lists the inputs and outputs of an ONNX file.
func Describe(path, libraryPath string) (inputs, outputs []IOInfo, err error) {
	if err := initEnvironment(libraryPath); err != nil {
		return nil, nil, err
	}
	defer func() {
		err = errors.Join(err, ort.DestroyEnvironment())
	}()

	in, out, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return convertInfo(in), convertInfo(out), nil
}

func convertInfo(infos []ort.InputOutputInfo) []IOInfo {
	out := make([]IOInfo, len(infos))
	for i, info := range infos {
		out[i] = IOInfo{
			Name:       info.Name,
			Dimensions: append([]int64(nil), info.Dimensions...),
			DataType:   fmt.Sprint(info.DataType),
		}
	}
	return out
}
