package model

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gorgonia.org/tensor"
)

var (
	// ErrArchitectureMismatch is matched by an *ArchitectureMismatchError.
	ErrArchitectureMismatch = errors.New("checkpoint does not match the configured architecture")

	// ErrBackendUnavailable is returned when a backend was compiled out or
	// cannot serve the requested device.
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// Predictor runs a stereo network on one pair of padded image tensors.
//
// left and right are [1, 3, H, W] float32 tensors with pixel values in 0..255.
// The result is the network's full-resolution output as a [1, 1, H, W]
// tensor; any intermediate outputs are discarded.
type Predictor interface {
	Predict(ctx context.Context, left, right *tensor.Dense, iters int) (*tensor.Dense, error)
	Close() error
}

// Options configure Load.
type Options struct {
	CheckpointPath string
	// MetadataPath defaults to CheckpointPath + ".json".
	MetadataPath string
	Backend      Backend
	Device       Device
	// LibraryPath points at the onnxruntime shared library. When empty the
	// ONNXRUNTIME_SHARED_LIBRARY_PATH environment variable is used, then the
	// library's own default.
	LibraryPath  string
	Threads      int
	Architecture Architecture
	Iters        int
}

// Load reads the checkpoint metadata, verifies it against the configured
// architecture and opens the checkpoint with the selected backend.
func Load(ctx context.Context, opts Options) (Predictor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	meta, err := ReadMetadata(opts.MetadataFile())
	if err != nil {
		return nil, err
	}

	warnings, err := opts.Architecture.CheckCompatible(meta.Architecture)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", opts.CheckpointPath, err)
	}
	for _, w := range warnings {
		log.Printf("warning: %s", w)
	}
	if meta.ItersInput == "" && meta.Iters > 0 && meta.Iters != opts.Iters {
		log.Printf("warning: %d iterations requested, graph runs a fixed %d", opts.Iters, meta.Iters)
	}

	var p Predictor
	switch opts.Backend {
	case BackendORT, "":
		p, err = newORTPredictor(opts, meta)
	case BackendGo:
		p, err = newGoPredictor(opts, meta)
	default:
		err = fmt.Errorf("%w: unknown backend %q", ErrBackendUnavailable, opts.Backend)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// MetadataFile returns MetadataPath, or the checkpoint path with ".json"
// appended when it is empty.
func (o Options) MetadataFile() string {
	if o.MetadataPath != "" {
		return o.MetadataPath
	}
	return o.CheckpointPath + ".json"
}

// inputNames lists the graph inputs in the order Predict feeds them.
func inputNames(meta Metadata) []string {
	names := append([]string(nil), meta.InputNames...)
	if meta.ItersInput != "" {
		names = append(names, meta.ItersInput)
	}
	return names
}
