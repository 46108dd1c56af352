package model

import (
	"fmt"
	"os"
	"slices"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// Backend selects the ONNX execution engine.
type Backend string

const (
	BackendORT Backend = "ort" // onnxruntime through its shared library (default).
	BackendGo  Backend = "go"  // Pure Go interpreter, CPU only.
)

// Device selects where the ORT backend runs.
type Device string

const (
	DeviceCPU  Device = "cpu"
	DeviceCUDA Device = "cuda"
)

// CorrImplementation names how the network builds its correlation volume.
type CorrImplementation string

const (
	CorrReg     CorrImplementation = "reg"
	CorrAlt     CorrImplementation = "alt"
	CorrRegCUDA CorrImplementation = "reg_cuda"
	CorrAltCUDA CorrImplementation = "alt_cuda"
)

// Architecture holds the hyperparameters a checkpoint was built with.
type Architecture struct {
	HiddenDims         []int              `json:"hidden_dims"`
	CorrImplementation CorrImplementation `json:"corr_implementation"`
	CorrLevels         int                `json:"corr_levels"`
	CorrRadius         int                `json:"corr_radius"`
	NDownsample        int                `json:"n_downsample"`
	NGRULayers         int                `json:"n_gru_layers"`
	SharedBackbone     bool               `json:"shared_backbone"`
	SlowFastGRU        bool               `json:"slow_fast_gru"`
	MixedPrecision     bool               `json:"mixed_precision"`
}

// DefaultArchitecture is the standard RAFT-Stereo configuration.
func DefaultArchitecture() Architecture {
	return Architecture{
		HiddenDims:         []int{128, 128, 128},
		CorrImplementation: CorrReg,
		CorrLevels:         4,
		CorrRadius:         4,
		NDownsample:        3,
		NGRULayers:         3,
	}
}

// Metadata is the JSON sidecar exported next to a checkpoint.
type Metadata struct {
	Architecture Architecture `json:"architecture"`
	// InputNames are the left and right image inputs, in that order.
	InputNames []string `json:"input_names"`
	// OutputNames are the coarse and the full-resolution outputs, in that order.
	OutputNames []string `json:"output_names"`
	// ItersInput names an int64 input receiving the refinement iteration count.
	// Empty when the count was fixed at export time.
	ItersInput string `json:"iters_input,omitempty"`
	// Iters is the iteration count baked into the export, if any.
	Iters int `json:"iters,omitempty"`
}

// ReadMetadata loads and validates a metadata file. Missing tensor names
// default to left/right and flow/flow_up.
func ReadMetadata(path string) (Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	meta := Metadata{Architecture: DefaultArchitecture()}
	if err := jsoniter.Unmarshal(raw, &meta); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if len(meta.InputNames) == 0 {
		meta.InputNames = []string{"left", "right"}
	}
	if len(meta.OutputNames) == 0 {
		meta.OutputNames = []string{"flow", "flow_up"}
	}
	if len(meta.InputNames) != 2 {
		return Metadata{}, fmt.Errorf("metadata lists %d image inputs, want 2", len(meta.InputNames))
	}
	if len(meta.OutputNames) != 2 {
		return Metadata{}, fmt.Errorf("metadata lists %d outputs, want 2 (coarse, full resolution)", len(meta.OutputNames))
	}
	return meta, nil
}

// FieldMismatch is one architecture field that differs from the checkpoint.
type FieldMismatch struct {
	Field      string
	Configured any
	Checkpoint any
}

// ArchitectureMismatchError is returned when the configured architecture
// cannot load the checkpoint's parameters.
type ArchitectureMismatchError struct {
	Fields []FieldMismatch
}

func (e *ArchitectureMismatchError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = fmt.Sprintf("%s: configured %v, checkpoint %v", f.Field, f.Configured, f.Checkpoint)
	}
	return fmt.Sprintf("%v (%s)", ErrArchitectureMismatch, strings.Join(parts, "; "))
}

func (e *ArchitectureMismatchError) Unwrap() error {
	return ErrArchitectureMismatch
}

// CheckCompatible compares a configured architecture against the one a
// checkpoint was exported with. Fields that shape parameters must match.
// Fields that only change how the forward pass runs are reported as
// warnings, since an exported graph has them fixed already.
func (a Architecture) CheckCompatible(ckpt Architecture) (warnings []string, err error) {
	var mismatches []FieldMismatch
	check := func(field string, configured, checkpoint any, equal bool) {
		if !equal {
			mismatches = append(mismatches, FieldMismatch{Field: field, Configured: configured, Checkpoint: checkpoint})
		}
	}
	check("hidden_dims", a.HiddenDims, ckpt.HiddenDims, slices.Equal(a.HiddenDims, ckpt.HiddenDims))
	check("corr_levels", a.CorrLevels, ckpt.CorrLevels, a.CorrLevels == ckpt.CorrLevels)
	check("corr_radius", a.CorrRadius, ckpt.CorrRadius, a.CorrRadius == ckpt.CorrRadius)
	check("n_downsample", a.NDownsample, ckpt.NDownsample, a.NDownsample == ckpt.NDownsample)
	check("n_gru_layers", a.NGRULayers, ckpt.NGRULayers, a.NGRULayers == ckpt.NGRULayers)
	check("shared_backbone", a.SharedBackbone, ckpt.SharedBackbone, a.SharedBackbone == ckpt.SharedBackbone)
	if len(mismatches) > 0 {
		return nil, &ArchitectureMismatchError{Fields: mismatches}
	}

	if a.CorrImplementation != ckpt.CorrImplementation {
		warnings = append(warnings, fmt.Sprintf("corr_implementation %q requested, graph was exported with %q",
			a.CorrImplementation, ckpt.CorrImplementation))
	}
	if a.SlowFastGRU != ckpt.SlowFastGRU {
		warnings = append(warnings, fmt.Sprintf("slow_fast_gru=%t requested, graph was exported with %t",
			a.SlowFastGRU, ckpt.SlowFastGRU))
	}
	if a.MixedPrecision != ckpt.MixedPrecision {
		warnings = append(warnings, fmt.Sprintf("mixed_precision=%t requested, graph was exported with %t",
			a.MixedPrecision, ckpt.MixedPrecision))
	}
	return warnings, nil
}
