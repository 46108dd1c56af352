// Package config holds the settings of a batch run.
package config

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/Brownie44l1/stereodepth/internal/model"
	"github.com/Brownie44l1/stereodepth/internal/padding"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full set of options for one run. It is built once from
// defaults, an optional config file and flags, then passed down explicitly.
type Config struct {
	Checkpoint   string
	MetadataPath string

	OutputDirectory string
	Folder          string

	LeftImgs  string
	RightImgs string

	Manifest     bool
	ManifestFile string
	ManifestRoot string

	SaveNumpy  bool
	ValidIters int

	Architecture model.Architecture

	DivisBy int
	PadMode padding.Mode
	Scale   float64

	// VMin and VMax fix the color range; nil means auto-scale.
	VMin, VMax *float64

	AllowCountMismatch bool

	Backend     model.Backend
	Device      model.Device
	LibraryPath string
	Threads     int

	Verbose bool
}

// DefaultConfig returns the settings used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Checkpoint:      filepath.Join("checkpoints", "raft_stereo.onnx"),
		OutputDirectory: "demo_output",
		Folder:          "run",
		LeftImgs:        "datasets/left/*.png",
		RightImgs:       "datasets/right/*.png",
		ManifestFile:    filepath.Join("splits", "test_files.txt"),
		ManifestRoot:    "rendered_data",
		SaveNumpy:       true,
		ValidIters:      32,
		Architecture:    model.DefaultArchitecture(),
		DivisBy:         32,
		PadMode:         padding.ModeSintel,
		Scale:           1,
		Backend:         model.BackendORT,
		Device:          model.DeviceCPU,
	}
}

// Validate checks enum values and numeric ranges.
func (c Config) Validate() error {
	switch c.Backend {
	case model.BackendORT, model.BackendGo:
	default:
		return fmt.Errorf("%w: backend %q (use 'ort' or 'go')", ErrInvalid, c.Backend)
	}

	switch c.Device {
	case model.DeviceCPU, model.DeviceCUDA:
	default:
		return fmt.Errorf("%w: device %q (use 'cpu' or 'cuda')", ErrInvalid, c.Device)
	}

	switch c.Architecture.CorrImplementation {
	case model.CorrReg, model.CorrAlt, model.CorrRegCUDA, model.CorrAltCUDA:
	default:
		return fmt.Errorf("%w: corr implementation %q (use 'reg', 'alt', 'reg_cuda' or 'alt_cuda')",
			ErrInvalid, c.Architecture.CorrImplementation)
	}

	if _, err := padding.ParseMode(string(c.PadMode)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if c.Checkpoint == "" {
		return fmt.Errorf("%w: checkpoint path is empty", ErrInvalid)
	}
	if c.ValidIters <= 0 {
		return fmt.Errorf("%w: valid iters must be positive, got %d", ErrInvalid, c.ValidIters)
	}
	if c.DivisBy <= 0 {
		return fmt.Errorf("%w: divisor must be positive, got %d", ErrInvalid, c.DivisBy)
	}
	if c.Scale <= 0 || c.Scale > 1 {
		return fmt.Errorf("%w: scale must be in (0, 1], got %g", ErrInvalid, c.Scale)
	}
	if c.Threads < 0 {
		return fmt.Errorf("%w: threads must not be negative, got %d", ErrInvalid, c.Threads)
	}

	arch := c.Architecture
	if n := len(arch.HiddenDims); n == 0 || n > 3 {
		return fmt.Errorf("%w: hidden dims needs 1 to 3 values, got %d", ErrInvalid, n)
	}
	for _, d := range arch.HiddenDims {
		if d <= 0 {
			return fmt.Errorf("%w: hidden dims must be positive, got %v", ErrInvalid, arch.HiddenDims)
		}
	}
	if arch.NGRULayers < 1 || arch.NGRULayers > len(arch.HiddenDims) {
		return fmt.Errorf("%w: n gru layers must be between 1 and %d, got %d",
			ErrInvalid, len(arch.HiddenDims), arch.NGRULayers)
	}
	if arch.CorrLevels <= 0 || arch.CorrRadius <= 0 || arch.NDownsample < 0 {
		return fmt.Errorf("%w: corr levels, corr radius and n downsample must be positive", ErrInvalid)
	}

	if c.VMin != nil && c.VMax != nil && *c.VMin > *c.VMax {
		return fmt.Errorf("%w: vmin %g is greater than vmax %g", ErrInvalid, *c.VMin, *c.VMax)
	}

	if c.Manifest {
		if c.ManifestFile == "" {
			return fmt.Errorf("%w: manifest file is empty", ErrInvalid)
		}
	} else if c.LeftImgs == "" || c.RightImgs == "" {
		return fmt.Errorf("%w: left and right image patterns are required", ErrInvalid)
	}
	return nil
}

// ModelOptions returns what model.Load needs from c.
func (c Config) ModelOptions() model.Options {
	return model.Options{
		CheckpointPath: c.Checkpoint,
		MetadataPath:   c.MetadataPath,
		Backend:        c.Backend,
		Device:         c.Device,
		LibraryPath:    c.LibraryPath,
		Threads:        c.Threads,
		Architecture:   c.Architecture,
		Iters:          c.ValidIters,
	}
}
