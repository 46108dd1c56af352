package model

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMetadata(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "raft_stereo.onnx.json")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestReadMetadata_Defaults(t *testing.T) {
	p := writeMetadata(t, `{}`)
	meta, err := ReadMetadata(p)
	require.NoError(t, err)

	assert.Equal(t, DefaultArchitecture(), meta.Architecture)
	assert.Equal(t, []string{"left", "right"}, meta.InputNames)
	assert.Equal(t, []string{"flow", "flow_up"}, meta.OutputNames)
	assert.Empty(t, meta.ItersInput)
}

func TestReadMetadata_Full(t *testing.T) {
	p := writeMetadata(t, `{
		"architecture": {
			"hidden_dims": [96, 96],
			"corr_implementation": "alt",
			"corr_levels": 2,
			"corr_radius": 3,
			"n_downsample": 2,
			"n_gru_layers": 2,
			"shared_backbone": true,
			"slow_fast_gru": true,
			"mixed_precision": true
		},
		"input_names": ["image1", "image2"],
		"output_names": ["coarse", "disparity"],
		"iters_input": "iters",
		"iters": 7
	}`)
	meta, err := ReadMetadata(p)
	require.NoError(t, err)

	assert.Equal(t, Architecture{
		HiddenDims:         []int{96, 96},
		CorrImplementation: CorrAlt,
		CorrLevels:         2,
		CorrRadius:         3,
		NDownsample:        2,
		NGRULayers:         2,
		SharedBackbone:     true,
		SlowFastGRU:        true,
		MixedPrecision:     true,
	}, meta.Architecture)
	assert.Equal(t, []string{"image1", "image2"}, meta.InputNames)
	assert.Equal(t, []string{"coarse", "disparity"}, meta.OutputNames)
	assert.Equal(t, []string{"image1", "image2", "iters"}, inputNames(meta))
	assert.Equal(t, 7, meta.Iters)
}

func TestReadMetadata_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"architecture": `},
		{"one input", `{"input_names": ["left"]}`},
		{"three outputs", `{"output_names": ["a", "b", "c"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadMetadata(writeMetadata(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := ReadMetadata(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestCheckCompatible(t *testing.T) {
	base := DefaultArchitecture()

	warnings, err := base.CheckCompatible(DefaultArchitecture())
	require.NoError(t, err)
	assert.Empty(t, warnings)

	t.Run("parameter shaping fields must match", func(t *testing.T) {
		ckpt := DefaultArchitecture()
		ckpt.HiddenDims = []int{64, 64, 64}
		ckpt.CorrRadius = 2
		ckpt.SharedBackbone = true

		_, err := base.CheckCompatible(ckpt)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrArchitectureMismatch))

		var mismatch *ArchitectureMismatchError
		require.True(t, errors.As(err, &mismatch))
		fields := make([]string, len(mismatch.Fields))
		for i, f := range mismatch.Fields {
			fields[i] = f.Field
		}
		assert.Equal(t, []string{"hidden_dims", "corr_radius", "shared_backbone"}, fields)
		assert.Contains(t, err.Error(), "corr_radius: configured 4, checkpoint 2")
	})

	t.Run("runtime fields only warn", func(t *testing.T) {
		ckpt := DefaultArchitecture()
		ckpt.CorrImplementation = CorrAltCUDA
		ckpt.SlowFastGRU = true
		ckpt.MixedPrecision = true

		warnings, err := base.CheckCompatible(ckpt)
		require.NoError(t, err)
		assert.Len(t, warnings, 3)
	})
}

func TestLoad_ArchitectureMismatchAborts(t *testing.T) {
	meta := writeMetadata(t, `{"architecture": {"n_gru_layers": 2}}`)

	_, err := Load(context.Background(), Options{
		CheckpointPath: filepath.Join(t.TempDir(), "missing.onnx"),
		MetadataPath:   meta,
		Backend:        BackendGo,
		Architecture:   DefaultArchitecture(),
		Iters:          32,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrArchitectureMismatch))
}

func TestLoad_DefaultMetadataPath(t *testing.T) {
	dir := t.TempDir()
	ckpt := filepath.Join(dir, "model.onnx")
	require.NoError(t, os.WriteFile(ckpt+".json", []byte(`{}`), 0o644))

	// Metadata is found next to the checkpoint; the go backend then fails on
	// the missing checkpoint itself.
	_, err := Load(context.Background(), Options{
		CheckpointPath: ckpt,
		Backend:        BackendGo,
		Architecture:   DefaultArchitecture(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read checkpoint")
}

func TestLoad_MissingMetadata(t *testing.T) {
	_, err := Load(context.Background(), Options{
		CheckpointPath: filepath.Join(t.TempDir(), "model.onnx"),
		Backend:        BackendGo,
		Architecture:   DefaultArchitecture(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read metadata")
}

func TestLoad_BackendErrors(t *testing.T) {
	meta := writeMetadata(t, `{}`)

	_, err := Load(context.Background(), Options{
		MetadataPath: meta,
		Backend:      Backend("tflite"),
		Architecture: DefaultArchitecture(),
	})
	assert.True(t, errors.Is(err, ErrBackendUnavailable))

	_, err = Load(context.Background(), Options{
		MetadataPath: meta,
		Backend:      BackendGo,
		Device:       DeviceCUDA,
		Architecture: DefaultArchitecture(),
	})
	assert.True(t, errors.Is(err, ErrBackendUnavailable))
}

func TestLoad_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Load(ctx, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}
