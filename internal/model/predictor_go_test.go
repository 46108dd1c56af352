package model

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Brownie44l1/stereodepth/internal/tensors"
	"github.com/advancedclimatesystems/gonnx/onnx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

const (
	onnxFloat = 1
	onnxInt64 = 7
)

func dims(shape ...int64) *onnx.TensorShapeProto {
	out := &onnx.TensorShapeProto{}
	for _, d := range shape {
		out.Dim = append(out.Dim, &onnx.TensorShapeProto_Dimension{
			Value: &onnx.TensorShapeProto_Dimension_DimValue{DimValue: d},
		})
	}
	return out
}

func valueInfo(name string, elemType int32, shape ...int64) *onnx.ValueInfoProto {
	return &onnx.ValueInfoProto{
		Name: name,
		Type: &onnx.TypeProto{
			Value: &onnx.TypeProto_TensorType{
				TensorType: &onnx.TypeProto_Tensor{ElemType: elemType, Shape: dims(shape...)},
			},
		},
	}
}

func int64Initializer(name string, v int64) *onnx.TensorProto {
	return &onnx.TensorProto{Name: name, Dims: []int64{1}, DataType: onnxInt64, Int64Data: []int64{v}}
}

// writeStereoGraph saves a [1,3,h,w] x2 -> [1,1,h,w] x2 graph. "flow" is the
// first channel of right, "flow_up" the first channel of left. With withIters
// set, flow_up is also multiplied by the int64 "iters" input.
func writeStereoGraph(t *testing.T, h, w int64, withIters bool) string {
	t.Helper()

	graph := &onnx.GraphProto{
		Name: "stereo",
		Initializer: []*onnx.TensorProto{
			int64Initializer("starts", 0),
			int64Initializer("ends", 1),
			int64Initializer("axes", 1),
			int64Initializer("steps", 1),
		},
		Input: []*onnx.ValueInfoProto{
			valueInfo("left", onnxFloat, 1, 3, h, w),
			valueInfo("right", onnxFloat, 1, 3, h, w),
		},
		Output: []*onnx.ValueInfoProto{
			valueInfo("flow", onnxFloat, 1, 1, h, w),
			valueInfo("flow_up", onnxFloat, 1, 1, h, w),
		},
		Node: []*onnx.NodeProto{
			{Name: "coarse", OpType: "Slice", Input: []string{"right", "starts", "ends", "axes", "steps"}, Output: []string{"flow"}},
		},
	}
	if withIters {
		graph.Input = append(graph.Input, valueInfo("iters", onnxInt64, 1))
		graph.Node = append(graph.Node,
			&onnx.NodeProto{Name: "first", OpType: "Slice", Input: []string{"left", "starts", "ends", "axes", "steps"}, Output: []string{"first"}},
			&onnx.NodeProto{
				Name: "cast", OpType: "Cast", Input: []string{"iters"}, Output: []string{"iters_f"},
				Attribute: []*onnx.AttributeProto{{Name: "to", Type: onnx.AttributeProto_INT, I: onnxFloat}},
			},
			&onnx.NodeProto{Name: "scale", OpType: "Mul", Input: []string{"first", "iters_f"}, Output: []string{"flow_up"}},
		)
	} else {
		graph.Node = append(graph.Node,
			&onnx.NodeProto{Name: "final", OpType: "Slice", Input: []string{"left", "starts", "ends", "axes", "steps"}, Output: []string{"flow_up"}},
		)
	}

	raw, err := proto.Marshal(&onnx.ModelProto{
		IrVersion:   8,
		OpsetImport: []*onnx.OperatorSetIdProto{{Version: 13}},
		Graph:       graph,
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "stereo.onnx")
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	return path
}

func ramp(n int, offset float32) []float32 {
	data := make([]float32, n)
	for i := range data {
		data[i] = float32(i) + offset
	}
	return data
}

func TestGoPredictor_ReturnsFullResolutionOutput(t *testing.T) {
	ckpt := writeStereoGraph(t, 2, 4, false)
	require.NoError(t, os.WriteFile(ckpt+".json", []byte(`{}`), 0o644))

	p, err := Load(context.Background(), Options{
		CheckpointPath: ckpt,
		Backend:        BackendGo,
		Architecture:   DefaultArchitecture(),
		Iters:          32,
	})
	require.NoError(t, err)
	defer p.Close()

	left := tensors.Image(ramp(3*2*4, 0), 3, 2, 4)
	right := tensors.Image(ramp(3*2*4, 100), 3, 2, 4)

	out, err := p.Predict(context.Background(), left, right, 32)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 2, 4}, []int(out.Shape()))

	data, err := tensors.Float32s(out)
	require.NoError(t, err)
	// flow_up comes from left; the coarse flow (from right) is discarded.
	assert.Equal(t, []float32{0, 1, 2, 3, 4, 5, 6, 7}, data)
}

func TestGoPredictor_FeedsIterations(t *testing.T) {
	ckpt := writeStereoGraph(t, 2, 4, true)
	require.NoError(t, os.WriteFile(ckpt+".json", []byte(`{"iters_input": "iters"}`), 0o644))

	p, err := Load(context.Background(), Options{
		CheckpointPath: ckpt,
		Backend:        BackendGo,
		Device:         DeviceCPU,
		Architecture:   DefaultArchitecture(),
		Iters:          3,
	})
	require.NoError(t, err)
	defer p.Close()

	left := tensors.Image(ramp(3*2*4, 0), 3, 2, 4)
	right := tensors.Image(ramp(3*2*4, 100), 3, 2, 4)

	out, err := p.Predict(context.Background(), left, right, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 2, 4}, []int(out.Shape()))

	data, err := tensors.Float32s(out)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 3, 6, 9, 12, 15, 18, 21}, data)
}

func TestGoPredictor_MissingOutput(t *testing.T) {
	ckpt := writeStereoGraph(t, 2, 4, false)
	require.NoError(t, os.WriteFile(ckpt+".json", []byte(`{"output_names": ["flow", "disparity"]}`), 0o644))

	p, err := Load(context.Background(), Options{
		CheckpointPath: ckpt,
		Backend:        BackendGo,
		Architecture:   DefaultArchitecture(),
	})
	require.NoError(t, err)
	defer p.Close()

	left := tensors.Image(ramp(3*2*4, 0), 3, 2, 4)
	_, err = p.Predict(context.Background(), left, left, 1)
	assert.Error(t, err)
}

func TestGoPredictor_CancelledContext(t *testing.T) {
	ckpt := writeStereoGraph(t, 2, 4, false)
	require.NoError(t, os.WriteFile(ckpt+".json", []byte(`{}`), 0o644))

	p, err := Load(context.Background(), Options{
		CheckpointPath: ckpt,
		Backend:        BackendGo,
		Architecture:   DefaultArchitecture(),
	})
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	left := tensors.Image(ramp(3*2*4, 0), 3, 2, 4)
	_, err = p.Predict(ctx, left, left, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
