package tensors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageShape(t *testing.T) {
	data := make([]float32, 3*4*5)
	img := Image(data, 3, 4, 5)

	c, h, w, err := Size(img)
	require.NoError(t, err)
	assert.Equal(t, 3, c)
	assert.Equal(t, 4, h)
	assert.Equal(t, 5, w)

	got, err := Float32s(img)
	require.NoError(t, err)
	assert.Len(t, got, len(data))
}

func TestFieldFromShape(t *testing.T) {
	data := []float32{1, 2, 3, 4, 5, 6}

	field, err := FieldFromShape(data, []int64{1, 1, 2, 3})
	require.NoError(t, err)
	_, h, w, err := Size(field)
	require.NoError(t, err)
	assert.Equal(t, 2, h)
	assert.Equal(t, 3, w)

	field, err = FieldFromShape(data, []int64{1, 2, 3})
	require.NoError(t, err)
	_, h, w, err = Size(field)
	require.NoError(t, err)
	assert.Equal(t, 2, h)
	assert.Equal(t, 3, w)
}

func TestFieldFromShapeRejectsBadShapes(t *testing.T) {
	tests := []struct {
		name  string
		shape []int64
	}{
		{"too few dims", []int64{6}},
		{"two channels", []int64{1, 2, 1, 3}},
		{"size mismatch", []int64{1, 1, 2, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FieldFromShape([]float32{1, 2, 3, 4, 5, 6}, tt.shape)
			assert.Error(t, err)
		})
	}
}
