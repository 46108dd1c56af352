package imageio

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Brownie44l1/stereodepth/internal/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writePNG writes img to dir/name and returns the path.
func writePNG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return p
}

func TestToTensor_ChannelFirst(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{10, 20, 30, 255})
	img.Set(1, 0, color.RGBA{40, 50, 60, 255})

	tt := ToTensor(img)
	c, h, w, err := tensors.Size(tt)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1, 2}, []int{c, h, w})

	data, err := tensors.Float32s(tt)
	require.NoError(t, err)
	assert.Equal(t, []float32{10, 40, 20, 50, 30, 60}, data)
}

func TestToTensor_GrayExpanded(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 1, 1))
	img.SetGray(0, 0, color.Gray{Y: 77})

	data, err := tensors.Float32s(ToTensor(img))
	require.NoError(t, err)
	assert.Equal(t, []float32{77, 77, 77}, data)
}

func TestToTensor_OffsetBounds(t *testing.T) {
	base := image.NewRGBA(image.Rect(0, 0, 4, 4))
	base.Set(2, 2, color.RGBA{255, 0, 0, 255})
	sub := base.SubImage(image.Rect(2, 2, 4, 4))

	data, err := tensors.Float32s(ToTensor(sub))
	require.NoError(t, err)
	assert.Equal(t, float32(255), data[0])
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	path := writePNG(t, dir, "img.png", img)

	got, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 6), got.Bounds())

	_, h, w, err := tensors.Size(ToTensor(Downscale(got, 0.5)))
	require.NoError(t, err)
	assert.Equal(t, 3, h)
	assert.Equal(t, 4, w)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	decoded, err := Decode(f)
	require.NoError(t, err)
	assert.Equal(t, got.Bounds(), decoded.Bounds())
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)

	_, err = Decode(strings.NewReader("not an image"))
	assert.Error(t, err)
}

func TestCheckSameSize(t *testing.T) {
	a := image.NewRGBA(image.Rect(0, 0, 4, 4))
	b := image.NewRGBA(image.Rect(0, 0, 4, 5))
	assert.NoError(t, CheckSameSize(a, a))
	err := CheckSameSize(a, b)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSizeMismatch))
}

func TestDownscale_MinimumOnePixel(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 1))
	out := Downscale(img, 0.1)
	assert.Equal(t, 1, out.Bounds().Dx())
	assert.Equal(t, 1, out.Bounds().Dy())
}

func TestResizeField(t *testing.T) {
	t.Run("identity applies gain", func(t *testing.T) {
		got := ResizeField([]float32{1, 2, 3, 4}, 2, 2, 2, 2, 2)
		assert.Equal(t, []float32{2, 4, 6, 8}, got)
	})

	t.Run("constant field stays constant", func(t *testing.T) {
		src := []float32{3, 3, 3, 3}
		got := ResizeField(src, 2, 2, 5, 3, 1)
		require.Len(t, got, 15)
		for _, v := range got {
			assert.InDelta(t, 3, v, 1e-6)
		}
	})

	t.Run("upsample doubles disparity", func(t *testing.T) {
		got := ResizeField([]float32{1}, 1, 1, 2, 2, 2)
		assert.Equal(t, []float32{2, 2, 2, 2}, got)
	})

	t.Run("horizontal ramp interpolates", func(t *testing.T) {
		got := ResizeField([]float32{0, 4}, 2, 1, 4, 1, 1)
		assert.InDeltaSlice(t, []float32{0, 1, 3, 4}, got, 1e-6)
	})
}
