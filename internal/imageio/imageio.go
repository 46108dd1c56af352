// Package imageio turns image files into model input tensors and resamples
// predictions.
package imageio

import (
	"errors"
	"fmt"
	"image"
	"io"
	"math"

	"github.com/Brownie44l1/stereodepth/internal/tensors"
	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/webp" // Register WebP format decoder
	"gorgonia.org/tensor"
)

// ErrSizeMismatch is returned when the two views of a pair differ in size.
var ErrSizeMismatch = errors.New("left and right images differ in size")

// Open decodes an image file. PNG, JPEG, GIF, BMP, TIFF and WebP are supported.
func Open(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load image %s: %w", path, err)
	}
	return img, nil
}

// Decode reads an image from r.
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// CheckSameSize returns ErrSizeMismatch when left and right differ.
func CheckSameSize(left, right image.Image) error {
	lb, rb := left.Bounds(), right.Bounds()
	if lb.Dx() != rb.Dx() || lb.Dy() != rb.Dy() {
		return fmt.Errorf("%w: %dx%d vs %dx%d", ErrSizeMismatch, lb.Dx(), lb.Dy(), rb.Dx(), rb.Dy())
	}
	return nil
}

// Downscale shrinks img by factor (0 < factor <= 1). A factor of 1 returns img
// unchanged.
func Downscale(img image.Image, factor float64) image.Image {
	if factor >= 1 {
		return img
	}
	b := img.Bounds()
	w := max(1, int(math.Round(float64(b.Dx())*factor)))
	h := max(1, int(math.Round(float64(b.Dy())*factor)))
	return resize.Resize(uint(w), uint(h), img, resize.Bilinear)
}

// ToTensor converts img into a [1, 3, H, W] float32 tensor in channel-first
// order. Pixel values stay in 0..255. Alpha is dropped and grayscale images
// are expanded to three identical channels.
func ToTensor(img image.Image) *tensor.Dense {
	nrgba := imaging.Clone(img)
	w, h := nrgba.Bounds().Dx(), nrgba.Bounds().Dy()
	plane := w * h
	data := make([]float32, 3*plane)

	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		for x := 0; x < w; x++ {
			i := y*w + x
			data[i] = float32(row[x*4])
			data[plane+i] = float32(row[x*4+1])
			data[2*plane+i] = float32(row[x*4+2])
		}
	}
	return tensors.Image(data, 3, h, w)
}

// ResizeField bilinearly resamples a single-channel field from srcW x srcH to
// dstW x dstH and multiplies every value by gain. Sample positions use
// half-pixel centers, matching align_corners=False interpolation.
func ResizeField(src []float32, srcW, srcH, dstW, dstH int, gain float32) []float32 {
	dst := make([]float32, dstW*dstH)
	if srcW == dstW && srcH == dstH {
		for i, v := range src {
			dst[i] = v * gain
		}
		return dst
	}

	sx := float64(srcW) / float64(dstW)
	sy := float64(srcH) / float64(dstH)
	for y := 0; y < dstH; y++ {
		fy := math.Max((float64(y)+0.5)*sy-0.5, 0)
		y0 := min(int(fy), srcH-1)
		y1 := min(y0+1, srcH-1)
		wy := float32(fy - float64(y0))
		for x := 0; x < dstW; x++ {
			fx := math.Max((float64(x)+0.5)*sx-0.5, 0)
			x0 := min(int(fx), srcW-1)
			x1 := min(x0+1, srcW-1)
			wx := float32(fx - float64(x0))

			top := src[y0*srcW+x0]*(1-wx) + src[y0*srcW+x1]*wx
			bottom := src[y1*srcW+x0]*(1-wx) + src[y1*srcW+x1]*wx
			dst[y*dstW+x] = (top*(1-wy) + bottom*wy) * gain
		}
	}
	return dst
}
