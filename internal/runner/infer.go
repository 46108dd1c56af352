package runner

import (
	"context"
	"fmt"
	"image"

	"github.com/Brownie44l1/stereodepth/internal/colormap"
	"github.com/Brownie44l1/stereodepth/internal/config"
	"github.com/Brownie44l1/stereodepth/internal/imageio"
	"github.com/Brownie44l1/stereodepth/internal/model"
	"github.com/Brownie44l1/stereodepth/internal/padding"
	"github.com/Brownie44l1/stereodepth/internal/tensors"
)

// InferOptions control how one pair is prepared for the predictor.
type InferOptions struct {
	Iters   int
	DivisBy int
	PadMode padding.Mode
	// Scale downsizes both images before inference (0 < Scale <= 1). The
	// prediction is resized back and rescaled to the input resolution.
	Scale float64
}

// InferOptionsFrom picks the inference settings out of cfg.
func InferOptionsFrom(cfg config.Config) InferOptions {
	return InferOptions{
		Iters:   cfg.ValidIters,
		DivisBy: cfg.DivisBy,
		PadMode: cfg.PadMode,
		Scale:   cfg.Scale,
	}
}

// Prediction is a row-major disparity field the size of the left input.
type Prediction struct {
	Data          []float32
	Width, Height int
}

// Render draws the negated field with the jet colormap, the way disparity
// maps are usually shown.
func (p *Prediction) Render(vmin, vmax *float64) (*image.NRGBA, error) {
	return colormap.Jet.Render(p.Data, p.Width, p.Height, colormap.Options{
		Negate: true,
		VMin:   vmin,
		VMax:   vmax,
	})
}

// Infer runs predictor on one decoded pair: scale, pad, predict, crop and
// scale back.
func Infer(ctx context.Context, predictor model.Predictor, left, right image.Image, opts InferOptions) (*Prediction, error) {
	if err := imageio.CheckSameSize(left, right); err != nil {
		return nil, err
	}
	width, height := left.Bounds().Dx(), left.Bounds().Dy()

	scale := opts.Scale
	if scale <= 0 {
		scale = 1
	}
	image1 := imageio.ToTensor(imageio.Downscale(left, scale))
	image2 := imageio.ToTensor(imageio.Downscale(right, scale))

	_, h, w, err := tensors.Size(image1)
	if err != nil {
		return nil, err
	}
	padder, err := padding.New(h, w, opts.DivisBy, opts.PadMode)
	if err != nil {
		return nil, err
	}
	padded, err := padder.Pad(image1, image2)
	if err != nil {
		return nil, err
	}

	flowUp, err := predictor.Predict(ctx, padded[0], padded[1], opts.Iters)
	if err != nil {
		return nil, fmt.Errorf("prediction failed: %w", err)
	}
	flowUp, err = padder.Unpad(flowUp)
	if err != nil {
		return nil, err
	}
	channels, _, _, err := tensors.Size(flowUp)
	if err != nil {
		return nil, err
	}
	if channels != 1 {
		return nil, fmt.Errorf("prediction has %d channels, want 1", channels)
	}
	data, err := tensors.Float32s(flowUp)
	if err != nil {
		return nil, err
	}

	if w != width || h != height {
		// Disparities are measured in pixels of the downscaled image.
		gain := float32(width) / float32(w)
		data = imageio.ResizeField(data, w, h, width, height, gain)
	}
	return &Prediction{Data: data, Width: width, Height: height}, nil
}
