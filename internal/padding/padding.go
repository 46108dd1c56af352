// Package padding pads image tensors so their height and width are multiples
// of a divisor, and crops predictions back to the original size.
package padding

import (
	"fmt"

	"github.com/Brownie44l1/stereodepth/internal/tensors"
	"gorgonia.org/tensor"
)

// Mode decides where padding rows go.
type Mode string

const (
	ModeSintel Mode = "sintel" // Split padding between both sides of each axis (default).
	ModeKITTI  Mode = "kitti"  // Horizontal padding split, vertical padding all at the bottom.
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSintel, ModeKITTI:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("invalid pad mode %q (use 'sintel' or 'kitti')", s)
	}
}

// Padder remembers the padding applied to one input size so the inverse crop
// is exact.
type Padder struct {
	height, width            int
	left, right, top, bottom int
}

// New computes the padding for an input of the given size.
func New(height, width, divisBy int, mode Mode) (*Padder, error) {
	if height <= 0 || width <= 0 {
		return nil, fmt.Errorf("invalid input size %dx%d", width, height)
	}
	if divisBy <= 0 {
		return nil, fmt.Errorf("divisor must be positive, got %d", divisBy)
	}
	padH := (((height/divisBy)+1)*divisBy - height) % divisBy
	padW := (((width/divisBy)+1)*divisBy - width) % divisBy

	p := &Padder{height: height, width: width}
	p.left, p.right = padW/2, padW-padW/2
	switch mode {
	case ModeSintel, "":
		p.top, p.bottom = padH/2, padH-padH/2
	case ModeKITTI:
		p.top, p.bottom = 0, padH
	default:
		return nil, fmt.Errorf("invalid pad mode %q", mode)
	}
	return p, nil
}

// Padded returns the spatial size after padding.
func (p *Padder) Padded() (height, width int) {
	return p.height + p.top + p.bottom, p.width + p.left + p.right
}

// Offsets returns the padding on each side as left, right, top, bottom.
func (p *Padder) Offsets() (left, right, top, bottom int) {
	return p.left, p.right, p.top, p.bottom
}

// Pad replicates edge pixels of each [1, C, H, W] tensor out to the padded size.
func (p *Padder) Pad(inputs ...*tensor.Dense) ([]*tensor.Dense, error) {
	out := make([]*tensor.Dense, len(inputs))
	for i, in := range inputs {
		padded, err := p.pad(in)
		if err != nil {
			return nil, err
		}
		out[i] = padded
	}
	return out, nil
}

func (p *Padder) pad(in *tensor.Dense) (*tensor.Dense, error) {
	channels, h, w, err := tensors.Size(in)
	if err != nil {
		return nil, err
	}
	if h != p.height || w != p.width {
		return nil, fmt.Errorf("tensor is %dx%d, padder was built for %dx%d", w, h, p.width, p.height)
	}
	src, err := tensors.Float32s(in)
	if err != nil {
		return nil, err
	}

	ph, pw := p.Padded()
	dst := make([]float32, channels*ph*pw)
	for c := 0; c < channels; c++ {
		srcPlane := src[c*h*w : (c+1)*h*w]
		dstPlane := dst[c*ph*pw : (c+1)*ph*pw]
		for y := 0; y < ph; y++ {
			sy := clamp(y-p.top, 0, h-1)
			row := srcPlane[sy*w : (sy+1)*w]
			for x := 0; x < pw; x++ {
				dstPlane[y*pw+x] = row[clamp(x-p.left, 0, w-1)]
			}
		}
	}
	return tensors.Image(dst, channels, ph, pw), nil
}

// Unpad crops a [1, C, H, W] prediction at the padded size back to the
// original size.
func (p *Padder) Unpad(in *tensor.Dense) (*tensor.Dense, error) {
	channels, h, w, err := tensors.Size(in)
	if err != nil {
		return nil, err
	}
	ph, pw := p.Padded()
	if h != ph || w != pw {
		return nil, fmt.Errorf("prediction is %dx%d, expected padded size %dx%d", w, h, pw, ph)
	}
	src, err := tensors.Float32s(in)
	if err != nil {
		return nil, err
	}

	dst := make([]float32, 0, channels*p.height*p.width)
	for c := 0; c < channels; c++ {
		plane := src[c*h*w : (c+1)*h*w]
		for y := p.top; y < h-p.bottom; y++ {
			dst = append(dst, plane[y*w+p.left:y*w+w-p.right]...)
		}
	}
	return tensors.Image(dst, channels, p.height, p.width), nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
