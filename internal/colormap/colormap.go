// Package colormap renders scalar fields as color images.
//
// The Jet map reproduces matplotlib's 256-entry "jet" lookup table and its
// normalization rules, so images written here match what plt.imsave produces
// for the same data:
//
//   - values are scaled linearly from [vmin, vmax] to [0, 1] in float32, like
//     matplotlib does for float32 arrays; when no range is given it is taken
//     from the finite values of the field itself
//   - a constant field (vmin == vmax) maps entirely to the first entry
//   - values below or above the range clamp to the first or last entry
//   - NaN renders as transparent black
package colormap

import (
	"fmt"
	"image"
	"image/color"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Size is the number of entries in a lookup table.
const Size = 256

// Colormap is a fixed lookup table of Size colors.
type Colormap struct {
	Name string
	lut  [Size]color.NRGBA
	bad  color.NRGBA
}

// stop is a control point of a piecewise-linear color ramp.
type stop struct {
	pos   float64
	color colorful.Color
}

// jetStops are matplotlib's jet segment data merged into one list of control
// points. Every channel is linear between neighbouring stops, so blending in
// RGB reproduces the segment data exactly.
var jetStops = []stop{
	{0.000, colorful.Color{R: 0, G: 0, B: 0.5}},
	{0.110, colorful.Color{R: 0, G: 0, B: 1}},
	{0.125, colorful.Color{R: 0, G: 0, B: 1}},
	{0.340, colorful.Color{R: 0, G: 0.86, B: 1}},
	{0.350, colorful.Color{R: 0, G: 0.9, B: 0.967741935483871}},
	{0.375, colorful.Color{R: 0.08064516129032258, G: 1, B: 0.8870967741935484}},
	{0.640, colorful.Color{R: 0.9354838709677419, G: 1, B: 0.03225806451612903}},
	{0.650, colorful.Color{R: 0.967741935483871, G: 0.9629629629629629, B: 0}},
	{0.660, colorful.Color{R: 1, G: 0.9259259259259259, B: 0}},
	{0.890, colorful.Color{R: 1, G: 0.07407407407407407, B: 0}},
	{0.910, colorful.Color{R: 0.9090909090909091, G: 0, B: 0}},
	{1.000, colorful.Color{R: 0.5, G: 0, B: 0}},
}

// Jet is matplotlib's "jet" colormap.
var Jet = newColormap("jet", jetStops)

func newColormap(name string, stops []stop) *Colormap {
	c := &Colormap{Name: name}
	for i := 0; i < Size; i++ {
		c.lut[i] = toNRGBA(sample(stops, float64(i)/float64(Size-1)))
	}
	return c
}

// sample evaluates the ramp at x in [0, 1].
func sample(stops []stop, x float64) colorful.Color {
	for i := 1; i < len(stops); i++ {
		lo, hi := stops[i-1], stops[i]
		if x <= hi.pos {
			if hi.pos == lo.pos {
				return hi.color
			}
			return lo.color.BlendRgb(hi.color, (x-lo.pos)/(hi.pos-lo.pos))
		}
	}
	return stops[len(stops)-1].color
}

// toNRGBA truncates the float channels to bytes the way matplotlib does
// (lut * 255 cast to uint8), rather than rounding.
func toNRGBA(c colorful.Color) color.NRGBA {
	c = c.Clamped()
	return color.NRGBA{
		R: uint8(c.R * 255),
		G: uint8(c.G * 255),
		B: uint8(c.B * 255),
		A: 255,
	}
}

// At returns the lookup table entry i.
func (c *Colormap) At(i int) color.NRGBA {
	return c.lut[min(max(i, 0), Size-1)]
}

// Map returns the color of a value already normalized to [0, 1].
func (c *Colormap) Map(x float64) color.NRGBA {
	if math.IsNaN(x) {
		return c.bad
	}
	if x < 0 {
		return c.lut[0]
	}
	i := x * Size
	if i >= Size-1 {
		return c.lut[Size-1]
	}
	return c.lut[int(i)]
}

// Options control how a field is rendered.
type Options struct {
	// Negate renders -v instead of v.
	Negate bool
	// VMin and VMax fix the normalization range. A nil bound is taken from the
	// data.
	VMin, VMax *float64
}

// Range returns the normalization bounds Render would use.
func Range(data []float32, opts Options) (vmin, vmax float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range data {
		f := value(v, opts.Negate)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		lo = math.Min(lo, f)
		hi = math.Max(hi, f)
	}
	if math.IsInf(lo, 1) {
		lo, hi = 0, 0
	}
	if opts.VMin != nil {
		lo = *opts.VMin
	}
	if opts.VMax != nil {
		hi = *opts.VMax
	}
	return lo, hi
}

// Normalize maps v into [0, 1] for the given range. The bounds and the
// arithmetic are float32, so values on a lookup table edge land in the same
// entry as they do in matplotlib.
func Normalize(v, vmin, vmax float64) float64 {
	lo, hi := float32(vmin), float32(vmax)
	if lo == hi {
		return 0
	}
	return float64((float32(v) - lo) / (hi - lo))
}

// Render colors a row-major width x height field.
func (c *Colormap) Render(data []float32, width, height int, opts Options) (*image.NRGBA, error) {
	if width*height != len(data) {
		return nil, fmt.Errorf("field has %d values, %dx%d needs %d", len(data), width, height, width*height)
	}
	vmin, vmax := Range(data, opts)
	if vmin > vmax {
		return nil, fmt.Errorf("minvalue must be less than or equal to maxvalue (got %g > %g)", vmin, vmax)
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := value(data[y*width+x], opts.Negate)
			img.SetNRGBA(x, y, c.Map(Normalize(v, vmin, vmax)))
		}
	}
	return img, nil
}

func value(v float32, negate bool) float64 {
	if negate {
		return -float64(v)
	}
	return float64(v)
}
