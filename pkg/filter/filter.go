// Package filter implements the photometric part of a FilterState.
//
// The four tonal knobs are always applied in the pinned sequence given by
// Order: contrast, brightness, grayscale, invert. Each stage follows the
// CSS filter-function definition and its output is clamped to [0,1] before
// the next stage runs, so the live display layer (which receives the CSS
// string from CSS) and the headless compositor produce the same values.
package filter

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/menta2k/ocr-prep/pkg/types"
)

// Stage names one photometric operation
type Stage string

const (
	StageContrast   Stage = "contrast"
	StageBrightness Stage = "brightness"
	StageGrayscale  Stage = "grayscale"
	StageInvert     Stage = "invert"
)

// Order is the fixed application order of the photometric stages.
// Reordering it changes output for non-identity states.
var Order = [4]Stage{StageContrast, StageBrightness, StageGrayscale, StageInvert}

// Rec. 709 luma weights used by the CSS grayscale matrix
const (
	lumaR = 0.2126
	lumaG = 0.7152
	lumaB = 0.0722
)

// Apply runs the photometric chain over img. The identity state returns an
// exact copy.
func Apply(img image.Image, f types.FilterState) *image.NRGBA {
	f = f.Normalize()
	if f.IsPhotometricIdentity() {
		return imaging.Clone(img)
	}
	return imaging.AdjustFunc(img, PixelFunc(f))
}

// PixelFunc returns the per-pixel function for f. Alpha is passed through.
func PixelFunc(f types.FilterState) func(c color.NRGBA) color.NRGBA {
	f = f.Normalize()
	lut := toneLUT(f.Contrast, f.Brightness)
	m := grayscaleMatrix(float64(f.Grayscale) / 100)
	gray := f.Grayscale > 0
	invert := f.Invert

	return func(c color.NRGBA) color.NRGBA {
		r := lut[c.R]
		g := lut[c.G]
		b := lut[c.B]
		if gray {
			r, g, b = clamp01(m[0][0]*r+m[0][1]*g+m[0][2]*b),
				clamp01(m[1][0]*r+m[1][1]*g+m[1][2]*b),
				clamp01(m[2][0]*r+m[2][1]*g+m[2][2]*b)
		}
		if invert {
			r, g, b = 1-r, 1-g, 1-b
		}
		return color.NRGBA{R: to8(r), G: to8(g), B: to8(b), A: c.A}
	}
}

// CSS returns the equivalent CSS filter property value, stages in Order.
// Neutral stages are omitted; the identity state yields "none".
func CSS(f types.FilterState) string {
	f = f.Normalize()
	var parts []string
	for _, s := range Order {
		switch s {
		case StageContrast:
			if f.Contrast != types.NeutralTone {
				parts = append(parts, fmt.Sprintf("contrast(%d%%)", f.Contrast))
			}
		case StageBrightness:
			if f.Brightness != types.NeutralTone {
				parts = append(parts, fmt.Sprintf("brightness(%d%%)", f.Brightness))
			}
		case StageGrayscale:
			if f.Grayscale != 0 {
				parts = append(parts, fmt.Sprintf("grayscale(%d%%)", f.Grayscale))
			}
		case StageInvert:
			if f.Invert {
				parts = append(parts, "invert(100%)")
			}
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, " ")
}

// toneLUT folds contrast then brightness into one table of normalized values.
// Both stages are per-channel so a table is exact.
func toneLUT(contrast, brightness int) [256]float64 {
	var lut [256]float64
	c := float64(contrast) / 100
	b := float64(brightness) / 100
	for i := range lut {
		v := float64(i) / 255
		if contrast != types.NeutralTone {
			v = clamp01((v-0.5)*c + 0.5)
		}
		if brightness != types.NeutralTone {
			v = clamp01(v * b)
		}
		lut[i] = v
	}
	return lut
}

// grayscaleMatrix is the CSS Filter Effects grayscale(amount) matrix
func grayscaleMatrix(amount float64) [3][3]float64 {
	a := 1 - math.Min(math.Max(amount, 0), 1)
	return [3][3]float64{
		{lumaR + (1-lumaR)*a, lumaG - lumaG*a, lumaB - lumaB*a},
		{lumaR - lumaR*a, lumaG + (1-lumaG)*a, lumaB - lumaB*a},
		{lumaR - lumaR*a, lumaG - lumaG*a, lumaB + (1-lumaB)*a},
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func to8(v float64) uint8 {
	return uint8(math.Round(clamp01(v) * 255))
}
