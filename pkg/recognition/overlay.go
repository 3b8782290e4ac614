package recognition

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/ocr-prep/pkg/types"
)

// Overlay colors by confidence
var (
	HighConfidence   = color.NRGBA{0, 255, 0, 255}
	MediumConfidence = color.NRGBA{255, 204, 0, 255}
	LowConfidence    = color.NRGBA{255, 0, 0, 255}
)

// DrawOverlay outlines every block on a copy of img. img should be the bitmap
// that was recognized; its own size is used to place the quads.
func DrawOverlay(img image.Image, res Result) *image.NRGBA {
	nrgba := imaging.Clone(img)
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()
	stroke := int(math.Max(2, 0.004*float64(min(w, h)))) // ~0.4% of min side

	for _, b := range res.Blocks {
		drawQuad(nrgba, b.PixelQuad(w, h), confidenceColor(b.Confidence), stroke)
	}
	return nrgba
}

func confidenceColor(c float64) color.NRGBA {
	switch {
	case c >= 0.8:
		return HighConfidence
	case c >= 0.5:
		return MediumConfidence
	default:
		return LowConfidence
	}
}

func drawQuad(img *image.NRGBA, q types.Quad, c color.NRGBA, stroke int) {
	for i := range q {
		a, b := q[i], q[(i+1)%len(q)]
		drawLine(img, a, b, c, stroke)
	}
}

// drawLine steps along the longer axis and stamps a stroke-sized square
func drawLine(img *image.NRGBA, a, b types.Point, c color.NRGBA, stroke int) {
	dx, dy := b.X-a.X, b.Y-a.Y
	steps := int(math.Ceil(math.Max(math.Abs(dx), math.Abs(dy))))
	if steps == 0 {
		steps = 1
	}
	half := stroke / 2
	for s := 0; s <= steps; s++ {
		t := float64(s) / float64(steps)
		x := int(math.Round(a.X + dx*t))
		y := int(math.Round(a.Y + dy*t))
		fillRect(img, x-half, y-half, x-half+stroke, y-half+stroke, c)
	}
}

func fillRect(img *image.NRGBA, x0, y0, x1, y1 int, c color.NRGBA) {
	r := image.Rect(x0, y0, x1, y1).Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
}
