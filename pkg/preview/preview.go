// Package preview renders the live viewport the way a retained display layer
// does: the filtered bitmap is oriented with discrete quarter turns, resized
// to its on-screen size and placed at the panned position. It shares no
// geometry code with the compositor.
package preview

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/menta2k/ocr-prep/pkg/filter"
	"github.com/menta2k/ocr-prep/pkg/types"
)

// Background fills frame areas the element does not cover
var Background = color.NRGBA{0, 0, 0, 255}

// ErrEmptyFrame is returned when the frame has no device pixels
var ErrEmptyFrame = errors.New("preview: empty frame")

// DisplayTransform is the state of the display element inside the frame
type DisplayTransform struct {
	// Element size in CSS pixels before rotation, after aspect-fit
	ElementWidth  float64
	ElementHeight float64
	Zoom          float64
	Offset        types.Point
	Rotation      int
	FlipX         bool
	FlipY         bool
	Filter        string
}

// Compute derives the display transform for a w x h source
func Compute(w, h int, f types.FilterState, view types.ViewState, frame types.Frame) DisplayTransform {
	f = f.Normalize()
	view = view.Normalize()

	// the rotated extent must fit the frame
	rw, rh := float64(w), float64(h)
	if f.SwapsAxes() {
		rw, rh = rh, rw
	}
	fw, fh := float64(frame.Width), float64(frame.Height)
	var fit float64
	if rw > 0 && rh > 0 && fw > 0 && fh > 0 {
		fit = math.Min(fw/rw, fh/rh)
	}

	return DisplayTransform{
		ElementWidth:  float64(w) * fit,
		ElementHeight: float64(h) * fit,
		Zoom:          view.Zoom,
		Offset:        view.Offset,
		Rotation:      f.Rotation,
		FlipX:         f.FlipHorizontal,
		FlipY:         f.FlipVertical,
		Filter:        filter.CSS(f),
	}
}

// CSS returns the CSS transform for an element centred in the frame.
// Functions apply right to left: flip, rotate, zoom, pan.
func (d DisplayTransform) CSS() string {
	parts := []string{
		"translate(-50%, -50%)",
		fmt.Sprintf("translate(%gpx, %gpx)", d.Offset.X, d.Offset.Y),
		fmt.Sprintf("scale(%g)", d.Zoom),
		fmt.Sprintf("rotate(%ddeg)", d.Rotation),
	}
	if d.FlipX || d.FlipY {
		sx, sy := 1, 1
		if d.FlipX {
			sx = -1
		}
		if d.FlipY {
			sy = -1
		}
		parts = append(parts, fmt.Sprintf("scale(%d, %d)", sx, sy))
	}
	return strings.Join(parts, " ")
}

// DisplayedSize returns the on-screen size after rotation and zoom, in CSS px
func (d DisplayTransform) DisplayedSize() (float64, float64) {
	w, h := d.ElementWidth*d.Zoom, d.ElementHeight*d.Zoom
	if types.CanonicalRotation(d.Rotation)%180 != 0 {
		w, h = h, w
	}
	return w, h
}

// Render draws one preview frame in device pixels
func Render(ctx context.Context, src image.Image, f types.FilterState, view types.ViewState, frame types.Frame) (*image.NRGBA, error) {
	if src == nil {
		return nil, errors.New("preview: nil source")
	}
	outW, outH := frame.DeviceSize()
	if !frame.Valid() || outW <= 0 || outH <= 0 {
		return nil, ErrEmptyFrame
	}
	b := src.Bounds()
	d := Compute(b.Dx(), b.Dy(), f, view, frame)
	canvas := imaging.New(outW, outH, Background)

	oriented := orient(filter.Apply(src, f), d)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ratio := frame.Ratio()
	dw, dh := d.DisplayedSize()
	pw := max(1, int(math.Round(dw*ratio)))
	ph := max(1, int(math.Round(dh*ratio)))
	c := frame.Center().Add(d.Offset)
	pos := image.Pt(
		int(math.Round(c.X*ratio-float64(pw)/2)),
		int(math.Round(c.Y*ratio-float64(ph)/2)),
	)
	element := image.Rect(pos.X, pos.Y, pos.X+pw, pos.Y+ph)
	visible := element.Intersect(canvas.Bounds())
	if visible.Empty() {
		return canvas, nil
	}

	// only the part of the element inside the frame is resampled
	ob := oriented.Bounds()
	sx := float64(ob.Dx()) / float64(pw)
	sy := float64(ob.Dy()) / float64(ph)
	part := visibleSource(visible.Sub(pos), sx, sy, ob.Dx(), ob.Dy())
	tw := max(1, int(math.Round(float64(part.Dx())/sx)))
	th := max(1, int(math.Round(float64(part.Dy())/sy)))
	resized := imaging.Resize(imaging.Crop(oriented, part.Add(ob.Min)), tw, th, imaging.Linear)

	at := pos.Add(image.Pt(
		int(math.Round(float64(part.Min.X)/sx)),
		int(math.Round(float64(part.Min.Y)/sy)),
	))
	return imaging.Paste(canvas, resized, at), nil
}

// visibleSource maps a rectangle in element pixels onto the oriented source,
// padded by one pixel for the resampling filter and clamped to w x h
func visibleSource(r image.Rectangle, sx, sy float64, w, h int) image.Rectangle {
	return image.Rect(
		max(0, int(math.Floor(float64(r.Min.X)*sx))-1),
		max(0, int(math.Floor(float64(r.Min.Y)*sy))-1),
		min(w, int(math.Ceil(float64(r.Max.X)*sx))+1),
		min(h, int(math.Ceil(float64(r.Max.Y)*sy))+1),
	)
}

// orient mirrors in the element's own axes, then turns clockwise
func orient(img *image.NRGBA, d DisplayTransform) *image.NRGBA {
	if d.FlipX {
		img = imaging.FlipH(img)
	}
	if d.FlipY {
		img = imaging.FlipV(img)
	}
	// imaging rotates counter-clockwise
	switch types.CanonicalRotation(d.Rotation) {
	case 90:
		img = imaging.Rotate270(img)
	case 180:
		img = imaging.Rotate180(img)
	case 270:
		img = imaging.Rotate90(img)
	}
	return img
}
