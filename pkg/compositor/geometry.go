package compositor

import (
	"math"

	"golang.org/x/image/math/f64"

	"github.com/menta2k/ocr-prep/pkg/types"
)

// Geometry describes the output surface and the mapping from source pixel
// coordinates onto it.
type Geometry struct {
	Width  int
	Height int
	// Scale is the uniform factor applied to the source before rotation,
	// zoom included.
	Scale float64
	// Matrix maps source coordinates to surface coordinates.
	Matrix f64.Aff3
}

// Identity is the identity affine transform
var Identity = f64.Aff3{1, 0, 0, 0, 1, 0}

// ExportScale returns the uniform downscale factor that keeps the longest
// side within MaxDimension. It never upscales.
func ExportScale(w, h int) float64 {
	longest := max(w, h)
	if longest <= MaxDimension || longest <= 0 {
		return 1
	}
	return float64(MaxDimension) / float64(longest)
}

// ExportSize returns the scaled source size for export
func ExportSize(w, h int) (int, int) {
	s := ExportScale(w, h)
	if s == 1 {
		return w, h
	}
	sw := max(1, int(math.Round(float64(w)*s)))
	sh := max(1, int(math.Round(float64(h)*s)))
	return sw, sh
}

// FitScale returns the aspect-fit factor of a w x h image inside a frame,
// binding on width when the image is relatively wider than the frame and on
// height otherwise.
func FitScale(w, h, frameW, frameH float64) float64 {
	if w <= 0 || h <= 0 || frameW <= 0 || frameH <= 0 {
		return 0
	}
	if w/h > frameW/frameH {
		return frameW / w
	}
	return frameH / h
}

// ExportGeometry computes the export surface for a w x h source. The matrix
// maps the *scaled* source (see ExportSize) onto the surface.
func ExportGeometry(w, h int, f types.FilterState) (Geometry, error) {
	if w <= 0 || h <= 0 {
		return Geometry{}, newSurfaceError(w, h, "source has no pixels")
	}
	f = f.Normalize()
	sw, sh := ExportSize(w, h)
	outW, outH := sw, sh
	if f.SwapsAxes() {
		outW, outH = sh, sw
	}

	m := translate(float64(outW)/2, float64(outH)/2)
	m = mul(m, rotate(f.Rotation))
	m = mul(m, flip(f.FlipHorizontal, f.FlipVertical))
	m = mul(m, translate(-float64(sw)/2, -float64(sh)/2))

	return Geometry{
		Width:  outW,
		Height: outH,
		Scale:  ExportScale(w, h),
		Matrix: m,
	}, nil
}

// ViewportGeometry computes the surface matching what the live viewport
// shows for a w x h source: aspect-fit of the rotated extent into the frame,
// then zoom and pan about the frame centre, in device pixels.
func ViewportGeometry(w, h int, f types.FilterState, vp Viewport) (Geometry, error) {
	if w <= 0 || h <= 0 {
		return Geometry{}, newSurfaceError(w, h, "source has no pixels")
	}
	if !vp.Frame.Valid() {
		return Geometry{}, newSurfaceError(vp.Frame.Width, vp.Frame.Height, "invalid viewport frame")
	}
	f = f.Normalize()
	view := vp.View.Normalize()
	outW, outH := vp.Frame.DeviceSize()
	if outW <= 0 || outH <= 0 {
		return Geometry{}, newSurfaceError(outW, outH, "viewport frame rounds to zero device pixels")
	}

	ew, eh := float64(w), float64(h)
	if f.SwapsAxes() {
		ew, eh = eh, ew
	}
	fit := FitScale(ew, eh, float64(vp.Frame.Width), float64(vp.Frame.Height))
	ratio := vp.Frame.Ratio()
	c := vp.Frame.Center().Add(view.Offset)

	m := scale(ratio, ratio)
	m = mul(m, translate(c.X, c.Y))
	m = mul(m, scale(view.Zoom, view.Zoom))
	m = mul(m, rotate(f.Rotation))
	m = mul(m, flip(f.FlipHorizontal, f.FlipVertical))
	m = mul(m, scale(fit, fit))
	m = mul(m, translate(-float64(w)/2, -float64(h)/2))

	return Geometry{
		Width:  outW,
		Height: outH,
		Scale:  fit * view.Zoom * ratio,
		Matrix: m,
	}, nil
}

// SourcePoint maps a surface point back to source coordinates
func (g Geometry) SourcePoint(x, y float64) (float64, float64) {
	inv := invert(g.Matrix)
	return inv[0]*x + inv[1]*y + inv[2], inv[3]*x + inv[4]*y + inv[5]
}

// SurfacePoint maps a source point onto the surface
func (g Geometry) SurfacePoint(x, y float64) (float64, float64) {
	m := g.Matrix
	return m[0]*x + m[1]*y + m[2], m[3]*x + m[4]*y + m[5]
}

func translate(tx, ty float64) f64.Aff3 {
	return f64.Aff3{1, 0, tx, 0, 1, ty}
}

func scale(sx, sy float64) f64.Aff3 {
	return f64.Aff3{sx, 0, 0, 0, sy, 0}
}

// rotate is clockwise in y-down surface coordinates. Quarter turns use exact
// coefficients so 90 degree mappings land on pixel centres.
func rotate(deg int) f64.Aff3 {
	var cos, sin float64
	switch types.CanonicalRotation(deg) {
	case 0:
		cos, sin = 1, 0
	case 90:
		cos, sin = 0, 1
	case 180:
		cos, sin = -1, 0
	case 270:
		cos, sin = 0, -1
	}
	return f64.Aff3{cos, -sin, 0, sin, cos, 0}
}

func flip(horizontal, vertical bool) f64.Aff3 {
	sx, sy := 1.0, 1.0
	if horizontal {
		sx = -1
	}
	if vertical {
		sy = -1
	}
	return scale(sx, sy)
}

// mul returns a∘b: b is applied first
func mul(a, b f64.Aff3) f64.Aff3 {
	return f64.Aff3{
		a[0]*b[0] + a[1]*b[3],
		a[0]*b[1] + a[1]*b[4],
		a[0]*b[2] + a[1]*b[5] + a[2],
		a[3]*b[0] + a[4]*b[3],
		a[3]*b[1] + a[4]*b[4],
		a[3]*b[2] + a[4]*b[5] + a[5],
	}
}

func invert(m f64.Aff3) f64.Aff3 {
	det := m[0]*m[4] - m[1]*m[3]
	if det == 0 {
		return Identity
	}
	return f64.Aff3{
		m[4] / det,
		-m[1] / det,
		(m[1]*m[5] - m[2]*m[4]) / det,
		-m[3] / det,
		m[0] / det,
		(m[2]*m[3] - m[0]*m[5]) / det,
	}
}
