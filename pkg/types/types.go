package types

import (
	"encoding/base64"
	"math"
)

// Filter and view bounds
const (
	MinTone          = 50
	MaxTone          = 200
	NeutralTone      = 100
	MaxGrayscale     = 100
	MinZoom          = 1.0
	MaxZoom          = 5.0
	DefaultMimeType  = "image/jpeg"
	DefaultPixelRate = 1.0
)

// Point is a 2D coordinate or displacement
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p+q
func (p Point) Add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y} }

// Sub returns p-q
func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

// Quad is a quadrilateral given clockwise from the top-left corner
type Quad [4]Point

// FilterState holds the photometric and geometric adjustments of one revision.
// The zero value is not the identity; use DefaultFilters.
type FilterState struct {
	Contrast       int  `json:"contrast"`
	Brightness     int  `json:"brightness"`
	Grayscale      int  `json:"grayscale"`
	Invert         bool `json:"invert"`
	Rotation       int  `json:"rotation"`
	FlipHorizontal bool `json:"flip_horizontal"`
	FlipVertical   bool `json:"flip_vertical"`
}

// DefaultFilters returns the identity filter state
func DefaultFilters() FilterState {
	return FilterState{
		Contrast:   NeutralTone,
		Brightness: NeutralTone,
	}
}

// Normalize clamps every field into its valid range and canonicalizes the rotation
func (f FilterState) Normalize() FilterState {
	f.Contrast = clampInt(f.Contrast, MinTone, MaxTone)
	f.Brightness = clampInt(f.Brightness, MinTone, MaxTone)
	f.Grayscale = clampInt(f.Grayscale, 0, MaxGrayscale)
	f.Rotation = CanonicalRotation(f.Rotation)
	return f
}

// IsIdentity reports whether applying f is a no-op
func (f FilterState) IsIdentity() bool {
	return f.IsPhotometricIdentity() && f.IsGeometricIdentity()
}

// IsPhotometricIdentity reports whether the tonal knobs are all neutral
func (f FilterState) IsPhotometricIdentity() bool {
	f = f.Normalize()
	return f.Contrast == NeutralTone && f.Brightness == NeutralTone && f.Grayscale == 0 && !f.Invert
}

// IsGeometricIdentity reports whether rotation and flips are neutral
func (f FilterState) IsGeometricIdentity() bool {
	return CanonicalRotation(f.Rotation) == 0 && !f.FlipHorizontal && !f.FlipVertical
}

// SwapsAxes reports whether the rotation exchanges width and height
func (f FilterState) SwapsAxes() bool {
	r := CanonicalRotation(f.Rotation)
	return r == 90 || r == 270
}

// RotateRight rotates a further 90 degrees clockwise
func (f FilterState) RotateRight() FilterState {
	f.Rotation = CanonicalRotation(f.Rotation + 90)
	return f
}

// RotateLeft rotates a further 90 degrees counter-clockwise
func (f FilterState) RotateLeft() FilterState {
	f.Rotation = CanonicalRotation(f.Rotation + 270)
	return f
}

// ToggleFlipHorizontal mirrors along the vertical axis
func (f FilterState) ToggleFlipHorizontal() FilterState {
	f.FlipHorizontal = !f.FlipHorizontal
	return f
}

// ToggleFlipVertical mirrors along the horizontal axis
func (f FilterState) ToggleFlipVertical() FilterState {
	f.FlipVertical = !f.FlipVertical
	return f
}

// CanonicalRotation maps any angle in degrees onto {0, 90, 180, 270},
// snapping to the nearest quarter turn.
func CanonicalRotation(deg int) int {
	q := int(math.Round(float64(deg) / 90))
	q %= 4
	if q < 0 {
		q += 4
	}
	return q * 90
}

// ViewState is the zoom/pan framing of the viewport
type ViewState struct {
	Zoom   float64 `json:"zoom"`
	Offset Point   `json:"offset"`
}

// DefaultView returns the fit-to-frame view
func DefaultView() ViewState {
	return ViewState{Zoom: MinZoom}
}

// Normalize clamps the zoom; the offset is left unconstrained
func (v ViewState) Normalize() ViewState {
	if math.IsNaN(v.Zoom) {
		v.Zoom = MinZoom
	}
	v.Zoom = math.Min(math.Max(v.Zoom, MinZoom), MaxZoom)
	return v
}

// IsDefault reports whether v equals DefaultView
func (v ViewState) IsDefault() bool {
	return v == DefaultView()
}

// Frame is the viewport rectangle in CSS pixels
type Frame struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	PixelRatio float64 `json:"pixel_ratio"`
}

// Valid reports whether the frame can back a surface
func (f Frame) Valid() bool {
	return f.Width > 0 && f.Height > 0 && f.PixelRatio >= 0 && !math.IsNaN(f.PixelRatio)
}

// Ratio returns the device pixel ratio, defaulting to 1
func (f Frame) Ratio() float64 {
	if f.PixelRatio <= 0 || math.IsNaN(f.PixelRatio) {
		return DefaultPixelRate
	}
	return f.PixelRatio
}

// DeviceSize returns the surface size in device pixels
func (f Frame) DeviceSize() (int, int) {
	r := f.Ratio()
	return int(math.Round(float64(f.Width) * r)), int(math.Round(float64(f.Height) * r))
}

// Center returns the frame centre in CSS pixels
func (f Frame) Center() Point {
	return Point{float64(f.Width) / 2, float64(f.Height) / 2}
}

// Contains reports whether p (CSS pixels, frame-relative) lies in the frame
func (f Frame) Contains(p Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < float64(f.Width) && p.Y < float64(f.Height)
}

// Payload is a self-describing encoded image
type Payload struct {
	MimeType string `json:"mime_type"`
	Data     []byte `json:"-"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// Empty reports whether the payload carries no bytes
func (p Payload) Empty() bool {
	return len(p.Data) == 0
}

// Base64 returns the standard base64 encoding of the bytes
func (p Payload) Base64() string {
	return base64.StdEncoding.EncodeToString(p.Data)
}

// DataURL returns the payload as a data: URL
func (p Payload) DataURL() string {
	mime := p.MimeType
	if mime == "" {
		mime = DefaultMimeType
	}
	return "data:" + mime + ";base64," + p.Base64()
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// OrientationReport is what a detector observed: the image's current
// clockwise rotation and the confidence the detector gave for it.
type OrientationReport struct {
	Orientation   int     `json:"orientation"`
	RawConfidence float64 `json:"confidence"`
	Method        string  `json:"method"`
	// Mirrored is set when the content is also flipped horizontally
	Mirrored bool `json:"mirrored,omitempty"`
}
