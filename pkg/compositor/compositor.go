// Package compositor renders a source bitmap with a FilterState, and
// optionally a viewport framing, into a pixel surface and an encoded payload.
//
// Two modes share one code path:
//
//   - export: the source is fitted within MaxDimension, filtered, rotated and
//     flipped about the surface centre, then encoded for transmission.
//   - viewport: the surface is the viewport frame; the source is aspect-fit,
//     zoomed and panned exactly as the live viewport shows it. This is what
//     a crop-to-visible-area commits.
//
// The photometric chain always runs on the source raster before any
// resampling, then the geometric transform is applied as a single affine
// mapping: translate(centre[+offset]) · scale(zoom) · rotate · flip.
package compositor

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"io"
	"log/slog"
	"time"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"

	"github.com/menta2k/ocr-prep/pkg/filter"
	"github.com/menta2k/ocr-prep/pkg/processing"
	"github.com/menta2k/ocr-prep/pkg/types"
)

// Fixed export parameters
const (
	MaxDimension = 1500
	Quality      = 92
	Format       = processing.FormatJPEG
	// MaxSurfaceSide bounds either side of an allocated surface
	MaxSurfaceSide = 16384
)

// Background fills viewport areas the source does not cover
var Background = color.NRGBA{0, 0, 0, 255}

// Viewport is the framing used by the crop/snapshot mode
type Viewport struct {
	View  types.ViewState
	Frame types.Frame
}

// Compositor renders sources into surfaces and payloads
type Compositor struct {
	processor *processing.Processor
	logger    *slog.Logger
}

// New creates a compositor that does not log
func New() *Compositor {
	return NewWithLogger(nil)
}

// NewWithLogger creates a compositor logging through l
func NewWithLogger(l *slog.Logger) *Compositor {
	if l == nil {
		l = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Compositor{
		processor: processing.NewProcessor(),
		logger:    l,
	}
}

// Geometry returns the surface geometry for a w x h source. A nil viewport
// selects export mode.
func (c *Compositor) Geometry(w, h int, f types.FilterState, vp *Viewport) (Geometry, error) {
	if vp == nil {
		return ExportGeometry(w, h, f)
	}
	return ViewportGeometry(w, h, f, *vp)
}

// Decode decodes source bytes, reporting failures as *ImageDecodeError
func (c *Compositor) Decode(data []byte) (image.Image, error) {
	img, _, err := c.processor.Decode(data)
	if err != nil {
		return nil, &ImageDecodeError{Err: err}
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, &ImageDecodeError{Err: newSurfaceError(b.Dx(), b.Dy(), "decoded image is empty")}
	}
	return img, nil
}

// RenderBytes decodes data and renders it
func (c *Compositor) RenderBytes(ctx context.Context, data []byte, f types.FilterState, vp *Viewport) (types.Payload, error) {
	src, err := c.Decode(data)
	if err != nil {
		return types.Payload{}, err
	}
	return c.Render(ctx, src, f, vp)
}

// Render composites src and encodes the surface as a lossy payload
func (c *Compositor) Render(ctx context.Context, src image.Image, f types.FilterState, vp *Viewport) (types.Payload, error) {
	start := time.Now()
	surface, err := c.Composite(ctx, src, f, vp)
	if err != nil {
		return types.Payload{}, err
	}
	if err := ctx.Err(); err != nil {
		return types.Payload{}, err
	}

	payload, err := c.processor.Encode(surface, Format, Quality)
	if err != nil {
		return types.Payload{}, &EncodeError{Err: err}
	}

	c.logger.Debug("rendered payload",
		slog.String("mode", modeName(vp)),
		slog.Int("width", payload.Width),
		slog.Int("height", payload.Height),
		slog.Int("bytes", len(payload.Data)),
		slog.Duration("elapsed", time.Since(start)))
	return payload, nil
}

// Composite produces the raw surface without encoding
func (c *Compositor) Composite(ctx context.Context, src image.Image, f types.FilterState, vp *Viewport) (*image.NRGBA, error) {
	if src == nil {
		return nil, newSurfaceError(0, 0, "nil source")
	}
	f = f.Normalize()
	b := src.Bounds()

	g, err := c.Geometry(b.Dx(), b.Dy(), f, vp)
	if err != nil {
		return nil, err
	}
	if g.Width > MaxSurfaceSide || g.Height > MaxSurfaceSide {
		return nil, newSurfaceError(g.Width, g.Height, "surface exceeds maximum side")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filtered := filter.Apply(src, f)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dst := image.NewNRGBA(image.Rect(0, 0, g.Width, g.Height))
	if vp == nil {
		c.drawExport(dst, filtered, g)
	} else {
		draw.Draw(dst, dst.Bounds(), image.NewUniform(Background), image.Point{}, draw.Src)
		xdraw.BiLinear.Transform(dst, g.Matrix, filtered, filtered.Bounds(), xdraw.Over, nil)
	}
	return dst, nil
}

// drawExport downscales if needed, then maps the quarter-turn geometry
// exactly onto pixel centres.
func (c *Compositor) drawExport(dst *image.NRGBA, filtered *image.NRGBA, g Geometry) {
	b := filtered.Bounds()
	scaled := filtered
	if sw, sh := ExportSize(b.Dx(), b.Dy()); sw != b.Dx() || sh != b.Dy() {
		scaled = imaging.Resize(filtered, sw, sh, imaging.Lanczos)
	}
	xdraw.NearestNeighbor.Transform(dst, g.Matrix, scaled, scaled.Bounds(), xdraw.Src, nil)
}

func modeName(vp *Viewport) string {
	if vp == nil {
		return "export"
	}
	return "viewport"
}
