package preview

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"runtime"
	"testing"

	"github.com/menta2k/ocr-prep/pkg/compositor"
	"github.com/menta2k/ocr-prep/pkg/types"
)

const blockSize = 40

func createBlockImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x / blockSize * 30), uint8(y / blockSize * 30), 180, 255})
		}
	}
	return img
}

func nearBlockEdge(v, margin float64) bool {
	m := math.Mod(v, blockSize)
	return m < margin || m > blockSize-margin
}

func TestComputeFitsRotatedExtent(t *testing.T) {
	frame := types.Frame{Width: 200, Height: 200}

	d := Compute(400, 300, types.DefaultFilters(), types.DefaultView(), frame)
	if d.ElementWidth != 200 || d.ElementHeight != 150 {
		t.Errorf("element = %vx%v, want 200x150", d.ElementWidth, d.ElementHeight)
	}

	f := types.DefaultFilters().RotateRight()
	d = Compute(400, 200, f, types.DefaultView(), types.Frame{Width: 300, Height: 300})
	// rotated extent is 200x400, height binds
	if d.ElementWidth != 300 || d.ElementHeight != 150 {
		t.Errorf("element = %vx%v, want 300x150", d.ElementWidth, d.ElementHeight)
	}
	w, h := d.DisplayedSize()
	if w != 150 || h != 300 {
		t.Errorf("displayed = %vx%v, want 150x300", w, h)
	}
}

func TestCSS(t *testing.T) {
	f := types.DefaultFilters()
	f.Rotation = 90
	f.FlipHorizontal = true
	f.Contrast = 120
	d := Compute(100, 100, f, types.ViewState{Zoom: 2, Offset: types.Point{X: 10, Y: -5}}, types.Frame{Width: 100, Height: 100})

	want := "translate(-50%, -50%) translate(10px, -5px) scale(2) rotate(90deg) scale(-1, 1)"
	if got := d.CSS(); got != want {
		t.Errorf("CSS() = %q, want %q", got, want)
	}
	if d.Filter != "contrast(120%)" {
		t.Errorf("Filter = %q", d.Filter)
	}
}

func TestRenderErrors(t *testing.T) {
	ctx := context.Background()
	img := createBlockImage(10, 10)

	if _, err := Render(ctx, nil, types.DefaultFilters(), types.DefaultView(), types.Frame{Width: 10, Height: 10}); err == nil {
		t.Error("expected error for nil source")
	}
	if _, err := Render(ctx, img, types.DefaultFilters(), types.DefaultView(), types.Frame{}); !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("err = %v, want ErrEmptyFrame", err)
	}
}

func TestRenderLetterboxIsBackground(t *testing.T) {
	img := createBlockImage(400, 200)
	out, err := Render(context.Background(), img, types.DefaultFilters(), types.DefaultView(), types.Frame{Width: 200, Height: 200})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got := out.NRGBAAt(100, 5); got != Background {
		t.Errorf("letterbox pixel = %v, want %v", got, Background)
	}
	if got := out.NRGBAAt(100, 100); got == Background {
		t.Error("centre pixel should be covered by the image")
	}
}

// The display-layer path and the compositor's viewport mode must agree on
// what the user sees, so a crop commits exactly the previewed area.
func TestRenderMatchesCompositorViewport(t *testing.T) {
	src := createBlockImage(400, 300)
	comp := compositor.New()

	rotFlip := types.DefaultFilters()
	rotFlip.Rotation = 90
	rotFlip.FlipHorizontal = true

	tonal := types.DefaultFilters()
	tonal.Rotation = 180
	tonal.FlipVertical = true
	tonal.Contrast = 140
	tonal.Grayscale = 50

	tests := []struct {
		name   string
		f      types.FilterState
		view   types.ViewState
		frame  types.Frame
		minHit int
	}{
		{"default", types.DefaultFilters(), types.DefaultView(), types.Frame{Width: 200, Height: 200}, 50},
		{"zoomed panned", types.DefaultFilters(), types.ViewState{Zoom: 2, Offset: types.Point{X: 10, Y: -5}}, types.Frame{Width: 200, Height: 200}, 50},
		{"rotated flipped", rotFlip, types.ViewState{Zoom: 1.5}, types.Frame{Width: 240, Height: 160}, 50},
		{"deep zoom", rotFlip, types.ViewState{Zoom: 5, Offset: types.Point{X: -40, Y: 25}}, types.Frame{Width: 200, Height: 160}, 50},
		{"hidpi tonal", tonal, types.ViewState{Zoom: 1.2, Offset: types.Point{X: -20, Y: 15}}, types.Frame{Width: 150, Height: 120, PixelRatio: 2}, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			vp := compositor.Viewport{View: tt.view, Frame: tt.frame}

			want, err := comp.Composite(ctx, src, tt.f, &vp)
			if err != nil {
				t.Fatalf("Composite: %v", err)
			}
			got, err := Render(ctx, src, tt.f, tt.view, tt.frame)
			if err != nil {
				t.Fatalf("Render: %v", err)
			}
			if got.Bounds() != want.Bounds() {
				t.Fatalf("bounds = %v, want %v", got.Bounds(), want.Bounds())
			}

			g, err := comp.Geometry(400, 300, tt.f, &vp)
			if err != nil {
				t.Fatalf("Geometry: %v", err)
			}
			// placement rounding plus resampling support, in source pixels
			margin := 3/g.Scale + 2

			hits := 0
			b := got.Bounds()
			for y := 0; y < b.Dy(); y += 5 {
				for x := 0; x < b.Dx(); x += 5 {
					sx, sy := g.SourcePoint(float64(x)+0.5, float64(y)+0.5)
					if sx < margin || sy < margin || sx > 400-margin || sy > 300-margin {
						continue
					}
					if nearBlockEdge(sx, margin) || nearBlockEdge(sy, margin) {
						continue
					}
					hits++
					a, e := got.NRGBAAt(x, y), want.NRGBAAt(x, y)
					if absDiff(a.R, e.R) > 12 || absDiff(a.G, e.G) > 12 || absDiff(a.B, e.B) > 12 {
						t.Fatalf("pixel (%d,%d) source (%.1f,%.1f): preview %v, compositor %v", x, y, sx, sy, a, e)
					}
				}
			}
			if hits < tt.minHit {
				t.Errorf("only %d comparable samples", hits)
			}
		})
	}
}

// A deep zoom shows only a small part of the source, so a frame must cost
// about one surface, not the whole magnified element.
func TestRenderDeepZoomAllocatesFrameSized(t *testing.T) {
	src := createBlockImage(800, 600)
	frame := types.Frame{Width: 320, Height: 240, PixelRatio: 2}
	view := types.ViewState{Zoom: 5, Offset: types.Point{X: 30, Y: -20}}
	f := types.DefaultFilters().RotateRight()
	f.Contrast = 130
	ctx := context.Background()

	outW, outH := frame.DeviceSize()
	surface := uint64(outW * outH * 4)
	source := uint64(800 * 600 * 4)

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	out, err := Render(ctx, src, f, view, frame)
	runtime.ReadMemStats(&after)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out.Bounds().Dx() != outW || out.Bounds().Dy() != outH {
		t.Fatalf("bounds = %v, want %dx%d", out.Bounds(), outW, outH)
	}

	// filtered and rotated source copies plus a few frame-sized buffers;
	// the full element at this zoom would be 25 surfaces
	limit := 3*source + 6*surface
	if got := after.TotalAlloc - before.TotalAlloc; got > limit {
		t.Errorf("allocated %d bytes, want at most %d (surface %d)", got, limit, surface)
	}
	if got := out.NRGBAAt(outW/2, outH/2); got == Background {
		t.Error("centre pixel should be covered by the image")
	}
}

func TestRenderOffscreenElementIsBackground(t *testing.T) {
	src := createBlockImage(200, 100)
	view := types.ViewState{Zoom: 2, Offset: types.Point{X: 1000, Y: 0}}
	out, err := Render(context.Background(), src, types.DefaultFilters(), view, types.Frame{Width: 100, Height: 100})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	b := out.Bounds()
	for y := 0; y < b.Dy(); y += 10 {
		for x := 0; x < b.Dx(); x += 10 {
			if got := out.NRGBAAt(x, y); got != Background {
				t.Fatalf("pixel (%d,%d) = %v, want background", x, y, got)
			}
		}
	}
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

func BenchmarkRender(b *testing.B) {
	src := createBlockImage(1200, 900)
	f := types.DefaultFilters().RotateRight()
	view := types.ViewState{Zoom: 2}
	frame := types.Frame{Width: 400, Height: 300, PixelRatio: 2}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Render(ctx, src, f, view, frame); err != nil {
			b.Fatal(err)
		}
	}
}
