package filter

import (
	"image"
	"image/color"
	"testing"

	"github.com/menta2k/ocr-prep/pkg/types"
)

func createTestImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{uint8(x * 255 / width), uint8(y * 255 / height), 128, 255})
		}
	}
	return img
}

func TestApplyIdentity(t *testing.T) {
	img := createTestImage(64, 48)
	out := Apply(img, types.DefaultFilters())

	if out.Bounds() != img.Bounds() {
		t.Fatalf("Expected bounds %v, got %v", img.Bounds(), out.Bounds())
	}
	for i := range img.Pix {
		if img.Pix[i] != out.Pix[i] {
			t.Fatalf("Identity filter changed byte %d: %d -> %d", i, img.Pix[i], out.Pix[i])
		}
	}
}

func TestPixelFuncIdentityAllValues(t *testing.T) {
	fn := PixelFunc(types.DefaultFilters())
	for v := 0; v < 256; v++ {
		in := color.NRGBA{uint8(v), uint8(255 - v), uint8(v / 2), 200}
		if out := fn(in); out != in {
			t.Fatalf("Expected %v, got %v", in, out)
		}
	}
}

func TestContrast(t *testing.T) {
	f := types.DefaultFilters()
	f.Contrast = 150
	fn := PixelFunc(f)

	// (v-0.5)*1.5+0.5 keeps the midpoint and pushes the rest out
	if got := fn(color.NRGBA{128, 64, 192, 255}); got.R != 128 || got.G != 32 || got.B != 224 {
		t.Errorf("Unexpected contrast output %v", got)
	}
}

func TestBrightnessIsMultiplicative(t *testing.T) {
	f := types.DefaultFilters()
	f.Brightness = 50
	fn := PixelFunc(f)

	got := fn(color.NRGBA{200, 100, 0, 255})
	if got.R != 100 || got.G != 50 || got.B != 0 {
		t.Errorf("Expected halved channels, got %v", got)
	}
}

func TestPinnedOrderContrastBeforeBrightness(t *testing.T) {
	f := types.DefaultFilters()
	f.Contrast = 200
	f.Brightness = 50
	got := PixelFunc(f)(color.NRGBA{200, 200, 200, 255})

	// contrast saturates 200 to 1.0, brightness halves it to 128.
	// brightness first would give 73.
	if got.R != 128 {
		t.Errorf("Expected contrast then brightness to give 128, got %d", got.R)
	}
}

func TestGrayscaleFull(t *testing.T) {
	f := types.DefaultFilters()
	f.Grayscale = 100
	got := PixelFunc(f)(color.NRGBA{255, 0, 0, 255})

	want := uint8(54) // round(0.2126*255)
	if got.R != want || got.G != want || got.B != want {
		t.Errorf("Expected gray %d, got %v", want, got)
	}
}

func TestInvert(t *testing.T) {
	f := types.DefaultFilters()
	f.Invert = true
	got := PixelFunc(f)(color.NRGBA{10, 128, 255, 77})

	if got != (color.NRGBA{245, 127, 0, 77}) {
		t.Errorf("Unexpected inverted pixel %v", got)
	}
}

func TestApplyIgnoresGeometry(t *testing.T) {
	img := createTestImage(30, 20)
	f := types.DefaultFilters()
	f.Rotation = 90
	f.FlipHorizontal = true

	out := Apply(img, f)
	if out.Bounds().Dx() != 30 || out.Bounds().Dy() != 20 {
		t.Errorf("Photometric chain must not change geometry, got %v", out.Bounds())
	}
}

func TestCSS(t *testing.T) {
	if got := CSS(types.DefaultFilters()); got != "none" {
		t.Errorf("Expected none, got %q", got)
	}

	f := types.FilterState{Contrast: 150, Brightness: 80, Grayscale: 30, Invert: true}
	want := "contrast(150%) brightness(80%) grayscale(30%) invert(100%)"
	if got := CSS(f); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestCSSClampsOutOfRange(t *testing.T) {
	f := types.FilterState{Contrast: 500, Brightness: 10}
	want := "contrast(200%) brightness(50%)"
	if got := CSS(f); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func BenchmarkApply(b *testing.B) {
	img := createTestImage(1500, 1000)
	f := types.FilterState{Contrast: 150, Brightness: 120, Grayscale: 50, Invert: true}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Apply(img, f)
	}
}
