package processing

import (
	"errors"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/menta2k/ocr-prep/pkg/types"
)

func createTestImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x * 4), uint8(y * 4), 100, 255})
		}
	}
	return img
}

func TestEncodeDecode(t *testing.T) {
	p := NewProcessor()
	img := createTestImage(40, 30)

	tests := []struct {
		format string
		mime   string
	}{
		{FormatJPEG, "image/jpeg"},
		{FormatPNG, "image/png"},
		{FormatWebP, "image/webp"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			payload, err := p.Encode(img, tt.format, 90)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if payload.MimeType != tt.mime {
				t.Errorf("mime = %s, want %s", payload.MimeType, tt.mime)
			}
			if payload.Width != 40 || payload.Height != 30 {
				t.Errorf("payload = %dx%d", payload.Width, payload.Height)
			}
			if got := DetectMime(payload.Data); got != tt.mime {
				t.Errorf("DetectMime = %s, want %s", got, tt.mime)
			}

			decoded, err := p.DecodePayload(payload)
			if err != nil {
				t.Fatalf("DecodePayload: %v", err)
			}
			if decoded.Bounds().Dx() != 40 || decoded.Bounds().Dy() != 30 {
				t.Errorf("decoded bounds = %v", decoded.Bounds())
			}
		})
	}
}

func TestEncodeErrors(t *testing.T) {
	p := NewProcessor()
	if _, err := p.Encode(nil, FormatJPEG, 90); err == nil {
		t.Error("expected error for nil image")
	}
	if _, err := p.Encode(createTestImage(2, 2), "gif", 90); err == nil {
		t.Error("expected error for unsupported format")
	}
	// out-of-range quality falls back to the default
	if _, err := p.Encode(createTestImage(2, 2), FormatJPEG, 0); err != nil {
		t.Errorf("Encode with quality 0: %v", err)
	}
}

func TestDecodeUnknown(t *testing.T) {
	p := NewProcessor()
	for _, data := range [][]byte{nil, []byte("definitely not an image")} {
		if _, _, err := p.Decode(data); !errors.Is(err, ErrUnknownFormat) {
			t.Errorf("Decode(%q) err = %v, want ErrUnknownFormat", data, err)
		}
	}
}

func TestDecodeKeepsDecoderError(t *testing.T) {
	p := NewProcessor()

	_, _, err := p.Decode([]byte("definitely not an image"))
	if !errors.Is(err, ErrUnknownFormat) || !errors.Is(err, image.ErrFormat) {
		t.Errorf("err = %v, want ErrUnknownFormat wrapping image.ErrFormat", err)
	}

	payload, err := p.Encode(createTestImage(32, 32), FormatPNG, 0)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	truncated := payload.Data[:len(payload.Data)/2]
	_, _, err = p.Decode(truncated)
	if !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("err = %v, want ErrUnknownFormat", err)
	}
	// a recognized but broken file reports why the png decoder gave up
	if errors.Is(err, image.ErrFormat) || err.Error() == ErrUnknownFormat.Error() {
		t.Errorf("err = %v, want the png decoder's error", err)
	}
}

func TestDetectMime(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"heic", []byte("\x00\x00\x00\x18ftypheic\x00\x00\x00\x00"), "image/heic"},
		{"heif mif1", []byte("\x00\x00\x00\x18ftypmif1\x00\x00\x00\x00"), "image/heic"},
		{"text", []byte("hello"), "text/plain; charset=utf-8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectMime(tt.data); got != tt.want {
				t.Errorf("DetectMime = %q, want %q", got, tt.want)
			}
		})
	}

	if !IsMobileContainer("image/heic") || IsMobileContainer("image/jpeg") {
		t.Error("IsMobileContainer misclassifies")
	}
}

func TestLoadImageFromURL(t *testing.T) {
	p := NewProcessor()
	payload, err := p.Encode(createTestImage(8, 8), FormatPNG, 0)
	if err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write(payload.Data)
		case "/page":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	data, err := p.LoadImageSmart(srv.URL + "/ok.png")
	if err != nil {
		t.Fatalf("LoadImageSmart: %v", err)
	}
	if len(data) != len(payload.Data) {
		t.Errorf("got %d bytes, want %d", len(data), len(payload.Data))
	}

	if _, err := p.LoadImageFromURL(srv.URL + "/page"); err == nil {
		t.Error("expected error for non-image content type")
	}
	if _, err := p.LoadImageFromURL(srv.URL + "/missing"); err == nil {
		t.Error("expected error for 404")
	}
	if _, err := p.LoadImageFromURL("ftp://example.com/a.png"); err == nil {
		t.Error("expected error for unsupported scheme")
	}
}

func TestSaveAndLoad(t *testing.T) {
	p := NewProcessor()
	dir := t.TempDir()
	img := createTestImage(16, 12)

	for _, format := range []string{FormatJPEG, FormatPNG, FormatWebP} {
		path := filepath.Join(dir, "out."+format)
		if err := p.SaveImage(img, path, format, 90, false); err != nil {
			t.Fatalf("SaveImage(%s): %v", format, err)
		}
		data, err := p.LoadImageSmart(path)
		if err != nil {
			t.Fatalf("LoadImageSmart(%s): %v", path, err)
		}
		decoded, _, err := p.Decode(data)
		if err != nil {
			t.Fatalf("Decode(%s): %v", format, err)
		}
		if decoded.Bounds().Dx() != 16 || decoded.Bounds().Dy() != 12 {
			t.Errorf("%s bounds = %v", format, decoded.Bounds())
		}
	}

	if err := p.SavePayload(types.Payload{}, filepath.Join(dir, "empty.jpg")); err == nil {
		t.Error("expected error for empty payload")
	}
	if _, err := os.Stat(filepath.Join(dir, "empty.jpg")); !os.IsNotExist(err) {
		t.Error("empty payload should not create a file")
	}
}
