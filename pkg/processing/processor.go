package processing

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/ocr-prep/pkg/types"
)

// Encoding formats understood by Encode
const (
	FormatJPEG = "jpeg"
	FormatWebP = "webp"
	FormatPNG  = "png"
)

// ErrUnknownFormat is returned when no registered decoder accepts the bytes
var ErrUnknownFormat = errors.New("image: unknown or unsupported format")

// Processor handles image decoding and encoding
type Processor struct {
	httpClient *http.Client
}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// LoadImageFromURL downloads an image and returns its raw bytes
func (p *Processor) LoadImageFromURL(imageURL string) ([]byte, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequest(http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "ocr-prep/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	return data, nil
}

// LoadImage reads the raw bytes of an image file
func (p *Processor) LoadImage(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}
	return data, nil
}

// LoadImageSmart loads image bytes from either a file path or URL
func (p *Processor) LoadImageSmart(source string) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.LoadImageFromURL(source)
	}
	return p.LoadImage(source)
}

// Decode decodes image bytes, returning the image and its format name
func (p *Processor) Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty image data: %w", ErrUnknownFormat)
	}

	img, format, decErr := image.Decode(bytes.NewReader(data))
	if decErr == nil {
		return img, format, nil
	}

	// Fallback: libwebp handles extended webp variants x/image rejects
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, FormatWebP, nil
	}

	return nil, "", fmt.Errorf("%w: %w", ErrUnknownFormat, decErr)
}

// Encode rasterizes img into a self-describing payload
func (p *Processor) Encode(img image.Image, format string, quality int) (types.Payload, error) {
	if img == nil {
		return types.Payload{}, errors.New("nil image")
	}
	if quality < 1 || quality > 100 {
		quality = 92
	}

	var buf bytes.Buffer
	var mime string
	switch strings.ToLower(format) {
	case FormatPNG:
		enc := png.Encoder{CompressionLevel: png.BestSpeed}
		if err := enc.Encode(&buf, img); err != nil {
			return types.Payload{}, fmt.Errorf("png encode: %w", err)
		}
		mime = "image/png"
	case FormatWebP:
		if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
			return types.Payload{}, fmt.Errorf("webp encode: %w", err)
		}
		mime = "image/webp"
	case FormatJPEG, "jpg", "":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return types.Payload{}, fmt.Errorf("jpeg encode: %w", err)
		}
		mime = "image/jpeg"
	default:
		return types.Payload{}, fmt.Errorf("unsupported output format: %s", format)
	}

	b := img.Bounds()
	return types.Payload{
		MimeType: mime,
		Data:     buf.Bytes(),
		Width:    b.Dx(),
		Height:   b.Dy(),
	}, nil
}

// DecodePayload decodes an encoded payload back into a raster
func (p *Processor) DecodePayload(payload types.Payload) (image.Image, error) {
	img, _, err := p.Decode(payload.Data)
	return img, err
}

// PrepareImageForModel converts an image to base64 for sending to vision models
func (p *Processor) PrepareImageForModel(img image.Image, format string, maxDim int, quality int) (string, error) {
	if maxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
			}
		}
	}

	payload, err := p.Encode(img, format, quality)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(payload.Data), nil
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case FormatWebP:
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		return webp.Encode(f, img, opts)
	case FormatPNG:
		return imaging.Save(img, path)
	default:
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}

// SavePayload writes payload bytes verbatim
func (p *Processor) SavePayload(payload types.Payload, path string) error {
	if payload.Empty() {
		return errors.New("empty payload")
	}
	return os.WriteFile(path, payload.Data, 0o644)
}

// DetectMime sniffs the mime type of encoded image bytes
func DetectMime(data []byte) string {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "image/jpeg"
	case len(data) >= 8 && bytes.Equal(data[:8], []byte("\x89PNG\r\n\x1a\n")):
		return "image/png"
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return "image/webp"
	case len(data) >= 12 && string(data[4:8]) == "ftyp" && isHEIFBrand(string(data[8:12])):
		return "image/heic"
	}
	return http.DetectContentType(data)
}

// IsMobileContainer reports whether the mime type is a camera container
// known to carry scrambled visual orientation
func IsMobileContainer(mime string) bool {
	return mime == "image/heic" || mime == "image/heif"
}

func isHEIFBrand(brand string) bool {
	switch brand {
	case "heic", "heix", "hevc", "hevx", "mif1", "msf1":
		return true
	}
	return false
}
