// Package recognition is the boundary to text recognition. Recognizers take
// the exact payload the compositor produced and return text blocks whose
// quadrilaterals are normalized to a 0-1000 space over that payload's bitmap.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sort"
	"strings"

	"github.com/menta2k/ocr-prep/pkg/types"
)

// Scale is the extent of the normalized coordinate space
const Scale = 1000.0

// DefaultRowTolerance is how far apart, in normalized units, two block tops
// may be and still count as the same line
const DefaultRowTolerance = 10.0

// ErrRecognition matches every recognition failure
var ErrRecognition = errors.New("recognition failed")

// Recognizer extracts text from an encoded image
type Recognizer interface {
	Recognize(ctx context.Context, payload types.Payload) (Result, error)
}

// Block is one recognized line or word
type Block struct {
	Text       string     `json:"text"`
	Confidence float64    `json:"confidence"`
	BBox       types.Quad `json:"bbox"`
}

// Result is the full output for one payload
type Result struct {
	Text   string  `json:"text"`
	Blocks []Block `json:"blocks"`
	// Size of the bitmap the coordinates refer to
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ServiceError wraps a failure reported by, or talking to, a recognizer
type ServiceError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ServiceError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("recognition: status %d: %s", e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("recognition: %s: %v", e.Message, e.Err)
	default:
		return "recognition: " + e.Message
	}
}

func (e *ServiceError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRecognition}
	}
	return []error{ErrRecognition, e.Err}
}

// PixelQuad maps the normalized quad onto a w x h bitmap
func (b Block) PixelQuad(w, h int) types.Quad {
	var q types.Quad
	for i, p := range b.BBox {
		q[i] = types.Point{X: p.X * float64(w) / Scale, Y: p.Y * float64(h) / Scale}
	}
	return q
}

// Bounds returns the axis-aligned pixel rectangle enclosing the quad
func (b Block) Bounds(w, h int) image.Rectangle {
	q := b.PixelQuad(w, h)
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range q {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	return image.Rect(int(math.Floor(minX)), int(math.Floor(minY)), int(math.Ceil(maxX)), int(math.Ceil(maxY)))
}

// NormalizeQuad converts pixel coordinates on a w x h bitmap to the
// normalized space, clamping to its bounds
func NormalizeQuad(q types.Quad, w, h int) types.Quad {
	if w <= 0 || h <= 0 {
		return types.Quad{}
	}
	var out types.Quad
	for i, p := range q {
		out[i] = types.Point{
			X: clamp(p.X*Scale/float64(w), 0, Scale),
			Y: clamp(p.Y*Scale/float64(h), 0, Scale),
		}
	}
	return out
}

// SortBlocks orders blocks top to bottom, then left to right within a line.
// Blocks whose top-left corners are within tolerance vertically share a line.
func SortBlocks(blocks []Block, tolerance float64) {
	sort.SliceStable(blocks, func(i, j int) bool {
		a, b := blocks[i].BBox[0], blocks[j].BBox[0]
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
	// bubble neighbours on the same line into x order
	for i := 0; i < len(blocks)-1; i++ {
		for j := i; j >= 0; j-- {
			a, b := blocks[j].BBox[0], blocks[j+1].BBox[0]
			if math.Abs(b.Y-a.Y) < tolerance && b.X < a.X {
				blocks[j], blocks[j+1] = blocks[j+1], blocks[j]
				continue
			}
			break
		}
	}
}

// JoinText joins block texts one per line
func JoinText(blocks []Block) string {
	lines := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if t := strings.TrimSpace(b.Text); t != "" {
			lines = append(lines, t)
		}
	}
	return strings.Join(lines, "\n")
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
