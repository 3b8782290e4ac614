// Package tesseract is a local Recognizer backed by libtesseract through
// gosseract. It needs the tesseract headers and language data at build and
// run time.
package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/menta2k/ocr-prep/pkg/recognition"
	"github.com/menta2k/ocr-prep/pkg/types"
)

// Recognizer implements recognition.Recognizer with one tesseract client per
// call
type Recognizer struct {
	languages     []string
	clientFactory func() *gosseract.Client
}

// New creates a recognizer for the given languages, e.g. "eng"
func New(languages ...string) *Recognizer {
	return &Recognizer{languages: languages, clientFactory: gosseract.NewClient}
}

// Recognize runs tesseract on the payload and returns one block per text line
func (r *Recognizer) Recognize(ctx context.Context, payload types.Payload) (recognition.Result, error) {
	if payload.Empty() {
		return recognition.Result{}, &recognition.ServiceError{Message: "empty payload"}
	}
	if err := ctx.Err(); err != nil {
		return recognition.Result{}, &recognition.ServiceError{Message: "cancelled", Err: err}
	}
	w, h, err := recognition.PayloadSize(payload)
	if err != nil {
		return recognition.Result{}, &recognition.ServiceError{Message: "read payload size", Err: err}
	}

	c := r.clientFactory()
	defer c.Close()

	if len(r.languages) > 0 {
		if err := c.SetLanguage(r.languages...); err != nil {
			return recognition.Result{}, &recognition.ServiceError{Message: "set languages", Err: err}
		}
	}
	if err := c.SetImageFromBytes(payload.Data); err != nil {
		return recognition.Result{}, &recognition.ServiceError{Message: "set image", Err: err}
	}
	text, err := c.Text()
	if err != nil {
		return recognition.Result{}, &recognition.ServiceError{Message: "recognize text", Err: err}
	}
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return recognition.Result{}, &recognition.ServiceError{Message: "bounding boxes", Err: err}
	}

	blocks := toBlocks(boxes, w, h)
	recognition.SortBlocks(blocks, recognition.DefaultRowTolerance)
	return recognition.Result{
		Text:   strings.TrimSpace(text),
		Blocks: blocks,
		Width:  w,
		Height: h,
	}, nil
}

func (r *Recognizer) String() string {
	return fmt.Sprintf("tesseract(%s)", strings.Join(r.languages, "+"))
}

func toBlocks(boxes []gosseract.BoundingBox, w, h int) []recognition.Block {
	blocks := make([]recognition.Block, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		x0, y0 := float64(b.Box.Min.X), float64(b.Box.Min.Y)
		x1, y1 := float64(b.Box.Max.X), float64(b.Box.Max.Y)
		q := types.Quad{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}
		blocks = append(blocks, recognition.Block{
			Text:       text,
			Confidence: b.Confidence / 100,
			BBox:       recognition.NormalizeQuad(q, w, h),
		})
	}
	return blocks
}
