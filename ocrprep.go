// Package ocrprep prepares document photos for text recognition.
//
// A Workbench holds one source image together with its filter and view state.
// Opening an image runs orientation detection and applies a confident
// suggestion; the caller then adjusts filters, pans and zooms through the
// viewport controller, and finally exports a JPEG payload or hands it straight
// to a recognizer.
//
// Basic usage:
//
//	wb := ocrprep.New(ocrprep.Options{
//		Frame:      types.Frame{Width: 800, Height: 600},
//		Detector:   orientation.NewEXIFDetector(),
//		Recognizer: recognition.NewClient(recognition.DefaultURL),
//	})
//
//	data, err := os.ReadFile("receipt.jpg")
//	if err != nil {
//		log.Fatal(err)
//	}
//	if _, err := wb.Open(ctx, data); err != nil {
//		log.Fatal(err)
//	}
//	wb.Controller().SetFilters(types.FilterState{Contrast: 140, Brightness: 100, Grayscale: 100})
//
//	res, _, err := wb.Recognize(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(res.Text)
//
// The package is a thin layer over its components:
//
//  1. Compositor (pkg/compositor): renders filter state into export or crop payloads
//  2. Orientation (pkg/orientation): suggests a corrective rotation, never fails
//  3. Viewport (pkg/viewport): pointer, wheel and filter actions plus crop commit
//  4. Recognition (pkg/recognition): sends the exported payload to an OCR engine
package ocrprep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/menta2k/ocr-prep/pkg/compositor"
	"github.com/menta2k/ocr-prep/pkg/orientation"
	"github.com/menta2k/ocr-prep/pkg/processing"
	"github.com/menta2k/ocr-prep/pkg/recognition"
	"github.com/menta2k/ocr-prep/pkg/types"
	"github.com/menta2k/ocr-prep/pkg/viewport"
)

// Version of the library
const Version = "1.0.0"

// ErrNoRecognizer is returned by Recognize when no recognizer is configured
var ErrNoRecognizer = errors.New("no recognizer configured")

// Options configures a Workbench. A nil Detector disables orientation
// detection, a nil Recognizer disables Recognize.
type Options struct {
	Frame              types.Frame
	ZoomStep           float64
	Detector           orientation.Detector
	OrientationTimeout time.Duration
	// MinConfidence is the lowest normalized confidence applied automatically
	MinConfidence float64
	Recognizer    recognition.Recognizer
	Logger        *slog.Logger
}

// Workbench wires the compositor, orientation corrector, viewport controller
// and recognizer around one source image
type Workbench struct {
	processor  *processing.Processor
	compositor *compositor.Compositor
	corrector  *orientation.Corrector
	controller *viewport.Controller
	recognizer recognition.Recognizer
	minConf    float64
	logger     *slog.Logger
}

// New creates a Workbench with no source loaded
func New(opts Options) *Workbench {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	comp := compositor.NewWithLogger(logger)

	wb := &Workbench{
		processor:  processing.NewProcessor(),
		compositor: comp,
		controller: viewport.New(viewport.Config{
			Frame:    opts.Frame,
			ZoomStep: opts.ZoomStep,
			Renderer: comp,
			Logger:   logger,
		}),
		recognizer: opts.Recognizer,
		minConf:    opts.MinConfidence,
		logger:     logger,
	}
	if opts.Detector != nil {
		wb.corrector = orientation.NewCorrector(opts.Detector, orientation.Config{
			Timeout: opts.OrientationTimeout,
			Logger:  logger,
		})
	}
	return wb
}

// Controller returns the viewport controller driving the loaded image
func (wb *Workbench) Controller() *viewport.Controller {
	return wb.controller
}

// Open decodes data, makes it the source and applies a confident orientation
// suggestion. The returned result is the fallback when detection is disabled
// or did not succeed.
func (wb *Workbench) Open(ctx context.Context, data []byte) (orientation.Result, error) {
	mime := processing.DetectMime(data)
	img, err := wb.compositor.Decode(data)
	if err != nil {
		if processing.IsMobileContainer(mime) {
			return orientation.Fallback(), fmt.Errorf("%s must be converted to jpeg first: %w", mime, err)
		}
		return orientation.Fallback(), err
	}
	wb.controller.LoadSource(img)
	wb.logger.Info("source loaded",
		slog.String("mime", mime),
		slog.Int("width", img.Bounds().Dx()),
		slog.Int("height", img.Bounds().Dy()))

	if wb.corrector == nil {
		return orientation.Fallback(), nil
	}
	res := wb.corrector.Detect(ctx, data)
	before := wb.controller.Filters()
	after := orientation.Apply(before, res, wb.minConf)
	if after != before {
		wb.controller.SetFilters(after)
		wb.logger.Info("orientation applied",
			slog.String("method", res.Method),
			slog.Int("rotation", after.Rotation),
			slog.Bool("mirrored", after.FlipHorizontal),
			slog.Float64("confidence", res.Confidence))
	}
	return res, nil
}

// OpenFile loads a local path or http(s) URL and opens it
func (wb *Workbench) OpenFile(ctx context.Context, source string) (orientation.Result, error) {
	data, err := wb.processor.LoadImageSmart(source)
	if err != nil {
		return orientation.Fallback(), fmt.Errorf("failed to load image: %w", err)
	}
	return wb.Open(ctx, data)
}

// Export renders the current state as the export payload. An encode failure
// falls back to the last good payload of the same source.
func (wb *Workbench) Export(ctx context.Context) (types.Payload, error) {
	return wb.controller.ExportOrLastGood(ctx)
}

// Recognize exports the current state and recognizes the payload. The payload
// is returned alongside so callers can map block quads onto it.
func (wb *Workbench) Recognize(ctx context.Context) (recognition.Result, types.Payload, error) {
	if wb.recognizer == nil {
		return recognition.Result{}, types.Payload{}, ErrNoRecognizer
	}
	payload, err := wb.Export(ctx)
	if err != nil {
		return recognition.Result{}, types.Payload{}, err
	}
	res, err := wb.recognizer.Recognize(ctx, payload)
	if err != nil {
		return recognition.Result{}, payload, err
	}
	wb.logger.Info("recognition done",
		slog.Int("blocks", len(res.Blocks)),
		slog.Int("chars", len(res.Text)))
	return res, payload, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
