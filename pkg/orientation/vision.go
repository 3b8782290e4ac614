package orientation

import (
	"context"
	"fmt"

	"github.com/menta2k/ocr-prep/pkg/client"
	"github.com/menta2k/ocr-prep/pkg/detection"
	"github.com/menta2k/ocr-prep/pkg/llamacpp"
	"github.com/menta2k/ocr-prep/pkg/ollama"
	"github.com/menta2k/ocr-prep/pkg/processing"
)

// VisionMaxDimension bounds the image sent to a vision model
const VisionMaxDimension = 1024

// VisionDetector asks a vision language model for the orientation
type VisionDetector struct {
	detector  *detection.Detector
	processor *processing.Processor
	model     string
}

// NewVisionDetector creates a detector using c with the given model
func NewVisionDetector(c client.VisionClient, model string) *VisionDetector {
	return &VisionDetector{
		detector:  detection.NewDetector(c),
		processor: processing.NewProcessor(),
		model:     model,
	}
}

// NewOllamaDetector creates a vision detector backed by an Ollama server
func NewOllamaDetector(url, model string) (*VisionDetector, error) {
	c, err := ollama.NewClient(url)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	return NewVisionDetector(c, model), nil
}

// NewLlamaCppDetector creates a vision detector backed by a llama.cpp server
func NewLlamaCppDetector(url, model string) (*VisionDetector, error) {
	c, err := llamacpp.NewClient(url)
	if err != nil {
		return nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
	}
	return NewVisionDetector(c, model), nil
}

// Detect downsizes the image for the model and asks for its orientation
func (v *VisionDetector) Detect(ctx context.Context, data []byte) (Report, error) {
	img, _, err := v.processor.Decode(data)
	if err != nil {
		return Report{}, fmt.Errorf("failed to decode image: %w", err)
	}
	b64, err := v.processor.PrepareImageForModel(img, processing.FormatJPEG, VisionMaxDimension, 85)
	if err != nil {
		return Report{}, fmt.Errorf("failed to prepare image: %w", err)
	}

	r, err := v.detector.DetectOrientation(ctx, v.model, b64)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	if r.Method == detection.MethodFallback {
		return Report{}, fmt.Errorf("%w: model reply was not an orientation", ErrMalformedResponse)
	}
	return *r, nil
}
