package detection

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/menta2k/ocr-prep/pkg/client"
	"github.com/menta2k/ocr-prep/pkg/types"
)

// SimpleTestPrompt for testing if the model can see images
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// DefaultPrompt asks for the current rotation of the page content
const DefaultPrompt = `You are a document orientation classifier.

Look at the text and layout in the image and decide how the content is
currently rotated relative to upright reading orientation.

Return JSON only:
{"orientation": 0, "confidence": 0.0}

HARD RULES
- "orientation" is the clockwise rotation the content currently has, one of 0, 90, 180, 270.
  0 means the text already reads normally left to right, top to bottom.
  90 means the top of the text points to the right edge of the image.
  180 means the text is upside down.
  270 means the top of the text points to the left edge of the image.
- "confidence" is a number between 0 and 1.
- If there is no readable text, return {"orientation": 0, "confidence": 0.0}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Method names reported by this package
const (
	MethodVision   = "vision"
	MethodFallback = "vision-fallback"
)

// Detector asks a vision model for the orientation of an image
type Detector struct {
	client client.VisionClient
}

// NewDetector creates a new detector with a vision client
func NewDetector(client client.VisionClient) *Detector {
	return &Detector{client: client}
}

// DetectOrientation queries the model and returns what it observed. Transport
// errors are returned; unparseable replies become a zero-confidence report.
func (d *Detector) DetectOrientation(ctx context.Context, model, imageB64 string) (*types.OrientationReport, error) {
	return d.DetectOrientationWithPrompt(ctx, model, imageB64, DefaultPrompt)
}

// DetectOrientationWithPrompt is DetectOrientation with a custom prompt
func (d *Detector) DetectOrientationWithPrompt(ctx context.Context, model, imageB64, prompt string) (*types.OrientationReport, error) {
	raw, err := d.client.JSONQuery(ctx, model, prompt, imageB64)
	if err != nil {
		return nil, err
	}
	return validateAndAdjustResult(parseOrientationReport(raw)), nil
}

// TestVision tests if the model can actually see the image with a simple prompt
func (d *Detector) TestVision(ctx context.Context, model, imageB64 string) (string, error) {
	return d.client.SimpleQuery(ctx, model, SimpleTestPrompt, imageB64)
}

// modelReply tolerates numbers sent as strings, e.g. "90" or "0.8"
type modelReply struct {
	Orientation json.RawMessage `json:"orientation"`
	Rotation    json.RawMessage `json:"rotation"`
	Confidence  json.RawMessage `json:"confidence"`
}

func parseOrientationReport(raw string) *types.OrientationReport {
	raw = sanitizeModelJSON(raw)

	if !strings.HasPrefix(raw, "{") {
		return fallback()
	}

	var reply modelReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return fallback()
	}

	field := reply.Orientation
	if len(field) == 0 {
		field = reply.Rotation
	}
	orientation, err := parseNumber(field)
	if err != nil {
		return fallback()
	}
	confidence, err := parseNumber(reply.Confidence)
	if err != nil {
		confidence = 0
	}

	return &types.OrientationReport{
		Orientation:   int(math.Round(orientation)),
		RawConfidence: confidence,
		Method:        MethodVision,
	}
}

func parseNumber(msg json.RawMessage) (float64, error) {
	if len(msg) == 0 {
		return 0, fmt.Errorf("missing field")
	}
	var f float64
	if err := json.Unmarshal(msg, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(msg, &s); err != nil {
		return 0, err
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "°")
	return strconv.ParseFloat(strings.TrimSuffix(s, "deg"), 64)
}

// validateAndAdjustResult drops answers that are not a quarter turn
func validateAndAdjustResult(r *types.OrientationReport) *types.OrientationReport {
	if r.Method == MethodFallback {
		return r
	}
	if r.Orientation%90 != 0 || math.IsNaN(r.RawConfidence) {
		return fallback()
	}
	r.Orientation = types.CanonicalRotation(r.Orientation)
	return r
}

func fallback() *types.OrientationReport {
	return &types.OrientationReport{Orientation: 0, RawConfidence: 0, Method: MethodFallback}
}

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reInline   = regexp.MustCompile(`(?m)//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// sanitizeModelJSON removes code fences, comments, and trailing commas from JSON response
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")
	raw = reInline.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
