// Package orientation suggests a corrective rotation for a freshly loaded
// image. Detection is best effort: every failure, including a timeout,
// resolves to a zero-angle, zero-confidence suggestion and is only logged.
package orientation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/menta2k/ocr-prep/pkg/types"
)

// DefaultTimeout bounds a single detection
const DefaultTimeout = 5 * time.Second

// MethodFallback marks the suggestion returned when detection failed
const MethodFallback = "fallback"

var (
	// ErrServiceUnavailable is returned by detectors whose backend could not
	// be reached or answered with an error status
	ErrServiceUnavailable = errors.New("orientation service unavailable")
	// ErrMalformedResponse is returned when a backend answered with
	// something that is not an orientation
	ErrMalformedResponse = errors.New("malformed orientation response")
	// ErrNoOrientation is returned when the image carries no orientation hint
	ErrNoOrientation = errors.New("no orientation information")
)

// Report is the raw observation of a detector: the clockwise rotation the
// content currently has
type Report = types.OrientationReport

// Detector observes the current orientation of encoded image bytes
type Detector interface {
	Detect(ctx context.Context, data []byte) (Report, error)
}

// DetectorFunc adapts a function to Detector
type DetectorFunc func(ctx context.Context, data []byte) (Report, error)

func (f DetectorFunc) Detect(ctx context.Context, data []byte) (Report, error) {
	return f(ctx, data)
}

// Result is a corrective suggestion
type Result struct {
	// Angle is the clockwise rotation that makes the content upright
	Angle      int     `json:"angle"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
	// Mirrored asks for a horizontal flip before rotating
	Mirrored bool `json:"mirrored,omitempty"`
}

// Fallback is the suggestion used whenever detection fails
func Fallback() Result {
	return Result{Angle: 0, Confidence: 0, Method: MethodFallback}
}

// IsFallback reports whether r carries no information
func (r Result) IsFallback() bool {
	return r.Method == MethodFallback
}

// Config configures a Corrector
type Config struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

// Corrector turns detector reports into corrective suggestions
type Corrector struct {
	detector Detector
	timeout  time.Duration
	logger   *slog.Logger
}

// NewCorrector wraps d. A nil detector always yields Fallback.
func NewCorrector(d Detector, cfg Config) *Corrector {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Corrector{detector: d, timeout: cfg.Timeout, logger: cfg.Logger}
}

type outcome struct {
	report Report
	err    error
}

// Detect never fails and never blocks longer than the configured timeout,
// even when the detector ignores cancellation.
func (c *Corrector) Detect(ctx context.Context, data []byte) Result {
	if c.detector == nil {
		return Fallback()
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan outcome, 1)
	go func() {
		r, err := c.detector.Detect(ctx, data)
		done <- outcome{r, err}
	}()

	var o outcome
	select {
	case <-ctx.Done():
		c.logger.Warn("orientation detection timed out",
			slog.Duration("timeout", c.timeout),
			slog.Any("error", ctx.Err()))
		return Fallback()
	case o = <-done:
	}

	if o.err != nil {
		c.logger.Warn("orientation detection failed", slog.Any("error", o.err))
		return Fallback()
	}
	res, err := FromReport(o.report)
	if err != nil {
		c.logger.Warn("orientation report rejected", slog.Any("error", err))
		return Fallback()
	}
	c.logger.Debug("orientation detected",
		slog.String("method", res.Method),
		slog.Int("angle", res.Angle),
		slog.Float64("confidence", res.Confidence),
		slog.Duration("elapsed", time.Since(start)))
	return res
}

// FromReport converts an observed orientation into a corrective suggestion
func FromReport(r Report) (Result, error) {
	if r.Orientation%90 != 0 {
		return Result{}, fmt.Errorf("%w: orientation %d is not a quarter turn", ErrMalformedResponse, r.Orientation)
	}
	return Result{
		Angle:      Corrective(r.Orientation),
		Confidence: NormalizeConfidence(r.RawConfidence),
		Method:     r.Method,
		Mirrored:   r.Mirrored,
	}, nil
}

// Corrective returns the clockwise rotation that undoes a current clockwise
// rotation
func Corrective(current int) int {
	return types.CanonicalRotation(360 - types.CanonicalRotation(current))
}

// NormalizeConfidence maps a raw detector score into [0,1]. Scores in (1,100]
// are read as percentages.
func NormalizeConfidence(raw float64) float64 {
	switch {
	case math.IsNaN(raw) || raw <= 0:
		return 0
	case raw <= 1:
		return raw
	case raw <= 100:
		return raw / 100
	default:
		return 1
	}
}

// Apply returns f with the suggested correction when r is confident enough.
// The suggestion replaces the rotation and horizontal flip; it is meant to run
// before any manual edit.
func Apply(f types.FilterState, r Result, minConfidence float64) types.FilterState {
	if r.IsFallback() || r.Confidence < minConfidence {
		return f
	}
	f.Rotation = types.CanonicalRotation(r.Angle)
	f.FlipHorizontal = r.Mirrored
	return f
}
