// Package viewport drives the interactive framing of one source bitmap: pan
// and zoom gestures update the ViewState, filter actions update the
// FilterState, and the compositor is invoked only for export and for
// committing a crop of the visible area.
package viewport

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"math"
	"sync"

	"github.com/menta2k/ocr-prep/pkg/compositor"
	"github.com/menta2k/ocr-prep/pkg/preview"
	"github.com/menta2k/ocr-prep/pkg/types"
)

// DefaultZoomStep is the multiplicative zoom per gesture tick
const DefaultZoomStep = 1.1

var (
	// ErrBusy is returned when an export or crop is already in flight
	ErrBusy = errors.New("viewport: render already in progress")
	// ErrStale is returned when the source was replaced while rendering
	ErrStale = errors.New("viewport: source replaced during render")
	// ErrNoSource is returned by operations that need a loaded bitmap
	ErrNoSource = errors.New("viewport: no source loaded")
)

// Mode is the pointer state of the controller
type Mode int

const (
	Idle Mode = iota
	Panning
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Panning:
		return "panning"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Renderer is the compositor surface the controller needs
type Renderer interface {
	Render(ctx context.Context, src image.Image, f types.FilterState, vp *compositor.Viewport) (types.Payload, error)
	Decode(data []byte) (image.Image, error)
}

// Config holds controller settings
type Config struct {
	Frame    types.Frame
	ZoomStep float64
	Renderer Renderer
	Logger   *slog.Logger
}

// State is a point-in-time copy of the controller
type State struct {
	Filters  types.FilterState
	View     types.ViewState
	Mode     Mode
	Frame    types.Frame
	Revision uint64
	Width    int
	Height   int
}

// Controller owns the source bitmap and both state records. All methods are
// safe for concurrent use; state mutations are last-writer-wins.
type Controller struct {
	renderer Renderer
	logger   *slog.Logger
	zoomStep float64

	mu       sync.Mutex
	frame    types.Frame
	source   image.Image
	filters  types.FilterState
	view     types.ViewState
	mode     Mode
	last     types.Point
	revision uint64
	busy     bool
	lastGood types.Payload
}

// New creates a controller with no source loaded
func New(cfg Config) *Controller {
	if cfg.Renderer == nil {
		cfg.Renderer = compositor.NewWithLogger(cfg.Logger)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.ZoomStep <= 1 || math.IsNaN(cfg.ZoomStep) {
		cfg.ZoomStep = DefaultZoomStep
	}
	return &Controller{
		renderer: cfg.Renderer,
		logger:   cfg.Logger,
		zoomStep: cfg.ZoomStep,
		frame:    cfg.Frame,
		filters:  types.DefaultFilters(),
		view:     types.DefaultView(),
	}
}

// State returns a copy of the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := State{
		Filters:  c.filters,
		View:     c.view,
		Mode:     c.mode,
		Frame:    c.frame,
		Revision: c.revision,
	}
	if c.source != nil {
		b := c.source.Bounds()
		s.Width, s.Height = b.Dx(), b.Dy()
	}
	return s
}

// Filters returns the current filter state
func (c *Controller) Filters() types.FilterState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filters
}

// View returns the current view state
func (c *Controller) View() types.ViewState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// Mode returns the pointer state
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Source returns the current bitmap, or nil
func (c *Controller) Source() image.Image {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.source
}

// SetFrame changes the viewport frame. The view state is kept.
func (c *Controller) SetFrame(frame types.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frame = frame
}

// LoadSource replaces the bitmap and resets both state records. Renders
// started against the previous bitmap will report ErrStale.
func (c *Controller) LoadSource(img image.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replaceSource(img)
	c.logger.Debug("source loaded", slog.Uint64("revision", c.revision))
}

func (c *Controller) replaceSource(img image.Image) {
	c.source = img
	c.filters = types.DefaultFilters()
	c.view = types.DefaultView()
	c.mode = Idle
	c.revision++
	c.lastGood = types.Payload{}
}

// PointerDown starts a pan when p lies inside the frame and the image is
// zoomed in. It reports whether panning started.
func (c *Controller) PointerDown(p types.Point) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.source == nil || !c.frame.Contains(p) || c.view.Zoom <= types.MinZoom {
		return false
	}
	c.mode = Panning
	c.last = p
	return true
}

// PointerMove moves the offset by the pointer delta while panning
func (c *Controller) PointerMove(p types.Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != Panning {
		return
	}
	c.view.Offset = c.view.Offset.Add(p.Sub(c.last))
	c.last = p
}

// PointerUp ends a pan
func (c *Controller) PointerUp() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = Idle
}

// PointerLeave ends a pan when the pointer exits the frame
func (c *Controller) PointerLeave() {
	c.PointerUp()
}

// ZoomBy scales the zoom by ZoomStep per tick. Negative ticks zoom out. The
// offset is left unchanged.
func (c *Controller) ZoomBy(ticks int) types.ViewState {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view.Zoom *= math.Pow(c.zoomStep, float64(ticks))
	c.view = c.view.Normalize()
	return c.view
}

// SetZoom sets an explicit zoom, clamped to the valid range
func (c *Controller) SetZoom(z float64) types.ViewState {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view.Zoom = z
	c.view = c.view.Normalize()
	return c.view
}

// Wheel maps a wheel event to a zoom tick. Without the modifier the event is
// left to page scrolling and false is returned.
func (c *Controller) Wheel(deltaY float64, modifier bool) bool {
	if !modifier || deltaY == 0 {
		return false
	}
	ticks := 1
	if deltaY > 0 {
		ticks = -1
	}
	c.ZoomBy(ticks)
	return true
}

// SetFilters replaces the filter state
func (c *Controller) SetFilters(f types.FilterState) types.FilterState {
	return c.updateFilters(func(types.FilterState) types.FilterState { return f })
}

// RotateRight turns the image a quarter clockwise
func (c *Controller) RotateRight() types.FilterState {
	return c.updateFilters(types.FilterState.RotateRight)
}

// RotateLeft turns the image a quarter counter-clockwise
func (c *Controller) RotateLeft() types.FilterState {
	return c.updateFilters(types.FilterState.RotateLeft)
}

// FlipHorizontal toggles the horizontal mirror
func (c *Controller) FlipHorizontal() types.FilterState {
	return c.updateFilters(types.FilterState.ToggleFlipHorizontal)
}

// FlipVertical toggles the vertical mirror
func (c *Controller) FlipVertical() types.FilterState {
	return c.updateFilters(types.FilterState.ToggleFlipVertical)
}

// ResetFilters restores the identity filter state
func (c *Controller) ResetFilters() types.FilterState {
	return c.updateFilters(func(types.FilterState) types.FilterState { return types.DefaultFilters() })
}

func (c *Controller) updateFilters(fn func(types.FilterState) types.FilterState) types.FilterState {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters = fn(c.filters).Normalize()
	return c.filters
}

// ResetView restores the fit-to-frame view
func (c *Controller) ResetView() types.ViewState {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view = types.DefaultView()
	c.mode = Idle
	return c.view
}

// Preview renders the live frame through the display-layer path
func (c *Controller) Preview(ctx context.Context) (*image.NRGBA, error) {
	c.mu.Lock()
	src, f, view, frame := c.source, c.filters, c.view, c.frame
	c.mu.Unlock()
	if src == nil {
		return nil, ErrNoSource
	}
	return preview.Render(ctx, src, f, view, frame)
}

type job struct {
	source   image.Image
	filters  types.FilterState
	view     types.ViewState
	frame    types.Frame
	revision uint64
}

// begin claims the single in-flight slot and snapshots the state
func (c *Controller) begin() (job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.source == nil {
		return job{}, ErrNoSource
	}
	if c.busy {
		return job{}, ErrBusy
	}
	c.busy = true
	return job{
		source:   c.source,
		filters:  c.filters,
		view:     c.view,
		frame:    c.frame,
		revision: c.revision,
	}, nil
}

// Export renders the current state in export mode
func (c *Controller) Export(ctx context.Context) (types.Payload, error) {
	j, err := c.begin()
	if err != nil {
		return types.Payload{}, err
	}
	payload, err := c.renderer.Render(ctx, j.source, j.filters, nil)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
	if j.revision != c.revision {
		return types.Payload{}, ErrStale
	}
	if err != nil {
		return types.Payload{}, fmt.Errorf("export: %w", err)
	}
	c.lastGood = payload
	return payload, nil
}

// ExportOrLastGood exports, degrading to the last successful payload for the
// same source when encoding fails.
func (c *Controller) ExportOrLastGood(ctx context.Context) (types.Payload, error) {
	payload, err := c.Export(ctx)
	if err == nil || !errors.Is(err, compositor.ErrEncode) {
		return payload, err
	}
	c.mu.Lock()
	last := c.lastGood
	c.mu.Unlock()
	if last.Empty() {
		return types.Payload{}, err
	}
	c.logger.Warn("export encode failed, using last good payload", slog.Any("error", err))
	return last, nil
}

// CommitCrop renders exactly the visible area, makes it the new source and
// resets both state records. On failure nothing changes.
func (c *Controller) CommitCrop(ctx context.Context) (types.Payload, error) {
	j, err := c.begin()
	if err != nil {
		return types.Payload{}, err
	}
	vp := compositor.Viewport{View: j.view, Frame: j.frame}
	payload, err := c.renderer.Render(ctx, j.source, j.filters, &vp)
	var cropped image.Image
	if err == nil {
		cropped, err = c.renderer.Decode(payload.Data)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
	if j.revision != c.revision {
		return types.Payload{}, ErrStale
	}
	if err != nil {
		return types.Payload{}, fmt.Errorf("commit crop: %w", err)
	}
	c.replaceSource(cropped)
	c.logger.Debug("crop committed",
		slog.Float64("zoom", j.view.Zoom),
		slog.Int("width", payload.Width),
		slog.Int("height", payload.Height),
		slog.Uint64("revision", c.revision))
	return payload, nil
}
