package compositor

import (
	"errors"
	"fmt"
)

// Sentinels matched with errors.Is
var (
	ErrImageDecode       = errors.New("image decode failed")
	ErrSurfaceAllocation = errors.New("surface allocation failed")
	ErrEncode            = errors.New("surface encode failed")
)

// ImageDecodeError reports a malformed or unreadable source
type ImageDecodeError struct {
	Err error
}

func (e *ImageDecodeError) Error() string {
	return fmt.Sprintf("compositor: decode source: %v", e.Err)
}

func (e *ImageDecodeError) Unwrap() []error { return []error{ErrImageDecode, e.Err} }

// SurfaceAllocationError reports a surface that could not be created
type SurfaceAllocationError struct {
	Width  int
	Height int
	Reason string
}

func newSurfaceError(w, h int, reason string) *SurfaceAllocationError {
	return &SurfaceAllocationError{Width: w, Height: h, Reason: reason}
}

func (e *SurfaceAllocationError) Error() string {
	return fmt.Sprintf("compositor: allocate %dx%d surface: %s", e.Width, e.Height, e.Reason)
}

func (e *SurfaceAllocationError) Unwrap() error { return ErrSurfaceAllocation }

// EncodeError reports a surface that could not be encoded. Callers may fall
// back to the last good payload.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("compositor: encode surface: %v", e.Err)
}

func (e *EncodeError) Unwrap() []error { return []error{ErrEncode, e.Err} }
