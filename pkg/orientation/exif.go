package orientation

import (
	"bytes"
	"context"
	"fmt"

	"github.com/rwcarlsen/goexif/exif"
)

// MethodEXIF names reports read from embedded metadata
const MethodEXIF = "exif"

// EXIFDetector reads the EXIF Orientation tag. Metadata is authoritative so
// reports carry full confidence.
type EXIFDetector struct{}

// NewEXIFDetector creates an EXIF detector
func NewEXIFDetector() *EXIFDetector {
	return &EXIFDetector{}
}

// Detect returns ErrNoOrientation when the bytes carry no usable tag
func (EXIFDetector) Detect(ctx context.Context, data []byte) (Report, error) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrNoOrientation, err)
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrNoOrientation, err)
	}
	v, err := tag.Int(0)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	corrective, mirrored, ok := FromEXIF(v)
	if !ok {
		return Report{}, fmt.Errorf("%w: exif orientation %d", ErrMalformedResponse, v)
	}
	// the current rotation is the inverse of the correction
	return Report{
		Orientation:   Corrective(corrective),
		RawConfidence: 1,
		Method:        MethodEXIF,
		Mirrored:      mirrored,
	}, nil
}

// FromEXIF maps an EXIF Orientation value to the correction that displays the
// image upright: an optional horizontal mirror followed by a clockwise turn.
func FromEXIF(tag int) (angle int, mirrored bool, ok bool) {
	switch tag {
	case 1:
		return 0, false, true
	case 2:
		return 0, true, true
	case 3:
		return 180, false, true
	case 4:
		return 180, true, true
	case 5:
		return 270, true, true
	case 6:
		return 90, false, true
	case 7:
		return 90, true, true
	case 8:
		return 270, false, true
	}
	return 0, false, false
}
