package orientation

import (
	"context"
	"errors"
)

// Chain tries detectors in order; the first success wins
type Chain []Detector

// Detect returns the first successful report, or all errors joined
func (c Chain) Detect(ctx context.Context, data []byte) (Report, error) {
	if len(c) == 0 {
		return Report{}, ErrNoOrientation
	}
	var errs []error
	for _, d := range c {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		r, err := d.Detect(ctx, data)
		if err == nil {
			return r, nil
		}
		errs = append(errs, err)
	}
	return Report{}, errors.Join(errs...)
}
