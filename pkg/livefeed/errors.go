package livefeed

import (
	"errors"
	"fmt"
)

// ErrUnavailable is wrapped by every error that leaves callers without fresh
// live data
var ErrUnavailable = errors.New("live feed unavailable")

var ErrNotConfigured = fmt.Errorf("%w: not configured", ErrUnavailable)

// ParseError is returned when a payload can't be read as the shape it was
// detected as
type ParseError struct {
	Shape Shape
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s live feed: %v", e.Shape, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
