package audio

import (
	"errors"
	"fmt"
)

// ErrTooLong is returned for recordings that decode to more than
// MaxDuration of audio.
var ErrTooLong = errors.New("recording too long")

// ErrUnsupportedFormat matches every *UnsupportedFormatError via errors.Is.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// UnsupportedFormatError reports input that could not be decoded.
type UnsupportedFormatError struct {
	// Format is the detected container, or "unknown".
	Format string
	Err    error
}

func (e *UnsupportedFormatError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("unsupported audio format (%s)", e.Format)
	}
	return fmt.Sprintf("unsupported audio format (%s): %v", e.Format, e.Err)
}

func (e *UnsupportedFormatError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrUnsupportedFormat) match.
func (e *UnsupportedFormatError) Is(target error) bool { return target == ErrUnsupportedFormat }

func unsupported(format string, err error) error {
	return &UnsupportedFormatError{Format: format, Err: err}
}
