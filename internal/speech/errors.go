package speech

import "errors"

var (
	// ErrTooLong is returned when raw text exceeds the hard reject limit.
	ErrTooLong = errors.New("text too long")

	// ErrEmpty is returned when nothing speakable is left after clean-up.
	ErrEmpty = errors.New("text empty after normalization")
)
