// Package playback streams synthesized audio into a room's live transport.
package playback

import (
	"context"
	"errors"
	"io"
	"time"
)

// FrameDuration is the length of one Opus frame sent to the transport.
const FrameDuration = 20 * time.Millisecond

var (
	// ErrSinkUnavailable means the room has no usable transport.
	ErrSinkUnavailable = errors.New("playback sink unavailable")

	// ErrAborted means the stream was cancelled before it completed.
	ErrAborted = errors.New("playback aborted")
)

// StreamOptions controls one playback.
type StreamOptions struct {
	Volume      float64       // 0 or 1 means unity gain
	MaxDuration time.Duration // longer audio is cut off here; 0 disables
	Progress    func()        // called after each frame is delivered
}

// Sink delivers audio to a room. Stream returns nil when the audio played to
// the end or was cut at MaxDuration, ErrAborted when ctx was cancelled, and
// an error wrapping ErrSinkUnavailable when there is no transport.
type Sink interface {
	Stream(ctx context.Context, room string, audio io.Reader, opts StreamOptions) error
}

// MaxFrames converts a duration ceiling into a frame budget (0 = unlimited).
func MaxFrames(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	n := int(d / FrameDuration)
	if n == 0 {
		n = 1
	}
	return n
}

func (o StreamOptions) progress() {
	if o.Progress != nil {
		o.Progress()
	}
}
