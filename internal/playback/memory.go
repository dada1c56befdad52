package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// MemorySink consumes audio without a transport. It is used for dry runs
// and tests: audio is read in fixed-size frames, optionally paced.
type MemorySink struct {
	FrameBytes int           // bytes per frame (default 160)
	FrameDelay time.Duration // pause after each frame, 0 = as fast as possible

	mu          sync.Mutex
	unavailable map[string]bool
	played      map[string][]Playback
}

// Playback records one completed stream.
type Playback struct {
	Frames    int
	Bytes     int
	Truncated bool
}

// NewMemorySink creates a memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{
		FrameBytes:  160,
		unavailable: make(map[string]bool),
		played:      make(map[string][]Playback),
	}
}

// SetUnavailable makes Stream fail with ErrSinkUnavailable for room.
func (m *MemorySink) SetUnavailable(room string, v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable[room] = v
}

// Played returns the recorded playbacks for room.
func (m *MemorySink) Played(room string) []Playback {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Playback(nil), m.played[room]...)
}

// Stream implements Sink.
func (m *MemorySink) Stream(ctx context.Context, room string, audio io.Reader, opts StreamOptions) error {
	m.mu.Lock()
	down := m.unavailable[room]
	m.mu.Unlock()
	if down {
		return fmt.Errorf("%w: room %s", ErrSinkUnavailable, room)
	}

	frameBytes := m.FrameBytes
	if frameBytes <= 0 {
		frameBytes = 160
	}
	buf := make([]byte, frameBytes)
	maxFrames := MaxFrames(opts.MaxDuration)
	rec := Playback{}

	for {
		if ctx.Err() != nil {
			return ErrAborted
		}
		if maxFrames > 0 && rec.Frames >= maxFrames {
			rec.Truncated = true
			break
		}
		n, err := io.ReadFull(audio, buf)
		if n > 0 {
			rec.Frames++
			rec.Bytes += n
			opts.progress()
			if m.FrameDelay > 0 {
				select {
				case <-time.After(m.FrameDelay):
				case <-ctx.Done():
					return ErrAborted
				}
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return ErrAborted
			}
			return fmt.Errorf("read audio: %w", err)
		}
	}

	m.mu.Lock()
	m.played[room] = append(m.played[room], rec)
	m.mu.Unlock()
	return nil
}
