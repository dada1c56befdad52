package bus

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/voxroom/internal/speech"
)

// CoalesceMode selects which consecutive utterances may be merged.
type CoalesceMode string

const (
	CoalesceSameSpeaker CoalesceMode = "same_speaker" // only consecutive utterances of one source
	CoalesceAny         CoalesceMode = "any"          // any utterances in the room
)

// DefaultCoalesceWindow is the buffering window used when none is configured.
const DefaultCoalesceWindow = 500 * time.Millisecond

// CoalesceConfig configures a room's coalescer.
type CoalesceConfig struct {
	Window time.Duration
	// MaxHold bounds how long the first buffered utterance may wait, however
	// many arrivals extend the merge. Zero means Window.
	MaxHold  time.Duration
	Mode     CoalesceMode
	MaxChars int // cap on merged text, 0 disables
}

// Coalescer buffers a room's utterances for a short window and merges them
// into one before calling flushFn. Each arrival resets the window, but the
// buffer is always flushed no later than MaxHold after its first arrival.
//
// flushFn runs with the coalescer's lock held so flushes reach the queue in
// order; it must not block or call back into the coalescer.
type Coalescer struct {
	room    string
	cfg     CoalesceConfig
	flushFn func(speech.Utterance)
	now     func() time.Time

	mu       sync.Mutex
	pending  []speech.Utterance
	deadline time.Time
	timer    *time.Timer
	gen      uint64 // bumped on every flush so stale timers are ignored
	closed   bool
}

// NewCoalescer creates a coalescer for room. A window <= 0 disables buffering
// and every Push is flushed immediately.
func NewCoalescer(room string, cfg CoalesceConfig, flushFn func(speech.Utterance)) *Coalescer {
	if cfg.MaxHold <= 0 || cfg.MaxHold < cfg.Window {
		cfg.MaxHold = cfg.Window
	}
	if cfg.Mode != CoalesceAny {
		cfg.Mode = CoalesceSameSpeaker
	}
	return &Coalescer{
		room:    room,
		cfg:     cfg,
		flushFn: flushFn,
		now:     time.Now,
	}
}

// Push buffers u. It returns false if the coalescer is closed and u was not
// accepted.
func (c *Coalescer) Push(u speech.Utterance) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	if c.cfg.Window <= 0 {
		u.Text = speech.Truncate(u.Text, c.cfg.MaxChars, speech.Ellipsis)
		c.flushFn(u)
		return true
	}

	now := c.now()
	if len(c.pending) > 0 {
		switch {
		case c.cfg.Mode == CoalesceSameSpeaker && c.pending[0].SourceID != u.SourceID:
			c.flushLocked("speaker_changed")
		case !now.Before(c.deadline):
			// The timer is due but has not run yet.
			c.flushLocked("deadline")
		}
	}

	if len(c.pending) == 0 {
		c.deadline = now.Add(c.cfg.MaxHold)
	}
	c.pending = append(c.pending, u)

	delay := c.cfg.Window
	if remaining := c.deadline.Sub(now); remaining < delay {
		delay = remaining
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	gen := c.gen
	c.timer = time.AfterFunc(delay, func() { c.fire(gen) })

	if len(c.pending) > 1 {
		slog.Debug("coalescer: utterance appended", "room", c.room, "buffered", len(c.pending))
	}
	return true
}

func (c *Coalescer) fire(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.closed {
		return
	}
	c.flushLocked("window")
}

// Flush commits any buffered utterances immediately.
func (c *Coalescer) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked("manual")
}

// Close flushes what is buffered and refuses further pushes. Safe to call
// more than once.
func (c *Coalescer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.flushLocked("close")
	c.closed = true
}

// Pending returns the number of buffered utterances.
func (c *Coalescer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// flushLocked merges and hands off the buffer. Must be called with c.mu held.
func (c *Coalescer) flushLocked(reason string) {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
	if len(c.pending) == 0 {
		return
	}

	msgs := c.pending
	c.pending = nil
	merged := Merge(msgs, c.cfg.MaxChars)

	if len(msgs) > 1 {
		slog.Debug("coalescer: merged utterances",
			"room", c.room, "count", len(msgs), "reason", reason)
	}
	c.flushFn(merged)
}

// Merge combines buffered utterances into one: texts joined with a space in
// arrival order, identity, voice and timestamp of the first, text capped at
// maxChars with a trailing ellipsis.
func Merge(msgs []speech.Utterance, maxChars int) speech.Utterance {
	if len(msgs) == 0 {
		return speech.Utterance{}
	}

	merged := msgs[0]
	parts := 0
	if len(msgs) > 1 {
		texts := make([]string, 0, len(msgs))
		for _, m := range msgs {
			if m.Text != "" {
				texts = append(texts, m.Text)
			}
		}
		merged.Text = strings.Join(texts, " ")
	}
	for _, m := range msgs {
		if m.Parts > 0 {
			parts += m.Parts
		} else {
			parts++
		}
	}
	merged.Parts = parts
	merged.Text = speech.Truncate(merged.Text, maxChars, speech.Ellipsis)
	return merged
}
