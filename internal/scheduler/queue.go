// Package scheduler holds the bounded per-room utterance queue that sits
// between the coalescer (producer) and the room worker (consumer).
package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nextlevelbuilder/voxroom/internal/speech"
)

// DropPolicy determines which utterance to drop when the queue is full.
type DropPolicy string

const (
	DropOld DropPolicy = "old" // evict the oldest queued utterance
	DropNew DropPolicy = "new" // reject the incoming utterance
)

// Valid reports whether p is a known policy.
func (p DropPolicy) Valid() bool {
	return p == DropOld || p == DropNew
}

// QueueConfig configures a room queue. It is read once at construction.
type QueueConfig struct {
	Cap  int        `json:"cap" yaml:"cap"`
	Drop DropPolicy `json:"drop" yaml:"drop"`
}

// DefaultQueueConfig returns sensible defaults.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Cap:  100,
		Drop: DropOld,
	}
}

// QueueStats is a snapshot of queue counters.
type QueueStats struct {
	Len      int   `json:"len"`
	Cap      int   `json:"cap"`
	Enqueued int64 `json:"enqueued"`
	Dropped  int64 `json:"dropped"`  // evicted by drop=old
	Rejected int64 `json:"rejected"` // refused by drop=new
	Closed   bool  `json:"closed"`
}

// RoomQueue is a bounded FIFO of utterances for one room.
// Enqueue never blocks; Dequeue blocks only the consumer.
type RoomQueue struct {
	room   string
	config QueueConfig

	mu     sync.Mutex
	items  []speech.Utterance
	closed bool
	stats  QueueStats

	// ready holds at most one pending wake-up for the consumer.
	ready chan struct{}
	done  chan struct{}
}

// NewRoomQueue creates a queue for a room. Invalid config falls back to defaults.
func NewRoomQueue(room string, cfg QueueConfig) *RoomQueue {
	def := DefaultQueueConfig()
	if cfg.Cap <= 0 {
		cfg.Cap = def.Cap
	}
	if !cfg.Drop.Valid() {
		cfg.Drop = def.Drop
	}
	return &RoomQueue{
		room:   room,
		config: cfg,
		items:  make([]speech.Utterance, 0, cfg.Cap),
		ready:  make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Enqueue appends u. When the queue is full the drop policy applies: with
// DropOld the head is evicted and returned; with DropNew u is refused with
// ErrQueueFull. A closed queue returns ErrQueueClosed.
func (q *RoomQueue) Enqueue(u speech.Utterance) (*speech.Utterance, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	var dropped *speech.Utterance
	if len(q.items) >= q.config.Cap {
		switch q.config.Drop {
		case DropNew:
			q.stats.Rejected++
			slog.Debug("room queue full, rejecting", "room", q.room, "utterance", u.ID)
			return nil, ErrQueueFull
		default:
			old := q.items[0]
			q.items[0] = speech.Utterance{}
			q.items = q.items[1:]
			dropped = &old
			q.stats.Dropped++
			slog.Debug("room queue full, dropped oldest", "room", q.room, "dropped", old.ID)
		}
	}

	q.items = append(q.items, u)
	q.stats.Enqueued++

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return dropped, nil
}

// Dequeue removes and returns the head, blocking until an item is available,
// the queue is closed (ErrQueueClosed), or ctx is done.
func (q *RoomQueue) Dequeue(ctx context.Context) (speech.Utterance, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return speech.Utterance{}, ErrQueueClosed
		}
		if len(q.items) > 0 {
			u := q.items[0]
			q.items[0] = speech.Utterance{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return u, nil
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-q.done:
		case <-ctx.Done():
			return speech.Utterance{}, ctx.Err()
		}
	}
}

// Close closes the queue and returns whatever was still queued.
// Subsequent calls return nil.
func (q *RoomQueue) Close() []speech.Utterance {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	rest := q.items
	q.items = nil
	close(q.done)
	return rest
}

// Len returns the number of queued utterances.
func (q *RoomQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Stats returns a snapshot of the queue counters.
func (q *RoomQueue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.stats
	s.Len = len(q.items)
	s.Cap = q.config.Cap
	s.Closed = q.closed
	return s
}

// Done is closed when the queue is closed.
func (q *RoomQueue) Done() <-chan struct{} { return q.done }
