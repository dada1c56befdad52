package room

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nextlevelbuilder/voxroom/internal/bus"
	"github.com/nextlevelbuilder/voxroom/internal/scheduler"
	"github.com/nextlevelbuilder/voxroom/internal/speech"
)

// SessionOptions configures a room session. Options are read once when the
// session is created; a live session keeps them until it is released.
type SessionOptions struct {
	Channel  string // voice channel the session is locked to
	Queue    scheduler.QueueConfig
	Coalesce bus.CoalesceConfig
	Worker   WorkerConfig
}

// SessionInfo is a snapshot of a session for status surfaces.
type SessionInfo struct {
	RoomID       string               `json:"room_id"`
	Channel      string               `json:"channel,omitempty"`
	Worker       WorkerStats          `json:"worker"`
	Queue        scheduler.QueueStats `json:"queue"`
	Pending      int                  `json:"pending"` // utterances waiting in the coalescer
	CreatedAt    time.Time            `json:"created_at"`
	LastActivity time.Time            `json:"last_activity"`
}

// Session is the coalescer, queue and worker serving one room.
type Session struct {
	room      string
	opts      SessionOptions
	queue     *scheduler.RoomQueue
	coalescer *bus.Coalescer
	worker    *Worker
	obs       Observer
	cancel    context.CancelFunc
	createdAt time.Time
	active    atomic.Int64

	mu          sync.Mutex
	lastSpeaker string

	releasing bool          // guarded by Registry.mu
	released  chan struct{} // closed once the mapping is gone
}

// Room returns the room id.
func (s *Session) Room() string { return s.room }

// Channel returns the voice channel the session is locked to.
func (s *Session) Channel() string { return s.opts.Channel }

// State returns the worker state.
func (s *Session) State() State { return s.worker.State() }

// Push hands u to the coalescer. It returns false once the session is
// shutting down.
func (s *Session) Push(u speech.Utterance) bool {
	s.touch()
	return s.coalescer.Push(u)
}

// Info returns a snapshot of the session.
func (s *Session) Info() SessionInfo {
	return SessionInfo{
		RoomID:       s.room,
		Channel:      s.opts.Channel,
		Worker:       s.worker.Stats(),
		Queue:        s.queue.Stats(),
		Pending:      s.coalescer.Pending(),
		CreatedAt:    s.createdAt,
		LastActivity: time.Unix(0, s.active.Load()),
	}
}

func (s *Session) touch() { s.active.Store(time.Now().UnixNano()) }

// enqueue receives coalescer flushes. It runs under the coalescer lock.
func (s *Session) enqueue(u speech.Utterance) {
	if u.Attribute {
		s.mu.Lock()
		changed := s.lastSpeaker != u.SourceID
		s.lastSpeaker = u.SourceID
		s.mu.Unlock()
		if changed && u.DisplayName != "" {
			u.Text = speech.Attribute(u.DisplayName, u.Text, s.opts.Coalesce.MaxChars)
		}
	}

	evicted, err := s.queue.Enqueue(u)
	switch {
	case errors.Is(err, scheduler.ErrQueueFull):
		s.obs.Dropped(s.room, u, "queue_full")
		return
	case err != nil:
		s.obs.Dropped(s.room, u, "closed")
		return
	}
	if evicted != nil {
		s.obs.Dropped(s.room, *evicted, "evicted")
	}
	s.obs.Queued(s.room, u, s.queue.Len())
}
