package room

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/voxroom/internal/bus"
	"github.com/nextlevelbuilder/voxroom/internal/notify"
	"github.com/nextlevelbuilder/voxroom/internal/playback"
	"github.com/nextlevelbuilder/voxroom/internal/scheduler"
)

// Deps are the collaborators shared by every session of a registry.
type Deps struct {
	// NewSynthesizer builds the synthesis client for a room. An error is
	// fatal to that session.
	NewSynthesizer func(room string) (Synthesizer, error)
	Sink           playback.Sink
	Notes          notify.Poster
	Observer       Observer
}

// Registry maps room ids to live sessions. Concurrent Ensure calls for one
// room converge on a single session.
type Registry struct {
	deps Deps
	base context.Context

	mu        sync.Mutex
	sessions  map[string]*Session
	onRelease []func(room string)
	closed    bool

	started atomic.Int64
}

// NewRegistry creates a registry. Workers run under ctx.
func NewRegistry(ctx context.Context, deps Deps) *Registry {
	if deps.Notes == nil {
		deps.Notes = notify.Discard{}
	}
	if deps.Observer == nil {
		deps.Observer = NopObserver{}
	}
	return &Registry{
		deps:     deps,
		base:     ctx,
		sessions: make(map[string]*Session),
	}
}

// OnRelease registers fn to run after a session is fully torn down.
func (r *Registry) OnRelease(fn func(room string)) {
	r.mu.Lock()
	r.onRelease = append(r.onRelease, fn)
	r.mu.Unlock()
}

// Ensure returns the session for room, creating and starting it if absent.
// If the room is being released, Ensure waits for the release to finish and
// then starts a fresh session.
func (r *Registry) Ensure(ctx context.Context, room string, opts SessionOptions) (*Session, error) {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, ErrRegistryClosed
		}
		if s, ok := r.sessions[room]; ok {
			if !s.releasing {
				r.mu.Unlock()
				return s, nil
			}
			r.mu.Unlock()
			select {
			case <-s.released:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		r.mu.Unlock()

		// The synthesizer is built outside the lock so a slow construction
		// never stalls other rooms.
		synth, err := r.deps.NewSynthesizer(room)
		if err != nil {
			slog.Error("room: session failed to start", "room", room, "error", err)
			r.deps.Notes.Post(notify.Notice{Room: room, Kind: notify.KindFatal, Text: "Text-to-speech is unavailable right now."})
			return nil, fmt.Errorf("start room %s: %w", room, err)
		}

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, ErrRegistryClosed
		}
		if _, ok := r.sessions[room]; ok {
			// Another Ensure won the race; take its session on the next pass.
			r.mu.Unlock()
			continue
		}
		s := r.start(room, opts, synth)
		r.sessions[room] = s
		r.deps.Observer.RoomOpened(room)
		r.mu.Unlock()

		slog.Info("room opened", "room", room, "channel", opts.Channel)
		return s, nil
	}
}

// start launches a session around synth. Must be called with r.mu held.
func (r *Registry) start(room string, opts SessionOptions, synth Synthesizer) *Session {
	ctx, cancel := context.WithCancel(r.base)
	s := &Session{
		room:      room,
		opts:      opts,
		queue:     scheduler.NewRoomQueue(room, opts.Queue),
		obs:       r.deps.Observer,
		cancel:    cancel,
		createdAt: time.Now(),
		released:  make(chan struct{}),
	}
	s.touch()
	s.coalescer = bus.NewCoalescer(room, opts.Coalesce, s.enqueue)
	s.worker = NewWorker(room, s.queue, synth, r.deps.Sink, r.deps.Notes, r.deps.Observer, opts.Worker)

	r.started.Add(1)
	go s.worker.Run(ctx)
	return s
}

// Get returns the live session for room. Sessions being released are not
// returned.
func (r *Registry) Get(room string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[room]
	if !ok || s.releasing {
		return nil, false
	}
	return s, true
}

// Release shuts down the session for room and waits until its worker has
// stopped. It reports whether a session existed.
func (r *Registry) Release(room string) bool {
	r.mu.Lock()
	s, ok := r.sessions[room]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if s.releasing {
		r.mu.Unlock()
		<-s.released
		return true
	}
	s.releasing = true
	r.mu.Unlock()

	r.teardown(s)
	return true
}

// ReleaseAll releases every session and refuses new ones.
func (r *Registry) ReleaseAll() {
	r.mu.Lock()
	r.closed = true
	var mine, theirs []*Session
	for _, s := range r.sessions {
		if s.releasing {
			theirs = append(theirs, s)
			continue
		}
		s.releasing = true
		mine = append(mine, s)
	}
	r.mu.Unlock()

	var g errgroup.Group
	for _, s := range mine {
		g.Go(func() error {
			r.teardown(s)
			return nil
		})
	}
	g.Wait()
	for _, s := range theirs {
		<-s.released
	}
}

// teardown flushes the coalescer, stops the worker and waits for it.
func (r *Registry) teardown(s *Session) {
	s.coalescer.Close()
	s.cancel()
	<-s.worker.Done()

	r.mu.Lock()
	if r.sessions[s.room] == s {
		delete(r.sessions, s.room)
	}
	hooks := append([]func(string){}, r.onRelease...)
	r.mu.Unlock()
	close(s.released)

	for _, fn := range hooks {
		fn(s.room)
	}
	r.deps.Observer.RoomClosed(s.room)
	slog.Info("room closed", "room", s.room)
}

// Len returns the number of sessions, including ones being released.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// List returns snapshots of the live sessions ordered by room id.
func (r *Registry) List() []SessionInfo {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if !s.releasing {
			sessions = append(sessions, s)
		}
	}
	r.mu.Unlock()

	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}

// WorkersStarted returns how many workers this registry has launched.
func (r *Registry) WorkersStarted() int64 { return r.started.Load() }
