package room

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/voxroom/internal/notify"
	"github.com/nextlevelbuilder/voxroom/internal/playback"
	"github.com/nextlevelbuilder/voxroom/internal/scheduler"
	"github.com/nextlevelbuilder/voxroom/internal/speech"
	"github.com/nextlevelbuilder/voxroom/internal/tts"
)

var errStuck = errors.New("playback made no progress")

// Synthesizer turns text into an audio stream. *tts.Client implements it.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (*tts.Result, error)
}

// WorkerConfig configures a room worker. It is read once at construction.
type WorkerConfig struct {
	StuckTimeout     time.Duration // no playback progress for this long aborts the item (default 15s)
	StuckGrace       time.Duration // how long an aborted sink may take to return (default 2s)
	MaxAudioDuration time.Duration // playback is truncated beyond this (default 60s)
	SkipSummary      bool
}

// DefaultWorkerConfig returns sensible defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		StuckTimeout:     15 * time.Second,
		StuckGrace:       2 * time.Second,
		MaxAudioDuration: 60 * time.Second,
		SkipSummary:      true,
	}
}

// WorkerStats is a snapshot of worker counters.
type WorkerStats struct {
	State       State  `json:"state"`
	Current     string `json:"current,omitempty"`
	Played      int64  `json:"played"`
	Skipped     int64  `json:"skipped"`
	Consecutive int    `json:"consecutive_skips"`
}

// Worker consumes a room queue one utterance at a time: synthesize, then
// play, then take the next. An item failure never stops the worker; it only
// exits when its context is cancelled or the queue is closed.
type Worker struct {
	room  string
	queue *scheduler.RoomQueue
	synth Synthesizer
	sink  playback.Sink
	notes notify.Poster
	obs   Observer
	cfg   WorkerConfig

	mu          sync.Mutex
	state       State
	current     string
	played      int64
	skipped     int64
	consecutive int
	unreported  int

	done chan struct{}
}

// NewWorker creates a worker in the Idle state. Call Run to start it.
func NewWorker(room string, q *scheduler.RoomQueue, synth Synthesizer, sink playback.Sink, notes notify.Poster, obs Observer, cfg WorkerConfig) *Worker {
	def := DefaultWorkerConfig()
	if cfg.StuckTimeout <= 0 {
		cfg.StuckTimeout = def.StuckTimeout
	}
	if cfg.StuckGrace <= 0 {
		cfg.StuckGrace = def.StuckGrace
	}
	if cfg.MaxAudioDuration <= 0 {
		cfg.MaxAudioDuration = def.MaxAudioDuration
	}
	if notes == nil {
		notes = notify.Discard{}
	}
	if obs == nil {
		obs = NopObserver{}
	}
	return &Worker{
		room:  room,
		queue: q,
		synth: synth,
		sink:  sink,
		notes: notes,
		obs:   obs,
		cfg:   cfg,
		state: StateIdle,
		done:  make(chan struct{}),
	}
}

// State returns the current state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Stats returns a snapshot of the worker counters.
func (w *Worker) Stats() WorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WorkerStats{
		State:       w.state,
		Current:     w.current,
		Played:      w.played,
		Skipped:     w.skipped,
		Consecutive: w.consecutive,
	}
}

// Done is closed once Run has returned.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Run processes the queue until ctx is cancelled or the queue is closed.
// On exit the worker enters ShuttingDown and discards what is left queued.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	defer w.shutdown()

	for {
		if w.queue.Len() == 0 {
			w.endSkipRun()
			w.transition(StateIdle)
		}

		u, err := w.queue.Dequeue(ctx)
		if err != nil {
			return
		}
		if w.State() == StateIdle {
			w.transition(StateDraining)
		}

		w.process(ctx, u)
		if ctx.Err() != nil {
			return
		}
	}
}

func (w *Worker) process(ctx context.Context, u speech.Utterance) {
	w.setCurrent(u.ID)
	defer w.setCurrent("")

	w.transition(StateSynthesizing)
	start := time.Now()
	res, err := w.synth.Synthesize(ctx, u.Text, u.Voice)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.skip(u, SkipSynthesis, err)
		w.transition(StateDraining)
		return
	}

	var closeOnce sync.Once
	closeAudio := func() { closeOnce.Do(func() { res.Audio.Close() }) }
	defer closeAudio()

	w.transition(StatePlaying)
	err = w.play(ctx, u, res.Audio, closeAudio)

	switch {
	case err == nil:
		w.mu.Lock()
		w.played++
		w.consecutive = 0
		w.mu.Unlock()
		slog.Debug("room: played", "room", w.room, "utterance", u.ID, "provider", res.Provider)
		w.obs.Played(w.room, u, res.Provider, time.Since(start))
		w.endSkipRun()
		w.transition(StateDraining)
	case errors.Is(err, errStuck):
		w.transition(StateStuck)
		w.skip(u, SkipStuck, err)
		w.transition(StateDraining)
	case ctx.Err() != nil:
		// shutting down; Run returns next
	case errors.Is(err, playback.ErrSinkUnavailable):
		w.skip(u, SkipSinkUnavailable, err)
		w.transition(StateDraining)
	case errors.Is(err, playback.ErrAborted):
		slog.Debug("room: playback aborted", "room", w.room, "utterance", u.ID)
		w.transition(StateDraining)
	default:
		w.skip(u, SkipPlayback, err)
		w.transition(StateDraining)
	}
}

// play streams audio to the sink under a progress watchdog. When the sink
// reports no progress for StuckTimeout its context is cancelled; a sink that
// still does not return within StuckGrace is abandoned and its audio closed.
func (w *Worker) play(ctx context.Context, u speech.Utterance, audio io.Reader, closeAudio func()) error {
	playCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	watchdog := time.AfterFunc(w.cfg.StuckTimeout, func() { cancel(errStuck) })
	defer watchdog.Stop()

	opts := playback.StreamOptions{
		Volume:      u.Volume,
		MaxDuration: w.cfg.MaxAudioDuration,
		Progress:    func() { watchdog.Reset(w.cfg.StuckTimeout) },
	}

	result := make(chan error, 1)
	go func() { result <- w.sink.Stream(playCtx, w.room, audio, opts) }()

	var err error
	select {
	case err = <-result:
	case <-playCtx.Done():
		grace := time.NewTimer(w.cfg.StuckGrace)
		select {
		case err = <-result:
		case <-grace.C:
			slog.Warn("room.sink_abandoned", "room", w.room, "utterance", u.ID)
			closeAudio()
			err = context.Cause(playCtx)
		}
		grace.Stop()
	}

	if err != nil && errors.Is(context.Cause(playCtx), errStuck) {
		return errStuck
	}
	return err
}

func (w *Worker) skip(u speech.Utterance, reason string, err error) {
	w.mu.Lock()
	w.skipped++
	w.consecutive++
	w.unreported++
	n := w.consecutive
	w.mu.Unlock()

	slog.Warn("room.skip", "room", w.room, "utterance", u.ID, "reason", reason, "consecutive", n, "error", err)
	w.obs.Skipped(w.room, u, reason, n)
}

// endSkipRun posts one summary for the skips since the last summary.
func (w *Worker) endSkipRun() {
	w.mu.Lock()
	n := w.unreported
	w.unreported = 0
	w.mu.Unlock()

	if n == 0 || !w.cfg.SkipSummary {
		return
	}
	w.notes.Post(notify.Notice{
		Room:  w.room,
		Kind:  notify.KindSkipSummary,
		Text:  SkipSummaryText(n),
		Count: n,
	})
}

// SkipSummaryText renders the aggregated skip notice.
func SkipSummaryText(n int) string {
	if n == 1 {
		return "1 message skipped"
	}
	return fmt.Sprintf("%d messages skipped", n)
}

func (w *Worker) shutdown() {
	w.transition(StateShuttingDown)
	rest := w.queue.Close()
	for _, u := range rest {
		w.obs.Dropped(w.room, u, "shutdown")
	}
	if len(rest) > 0 {
		slog.Info("room: discarded queued utterances", "room", w.room, "count", len(rest))
	}
	w.endSkipRun()
}

func (w *Worker) setCurrent(id string) {
	w.mu.Lock()
	w.current = id
	w.mu.Unlock()
}

// transition moves to state to. Same-state moves are ignored; illegal ones
// are logged and refused.
func (w *Worker) transition(to State) {
	w.mu.Lock()
	from := w.state
	if from == to {
		w.mu.Unlock()
		return
	}
	if !CanTransition(from, to) {
		w.mu.Unlock()
		slog.Error("room: refused state change", "room", w.room, "error", &InvalidTransitionError{From: from, To: to})
		return
	}
	w.state = to
	w.mu.Unlock()

	slog.Debug("room: state", "room", w.room, "from", from, "to", to)
	w.obs.StateChanged(w.room, from, to)
}
