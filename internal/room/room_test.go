package room

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/voxroom/internal/bus"
	"github.com/nextlevelbuilder/voxroom/internal/notify"
	"github.com/nextlevelbuilder/voxroom/internal/playback"
	"github.com/nextlevelbuilder/voxroom/internal/scheduler"
	"github.com/nextlevelbuilder/voxroom/internal/speech"
	"github.com/nextlevelbuilder/voxroom/internal/tts"
)

// fakeSynth returns a few KB of audio, or an error for texts listed in fail.
type fakeSynth struct {
	mu    sync.Mutex
	texts []string
	fail  map[string]bool
}

func (f *fakeSynth) Synthesize(ctx context.Context, text, voice string) (*tts.Result, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	failed := f.fail[text]
	f.mu.Unlock()
	if failed {
		return nil, &tts.Failure{Kind: tts.FailureProvider, Provider: "fake", Err: errors.New("boom")}
	}
	return &tts.Result{
		Audio:    io.NopCloser(bytes.NewReader(make([]byte, 1600))),
		Provider: "fake",
		Voice:    voice,
	}, nil
}

func (f *fakeSynth) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

// stallSink blocks without progress on its first stream until aborted.
type stallSink struct {
	mu      sync.Mutex
	calls   int
	aborted int
	bytes   int
}

func (s *stallSink) Stream(ctx context.Context, room string, audio io.Reader, opts playback.StreamOptions) error {
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	s.mu.Unlock()

	if first {
		<-ctx.Done()
		s.mu.Lock()
		s.aborted++
		s.mu.Unlock()
		return playback.ErrAborted
	}
	b, _ := io.ReadAll(audio)
	if opts.Progress != nil {
		opts.Progress()
	}
	s.mu.Lock()
	s.bytes += len(b)
	s.mu.Unlock()
	return nil
}

// recorder is an Observer that keeps everything it sees.
type recorder struct {
	NopObserver
	mu          sync.Mutex
	transitions []string
	skips       []string
	played      int
	dropped     []string
}

func (r *recorder) StateChanged(room string, from, to State) {
	r.mu.Lock()
	r.transitions = append(r.transitions, string(from)+">"+string(to))
	r.mu.Unlock()
}

func (r *recorder) Skipped(room string, u speech.Utterance, reason string, n int) {
	r.mu.Lock()
	r.skips = append(r.skips, reason)
	r.mu.Unlock()
}

func (r *recorder) Played(room string, u speech.Utterance, provider string, d time.Duration) {
	r.mu.Lock()
	r.played++
	r.mu.Unlock()
}

func (r *recorder) Dropped(room string, u speech.Utterance, reason string) {
	r.mu.Lock()
	r.dropped = append(r.dropped, reason)
	r.mu.Unlock()
}

func (r *recorder) count(transition string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.transitions {
		if t == transition {
			n++
		}
	}
	return n
}

func (r *recorder) playedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.played
}

type posts struct {
	mu  sync.Mutex
	got []notify.Notice
}

func (p *posts) Post(n notify.Notice) bool {
	p.mu.Lock()
	p.got = append(p.got, n)
	p.mu.Unlock()
	return true
}

func (p *posts) all() []notify.Notice {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notify.Notice(nil), p.got...)
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func utter(id, text string) speech.Utterance {
	return speech.Utterance{ID: id, SourceID: "u1", RoomID: "room", Text: text, EnqueuedAt: time.Now()}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateIdle, StateDraining, true},
		{StateIdle, StatePlaying, false},
		{StateDraining, StateSynthesizing, true},
		{StateDraining, StateIdle, true},
		{StateSynthesizing, StatePlaying, true},
		{StateSynthesizing, StateDraining, true},
		{StatePlaying, StateStuck, true},
		{StatePlaying, StateIdle, false},
		{StateStuck, StateDraining, true},
		{StateStuck, StatePlaying, false},
		{StateShuttingDown, StateIdle, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
	for _, s := range []State{StateIdle, StateDraining, StateSynthesizing, StatePlaying, StateStuck} {
		if !CanTransition(s, StateShuttingDown) {
			t.Errorf("%s cannot shut down", s)
		}
	}
}

func TestWorker_StuckAbortsOnceAndContinues(t *testing.T) {
	q := scheduler.NewRoomQueue("room", scheduler.QueueConfig{Cap: 10})
	sink := &stallSink{}
	rec := &recorder{}
	notes := &posts{}
	w := NewWorker("room", q, &fakeSynth{}, sink, notes, rec, WorkerConfig{
		StuckTimeout: 50 * time.Millisecond,
		SkipSummary:  true,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	q.Enqueue(utter("a", "first"))
	q.Enqueue(utter("b", "second"))

	eventually(t, "second item played", func() bool { return rec.playedCount() == 1 })

	if n := rec.count("playing>stuck"); n != 1 {
		t.Errorf("playing>stuck happened %d times, want 1", n)
	}
	if n := rec.count("stuck>draining"); n != 1 {
		t.Errorf("stuck>draining happened %d times, want 1", n)
	}
	sink.mu.Lock()
	aborted := sink.aborted
	sink.mu.Unlock()
	if aborted != 1 {
		t.Errorf("sink observed %d aborts, want 1", aborted)
	}

	stats := w.Stats()
	if stats.Skipped != 1 || stats.Played != 1 || stats.Consecutive != 0 {
		t.Errorf("stats = %+v", stats)
	}
	got := notes.all()
	if len(got) != 1 || got[0].Text != "1 message skipped" {
		t.Errorf("notices = %+v", got)
	}
}

func TestWorker_SynthesisFailureSkipsAndSummarizes(t *testing.T) {
	q := scheduler.NewRoomQueue("room", scheduler.QueueConfig{Cap: 10})
	synth := &fakeSynth{fail: map[string]bool{"bad1": true, "bad2": true}}
	rec := &recorder{}
	notes := &posts{}
	w := NewWorker("room", q, synth, playback.NewMemorySink(), notes, rec, WorkerConfig{SkipSummary: true})

	q.Enqueue(utter("1", "bad1"))
	q.Enqueue(utter("2", "bad2"))
	q.Enqueue(utter("3", "good"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	eventually(t, "good item played", func() bool { return rec.playedCount() == 1 })

	rec.mu.Lock()
	skips := append([]string(nil), rec.skips...)
	rec.mu.Unlock()
	if len(skips) != 2 || skips[0] != SkipSynthesis {
		t.Errorf("skips = %v", skips)
	}

	got := notes.all()
	if len(got) != 1 || got[0].Count != 2 || got[0].Text != "2 messages skipped" {
		t.Errorf("notices = %+v", got)
	}
	if w.Stats().Consecutive != 0 {
		t.Error("consecutive skips should reset after a successful play")
	}
}

func TestWorker_SinkUnavailableSkips(t *testing.T) {
	q := scheduler.NewRoomQueue("room", scheduler.QueueConfig{Cap: 10})
	sink := playback.NewMemorySink()
	sink.SetUnavailable("room", true)
	rec := &recorder{}
	w := NewWorker("room", q, &fakeSynth{}, sink, nil, rec, WorkerConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	q.Enqueue(utter("1", "hello"))
	eventually(t, "skip recorded", func() bool { return w.Stats().Skipped == 1 })

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.skips[0] != SkipSinkUnavailable {
		t.Errorf("reason = %s", rec.skips[0])
	}
}

func TestWorker_ShutdownDiscardsQueue(t *testing.T) {
	q := scheduler.NewRoomQueue("room", scheduler.QueueConfig{Cap: 10})
	block := &stallSink{}
	rec := &recorder{}
	w := NewWorker("room", q, &fakeSynth{}, block, nil, rec, WorkerConfig{StuckTimeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	q.Enqueue(utter("1", "one"))
	eventually(t, "playing", func() bool { return w.State() == StatePlaying })
	q.Enqueue(utter("2", "two"))
	q.Enqueue(utter("3", "three"))
	cancel()

	select {
	case <-w.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not stop")
	}
	if w.State() != StateShuttingDown {
		t.Errorf("state = %s", w.State())
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.dropped) != 2 {
		t.Errorf("dropped = %v, want 2 discarded", rec.dropped)
	}
	if len(rec.skips) != 0 {
		t.Errorf("shutdown abort should not count as a skip: %v", rec.skips)
	}
}

func newTestRegistry(t *testing.T, synth Synthesizer, sink playback.Sink, obs Observer) *Registry {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRegistry(ctx, Deps{
		NewSynthesizer: func(string) (Synthesizer, error) { return synth, nil },
		Sink:           sink,
		Observer:       obs,
	})
	t.Cleanup(func() {
		r.ReleaseAll()
		cancel()
	})
	return r
}

func TestRegistry_ConcurrentEnsureConverges(t *testing.T) {
	r := newTestRegistry(t, &fakeSynth{}, playback.NewMemorySink(), nil)

	const n = 50
	sessions := make([]*Session, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := r.Ensure(context.Background(), "room", SessionOptions{})
			if err != nil {
				t.Error(err)
				return
			}
			sessions[i] = s
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if sessions[i] != sessions[0] {
			t.Fatal("Ensure returned different sessions")
		}
	}
	if got := r.WorkersStarted(); got != 1 {
		t.Errorf("workers started = %d, want 1", got)
	}
}

func TestRegistry_SlowSynthesizerDoesNotBlockOtherRooms(t *testing.T) {
	unblock := make(chan struct{})
	building := make(chan struct{})
	r := NewRegistry(context.Background(), Deps{
		NewSynthesizer: func(room string) (Synthesizer, error) {
			if room == "slow" {
				close(building)
				<-unblock
			}
			return &fakeSynth{}, nil
		},
		Sink: playback.NewMemorySink(),
	})
	t.Cleanup(r.ReleaseAll)

	slowDone := make(chan error, 1)
	go func() {
		_, err := r.Ensure(context.Background(), "slow", SessionOptions{})
		slowDone <- err
	}()
	<-building

	fastDone := make(chan error, 1)
	go func() {
		_, err := r.Ensure(context.Background(), "fast", SessionOptions{})
		fastDone <- err
	}()
	select {
	case err := <-fastDone:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Ensure for another room blocked behind a slow synthesizer")
	}
	if _, ok := r.Get("fast"); !ok {
		t.Error("fast room not registered")
	}
	if _, ok := r.Get("slow"); ok {
		t.Error("slow room registered before its synthesizer was built")
	}

	close(unblock)
	if err := <-slowDone; err != nil {
		t.Fatal(err)
	}
	if got := r.WorkersStarted(); got != 2 {
		t.Errorf("workers started = %d, want 2", got)
	}
}

func TestRegistry_ReleaseWaitsForWorker(t *testing.T) {
	r := newTestRegistry(t, &fakeSynth{}, playback.NewMemorySink(), nil)

	s, err := r.Ensure(context.Background(), "room", SessionOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !r.Release("room") {
		t.Fatal("expected a session to release")
	}
	select {
	case <-s.worker.Done():
	default:
		t.Fatal("Release returned before the worker stopped")
	}
	if _, ok := r.Get("room"); ok {
		t.Error("released session still registered")
	}
	if s.Push(utter("x", "late")) {
		t.Error("released session accepted a push")
	}
	if r.Release("room") {
		t.Error("second release should report no session")
	}

	s2, err := r.Ensure(context.Background(), "room", SessionOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if s2 == s {
		t.Error("expected a fresh session after release")
	}
}

func TestRegistry_FatalSynthesizerNotifies(t *testing.T) {
	notes := &posts{}
	r := NewRegistry(context.Background(), Deps{
		NewSynthesizer: func(string) (Synthesizer, error) { return nil, tts.ErrNoProviders },
		Sink:           playback.NewMemorySink(),
		Notes:          notes,
	})

	_, err := r.Ensure(context.Background(), "room", SessionOptions{})
	if !errors.Is(err, tts.ErrNoProviders) {
		t.Fatalf("err = %v", err)
	}
	got := notes.all()
	if len(got) != 1 || got[0].Kind != notify.KindFatal {
		t.Errorf("notices = %+v", got)
	}
	if r.Len() != 0 {
		t.Error("failed session should not be registered")
	}
}

func TestRegistry_ReleaseAllRefusesNewSessions(t *testing.T) {
	r := NewRegistry(context.Background(), Deps{
		NewSynthesizer: func(string) (Synthesizer, error) { return &fakeSynth{}, nil },
		Sink:           playback.NewMemorySink(),
	})
	for _, room := range []string{"a", "b", "c"} {
		if _, err := r.Ensure(context.Background(), room, SessionOptions{}); err != nil {
			t.Fatal(err)
		}
	}
	r.ReleaseAll()
	if r.Len() != 0 {
		t.Errorf("sessions left: %d", r.Len())
	}
	if _, err := r.Ensure(context.Background(), "d", SessionOptions{}); !errors.Is(err, ErrRegistryClosed) {
		t.Errorf("err = %v", err)
	}
}

func TestPipeline_EndToEndTruncatesLongMessage(t *testing.T) {
	synth := &fakeSynth{}
	rec := &recorder{}
	r := newTestRegistry(t, synth, playback.NewMemorySink(), rec)
	p := NewPipeline(r, nil, PipelineConfig{Limits: speech.Limits{MaxMessageChars: 350}})

	if _, err := r.Ensure(context.Background(), "room", SessionOptions{}); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Submit(context.Background(), Candidate{SourceID: "u1", RoomID: "room", Text: strings.Repeat("a", 2000)}); err != nil {
		t.Fatal(err)
	}

	eventually(t, "played", func() bool { return rec.playedCount() == 1 })
	got := synth.seen()
	if len(got) != 1 || len([]rune(got[0])) != 350 {
		t.Errorf("synthesized %d texts, first has %d chars", len(got), len([]rune(got[0])))
	}
}

// releasingResolver tears the room down during its first voice lookup, so
// the session disappears between Get and Push.
type releasingResolver struct {
	r    *Registry
	once sync.Once
}

func (v *releasingResolver) ResolveVoice(_ context.Context, roomID, _ string) (string, error) {
	v.once.Do(func() { v.r.Release(roomID) })
	return "", nil
}

func TestPipeline_CooldownNotChargedWhenPushFails(t *testing.T) {
	r := newTestRegistry(t, &fakeSynth{}, playback.NewMemorySink(), nil)
	p := NewPipeline(r, &releasingResolver{r: r}, PipelineConfig{Cooldown: time.Minute})
	ctx := context.Background()

	if _, err := r.Ensure(ctx, "room", SessionOptions{}); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Submit(ctx, Candidate{SourceID: "u1", RoomID: "room", Text: "lost"}); !errors.Is(err, ErrNoSession) {
		t.Fatalf("err = %v, want ErrNoSession", err)
	}

	if _, err := r.Ensure(ctx, "room", SessionOptions{}); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Submit(ctx, Candidate{SourceID: "u1", RoomID: "room", Text: "hello"}); err != nil {
		t.Errorf("speaker charged a cooldown for an utterance that was never admitted: %v", err)
	}
}

func TestPipeline_Admission(t *testing.T) {
	r := newTestRegistry(t, &fakeSynth{}, playback.NewMemorySink(), nil)
	p := NewPipeline(r, nil, PipelineConfig{Cooldown: time.Minute, Limits: speech.Limits{RejectChars: 100}})
	ctx := context.Background()

	if _, err := p.Submit(ctx, Candidate{SourceID: "u1", RoomID: "room", Text: "hi"}); !errors.Is(err, ErrNoSession) {
		t.Errorf("no session: err = %v", err)
	}
	if _, err := r.Ensure(ctx, "room", SessionOptions{}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		c    Candidate
		want error
	}{
		{"accepted", Candidate{SourceID: "u1", RoomID: "room", Text: "hello"}, nil},
		{"cooldown", Candidate{SourceID: "u1", RoomID: "room", Text: "again"}, ErrRateLimited},
		{"other speaker", Candidate{SourceID: "u2", RoomID: "room", Text: "hey"}, nil},
		{"system bypasses cooldown", Candidate{SourceID: "u1", RoomID: "room", Text: "welcome", Origin: speech.OriginSystem}, nil},
		{"too long", Candidate{SourceID: "u3", RoomID: "room", Text: strings.Repeat("x", 101)}, speech.ErrTooLong},
		{"empty", Candidate{SourceID: "u4", RoomID: "room", Text: "   "}, speech.ErrEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := p.Submit(ctx, tt.c)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if err == nil && u.ID == "" {
				t.Error("accepted utterance has no id")
			}
		})
	}

	if st, ok := p.CurrentState("room"); !ok || st == "" {
		t.Errorf("CurrentState = %q, %v", st, ok)
	}
}

func TestPipeline_QueueOverflowKeepsNewest(t *testing.T) {
	block := &stallSink{}
	rec := &recorder{}
	r := newTestRegistry(t, &fakeSynth{}, block, rec)
	p := NewPipeline(r, nil, PipelineConfig{})

	s, err := r.Ensure(context.Background(), "room", SessionOptions{
		Queue:  scheduler.QueueConfig{Cap: 100, Drop: scheduler.DropOld},
		Worker: WorkerConfig{StuckTimeout: time.Minute},
	})
	if err != nil {
		t.Fatal(err)
	}

	// The first utterance occupies the worker so the rest pile up.
	p.Submit(context.Background(), Candidate{SourceID: "s", RoomID: "room", Text: "hold"})
	eventually(t, "playing", func() bool { return s.State() == StatePlaying })

	for i := 0; i < 101; i++ {
		if _, err := p.Submit(context.Background(), Candidate{SourceID: "s", RoomID: "room", Text: "m", Origin: speech.OriginSystem}); err != nil {
			t.Fatal(err)
		}
	}
	stats := s.Info().Queue
	if stats.Len != 100 || stats.Dropped != 1 {
		t.Errorf("queue stats = %+v", stats)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.dropped) != 1 || rec.dropped[0] != "evicted" {
		t.Errorf("dropped = %v", rec.dropped)
	}
}

func TestSession_AttributesOnSpeakerChange(t *testing.T) {
	synth := &fakeSynth{}
	rec := &recorder{}
	r := newTestRegistry(t, synth, playback.NewMemorySink(), rec)
	p := NewPipeline(r, nil, PipelineConfig{})
	if _, err := r.Ensure(context.Background(), "room", SessionOptions{}); err != nil {
		t.Fatal(err)
	}

	for _, c := range []Candidate{
		{SourceID: "a", DisplayName: "Ann", Text: "hi"},
		{SourceID: "a", DisplayName: "Ann", Text: "again", Origin: speech.OriginSystem},
		{SourceID: "b", DisplayName: "Bob", Text: "yo"},
	} {
		c.RoomID = "room"
		c.Attribute = true
		if _, err := p.Submit(context.Background(), c); err != nil {
			t.Fatal(err)
		}
	}

	eventually(t, "three plays", func() bool { return rec.playedCount() == 3 })
	got := synth.seen()
	want := []string{`Ann said. "hi"`, "again", `Bob said. "yo"`}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("text[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSession_AttributionKeepsUtteranceCap(t *testing.T) {
	synth := &fakeSynth{}
	rec := &recorder{}
	r := newTestRegistry(t, synth, playback.NewMemorySink(), rec)
	p := NewPipeline(r, nil, PipelineConfig{})
	opts := SessionOptions{Coalesce: bus.CoalesceConfig{MaxChars: 24}}
	if _, err := r.Ensure(context.Background(), "room", opts); err != nil {
		t.Fatal(err)
	}

	c := Candidate{SourceID: "a", DisplayName: "Ann", RoomID: "room", Text: "this message is rather long", Attribute: true}
	if _, err := p.Submit(context.Background(), c); err != nil {
		t.Fatal(err)
	}

	eventually(t, "played", func() bool { return rec.playedCount() == 1 })
	got := synth.seen()[0]
	if n := len([]rune(got)); n > 24 {
		t.Errorf("queued text %q has %d runes, cap 24", got, n)
	}
	if !strings.HasPrefix(got, `Ann said. "`) || !strings.HasSuffix(got, `"`) {
		t.Errorf("attribution lost: %q", got)
	}
}

func TestDispatcher_DedupesAndSubmits(t *testing.T) {
	synth := &fakeSynth{}
	rec := &recorder{}
	r := newTestRegistry(t, synth, playback.NewMemorySink(), rec)
	p := NewPipeline(r, nil, PipelineConfig{})
	if _, err := r.Ensure(context.Background(), "room", SessionOptions{}); err != nil {
		t.Fatal(err)
	}

	mb := bus.New(8)
	d := NewDispatcher(mb, p, bus.NewDedupeCache(time.Minute, 100))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	ev := bus.InboundEvent{MessageID: "m1", SourceID: "u", RoomID: "room", Text: "hello", Origin: speech.OriginChat}
	mb.TryPublishInbound(ev)
	mb.TryPublishInbound(ev)

	eventually(t, "played", func() bool { return rec.playedCount() == 1 })
	time.Sleep(50 * time.Millisecond)
	if n := len(synth.seen()); n != 1 {
		t.Errorf("synthesized %d times, want 1", n)
	}
}
