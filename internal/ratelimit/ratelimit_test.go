package ratelimit

import (
	"context"
	"testing"
	"time"
)

// fakeClock lets tests move time without sleeping.
type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCooldown(d time.Duration) (*Cooldown, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := NewCooldown(d)
	c.now = clk.now
	return c, clk
}

func TestCooldown_SecondWithinWindowDropped(t *testing.T) {
	c, clk := newTestCooldown(2 * time.Second)

	if !c.Allow("room", "alice") {
		t.Fatal("first utterance should be accepted")
	}
	clk.advance(500 * time.Millisecond)
	if c.Allow("room", "alice") {
		t.Error("second utterance within cooldown should be dropped")
	}
	clk.advance(2 * time.Second)
	if !c.Allow("room", "alice") {
		t.Error("utterance after cooldown should be accepted")
	}
}

func TestCooldown_MeasuredFromAcceptance(t *testing.T) {
	c, clk := newTestCooldown(time.Second)

	c.Allow("room", "alice")
	clk.advance(600 * time.Millisecond)
	c.Allow("room", "alice") // rejected, must not extend the window
	clk.advance(500 * time.Millisecond)

	if !c.Allow("room", "alice") {
		t.Error("rejected attempts should not restart the cooldown")
	}
}

func TestCooldown_KeyedByRoomAndSource(t *testing.T) {
	c, _ := newTestCooldown(time.Minute)

	tests := []struct {
		room, source string
		want         bool
	}{
		{"r1", "alice", true},
		{"r1", "bob", true},
		{"r2", "alice", true},
		{"r1", "alice", false},
		{"r2", "bob", true},
	}
	for i, tt := range tests {
		if got := c.Allow(tt.room, tt.source); got != tt.want {
			t.Errorf("call %d Allow(%s, %s) = %v, want %v", i, tt.room, tt.source, got, tt.want)
		}
	}
}

func TestCooldown_PrunesLazily(t *testing.T) {
	c, clk := newTestCooldown(time.Second)

	c.Allow("room", "a")
	c.Allow("room", "b")
	c.Allow("room", "c")
	if c.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", c.Len())
	}

	clk.advance(2 * time.Second)
	c.Allow("room", "d")
	if c.Len() != 1 {
		t.Errorf("expected expired entries pruned, got %d", c.Len())
	}

	c.ForgetRoom("room")
	if c.Len() != 0 {
		t.Errorf("expected room forgotten, got %d", c.Len())
	}
}

func TestCooldown_Refund(t *testing.T) {
	c := NewCooldown(time.Minute)
	if !c.Allow("room", "alice") || !c.Allow("room", "bob") {
		t.Fatal("first utterances should be allowed")
	}
	c.Refund("room", "alice")
	if !c.Allow("room", "alice") {
		t.Error("refunded speaker should be allowed again")
	}
	if c.Allow("room", "bob") {
		t.Error("refund must not touch other speakers")
	}
	c.Refund("other", "alice")
	var nilCooldown *Cooldown
	nilCooldown.Refund("room", "alice")
}

func TestCooldown_Disabled(t *testing.T) {
	c := NewCooldown(0)
	for i := 0; i < 5; i++ {
		if !c.Allow("room", "alice") {
			t.Fatal("disabled cooldown should always allow")
		}
	}

	var nilCooldown *Cooldown
	if !nilCooldown.Allow("room", "alice") {
		t.Error("nil cooldown should allow")
	}
}

func TestLimiter_Burst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLimiter(ctx, 60, 2)
	if !l.Allow("k") || !l.Allow("k") {
		t.Fatal("burst of 2 should be allowed")
	}
	if l.Allow("k") {
		t.Error("third request should be limited")
	}
	if !l.Allow("other") {
		t.Error("other key should have its own bucket")
	}
}

func TestLimiter_Disabled(t *testing.T) {
	l := NewLimiter(context.Background(), 0, 0)
	if l.Enabled() {
		t.Fatal("expected disabled limiter")
	}
	for i := 0; i < 100; i++ {
		if !l.Allow("k") {
			t.Fatal("disabled limiter should allow everything")
		}
	}
}

func TestLimiter_Sweep(t *testing.T) {
	l := NewLimiter(context.Background(), 0, 1)
	l.getOrCreate("old")
	l.sweep(time.Now().Add(time.Minute))

	if _, ok := l.limiters.Load("old"); ok {
		t.Error("stale entry should be swept")
	}
}
