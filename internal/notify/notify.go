// Package notify delivers user-visible notices (skip summaries, fatal room
// errors) without ever blocking the caller.
package notify

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Kind classifies a notice.
type Kind string

const (
	KindSkipSummary Kind = "skip_summary"
	KindFatal       Kind = "fatal"
	KindInfo        Kind = "info"
)

// Notice is a message for the people in a room.
type Notice struct {
	Room  string `json:"room"`
	Kind  Kind   `json:"kind"`
	Text  string `json:"text"`
	Count int    `json:"count,omitempty"`
}

// Notifier delivers a notice. It may block; callers that must not block
// go through Async.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// Poster accepts a notice without blocking and reports whether it was taken.
type Poster interface {
	Post(n Notice) bool
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notice) error

func (f NotifierFunc) Notify(ctx context.Context, n Notice) error { return f(ctx, n) }

// Discard drops every notice.
type Discard struct{}

func (Discard) Post(Notice) bool { return true }

// Async is a bounded best-effort queue in front of a Notifier. When the
// buffer is full new notices are dropped and counted.
type Async struct {
	inner   Notifier
	ch      chan Notice
	timeout time.Duration
	dropped atomic.Int64
}

// NewAsync creates an async notifier with the given buffer (default 32).
// Call Run to start delivery.
func NewAsync(inner Notifier, buffer int) *Async {
	if buffer <= 0 {
		buffer = 32
	}
	return &Async{inner: inner, ch: make(chan Notice, buffer), timeout: 10 * time.Second}
}

// Post queues n for delivery.
func (a *Async) Post(n Notice) bool {
	select {
	case a.ch <- n:
		return true
	default:
		a.dropped.Add(1)
		slog.Warn("notify.dropped", "room", n.Room, "kind", n.Kind)
		return false
	}
}

// Dropped returns how many notices were dropped because the buffer was full.
func (a *Async) Dropped() int64 { return a.dropped.Load() }

// Run delivers queued notices until ctx is done.
func (a *Async) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-a.ch:
			dctx, cancel := context.WithTimeout(ctx, a.timeout)
			if err := a.inner.Notify(dctx, n); err != nil {
				slog.Warn("notify failed", "room", n.Room, "kind", n.Kind, "error", err)
			}
			cancel()
		}
	}
}
