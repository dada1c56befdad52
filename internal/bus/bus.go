// Package bus routes inbound text events to the dispatch pipeline, merges
// bursts of messages per room and broadcasts pipeline events to subscribers.
package bus

import (
	"context"
	"errors"
	"sync"
)

// ErrBusFull is returned by TryPublishInbound when the inbound buffer is full.
var ErrBusFull = errors.New("inbound bus is full")

// MessageBus carries inbound events from gateways to the dispatcher and
// broadcasts pipeline events to subscribers.
type MessageBus struct {
	inbound chan InboundEvent

	// Event subscribers (subscriber ID → handler)
	subscribers map[string]EventHandler
	subMu       sync.RWMutex
}

// New creates a bus with the given inbound buffer size (default 256).
func New(buffer int) *MessageBus {
	if buffer <= 0 {
		buffer = 256
	}
	return &MessageBus{
		inbound:     make(chan InboundEvent, buffer),
		subscribers: make(map[string]EventHandler),
	}
}

// PublishInbound queues an inbound event, waiting for buffer space until ctx is done.
func (mb *MessageBus) PublishInbound(ctx context.Context, ev InboundEvent) error {
	select {
	case mb.inbound <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPublishInbound queues an inbound event without waiting.
func (mb *MessageBus) TryPublishInbound(ev InboundEvent) error {
	select {
	case mb.inbound <- ev:
		return nil
	default:
		return ErrBusFull
	}
}

// ConsumeInbound blocks until an inbound event is available or ctx is cancelled.
func (mb *MessageBus) ConsumeInbound(ctx context.Context) (InboundEvent, bool) {
	select {
	case ev := <-mb.inbound:
		return ev, true
	case <-ctx.Done():
		return InboundEvent{}, false
	}
}

// Subscribe registers an event subscriber under id, replacing any previous one.
func (mb *MessageBus) Subscribe(id string, handler EventHandler) {
	mb.subMu.Lock()
	defer mb.subMu.Unlock()
	mb.subscribers[id] = handler
}

// Unsubscribe removes an event subscriber.
func (mb *MessageBus) Unsubscribe(id string) {
	mb.subMu.Lock()
	defer mb.subMu.Unlock()
	delete(mb.subscribers, id)
}

// Broadcast sends an event to all subscribers.
func (mb *MessageBus) Broadcast(event Event) {
	mb.subMu.RLock()
	defer mb.subMu.RUnlock()
	for _, handler := range mb.subscribers {
		handler(event) // handlers should be non-blocking
	}
}

// SubscriberCount returns the number of registered subscribers.
func (mb *MessageBus) SubscriberCount() int {
	mb.subMu.RLock()
	defer mb.subMu.RUnlock()
	return len(mb.subscribers)
}
