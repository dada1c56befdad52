package scheduler

import "errors"

var (
	// ErrQueueFull is returned when an utterance is rejected because the room queue is full (drop=new policy).
	ErrQueueFull = errors.New("room queue is full")

	// ErrQueueClosed is returned by Enqueue and Dequeue once the queue has been closed.
	ErrQueueClosed = errors.New("room queue is closed")
)
