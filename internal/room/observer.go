package room

import (
	"time"

	"github.com/nextlevelbuilder/voxroom/internal/speech"
)

// Observer receives room lifecycle callbacks. Calls are made from the room
// worker and producer goroutines; implementations must not block.
type Observer interface {
	RoomOpened(room string)
	RoomClosed(room string)
	StateChanged(room string, from, to State)
	Queued(room string, u speech.Utterance, depth int)
	Dropped(room string, u speech.Utterance, reason string)
	Skipped(room string, u speech.Utterance, reason string, consecutive int)
	Played(room string, u speech.Utterance, provider string, elapsed time.Duration)
}

// NopObserver ignores every callback.
type NopObserver struct{}

func (NopObserver) RoomOpened(string) {}
func (NopObserver) RoomClosed(string) {}
func (NopObserver) StateChanged(string, State, State) {}
func (NopObserver) Queued(string, speech.Utterance, int) {}
func (NopObserver) Dropped(string, speech.Utterance, string) {}
func (NopObserver) Skipped(string, speech.Utterance, string, int) {}
func (NopObserver) Played(string, speech.Utterance, string, time.Duration) {}

// Observers fans callbacks out to several observers in order.
type Observers []Observer

func (o Observers) RoomOpened(room string) {
	for _, ob := range o {
		ob.RoomOpened(room)
	}
}

func (o Observers) RoomClosed(room string) {
	for _, ob := range o {
		ob.RoomClosed(room)
	}
}

func (o Observers) StateChanged(room string, from, to State) {
	for _, ob := range o {
		ob.StateChanged(room, from, to)
	}
}

func (o Observers) Queued(room string, u speech.Utterance, depth int) {
	for _, ob := range o {
		ob.Queued(room, u, depth)
	}
}

func (o Observers) Dropped(room string, u speech.Utterance, reason string) {
	for _, ob := range o {
		ob.Dropped(room, u, reason)
	}
}

func (o Observers) Skipped(room string, u speech.Utterance, reason string, consecutive int) {
	for _, ob := range o {
		ob.Skipped(room, u, reason, consecutive)
	}
}

func (o Observers) Played(room string, u speech.Utterance, provider string, elapsed time.Duration) {
	for _, ob := range o {
		ob.Played(room, u, provider, elapsed)
	}
}
