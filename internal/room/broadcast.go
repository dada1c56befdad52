package room

import (
	"time"

	"github.com/nextlevelbuilder/voxroom/internal/bus"
	"github.com/nextlevelbuilder/voxroom/internal/speech"
	"github.com/nextlevelbuilder/voxroom/pkg/protocol"
)

// BusObserver publishes room activity as bus broadcast events.
type BusObserver struct {
	Bus *bus.MessageBus
}

func (o BusObserver) RoomOpened(room string) {
	o.Bus.Broadcast(bus.Event{Name: protocol.EventRoomOpened, Payload: protocol.RoomPayload{RoomID: room}})
}

func (o BusObserver) RoomClosed(room string) {
	o.Bus.Broadcast(bus.Event{Name: protocol.EventRoomClosed, Payload: protocol.RoomPayload{RoomID: room}})
}

func (o BusObserver) StateChanged(room string, from, to State) {
	o.Bus.Broadcast(bus.Event{Name: protocol.EventRoomState, Payload: protocol.RoomStatePayload{
		RoomID: room, From: string(from), To: string(to),
	}})
}

func (o BusObserver) Queued(room string, u speech.Utterance, depth int) {
	o.Bus.Broadcast(bus.Event{Name: protocol.EventUtteranceQueued, Payload: protocol.UtterancePayload{
		RoomID: room, UtteranceID: u.ID, SourceID: u.SourceID, Parts: u.Parts, Depth: depth,
	}})
}

func (o BusObserver) Dropped(room string, u speech.Utterance, reason string) {
	o.Bus.Broadcast(bus.Event{Name: protocol.EventUtteranceDropped, Payload: protocol.UtterancePayload{
		RoomID: room, UtteranceID: u.ID, SourceID: u.SourceID, Reason: reason,
	}})
}

func (o BusObserver) Skipped(room string, u speech.Utterance, reason string, consecutive int) {
	o.Bus.Broadcast(bus.Event{Name: protocol.EventRoomSkip, Payload: protocol.SkipPayload{
		RoomID: room, UtteranceID: u.ID, Reason: reason, Consecutive: consecutive,
	}})
}

func (o BusObserver) Played(room string, u speech.Utterance, provider string, elapsed time.Duration) {
	o.Bus.Broadcast(bus.Event{Name: protocol.EventUtterancePlayed, Payload: protocol.UtterancePayload{
		RoomID: room, UtteranceID: u.ID, SourceID: u.SourceID, Provider: provider, Parts: u.Parts,
		ElapsedMS: elapsed.Milliseconds(),
	}})
}
