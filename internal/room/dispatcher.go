package room

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nextlevelbuilder/voxroom/internal/bus"
	"github.com/nextlevelbuilder/voxroom/internal/speech"
)

// Dispatcher feeds inbound bus events into the pipeline.
type Dispatcher struct {
	bus      *bus.MessageBus
	pipeline *Pipeline
	dedupe   *bus.DedupeCache
}

// NewDispatcher creates a dispatcher. dedupe may be nil.
func NewDispatcher(mb *bus.MessageBus, p *Pipeline, dedupe *bus.DedupeCache) *Dispatcher {
	return &Dispatcher{bus: mb, pipeline: p, dedupe: dedupe}
}

// Run consumes inbound events until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		ev, ok := d.bus.ConsumeInbound(ctx)
		if !ok {
			return
		}
		d.handle(ctx, ev)
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev bus.InboundEvent) {
	if d.dedupe != nil && d.dedupe.IsDuplicate(ev.MessageID) {
		slog.Debug("room: duplicate message ignored", "room", ev.RoomID, "message", ev.MessageID)
		return
	}

	_, err := d.pipeline.Submit(ctx, Candidate{
		SourceID:    ev.SourceID,
		DisplayName: ev.DisplayName,
		RoomID:      ev.RoomID,
		Text:        ev.Text,
		Origin:      ev.Origin,
		Voice:       ev.Voice,
		Volume:      ev.Volume,
		Attribute:   ev.Announce,
	})
	switch {
	case err == nil, errors.Is(err, ErrRateLimited), errors.Is(err, speech.ErrEmpty):
	case errors.Is(err, ErrNoSession):
		slog.Debug("room: no session for message", "room", ev.RoomID)
	default:
		slog.Info("room: message rejected", "room", ev.RoomID, "source", ev.SourceID, "error", err)
	}
}
