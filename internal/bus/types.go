package bus

import "github.com/nextlevelbuilder/voxroom/internal/speech"

// InboundEvent is a text event from a chat gateway or the HTTP API, before
// normalization.
type InboundEvent struct {
	MessageID   string        `json:"message_id,omitempty"` // gateway message id, used for de-duplication
	SourceID    string        `json:"source_id"`
	DisplayName string        `json:"display_name"`
	RoomID      string        `json:"room_id"`
	Text        string        `json:"text"`
	Origin      speech.Origin `json:"origin"`
	Voice       string        `json:"voice,omitempty"` // explicit voice override
	Volume      float64       `json:"volume,omitempty"`
	Announce    bool          `json:"announce,omitempty"` // prefix with "<name> said." when the speaker changes
}

// Event is a notification broadcast to subscribers (WebSocket clients,
// metrics, cache invalidation).
type Event struct {
	Name    string `json:"name"`
	Payload any    `json:"payload,omitempty"`
}

// EventHandler receives broadcast events. Handlers must not block.
type EventHandler func(Event)
