package protocol

// Event names pushed to /v1/events subscribers.
const (
	EventRoomOpened       = "room.opened"
	EventRoomClosed       = "room.closed"
	EventRoomState        = "room.state"
	EventRoomSkip         = "room.skip"
	EventUtteranceQueued  = "utterance.queued"
	EventUtteranceDropped = "utterance.dropped"
	EventUtterancePlayed  = "utterance.played"
	EventShutdown         = "shutdown"
)

// RoomStatePayload is the payload of EventRoomState.
type RoomStatePayload struct {
	RoomID string `json:"room_id"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// SkipPayload is the payload of EventRoomSkip.
type SkipPayload struct {
	RoomID      string `json:"room_id"`
	UtteranceID string `json:"utterance_id"`
	Reason      string `json:"reason"`
	Consecutive int    `json:"consecutive"`
}

// UtterancePayload is the payload of the utterance.* events.
type UtterancePayload struct {
	RoomID      string `json:"room_id"`
	UtteranceID string `json:"utterance_id"`
	SourceID    string `json:"source_id,omitempty"`
	Provider    string `json:"provider,omitempty"`
	Parts       int    `json:"parts,omitempty"`
	Depth       int    `json:"depth,omitempty"`  // queue length after enqueue
	Reason      string `json:"reason,omitempty"` // why it was dropped
	ElapsedMS   int64  `json:"elapsed_ms,omitempty"`
}

// RoomPayload is the payload of EventRoomOpened and EventRoomClosed.
type RoomPayload struct {
	RoomID string `json:"room_id"`
}
