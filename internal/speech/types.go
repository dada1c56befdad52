// Package speech holds the utterance model shared by the dispatch pipeline
// and the text clean-up applied before anything is queued.
package speech

import "time"

// Origin tags where an utterance came from.
type Origin string

const (
	OriginChat    Origin = "chat"    // message typed in a voice channel's text chat
	OriginCommand Origin = "command" // /tts slash command
	OriginAPI     Origin = "api"     // HTTP API call
	OriginSystem  Origin = "system"  // greetings, farewells and other bot-generated speech
)

// Utterance is one unit of text destined for synthesis and playback.
// It is treated as immutable once it reaches a room queue.
type Utterance struct {
	ID          string    `json:"id"`
	SourceID    string    `json:"source_id"`
	DisplayName string    `json:"display_name"`
	RoomID      string    `json:"room_id"`
	Text        string    `json:"text"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
	Voice       string    `json:"voice,omitempty"`
	Origin      Origin    `json:"origin"`
	Volume      float64   `json:"volume,omitempty"` // 0 means unity gain
	Parts       int       `json:"parts,omitempty"`  // number of messages merged into this one
	// Attribute prefixes the speaker's name when the previous queued
	// utterance in the room came from someone else.
	Attribute bool `json:"attribute,omitempty"`
}
