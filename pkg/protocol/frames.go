// Package protocol defines the wire format of the voxroom HTTP API and its
// WebSocket event stream. It is importable by external clients.
package protocol

import "encoding/json"

// Protocol version reported in the event stream hello frame.
const ProtocolVersion = 1

// Frame types
const (
	FrameTypeHello = "hello"
	FrameTypeEvent = "event"
)

// SpeakRequest is the body of POST /v1/speak.
type SpeakRequest struct {
	RoomID      string  `json:"room_id"`
	Text        string  `json:"text"`
	Voice       string  `json:"voice,omitempty"`
	SourceID    string  `json:"source_id,omitempty"`
	DisplayName string  `json:"display_name,omitempty"`
	Volume      float64 `json:"volume,omitempty"`
}

// SpeakResponse acknowledges an accepted utterance. Queue admission happens
// after coalescing, so acceptance does not guarantee playback.
type SpeakResponse struct {
	Accepted bool   `json:"accepted"`
	RoomID   string `json:"room_id"`
	ID       string `json:"id"`
}

// ErrorShape describes an API error.
type ErrorShape struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Retryable    bool   `json:"retryable,omitempty"`
	RetryAfterMs int    `json:"retryAfterMs,omitempty"`
}

// ErrorBody wraps ErrorShape for HTTP responses.
type ErrorBody struct {
	Error ErrorShape `json:"error"`
}

// HelloFrame is the first frame sent on the event stream.
type HelloFrame struct {
	Type     string `json:"type"` // always "hello"
	Protocol int    `json:"protocol"`
	ClientID string `json:"client_id"`
}

// EventFrame is pushed from server to client.
type EventFrame struct {
	Type    string `json:"type"`              // always "event"
	Event   string `json:"event"`             // event name
	Payload any    `json:"payload,omitempty"` // event data
	Seq     int64  `json:"seq,omitempty"`     // ordering sequence number
}

// NewEvent creates an event frame.
func NewEvent(event string, payload any) *EventFrame {
	return &EventFrame{
		Type:    FrameTypeEvent,
		Event:   event,
		Payload: payload,
	}
}

// NewError creates an error body.
func NewError(code, message string) *ErrorBody {
	return &ErrorBody{Error: ErrorShape{Code: code, Message: message}}
}

// ParseFrameType extracts the frame type from raw JSON bytes.
func ParseFrameType(data []byte) (string, error) {
	var raw struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", err
	}
	return raw.Type, nil
}
