package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/nextlevelbuilder/voxroom/internal/room"
	"github.com/nextlevelbuilder/voxroom/internal/speech"
	"github.com/nextlevelbuilder/voxroom/pkg/protocol"
)

// maxSpeakBody bounds the request body of POST /v1/speak.
const maxSpeakBody = 64 * 1024

func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	var req protocol.SpeakRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSpeakBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, protocol.ErrInvalidRequest, "invalid JSON: "+err.Error())
		return
	}
	if !isValidRoomID(req.RoomID) {
		writeError(w, http.StatusBadRequest, protocol.ErrInvalidRequest, "room_id is missing or malformed")
		return
	}
	if req.Volume < 0 || req.Volume > 2 {
		writeError(w, http.StatusBadRequest, protocol.ErrInvalidRequest, "volume must be within 0..2")
		return
	}

	source := req.SourceID
	if source == "" {
		source = extractSourceID(r)
	}
	if source == "" {
		source = "api:" + clientKey(r)
	}
	name := req.DisplayName
	if name == "" {
		name = "API"
	}

	u, err := s.pipeline.Submit(r.Context(), room.Candidate{
		SourceID:    source,
		DisplayName: name,
		RoomID:      req.RoomID,
		Text:        req.Text,
		Origin:      speech.OriginAPI,
		Voice:       req.Voice,
		Volume:      req.Volume,
	})
	switch {
	case err == nil:
	case errors.Is(err, speech.ErrTooLong):
		writeError(w, http.StatusBadRequest, protocol.ErrTooLong, "text too long")
		return
	case errors.Is(err, speech.ErrEmpty):
		writeError(w, http.StatusBadRequest, protocol.ErrInvalidRequest, "text is empty")
		return
	case errors.Is(err, room.ErrNoSession):
		writeError(w, http.StatusNotFound, protocol.ErrNotFound, "no voice session in room "+req.RoomID)
		return
	case errors.Is(err, room.ErrRateLimited):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, protocol.ErrResourceExhausted, "speaker is cooling down")
		return
	default:
		slog.Error("http: speak failed", "room", req.RoomID, "error", err)
		writeError(w, http.StatusInternalServerError, protocol.ErrInternal, "submit failed")
		return
	}

	writeJSON(w, http.StatusAccepted, protocol.SpeakResponse{Accepted: true, RoomID: u.RoomID, ID: u.ID})
}
