package http

import (
	"net/http"

	"github.com/nextlevelbuilder/voxroom/pkg/protocol"
)

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"rooms": s.pipeline.Registry().List()})
}

func (s *Server) handleRoom(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !isValidRoomID(id) {
		writeError(w, http.StatusBadRequest, protocol.ErrInvalidRequest, "malformed room id")
		return
	}
	sess, ok := s.pipeline.Registry().Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, protocol.ErrNotFound, "no voice session in room "+id)
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}
