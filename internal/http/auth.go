package http

import (
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/nextlevelbuilder/voxroom/internal/store"
	"github.com/nextlevelbuilder/voxroom/pkg/protocol"
)

// extractBearerToken extracts a bearer token from the Authorization header.
// WebSocket clients that cannot set headers may pass ?token= instead.
func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// tokenMatch performs a constant-time comparison of a provided token against the expected token.
// Returns true if expected is empty (no auth configured) or if tokens match.
func tokenMatch(provided, expected string) bool {
	if expected == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// extractSourceID returns the caller-chosen speaker id from the request
// header, or "" when absent or too long.
func extractSourceID(r *http.Request) string {
	id := r.Header.Get("X-Voxroom-Source-Id")
	if id == "" {
		return ""
	}
	if err := store.ValidateUserID(id); err != nil {
		slog.Warn("security.source_id_too_long", "length", len(id), "max", store.MaxUserIDLength)
		return ""
	}
	return id
}

// clientKey identifies a caller for rate limiting: its token when auth is
// on, else its remote IP.
func clientKey(r *http.Request) string {
	if tok := extractBearerToken(r); tok != "" {
		return "token:" + tok
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// requireAuth rejects requests without the configured bearer token.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !tokenMatch(extractBearerToken(r), s.cfg.Token) {
			slog.Warn("security.unauthorized", "path", r.URL.Path, "remote", r.RemoteAddr)
			writeError(w, http.StatusUnauthorized, protocol.ErrUnauthorized, "invalid token")
			return
		}
		next(w, r)
	}
}
