// Package http serves the local control API: submitting speech, inspecting
// rooms and streaming pipeline events over WebSocket.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/voxroom/internal/bus"
	"github.com/nextlevelbuilder/voxroom/internal/ratelimit"
	"github.com/nextlevelbuilder/voxroom/internal/room"
	"github.com/nextlevelbuilder/voxroom/pkg/protocol"
)

// Config configures the API server.
type Config struct {
	Token   string       // bearer token; empty disables auth
	Limiter *ratelimit.Limiter
	Metrics http.Handler // Prometheus handler, nil hides /metrics
	Version string
}

// Server is the HTTP API.
type Server struct {
	cfg      Config
	pipeline *room.Pipeline
	bus      *bus.MessageBus
	upgrader websocket.Upgrader
	started  time.Time
	srv      *http.Server
}

// NewServer creates the API server.
func NewServer(cfg Config, p *room.Pipeline, mb *bus.MessageBus) *Server {
	return &Server{
		cfg:      cfg,
		pipeline: p,
		bus:      mb,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		started: time.Now(),
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/speak", s.requireAuth(s.rateLimited(s.handleSpeak)))
	mux.HandleFunc("GET /v1/rooms", s.requireAuth(s.handleRooms))
	mux.HandleFunc("GET /v1/rooms/{id}", s.requireAuth(s.handleRoom))
	mux.HandleFunc("GET /v1/events", s.requireAuth(s.handleEvents))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.cfg.Metrics != nil {
		mux.Handle("GET /metrics", s.cfg.Metrics)
	}
	return mux
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()
	slog.Info("http api listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Limiter != nil && !s.cfg.Limiter.Allow(clientKey(r)) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, protocol.ErrResourceExhausted, "rate limit exceeded")
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("http: write response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, protocol.NewError(code, message))
}

type healthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Rooms    int    `json:"rooms"`
	Uptime   string `json:"uptime"`
	Watchers int    `json:"event_subscribers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Version:  s.cfg.Version,
		Rooms:    s.pipeline.Registry().Len(),
		Uptime:   time.Since(s.started).Round(time.Second).String(),
		Watchers: s.bus.SubscriberCount(),
	})
}
