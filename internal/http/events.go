package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/voxroom/internal/bus"
	"github.com/nextlevelbuilder/voxroom/pkg/protocol"
)

const (
	eventsReadLimit  = 4 * 1024
	eventsPongWait   = 60 * time.Second
	eventsPingPeriod = 30 * time.Second
	eventsWriteWait  = 10 * time.Second
	eventsSendBuffer = 256
)

// eventClient is one /v1/events subscriber. Events are pushed to a buffered
// channel; a slow client loses events rather than blocking the bus.
type eventClient struct {
	id   string
	conn *websocket.Conn
	room string // only forward events of this room when set
	send chan []byte
	seq  atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	roomFilter := r.URL.Query().Get("room")
	if roomFilter != "" && !isValidRoomID(roomFilter) {
		writeError(w, http.StatusBadRequest, protocol.ErrInvalidRequest, "malformed room filter")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &eventClient{
		id:   uuid.NewString(),
		conn: conn,
		room: roomFilter,
		send: make(chan []byte, eventsSendBuffer),
		done: make(chan struct{}),
	}
	c.enqueue(protocol.HelloFrame{Type: protocol.FrameTypeHello, Protocol: protocol.ProtocolVersion, ClientID: c.id})

	s.bus.Subscribe(c.id, c.handle)
	defer s.bus.Unsubscribe(c.id)
	slog.Debug("events client connected", "client", c.id, "room", roomFilter)

	go c.writePump()
	c.readPump()
	c.close()
	slog.Debug("events client disconnected", "client", c.id)
}

// handle is the bus subscriber. It must not block.
func (c *eventClient) handle(ev bus.Event) {
	if c.room != "" && ev.Name != protocol.EventShutdown && roomOf(ev.Payload) != c.room {
		return
	}
	frame := protocol.NewEvent(ev.Name, ev.Payload)
	frame.Seq = c.seq.Add(1)
	c.enqueue(frame)
}

func (c *eventClient) enqueue(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("marshal event failed", "error", err)
		return
	}
	select {
	case <-c.done:
	case c.send <- data:
	default:
		slog.Warn("events client buffer full, dropping event", "client", c.id)
	}
}

// readPump discards client frames and returns when the connection ends.
func (c *eventClient) readPump() {
	c.conn.SetReadLimit(eventsReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(eventsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(eventsPongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read error", "client", c.id, "error", err)
			}
			return
		}
	}
}

// writePump writes queued frames and keepalive pings.
func (c *eventClient) writePump() {
	ticker := time.NewTicker(eventsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(eventsWriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(eventsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(eventsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *eventClient) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// roomOf extracts the room id from a known event payload.
func roomOf(payload any) string {
	switch p := payload.(type) {
	case protocol.RoomPayload:
		return p.RoomID
	case protocol.RoomStatePayload:
		return p.RoomID
	case protocol.SkipPayload:
		return p.RoomID
	case protocol.UtterancePayload:
		return p.RoomID
	}
	return ""
}
