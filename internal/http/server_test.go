package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/voxroom/internal/bus"
	"github.com/nextlevelbuilder/voxroom/internal/playback"
	"github.com/nextlevelbuilder/voxroom/internal/ratelimit"
	"github.com/nextlevelbuilder/voxroom/internal/room"
	"github.com/nextlevelbuilder/voxroom/internal/speech"
	"github.com/nextlevelbuilder/voxroom/internal/tts"
	"github.com/nextlevelbuilder/voxroom/pkg/protocol"
)

type silentSynth struct{}

func (silentSynth) Synthesize(ctx context.Context, text, voice string) (*tts.Result, error) {
	return &tts.Result{Audio: io.NopCloser(bytes.NewReader(make([]byte, 320))), Provider: "fake", Voice: voice}, nil
}

type fixture struct {
	srv      *httptest.Server
	registry *room.Registry
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	mb := bus.New(16)
	reg := room.NewRegistry(ctx, room.Deps{
		NewSynthesizer: func(string) (room.Synthesizer, error) { return silentSynth{}, nil },
		Sink:           playback.NewMemorySink(),
		Observer:       room.BusObserver{Bus: mb},
	})
	p := room.NewPipeline(reg, nil, room.PipelineConfig{
		Limits:   speech.Limits{MaxMessageChars: 50, RejectChars: 100},
		Cooldown: time.Minute,
	})
	srv := httptest.NewServer(NewServer(cfg, p, mb).Handler())
	t.Cleanup(func() {
		srv.Close()
		reg.ReleaseAll()
		cancel()
	})
	return &fixture{srv: srv, registry: reg}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) (*http.Response, protocol.ErrorBody) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		rd = bytes.NewReader(data)
	}
	req, _ := http.NewRequest(method, f.srv.URL+path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var eb protocol.ErrorBody
	data, _ := io.ReadAll(resp.Body)
	json.Unmarshal(data, &eb)
	return resp, eb
}

func TestHealthz_NoAuth(t *testing.T) {
	f := newFixture(t, Config{Token: "secret", Version: "test"})
	resp, _ := f.do(t, http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestAuth(t *testing.T) {
	f := newFixture(t, Config{Token: "secret"})

	resp, eb := f.do(t, http.MethodGet, "/v1/rooms", "", nil)
	if resp.StatusCode != http.StatusUnauthorized || eb.Error.Code != protocol.ErrUnauthorized {
		t.Errorf("no token: %d %+v", resp.StatusCode, eb)
	}
	resp, _ = f.do(t, http.MethodGet, "/v1/rooms", "wrong", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong token: %d", resp.StatusCode)
	}
	resp, _ = f.do(t, http.MethodGet, "/v1/rooms", "secret", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("right token: %d", resp.StatusCode)
	}
}

func TestSpeak(t *testing.T) {
	f := newFixture(t, Config{})
	if _, err := f.registry.Ensure(context.Background(), "guild1", room.SessionOptions{}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"accepted", protocol.SpeakRequest{RoomID: "guild1", Text: "hello", SourceID: "a"}, http.StatusAccepted, ""},
		{"cooling down", protocol.SpeakRequest{RoomID: "guild1", Text: "again", SourceID: "a"}, http.StatusTooManyRequests, protocol.ErrResourceExhausted},
		{"no session", protocol.SpeakRequest{RoomID: "guild2", Text: "hello", SourceID: "b"}, http.StatusNotFound, protocol.ErrNotFound},
		{"empty", protocol.SpeakRequest{RoomID: "guild1", Text: "  ", SourceID: "c"}, http.StatusBadRequest, protocol.ErrInvalidRequest},
		{"too long", protocol.SpeakRequest{RoomID: "guild1", Text: strings.Repeat("x", 101), SourceID: "d"}, http.StatusBadRequest, protocol.ErrTooLong},
		{"bad room", protocol.SpeakRequest{RoomID: "a b", Text: "hi"}, http.StatusBadRequest, protocol.ErrInvalidRequest},
		{"bad volume", protocol.SpeakRequest{RoomID: "guild1", Text: "hi", Volume: 3}, http.StatusBadRequest, protocol.ErrInvalidRequest},
		{"not json", "nope", http.StatusBadRequest, protocol.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, eb := f.do(t, http.MethodPost, "/v1/speak", "", tt.body)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d (%+v)", resp.StatusCode, tt.status, eb)
			}
			if tt.code != "" && eb.Error.Code != tt.code {
				t.Errorf("code = %q, want %q", eb.Error.Code, tt.code)
			}
		})
	}
}

func TestSpeak_RateLimitedPerClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t, Config{Limiter: ratelimit.NewLimiter(ctx, 1, 1)})

	body := protocol.SpeakRequest{RoomID: "nowhere", Text: "hi"}
	resp, _ := f.do(t, http.MethodPost, "/v1/speak", "", body)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("first request: %d", resp.StatusCode)
	}
	resp, eb := f.do(t, http.MethodPost, "/v1/speak", "", body)
	if resp.StatusCode != http.StatusTooManyRequests || resp.Header.Get("Retry-After") == "" {
		t.Errorf("second request: %d %+v", resp.StatusCode, eb)
	}
}

func TestRooms(t *testing.T) {
	f := newFixture(t, Config{})
	if _, err := f.registry.Ensure(context.Background(), "guild1", room.SessionOptions{Channel: "vc1"}); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(f.srv.URL + "/v1/rooms")
	if err != nil {
		t.Fatal(err)
	}
	var list struct {
		Rooms []room.SessionInfo `json:"rooms"`
	}
	json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()
	if len(list.Rooms) != 1 || list.Rooms[0].RoomID != "guild1" || list.Rooms[0].Channel != "vc1" {
		t.Errorf("rooms = %+v", list.Rooms)
	}

	resp, err = http.Get(f.srv.URL + "/v1/rooms/guild1")
	if err != nil {
		t.Fatal(err)
	}
	var info room.SessionInfo
	json.NewDecoder(resp.Body).Decode(&info)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || info.RoomID != "guild1" {
		t.Errorf("room: %d %+v", resp.StatusCode, info)
	}

	r2, _ := f.do(t, http.MethodGet, "/v1/rooms/unknown", "", nil)
	if r2.StatusCode != http.StatusNotFound {
		t.Errorf("unknown room: %d", r2.StatusCode)
	}
}

func TestEvents_StreamFiltersByRoom(t *testing.T) {
	f := newFixture(t, Config{Token: "secret"})

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/v1/events?room=guild2&token=secret"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var hello protocol.HelloFrame
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatal(err)
	}
	if hello.Type != protocol.FrameTypeHello || hello.ClientID == "" {
		t.Fatalf("hello = %+v", hello)
	}

	f.registry.Ensure(context.Background(), "guild1", room.SessionOptions{})
	f.registry.Ensure(context.Background(), "guild2", room.SessionOptions{})

	var ev struct {
		Type    string               `json:"type"`
		Event   string               `json:"event"`
		Payload protocol.RoomPayload `json:"payload"`
		Seq     int64                `json:"seq"`
	}
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatal(err)
	}
	if ev.Event != protocol.EventRoomOpened || ev.Payload.RoomID != "guild2" || ev.Seq != 1 {
		t.Errorf("event = %+v", ev)
	}
}

func TestRoomOf(t *testing.T) {
	tests := []struct {
		payload any
		want    string
	}{
		{protocol.RoomPayload{RoomID: "a"}, "a"},
		{protocol.RoomStatePayload{RoomID: "b"}, "b"},
		{protocol.SkipPayload{RoomID: "c"}, "c"},
		{protocol.UtterancePayload{RoomID: "d"}, "d"},
		{map[string]string{"room_id": "e"}, ""},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := roomOf(tt.payload); got != tt.want {
			t.Errorf("roomOf(%#v) = %q, want %q", tt.payload, got, tt.want)
		}
	}
}

func TestIsValidRoomID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"123456789012345678", true},
		{"my-room_1", true},
		{"", false},
		{"a b", false},
		{strings.Repeat("x", 65), false},
	}
	for _, tt := range tests {
		if got := isValidRoomID(tt.id); got != tt.want {
			t.Errorf("isValidRoomID(%q) = %v", tt.id, got)
		}
	}
}
