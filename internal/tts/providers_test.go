package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTikTokProvider_StreamsBase64Data(t *testing.T) {
	audio := []byte(strings.Repeat("ID3-mp3-frame-", 500))
	encoded := base64.StdEncoding.EncodeToString(audio)

	var gotReq map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		io.WriteString(w, `{"success": true, "data" : "`+encoded+`", "error": null}`)
	}))
	defer srv.Close()

	p := NewTikTokProvider(TikTokConfig{URL: srv.URL})
	res, err := p.Synthesize(context.Background(), "hello", Options{Voice: "en_us_002"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer res.Audio.Close()

	got, err := io.ReadAll(res.Audio)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != string(audio) {
		t.Errorf("decoded %d bytes, want %d", len(got), len(audio))
	}
	if gotReq["voice"] != "en_us_002" || gotReq["text"] != "hello" {
		t.Errorf("request = %v", gotReq)
	}
}

func TestTikTokProvider_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"null_data", 200, `{"success":false,"data":null}`, func(err error) bool { return errors.Is(err, errTikTokNullAudio) }},
		{"error_message", 200, `{"success":false,"error":"voice not found"}`, func(err error) bool {
			return err != nil && strings.Contains(err.Error(), "voice not found")
		}},
		{"no_data", 200, `{"success":true}`, func(err error) bool { return errors.Is(err, errTikTokNoData) }},
		{"http_500", 500, `oops`, func(err error) bool {
			var se *StatusError
			return errors.As(err, &se) && se.Code == 500
		}},
		{"http_429", 429, `slow down`, func(err error) bool {
			return classify("tiktok", err, false).Kind == FailureRateLimited
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			p := NewTikTokProvider(TikTokConfig{URL: srv.URL})
			_, err := p.Synthesize(context.Background(), "hi", Options{})
			if !tt.check(err) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestTikTokProvider_InvalidBase64SurfacesOnRead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data":"!!!!not-base64!!!!"}`)
	}))
	defer srv.Close()

	c, _ := NewClient(ClientConfig{MaxRetries: 0}, NewTikTokProvider(TikTokConfig{URL: srv.URL}))
	if _, err := c.Synthesize(context.Background(), "hi", ""); err == nil {
		t.Error("expected decode failure to fail the attempt")
	}
}

func TestGoogleProvider_Request(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"q":      r.URL.Query().Get("q"),
			"tl":     r.URL.Query().Get("tl"),
			"client": r.URL.Query().Get("client"),
		}
		io.WriteString(w, "mp3-bytes")
	}))
	defer srv.Close()

	p := NewGoogleProvider(GoogleConfig{URL: srv.URL})
	res, err := p.Synthesize(context.Background(), "good morning", Options{Voice: "google_fr"})
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(res.Audio)
	res.Audio.Close()

	if string(body) != "mp3-bytes" {
		t.Errorf("body = %q", body)
	}
	if gotQuery["q"] != "good morning" || gotQuery["tl"] != "fr" || gotQuery["client"] != "tw-ob" {
		t.Errorf("query = %v", gotQuery)
	}
}

func TestProviders_SupportsVoice(t *testing.T) {
	tests := []struct {
		p     VoiceSupporter
		voice string
		want  bool
	}{
		{NewTikTokProvider(TikTokConfig{}), "en_us_002", true},
		{NewTikTokProvider(TikTokConfig{}), GoogleVoice, false},
		{NewGoogleProvider(GoogleConfig{}), GoogleVoice, true},
		{NewGoogleProvider(GoogleConfig{}), "en_us_002", false},
		{NewOpenAIProvider(OpenAIConfig{}), "nova", true},
		{NewOpenAIProvider(OpenAIConfig{}), "en_us_002", false},
		{NewElevenLabsProvider(ElevenLabsConfig{}), "pMsXgVXv3BLzUgSXRplE", true},
		{NewEdgeProvider(EdgeConfig{}), "en-GB-SoniaNeural", true},
		{NewMiniMaxProvider(MiniMaxConfig{}), "Wise_Woman", true},
		{NewMiniMaxProvider(MiniMaxConfig{}), "en_us_002", false},
	}
	for _, tt := range tests {
		if got := tt.p.SupportsVoice(tt.voice); got != tt.want {
			t.Errorf("%T.SupportsVoice(%q) = %v, want %v", tt.p, tt.voice, got, tt.want)
		}
	}
}

func TestEdgeCommand(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", []string{"edge-tts"}},
		{"  ", []string{"edge-tts"}},
		{"/usr/local/bin/edge-tts", []string{"/usr/local/bin/edge-tts"}},
		{"python3 -m edge_tts", []string{"python3", "-m", "edge_tts"}},
		{`"/opt/my tools/edge-tts" --proxy http://p:3128`, []string{"/opt/my tools/edge-tts", "--proxy", "http://p:3128"}},
	}
	for _, tt := range tests {
		got := EdgeCommand(tt.in)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("EdgeCommand(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOpenAIProvider_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing auth header")
		}
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", APIBase: srv.URL})
	_, err := p.Synthesize(context.Background(), "hi", Options{})
	if f := classify(p.Name(), err, false); f.Kind != FailureRateLimited {
		t.Errorf("kind = %s", f.Kind)
	}
}
