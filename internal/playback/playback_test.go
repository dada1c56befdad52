package playback

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
)

func TestMaxFrames(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want int
	}{
		{0, 0},
		{time.Millisecond, 1},
		{time.Second, 50},
		{30 * time.Second, 1500},
	}
	for _, tt := range tests {
		if got := MaxFrames(tt.d); got != tt.want {
			t.Errorf("MaxFrames(%v) = %d, want %d", tt.d, got, tt.want)
		}
	}
}

func TestMemorySink_PlaysToEnd(t *testing.T) {
	s := NewMemorySink()
	s.FrameBytes = 10

	progress := 0
	err := s.Stream(context.Background(), "room", strings.NewReader(strings.Repeat("x", 95)), StreamOptions{
		Progress: func() { progress++ },
	})
	if err != nil {
		t.Fatal(err)
	}
	played := s.Played("room")
	if len(played) != 1 || played[0].Frames != 10 || played[0].Bytes != 95 {
		t.Errorf("played = %+v", played)
	}
	if progress != 10 {
		t.Errorf("progress calls = %d", progress)
	}
}

func TestMemorySink_TruncatesAtMaxDuration(t *testing.T) {
	s := NewMemorySink()
	s.FrameBytes = 1

	err := s.Stream(context.Background(), "room", strings.NewReader(strings.Repeat("x", 1000)), StreamOptions{
		MaxDuration: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("truncation should not be an error: %v", err)
	}
	p := s.Played("room")[0]
	if p.Frames != 5 || !p.Truncated {
		t.Errorf("playback = %+v", p)
	}
}

func TestMemorySink_Unavailable(t *testing.T) {
	s := NewMemorySink()
	s.SetUnavailable("room", true)
	err := s.Stream(context.Background(), "room", strings.NewReader("x"), StreamOptions{})
	if !errors.Is(err, ErrSinkUnavailable) {
		t.Errorf("expected ErrSinkUnavailable, got %v", err)
	}
}

func TestMemorySink_AbortOnCancel(t *testing.T) {
	s := NewMemorySink()
	s.FrameDelay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	pr, pw := io.Pipe()
	go func() {
		for i := 0; i < 1000; i++ {
			if _, err := pw.Write(make([]byte, 160)); err != nil {
				return
			}
		}
		pw.Close()
	}()
	defer pr.Close()

	if err := s.Stream(ctx, "room", pr, StreamOptions{}); !errors.Is(err, ErrAborted) {
		t.Errorf("expected ErrAborted, got %v", err)
	}
}

type noVoiceConnections struct{}

func (noVoiceConnections) VoiceConnection(string) (*discordgo.VoiceConnection, bool) { return nil, false }

func TestDiscordSink_NoConnection(t *testing.T) {
	s := NewDiscordSink(noVoiceConnections{}, DiscordSinkConfig{})
	err := s.Stream(context.Background(), "room", strings.NewReader("x"), StreamOptions{})
	if !errors.Is(err, ErrSinkUnavailable) {
		t.Errorf("expected ErrSinkUnavailable, got %v", err)
	}
}

func TestDiscordSink_FFmpegArgs(t *testing.T) {
	s := NewDiscordSink(noVoiceConnections{}, DiscordSinkConfig{})
	args := strings.Join(s.ffmpegArgs(0.8), " ")
	for _, want := range []string{"pipe:0", "volume=0.80", "libopus", "-frame_duration 20", "-page_duration 20000", "pipe:1"} {
		if !strings.Contains(args, want) {
			t.Errorf("args missing %q: %s", want, args)
		}
	}
	if strings.Contains(strings.Join(s.ffmpegArgs(1), " "), "volume=") {
		t.Error("unity gain should not add a volume filter")
	}
}
