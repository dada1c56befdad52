package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// VoiceConnections resolves a room to its live Discord voice connection.
type VoiceConnections interface {
	VoiceConnection(room string) (*discordgo.VoiceConnection, bool)
}

// DiscordSinkConfig configures the Discord sink.
type DiscordSinkConfig struct {
	FFmpegPath  string        // default "ffmpeg"
	Bitrate     string        // default "64k"
	SendTimeout time.Duration // max wait for the voice connection to take a frame (default 5s)
}

// DiscordSink transcodes any audio ffmpeg understands into 48 kHz Opus and
// pushes it frame by frame into the room's voice connection. Nothing touches
// disk: audio goes in on ffmpeg's stdin and Ogg pages come out on stdout.
type DiscordSink struct {
	voices VoiceConnections
	cfg    DiscordSinkConfig
	tracer trace.Tracer
}

// NewDiscordSink creates a sink over the given voice connections.
func NewDiscordSink(voices VoiceConnections, cfg DiscordSinkConfig) *DiscordSink {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.Bitrate == "" {
		cfg.Bitrate = "64k"
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	return &DiscordSink{voices: voices, cfg: cfg, tracer: otel.Tracer("voxroom/playback")}
}

// Stream plays audio into room's voice connection.
func (s *DiscordSink) Stream(ctx context.Context, room string, audio io.Reader, opts StreamOptions) (err error) {
	vc, ok := s.voices.VoiceConnection(room)
	if !ok || vc == nil {
		return fmt.Errorf("%w: no voice connection for room %s", ErrSinkUnavailable, room)
	}
	vc.RLock()
	ready := vc.Ready
	vc.RUnlock()
	if !ready {
		return fmt.Errorf("%w: voice connection for room %s not ready", ErrSinkUnavailable, room)
	}

	ctx, span := s.tracer.Start(ctx, "playback.stream", trace.WithAttributes(attribute.String("room", room)))
	defer span.End()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.cfg.FFmpegPath, s.ffmpegArgs(opts.Volume)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start ffmpeg: %v", ErrSinkUnavailable, err)
	}

	// The feeder is not waited on: it exits once the caller closes audio.
	go func() {
		io.Copy(stdin, audio)
		stdin.Close()
	}()
	defer func() {
		stdin.Close()
		cancel()
		if werr := cmd.Wait(); werr != nil && err == nil && ctx.Err() == nil {
			slog.Debug("ffmpeg exited", "room", room, "error", werr, "stderr", stderr.String())
		}
	}()

	ogg, _, err := oggreader.NewWith(stdout)
	if err != nil {
		if ctx.Err() != nil {
			return ErrAborted
		}
		return fmt.Errorf("read opus stream: %w (ffmpeg: %s)", err, bytes.TrimSpace(stderr.Bytes()))
	}

	if err := vc.Speaking(true); err != nil {
		slog.Debug("voice speaking flag", "room", room, "error", err)
	}
	defer vc.Speaking(false)

	maxFrames := MaxFrames(opts.MaxDuration)
	frames := 0
	sendTimer := time.NewTimer(s.cfg.SendTimeout)
	defer sendTimer.Stop()

	for {
		payload, _, perr := ogg.ParseNextPage()
		if errors.Is(perr, io.EOF) || errors.Is(perr, io.ErrUnexpectedEOF) {
			break
		}
		if perr != nil {
			if ctx.Err() != nil {
				return ErrAborted
			}
			return fmt.Errorf("parse opus page: %w", perr)
		}
		if len(payload) == 0 || bytes.HasPrefix(payload, []byte("OpusTags")) {
			continue
		}
		if maxFrames > 0 && frames >= maxFrames {
			slog.Info("playback truncated", "room", room, "max_duration", opts.MaxDuration)
			break
		}

		if !sendTimer.Stop() {
			select {
			case <-sendTimer.C:
			default:
			}
		}
		sendTimer.Reset(s.cfg.SendTimeout)

		select {
		case vc.OpusSend <- payload:
			frames++
			opts.progress()
		case <-ctx.Done():
			return ErrAborted
		case <-sendTimer.C:
			return fmt.Errorf("%w: opus send timed out", ErrSinkUnavailable)
		}
	}

	span.SetAttributes(attribute.Int("frames", frames))
	if ctx.Err() != nil {
		return ErrAborted
	}
	return nil
}

func (s *DiscordSink) ffmpegArgs(volume float64) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-i", "pipe:0"}
	if volume > 0 && volume != 1 {
		args = append(args, "-filter:a", "volume="+strconv.FormatFloat(volume, 'f', 2, 64))
	}
	return append(args,
		"-ac", "2", "-ar", "48000",
		"-c:a", "libopus", "-b:a", s.cfg.Bitrate,
		"-frame_duration", "20", "-page_duration", "20000",
		"-f", "ogg", "pipe:1",
	)
}
