// Package tts turns text into audio streams. Providers are pluggable; the
// Client chains a primary and a fallback provider with per-attempt timeouts,
// retry with backoff, circuit breakers and per-voice health tracking.
package tts

import (
	"context"
	"io"
)

// Provider synthesizes text into an audio stream.
type Provider interface {
	Name() string
	// MaxInputChars is the longest text (in runes) the provider accepts.
	MaxInputChars() int
	Synthesize(ctx context.Context, text string, opts Options) (*SynthResult, error)
}

// VoiceSupporter is implemented by providers that can tell whether a voice
// id belongs to them. A provider that does not support the requested voice
// is called with its own default voice.
type VoiceSupporter interface {
	SupportsVoice(voice string) bool
}

// Options controls synthesis parameters.
type Options struct {
	Voice  string // provider-specific voice ID
	Model  string // provider-specific model ID
	Format string // output format: "mp3", "opus" (default depends on provider)
}

// SynthResult is the output of a provider call. Audio is read incrementally
// and must be closed by the caller.
type SynthResult struct {
	Audio     io.ReadCloser
	Extension string // file extension without dot: "mp3", "opus", "ogg"
	MimeType  string // e.g. "audio/mpeg", "audio/ogg"
}
