package config

import (
	"fmt"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/voxroom/internal/bus"
	"github.com/nextlevelbuilder/voxroom/internal/playback"
	"github.com/nextlevelbuilder/voxroom/internal/room"
	"github.com/nextlevelbuilder/voxroom/internal/scheduler"
	"github.com/nextlevelbuilder/voxroom/internal/speech"
	"github.com/nextlevelbuilder/voxroom/internal/telemetry"
	"github.com/nextlevelbuilder/voxroom/internal/tracing/otelexport"
	"github.com/nextlevelbuilder/voxroom/internal/tts"
)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// Limits returns the normalizer limits.
func (p PipelineConfig) Limits() speech.Limits {
	return speech.Limits{
		MaxMessageChars:   p.MaxMessageChars,
		MaxUtteranceChars: p.MaxUtteranceChars,
		RejectChars:       p.RejectChars,
	}
}

// Cooldown returns the per-source cooldown.
func (p PipelineConfig) Cooldown() time.Duration { return ms(p.CooldownMS) }

// PipelineOptions returns the admission settings of room.Pipeline.
func (p PipelineConfig) PipelineOptions() room.PipelineConfig {
	return room.PipelineConfig{Limits: p.Limits(), Cooldown: p.Cooldown()}
}

// SessionOptions returns the settings a new room session is built with.
func (p PipelineConfig) SessionOptions(channel string) room.SessionOptions {
	return room.SessionOptions{
		Channel: channel,
		Queue: scheduler.QueueConfig{
			Cap:  p.QueueCap,
			Drop: scheduler.DropPolicy(p.QueueDrop),
		},
		Coalesce: bus.CoalesceConfig{
			Window:   ms(p.CoalesceWindowMS),
			MaxHold:  ms(p.CoalesceMaxHoldMS),
			Mode:     bus.CoalesceMode(p.CoalesceMode),
			MaxChars: p.MaxUtteranceChars,
		},
		Worker: room.WorkerConfig{
			StuckTimeout:     ms(p.StuckTimeoutMS),
			StuckGrace:       ms(p.StuckGraceMS),
			MaxAudioDuration: ms(p.MaxAudioMS),
			SkipSummary:      p.SkipSummary,
		},
	}
}

// ClientConfig returns the synthesis client settings. onAttempt may be nil.
func (t TTSConfig) ClientConfig(onAttempt func(provider, outcome string, elapsed time.Duration)) tts.ClientConfig {
	breakers := make(map[string]tts.BreakerConfig, len(t.Breakers))
	for name, b := range t.Breakers {
		breakers[name] = tts.BreakerConfig{Threshold: b.Threshold, Cooldown: ms(b.CooldownMS)}
	}
	return tts.ClientConfig{
		MaxRetries:            t.MaxRetries,
		MaxAttempts:           t.MaxAttempts,
		CallTimeout:           ms(t.CallTimeoutMS),
		BaseBackoff:           ms(t.BaseBackoffMS),
		MaxBackoff:            ms(t.MaxBackoffMS),
		Breakers:              breakers,
		FallbackVoice:         t.FallbackVoice,
		VoiceFailureThreshold: t.VoiceFailureThreshold,
		VoiceCooldown:         ms(t.VoiceCooldownMS),
		OnAttempt:             onAttempt,
	}
}

// BuildProviders constructs the provider chain in configured order.
func (t TTSConfig) BuildProviders(client *http.Client) ([]tts.Provider, error) {
	out := make([]tts.Provider, 0, len(t.Providers))
	for _, name := range t.Providers {
		switch name {
		case "tiktok":
			out = append(out, tts.NewTikTokProvider(tts.TikTokConfig{URL: t.TikTok.URL, Voice: t.TikTok.Voice, HTTPClient: client}))
		case "google":
			out = append(out, tts.NewGoogleProvider(tts.GoogleConfig{URL: t.Google.URL, Lang: t.Google.Lang, HTTPClient: client}))
		case "openai":
			out = append(out, tts.NewOpenAIProvider(tts.OpenAIConfig{
				APIKey: t.OpenAI.APIKey, APIBase: t.OpenAI.APIBase,
				Model: t.OpenAI.Model, Voice: t.OpenAI.Voice, HTTPClient: client,
			}))
		case "elevenlabs":
			out = append(out, tts.NewElevenLabsProvider(tts.ElevenLabsConfig{
				APIKey: t.ElevenLabs.APIKey, BaseURL: t.ElevenLabs.BaseURL,
				VoiceID: t.ElevenLabs.VoiceID, ModelID: t.ElevenLabs.ModelID, HTTPClient: client,
			}))
		case "edge":
			out = append(out, tts.NewEdgeProvider(tts.EdgeConfig{Binary: t.Edge.Binary, Voice: t.Edge.Voice, Rate: t.Edge.Rate}))
		case "minimax":
			out = append(out, tts.NewMiniMaxProvider(tts.MiniMaxConfig{
				APIKey: t.MiniMax.APIKey, GroupID: t.MiniMax.GroupID, APIBase: t.MiniMax.APIBase,
				Model: t.MiniMax.Model, VoiceID: t.MiniMax.VoiceID, HTTPClient: client,
			}))
		default:
			return nil, fmt.Errorf("unknown tts provider %q", name)
		}
	}
	return out, nil
}

// SinkConfig returns the Discord sink settings.
func (p PlaybackConfig) SinkConfig() playback.DiscordSinkConfig {
	return playback.DiscordSinkConfig{
		FFmpegPath:  p.FFmpegPath,
		Bitrate:     p.Bitrate,
		SendTimeout: ms(p.SendTimeoutMS),
	}
}

// Setup returns the telemetry settings.
func (t TelemetryConfig) Setup(version string) telemetry.Config {
	return telemetry.Config{
		ServiceName: "voxroom",
		Version:     version,
		OTLP: otelexport.Config{
			Endpoint: t.OTLPEndpoint,
			Protocol: t.OTLPProtocol,
			Insecure: t.OTLPInsecure,
			Headers:  t.OTLPHeaders,
		},
		Metrics: t.Metrics,
	}
}
