package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
)

var elevenLabsVoiceRe = regexp.MustCompile(`^[A-Za-z0-9]{20}$`)

// ElevenLabsProvider implements TTS via the ElevenLabs streaming API.
type ElevenLabsProvider struct {
	apiKey     string
	baseURL    string
	voiceID    string // default "pMsXgVXv3BLzUgSXRplE"
	modelID    string // default "eleven_multilingual_v2"
	httpClient *http.Client
}

// ElevenLabsConfig configures the ElevenLabs TTS provider.
type ElevenLabsConfig struct {
	APIKey     string
	BaseURL    string
	VoiceID    string
	ModelID    string
	HTTPClient *http.Client
}

// NewElevenLabsProvider creates an ElevenLabs TTS provider.
func NewElevenLabsProvider(cfg ElevenLabsConfig) *ElevenLabsProvider {
	p := &ElevenLabsProvider{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		voiceID:    cfg.VoiceID,
		modelID:    cfg.ModelID,
		httpClient: cfg.HTTPClient,
	}
	if p.baseURL == "" {
		p.baseURL = "https://api.elevenlabs.io"
	}
	if p.voiceID == "" {
		p.voiceID = "pMsXgVXv3BLzUgSXRplE"
	}
	if p.modelID == "" {
		p.modelID = "eleven_multilingual_v2"
	}
	if p.httpClient == nil {
		p.httpClient = &http.Client{}
	}
	return p
}

func (p *ElevenLabsProvider) Name() string { return "elevenlabs" }

func (p *ElevenLabsProvider) MaxInputChars() int { return 5000 }

// SupportsVoice accepts ElevenLabs-shaped voice ids (20 alphanumerics).
func (p *ElevenLabsProvider) SupportsVoice(voice string) bool {
	return elevenLabsVoiceRe.MatchString(voice)
}

// Synthesize calls POST {baseUrl}/v1/text-to-speech/{voiceId}/stream.
func (p *ElevenLabsProvider) Synthesize(ctx context.Context, text string, opts Options) (*SynthResult, error) {
	voiceID := opts.Voice
	if voiceID == "" {
		voiceID = p.voiceID
	}
	modelID := opts.Model
	if modelID == "" {
		modelID = p.modelID
	}

	outputFormat, ext, mime := "mp3_44100_128", "mp3", "audio/mpeg"
	if opts.Format == "opus" {
		outputFormat, ext, mime = "opus_48000_64", "ogg", "audio/ogg"
	}

	bodyJSON, err := json.Marshal(map[string]any{
		"text":     text,
		"model_id": modelID,
		"voice_settings": map[string]any{
			"stability":         0.5,
			"similarity_boost":  0.75,
			"style":             0.0,
			"use_speaker_boost": true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal elevenlabs tts request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s/stream?output_format=%s", p.baseURL, voiceID, outputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyJSON))
	if err != nil {
		return nil, fmt.Errorf("create elevenlabs tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs tts request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, readSnippet))
		resp.Body.Close()
		return nil, &StatusError{Provider: p.Name(), Code: resp.StatusCode, Body: string(errBody)}
	}

	return &SynthResult{Audio: resp.Body, Extension: ext, MimeType: mime}, nil
}
