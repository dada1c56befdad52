package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

var openAIVoices = map[string]bool{
	"alloy": true, "ash": true, "ballad": true, "coral": true, "echo": true,
	"fable": true, "nova": true, "onyx": true, "sage": true, "shimmer": true, "verse": true,
}

// OpenAIProvider implements TTS via the OpenAI audio/speech API.
type OpenAIProvider struct {
	apiKey     string
	apiBase    string
	model      string // default "gpt-4o-mini-tts"
	voice      string // default "alloy"
	httpClient *http.Client
}

// OpenAIConfig configures the OpenAI TTS provider.
type OpenAIConfig struct {
	APIKey     string
	APIBase    string
	Model      string
	Voice      string
	HTTPClient *http.Client
}

// NewOpenAIProvider creates an OpenAI TTS provider.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	p := &OpenAIProvider{
		apiKey:     cfg.APIKey,
		apiBase:    cfg.APIBase,
		model:      cfg.Model,
		voice:      cfg.Voice,
		httpClient: cfg.HTTPClient,
	}
	if p.apiBase == "" {
		p.apiBase = "https://api.openai.com/v1"
	}
	if p.model == "" {
		p.model = "gpt-4o-mini-tts"
	}
	if p.voice == "" {
		p.voice = "alloy"
	}
	if p.httpClient == nil {
		p.httpClient = &http.Client{}
	}
	return p
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) MaxInputChars() int { return 4096 }

func (p *OpenAIProvider) SupportsVoice(voice string) bool { return openAIVoices[voice] }

// Synthesize calls POST {apiBase}/audio/speech and streams the body.
func (p *OpenAIProvider) Synthesize(ctx context.Context, text string, opts Options) (*SynthResult, error) {
	voice := opts.Voice
	if voice == "" {
		voice = p.voice
	}
	model := opts.Model
	if model == "" {
		model = p.model
	}
	format := opts.Format
	if format == "" {
		format = "mp3"
	}

	bodyJSON, err := json.Marshal(map[string]any{
		"model":           model,
		"input":           text,
		"voice":           voice,
		"response_format": format,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal openai tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/audio/speech", bytes.NewReader(bodyJSON))
	if err != nil {
		return nil, fmt.Errorf("create openai tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai tts request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, readSnippet))
		resp.Body.Close()
		return nil, &StatusError{Provider: p.Name(), Code: resp.StatusCode, Body: string(errBody)}
	}

	ext, mime := format, "audio/mpeg"
	if format == "opus" {
		ext, mime = "ogg", "audio/ogg"
	}
	return &SynthResult{Audio: resp.Body, Extension: ext, MimeType: mime}, nil
}
