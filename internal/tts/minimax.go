package tts

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// MiniMaxProvider implements TTS via the MiniMax T2A API.
// The API answers with hex-encoded audio in one JSON body, so the audio is
// decoded in memory before it is handed on as a stream.
type MiniMaxProvider struct {
	apiKey     string
	groupID    string // MiniMax GroupId (required)
	apiBase    string // default "https://api.minimax.io/v1"
	model      string // default "speech-02-hd"
	voiceID    string // default "Wise_Woman"
	voices     map[string]bool
	httpClient *http.Client
}

// MiniMaxConfig configures the MiniMax TTS provider.
type MiniMaxConfig struct {
	APIKey     string
	GroupID    string
	APIBase    string
	Model      string
	VoiceID    string
	Voices     []string // extra voice ids users may pick
	HTTPClient *http.Client
}

// NewMiniMaxProvider creates a MiniMax TTS provider.
func NewMiniMaxProvider(cfg MiniMaxConfig) *MiniMaxProvider {
	p := &MiniMaxProvider{
		apiKey:     cfg.APIKey,
		groupID:    cfg.GroupID,
		apiBase:    cfg.APIBase,
		model:      cfg.Model,
		voiceID:    cfg.VoiceID,
		voices:     make(map[string]bool, len(cfg.Voices)),
		httpClient: cfg.HTTPClient,
	}
	for _, v := range cfg.Voices {
		p.voices[v] = true
	}
	if p.apiBase == "" {
		p.apiBase = "https://api.minimax.io/v1"
	}
	if p.model == "" {
		p.model = "speech-02-hd"
	}
	if p.voiceID == "" {
		p.voiceID = "Wise_Woman"
	}
	if p.httpClient == nil {
		p.httpClient = &http.Client{}
	}
	p.voices[p.voiceID] = true
	return p
}

func (p *MiniMaxProvider) Name() string { return "minimax" }

func (p *MiniMaxProvider) MaxInputChars() int { return 5000 }

func (p *MiniMaxProvider) SupportsVoice(voice string) bool { return p.voices[voice] }

// Synthesize calls the MiniMax T2A v2 endpoint (non-streaming).
// Response audio is returned as hex-encoded bytes in response.data.audio.
func (p *MiniMaxProvider) Synthesize(ctx context.Context, text string, opts Options) (*SynthResult, error) {
	voiceID := opts.Voice
	if voiceID == "" {
		voiceID = p.voiceID
	}
	model := opts.Model
	if model == "" {
		model = p.model
	}

	// Determine output format
	audioFormat := "mp3"
	ext := "mp3"
	mime := "audio/mpeg"
	if opts.Format == "opus" || opts.Format == "pcm" || opts.Format == "flac" || opts.Format == "wav" {
		audioFormat = opts.Format
		switch opts.Format {
		case "pcm":
			ext = "pcm"
			mime = "audio/pcm"
		case "flac":
			ext = "flac"
			mime = "audio/flac"
		case "wav":
			ext = "wav"
			mime = "audio/wav"
		}
	}

	body := map[string]interface{}{
		"text":   text,
		"model":  model,
		"stream": false,
		"voice_setting": map[string]interface{}{
			"voice_id": voiceID,
			"speed":    1.0,
			"pitch":    0,
		},
		"audio_setting": map[string]interface{}{
			"format": audioFormat,
		},
	}

	bodyJSON, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal minimax tts request: %w", err)
	}

	url := fmt.Sprintf("%s/t2a_v2?GroupId=%s", p.apiBase, p.groupID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyJSON))
	if err != nil {
		return nil, fmt.Errorf("create minimax tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("minimax tts request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read minimax tts response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Provider: p.Name(), Code: resp.StatusCode, Body: string(respBody)}
	}

	// Parse response: { base_resp: {status_code}, data: {audio: "hex..."} }
	var apiResp miniMaxResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("parse minimax tts response: %w", err)
	}

	if apiResp.BaseResp.StatusCode == minimaxRateLimited {
		return nil, &StatusError{Provider: p.Name(), Code: http.StatusTooManyRequests, Body: apiResp.BaseResp.StatusMsg}
	}
	if apiResp.BaseResp.StatusCode != 0 {
		return nil, fmt.Errorf("minimax tts api error %d: %s", apiResp.BaseResp.StatusCode, apiResp.BaseResp.StatusMsg)
	}

	if apiResp.Data.Audio == "" {
		return nil, ErrEmptyAudio
	}

	// Decode hex-encoded audio
	audio, err := hex.DecodeString(apiResp.Data.Audio)
	if err != nil {
		return nil, fmt.Errorf("decode minimax tts audio hex: %w", err)
	}

	return &SynthResult{
		Audio:     io.NopCloser(bytes.NewReader(audio)),
		Extension: ext,
		MimeType:  mime,
	}, nil
}

// minimaxRateLimited is the base_resp status code for "rate limit triggered".
const minimaxRateLimited = 1002

type miniMaxResponse struct {
	BaseResp struct {
		StatusCode int    `json:"status_code"`
		StatusMsg  string `json:"status_msg"`
	} `json:"base_resp"`
	Data struct {
		Audio string `json:"audio"` // hex-encoded audio bytes
	} `json:"data"`
}
