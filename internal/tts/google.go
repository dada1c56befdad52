package tts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Google Translate TTS defaults.
const (
	DefaultGoogleURL = "https://translate.google.com/translate_tts"
	googleMaxChars   = 200
)

// GoogleProvider implements TTS via the Google Translate speech endpoint.
// Voice ids are "google_translate" (English) or "google_<lang>".
type GoogleProvider struct {
	url        string
	lang       string
	userAgent  string
	httpClient *http.Client
}

// GoogleConfig configures the Google provider.
type GoogleConfig struct {
	URL        string
	Lang       string // default "en"
	UserAgent  string
	HTTPClient *http.Client
}

// NewGoogleProvider creates a Google Translate TTS provider.
func NewGoogleProvider(cfg GoogleConfig) *GoogleProvider {
	p := &GoogleProvider{
		url:        cfg.URL,
		lang:       cfg.Lang,
		userAgent:  cfg.UserAgent,
		httpClient: cfg.HTTPClient,
	}
	if p.url == "" {
		p.url = DefaultGoogleURL
	}
	if p.lang == "" {
		p.lang = "en"
	}
	if p.userAgent == "" {
		p.userAgent = defaultUserAgent
	}
	if p.httpClient == nil {
		p.httpClient = &http.Client{}
	}
	return p
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) MaxInputChars() int { return googleMaxChars }

func (p *GoogleProvider) SupportsVoice(voice string) bool { return IsGoogleVoice(voice) }

// Synthesize fetches MP3 audio and streams the response body.
func (p *GoogleProvider) Synthesize(ctx context.Context, text string, opts Options) (*SynthResult, error) {
	lang := p.lang
	if opts.Voice != "" && opts.Voice != GoogleVoice {
		if l := strings.TrimPrefix(opts.Voice, "google_"); l != opts.Voice && l != "" {
			lang = l
		}
	}

	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("q", text)
	q.Set("tl", lang)
	q.Set("client", "tw-ob")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create google tts request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google tts request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, readSnippet))
		resp.Body.Close()
		return nil, &StatusError{Provider: p.Name(), Code: resp.StatusCode, Body: string(snippet)}
	}

	return &SynthResult{
		Audio:     resp.Body,
		Extension: "mp3",
		MimeType:  "audio/mpeg",
	}, nil
}
