package tts

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// TikTok defaults.
const (
	DefaultTikTokURL   = "https://tiktok-tts.weilnet.workers.dev/api/generation"
	tiktokMaxChars     = 300
	tiktokPrefixLimit  = 64 * 1024
	defaultUserAgent   = "Mozilla/5.0"
	tiktokDataFieldKey = `"data"`
)

var (
	errTikTokNullAudio = errors.New("tiktok returned null audio data")
	errTikTokNoData    = errors.New("tiktok response has no data field")
)

// TikTokProvider implements TTS via the public TikTok voice proxy. The
// response is JSON with base64 audio in "data"; it is decoded as it streams
// in instead of being buffered.
type TikTokProvider struct {
	url        string
	voice      string
	userAgent  string
	httpClient *http.Client
}

// TikTokConfig configures the TikTok provider.
type TikTokConfig struct {
	URL        string
	Voice      string
	UserAgent  string
	HTTPClient *http.Client
}

// NewTikTokProvider creates a TikTok TTS provider.
func NewTikTokProvider(cfg TikTokConfig) *TikTokProvider {
	p := &TikTokProvider{
		url:        cfg.URL,
		voice:      cfg.Voice,
		userAgent:  cfg.UserAgent,
		httpClient: cfg.HTTPClient,
	}
	if p.url == "" {
		p.url = DefaultTikTokURL
	}
	if p.voice == "" {
		p.voice = FallbackVoice
	}
	if p.userAgent == "" {
		p.userAgent = defaultUserAgent
	}
	if p.httpClient == nil {
		p.httpClient = &http.Client{}
	}
	return p
}

func (p *TikTokProvider) Name() string { return "tiktok" }

func (p *TikTokProvider) MaxInputChars() int { return tiktokMaxChars }

// SupportsVoice accepts every non-Google voice id.
func (p *TikTokProvider) SupportsVoice(voice string) bool {
	return voice != "" && !IsGoogleVoice(voice)
}

// Synthesize posts {text, voice} and returns the decoded MP3 stream.
func (p *TikTokProvider) Synthesize(ctx context.Context, text string, opts Options) (*SynthResult, error) {
	voice := opts.Voice
	if voice == "" {
		voice = p.voice
	}

	bodyJSON, err := json.Marshal(map[string]string{"text": text, "voice": voice})
	if err != nil {
		return nil, fmt.Errorf("marshal tiktok tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(bodyJSON))
	if err != nil {
		return nil, fmt.Errorf("create tiktok tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tiktok tts request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, readSnippet))
		resp.Body.Close()
		return nil, &StatusError{Provider: p.Name(), Code: resp.StatusCode, Body: string(snippet)}
	}

	br := bufio.NewReader(resp.Body)
	if err := seekDataField(br, tiktokPrefixLimit); err != nil {
		resp.Body.Close()
		return nil, err
	}

	decoder := base64.NewDecoder(base64.StdEncoding, &quotedReader{r: br})
	return &SynthResult{
		Audio:     &readCloser{Reader: decoder, Closer: resp.Body},
		Extension: "mp3",
		MimeType:  "audio/mpeg",
	}, nil
}

// seekDataField advances br to just past the opening quote of the "data"
// string value. The field is expected near the start of the body; a body
// without it is parsed as a JSON error message.
func seekDataField(br *bufio.Reader, limit int) error {
	var prefix []byte
	key := []byte(tiktokDataFieldKey)

	for len(prefix) < limit {
		b, err := br.ReadByte()
		if err != nil {
			if err == io.EOF {
				return tiktokBodyError(prefix)
			}
			return fmt.Errorf("read tiktok response: %w", err)
		}
		prefix = append(prefix, b)
		if !bytes.HasSuffix(prefix, key) {
			continue
		}

		next, err := skipSpace(br)
		if err != nil {
			return tiktokBodyError(prefix)
		}
		if next != ':' {
			prefix = append(prefix, next)
			continue
		}
		next, err = skipSpace(br)
		if err != nil {
			return tiktokBodyError(prefix)
		}
		switch next {
		case '"':
			return nil
		case 'n':
			return errTikTokNullAudio
		default:
			prefix = append(prefix, ':', next)
		}
	}
	return fmt.Errorf("%w within %d bytes", errTikTokNoData, limit)
}

func skipSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, nil
	}
}

func tiktokBodyError(body []byte) error {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if msg := strings.TrimSpace(payload.Error + " " + payload.Message); msg != "" {
			return fmt.Errorf("tiktok tts error: %s", msg)
		}
	}
	return errTikTokNoData
}

// quotedReader yields bytes up to (not including) the closing quote of a
// JSON string and then reports EOF.
type quotedReader struct {
	r    *bufio.Reader
	done bool
}

func (q *quotedReader) Read(p []byte) (int, error) {
	if q.done {
		return 0, io.EOF
	}
	n := 0
	for n < len(p) {
		b, err := q.r.ReadByte()
		if err != nil {
			if n > 0 {
				return n, nil
			}
			if err == io.EOF {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, err
		}
		if b == '"' {
			q.done = true
			break
		}
		if b == '\\' {
			// base64 never needs escapes except an escaped slash.
			continue
		}
		p[n] = b
		n++
		if q.r.Buffered() == 0 && n > 0 {
			break
		}
	}
	if n == 0 && q.done {
		return 0, io.EOF
	}
	return n, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}
