package tts

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/voxroom/internal/speech"
)

// charsPerSecond is the speaking rate used for duration estimates.
const charsPerSecond = 14

var errAttemptTimeout = errors.New("synthesis attempt timed out")

// ClientConfig configures retry, fallback and health tracking.
type ClientConfig struct {
	MaxRetries  int           // retries of the same provider after the first attempt (default 2)
	MaxAttempts int           // total attempts across all providers (default (1+MaxRetries)*providers)
	CallTimeout time.Duration // bound on one attempt until audio starts flowing (default 15s)
	BaseBackoff time.Duration // default 500ms
	MaxBackoff  time.Duration // default 5s

	Breakers map[string]BreakerConfig // per provider name; missing names use the defaults

	FallbackVoice         string // replaces a benched voice (default FallbackVoice)
	VoiceFailureThreshold int
	VoiceCooldown         time.Duration

	// OnAttempt is called after every attempt with the provider, outcome
	// ("ok" or a FailureKind) and elapsed time.
	OnAttempt func(provider, outcome string, elapsed time.Duration)
}

// Result is a successful synthesis.
type Result struct {
	Audio             io.ReadCloser
	Provider          string
	Voice             string
	Extension         string
	MimeType          string
	EstimatedDuration time.Duration
	Attempts          int
}

// Client synthesizes through a chain of providers, primary first.
type Client struct {
	providers []Provider
	breakers  map[string]*Breaker
	voices    *VoiceHealth
	cfg       ClientConfig
	tracer    trace.Tracer
}

// NewClient creates a client over providers in fallback order. Nil providers
// are skipped; an empty chain returns ErrNoProviders.
func NewClient(cfg ClientConfig, providers ...Provider) (*Client, error) {
	chain := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p != nil {
			chain = append(chain, p)
		}
	}
	if len(chain) == 0 {
		return nil, ErrNoProviders
	}

	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = (1 + cfg.MaxRetries) * len(chain)
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 15 * time.Second
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	if cfg.FallbackVoice == "" {
		cfg.FallbackVoice = FallbackVoice
	}

	breakers := make(map[string]*Breaker, len(chain))
	for _, p := range chain {
		breakers[p.Name()] = NewBreaker(cfg.Breakers[p.Name()])
	}

	return &Client{
		providers: chain,
		breakers:  breakers,
		voices:    NewVoiceHealth(cfg.VoiceFailureThreshold, cfg.VoiceCooldown),
		cfg:       cfg,
		tracer:    otel.Tracer("voxroom/tts"),
	}, nil
}

// Providers returns the provider names in fallback order.
func (c *Client) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// Breaker returns the breaker of a provider, if any.
func (c *Client) Breaker(provider string) (*Breaker, bool) {
	b, ok := c.breakers[provider]
	return b, ok
}

// Synthesize converts text to an audio stream. Each provider is tried up to
// 1+MaxRetries times with backoff before moving to the next; a rate-limited
// provider is left at once. The whole call never exceeds MaxAttempts.
// Cancelling ctx aborts the call and returns ctx.Err().
func (c *Client) Synthesize(ctx context.Context, text, voice string) (*Result, error) {
	ctx, span := c.tracer.Start(ctx, "tts.synthesize",
		trace.WithAttributes(attribute.String("tts.voice", voice), attribute.Int("tts.chars", utf8.RuneCountInString(text))))
	defer span.End()

	requested := voice
	if requested == "" {
		requested = c.cfg.FallbackVoice
	}
	if !c.voices.Available(requested) {
		slog.Info("tts.voice_benched", "voice", requested, "replacement", c.cfg.FallbackVoice)
		requested = c.cfg.FallbackVoice
	}

	attempts := 0
	var lastErr error

providers:
	for i, p := range c.providers {
		name := p.Name()
		br := c.breakers[name]
		if !br.Allow() {
			lastErr = &Failure{Kind: FailureProvider, Provider: name, Err: ErrCircuitOpen}
			slog.Debug("tts provider skipped, circuit open", "provider", name)
			continue
		}
		if i > 0 {
			slog.Warn("tts.fallback", "provider", name, "previous_error", lastErr)
			span.AddEvent("fallback", trace.WithAttributes(attribute.String("tts.provider", name)))
		}

		providerVoice := voiceFor(p, requested)
		capped := speech.Truncate(text, p.MaxInputChars(), "")

		for try := 0; try <= c.cfg.MaxRetries; try++ {
			if attempts >= c.cfg.MaxAttempts {
				break providers
			}
			if try > 0 {
				if err := sleepCtx(ctx, backoffWithJitter(c.cfg.BaseBackoff, c.cfg.MaxBackoff, try-1)); err != nil {
					return nil, c.fail(span, err)
				}
			}
			attempts++

			start := time.Now()
			res, err := c.attempt(ctx, p, capped, providerVoice)
			elapsed := time.Since(start)
			if err == nil {
				br.OnSuccess()
				c.voices.MarkSuccess(providerVoice)
				c.observe(name, "ok", elapsed)
				span.SetAttributes(attribute.String("tts.provider", name), attribute.Int("tts.attempts", attempts))
				return &Result{
					Audio:             res.Audio,
					Provider:          name,
					Voice:             providerVoice,
					Extension:         res.Extension,
					MimeType:          res.MimeType,
					EstimatedDuration: EstimateDuration(capped),
					Attempts:          attempts,
				}, nil
			}
			if ctx.Err() != nil {
				return nil, c.fail(span, ctx.Err())
			}

			f := err.(*Failure)
			lastErr = f
			c.observe(name, string(f.Kind), elapsed)
			if f.Kind == FailureProvider {
				c.voices.MarkFailed(providerVoice)
			}
			if br.OnFailure() {
				slog.Warn("tts.circuit_open", "provider", name)
			}
			slog.Warn("tts attempt failed",
				"provider", name, "kind", f.Kind, "attempt", attempts, "error", f.Err)

			if f.Kind == FailureRateLimited || !br.Allow() {
				break
			}
		}
	}

	if lastErr == nil {
		lastErr = ErrNoProviders
	}
	return nil, c.fail(span, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, lastErr))
}

// attempt runs one provider call bounded by CallTimeout. The timeout covers
// the call up to the first audio byte; after that the stream lives on under
// ctx and is released by Close. The returned error is always a *Failure.
func (c *Client) attempt(ctx context.Context, p Provider, text, voice string) (*SynthResult, error) {
	attemptCtx, cancel := context.WithCancelCause(ctx)
	timer := time.AfterFunc(c.cfg.CallTimeout, func() { cancel(errAttemptTimeout) })

	res, err := p.Synthesize(attemptCtx, text, Options{Voice: voice})
	var br *bufio.Reader
	if err == nil {
		if res == nil || res.Audio == nil {
			err = ErrEmptyAudio
		} else {
			// Wait for audio to start so decode errors and empty bodies count
			// against this attempt rather than surfacing during playback.
			br = bufio.NewReaderSize(res.Audio, 32*1024)
			if _, perr := br.Peek(1); perr != nil {
				res.Audio.Close()
				if perr == io.EOF {
					perr = ErrEmptyAudio
				}
				err = perr
			}
		}
	}

	stopped := timer.Stop()
	timedOut := !stopped || errors.Is(context.Cause(attemptCtx), errAttemptTimeout)
	if err != nil {
		cancel(nil)
		return nil, classify(p.Name(), err, timedOut)
	}
	if timedOut {
		res.Audio.Close()
		cancel(nil)
		return nil, classify(p.Name(), errAttemptTimeout, true)
	}

	res.Audio = &streamCloser{Reader: br, closer: res.Audio, cancel: func() { cancel(nil) }}
	return res, nil
}

func (c *Client) observe(provider, outcome string, elapsed time.Duration) {
	if c.cfg.OnAttempt != nil {
		c.cfg.OnAttempt(provider, outcome, elapsed)
	}
}

func (c *Client) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// voiceFor picks the voice to send to p: the requested one when p supports
// it, otherwise p's own default.
func voiceFor(p Provider, voice string) string {
	if vs, ok := p.(VoiceSupporter); ok && !vs.SupportsVoice(voice) {
		return ""
	}
	return voice
}

// EstimateDuration approximates how long text takes to speak.
func EstimateDuration(text string) time.Duration {
	n := utf8.RuneCountInString(text)
	return time.Duration(n) * time.Second / charsPerSecond
}

// streamCloser releases the attempt context together with the body.
type streamCloser struct {
	io.Reader
	closer io.Closer
	cancel func()
}

func (s *streamCloser) Close() error {
	err := s.closer.Close()
	s.cancel()
	return err
}
