package tts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoProviders is returned by NewClient when no provider is configured.
	ErrNoProviders = errors.New("no synthesis provider configured")

	// ErrExhausted wraps the last failure once every provider and retry is used up.
	ErrExhausted = errors.New("all synthesis attempts failed")

	// ErrCircuitOpen is the cause of a failure when a provider's breaker is open.
	ErrCircuitOpen = errors.New("provider circuit open")

	// ErrEmptyAudio is returned when a provider answers without audio.
	ErrEmptyAudio = errors.New("provider returned empty audio")
)

// FailureKind classifies a failed synthesis attempt.
type FailureKind string

const (
	FailureTimeout     FailureKind = "timeout"
	FailureProvider    FailureKind = "provider_error"
	FailureRateLimited FailureKind = "rate_limited"
)

// Failure is the typed error of a failed attempt.
type Failure struct {
	Kind     FailureKind
	Provider string
	Err      error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s: %v", f.Provider, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// StatusError is returned by HTTP providers on a non-200 response.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s tts error %d: %s", e.Provider, e.Code, e.Body)
}

// KindOf returns the failure kind of err, or "" when err is not a Failure.
func KindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

// classify turns a provider error into a Failure. timedOut reports whether
// the attempt's own deadline fired.
func classify(provider string, err error, timedOut bool) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	if timedOut || errors.Is(err, context.DeadlineExceeded) {
		return &Failure{Kind: FailureTimeout, Provider: provider, Err: err}
	}
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusTooManyRequests {
		return &Failure{Kind: FailureRateLimited, Provider: provider, Err: err}
	}
	return &Failure{Kind: FailureProvider, Provider: provider, Err: err}
}

// readSnippet is the amount of an error body kept for diagnostics.
const readSnippet = 512
