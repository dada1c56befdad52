package tts

import (
	"sync"
	"time"
)

// Voice health defaults.
const (
	DefaultVoiceFailureThreshold = 3
	DefaultVoiceCooldown         = 5 * time.Minute
)

type voiceStatus struct {
	failures      int
	cooldownUntil time.Time
}

// VoiceHealth tracks failures per voice id. A voice that fails Threshold
// times is benched for the cooldown; successes pay the count back down.
type VoiceHealth struct {
	mu        sync.Mutex
	voices    map[string]*voiceStatus
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

// NewVoiceHealth creates a tracker; zero values use the defaults.
func NewVoiceHealth(threshold int, cooldown time.Duration) *VoiceHealth {
	if threshold <= 0 {
		threshold = DefaultVoiceFailureThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultVoiceCooldown
	}
	return &VoiceHealth{
		voices:    make(map[string]*voiceStatus),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// MarkFailed records a failure for voice.
func (h *VoiceHealth) MarkFailed(voice string) {
	if voice == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	st := h.voices[voice]
	if st == nil {
		st = &voiceStatus{}
		h.voices[voice] = st
	}
	st.failures++
	if st.failures >= h.threshold {
		st.cooldownUntil = h.now().Add(h.cooldown)
	}
}

// MarkSuccess pays one failure back.
func (h *VoiceHealth) MarkSuccess(voice string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := h.voices[voice]
	if st == nil {
		return
	}
	if st.failures > 0 {
		st.failures--
	}
	if st.failures == 0 {
		delete(h.voices, voice)
	}
}

// Available reports whether voice may be used. A benched voice becomes
// available again, with a clean slate, once its cooldown has passed.
func (h *VoiceHealth) Available(voice string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := h.voices[voice]
	if st == nil {
		return true
	}
	if !st.cooldownUntil.IsZero() && !h.now().Before(st.cooldownUntil) {
		delete(h.voices, voice)
		return true
	}
	return st.failures < h.threshold
}
