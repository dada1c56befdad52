package room

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/voxroom/internal/ratelimit"
	"github.com/nextlevelbuilder/voxroom/internal/speech"
)

// Candidate is raw text offered to a room before normalization.
type Candidate struct {
	SourceID    string
	DisplayName string
	RoomID      string
	Text        string
	Origin      speech.Origin
	Voice       string  // explicit voice, skips resolution when set
	Volume      float64 // 0 means unity gain
	Attribute   bool    // prefix the speaker's name when the speaker changes
}

// VoiceResolver picks the voice for a speaker in a room.
type VoiceResolver interface {
	ResolveVoice(ctx context.Context, roomID, sourceID string) (string, error)
}

// PipelineConfig configures admission into rooms.
type PipelineConfig struct {
	Limits   speech.Limits
	Cooldown time.Duration // per speaker per room, 0 disables
}

// Pipeline admits candidates into room sessions: normalize, resolve the
// voice, rate limit, then hand off to the room's coalescer.
type Pipeline struct {
	normalizer *speech.Normalizer
	cooldown   *ratelimit.Cooldown
	registry   *Registry
	voices     VoiceResolver
	now        func() time.Time
}

// NewPipeline creates a pipeline over registry. voices may be nil, in which
// case the synthesis client's fallback voice is used.
func NewPipeline(registry *Registry, voices VoiceResolver, cfg PipelineConfig) *Pipeline {
	p := &Pipeline{
		normalizer: speech.NewNormalizer(cfg.Limits),
		cooldown:   ratelimit.NewCooldown(cfg.Cooldown),
		registry:   registry,
		voices:     voices,
		now:        time.Now,
	}
	registry.OnRelease(p.cooldown.ForgetRoom)
	return p
}

// Registry returns the session registry.
func (p *Pipeline) Registry() *Registry { return p.registry }

// Submit admits c into its room. It returns the accepted utterance, or
// speech.ErrTooLong / speech.ErrEmpty for unusable text, ErrNoSession when
// the room has no session and ErrRateLimited when the speaker is cooling
// down. Rate-limited candidates are meant to be dropped silently.
// System-origin speech bypasses the cooldown.
func (p *Pipeline) Submit(ctx context.Context, c Candidate) (speech.Utterance, error) {
	text, err := p.normalizer.Normalize(c.Text)
	if err != nil {
		return speech.Utterance{}, err
	}

	s, ok := p.registry.Get(c.RoomID)
	if !ok {
		return speech.Utterance{}, ErrNoSession
	}

	voice := c.Voice
	if voice == "" && p.voices != nil {
		v, err := p.voices.ResolveVoice(ctx, c.RoomID, c.SourceID)
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("room: voice lookup failed, using fallback", "room", c.RoomID, "source", c.SourceID, "error", err)
		}
		voice = v
	}

	origin := c.Origin
	if origin == "" {
		origin = speech.OriginChat
	}
	u := speech.Utterance{
		ID:          uuid.NewString(),
		SourceID:    c.SourceID,
		DisplayName: c.DisplayName,
		RoomID:      c.RoomID,
		Text:        text,
		EnqueuedAt:  p.now(),
		Voice:       voice,
		Origin:      origin,
		Volume:      c.Volume,
		Parts:       1,
		Attribute:   c.Attribute,
	}
	// The cooldown is charged at the moment of acceptance and refunded if
	// the session went away before the push.
	charged := c.Origin != speech.OriginSystem
	if charged && !p.cooldown.Allow(c.RoomID, c.SourceID) {
		slog.Debug("room: rate limited", "room", c.RoomID, "source", c.SourceID)
		return speech.Utterance{}, ErrRateLimited
	}
	if !s.Push(u) {
		if charged {
			p.cooldown.Refund(c.RoomID, c.SourceID)
		}
		return speech.Utterance{}, ErrNoSession
	}
	return u, nil
}

// CurrentState returns the worker state of room.
func (p *Pipeline) CurrentState(room string) (State, bool) {
	s, ok := p.registry.Get(room)
	if !ok {
		return "", false
	}
	return s.State(), true
}
