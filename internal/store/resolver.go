package store

import (
	"context"
	"errors"
	"fmt"
)

// Resolver answers "which voice, which name, which settings" for a member
// in a guild, falling back to defaults when nothing is stored.
type Resolver struct {
	store     PreferenceStore
	fallback  string
	allVoices []string
}

// NewResolver creates a resolver. fallback is the voice used when neither
// the member nor the guild chose one; allVoices seeds default allow-lists.
func NewResolver(s PreferenceStore, fallback string, allVoices []string) *Resolver {
	return &Resolver{store: s, fallback: fallback, allVoices: allVoices}
}

// Store returns the underlying store.
func (r *Resolver) Store() PreferenceStore { return r.store }

// Guild returns the guild's settings, or defaults when none are stored.
func (r *Resolver) Guild(ctx context.Context, guildID string) (*GuildSettings, error) {
	g, err := r.store.GetGuild(ctx, guildID)
	if errors.Is(err, ErrNotFound) {
		return DefaultGuildSettings(guildID, r.fallback, r.allVoices), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load guild %s: %w", guildID, err)
	}
	return g, nil
}

// User returns the member's preferences, or empty ones when none are stored.
func (r *Resolver) User(ctx context.Context, userID string) (*UserPrefs, error) {
	u, err := r.store.GetUser(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return &UserPrefs{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	return u, nil
}

// ResolveVoice picks the voice for userID in guildID: the member's own
// voice, else the guild default, constrained by the guild allow-list.
// On a lookup error the global fallback voice is returned with the error.
func (r *Resolver) ResolveVoice(ctx context.Context, guildID, userID string) (string, error) {
	g, err := r.Guild(ctx, guildID)
	if err != nil {
		return r.fallback, err
	}
	u, err := r.User(ctx, userID)
	if err != nil {
		return EffectiveVoice(g, ""), err
	}
	return EffectiveVoice(g, u.VoiceID), nil
}

// EffectiveVoice applies guild rules to a requested voice. An empty request
// means the guild default. A voice outside a restricted allow-list is
// replaced by the guild default, then the guild fallback, when those are
// allowed.
func EffectiveVoice(g *GuildSettings, requested string) string {
	voice := requested
	if voice == "" {
		voice = g.DefaultVoice
	}
	if voice == "" {
		voice = g.FallbackVoice
	}
	if g.VoiceAllowed(voice) {
		return voice
	}
	if g.DefaultVoice != "" && g.VoiceAllowed(g.DefaultVoice) {
		return g.DefaultVoice
	}
	if g.FallbackVoice != "" && g.VoiceAllowed(g.FallbackVoice) {
		return g.FallbackVoice
	}
	return voice
}

// UserDefaultVoice is the voice a member gets when they pick none. The
// guild's default voice belongs to the bot, so members get the fallback
// voice, or the first catalog voice that differs from the bot's.
func UserDefaultVoice(g *GuildSettings, catalog []string) string {
	bot := g.DefaultVoice
	if g.FallbackVoice != "" && g.FallbackVoice != bot {
		return g.FallbackVoice
	}
	for _, v := range catalog {
		if v != bot {
			return v
		}
	}
	return bot
}

// MemberVoice applies guild rules to a member's requested voice. Unlike
// EffectiveVoice it never hands out the bot's voice while another allowed
// voice exists.
func MemberVoice(g *GuildSettings, requested string, catalog []string) string {
	bot := g.DefaultVoice
	userDefault := UserDefaultVoice(g, catalog)

	voice := requested
	if voice == "" || voice == bot {
		voice = userDefault
	}
	if g.VoiceAllowed(voice) {
		return voice
	}
	if g.VoiceAllowed(userDefault) {
		return userDefault
	}
	for _, v := range g.AllowedVoiceIDs {
		if v != bot {
			return v
		}
	}
	if bot != "" && g.VoiceAllowed(bot) {
		return bot
	}
	return voice
}

// MemberVoice resolves the voice for a member's own speech in guildID.
func (r *Resolver) MemberVoice(ctx context.Context, guildID, userID string) (string, error) {
	g, err := r.Guild(ctx, guildID)
	if err != nil {
		return r.fallback, err
	}
	u, err := r.User(ctx, userID)
	if err != nil {
		return MemberVoice(g, "", r.allVoices), err
	}
	return MemberVoice(g, u.VoiceID, r.allVoices), nil
}

// Catalog returns the voice ids default allow-lists are seeded with.
func (r *Resolver) Catalog() []string { return r.allVoices }
