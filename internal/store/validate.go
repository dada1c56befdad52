package store

import (
	"fmt"
	"strconv"
	"strings"
)

// Validation bounds for guild settings.
const (
	MaxUserIDLength    = 255
	MinTTSChars        = 1
	MaxTTSCharsLimit   = 2000
	MaxAllowedVoices   = 500
	MaxAllowedChannels = 200
	DefaultMaxTTSChars = 300
)

// ValidationError reports an invalid settings value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// ValidateUserID checks that a user identifier does not exceed MaxUserIDLength.
func ValidateUserID(id string) error {
	if id == "" {
		return &ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	if len(id) > MaxUserIDLength {
		return fmt.Errorf("user identifier too long: %d chars (max %d)", len(id), MaxUserIDLength)
	}
	return nil
}

// DefaultGuildSettings returns the settings of a guild that never saved any.
// allVoices pre-populates the allow-list so restricting voices starts from
// the full catalog.
func DefaultGuildSettings(guildID, fallbackVoice string, allVoices []string) *GuildSettings {
	return &GuildSettings{
		GuildID:          guildID,
		MaxTTSChars:      DefaultMaxTTSChars,
		FallbackVoice:    fallbackVoice,
		DefaultVoice:     fallbackVoice,
		AutoReadMessages: true,
		LeaveWhenAlone:   true,
		AllowedVoiceIDs:  append([]string(nil), allVoices...),
		TextChannelIDs:   []string{},
	}
}

// Normalize cleans g in place and validates it: voice ids are trimmed and
// de-duplicated, channel ids must be positive integers, and with restricted
// voices both the fallback and default voice must be allowed.
func (g *GuildSettings) Normalize() error {
	if g.MaxTTSChars < MinTTSChars || g.MaxTTSChars > MaxTTSCharsLimit {
		return &ValidationError{Field: "max_tts_chars", Reason: fmt.Sprintf("must be between %d and %d", MinTTSChars, MaxTTSCharsLimit)}
	}

	g.FallbackVoice = strings.TrimSpace(g.FallbackVoice)
	if g.FallbackVoice == "" {
		return &ValidationError{Field: "fallback_voice", Reason: "must be a non-empty string"}
	}
	g.DefaultVoice = strings.TrimSpace(g.DefaultVoice)
	if g.DefaultVoice == "" {
		g.DefaultVoice = g.FallbackVoice
	}

	seen := make(map[string]bool, len(g.AllowedVoiceIDs))
	voices := make([]string, 0, len(g.AllowedVoiceIDs))
	for _, v := range g.AllowedVoiceIDs {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		voices = append(voices, v)
		if len(voices) > MaxAllowedVoices {
			return &ValidationError{Field: "allowed_voice_ids", Reason: fmt.Sprintf("is too large (max %d)", MaxAllowedVoices)}
		}
	}
	g.AllowedVoiceIDs = voices

	seenCh := make(map[string]bool, len(g.TextChannelIDs))
	channels := make([]string, 0, len(g.TextChannelIDs))
	for _, c := range g.TextChannelIDs {
		c = strings.TrimSpace(c)
		id, err := strconv.ParseUint(c, 10, 64)
		if err != nil || id == 0 || seenCh[c] {
			continue
		}
		seenCh[c] = true
		channels = append(channels, c)
		if len(channels) > MaxAllowedChannels {
			return &ValidationError{Field: "allowlist_text_channel_ids", Reason: fmt.Sprintf("is too large (max %d)", MaxAllowedChannels)}
		}
	}
	g.TextChannelIDs = channels

	if g.RestrictVoices {
		if len(voices) == 0 {
			return &ValidationError{Field: "allowed_voice_ids", Reason: "must contain at least one voice when restrict_voices is enabled"}
		}
		if !seen[g.FallbackVoice] {
			return &ValidationError{Field: "fallback_voice", Reason: "must be included in allowed_voice_ids when restrict_voices is enabled"}
		}
		if !seen[g.DefaultVoice] {
			return &ValidationError{Field: "default_voice_id", Reason: "must be included in allowed_voice_ids when restrict_voices is enabled"}
		}
	}
	return nil
}

// GuildPatch is a partial update of guild settings. Nil fields are left
// unchanged.
type GuildPatch struct {
	MaxTTSChars      *int      `json:"max_tts_chars,omitempty"`
	FallbackVoice    *string   `json:"fallback_voice,omitempty"`
	DefaultVoice     *string   `json:"default_voice_id,omitempty"`
	AutoReadMessages *bool     `json:"auto_read_messages,omitempty"`
	LeaveWhenAlone   *bool     `json:"leave_when_alone,omitempty"`
	GreetOnJoin      *bool     `json:"greet_on_join,omitempty"`
	FarewellOnLeave  *bool     `json:"farewell_on_leave,omitempty"`
	RestrictVoices   *bool     `json:"restrict_voices,omitempty"`
	AllowedVoiceIDs  *[]string `json:"allowed_voice_ids,omitempty"`
	TextChannelIDs   *[]string `json:"allowlist_text_channel_ids,omitempty"`
}

// Apply returns a copy of g with the patch applied and normalized.
func (p GuildPatch) Apply(g *GuildSettings) (*GuildSettings, error) {
	out := *g
	out.AllowedVoiceIDs = append([]string(nil), g.AllowedVoiceIDs...)
	out.TextChannelIDs = append([]string(nil), g.TextChannelIDs...)

	if p.MaxTTSChars != nil {
		out.MaxTTSChars = *p.MaxTTSChars
	}
	if p.FallbackVoice != nil {
		out.FallbackVoice = *p.FallbackVoice
	}
	if p.DefaultVoice != nil {
		out.DefaultVoice = *p.DefaultVoice
	}
	if p.AutoReadMessages != nil {
		out.AutoReadMessages = *p.AutoReadMessages
	}
	if p.LeaveWhenAlone != nil {
		out.LeaveWhenAlone = *p.LeaveWhenAlone
	}
	if p.GreetOnJoin != nil {
		out.GreetOnJoin = *p.GreetOnJoin
	}
	if p.FarewellOnLeave != nil {
		out.FarewellOnLeave = *p.FarewellOnLeave
	}
	if p.RestrictVoices != nil {
		out.RestrictVoices = *p.RestrictVoices
	}
	if p.AllowedVoiceIDs != nil {
		out.AllowedVoiceIDs = append([]string(nil), (*p.AllowedVoiceIDs)...)
	}
	if p.TextChannelIDs != nil {
		out.TextChannelIDs = append([]string(nil), (*p.TextChannelIDs)...)
	}
	if err := out.Normalize(); err != nil {
		return nil, err
	}
	return &out, nil
}
