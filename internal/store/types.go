// Package store persists per-user and per-guild speech preferences.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// StoreConfig configures the store layer.
type StoreConfig struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty"`

	// SQLitePath is the database file for the sqlite driver.
	SQLitePath string `json:"sqlite_path,omitempty" yaml:"sqlite_path,omitempty"`

	// PostgresDSN is the connection string for the postgres driver.
	PostgresDSN string `json:"postgres_dsn,omitempty" yaml:"postgres_dsn,omitempty"`

	// CacheSize bounds the in-process read cache (entries). 0 disables it.
	CacheSize int `json:"cache_size,omitempty" yaml:"cache_size,omitempty"`
	// CacheTTL expires cached entries (default 5m).
	CacheTTL time.Duration `json:"-" yaml:"-"`

	// RedisURL, when set, shares cache invalidations between instances.
	RedisURL string `json:"redis_url,omitempty" yaml:"redis_url,omitempty"`
}

// UserPrefs are a member's own speech preferences.
type UserPrefs struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Nickname    string    `json:"nickname,omitempty"` // spoken instead of DisplayName when set
	VoiceID     string    `json:"voice_id,omitempty"`
	AutoJoin    bool      `json:"auto_join"` // follow the member into voice channels
	UpdatedAt   time.Time `json:"updated_at"`
}

// SpokenName returns the name announced for the member.
func (u *UserPrefs) SpokenName() string {
	if u.Nickname != "" {
		return u.Nickname
	}
	return u.DisplayName
}

// GuildSettings are per-guild speech settings.
type GuildSettings struct {
	GuildID          string    `json:"guild_id"`
	MaxTTSChars      int       `json:"max_tts_chars"`
	FallbackVoice    string    `json:"fallback_voice"`
	DefaultVoice     string    `json:"default_voice_id"`
	AutoReadMessages bool      `json:"auto_read_messages"`
	LeaveWhenAlone   bool      `json:"leave_when_alone"`
	GreetOnJoin      bool      `json:"greet_on_join"`
	FarewellOnLeave  bool      `json:"farewell_on_leave"`
	RestrictVoices   bool      `json:"restrict_voices"`
	AllowedVoiceIDs  []string  `json:"allowed_voice_ids"`
	TextChannelIDs   []string  `json:"allowlist_text_channel_ids"` // empty means every channel
	UpdatedAt        time.Time `json:"updated_at"`
}

// VoiceAllowed reports whether voice may be used in the guild.
func (g *GuildSettings) VoiceAllowed(voice string) bool {
	if !g.RestrictVoices {
		return true
	}
	for _, v := range g.AllowedVoiceIDs {
		if v == voice {
			return true
		}
	}
	return false
}

// ReadsChannel reports whether chat in channel should be read aloud.
func (g *GuildSettings) ReadsChannel(channel string) bool {
	if !g.AutoReadMessages {
		return false
	}
	if len(g.TextChannelIDs) == 0 {
		return true
	}
	for _, id := range g.TextChannelIDs {
		if id == channel {
			return true
		}
	}
	return false
}

// PreferenceStore persists user preferences, guild settings and the
// last day each member was seen in voice.
type PreferenceStore interface {
	// GetUser returns ErrNotFound for unknown users.
	GetUser(ctx context.Context, userID string) (*UserPrefs, error)
	SaveUser(ctx context.Context, u *UserPrefs) error

	// GetGuild returns stored settings, or ErrNotFound when the guild has none.
	GetGuild(ctx context.Context, guildID string) (*GuildSettings, error)
	SaveGuild(ctx context.Context, g *GuildSettings) error

	// LastSeen returns the date (YYYY-MM-DD) a member was last seen, or "".
	LastSeen(ctx context.Context, guildID, userID string) (string, error)
	MarkSeen(ctx context.Context, guildID, userID, date string) error

	Close() error
}
