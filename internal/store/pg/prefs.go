package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nextlevelbuilder/voxroom/internal/store"
)

// PGPreferenceStore implements store.PreferenceStore backed by Postgres.
type PGPreferenceStore struct {
	db *sql.DB
}

// NewPGPreferenceStore wraps an open database. Run Migrate first.
func NewPGPreferenceStore(db *sql.DB) *PGPreferenceStore {
	return &PGPreferenceStore{db: db}
}

func (s *PGPreferenceStore) GetUser(ctx context.Context, userID string) (*store.UserPrefs, error) {
	var (
		u     store.UserPrefs
		nick  *string
		voice *string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT discord_id, display_name, nickname, voice_id, auto_join, updated_at
		 FROM discord_users WHERE discord_id = $1`, userID,
	).Scan(&u.UserID, &u.DisplayName, &nick, &voice, &u.AutoJoin, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Nickname = derefStr(nick)
	u.VoiceID = derefStr(voice)
	return &u, nil
}

func (s *PGPreferenceStore) SaveUser(ctx context.Context, u *store.UserPrefs) error {
	if err := store.ValidateUserID(u.UserID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO discord_users (discord_id, display_name, nickname, voice_id, auto_join, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (discord_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			nickname = EXCLUDED.nickname,
			voice_id = EXCLUDED.voice_id,
			auto_join = EXCLUDED.auto_join,
			updated_at = EXCLUDED.updated_at`,
		u.UserID, u.DisplayName, nilStr(u.Nickname), nilStr(u.VoiceID), u.AutoJoin, nowUTC(),
	)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (s *PGPreferenceStore) GetGuild(ctx context.Context, guildID string) (*store.GuildSettings, error) {
	var (
		g                 store.GuildSettings
		allowed, channels []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT guild_id, max_tts_chars, fallback_voice, default_voice_id, auto_read_messages,
			leave_when_alone, greet_on_join, farewell_on_leave, restrict_voices,
			allowed_voice_ids, allowlist_text_channel_ids, updated_at
		 FROM guild_settings WHERE guild_id = $1`, guildID,
	).Scan(&g.GuildID, &g.MaxTTSChars, &g.FallbackVoice, &g.DefaultVoice, &g.AutoReadMessages,
		&g.LeaveWhenAlone, &g.GreetOnJoin, &g.FarewellOnLeave, &g.RestrictVoices,
		&allowed, &channels, &g.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get guild: %w", err)
	}
	scanStringArray(allowed, &g.AllowedVoiceIDs)
	scanStringArray(channels, &g.TextChannelIDs)
	return &g, nil
}

func (s *PGPreferenceStore) SaveGuild(ctx context.Context, g *store.GuildSettings) error {
	if err := g.Normalize(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO guild_settings (guild_id, max_tts_chars, fallback_voice, default_voice_id,
			auto_read_messages, leave_when_alone, greet_on_join, farewell_on_leave, restrict_voices,
			allowed_voice_ids, allowlist_text_channel_ids, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (guild_id) DO UPDATE SET
			max_tts_chars = EXCLUDED.max_tts_chars,
			fallback_voice = EXCLUDED.fallback_voice,
			default_voice_id = EXCLUDED.default_voice_id,
			auto_read_messages = EXCLUDED.auto_read_messages,
			leave_when_alone = EXCLUDED.leave_when_alone,
			greet_on_join = EXCLUDED.greet_on_join,
			farewell_on_leave = EXCLUDED.farewell_on_leave,
			restrict_voices = EXCLUDED.restrict_voices,
			allowed_voice_ids = EXCLUDED.allowed_voice_ids,
			allowlist_text_channel_ids = EXCLUDED.allowlist_text_channel_ids,
			updated_at = EXCLUDED.updated_at`,
		g.GuildID, g.MaxTTSChars, g.FallbackVoice, g.DefaultVoice,
		g.AutoReadMessages, g.LeaveWhenAlone, g.GreetOnJoin, g.FarewellOnLeave, g.RestrictVoices,
		pqStringArray(g.AllowedVoiceIDs), pqStringArray(g.TextChannelIDs), nowUTC(),
	)
	if err != nil {
		return fmt.Errorf("save guild: %w", err)
	}
	return nil
}

func (s *PGPreferenceStore) LastSeen(ctx context.Context, guildID, userID string) (string, error) {
	var date string
	err := s.db.QueryRowContext(ctx,
		`SELECT to_char(last_seen_date, 'YYYY-MM-DD') FROM member_seen WHERE guild_id = $1 AND user_id = $2`,
		guildID, userID,
	).Scan(&date)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get last seen: %w", err)
	}
	return date, nil
}

func (s *PGPreferenceStore) MarkSeen(ctx context.Context, guildID, userID, date string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO member_seen (guild_id, user_id, last_seen_date, updated_at)
		 VALUES ($1, $2, $3::date, $4)
		 ON CONFLICT (guild_id, user_id) DO UPDATE SET
			last_seen_date = EXCLUDED.last_seen_date,
			updated_at = EXCLUDED.updated_at`,
		guildID, userID, date, nowUTC(),
	)
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *PGPreferenceStore) Close() error { return s.db.Close() }
