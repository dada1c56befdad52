// Package sqlite implements store.PreferenceStore on an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/voxroom/internal/store"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Store is a SQLite-backed preference store.
type Store struct {
	db *sqlx.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Info("preference store opened", "driver", "sqlite", "path", path)
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS discord_users (
			discord_id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL DEFAULT '',
			nickname TEXT NULL,
			voice_id TEXT NULL,
			auto_join INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS guild_settings (
			guild_id TEXT PRIMARY KEY,
			max_tts_chars INTEGER NOT NULL,
			fallback_voice TEXT NOT NULL,
			default_voice_id TEXT NOT NULL,
			auto_read_messages INTEGER NOT NULL,
			leave_when_alone INTEGER NOT NULL,
			greet_on_join INTEGER NOT NULL DEFAULT 0,
			farewell_on_leave INTEGER NOT NULL DEFAULT 0,
			restrict_voices INTEGER NOT NULL DEFAULT 0,
			allowed_voice_ids TEXT NOT NULL DEFAULT '[]',
			allowlist_text_channel_ids TEXT NOT NULL DEFAULT '[]',
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS member_seen (
			guild_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			last_seen_date TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (guild_id, user_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// userRow and guildRow mirror the table columns; booleans are stored as 0/1.
type userRow struct {
	DiscordID   string         `db:"discord_id"`
	DisplayName string         `db:"display_name"`
	Nickname    sql.NullString `db:"nickname"`
	VoiceID     sql.NullString `db:"voice_id"`
	AutoJoin    bool           `db:"auto_join"`
	UpdatedAt   int64          `db:"updated_at"`
}

type guildRow struct {
	GuildID          string `db:"guild_id"`
	MaxTTSChars      int    `db:"max_tts_chars"`
	FallbackVoice    string `db:"fallback_voice"`
	DefaultVoice     string `db:"default_voice_id"`
	AutoReadMessages bool   `db:"auto_read_messages"`
	LeaveWhenAlone   bool   `db:"leave_when_alone"`
	GreetOnJoin      bool   `db:"greet_on_join"`
	FarewellOnLeave  bool   `db:"farewell_on_leave"`
	RestrictVoices   bool   `db:"restrict_voices"`
	AllowedVoiceIDs  string `db:"allowed_voice_ids"`
	TextChannelIDs   string `db:"allowlist_text_channel_ids"`
	UpdatedAt        int64  `db:"updated_at"`
}

func (s *Store) GetUser(ctx context.Context, userID string) (*store.UserPrefs, error) {
	var r userRow
	err := s.db.GetContext(ctx, &r,
		`SELECT discord_id, display_name, nickname, voice_id, auto_join, updated_at
		 FROM discord_users WHERE discord_id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &store.UserPrefs{
		UserID:      r.DiscordID,
		DisplayName: r.DisplayName,
		Nickname:    r.Nickname.String,
		VoiceID:     r.VoiceID.String,
		AutoJoin:    r.AutoJoin,
		UpdatedAt:   time.Unix(r.UpdatedAt, 0),
	}, nil
}

func (s *Store) SaveUser(ctx context.Context, u *store.UserPrefs) error {
	if err := store.ValidateUserID(u.UserID); err != nil {
		return err
	}
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO discord_users (discord_id, display_name, nickname, voice_id, auto_join, updated_at)
		 VALUES (:discord_id, :display_name, :nickname, :voice_id, :auto_join, :updated_at)
		 ON CONFLICT(discord_id) DO UPDATE SET
			display_name = excluded.display_name,
			nickname = excluded.nickname,
			voice_id = excluded.voice_id,
			auto_join = excluded.auto_join,
			updated_at = excluded.updated_at`,
		userRow{
			DiscordID:   u.UserID,
			DisplayName: u.DisplayName,
			Nickname:    nullStr(u.Nickname),
			VoiceID:     nullStr(u.VoiceID),
			AutoJoin:    u.AutoJoin,
			UpdatedAt:   time.Now().Unix(),
		},
	)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (s *Store) GetGuild(ctx context.Context, guildID string) (*store.GuildSettings, error) {
	var r guildRow
	err := s.db.GetContext(ctx, &r,
		`SELECT guild_id, max_tts_chars, fallback_voice, default_voice_id, auto_read_messages,
			leave_when_alone, greet_on_join, farewell_on_leave, restrict_voices,
			allowed_voice_ids, allowlist_text_channel_ids, updated_at
		 FROM guild_settings WHERE guild_id = ?`, guildID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get guild: %w", err)
	}
	g := &store.GuildSettings{
		GuildID:          r.GuildID,
		MaxTTSChars:      r.MaxTTSChars,
		FallbackVoice:    r.FallbackVoice,
		DefaultVoice:     r.DefaultVoice,
		AutoReadMessages: r.AutoReadMessages,
		LeaveWhenAlone:   r.LeaveWhenAlone,
		GreetOnJoin:      r.GreetOnJoin,
		FarewellOnLeave:  r.FarewellOnLeave,
		RestrictVoices:   r.RestrictVoices,
		UpdatedAt:        time.Unix(r.UpdatedAt, 0),
	}
	if err := json.Unmarshal([]byte(r.AllowedVoiceIDs), &g.AllowedVoiceIDs); err != nil {
		slog.Warn("store: bad allowed_voice_ids", "guild", guildID, "error", err)
	}
	if err := json.Unmarshal([]byte(r.TextChannelIDs), &g.TextChannelIDs); err != nil {
		slog.Warn("store: bad allowlist_text_channel_ids", "guild", guildID, "error", err)
	}
	return g, nil
}

func (s *Store) SaveGuild(ctx context.Context, g *store.GuildSettings) error {
	if err := g.Normalize(); err != nil {
		return err
	}
	allowed, _ := json.Marshal(g.AllowedVoiceIDs)
	channels, _ := json.Marshal(g.TextChannelIDs)
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO guild_settings (guild_id, max_tts_chars, fallback_voice, default_voice_id,
			auto_read_messages, leave_when_alone, greet_on_join, farewell_on_leave, restrict_voices,
			allowed_voice_ids, allowlist_text_channel_ids, updated_at)
		 VALUES (:guild_id, :max_tts_chars, :fallback_voice, :default_voice_id,
			:auto_read_messages, :leave_when_alone, :greet_on_join, :farewell_on_leave, :restrict_voices,
			:allowed_voice_ids, :allowlist_text_channel_ids, :updated_at)
		 ON CONFLICT(guild_id) DO UPDATE SET
			max_tts_chars = excluded.max_tts_chars,
			fallback_voice = excluded.fallback_voice,
			default_voice_id = excluded.default_voice_id,
			auto_read_messages = excluded.auto_read_messages,
			leave_when_alone = excluded.leave_when_alone,
			greet_on_join = excluded.greet_on_join,
			farewell_on_leave = excluded.farewell_on_leave,
			restrict_voices = excluded.restrict_voices,
			allowed_voice_ids = excluded.allowed_voice_ids,
			allowlist_text_channel_ids = excluded.allowlist_text_channel_ids,
			updated_at = excluded.updated_at`,
		guildRow{
			GuildID:          g.GuildID,
			MaxTTSChars:      g.MaxTTSChars,
			FallbackVoice:    g.FallbackVoice,
			DefaultVoice:     g.DefaultVoice,
			AutoReadMessages: g.AutoReadMessages,
			LeaveWhenAlone:   g.LeaveWhenAlone,
			GreetOnJoin:      g.GreetOnJoin,
			FarewellOnLeave:  g.FarewellOnLeave,
			RestrictVoices:   g.RestrictVoices,
			AllowedVoiceIDs:  string(allowed),
			TextChannelIDs:   string(channels),
			UpdatedAt:        time.Now().Unix(),
		},
	)
	if err != nil {
		return fmt.Errorf("save guild: %w", err)
	}
	return nil
}

func (s *Store) LastSeen(ctx context.Context, guildID, userID string) (string, error) {
	var date string
	err := s.db.GetContext(ctx, &date,
		`SELECT last_seen_date FROM member_seen WHERE guild_id = ? AND user_id = ?`, guildID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get last seen: %w", err)
	}
	return date, nil
}

func (s *Store) MarkSeen(ctx context.Context, guildID, userID, date string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO member_seen (guild_id, user_id, last_seen_date, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(guild_id, user_id) DO UPDATE SET
			last_seen_date = excluded.last_seen_date,
			updated_at = excluded.updated_at`,
		guildID, userID, date, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
