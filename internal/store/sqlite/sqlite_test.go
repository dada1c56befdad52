package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/nextlevelbuilder/voxroom/internal/store"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "prefs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_Users(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	if _, err := s.GetUser(ctx, "1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}

	u := &store.UserPrefs{UserID: "1", DisplayName: "Ann", Nickname: "Annie", VoiceID: "en_us_002", AutoJoin: true}
	if err := s.SaveUser(ctx, u); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetUser(ctx, "1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Nickname != "Annie" || got.VoiceID != "en_us_002" || !got.AutoJoin || got.UpdatedAt.IsZero() {
		t.Errorf("got %+v", got)
	}

	u.Nickname = ""
	u.VoiceID = ""
	if err := s.SaveUser(ctx, u); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetUser(ctx, "1")
	if got.Nickname != "" || got.VoiceID != "" {
		t.Errorf("clearing fields failed: %+v", got)
	}
}

func TestStore_Guilds(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	if _, err := s.GetGuild(ctx, "g"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}

	g := store.DefaultGuildSettings("g", "en_us_001", []string{"en_us_001", "en_us_002"})
	g.GreetOnJoin = true
	g.TextChannelIDs = []string{"42"}
	if err := s.SaveGuild(ctx, g); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetGuild(ctx, "g")
	if err != nil {
		t.Fatal(err)
	}
	if !got.GreetOnJoin || len(got.AllowedVoiceIDs) != 2 || len(got.TextChannelIDs) != 1 || got.TextChannelIDs[0] != "42" {
		t.Errorf("got %+v", got)
	}

	g.MaxTTSChars = 5000
	var ve *store.ValidationError
	if err := s.SaveGuild(ctx, g); !errors.As(err, &ve) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestStore_MemberSeen(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	if d, err := s.LastSeen(ctx, "g", "u"); err != nil || d != "" {
		t.Fatalf("got %q, %v", d, err)
	}
	s.MarkSeen(ctx, "g", "u", "2026-01-02")
	s.MarkSeen(ctx, "g", "u", "2026-01-03")
	if d, _ := s.LastSeen(ctx, "g", "u"); d != "2026-01-03" {
		t.Errorf("last seen = %q", d)
	}
}
