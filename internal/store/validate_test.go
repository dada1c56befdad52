package store

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateUserID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"empty", "", true},
		{"snowflake", "123456789012345678", false},
		{"max_length", strings.Repeat("a", 255), false},
		{"too_long", strings.Repeat("a", 256), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUserID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUserID(%d chars) error = %v, wantErr %v", len(tt.id), err, tt.wantErr)
			}
		})
	}
}

func intp(v int) *int              { return &v }
func strp(v string) *string        { return &v }
func boolp(v bool) *bool           { return &v }
func slicep(v ...string) *[]string { return &v }

func TestGuildPatch_Apply(t *testing.T) {
	base := DefaultGuildSettings("g1", "en_us_001", []string{"en_us_001", "en_us_002", "en_uk_001"})

	tests := []struct {
		name      string
		patch     GuildPatch
		wantField string
		check     func(*GuildSettings) bool
	}{
		{"max chars ok", GuildPatch{MaxTTSChars: intp(2000)}, "", func(g *GuildSettings) bool { return g.MaxTTSChars == 2000 }},
		{"max chars zero", GuildPatch{MaxTTSChars: intp(0)}, "max_tts_chars", nil},
		{"max chars too big", GuildPatch{MaxTTSChars: intp(2001)}, "max_tts_chars", nil},
		{"blank fallback", GuildPatch{FallbackVoice: strp("  ")}, "fallback_voice", nil},
		{"dedupes voices", GuildPatch{AllowedVoiceIDs: slicep("a", " a", "b", "")}, "", func(g *GuildSettings) bool {
			return len(g.AllowedVoiceIDs) == 2
		}},
		{"drops bad channels", GuildPatch{TextChannelIDs: slicep("123", "abc", "0", "123", "456")}, "", func(g *GuildSettings) bool {
			return len(g.TextChannelIDs) == 2 && g.TextChannelIDs[1] == "456"
		}},
		{"restrict needs voices", GuildPatch{RestrictVoices: boolp(true), AllowedVoiceIDs: slicep()}, "allowed_voice_ids", nil},
		{"restrict needs fallback", GuildPatch{RestrictVoices: boolp(true), AllowedVoiceIDs: slicep("en_us_002")}, "fallback_voice", nil},
		{"restrict needs default", GuildPatch{RestrictVoices: boolp(true), DefaultVoice: strp("en_uk_001"), AllowedVoiceIDs: slicep("en_us_001")}, "default_voice_id", nil},
		{"restrict ok", GuildPatch{RestrictVoices: boolp(true), AllowedVoiceIDs: slicep("en_us_001")}, "", func(g *GuildSettings) bool {
			return g.RestrictVoices && g.VoiceAllowed("en_us_001") && !g.VoiceAllowed("en_us_002")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.patch.Apply(base)
			if tt.wantField != "" {
				var ve *ValidationError
				if !errors.As(err, &ve) || ve.Field != tt.wantField {
					t.Fatalf("err = %v, want validation error on %s", err, tt.wantField)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.check(got) {
				t.Errorf("unexpected result %+v", got)
			}
		})
	}

	if base.MaxTTSChars != DefaultMaxTTSChars || len(base.AllowedVoiceIDs) != 3 {
		t.Error("Apply modified its input")
	}
}

func TestTooManyAllowedVoices(t *testing.T) {
	g := DefaultGuildSettings("g", "v0", nil)
	for i := 0; i <= MaxAllowedVoices; i++ {
		g.AllowedVoiceIDs = append(g.AllowedVoiceIDs, "v"+strings.Repeat("x", i))
	}
	if err := g.Normalize(); err == nil {
		t.Error("expected error for oversized allow-list")
	}
}

func TestReadsChannel(t *testing.T) {
	g := DefaultGuildSettings("g", "v", nil)
	if !g.ReadsChannel("1") {
		t.Error("empty allow-list should read every channel")
	}
	g.TextChannelIDs = []string{"2"}
	if g.ReadsChannel("1") || !g.ReadsChannel("2") {
		t.Error("allow-list not honored")
	}
	g.AutoReadMessages = false
	if g.ReadsChannel("2") {
		t.Error("auto read disabled should read nothing")
	}
}
