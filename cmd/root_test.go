package cmd

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestResolveConfigPath(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		os.Chdir(wd)
		cfgFile = ""
	})
	t.Setenv("VOXROOM_CONFIG", "")

	if got := resolveConfigPath(); got != "" {
		t.Errorf("no file: got %q", got)
	}

	os.WriteFile(filepath.Join(dir, "voxroom.yaml"), []byte("log: {level: debug}\n"), 0o644)
	if got := resolveConfigPath(); got != "voxroom.yaml" {
		t.Errorf("default file: got %q", got)
	}

	t.Setenv("VOXROOM_CONFIG", "/etc/voxroom.json5")
	if got := resolveConfigPath(); got != "/etc/voxroom.json5" {
		t.Errorf("env: got %q", got)
	}

	cfgFile = "flag.json5"
	if got := resolveConfigPath(); got != "flag.json5" {
		t.Errorf("flag: got %q", got)
	}
}

func TestMaskSecret(t *testing.T) {
	if got := maskSecret("short"); got != "****" {
		t.Errorf("short = %q", got)
	}
	if got := maskSecret("abcd1234efgh5678"); got != "abcd****5678" {
		t.Errorf("long = %q", got)
	}
}

func TestVoiceIDs(t *testing.T) {
	ids := voiceIDs()
	if len(ids) == 0 {
		t.Fatal("empty catalog")
	}
	seen := map[string]bool{}
	for _, id := range ids {
		if seen[id] {
			t.Errorf("duplicate voice id %q", id)
		}
		seen[id] = true
	}
}

func TestVoiceLabel(t *testing.T) {
	if got := voiceLabel("Jessie"); got != "Jessie" {
		t.Errorf("short name changed: %q", got)
	}
	long := "English US Female Narrator With A Very Long Descriptive Name"
	got := voiceLabel(long)
	if len(got) > voiceNameWidth || got[len(got)-3:] != "..." {
		t.Errorf("voiceLabel(long) = %q", got)
	}
}
