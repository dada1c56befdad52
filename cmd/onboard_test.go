package cmd

import (
	"slices"
	"testing"

	"github.com/nextlevelbuilder/voxroom/internal/config"
	"github.com/nextlevelbuilder/voxroom/internal/tts"
)

func TestOrderProviders(t *testing.T) {
	tests := []struct {
		selected []string
		primary  string
		want     []string
	}{
		{[]string{"tiktok", "google", "edge"}, "edge", []string{"edge", "tiktok", "google"}},
		{[]string{"tiktok", "google"}, "tiktok", []string{"tiktok", "google"}},
		{[]string{"google"}, "", []string{"google"}},
		{[]string{"tiktok", "google"}, "openai", []string{"tiktok", "google"}},
	}
	for _, tt := range tests {
		if got := orderProviders(tt.selected, tt.primary); !slices.Equal(got, tt.want) {
			t.Errorf("orderProviders(%v, %q) = %v, want %v", tt.selected, tt.primary, got, tt.want)
		}
	}
}

func TestBuildOnboardConfig(t *testing.T) {
	t.Setenv("VOXROOM_OPENAI_API_KEY", "")
	base := config.Default()

	t.Run("http token generated", func(t *testing.T) {
		cfg, err := buildOnboardConfig(base, onboardAnswers{
			Providers:   []string{"tiktok", "google"},
			Primary:     "google",
			HTTPEnabled: true,
			StoreDriver: "sqlite",
		})
		if err != nil {
			t.Fatal(err)
		}
		if !slices.Equal(cfg.TTS.Providers, []string{"google", "tiktok"}) {
			t.Errorf("providers = %v", cfg.TTS.Providers)
		}
		if len(cfg.HTTP.Token) != 32 {
			t.Errorf("http token = %q", cfg.HTTP.Token)
		}
		if base.HTTP.Enabled || base.HTTP.Token != "" {
			t.Error("base config was modified")
		}
	})

	t.Run("token in file", func(t *testing.T) {
		cfg, err := buildOnboardConfig(base, onboardAnswers{
			Providers:    []string{"google"},
			DiscordToken: "abc",
			TokenInFile:  true,
		})
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Discord.Token != "abc" {
			t.Errorf("discord token = %q", cfg.Discord.Token)
		}
	})

	t.Run("missing api key rejected", func(t *testing.T) {
		_, err := buildOnboardConfig(base, onboardAnswers{Providers: []string{"openai"}})
		if err == nil {
			t.Fatal("expected validation error")
		}
	})

	t.Run("api key from env accepted but not saved", func(t *testing.T) {
		t.Setenv("VOXROOM_OPENAI_API_KEY", "sk-env")
		cfg, err := buildOnboardConfig(base, onboardAnswers{Providers: []string{"openai"}})
		if err != nil {
			t.Fatal(err)
		}
		if cfg.TTS.OpenAI.APIKey != "" {
			t.Errorf("env key leaked into saved config: %q", cfg.TTS.OpenAI.APIKey)
		}
	})

	t.Run("postgres needs dsn", func(t *testing.T) {
		_, err := buildOnboardConfig(base, onboardAnswers{Providers: []string{"google"}, StoreDriver: "postgres"})
		if err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestOnboardValidators(t *testing.T) {
	tests := []struct {
		name     string
		validate func(string) error
		in       string
		ok       bool
	}{
		{"listen host port", validateListen, "127.0.0.1:8790", true},
		{"listen any host", validateListen, ":8790", true},
		{"listen no port", validateListen, "localhost", false},
		{"dsn url", validateDSN, "postgres://vox:pw@db/voxroom", true},
		{"dsn keyvalue", validateDSN, "host=db dbname=voxroom", true},
		{"dsn garbage", validateDSN, "voxroom.db", false},
		{"token", validateBotToken, "MTA.Gx1.abc", true},
		{"token with prefix", validateBotToken, "Bot MTA.Gx1.abc", true},
		{"token two parts", validateBotToken, "MTA.abc", false},
		{"token empty part", validateBotToken, "MTA..abc", false},
		{"api key", validateAPIKey, "sk-123", true},
		{"api key pasted with space", validateAPIKey, "sk-1 23", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.validate(tt.in); (err == nil) != tt.ok {
				t.Errorf("validate(%q) = %v, want ok=%v", tt.in, err, tt.ok)
			}
		})
	}

	if err := optional(validateListen)(""); err != nil {
		t.Errorf("empty answer keeps the default, got %v", err)
	}
}

func TestVoiceOptions(t *testing.T) {
	if got := voiceOptions([]string{"openai"}); len(got) != 0 {
		t.Errorf("openai has no catalog voices, got %d options", len(got))
	}
	tiktok := voiceOptions([]string{"tiktok"})
	if len(tiktok) == 0 {
		t.Fatal("expected tiktok catalog voices")
	}
	for _, o := range tiktok {
		v, ok := tts.LookupVoice(o.Value)
		if !ok || v.Provider != "tiktok" {
			t.Errorf("option %q is not a tiktok voice", o.Value)
		}
	}
	both := voiceOptions([]string{"tiktok", "google"})
	if len(both) <= len(tiktok) {
		t.Errorf("google voices missing: %d vs %d", len(both), len(tiktok))
	}
}

func TestBuildOnboardConfig_FallbackVoice(t *testing.T) {
	cfg, err := buildOnboardConfig(config.Default(), onboardAnswers{
		Providers:     []string{"tiktok"},
		FallbackVoice: "en_us_002",
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TTS.FallbackVoice != "en_us_002" {
		t.Errorf("fallback voice = %q", cfg.TTS.FallbackVoice)
	}
}
