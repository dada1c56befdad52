package cmd

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/voxroom/internal/config"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	keyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Width(16)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

var providerOptions = []SelectOption[string]{
	{Label: "TikTok (free, character voices)", Value: "tiktok"},
	{Label: "Google Translate (free, one voice per language)", Value: "google"},
	{Label: "Edge (free, needs the edge-tts CLI)", Value: "edge"},
	{Label: "OpenAI", Value: "openai"},
	{Label: "ElevenLabs", Value: "elevenlabs"},
	{Label: "MiniMax", Value: "minimax"},
}

// onboardAnswers is everything the wizard asks for.
type onboardAnswers struct {
	Providers     []string
	Primary       string
	FallbackVoice string
	APIKeys       map[string]string // provider -> key
	MiniMaxGID    string

	DiscordToken string
	TokenInFile  bool

	HTTPEnabled bool
	HTTPListen  string

	StoreDriver string
	PostgresDSN string
}

func onboardCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Interactive setup: write a config file and store the bot token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = resolveConfigPath()
			}
			if path == "" {
				path = "voxroom.json5"
			}
			return runOnboard(path)
		},
	}
	cmd.Flags().StringVarP(&path, "output", "o", "", "config file to write (default: the resolved config path or voxroom.json5)")
	return cmd
}

func runOnboard(path string) error {
	fmt.Println(titleStyle.Render("voxroom setup"))
	fmt.Println()

	base := config.Default()
	if _, err := os.Stat(path); err == nil {
		overwrite, err := promptConfirm(fmt.Sprintf("%s exists. Start from it and overwrite?", path), true)
		if err != nil {
			return err
		}
		if !overwrite {
			return nil
		}
		// Decode without the environment so env-only secrets stay out of the file.
		if data, err := os.ReadFile(path); err == nil {
			existing := config.Default()
			if err := config.Decode(path, data, existing); err == nil {
				base = existing
			}
		}
	}

	a, err := askOnboarding(base)
	if err != nil {
		return err
	}

	cfg, err := buildOnboardConfig(base, a)
	if err != nil {
		return err
	}

	tokenNote := "not set"
	if a.DiscordToken != "" && !a.TokenInFile {
		if err := config.SaveToken(a.DiscordToken); err != nil {
			fmt.Println(warnStyle.Render("Keychain unavailable, writing the token to the config file instead."))
			cfg.Discord.Token = a.DiscordToken
			tokenNote = "config file"
		} else {
			tokenNote = "OS keychain"
		}
	} else if a.DiscordToken != "" {
		tokenNote = "config file"
	}

	if err := config.Save(path, cfg); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(okStyle.Render("Configuration written."))
	row := func(k, v string) { fmt.Println(keyStyle.Render(k) + v) }
	row("config", path)
	row("providers", strings.Join(cfg.TTS.Providers, " > "))
	row("discord token", tokenNote)
	row("store", cfg.Store.Driver)
	if cfg.HTTP.Enabled {
		row("http api", cfg.HTTP.Listen)
		row("http token", maskSecret(cfg.HTTP.Token))
	} else {
		row("http api", "disabled")
	}
	fmt.Println()
	fmt.Println("Run `voxroom doctor` to check the setup, then `voxroom serve`.")
	return nil
}

func askOnboarding(base *config.Config) (onboardAnswers, error) {
	a := onboardAnswers{APIKeys: map[string]string{}}
	var err error

	if a.Providers, err = promptProviders(base.TTS.Providers); err != nil {
		return a, err
	}
	if len(a.Providers) > 1 {
		opts := make([]SelectOption[string], len(a.Providers))
		for i, p := range a.Providers {
			opts[i] = SelectOption[string]{Label: p, Value: p}
		}
		if a.Primary, err = promptSelect("Primary provider", opts, 0); err != nil {
			return a, err
		}
	}
	if a.FallbackVoice, err = promptVoice(a.Providers, base.TTS.FallbackVoice); err != nil {
		return a, err
	}

	for _, p := range a.Providers {
		switch p {
		case "openai", "elevenlabs", "minimax":
			key, err := promptSecret(p+" API key", "Leave empty to set it later via the environment", validateAPIKey)
			if err != nil {
				return a, err
			}
			a.APIKeys[p] = key
			if p == "minimax" {
				if a.MiniMaxGID, err = promptText("MiniMax group id", base.TTS.MiniMax.GroupID, nil); err != nil {
					return a, err
				}
			}
		}
	}

	if a.DiscordToken, err = promptSecret("Discord bot token", "Leave empty to run `voxroom login` later", validateBotToken); err != nil {
		return a, err
	}
	a.DiscordToken = strings.TrimPrefix(a.DiscordToken, "Bot ")
	if a.DiscordToken != "" {
		where, err := promptSelect("Store the token in", []SelectOption[bool]{
			{Label: "OS keychain (recommended)", Value: false},
			{Label: "Config file", Value: true},
		}, 0)
		if err != nil {
			return a, err
		}
		a.TokenInFile = where
	}

	if a.HTTPEnabled, err = promptConfirm("Enable the local HTTP API?", base.HTTP.Enabled); err != nil {
		return a, err
	}
	if a.HTTPEnabled {
		if a.HTTPListen, err = promptText("Listen address", base.HTTP.Listen, validateListen); err != nil {
			return a, err
		}
	}

	if a.StoreDriver, err = promptSelect("Preference store", []SelectOption[string]{
		{Label: "SQLite file", Value: "sqlite"},
		{Label: "PostgreSQL", Value: "postgres"},
	}, 0); err != nil {
		return a, err
	}
	if a.StoreDriver == "postgres" {
		if a.PostgresDSN, err = promptText("PostgreSQL DSN", base.Store.PostgresDSN, validateDSN); err != nil {
			return a, err
		}
	}
	return a, nil
}

// buildOnboardConfig applies a onto a copy of base and validates the result
// as serve would see it.
func buildOnboardConfig(base *config.Config, a onboardAnswers) (*config.Config, error) {
	cfg := *base
	cfg.TTS.Providers = orderProviders(a.Providers, a.Primary)
	for p, key := range a.APIKeys {
		if key == "" {
			continue
		}
		switch p {
		case "openai":
			cfg.TTS.OpenAI.APIKey = key
		case "elevenlabs":
			cfg.TTS.ElevenLabs.APIKey = key
		case "minimax":
			cfg.TTS.MiniMax.APIKey = key
		}
	}
	if a.FallbackVoice != "" {
		cfg.TTS.FallbackVoice = a.FallbackVoice
	}
	if a.MiniMaxGID != "" {
		cfg.TTS.MiniMax.GroupID = a.MiniMaxGID
	}
	if a.TokenInFile {
		cfg.Discord.Token = a.DiscordToken
	}

	cfg.HTTP.Enabled = a.HTTPEnabled
	if a.HTTPEnabled {
		if a.HTTPListen != "" {
			cfg.HTTP.Listen = a.HTTPListen
		}
		if cfg.HTTP.Token == "" {
			cfg.HTTP.Token = strings.ReplaceAll(uuid.NewString(), "-", "")
		}
	}

	if a.StoreDriver != "" {
		cfg.Store.Driver = a.StoreDriver
	}
	if a.StoreDriver == "postgres" {
		if a.PostgresDSN == "" {
			return nil, errors.New("postgres store needs a DSN")
		}
		cfg.Store.PostgresDSN = a.PostgresDSN
	}

	// Keys left empty may come from the environment at serve time.
	check := cfg
	check.ApplyEnv()
	if err := check.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// orderProviders moves primary to the front, keeping the rest in order.
func orderProviders(selected []string, primary string) []string {
	out := slices.Clone(selected)
	if i := slices.Index(out, primary); i > 0 {
		out = slices.Delete(out, i, i+1)
		out = slices.Insert(out, 0, primary)
	}
	return out
}
