package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/voxroom/internal/config"
	"github.com/nextlevelbuilder/voxroom/internal/tts"
	"github.com/nextlevelbuilder/voxroom/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("voxroom doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	switch {
	case cfgPath == "":
		fmt.Println("  Config:   (none, defaults + environment)")
	default:
		fmt.Printf("  Config:   %s", cfgPath)
		if _, err := os.Stat(cfgPath); err != nil {
			fmt.Println(" (NOT FOUND)")
		} else {
			fmt.Println(" (OK)")
		}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Discord:")
	if source, err := cfg.ResolveToken(); err != nil {
		fmt.Printf("    %-12s %s\n", "Token:", err)
	} else {
		fmt.Printf("    %-12s %s (from %s)\n", "Token:", maskSecret(cfg.Discord.Token), source)
	}

	fmt.Println()
	fmt.Println("  Speech providers (fallback order):")
	for _, name := range cfg.TTS.Providers {
		fmt.Printf("    %-12s %s\n", name+":", providerStatus(cfg, name))
	}

	fmt.Println()
	fmt.Println("  Store:")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if prefs, err := openStore(ctx, cfg.Store); err != nil {
		fmt.Printf("    %-12s %s\n", cfg.Store.Driver+":", err)
	} else {
		fmt.Printf("    %-12s OK\n", cfg.Store.Driver+":")
		prefs.Close()
	}

	fmt.Println()
	fmt.Println("  External Tools:")
	checkBinary(cfg.Playback.FFmpegPath)
	for _, name := range cfg.TTS.Providers {
		if name == "edge" {
			checkBinary(tts.EdgeCommand(cfg.TTS.Edge.Binary)[0])
		}
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func providerStatus(cfg *config.Config, name string) string {
	switch name {
	case "openai":
		return keyStatus(cfg.TTS.OpenAI.APIKey)
	case "elevenlabs":
		return keyStatus(cfg.TTS.ElevenLabs.APIKey)
	case "minimax":
		return keyStatus(cfg.TTS.MiniMax.APIKey)
	case "edge":
		return "local CLI"
	default:
		return "no key needed"
	}
}

func keyStatus(key string) string {
	if key == "" {
		return "(not configured)"
	}
	return maskSecret(key)
}

func maskSecret(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

func checkBinary(name string) {
	path, err := exec.LookPath(name)
	if err != nil {
		fmt.Printf("    %-12s NOT FOUND\n", name+":")
	} else {
		fmt.Printf("    %-12s %s\n", name+":", path)
	}
}
