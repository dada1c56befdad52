package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/voxroom/internal/speech"
	"github.com/nextlevelbuilder/voxroom/internal/tts"
)

func sayCmd() *cobra.Command {
	var (
		voice string
		out   string
	)
	cmd := &cobra.Command{
		Use:   "say <text...>",
		Short: "Synthesize text through the provider chain and write the audio",
		Long: `Synthesize text with the configured providers, falling back and retrying
exactly as the bot does, and write the audio to --out (default stdout).`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			setupLogging(cfg.Log)

			text, err := speech.NewNormalizer(cfg.Pipeline.Limits()).Normalize(strings.Join(args, " "))
			if err != nil {
				return err
			}
			if voice == "" {
				voice = cfg.TTS.FallbackVoice
			}

			providers, err := cfg.TTS.BuildProviders(http.DefaultClient)
			if err != nil {
				return err
			}
			client, err := tts.NewClient(cfg.TTS.ClientConfig(nil), providers...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			res, err := client.Synthesize(ctx, text, voice)
			if err != nil {
				return err
			}
			defer res.Audio.Close()

			w := io.Writer(os.Stdout)
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			n, err := io.Copy(w, res.Audio)
			if err != nil {
				return fmt.Errorf("write audio: %w", err)
			}
			slog.Info("synthesized", "provider", res.Provider, "voice", res.Voice, "bytes", n, "attempts", res.Attempts)
			return nil
		},
	}
	cmd.Flags().StringVar(&voice, "voice", "", "voice id (default tts.fallback_voice)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}
