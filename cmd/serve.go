package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/voxroom/internal/bus"
	"github.com/nextlevelbuilder/voxroom/internal/channels/discord"
	"github.com/nextlevelbuilder/voxroom/internal/config"
	httpapi "github.com/nextlevelbuilder/voxroom/internal/http"
	"github.com/nextlevelbuilder/voxroom/internal/notify"
	"github.com/nextlevelbuilder/voxroom/internal/playback"
	"github.com/nextlevelbuilder/voxroom/internal/ratelimit"
	"github.com/nextlevelbuilder/voxroom/internal/room"
	"github.com/nextlevelbuilder/voxroom/internal/store"
	"github.com/nextlevelbuilder/voxroom/internal/store/pg"
	redisstore "github.com/nextlevelbuilder/voxroom/internal/store/redis"
	"github.com/nextlevelbuilder/voxroom/internal/store/sqlite"
	"github.com/nextlevelbuilder/voxroom/internal/telemetry"
	"github.com/nextlevelbuilder/voxroom/internal/tts"
	"github.com/nextlevelbuilder/voxroom/pkg/protocol"
)

type serveOptions struct {
	dryRun bool     // no Discord: audio goes to a memory sink
	rooms  []string // rooms to open at startup in dry-run mode
}

func serveCmd() *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot and the local HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts)
		},
	}
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "do not connect to Discord; play into memory (use with the HTTP API)")
	cmd.Flags().StringSliceVar(&opts.rooms, "room", nil, "room id to open at startup in dry-run mode (repeatable)")
	return cmd
}

func runServe(opts serveOptions) error {
	cfgPath := resolveConfigPath()
	cfg := loadConfig()
	level := setupLogging(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Setup(ctx, cfg.Telemetry.Setup(Version))
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown", "error", err)
		}
	}()

	prefs, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer prefs.Close()

	// Sessions read their knobs from the latest loaded config.
	var live atomic.Pointer[config.Config]
	live.Store(cfg)
	if cfgPath != "" {
		w, err := config.NewWatcher(cfgPath)
		if err != nil {
			slog.Warn("config watcher unavailable", "error", err)
		} else {
			w.OnChange(func(c *config.Config) {
				live.Store(c)
				level.Set(parseLevel(c.Log.Level))
			})
			if err := w.Start(); err != nil {
				slog.Warn("config watcher failed to start", "error", err)
			} else {
				defer w.Stop()
			}
		}
	}

	mb := bus.New(cfg.Pipeline.BusBuffer)
	resolver := store.NewResolver(prefs, cfg.TTS.FallbackVoice, voiceIDs())

	var (
		ch    *discord.Channel
		sink  playback.Sink
		inner notify.Notifier
	)
	if opts.dryRun {
		mem := playback.NewMemorySink()
		mem.FrameDelay = playback.FrameDuration
		sink = mem
		inner = notify.NotifierFunc(func(_ context.Context, n notify.Notice) error {
			slog.Info("room notice", "room", n.Room, "kind", n.Kind, "text", n.Text)
			return nil
		})
	} else {
		source, err := cfg.ResolveToken()
		if err != nil {
			return err
		}
		slog.Debug("discord token loaded", "source", source)
		ch, err = discord.New(discord.Config{
			Token:           cfg.Discord.Token,
			ApplicationID:   cfg.Discord.ApplicationID,
			DevGuildID:      cfg.Discord.DevGuildID,
			RegisterCommand: cfg.Discord.AutoRegister,
			ReadBotMessages: cfg.Discord.ReadBotMessage,
			HealthInterval:  time.Duration(cfg.Discord.HealthCheckMS) * time.Millisecond,
			ConnectCooldown: time.Duration(cfg.Discord.ConnectWaitMS) * time.Millisecond,
			GreetVolume:     cfg.Playback.GreetVolume,
		})
		if err != nil {
			return err
		}
		sink = playback.NewDiscordSink(ch.Voices(), cfg.Playback.SinkConfig())
		inner = ch.Notifier()
	}

	notes := notify.NewAsync(inner, cfg.Pipeline.NotifyBuffer)
	go notes.Run(ctx)

	// One client serves every room so breakers and voice health are shared.
	synth := sync.OnceValues(func() (*tts.Client, error) {
		providers, err := cfg.TTS.BuildProviders(http.DefaultClient)
		if err != nil {
			return nil, err
		}
		return tts.NewClient(cfg.TTS.ClientConfig(tel.Metrics.SynthAttempt), providers...)
	})

	registry := room.NewRegistry(ctx, room.Deps{
		NewSynthesizer: func(string) (room.Synthesizer, error) {
			c, err := synth()
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		Sink:     sink,
		Notes:    notes,
		Observer: room.Observers{room.BusObserver{Bus: mb}, tel.Metrics},
	})
	pipeline := room.NewPipeline(registry, resolver, cfg.Pipeline.PipelineOptions())

	dedupe := bus.NewDedupeCache(time.Duration(cfg.Pipeline.DedupeTTLMS)*time.Millisecond, cfg.Pipeline.DedupeSize)
	go room.NewDispatcher(mb, pipeline, dedupe).Run(ctx)

	if ch != nil {
		err := ch.Start(ctx, discord.Deps{
			Bus:      mb,
			Pipeline: pipeline,
			Prefs:    resolver,
			SessionOptions: func(channel string) room.SessionOptions {
				return live.Load().Pipeline.SessionOptions(channel)
			},
		})
		if err != nil {
			return err
		}
	} else {
		for _, id := range opts.rooms {
			if _, err := registry.Ensure(ctx, id, live.Load().Pipeline.SessionOptions("")); err != nil {
				return err
			}
		}
		slog.Info("dry run: discord disabled", "rooms", len(opts.rooms))
	}

	if cfg.HTTP.Enabled {
		limiter := ratelimit.NewLimiter(ctx, cfg.HTTP.RPM, cfg.HTTP.Burst)
		srv := httpapi.NewServer(httpapi.Config{
			Token:   cfg.HTTP.Token,
			Limiter: limiter,
			Metrics: tel.Handler,
			Version: Version,
		}, pipeline, mb)

		if cfg.HTTP.Listen != "" {
			ln, err := net.Listen("tcp", cfg.HTTP.Listen)
			if err != nil {
				return fmt.Errorf("http listen %s: %w", cfg.HTTP.Listen, err)
			}
			go func() {
				if err := srv.Serve(ctx, ln); err != nil {
					slog.Error("http api stopped", "error", err)
				}
			}()
		}
		if cfg.HTTP.Tailscale {
			if stopTS := initTailscale(ctx, cfg, srv.Handler()); stopTS != nil {
				defer stopTS()
			}
		}
	}

	slog.Info("voxroom running", "version", Version, "providers", cfg.TTS.Providers, "dry_run", opts.dryRun)
	<-ctx.Done()
	slog.Info("shutting down")

	mb.Broadcast(bus.Event{Name: protocol.EventShutdown})
	if ch != nil {
		if err := ch.Stop(); err != nil {
			slog.Warn("discord stop", "error", err)
		}
	}
	registry.ReleaseAll()
	if n := notes.Dropped(); n > 0 {
		slog.Info("notices dropped while busy", "count", n)
	}
	return nil
}

// openStore opens the configured preference store, wrapped in the read
// cache when enabled.
func openStore(ctx context.Context, sc store.StoreConfig) (store.PreferenceStore, error) {
	var base store.PreferenceStore
	switch sc.Driver {
	case "postgres":
		db, err := pg.OpenDB(sc.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(db); err != nil {
			db.Close()
			return nil, err
		}
		base = pg.NewPGPreferenceStore(db)
	default:
		if dir := filepath.Dir(sc.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		s, err := sqlite.Open(sc.SQLitePath)
		if err != nil {
			return nil, err
		}
		base = s
	}

	if sc.CacheSize <= 0 {
		return base, nil
	}

	var inv store.Invalidator
	var closeInv func() error
	if sc.RedisURL != "" {
		r, err := redisstore.New(ctx, sc.RedisURL)
		if err != nil {
			slog.Warn("redis unavailable, cache invalidation stays local", "error", err)
		} else {
			inv, closeInv = r, r.Close
		}
	}

	cached := store.NewCachedStore(base, sc.CacheSize, sc.CacheTTL, inv)
	if inv != nil {
		go func() {
			if err := cached.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Warn("cache invalidation listener stopped", "error", err)
			}
		}()
	}
	return &closingStore{CachedStore: cached, extra: closeInv}, nil
}

// closingStore also closes the invalidation client.
type closingStore struct {
	*store.CachedStore
	extra func() error
}

func (s *closingStore) Close() error {
	err := s.CachedStore.Close()
	if s.extra != nil {
		err = errors.Join(err, s.extra())
	}
	return err
}

func voiceIDs() []string {
	voices := tts.AllVoices()
	ids := make([]string, len(voices))
	for i, v := range voices {
		ids[i] = v.ID
	}
	return ids
}
