// Package discord connects the dispatch pipeline to a Discord bot: it reads
// voice-channel chat into the bus, manages one voice connection per guild,
// greets members and serves the slash commands.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/voxroom/internal/bus"
	"github.com/nextlevelbuilder/voxroom/internal/playback"
	"github.com/nextlevelbuilder/voxroom/internal/room"
	"github.com/nextlevelbuilder/voxroom/internal/store"
)

// Config configures the Discord channel.
type Config struct {
	Token           string
	ApplicationID   string // defaults to the logged-in bot user
	DevGuildID      string // register commands to this guild only
	RegisterCommand bool
	ReadBotMessages bool
	HealthInterval  time.Duration // default 20s
	ConnectCooldown time.Duration // default 5s
	GreetDelay      time.Duration // default 2s
	GreetVolume     float64       // default 0.8
}

// Deps are the pipeline pieces the channel drives.
type Deps struct {
	Bus      *bus.MessageBus
	Pipeline *room.Pipeline
	Prefs    *store.Resolver
	// SessionOptions returns the options for a new room session in the
	// given voice channel. It is read on every connect so config reloads
	// apply to the next session.
	SessionOptions func(channel string) room.SessionOptions
}

// Channel is the Discord bot.
type Channel struct {
	cfg     Config
	deps    Deps
	session *discordgo.Session
	voice   *voiceManager

	mu       sync.Mutex
	botID    string
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	handlers []func()
}

// New creates the channel and its gateway session. It does not connect
// until Start.
func New(cfg Config) (*Channel, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord: token is required")
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = 20 * time.Second
	}
	if cfg.GreetDelay <= 0 {
		cfg.GreetDelay = 2 * time.Second
	}
	if cfg.GreetVolume <= 0 {
		cfg.GreetVolume = 0.8
	}

	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsMessageContent
	s.StateEnabled = true

	return &Channel{
		cfg:     cfg,
		session: s,
		voice:   newVoiceManager(s, cfg.ConnectCooldown),
	}, nil
}

// Name returns the channel name.
func (c *Channel) Name() string { return "discord" }

// Voices exposes the per-guild voice connections to the playback sink.
func (c *Channel) Voices() playback.VoiceConnections { return c.voice }

// Session returns the underlying discordgo session.
func (c *Channel) Session() *discordgo.Session { return c.session }

// Start opens the gateway, registers handlers and slash commands and starts
// the voice health loop.
func (c *Channel) Start(ctx context.Context, deps Deps) error {
	if deps.Bus == nil || deps.Pipeline == nil || deps.Prefs == nil || deps.SessionOptions == nil {
		return errors.New("discord: bus, pipeline, prefs and session options are required")
	}
	c.deps = deps

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.handlers = append(c.handlers,
		c.session.AddHandler(c.onReady),
		c.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) { c.onMessage(ctx, m) }),
		c.session.AddHandler(func(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) { c.onVoiceState(ctx, vs) }),
		c.session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) { c.onInteraction(ctx, i) }),
	)
	c.mu.Unlock()

	if err := c.session.Open(); err != nil {
		cancel()
		return fmt.Errorf("discord: open gateway: %w", err)
	}

	if c.cfg.RegisterCommand {
		if err := c.registerCommands(); err != nil {
			slog.Warn("discord.commands_register_failed", "error", err)
		}
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.healthLoop(ctx)
	}()
	slog.Info("discord channel started", "bot", c.botUserID())
	return nil
}

// Stop leaves all voice channels and closes the gateway.
func (c *Channel) Stop() error {
	c.mu.Lock()
	cancel := c.cancel
	handlers := c.handlers
	c.handlers = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, remove := range handlers {
		remove()
	}
	c.wg.Wait()

	for _, guildID := range c.voice.all() {
		if c.deps.Pipeline != nil {
			c.deps.Pipeline.Registry().Release(guildID)
		}
		c.voice.leave(guildID, "shutdown", false)
	}
	return c.session.Close()
}

func (c *Channel) onReady(s *discordgo.Session, r *discordgo.Ready) {
	c.mu.Lock()
	c.botID = r.User.ID
	c.mu.Unlock()
	slog.Info("discord.ready", "user", r.User.Username, "guilds", len(r.Guilds))
}

func (c *Channel) botUserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.botID == "" && c.session.State != nil && c.session.State.User != nil {
		c.botID = c.session.State.User.ID
	}
	return c.botID
}

// connect joins channelID in guildID and makes sure the room has a session.
func (c *Channel) connect(ctx context.Context, guildID, channelID string) error {
	if _, err := c.voice.ensure(guildID, channelID); err != nil {
		return err
	}
	if _, err := c.deps.Pipeline.Registry().Ensure(ctx, guildID, c.deps.SessionOptions(channelID)); err != nil {
		c.voice.leave(guildID, "session_failed", false)
		return err
	}
	return nil
}

// disconnect tears down the room session, then leaves voice. Explicit
// leaves (command, alone) forget the channel so the health loop stays out.
func (c *Channel) disconnect(guildID, reason string) {
	c.deps.Pipeline.Registry().Release(guildID)
	c.voice.leave(guildID, reason, reason == "command" || reason == "alone")
}

// healthLoop rejoins channels whose connection dropped while people are
// still in them.
func (c *Channel) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, t := range c.voice.lost() {
			if c.humans(t.guildID, t.channelID) == 0 {
				continue
			}
			c.deps.Pipeline.Registry().Release(t.guildID)
			if err := c.connect(ctx, t.guildID, t.channelID); err != nil {
				slog.Warn("voice.health_reconnect_failed", "guild", t.guildID, "channel", t.channelID, "error", err)
				continue
			}
			slog.Info("voice.health_reconnected", "guild", t.guildID, "channel", t.channelID)
		}
	}
}

// humans counts non-bot members in a voice channel.
func (c *Channel) humans(guildID, channelID string) int {
	g, err := c.session.State.Guild(guildID)
	if err != nil {
		return 0
	}
	n := 0
	for _, vs := range g.VoiceStates {
		if vs.ChannelID == channelID && !c.isBot(guildID, vs.UserID, vs.Member) {
			n++
		}
	}
	return n
}

func (c *Channel) isBot(guildID, userID string, member *discordgo.Member) bool {
	if member != nil && member.User != nil {
		return member.User.Bot
	}
	if m, err := c.session.State.Member(guildID, userID); err == nil && m.User != nil {
		return m.User.Bot
	}
	return userID == c.botUserID()
}

// spokenName is the member's nickname preference, else their display name.
func (c *Channel) spokenName(ctx context.Context, userID string, member *discordgo.Member) string {
	display := memberName(member)
	u, err := c.deps.Prefs.User(ctx, userID)
	if err != nil {
		return display
	}
	if u.Nickname != "" {
		return u.Nickname
	}
	if display == "" {
		return u.DisplayName
	}
	return display
}

// rememberName keeps the stored display name current.
func (c *Channel) rememberName(ctx context.Context, userID string, member *discordgo.Member) {
	name := memberName(member)
	if name == "" {
		return
	}
	u, err := c.deps.Prefs.User(ctx, userID)
	if err != nil || u.DisplayName == name {
		return
	}
	u.DisplayName = name
	if err := c.deps.Prefs.Store().SaveUser(ctx, u); err != nil {
		slog.Debug("discord: save display name failed", "user", userID, "error", err)
	}
}
