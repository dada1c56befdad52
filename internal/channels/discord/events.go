package discord

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/voxroom/internal/bus"
	"github.com/nextlevelbuilder/voxroom/internal/speech"
	"github.com/nextlevelbuilder/voxroom/internal/store"
)

// isVoiceChannel reports whether channelID is a voice or stage channel,
// whose built-in text chat is what the bot reads aloud.
func (c *Channel) isVoiceChannel(channelID string) bool {
	ch, err := c.session.State.Channel(channelID)
	if err != nil {
		ch, err = c.session.Channel(channelID)
		if err != nil {
			return false
		}
	}
	return ch.Type == discordgo.ChannelTypeGuildVoice || ch.Type == discordgo.ChannelTypeGuildStageVoice
}

// onMessage reads chat typed in a voice channel's text chat by a member who
// is in that voice channel, joining it if needed.
func (c *Channel) onMessage(ctx context.Context, m *discordgo.MessageCreate) {
	if m.Author == nil || m.GuildID == "" || m.Author.ID == c.botUserID() {
		return
	}
	if m.Author.Bot && !c.cfg.ReadBotMessages {
		return
	}
	if strings.TrimSpace(m.Content) == "" && len(m.Attachments) == 0 {
		return
	}
	if !c.isVoiceChannel(m.ChannelID) {
		return
	}

	settings, err := c.deps.Prefs.Guild(ctx, m.GuildID)
	if err != nil {
		slog.Warn("discord: guild settings unavailable", "guild", m.GuildID, "error", err)
		return
	}
	if !settings.ReadsChannel(m.ChannelID) {
		return
	}

	vs, err := c.session.State.VoiceState(m.GuildID, m.Author.ID)
	if err != nil || vs.ChannelID != m.ChannelID {
		return
	}

	if err := c.connect(ctx, m.GuildID, m.ChannelID); err != nil {
		slog.Debug("discord: not connected for message", "guild", m.GuildID, "channel", m.ChannelID, "error", err)
		return
	}

	member := m.Member
	if member != nil && member.User == nil {
		member.User = m.Author
	}
	c.rememberName(ctx, m.Author.ID, member)
	name := c.spokenName(ctx, m.Author.ID, member)
	if name == "" {
		name = m.Author.Username
	}

	text, status := chatText(m.Message, name, c.session.State)
	text = speech.Truncate(speech.CollapseSpace(text), settings.MaxTTSChars, "")

	voice, err := c.deps.Prefs.MemberVoice(ctx, m.GuildID, m.Author.ID)
	if err != nil {
		slog.Debug("discord: member voice lookup failed", "user", m.Author.ID, "error", err)
	}

	c.publish(ctx, bus.InboundEvent{
		MessageID:   m.ID,
		SourceID:    m.Author.ID,
		DisplayName: name,
		RoomID:      m.GuildID,
		Text:        text,
		Origin:      speech.OriginChat,
		Voice:       voice,
		Announce:    !status,
	})
}

func (c *Channel) publish(ctx context.Context, ev bus.InboundEvent) {
	if err := c.deps.Bus.PublishInbound(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("discord: inbound publish failed", "room", ev.RoomID, "error", err)
	}
}

// onVoiceState handles follow-me, greetings, farewells and leaving when
// the bot is alone.
func (c *Channel) onVoiceState(ctx context.Context, vs *discordgo.VoiceStateUpdate) {
	if vs.GuildID == "" {
		return
	}
	var before string
	if vs.BeforeUpdate != nil {
		before = vs.BeforeUpdate.ChannelID
	}
	after := vs.ChannelID

	if vs.UserID == c.botUserID() {
		if before != "" && after == "" {
			c.disconnect(vs.GuildID, "disconnected")
		}
		return
	}
	if c.isBot(vs.GuildID, vs.UserID, vs.Member) {
		return
	}

	botChannel, connected := c.voice.current(vs.GuildID)

	if after != "" && before != after {
		c.followMe(ctx, vs, botChannel, connected)
		botChannel, connected = c.voice.current(vs.GuildID)
	}

	if connected {
		joined := after == botChannel && before != botChannel
		left := before == botChannel && after != botChannel
		if joined || left {
			c.greetOrFarewell(ctx, vs, joined)
		}
		if left {
			c.leaveIfAlone(ctx, vs.GuildID, botChannel)
		}
	}
}

// followMe joins members who opted in, unless the bot would abandon people
// it is already with.
func (c *Channel) followMe(ctx context.Context, vs *discordgo.VoiceStateUpdate, botChannel string, connected bool) {
	u, err := c.deps.Prefs.User(ctx, vs.UserID)
	if err != nil || !u.AutoJoin {
		return
	}
	target := vs.ChannelID
	if connected {
		if botChannel == target || c.humans(vs.GuildID, botChannel) > 0 {
			return
		}
		c.disconnect(vs.GuildID, "follow_me")
	}
	if err := c.connect(ctx, vs.GuildID, target); err != nil {
		slog.Debug("discord: follow-me connect failed", "guild", vs.GuildID, "channel", target, "error", err)
	}
}

func (c *Channel) greetOrFarewell(ctx context.Context, vs *discordgo.VoiceStateUpdate, joined bool) {
	settings, err := c.deps.Prefs.Guild(ctx, vs.GuildID)
	if err != nil {
		return
	}
	if joined && !settings.GreetOnJoin || !joined && !settings.FarewellOnLeave {
		return
	}
	name := c.spokenName(ctx, vs.UserID, vs.Member)
	if name == "" {
		return
	}
	voice := store.EffectiveVoice(settings, settings.DefaultVoice)

	if !joined {
		c.say(ctx, vs.GuildID, farewell(name, randomPick), voice)
		return
	}

	prefs := c.deps.Prefs.Store()
	today := dayKey(time.Now())
	last, err := prefs.LastSeen(ctx, vs.GuildID, vs.UserID)
	if err != nil {
		slog.Warn("discord: read member_seen failed", "guild", vs.GuildID, "user", vs.UserID, "error", err)
	}
	text := greeting(name, last == today, randomPick)

	// Give the member's client a moment to connect audio before speaking.
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.GreetDelay):
		}
		if _, ok := c.voice.current(vs.GuildID); !ok {
			return
		}
		c.say(ctx, vs.GuildID, text, voice)
		if err := prefs.MarkSeen(ctx, vs.GuildID, vs.UserID, today); err != nil {
			slog.Warn("discord: write member_seen failed", "guild", vs.GuildID, "user", vs.UserID, "error", err)
		}
	}()
}

// say queues bot-generated speech in a room.
func (c *Channel) say(ctx context.Context, guildID, text, voice string) {
	c.publish(ctx, bus.InboundEvent{
		SourceID:    c.botUserID(),
		DisplayName: "voxroom",
		RoomID:      guildID,
		Text:        text,
		Origin:      speech.OriginSystem,
		Voice:       voice,
		Volume:      c.cfg.GreetVolume,
	})
}

func (c *Channel) leaveIfAlone(ctx context.Context, guildID, channelID string) {
	settings, err := c.deps.Prefs.Guild(ctx, guildID)
	if err != nil || !settings.LeaveWhenAlone {
		return
	}
	if c.humans(guildID, channelID) == 0 {
		c.disconnect(guildID, "alone")
	}
}
