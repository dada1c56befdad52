package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/voxroom/internal/notify"
)

// messageSender is the part of *discordgo.Session used to post notices.
type messageSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Notifier posts room notices into the text chat of the voice channel the
// bot is locked to in that guild.
type Notifier struct {
	sender  messageSender
	channel func(room string) string
}

// Notifier returns a notifier bound to this channel's session.
func (c *Channel) Notifier() *Notifier {
	return &Notifier{sender: c.session, channel: c.voice.noticeChannel}
}

// Notify implements notify.Notifier.
func (n *Notifier) Notify(ctx context.Context, note notify.Notice) error {
	channelID := n.channel(note.Room)
	if channelID == "" {
		return fmt.Errorf("discord: no channel for room %s", note.Room)
	}
	_, err := n.sender.ChannelMessageSend(channelID, note.Text, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord: post notice to %s: %w", channelID, err)
	}
	return nil
}

// noticeChannel is the channel notices for guildID go to: the locked
// channel, else the last one joined.
func (m *voiceManager) noticeChannel(guildID string) string {
	gv := m.guild(guildID)
	gv.mu.Lock()
	defer gv.mu.Unlock()
	if gv.channelID != "" {
		return gv.channelID
	}
	return gv.lastChannel
}
