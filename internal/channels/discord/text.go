package discord

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/voxroom/internal/speech"
)

// timeOfDayGreeting picks a greeting for the local hour.
func timeOfDayGreeting(t time.Time) string {
	switch h := t.Hour(); {
	case h >= 5 && h < 12:
		return "Good morning"
	case h >= 12 && h < 18:
		return "Good afternoon"
	default:
		return "Good evening"
	}
}

// greeting is spoken when a member joins the bot's channel. Members already
// seen today get a "Welcome back".
func greeting(name string, seenToday bool, pick func(n int) int) string {
	if seenToday {
		return "Welcome back " + name
	}
	options := []string{
		"Hello " + name,
		"Hey " + name,
		"Good to see you " + name,
		name + " has joined the chat",
		timeOfDayGreeting(time.Now()) + ", " + name,
	}
	return options[pick(len(options))]
}

func farewell(name string, pick func(n int) int) string {
	options := []string{"See ya", "Bye", "Until next time"}
	return options[pick(len(options))] + " " + name
}

func randomPick(n int) int { return rand.IntN(n) }

// dayKey is the member_seen date key.
func dayKey(t time.Time) string { return t.Format("2006-01-02") }

// mentionNames maps mention tokens in m to readable names so they survive
// normalization as words.
func mentionNames(m *discordgo.Message, state *discordgo.State) map[string]string {
	names := make(map[string]string, len(m.Mentions)+len(m.MentionRoles))
	for _, u := range m.Mentions {
		name := u.GlobalName
		if name == "" {
			name = u.Username
		}
		if state != nil && m.GuildID != "" {
			if member, err := state.Member(m.GuildID, u.ID); err == nil && member.Nick != "" {
				name = member.Nick
			}
		}
		names["<@"+u.ID+">"] = name
		names["<@!"+u.ID+">"] = name
	}
	if state != nil && m.GuildID != "" {
		for _, id := range m.MentionRoles {
			if role, err := state.Role(m.GuildID, id); err == nil {
				names["<@&"+id+">"] = role.Name
			}
		}
	}
	return names
}

// chatText turns a voice-chat message into what should be spoken and
// whether it is a status phrase (which is never attributed).
func chatText(m *discordgo.Message, speaker string, state *discordgo.State) (string, bool) {
	attachments := make([]speech.Attachment, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		attachments = append(attachments, speech.Attachment{Filename: a.Filename, ContentType: a.ContentType})
	}
	embeds := make([]string, 0, len(m.Embeds))
	for _, e := range m.Embeds {
		embeds = append(embeds, string(e.Type))
	}
	if kind := speech.ClassifyMedia(m.Content, attachments, embeds); kind != speech.MediaNone {
		return speech.StatusPhrase(speaker, kind), true
	}
	return speech.ReplaceMentions(m.Content, mentionNames(m, state)), false
}

func memberName(m *discordgo.Member) string {
	if m == nil {
		return ""
	}
	if m.Nick != "" {
		return m.Nick
	}
	if m.User != nil {
		if m.User.GlobalName != "" {
			return m.User.GlobalName
		}
		return m.User.Username
	}
	return ""
}

func voiceLabel(id, name string) string {
	if name == "" || name == id {
		return fmt.Sprintf("`%s`", id)
	}
	return fmt.Sprintf("`%s` (%s)", id, name)
}

// isResetWord reports whether an option value asks to clear a preference.
func isResetWord(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "reset", "clear", "default":
		return true
	}
	return false
}
