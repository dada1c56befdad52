package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/voxroom/internal/bus"
	"github.com/nextlevelbuilder/voxroom/internal/speech"
	"github.com/nextlevelbuilder/voxroom/internal/store"
	"github.com/nextlevelbuilder/voxroom/internal/tts"
)

const maxNicknameChars = 64

var manageGuild int64 = discordgo.PermissionManageGuild

func voiceOption(description string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:         discordgo.ApplicationCommandOptionString,
		Name:         "voice_id",
		Description:  description,
		Required:     required,
		Autocomplete: true,
	}
}

// commands is the slash command set.
func commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "tts",
			Description: "Speak text in your current voice channel",
			Options: []*discordgo.ApplicationCommandOption{{
				Type: discordgo.ApplicationCommandOptionString, Name: "text",
				Description: "Text to speak", Required: true,
			}},
		},
		{Name: "leave", Description: "Disconnect the bot from voice in this server"},
		{
			Name:        "voice",
			Description: "View or set your personal TTS voice",
			Options:     []*discordgo.ApplicationCommandOption{voiceOption("Voice ID. Use 'reset' to clear", false)},
		},
		{
			Name:        "voices",
			Description: "Search the voices you can use",
			Options: []*discordgo.ApplicationCommandOption{{
				Type: discordgo.ApplicationCommandOptionString, Name: "query",
				Description: "Name or id to search for",
			}},
		},
		{
			Name:        "set",
			Description: "Personal preferences",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "voice",
					Description: "Set your voice",
					Options:     []*discordgo.ApplicationCommandOption{voiceOption("Voice ID. Use 'reset' to clear", false)},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "nickname",
					Description: "Set the name the bot will speak for you",
					Options: []*discordgo.ApplicationCommandOption{{
						Type: discordgo.ApplicationCommandOptionString, Name: "nickname",
						Description: "Leave empty to view. Use 'reset' to clear",
					}},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "followme",
					Description: "Have the bot auto-join your voice channel",
					Options: []*discordgo.ApplicationCommandOption{{
						Type: discordgo.ApplicationCommandOptionBoolean, Name: "enabled",
						Description: "Enable or disable auto-join",
					}},
				},
			},
		},
		{
			Name:                     "admin",
			Description:              "Server settings (Manage Server)",
			DefaultMemberPermissions: &manageGuild,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "show", Description: "Show the current settings"},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "set",
					Description: "Change settings",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionInteger, Name: "max_tts_chars", Description: "Longest message read aloud (1-2000)"},
						{Type: discordgo.ApplicationCommandOptionString, Name: "default_voice", Description: "Bot voice", Autocomplete: true},
						{Type: discordgo.ApplicationCommandOptionString, Name: "fallback_voice", Description: "Voice used when nothing else fits", Autocomplete: true},
						{Type: discordgo.ApplicationCommandOptionBoolean, Name: "auto_read", Description: "Read voice chat aloud"},
						{Type: discordgo.ApplicationCommandOptionBoolean, Name: "leave_when_alone", Description: "Leave when no one is left"},
						{Type: discordgo.ApplicationCommandOptionBoolean, Name: "greet_on_join", Description: "Greet members who join"},
						{Type: discordgo.ApplicationCommandOptionBoolean, Name: "farewell_on_leave", Description: "Say goodbye to members who leave"},
						{Type: discordgo.ApplicationCommandOptionBoolean, Name: "restrict_voices", Description: "Only allow listed voices"},
						{Type: discordgo.ApplicationCommandOptionString, Name: "allowed_voices", Description: "Comma-separated voice ids"},
						{Type: discordgo.ApplicationCommandOptionString, Name: "text_channels", Description: "Comma-separated channel ids to read (empty reads all)"},
					},
				},
			},
		},
	}
}

func (c *Channel) registerCommands() error {
	appID := c.cfg.ApplicationID
	if appID == "" {
		appID = c.botUserID()
	}
	if appID == "" {
		return errors.New("no application id")
	}
	registered, err := c.session.ApplicationCommandBulkOverwrite(appID, c.cfg.DevGuildID, commands())
	if err != nil {
		return err
	}
	slog.Info("discord.commands_registered", "count", len(registered), "guild", c.cfg.DevGuildID)
	return nil
}

// options flattens interaction options by name.
func options(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	out := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, o := range opts {
		out[o.Name] = o
	}
	return out
}

func (c *Channel) reply(i *discordgo.InteractionCreate, text string) {
	err := c.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: text, Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		slog.Debug("discord: interaction reply failed", "error", err)
	}
}

func (c *Channel) onInteraction(ctx context.Context, i *discordgo.InteractionCreate) {
	if i.GuildID == "" || i.Member == nil || i.Member.User == nil {
		return
	}
	switch i.Type {
	case discordgo.InteractionApplicationCommandAutocomplete:
		c.autocomplete(ctx, i)
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		opts := options(data.Options)
		switch data.Name {
		case "tts":
			c.cmdTTS(ctx, i, opts["text"].StringValue())
		case "leave":
			c.disconnect(i.GuildID, "command")
			c.reply(i, "Disconnected.")
		case "voice":
			c.cmdVoice(ctx, i, opts)
		case "voices":
			query := ""
			if o, ok := opts["query"]; ok {
				query = o.StringValue()
			}
			c.cmdVoices(ctx, i, query)
		case "set":
			if len(data.Options) == 0 {
				return
			}
			sub := data.Options[0]
			subOpts := options(sub.Options)
			switch sub.Name {
			case "voice":
				c.cmdVoice(ctx, i, subOpts)
			case "nickname":
				c.cmdNickname(ctx, i, subOpts)
			case "followme":
				c.cmdFollowMe(ctx, i, subOpts)
			}
		case "admin":
			if i.Member.Permissions&discordgo.PermissionManageGuild == 0 {
				c.reply(i, "You need the Manage Server permission.")
				return
			}
			if len(data.Options) == 0 {
				return
			}
			sub := data.Options[0]
			switch sub.Name {
			case "show":
				c.cmdAdminShow(ctx, i)
			case "set":
				c.cmdAdminSet(ctx, i, options(sub.Options))
			}
		}
	}
}

func (c *Channel) cmdTTS(ctx context.Context, i *discordgo.InteractionCreate, text string) {
	user := i.Member.User
	vs, err := c.session.State.VoiceState(i.GuildID, user.ID)
	if err != nil || vs.ChannelID == "" {
		c.reply(i, "Join a voice channel first.")
		return
	}
	if err := c.connect(ctx, i.GuildID, vs.ChannelID); err != nil {
		switch {
		case errors.Is(err, ErrLocked):
			c.reply(i, fmt.Sprintf("I'm currently locked to <#%s>. Try again once it's empty (or use /leave).", c.voice.locked(i.GuildID)))
		case errors.Is(err, ErrConnectCooldown):
			c.reply(i, "I'm still connecting, try again in a few seconds.")
		default:
			c.reply(i, "I couldn't join your voice channel.")
		}
		return
	}

	c.rememberName(ctx, user.ID, i.Member)
	voice, err := c.deps.Prefs.MemberVoice(ctx, i.GuildID, user.ID)
	if err != nil {
		slog.Debug("discord: member voice lookup failed", "user", user.ID, "error", err)
	}
	c.publish(ctx, bus.InboundEvent{
		MessageID:   i.ID,
		SourceID:    user.ID,
		DisplayName: c.spokenName(ctx, user.ID, i.Member),
		RoomID:      i.GuildID,
		Text:        text,
		Origin:      speech.OriginCommand,
		Voice:       voice,
	})
	c.reply(i, "Queued.")
}

func (c *Channel) cmdVoice(ctx context.Context, i *discordgo.InteractionCreate, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	user := i.Member.User
	settings, err := c.deps.Prefs.Guild(ctx, i.GuildID)
	if err != nil {
		c.reply(i, "Settings are unavailable right now.")
		return
	}
	u, err := c.deps.Prefs.User(ctx, user.ID)
	if err != nil {
		c.reply(i, "Preferences are unavailable right now.")
		return
	}
	catalog := c.deps.Prefs.Catalog()

	o, ok := opts["voice_id"]
	if !ok {
		saved := u.VoiceID
		effective := store.MemberVoice(settings, saved, catalog)
		note := ""
		if saved != "" && saved != effective {
			note = fmt.Sprintf("\nNote: your saved voice `%s` isn't allowed here, so I'll use `%s` instead.", saved, effective)
		}
		c.reply(i, fmt.Sprintf("Your voice is %s.%s", voiceLabel(effective, tts.VoiceName(effective)), note))
		return
	}

	requested := strings.TrimSpace(o.StringValue())
	switch {
	case requested == "":
		c.reply(i, "Pick a voice, or run `/voice` to view your current one.")
		return
	case isResetWord(requested):
		u.VoiceID = store.UserDefaultVoice(settings, catalog)
	case requested == settings.DefaultVoice:
		c.reply(i, "That voice is reserved for the bot. Please choose a different voice.")
		return
	case !settings.VoiceAllowed(requested):
		c.reply(i, fmt.Sprintf("`%s` isn't allowed in this server. Ask an admin to allow it.", requested))
		return
	case !tts.IsKnownVoice(requested):
		c.reply(i, fmt.Sprintf("I don't know the voice `%s`. Try `/voices`.", requested))
		return
	default:
		u.VoiceID = requested
	}

	if u.DisplayName == "" {
		u.DisplayName = memberName(i.Member)
	}
	if err := c.deps.Prefs.Store().SaveUser(ctx, u); err != nil {
		slog.Warn("discord: save voice failed", "user", user.ID, "error", err)
		c.reply(i, "Couldn't save your voice, try again later.")
		return
	}
	c.reply(i, fmt.Sprintf("Set your voice to %s.", voiceLabel(u.VoiceID, tts.VoiceName(u.VoiceID))))
}

// allowedVoices filters the catalog by guild rules, hiding the bot voice.
func allowedVoices(settings *store.GuildSettings, voices []tts.Voice) []tts.Voice {
	out := voices[:0:0]
	for _, v := range voices {
		if v.ID != settings.DefaultVoice && settings.VoiceAllowed(v.ID) {
			out = append(out, v)
		}
	}
	return out
}

func (c *Channel) cmdVoices(ctx context.Context, i *discordgo.InteractionCreate, query string) {
	settings, err := c.deps.Prefs.Guild(ctx, i.GuildID)
	if err != nil {
		c.reply(i, "Settings are unavailable right now.")
		return
	}
	voices := allowedVoices(settings, tts.SearchVoices(query, 0))
	if len(voices) == 0 {
		c.reply(i, "No matching voices.")
		return
	}
	var b strings.Builder
	for n, v := range voices {
		line := fmt.Sprintf("`%s` %s\n", v.ID, v.Name)
		if b.Len()+len(line) > 1800 {
			fmt.Fprintf(&b, "...and %d more", len(voices)-n)
			break
		}
		b.WriteString(line)
	}
	c.reply(i, b.String())
}

func (c *Channel) cmdNickname(ctx context.Context, i *discordgo.InteractionCreate, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	user := i.Member.User
	display := memberName(i.Member)
	u, err := c.deps.Prefs.User(ctx, user.ID)
	if err != nil {
		c.reply(i, "Preferences are unavailable right now.")
		return
	}

	o, ok := opts["nickname"]
	if !ok {
		if u.Nickname != "" {
			c.reply(i, fmt.Sprintf("Your nickname is set to `%s` (this is what I'll speak).", u.Nickname))
		} else {
			c.reply(i, fmt.Sprintf("You don't have a nickname set. I'll use your Discord display name (`%s`).\nSet one with `/set nickname <name>`.", display))
		}
		return
	}

	nick := speech.CollapseSpace(o.StringValue())
	var msg string
	switch {
	case nick == "" || isResetWord(nick):
		u.Nickname = ""
		msg = fmt.Sprintf("Cleared your nickname. I'll use your Discord display name (`%s`).", display)
	case len([]rune(nick)) > maxNicknameChars:
		c.reply(i, fmt.Sprintf("Nickname must be %d characters or fewer.", maxNicknameChars))
		return
	default:
		u.Nickname = nick
		msg = fmt.Sprintf("Saved! Your nickname is now `%s`.", nick)
	}
	u.DisplayName = display
	if err := c.deps.Prefs.Store().SaveUser(ctx, u); err != nil {
		slog.Warn("discord: save nickname failed", "user", user.ID, "error", err)
		c.reply(i, "Couldn't save your nickname, try again later.")
		return
	}
	c.reply(i, msg)
}

func (c *Channel) cmdFollowMe(ctx context.Context, i *discordgo.InteractionCreate, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	user := i.Member.User
	u, err := c.deps.Prefs.User(ctx, user.ID)
	if err != nil {
		c.reply(i, "Preferences are unavailable right now.")
		return
	}
	status := func(on bool) string {
		if on {
			return "enabled"
		}
		return "disabled"
	}

	o, ok := opts["enabled"]
	if !ok {
		c.reply(i, fmt.Sprintf("Auto-join is currently `%s` for you.", status(u.AutoJoin)))
		return
	}
	u.AutoJoin = o.BoolValue()
	if u.DisplayName == "" {
		u.DisplayName = memberName(i.Member)
	}
	if err := c.deps.Prefs.Store().SaveUser(ctx, u); err != nil {
		slog.Warn("discord: save followme failed", "user", user.ID, "error", err)
		c.reply(i, "Couldn't save your preference, try again later.")
		return
	}
	c.reply(i, fmt.Sprintf("Auto-join is now `%s` for you.", status(u.AutoJoin)))
}

func formatSettings(g *store.GuildSettings) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Settings**\n")
	fmt.Fprintf(&b, "max_tts_chars: `%d`\n", g.MaxTTSChars)
	fmt.Fprintf(&b, "default_voice: %s\n", voiceLabel(g.DefaultVoice, tts.VoiceName(g.DefaultVoice)))
	fmt.Fprintf(&b, "fallback_voice: %s\n", voiceLabel(g.FallbackVoice, tts.VoiceName(g.FallbackVoice)))
	fmt.Fprintf(&b, "auto_read: `%t`\n", g.AutoReadMessages)
	fmt.Fprintf(&b, "leave_when_alone: `%t`\n", g.LeaveWhenAlone)
	fmt.Fprintf(&b, "greet_on_join: `%t`\n", g.GreetOnJoin)
	fmt.Fprintf(&b, "farewell_on_leave: `%t`\n", g.FarewellOnLeave)
	fmt.Fprintf(&b, "restrict_voices: `%t` (%d allowed)\n", g.RestrictVoices, len(g.AllowedVoiceIDs))
	if len(g.TextChannelIDs) == 0 {
		b.WriteString("text_channels: all\n")
	} else {
		ids := make([]string, len(g.TextChannelIDs))
		for n, id := range g.TextChannelIDs {
			ids[n] = "<#" + id + ">"
		}
		fmt.Fprintf(&b, "text_channels: %s\n", strings.Join(ids, " "))
	}
	return b.String()
}

func (c *Channel) cmdAdminShow(ctx context.Context, i *discordgo.InteractionCreate) {
	settings, err := c.deps.Prefs.Guild(ctx, i.GuildID)
	if err != nil {
		c.reply(i, "Settings are unavailable right now.")
		return
	}
	c.reply(i, formatSettings(settings))
}

func splitIDs(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// patchFromOptions builds a settings patch from /admin set options.
func patchFromOptions(opts map[string]*discordgo.ApplicationCommandInteractionDataOption) store.GuildPatch {
	var p store.GuildPatch
	str := func(name string) *string {
		if o, ok := opts[name]; ok {
			v := o.StringValue()
			return &v
		}
		return nil
	}
	flag := func(name string) *bool {
		if o, ok := opts[name]; ok {
			v := o.BoolValue()
			return &v
		}
		return nil
	}
	if o, ok := opts["max_tts_chars"]; ok {
		v := int(o.IntValue())
		p.MaxTTSChars = &v
	}
	p.DefaultVoice = str("default_voice")
	p.FallbackVoice = str("fallback_voice")
	p.AutoReadMessages = flag("auto_read")
	p.LeaveWhenAlone = flag("leave_when_alone")
	p.GreetOnJoin = flag("greet_on_join")
	p.FarewellOnLeave = flag("farewell_on_leave")
	p.RestrictVoices = flag("restrict_voices")
	if s := str("allowed_voices"); s != nil {
		ids := splitIDs(*s)
		p.AllowedVoiceIDs = &ids
	}
	if s := str("text_channels"); s != nil {
		ids := splitIDs(*s)
		p.TextChannelIDs = &ids
	}
	return p
}

func (c *Channel) cmdAdminSet(ctx context.Context, i *discordgo.InteractionCreate, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	if len(opts) == 0 {
		c.reply(i, "Nothing to change. Pass at least one option.")
		return
	}
	current, err := c.deps.Prefs.Guild(ctx, i.GuildID)
	if err != nil {
		c.reply(i, "Settings are unavailable right now.")
		return
	}
	updated, err := patchFromOptions(opts).Apply(current)
	if err != nil {
		var ve *store.ValidationError
		if errors.As(err, &ve) {
			c.reply(i, fmt.Sprintf("Invalid `%s`: %s", ve.Field, ve.Reason))
			return
		}
		c.reply(i, "Invalid settings: "+err.Error())
		return
	}
	if err := c.deps.Prefs.Store().SaveGuild(ctx, updated); err != nil {
		slog.Warn("discord: save guild settings failed", "guild", i.GuildID, "error", err)
		c.reply(i, "Couldn't save settings, try again later.")
		return
	}
	slog.Info("discord.settings_updated", "guild", i.GuildID, "by", i.Member.User.ID)
	c.reply(i, "Saved.\n"+formatSettings(updated))
}

// autocomplete suggests voice ids for the focused option.
func (c *Channel) autocomplete(ctx context.Context, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	focused := findFocused(data.Options)
	if focused == nil {
		return
	}

	var voices []tts.Voice
	search := tts.SearchVoices(focused.StringValue(), 0)
	if settings, err := c.deps.Prefs.Guild(ctx, i.GuildID); err == nil {
		if data.Name == "admin" {
			voices = search
		} else {
			voices = allowedVoices(settings, search)
		}
	}
	if len(voices) > 25 {
		voices = voices[:25]
	}
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(voices))
	for _, v := range voices {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  speech.Truncate(fmt.Sprintf("%s (%s)", v.Name, v.ID), 100, ""),
			Value: v.ID,
		})
	}
	err := c.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	})
	if err != nil {
		slog.Debug("discord: autocomplete failed", "error", err)
	}
}

func findFocused(opts []*discordgo.ApplicationCommandInteractionDataOption) *discordgo.ApplicationCommandInteractionDataOption {
	for _, o := range opts {
		if o.Focused {
			return o
		}
		if f := findFocused(o.Options); f != nil {
			return f
		}
	}
	return nil
}
