package discord

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

var (
	// ErrLocked means the bot is already in another voice channel of the guild.
	ErrLocked = errors.New("locked to another voice channel")
	// ErrConnectCooldown means a connect was attempted too recently.
	ErrConnectCooldown = errors.New("voice connect cooldown")
)

// DefaultConnectCooldown spaces voice connect attempts per guild.
const DefaultConnectCooldown = 5 * time.Second

// voiceJoiner is the part of *discordgo.Session used to join voice.
type voiceJoiner interface {
	ChannelVoiceJoin(gID, cID string, mute, deaf bool) (*discordgo.VoiceConnection, error)
}

// guildVoice is the bot's voice presence in one guild. mu serializes
// connects and disconnects for the guild.
type guildVoice struct {
	mu          sync.Mutex
	vc          *discordgo.VoiceConnection
	channelID   string // channel the bot is locked to
	lastChannel string // remembered for reconnects until an explicit leave
	lastAttempt time.Time
}

// voiceManager tracks one voice connection per guild. The guild id is the
// room id of the dispatch pipeline.
type voiceManager struct {
	joiner     voiceJoiner
	disconnect func(*discordgo.VoiceConnection) error
	cooldown   time.Duration
	now        func() time.Time

	mu     sync.Mutex
	guilds map[string]*guildVoice
}

func newVoiceManager(j voiceJoiner, cooldown time.Duration) *voiceManager {
	if cooldown <= 0 {
		cooldown = DefaultConnectCooldown
	}
	return &voiceManager{
		joiner:     j,
		disconnect: func(vc *discordgo.VoiceConnection) error { return vc.Disconnect() },
		cooldown:   cooldown,
		now:        time.Now,
		guilds:     make(map[string]*guildVoice),
	}
}

func (m *voiceManager) guild(id string) *guildVoice {
	m.mu.Lock()
	defer m.mu.Unlock()
	gv, ok := m.guilds[id]
	if !ok {
		gv = &guildVoice{}
		m.guilds[id] = gv
	}
	return gv
}

func ready(vc *discordgo.VoiceConnection) bool {
	if vc == nil {
		return false
	}
	vc.RLock()
	defer vc.RUnlock()
	return vc.Ready
}

// ensure connects the bot to channelID in guildID unless it is already
// there. It reports whether a new connection was made.
func (m *voiceManager) ensure(guildID, channelID string) (bool, error) {
	gv := m.guild(guildID)
	gv.mu.Lock()
	defer gv.mu.Unlock()

	if gv.vc != nil && ready(gv.vc) {
		if gv.channelID == channelID {
			return false, nil
		}
		return false, fmt.Errorf("%w: <#%s>", ErrLocked, gv.channelID)
	}

	now := m.now()
	if !gv.lastAttempt.IsZero() && now.Sub(gv.lastAttempt) < m.cooldown {
		wait := m.cooldown - now.Sub(gv.lastAttempt)
		slog.Info("voice.connect_cooldown", "guild", guildID, "channel", channelID, "wait", wait.Round(100*time.Millisecond))
		return false, ErrConnectCooldown
	}
	gv.lastAttempt = now

	slog.Info("voice.connecting", "guild", guildID, "channel", channelID)
	vc, err := m.joiner.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		gv.vc, gv.channelID = nil, ""
		if vc != nil {
			_ = m.disconnect(vc)
		}
		return false, fmt.Errorf("join voice %s/%s: %w", guildID, channelID, err)
	}
	gv.vc = vc
	gv.channelID = channelID
	gv.lastChannel = channelID
	return true, nil
}

// leave drops the guild's connection. forget clears the remembered channel
// so the health loop will not rejoin it.
func (m *voiceManager) leave(guildID, reason string, forget bool) {
	gv := m.guild(guildID)
	gv.mu.Lock()
	defer gv.mu.Unlock()

	if gv.vc != nil {
		slog.Info("voice.disconnecting", "guild", guildID, "reason", reason)
		if err := m.disconnect(gv.vc); err != nil {
			slog.Debug("voice.disconnect_failed", "guild", guildID, "error", err)
		}
	}
	gv.vc = nil
	gv.channelID = ""
	if forget {
		gv.lastChannel = ""
	}
}

// current returns the channel the bot is connected to in guildID.
func (m *voiceManager) current(guildID string) (string, bool) {
	gv := m.guild(guildID)
	gv.mu.Lock()
	defer gv.mu.Unlock()
	if gv.vc == nil || !ready(gv.vc) {
		return "", false
	}
	return gv.channelID, true
}

// locked returns the channel the guild is locked to, connected or not.
func (m *voiceManager) locked(guildID string) string {
	gv := m.guild(guildID)
	gv.mu.Lock()
	defer gv.mu.Unlock()
	return gv.channelID
}

// VoiceConnection implements playback.VoiceConnections.
func (m *voiceManager) VoiceConnection(room string) (*discordgo.VoiceConnection, bool) {
	gv := m.guild(room)
	gv.mu.Lock()
	vc := gv.vc
	gv.mu.Unlock()
	if !ready(vc) {
		return nil, false
	}
	return vc, true
}

// reconnectTarget is a guild that lost its connection but remembers a channel.
type reconnectTarget struct {
	guildID   string
	channelID string
}

// lost lists guilds whose connection dropped without an explicit leave.
func (m *voiceManager) lost() []reconnectTarget {
	m.mu.Lock()
	ids := make([]string, 0, len(m.guilds))
	for id := range m.guilds {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var out []reconnectTarget
	for _, id := range ids {
		gv := m.guild(id)
		gv.mu.Lock()
		if gv.lastChannel != "" && !ready(gv.vc) {
			out = append(out, reconnectTarget{guildID: id, channelID: gv.lastChannel})
		}
		gv.mu.Unlock()
	}
	return out
}

// all lists guilds with a live connection.
func (m *voiceManager) all() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id, gv := range m.guilds {
		gv.mu.Lock()
		if gv.vc != nil {
			out = append(out, id)
		}
		gv.mu.Unlock()
	}
	return out
}
