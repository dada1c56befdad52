package discord

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/voxroom/internal/notify"
	"github.com/nextlevelbuilder/voxroom/internal/store"
	"github.com/nextlevelbuilder/voxroom/internal/tts"
)

type fakeJoiner struct {
	calls int
	err   error
}

func (f *fakeJoiner) ChannelVoiceJoin(gID, cID string, mute, deaf bool) (*discordgo.VoiceConnection, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &discordgo.VoiceConnection{GuildID: gID, ChannelID: cID, Ready: true}, nil
}

func newTestManager(j voiceJoiner) (*voiceManager, *time.Time, *int) {
	m := newVoiceManager(j, 5*time.Second)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	disconnects := 0
	m.disconnect = func(*discordgo.VoiceConnection) error { disconnects++; return nil }
	return m, &now, &disconnects
}

func TestVoiceManager_EnsureAndLock(t *testing.T) {
	j := &fakeJoiner{}
	m, _, _ := newTestManager(j)

	created, err := m.ensure("g", "c1")
	if err != nil || !created {
		t.Fatalf("first ensure = %v, %v", created, err)
	}
	created, err = m.ensure("g", "c1")
	if err != nil || created {
		t.Fatalf("same channel should be a no-op, got %v, %v", created, err)
	}
	if _, err := m.ensure("g", "c2"); !errors.Is(err, ErrLocked) {
		t.Fatalf("other channel err = %v, want ErrLocked", err)
	}
	if j.calls != 1 {
		t.Errorf("join calls = %d, want 1", j.calls)
	}
	if vc, ok := m.VoiceConnection("g"); !ok || vc.ChannelID != "c1" {
		t.Errorf("VoiceConnection = %v, %v", vc, ok)
	}
	if _, ok := m.VoiceConnection("other"); ok {
		t.Error("unknown guild should have no connection")
	}
}

func TestVoiceManager_ConnectCooldown(t *testing.T) {
	j := &fakeJoiner{err: errors.New("gateway timeout")}
	m, now, _ := newTestManager(j)

	if _, err := m.ensure("g", "c"); err == nil {
		t.Fatal("expected join error")
	}
	if _, err := m.ensure("g", "c"); !errors.Is(err, ErrConnectCooldown) {
		t.Fatalf("retry within cooldown err = %v", err)
	}
	*now = now.Add(5 * time.Second)
	j.err = nil
	if created, err := m.ensure("g", "c"); err != nil || !created {
		t.Fatalf("after cooldown = %v, %v", created, err)
	}
	if j.calls != 2 {
		t.Errorf("join calls = %d, want 2", j.calls)
	}
}

func TestVoiceManager_LeaveAndLost(t *testing.T) {
	m, _, disconnects := newTestManager(&fakeJoiner{})
	m.ensure("g1", "c1")
	m.ensure("g2", "c2")

	// a dropped connection is remembered for the health loop
	m.leave("g1", "disconnected", false)
	// an explicit leave is not
	m.leave("g2", "command", true)

	lost := m.lost()
	if len(lost) != 1 || lost[0].guildID != "g1" || lost[0].channelID != "c1" {
		t.Fatalf("lost = %+v", lost)
	}
	if *disconnects != 2 {
		t.Errorf("disconnects = %d", *disconnects)
	}
	if _, ok := m.current("g1"); ok {
		t.Error("g1 should not be connected")
	}
	if got := m.noticeChannel("g1"); got != "c1" {
		t.Errorf("noticeChannel = %q, want last channel", got)
	}
}

type recordSender struct {
	channel, content string
	err              error
}

func (r *recordSender) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	r.channel, r.content = channelID, content
	return &discordgo.Message{}, r.err
}

func TestNotifier(t *testing.T) {
	sender := &recordSender{}
	n := &Notifier{sender: sender, channel: func(room string) string {
		if room == "g" {
			return "c"
		}
		return ""
	}}

	if err := n.Notify(context.Background(), notify.Notice{Room: "g", Text: "2 messages skipped"}); err != nil {
		t.Fatal(err)
	}
	if sender.channel != "c" || sender.content != "2 messages skipped" {
		t.Errorf("sent %q to %q", sender.content, sender.channel)
	}
	if err := n.Notify(context.Background(), notify.Notice{Room: "nowhere"}); err == nil {
		t.Error("expected error for a room without a channel")
	}
}

func TestGreeting(t *testing.T) {
	first := func(int) int { return 0 }
	if got := greeting("Sam", true, first); got != "Welcome back Sam" {
		t.Errorf("seen today: %q", got)
	}
	if got := greeting("Sam", false, first); got != "Hello Sam" {
		t.Errorf("first visit: %q", got)
	}
	if got := farewell("Sam", func(int) int { return 2 }); got != "Until next time Sam" {
		t.Errorf("farewell: %q", got)
	}
}

func TestTimeOfDayGreeting(t *testing.T) {
	tests := []struct {
		hour int
		want string
	}{
		{4, "Good evening"},
		{5, "Good morning"},
		{12, "Good afternoon"},
		{18, "Good evening"},
	}
	for _, tt := range tests {
		at := time.Date(2026, 3, 1, tt.hour, 0, 0, 0, time.Local)
		if got := timeOfDayGreeting(at); got != tt.want {
			t.Errorf("hour %d: %q, want %q", tt.hour, got, tt.want)
		}
	}
}

func TestChatText(t *testing.T) {
	tests := []struct {
		name       string
		msg        *discordgo.Message
		want       string
		wantStatus bool
	}{
		{
			name: "plain",
			msg:  &discordgo.Message{Content: "hello there"},
			want: "hello there",
		},
		{
			name: "mention",
			msg: &discordgo.Message{
				Content:  "hi <@42>",
				Mentions: []*discordgo.User{{ID: "42", Username: "bob"}},
			},
			want: "hi bob",
		},
		{
			name:       "image attachment",
			msg:        &discordgo.Message{Content: "look", Attachments: []*discordgo.MessageAttachment{{Filename: "cat.PNG"}}},
			want:       "Ann posted an image",
			wantStatus: true,
		},
		{
			name:       "video embed",
			msg:        &discordgo.Message{Content: "x", Embeds: []*discordgo.MessageEmbed{{Type: discordgo.EmbedTypeVideo}}},
			want:       "Ann posted a video",
			wantStatus: true,
		},
		{
			name:       "link",
			msg:        &discordgo.Message{Content: "see https://example.com"},
			want:       "Ann posted a link",
			wantStatus: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, status := chatText(tt.msg, "Ann", nil)
			if got != tt.want || status != tt.wantStatus {
				t.Errorf("chatText = %q, %v; want %q, %v", got, status, tt.want, tt.wantStatus)
			}
		})
	}
}

func TestMemberName(t *testing.T) {
	tests := []struct {
		m    *discordgo.Member
		want string
	}{
		{nil, ""},
		{&discordgo.Member{Nick: "nick", User: &discordgo.User{Username: "user"}}, "nick"},
		{&discordgo.Member{User: &discordgo.User{Username: "user", GlobalName: "Global"}}, "Global"},
		{&discordgo.Member{User: &discordgo.User{Username: "user"}}, "user"},
	}
	for _, tt := range tests {
		if got := memberName(tt.m); got != tt.want {
			t.Errorf("memberName = %q, want %q", got, tt.want)
		}
	}
}

func opt(name string, typ discordgo.ApplicationCommandOptionType, v any) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: typ, Value: v}
}

func TestPatchFromOptions(t *testing.T) {
	opts := options([]*discordgo.ApplicationCommandInteractionDataOption{
		opt("max_tts_chars", discordgo.ApplicationCommandOptionInteger, float64(500)),
		opt("greet_on_join", discordgo.ApplicationCommandOptionBoolean, true),
		opt("allowed_voices", discordgo.ApplicationCommandOptionString, "en_us_001, en_us_002,,"),
	})
	p := patchFromOptions(opts)
	if p.MaxTTSChars == nil || *p.MaxTTSChars != 500 {
		t.Errorf("MaxTTSChars = %v", p.MaxTTSChars)
	}
	if p.GreetOnJoin == nil || !*p.GreetOnJoin {
		t.Error("GreetOnJoin not set")
	}
	if p.AllowedVoiceIDs == nil || strings.Join(*p.AllowedVoiceIDs, "|") != "en_us_001|en_us_002" {
		t.Errorf("AllowedVoiceIDs = %v", p.AllowedVoiceIDs)
	}
	if p.LeaveWhenAlone != nil || p.DefaultVoice != nil {
		t.Error("unset options must stay nil")
	}
}

func TestAllowedVoices(t *testing.T) {
	g := &store.GuildSettings{DefaultVoice: "en_us_001", RestrictVoices: true, AllowedVoiceIDs: []string{"en_us_001", "en_us_002"}}
	got := allowedVoices(g, tts.AllVoices())
	if len(got) != 1 || got[0].ID != "en_us_002" {
		t.Errorf("allowedVoices = %+v", got)
	}
}

func TestFindFocused(t *testing.T) {
	focused := &discordgo.ApplicationCommandInteractionDataOption{Name: "voice_id", Focused: true}
	tree := []*discordgo.ApplicationCommandInteractionDataOption{
		{Name: "voice", Options: []*discordgo.ApplicationCommandInteractionDataOption{focused}},
	}
	if got := findFocused(tree); got != focused {
		t.Errorf("findFocused = %v", got)
	}
}

func TestIsResetWord(t *testing.T) {
	for _, s := range []string{"reset", " Clear ", "DEFAULT"} {
		if !isResetWord(s) {
			t.Errorf("%q should reset", s)
		}
	}
	if isResetWord("en_us_001") {
		t.Error("voice id is not a reset word")
	}
}
