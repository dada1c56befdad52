package speech

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNormalize_TruncatesToMessageCap(t *testing.T) {
	n := NewNormalizer(Limits{MaxMessageChars: 350})

	got, err := n.Normalize(strings.Repeat("a", 2000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if utf8.RuneCountInString(got) != 350 {
		t.Errorf("expected 350 chars, got %d", utf8.RuneCountInString(got))
	}
}

func TestNormalize_RejectsPastHardLimit(t *testing.T) {
	n := NewNormalizer(Limits{MaxMessageChars: 10, RejectChars: 100})

	_, err := n.Normalize(strings.Repeat("x", 101))
	if !errors.Is(err, ErrTooLong) {
		t.Errorf("expected ErrTooLong, got %v", err)
	}
}

func TestNormalize_Cleanup(t *testing.T) {
	n := NewNormalizer(DefaultLimits())

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr error
	}{
		{"plain", "hello world", "hello world", nil},
		{"whitespace", "  hello \n\t world  ", "hello world", nil},
		{"user_mention", "hi <@123> and <@!456>", "hi and", nil},
		{"role_and_channel", "ping <@&9> in <#77>", "ping in", nil},
		{"custom_emoji", "nice <:pog:123456>", "nice pog", nil},
		{"styled_letters", "\U0001D421\U0001D41E\U0001D425\U0001D425\U0001D428 \uFF57\uFF4F\uFF52\uFF4C\uFF44", "hello world", nil},
		{"ideographic_space", "a\u3000b", "a b", nil},
		{"only_mentions", "<@1> <@2>", "", ErrEmpty},
		{"empty", "   ", "", ErrEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Normalize(tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10, Ellipsis); got != "short" {
		t.Errorf("short string changed: %q", got)
	}

	got := Truncate(strings.Repeat("b", 20), 10, Ellipsis)
	if utf8.RuneCountInString(got) != 10 {
		t.Errorf("expected 10 runes, got %d (%q)", utf8.RuneCountInString(got), got)
	}
	if !strings.HasSuffix(got, Ellipsis) {
		t.Errorf("expected ellipsis suffix, got %q", got)
	}

	// Multi-byte runes are counted, not bytes.
	got = Truncate(strings.Repeat("é", 8), 4, "")
	if got != "éééé" {
		t.Errorf("rune truncation = %q", got)
	}
}

func TestClassifyMedia(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		atts   []Attachment
		embeds []string
		want   MediaKind
	}{
		{"plain", "hello", nil, nil, MediaNone},
		{"link", "look https://example.com", nil, nil, MediaLink},
		{"image_ct", "", []Attachment{{Filename: "x", ContentType: "image/png"}}, nil, MediaImage},
		{"video_ext", "", []Attachment{{Filename: "clip.MP4"}}, nil, MediaVideo},
		{"image_beats_video", "", []Attachment{{Filename: "a.mov"}, {Filename: "b.jpg"}}, nil, MediaImage},
		{"embed_video", "https://youtu.be/x", nil, []string{"video"}, MediaVideo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyMedia(tt.text, tt.atts, tt.embeds); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAttribute_StaysWithinCap(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want string
	}{
		{"fits", "hi", 30, `Ann said. "hi"`},
		{"quoted_text_shortened", "this message is rather long", 24, `Ann said. "this messag…"`},
		{"cap_smaller_than_prefix", "hello there", 8, "hello t…"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Attribute("Ann", tt.text, tt.max)
			if got != tt.want {
				t.Errorf("Attribute = %q, want %q", got, tt.want)
			}
			if n := utf8.RuneCountInString(got); n > tt.max {
				t.Errorf("%d runes, cap %d", n, tt.max)
			}
		})
	}
}

func TestStatusPhraseAndAttribute(t *testing.T) {
	if got := StatusPhrase("Ann", MediaImage); got != "Ann posted an image" {
		t.Errorf("got %q", got)
	}
	if got := StatusPhrase("Ann", MediaLink); got != "Ann posted a link" {
		t.Errorf("got %q", got)
	}
	if got := Attribute("Bob", "hi there", 0); got != `Bob said. "hi there"` {
		t.Errorf("got %q", got)
	}
	if got := ReplaceMentions("hey <@42>", map[string]string{"<@42>": "@Cy"}); got != "hey @Cy" {
		t.Errorf("got %q", got)
	}
}
