package speech

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Limit defaults.
const (
	DefaultMaxMessageChars   = 300
	DefaultMaxUtteranceChars = 600
	DefaultRejectChars       = 4000 // largest message Discord will deliver
	Ellipsis                 = "…"
)

var (
	userMentionRe    = regexp.MustCompile(`<@!?\d+>`)
	roleMentionRe    = regexp.MustCompile(`<@&\d+>`)
	channelMentionRe = regexp.MustCompile(`<#\d+>`)
	customEmojiRe    = regexp.MustCompile(`<a?:(\w+):\d+>`)
)

// Limits bounds text length at each stage of the pipeline.
type Limits struct {
	MaxMessageChars   int // per inbound message, applied before buffering
	MaxUtteranceChars int // per merged utterance, applied by the coalescer
	RejectChars       int // raw length past which a message is refused outright
}

// DefaultLimits returns the limits used when the config leaves them unset.
func DefaultLimits() Limits {
	return Limits{
		MaxMessageChars:   DefaultMaxMessageChars,
		MaxUtteranceChars: DefaultMaxUtteranceChars,
		RejectChars:       DefaultRejectChars,
	}
}

// Normalizer cleans inbound text and enforces the per-message cap.
type Normalizer struct {
	limits Limits
}

// NewNormalizer creates a normalizer. Zero limits fall back to defaults.
func NewNormalizer(limits Limits) *Normalizer {
	if limits.MaxMessageChars <= 0 {
		limits.MaxMessageChars = DefaultMaxMessageChars
	}
	if limits.MaxUtteranceChars <= 0 {
		limits.MaxUtteranceChars = DefaultMaxUtteranceChars
	}
	if limits.RejectChars <= 0 {
		limits.RejectChars = DefaultRejectChars
	}
	return &Normalizer{limits: limits}
}

// Limits returns the effective limits.
func (n *Normalizer) Limits() Limits { return n.limits }

// Normalize strips leftover mention markup, applies NFKC, collapses whitespace and truncates
// to the per-message cap. Raw text longer than RejectChars is refused with
// ErrTooLong so a single buffered item stays bounded.
func (n *Normalizer) Normalize(raw string) (string, error) {
	if utf8.RuneCountInString(raw) > n.limits.RejectChars {
		return "", ErrTooLong
	}

	text := customEmojiRe.ReplaceAllString(raw, "$1")
	text = userMentionRe.ReplaceAllString(text, "")
	text = roleMentionRe.ReplaceAllString(text, "")
	text = channelMentionRe.ReplaceAllString(text, "")
	// Fold styled letters (𝐛𝐨𝐥𝐝, ｆｕｌｌｗｉｄｔｈ) to plain ones the voices can read.
	text = norm.NFKC.String(text)
	text = CollapseSpace(text)
	if text == "" {
		return "", ErrEmpty
	}

	return Truncate(text, n.limits.MaxMessageChars, ""), nil
}

// CollapseSpace joins all whitespace runs into single spaces and trims.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate cuts s to at most maxRunes runes. When suffix is non-empty it is
// included in the budget, so the result never exceeds maxRunes.
func Truncate(s string, maxRunes int, suffix string) string {
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	keep := maxRunes - utf8.RuneCountInString(suffix)
	if keep < 0 {
		keep = 0
	}
	runes := []rune(s)
	return strings.TrimRight(string(runes[:keep]), " ") + suffix
}
