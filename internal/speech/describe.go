package speech

import (
	"fmt"
	"path"
	"strings"
	"unicode/utf8"
)

// MediaKind classifies a message that should be announced instead of read.
type MediaKind string

const (
	MediaNone  MediaKind = ""
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
	MediaLink  MediaKind = "link"
)

var (
	imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true, ".bmp": true, ".tiff": true, ".svg": true}
	videoExts = map[string]bool{".mp4": true, ".mov": true, ".webm": true, ".mkv": true, ".avi": true, ".wmv": true, ".flv": true, ".m4v": true}
)

// Attachment is the minimum needed to classify a posted file.
type Attachment struct {
	Filename    string
	ContentType string
}

// ClassifyMedia decides whether a message is an image, video or link post.
// Images win over videos, and attachments over links in the text.
func ClassifyMedia(text string, attachments []Attachment, embedTypes []string) MediaKind {
	var hasImage, hasVideo bool
	for _, a := range attachments {
		ct := strings.ToLower(a.ContentType)
		ext := strings.ToLower(path.Ext(a.Filename))
		switch {
		case strings.HasPrefix(ct, "image/") || imageExts[ext]:
			hasImage = true
		case strings.HasPrefix(ct, "video/") || videoExts[ext]:
			hasVideo = true
		}
	}
	if !hasImage && !hasVideo {
		for _, et := range embedTypes {
			switch strings.ToLower(et) {
			case "image":
				hasImage = true
			case "video":
				hasVideo = true
			}
		}
	}

	switch {
	case hasImage:
		return MediaImage
	case hasVideo:
		return MediaVideo
	}
	lowered := strings.ToLower(text)
	if strings.Contains(lowered, "http://") || strings.Contains(lowered, "https://") {
		return MediaLink
	}
	return MediaNone
}

// StatusPhrase renders the spoken replacement for a media post.
func StatusPhrase(name string, kind MediaKind) string {
	if kind == MediaNone {
		return ""
	}
	return fmt.Sprintf("%s posted %s %s", name, article(kind), kind)
}

func article(kind MediaKind) string {
	if kind == MediaImage {
		return "an"
	}
	return "a"
}

// Attribute prefixes text with the speaker's name, used when the speaker in a
// room changes. When maxRunes > 0 the quoted text is shortened with an
// ellipsis so the whole result stays within maxRunes.
func Attribute(name, text string, maxRunes int) string {
	prefix := name + ` said. "`
	if maxRunes > 0 {
		room := maxRunes - utf8.RuneCountInString(prefix) - 1
		if room < 1 {
			// No space for a prefix; keep the words.
			return Truncate(text, maxRunes, Ellipsis)
		}
		text = Truncate(text, room, Ellipsis)
	}
	return prefix + text + `"`
}

// ReplaceMentions renders raw mention tokens (e.g. "<@123>") with readable
// names before the normalizer strips whatever is left.
func ReplaceMentions(text string, names map[string]string) string {
	for token, name := range names {
		if strings.Contains(text, token) {
			text = strings.ReplaceAll(text, token, name)
		}
	}
	return text
}
