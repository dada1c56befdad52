package tts

import "strings"

// FallbackVoice is used when neither the user nor the guild picked a voice.
const FallbackVoice = "en_us_001"

// GoogleVoice is the single Google Translate voice.
const GoogleVoice = "google_translate"

// Voice is a catalog entry.
type Voice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

var tiktokVoices = []Voice{
	// Disney characters
	{"en_us_ghostface", "Ghost Face", "tiktok"},
	{"en_us_c3po", "C3PO", "tiktok"},
	{"en_us_stitch", "Stitch", "tiktok"},
	{"en_us_stormtrooper", "Stormtrooper", "tiktok"},
	{"en_us_rocket", "Rocket", "tiktok"},
	{"en_female_madam_leota", "Madame Leota", "tiktok"},
	{"en_male_ghosthost", "Ghost Host", "tiktok"},
	{"en_male_pirate", "Pirate", "tiktok"},
	// Standard
	{"en_us_001", "Female", "tiktok"},
	{"en_us_002", "Jessie", "tiktok"},
	{"en_us_006", "Joey", "tiktok"},
	{"en_us_007", "Professor", "tiktok"},
	{"en_us_009", "Scientist", "tiktok"},
	{"en_us_010", "Confidence", "tiktok"},
	// Characters
	{"en_male_jomboy", "Game On", "tiktok"},
	{"en_female_samc", "Empathetic", "tiktok"},
	{"en_male_cody", "Serious", "tiktok"},
	{"en_female_makeup", "Beauty Guru", "tiktok"},
	{"en_female_richgirl", "Bestie", "tiktok"},
	{"en_male_grinch", "Trickster", "tiktok"},
	{"en_male_narration", "Story Teller", "tiktok"},
	{"en_male_deadpool", "Mr. GoodGuy", "tiktok"},
	{"en_male_jarvis", "Alfred", "tiktok"},
	{"en_male_ashmagic", "ashmagic", "tiktok"},
	{"en_male_olantekkers", "olantekkers", "tiktok"},
	{"en_male_ukneighbor", "Lord Cringe", "tiktok"},
	{"en_male_ukbutler", "Mr. Meticulous", "tiktok"},
	{"en_female_shenna", "Debutante", "tiktok"},
	{"en_female_pansino", "Varsity", "tiktok"},
	{"en_male_trevor", "Marty", "tiktok"},
	{"en_female_betty", "Bae", "tiktok"},
	{"en_male_cupid", "Cupid", "tiktok"},
	{"en_female_grandma", "Granny", "tiktok"},
	{"en_male_wizard", "Magician", "tiktok"},
	// Regional
	{"en_uk_001", "Narrator", "tiktok"},
	{"en_uk_003", "Male English UK", "tiktok"},
	{"en_au_001", "Metro", "tiktok"},
	{"en_au_002", "Smooth", "tiktok"},
	{"es_mx_002", "Warm", "tiktok"},
}

var googleVoices = []Voice{
	{GoogleVoice, "Normal voice", "google"},
}

// PopularVoiceIDs are offered first in voice pickers.
var PopularVoiceIDs = []string{
	"en_us_ghostface", "en_us_002", "en_us_006", "en_us_007", "en_us_009",
	"en_us_010", "en_us_rocket", "en_us_c3po", "en_us_stitch", "en_male_jomboy",
	"en_female_samc", "en_male_cody", "en_female_makeup", "en_female_richgirl",
	"en_male_grinch", "en_male_narration", "en_male_deadpool", "en_male_jarvis",
	"en_female_betty", "en_male_cupid", "en_female_grandma", "en_uk_001",
	"en_au_001", GoogleVoice,
}

var voiceIndex = func() map[string]Voice {
	m := make(map[string]Voice, len(tiktokVoices)+len(googleVoices))
	for _, v := range AllVoices() {
		m[v.ID] = v
	}
	return m
}()

// AllVoices returns the catalog, TikTok voices first.
func AllVoices() []Voice {
	out := make([]Voice, 0, len(tiktokVoices)+len(googleVoices))
	out = append(out, tiktokVoices...)
	return append(out, googleVoices...)
}

// LookupVoice returns the catalog entry for id.
func LookupVoice(id string) (Voice, bool) {
	v, ok := voiceIndex[id]
	return v, ok
}

// VoiceName returns the friendly name for id, or id itself.
func VoiceName(id string) string {
	if v, ok := voiceIndex[id]; ok {
		return v.Name
	}
	return id
}

// IsKnownVoice reports whether id is in the catalog.
func IsKnownVoice(id string) bool {
	_, ok := voiceIndex[id]
	return ok
}

// IsGoogleVoice reports whether id is served by Google Translate TTS.
func IsGoogleVoice(id string) bool {
	return id == GoogleVoice || strings.HasPrefix(id, "google_")
}

// SearchVoices returns catalog entries whose id or name contains query,
// popular voices first, at most limit entries (0 = no limit).
func SearchVoices(query string, limit int) []Voice {
	q := strings.ToLower(strings.TrimSpace(query))
	var out []Voice
	seen := make(map[string]bool)
	add := func(v Voice) bool {
		if seen[v.ID] {
			return true
		}
		if q != "" && !strings.Contains(strings.ToLower(v.ID), q) && !strings.Contains(strings.ToLower(v.Name), q) {
			return true
		}
		seen[v.ID] = true
		out = append(out, v)
		return limit <= 0 || len(out) < limit
	}
	for _, id := range PopularVoiceIDs {
		if !add(voiceIndex[id]) {
			return out
		}
	}
	for _, v := range AllVoices() {
		if !add(v) {
			return out
		}
	}
	return out
}
