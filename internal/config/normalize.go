package config

import (
	"regexp"
	"strings"
)

var invalidNameChars = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeProviderName folds a user-written provider name onto its
// canonical form: lowercase, letters and digits only.
// "Eleven Labs" and "eleven_labs" both become "elevenlabs".
func NormalizeProviderName(name string) string {
	return invalidNameChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "")
}

// normalize canonicalizes provider names in place.
func (c *Config) normalize() {
	for i, name := range c.TTS.Providers {
		c.TTS.Providers[i] = NormalizeProviderName(name)
	}
	if len(c.TTS.Breakers) > 0 {
		breakers := make(map[string]BreakerConfig, len(c.TTS.Breakers))
		for name, b := range c.TTS.Breakers {
			breakers[NormalizeProviderName(name)] = b
		}
		c.TTS.Breakers = breakers
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
}
